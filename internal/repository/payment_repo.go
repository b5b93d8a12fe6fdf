package repository

import (
	"errors"
	"time"

	"dealdesk/internal/domain"
	"dealdesk/internal/models"

	"gorm.io/gorm"
)

// ErrInvalidTransition is returned when a status update would move a payment
// out of a terminal state.
var ErrInvalidTransition = errors.New("invalid payment status transition")

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByPaymentIntentID(intentID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("payment_intent_id = ?", intentID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByPlaidTransferID(transferID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("plaid_transfer_id = ?", transferID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByDealAndInvestor finds the payment a checkout webhook refers to via
// its session metadata.
func (r *PaymentRepository) GetByDealAndInvestor(dealID string, investorID uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("deal_id = ? AND investor_id = ?", dealID, investorID).
		Order("created_at DESC").First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByIdempotencyKey(key string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("idempotency_key = ?", key).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) Update(p *models.Payment) error {
	return r.db.Save(p).Error
}

// SetStatus applies a monotonic transition. The WHERE clause keys the update
// to the current PENDING status, so replays and races cannot move a payment
// out of a terminal state.
func (r *PaymentRepository) SetStatus(p *models.Payment, status string) error {
	return r.setStatusTx(r.db, p, status)
}

// SetStatusTx is SetStatus inside an existing transaction.
func (r *PaymentRepository) SetStatusTx(tx *gorm.DB, p *models.Payment, status string) error {
	return r.setStatusTx(tx, p, status)
}

func (r *PaymentRepository) setStatusTx(tx *gorm.DB, p *models.Payment, status string) error {
	if !domain.CanTransitionPayment(p.Status, status) {
		return ErrInvalidTransition
	}
	updates := map[string]interface{}{"status": status}
	if status == domain.PaymentStatusCompleted {
		now := time.Now()
		updates["completed_at"] = now
		p.CompletedAt = &now
	}
	res := tx.Model(&models.Payment{}).
		Where("id = ? AND status = ?", p.ID, domain.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	p.Status = status
	return nil
}

// ListForUser returns payments where the user is either side of the deal.
func (r *PaymentRepository) ListForUser(userID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("investor_id = ? OR fund_manager_id = ?", userID, userID).
		Order("created_at DESC").Find(&payments).Error
	return payments, err
}
