package repository

import (
	"time"

	"dealdesk/internal/domain"
	"dealdesk/internal/models"

	"gorm.io/gorm"
)

type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) Create(p *models.Payout) error {
	return r.db.Create(p).Error
}

func (r *PayoutRepository) GetByStripePayoutID(payoutID string) (*models.Payout, error) {
	var p models.Payout
	err := r.db.Where("stripe_payout_id = ?", payoutID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkCompleted flips a PROCESSING payout to COMPLETED; zero rows affected
// means the payout was already settled (replayed webhook).
func (r *PayoutRepository) MarkCompleted(tx *gorm.DB, p *models.Payout) (bool, error) {
	now := time.Now()
	res := tx.Model(&models.Payout{}).
		Where("id = ? AND status = ?", p.ID, domain.PayoutStatusProcessing).
		Updates(map[string]interface{}{"status": domain.PayoutStatusCompleted, "completed_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	p.Status = domain.PayoutStatusCompleted
	p.CompletedAt = &now
	return true, nil
}

// MarkFailed flips a PROCESSING payout to FAILED so the held funds can be
// refunded exactly once.
func (r *PayoutRepository) MarkFailed(tx *gorm.DB, p *models.Payout) (bool, error) {
	res := tx.Model(&models.Payout{}).
		Where("id = ? AND status = ?", p.ID, domain.PayoutStatusProcessing).
		Update("status", domain.PayoutStatusFailed)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	p.Status = domain.PayoutStatusFailed
	return true, nil
}

func (r *PayoutRepository) ListForUser(userID uint) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Find(&payouts).Error
	return payouts, err
}
