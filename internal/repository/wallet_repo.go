package repository

import (
	"errors"

	"dealdesk/internal/models"

	"gorm.io/gorm"
)

var ErrInsufficientBalance = errors.New("insufficient wallet balance")

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByUserID(userID uint) (*models.Wallet, error) {
	var w models.Wallet
	err := r.db.Where("user_id = ?", userID).First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepository) GetOrCreate(userID uint) (*models.Wallet, error) {
	w, err := r.GetByUserID(userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	w = &models.Wallet{UserID: userID, BalanceCents: 0, Currency: "USD"}
	if err := r.db.Create(w).Error; err != nil {
		return nil, err
	}
	return w, nil
}

// Credit adds amountCents atomically and records a transaction row. The
// arithmetic runs inside the database so concurrent credits on the same
// wallet never lose updates.
func (r *WalletRepository) Credit(userID uint, amountCents int64, txnType, reference string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if _, err := r.getOrCreateTx(tx, userID); err != nil {
			return err
		}
		if err := tx.Model(&models.Wallet{}).Where("user_id = ?", userID).
			UpdateColumn("balance_cents", gorm.Expr("balance_cents + ?", amountCents)).Error; err != nil {
			return err
		}
		return tx.Create(&models.WalletTransaction{
			UserID:      userID,
			AmountCents: amountCents,
			Type:        txnType,
			Reference:   reference,
		}).Error
	})
}

// Debit subtracts amountCents only when the balance covers it; the guard is
// part of the UPDATE statement, so a concurrent debit cannot overdraw.
func (r *WalletRepository) Debit(userID uint, amountCents int64, txnType, reference string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Wallet{}).
			Where("user_id = ? AND balance_cents >= ?", userID, amountCents).
			UpdateColumn("balance_cents", gorm.Expr("balance_cents - ?", amountCents))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientBalance
		}
		return tx.Create(&models.WalletTransaction{
			UserID:      userID,
			AmountCents: -amountCents,
			Type:        txnType,
			Reference:   reference,
		}).Error
	})
}

// CreditTx is Credit running inside an existing transaction, used when a
// balance change must commit atomically with a record-status change.
func (r *WalletRepository) CreditTx(tx *gorm.DB, userID uint, amountCents int64, txnType, reference string) error {
	if _, err := r.getOrCreateTx(tx, userID); err != nil {
		return err
	}
	if err := tx.Model(&models.Wallet{}).Where("user_id = ?", userID).
		UpdateColumn("balance_cents", gorm.Expr("balance_cents + ?", amountCents)).Error; err != nil {
		return err
	}
	return tx.Create(&models.WalletTransaction{
		UserID:      userID,
		AmountCents: amountCents,
		Type:        txnType,
		Reference:   reference,
	}).Error
}

func (r *WalletRepository) getOrCreateTx(tx *gorm.DB, userID uint) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.Where("user_id = ?", userID).First(&w).Error
	if err == nil {
		return &w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	w = models.Wallet{UserID: userID, BalanceCents: 0, Currency: "USD"}
	if err := tx.Create(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepository) ListTransactions(userID uint, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var txns []models.WalletTransaction
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&txns).Error
	return txns, err
}
