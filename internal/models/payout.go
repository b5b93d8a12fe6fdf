package models

import (
	"time"

	"gorm.io/gorm"
)

// Payout is one row per withdrawal attempt from a fund manager's wallet to
// the bank account linked to their Stripe Connect account. The wallet is
// debited synchronously when the withdrawal is initiated; a payout.failed
// event refunds the held amount.
type Payout struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UserID         uint           `gorm:"not null;index" json:"user_id"`
	AmountCents    int64          `gorm:"not null" json:"amount_cents"`
	Currency       string         `gorm:"size:3;default:'USD'" json:"currency"`
	StripePayoutID string         `gorm:"uniqueIndex;size:255" json:"stripe_payout_id"`
	TransferID     string         `gorm:"size:255" json:"transfer_id"`
	Status         string         `gorm:"size:20;not null;index" json:"status"` // PROCESSING, COMPLETED, FAILED
	CompletedAt    *time.Time     `json:"completed_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Payout) TableName() string {
	return "payouts"
}
