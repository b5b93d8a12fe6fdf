package models

import (
	"time"

	"gorm.io/gorm"
)

// Wallet is the fund manager's accumulated balance, credited by investor
// payments and debited by withdrawals. BalanceCents only moves through
// atomic SQL arithmetic in WalletRepository; it is never read-modify-written.
type Wallet struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UserID       uint           `gorm:"uniqueIndex;not null" json:"user_id"`
	BalanceCents int64          `gorm:"not null;default:0" json:"balance_cents"`
	Currency     string         `gorm:"size:3;default:'USD'" json:"currency"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Wallet) TableName() string {
	return "wallets"
}
