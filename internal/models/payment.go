package models

import (
	"time"

	"gorm.io/gorm"
)

// Payment is one row per initiated payment attempt. Depending on Method,
// exactly one external reference is populated: PaymentIntentID for Stripe
// (it also holds the checkout-session id in the hosted flow) or
// PlaidTransferID for Plaid ACH debits.
type Payment struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	InvestorID    uint    `gorm:"not null;index:idx_payments_deal_investor,priority:2" json:"investor_id"`
	FundManagerID uint    `gorm:"not null;index" json:"fund_manager_id"`
	DisclosureID  *uint   `gorm:"index" json:"disclosure_id"`
	DealID        string  `gorm:"size:64;not null;index:idx_payments_deal_investor,priority:1" json:"deal_id"`
	AmountCents   int64   `gorm:"not null" json:"amount_cents"`
	Currency      string  `gorm:"size:3;default:'USD'" json:"currency"`
	Method        string  `gorm:"size:20;not null" json:"method"` // STRIPE | PLAID
	PaymentIntentID *string `gorm:"uniqueIndex;size:255" json:"payment_intent_id"`
	PlaidTransferID *string `gorm:"uniqueIndex;size:255" json:"plaid_transfer_id"`
	CustomerID    string  `gorm:"size:64" json:"customer_id"`
	Status        string  `gorm:"size:20;not null;index" json:"status"` // PENDING, COMPLETED, FAILED
	IdempotencyKey string `gorm:"size:255;uniqueIndex" json:"-"`
	CompletedAt   *time.Time     `json:"completed_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	Investor    User            `gorm:"foreignKey:InvestorID" json:"-"`
	FundManager User            `gorm:"foreignKey:FundManagerID" json:"-"`
	Disclosure  *DealDisclosure `gorm:"foreignKey:DisclosureID" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}

// ExternalRef returns whichever processor reference is populated.
func (p *Payment) ExternalRef() string {
	if p.PaymentIntentID != nil {
		return *p.PaymentIntentID
	}
	if p.PlaidTransferID != nil {
		return *p.PlaidTransferID
	}
	return ""
}
