package models

import (
	"time"

	"gorm.io/gorm"
)

// DealDisclosure is the per-deal document packet investors must acknowledge
// before a payment can be initiated.
type DealDisclosure struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	DealID       string         `gorm:"size:64;not null;index" json:"deal_id"`
	DocumentURL  string         `gorm:"size:512;not null" json:"document_url"`
	DocumentType string         `gorm:"size:64;not null" json:"document_type"`
	CreatedByID  uint           `gorm:"not null;index" json:"created_by_id"`
	IsPaid       bool           `gorm:"default:false" json:"is_paid"`
	PaymentIntentID string      `gorm:"size:255" json:"payment_intent_id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"` // soft delete

	Investors []DisclosureInvestor `gorm:"foreignKey:DisclosureID" json:"investors,omitempty"`
}

func (DealDisclosure) TableName() string {
	return "deal_disclosures"
}

// DisclosureInvestor is one investor's commitment state on a disclosure.
// The unique (disclosure_id, investor_id) index enforces at most one entry
// per investor per deal.
type DisclosureInvestor struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	DisclosureID uint   `gorm:"not null;uniqueIndex:ux_disclosure_investor,priority:1" json:"disclosure_id"`
	InvestorID   uint   `gorm:"not null;uniqueIndex:ux_disclosure_investor,priority:2;index" json:"investor_id"`
	SoftCommit   string `gorm:"size:20;not null" json:"soft_commit"` // COMMITTED | REJECTED
	Status       string `gorm:"size:20;not null" json:"status"`      // SIGNED | UNSIGNED
	ViewDocument bool   `gorm:"default:false" json:"view_document"`
	DocumentType string `gorm:"size:64" json:"document_type"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Investor User `gorm:"foreignKey:InvestorID" json:"-"`
}

func (DisclosureInvestor) TableName() string {
	return "disclosure_investors"
}
