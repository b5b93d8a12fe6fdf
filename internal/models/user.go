package models

import (
	"time"

	"dealdesk/internal/domain"

	"gorm.io/gorm"
)

type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"size:128;not null" json:"name"`
	Company      string     `gorm:"size:128" json:"company"`
	Email        string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PhoneNo      string     `gorm:"size:20" json:"phone_no"`
	PasswordHash string     `gorm:"size:255" json:"-"`
	Role         string     `gorm:"size:20;not null;index" json:"role"` // investor | fundManager | superAdmin
	AddedByID    *uint      `gorm:"index" json:"added_by_id"`           // fund manager who invited this investor
	GoogleID     *string    `gorm:"uniqueIndex;size:255" json:"-"`      // nil for email signups (avoids duplicate '' on unique index)
	// ConnectAccountID is the Stripe Connect account used as the payout
	// destination for fund managers.
	ConnectAccountID string         `gorm:"size:64;index" json:"connect_account_id"`
	IsBlocked        bool           `gorm:"default:false" json:"is_blocked"`
	IsAccepted       bool           `gorm:"default:false" json:"is_accepted"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`

	AddedBy *User   `gorm:"foreignKey:AddedByID" json:"-"`
	Wallet  *Wallet `gorm:"foreignKey:UserID" json:"wallet,omitempty"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsInvestor() bool    { return u.Role == domain.RoleInvestor }
func (u *User) IsFundManager() bool { return u.Role == domain.RoleFundManager }
