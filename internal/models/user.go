package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User subscription tiers.
const (
	TierFree       = "free"
	TierBasic      = "basic"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// User represents a registered user. The webhook secret authenticates
// inbound TradingView alerts for all accounts owned by the user;
// regenerating it invalidates prior inbound requests immediately.
type User struct {
	ID            string `json:"id" gorm:"primaryKey;size:36"`
	Email         string `json:"email" gorm:"size:255;uniqueIndex;not null"`
	PasswordHash  string `json:"-" gorm:"size:255;not null"`
	FullName      string `json:"full_name,omitempty" gorm:"size:255"`
	WebhookSecret string `json:"-" gorm:"size:64;uniqueIndex;not null"`
	IsActive      bool   `json:"is_active" gorm:"default:true"`
	IsAdmin       bool   `json:"is_admin" gorm:"default:false"`
	Tier          string `json:"tier" gorm:"size:20;not null;default:free"`

	// Tier limits.
	MaxAccounts      int `json:"max_accounts" gorm:"not null;default:2"`
	MaxSignalsPerDay int `json:"max_signals_per_day" gorm:"not null;default:50"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Accounts []Account `json:"accounts,omitempty" gorm:"foreignKey:UserID"`
	Signals  []Signal  `json:"signals,omitempty" gorm:"foreignKey:UserID"`
}

// BeforeCreate assigns a UUID primary key.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
