package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/forsocials/replyriser-backend/pkg/enums"
)

// Account is the persisted user/subscription record.
type Account struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Email             string     `gorm:"column:email;not null;uniqueIndex"`
	PasswordHash      string     `gorm:"column:password_hash;not null"`
	IsVerified        bool       `gorm:"column:is_verified;not null;default:false"`
	VerificationToken *string    `gorm:"column:verification_token"`
	SubscriptionPlan  enums.Plan `gorm:"column:subscription_plan;not null;default:free"`
	SubscriptionStart *time.Time `gorm:"column:subscription_start"`
	SubscriptionEnd   *time.Time `gorm:"column:subscription_end"`
	TrialStart        *time.Time `gorm:"column:trial_start"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Account) TableName() string { return "accounts" }
