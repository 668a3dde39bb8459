package accounts

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forsocials/replyriser-backend/pkg/db/models"
	"github.com/forsocials/replyriser-backend/pkg/enums"
)

// AccountDTO is the transport shape that omits credentials and tokens.
type AccountDTO struct {
	ID                uuid.UUID  `json:"id"`
	Email             string     `json:"email"`
	IsVerified        bool       `json:"is_verified"`
	SubscriptionPlan  enums.Plan `json:"subscriptionPlan"`
	SubscriptionStart *time.Time `json:"subscriptionStart,omitempty"`
	SubscriptionEnd   *time.Time `json:"subscriptionEnd,omitempty"`
	TrialStart        *time.Time `json:"trialStart"`
	CreatedAt         time.Time  `json:"created_at"`
}

// CreateAccountDTO holds the data required by the repo to persist a new account.
type CreateAccountDTO struct {
	Email             string
	PasswordHash      string
	VerificationToken string
}

// PlanChange is the subscription state written by the payment webhook.
type PlanChange struct {
	Plan  enums.Plan
	Start *time.Time
	End   *time.Time
}

func FromModel(a *models.Account) *AccountDTO {
	if a == nil {
		return nil
	}
	return &AccountDTO{
		ID:                a.ID,
		Email:             a.Email,
		IsVerified:        a.IsVerified,
		SubscriptionPlan:  a.SubscriptionPlan,
		SubscriptionStart: a.SubscriptionStart,
		SubscriptionEnd:   a.SubscriptionEnd,
		TrialStart:        a.TrialStart,
		CreatedAt:         a.CreatedAt,
	}
}

// ToModel builds a fresh free-plan account with no trial started.
func (c CreateAccountDTO) ToModel() *models.Account {
	var token *string
	if t := strings.TrimSpace(c.VerificationToken); t != "" {
		token = &t
	}
	return &models.Account{
		ID:                uuid.New(),
		Email:             strings.ToLower(strings.TrimSpace(c.Email)),
		PasswordHash:      c.PasswordHash,
		VerificationToken: token,
		SubscriptionPlan:  enums.PlanFree,
	}
}
