package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forsocials/replyriser-backend/pkg/db/models"
	"github.com/forsocials/replyriser-backend/pkg/enums"
)

// Repository exposes account persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an accounts repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new account and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreateAccountDTO) (*models.Account, error) {
	account := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

// FindByID loads an account by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByEmail retrieves the account matching the provided (lowercased) email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByVerificationToken retrieves the account awaiting the given token.
func (r *Repository) FindByVerificationToken(ctx context.Context, token string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("verification_token = ?", token).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// ClaimTrialStart sets trial_start only when it is still NULL and returns the
// account as persisted afterwards. A concurrent earlier claim wins and its
// timestamp is what the caller sees.
func (r *Repository) ClaimTrialStart(ctx context.Context, id uuid.UUID, at time.Time) (*models.Account, error) {
	err := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND trial_start IS NULL", id).
		UpdateColumn("trial_start", at.UTC()).Error
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// MarkVerified flags the account verified and clears its token.
func (r *Repository) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"is_verified":        true,
			"verification_token": nil,
			"updated_at":         at.UTC(),
		}).Error
}

// ApplyPlan writes plan and period bounds in a single statement.
func (r *Repository) ApplyPlan(ctx context.Context, id uuid.UUID, change PlanChange, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"subscription_plan":  change.Plan,
			"subscription_start": utcPtr(change.Start),
			"subscription_end":   utcPtr(change.End),
			"updated_at":         at.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RenewPeriod moves the subscription window of an account on a recurring
// paid plan. Free and lifetime accounts are left alone and reported as
// gorm.ErrRecordNotFound.
func (r *Repository) RenewPeriod(ctx context.Context, id uuid.UUID, start, end time.Time, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND subscription_plan NOT IN ?", id, []string{enums.PlanFree.String(), enums.PlanLifetime.String()}).
		UpdateColumns(map[string]any{
			"subscription_start": start.UTC(),
			"subscription_end":   end.UTC(),
			"updated_at":         at.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteUnverifiedBefore removes accounts that never confirmed their email
// and were created before cutoff. It returns the number of rows removed.
func (r *Repository) DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("is_verified = ? AND created_at < ?", false, cutoff.UTC()).
		Delete(&models.Account{})
	return res.RowsAffected, res.Error
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
