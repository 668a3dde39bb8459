// Package usage is the append-only ledger of consumed AI requests.
package usage

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forsocials/replyriser-backend/pkg/db/models"
)

const (
	maxPlatformLength = 50
	unknownPlatform   = "unknown"
	defaultListLimit  = 50
)

// Repository persists and counts usage entries. It never updates or deletes.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a usage repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Append records one consumed request at the given instant.
func (r *Repository) Append(ctx context.Context, userID uuid.UUID, platform string, at time.Time) (*models.UsageEntry, error) {
	entry := &models.UsageEntry{
		ID:        uuid.New(),
		UserID:    userID,
		Platform:  NormalizePlatform(platform),
		CreatedAt: at.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// CountSince counts entries for userID with created_at >= since.
func (r *Repository) CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.UsageEntry{}).
		Where("user_id = ? AND created_at >= ?", userID, since.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListSince returns the most recent entries at or after since, newest first.
func (r *Repository) ListSince(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]models.UsageEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var entries []models.UsageEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since.UTC()).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// NormalizePlatform trims and bounds the free-form platform label to
// maxPlatformLength bytes without splitting a character.
func NormalizePlatform(platform string) string {
	p := strings.ToLower(strings.TrimSpace(strings.ToValidUTF8(platform, "")))
	if p == "" {
		return unknownPlatform
	}
	if len(p) <= maxPlatformLength {
		return p
	}
	cut := 0
	for cut < len(p) {
		_, size := utf8.DecodeRuneInString(p[cut:])
		if cut+size > maxPlatformLength {
			break
		}
		cut += size
	}
	return strings.TrimSpace(p[:cut])
}
