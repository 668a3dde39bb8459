package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageEntry is one consumed AI request. Rows are insert-only.
type UsageEntry struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index:idx_usage_entries_user_created,priority:1"`
	Platform  string    `gorm:"column:platform;size:50;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_usage_entries_user_created,priority:2"`
}

func (UsageEntry) TableName() string { return "usage_entries" }
