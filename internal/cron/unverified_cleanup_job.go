package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/forsocials/replyriser-backend/pkg/clock"
	"github.com/forsocials/replyriser-backend/pkg/logger"
)

const defaultUnverifiedRetention = 7 * 24 * time.Hour

type unverifiedAccountRepo interface {
	DeleteUnverifiedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type UnverifiedCleanupJobParams struct {
	Logger     *logger.Logger
	Repository unverifiedAccountRepo
	Clock      clock.Clock
	Retention  time.Duration
}

// NewUnverifiedCleanupJob removes signups that never confirmed their email so
// the address can be registered again.
func NewUnverifiedCleanupJob(params UnverifiedCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("account repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultUnverifiedRetention
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &unverifiedCleanupJob{
		logg:      params.Logger,
		repo:      params.Repository,
		clock:     clk,
		retention: retention,
	}, nil
}

type unverifiedCleanupJob struct {
	logg      *logger.Logger
	repo      unverifiedAccountRepo
	clock     clock.Clock
	retention time.Duration
}

func (j *unverifiedCleanupJob) Name() string { return "unverified-account-cleanup" }

func (j *unverifiedCleanupJob) Run(ctx context.Context) error {
	cutoff := j.clock.Now().UTC().Add(-j.retention)
	deleted, err := j.repo.DeleteUnverifiedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("unverified account cleanup: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "unverified account cleanup complete")
	return nil
}
