package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forsocials/replyriser-backend/pkg/clock"
)

type stubUnverifiedRepo struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (s *stubUnverifiedRepo) DeleteUnverifiedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.deleted, s.err
}

func TestUnverifiedCleanupUsesRetention(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	repo := &stubUnverifiedRepo{deleted: 3}
	job, err := NewUnverifiedCleanupJob(UnverifiedCleanupJobParams{
		Logger:     testLogger(),
		Repository: repo,
		Clock:      clock.NewFixed(now),
		Retention:  48 * time.Hour,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-48*time.Hour), repo.cutoff)
	assert.Equal(t, "unverified-account-cleanup", job.Name())
}

func TestUnverifiedCleanupDefaultsAndErrors(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	repo := &stubUnverifiedRepo{err: errors.New("db down")}
	job, err := NewUnverifiedCleanupJob(UnverifiedCleanupJobParams{
		Logger:     testLogger(),
		Repository: repo,
		Clock:      clock.NewFixed(now),
	})
	require.NoError(t, err)

	assert.Error(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-7*24*time.Hour), repo.cutoff)

	_, err = NewUnverifiedCleanupJob(UnverifiedCleanupJobParams{Repository: repo})
	assert.Error(t, err)
	_, err = NewUnverifiedCleanupJob(UnverifiedCleanupJobParams{Logger: testLogger()})
	assert.Error(t, err)
}
