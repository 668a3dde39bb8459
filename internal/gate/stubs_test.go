package gate

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forsocials/replyriser-backend/pkg/db/models"
	"github.com/forsocials/replyriser-backend/pkg/openai"
)

type stubAccounts struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]models.Account
	claims   int
}

func newStubAccounts(accounts ...models.Account) *stubAccounts {
	s := &stubAccounts{accounts: make(map[uuid.UUID]models.Account)}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *stubAccounts) FindByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (s *stubAccounts) ClaimTrialStart(_ context.Context, id uuid.UUID, at time.Time) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if a.TrialStart == nil {
		v := at.UTC()
		a.TrialStart = &v
		s.accounts[id] = a
		s.claims++
	}
	return &a, nil
}

func (s *stubAccounts) get(id uuid.UUID) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id]
}

type stubLedger struct {
	mu        sync.Mutex
	entries   []models.UsageEntry
	appendErr error
}

func (l *stubLedger) seed(userID uuid.UUID, n int, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < n; i++ {
		l.entries = append(l.entries, models.UsageEntry{ID: uuid.New(), UserID: userID, Platform: "x", CreatedAt: at})
	}
}

func (l *stubLedger) CountSince(_ context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, e := range l.entries {
		if e.UserID == userID && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (l *stubLedger) Append(_ context.Context, userID uuid.UUID, platform string, at time.Time) (*models.UsageEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appendErr != nil {
		return nil, l.appendErr
	}
	e := models.UsageEntry{ID: uuid.New(), UserID: userID, Platform: platform, CreatedAt: at}
	l.entries = append(l.entries, e)
	return &e, nil
}

func (l *stubLedger) ListSince(_ context.Context, userID uuid.UUID, since time.Time, limit int) ([]models.UsageEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.UsageEntry
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := l.entries[i]
		if e.UserID == userID && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *stubLedger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

type stubProvider struct {
	calls atomic.Int32
	fn    func(ctx context.Context, req openai.CompletionRequest) (*openai.Completion, error)
}

func (p *stubProvider) Complete(ctx context.Context, req openai.CompletionRequest) (*openai.Completion, error) {
	p.calls.Add(1)
	if p.fn != nil {
		return p.fn(ctx, req)
	}
	return okCompletion(), nil
}

func okCompletion() *openai.Completion {
	return &openai.Completion{
		ID:       "chatcmpl-1",
		Model:    "gpt-4o-mini",
		Raw:      json.RawMessage(`{"id":"chatcmpl-1","choices":[{"message":{"role":"assistant","content":"hi"}}]}`),
		Attempts: 1,
	}
}

type stubLocker struct {
	err error
}

func (l stubLocker) Lock(context.Context, string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func() {}, nil
}

var errBoom = errors.New("boom")
