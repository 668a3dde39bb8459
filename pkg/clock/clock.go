package clock

import (
	"sync"
	"time"
)

// Clock supplies the current instant. Entitlement decisions and ledger
// timestamps read time only through a Clock so tests can pin it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// System returns a Clock backed by time.Now, normalized to UTC.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a manually advanced Clock for tests and replay tooling.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixed(at time.Time) *Fixed {
	return &Fixed{now: at.UTC()}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to at.
func (f *Fixed) Set(at time.Time) {
	f.mu.Lock()
	f.now = at.UTC()
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
