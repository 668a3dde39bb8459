package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrLockTimeout is returned when a per-user lock could not be taken in time.
var ErrLockTimeout = errors.New("quota lock wait exceeded")

// Locker serializes the count-evaluate-call-append sequence per user.
// The returned release func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// LocalLocker is an in-process keyed mutex. It only serializes requests
// handled by the same process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker constructs an empty keyed mutex.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.drop(key, s)
		})
	}, nil
}

func (l *LocalLocker) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

type lockStore interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error)
	RefreshLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, token string) (bool, error)
}

// RedisLocker shares the per-user lock across API instances. While held the
// lock is extended every ttl/3, so it only expires after ttl once the holder
// has died.
type RedisLocker struct {
	store lockStore
	ttl   time.Duration
	wait  time.Duration
	poll  time.Duration
}

// NewRedisLocker builds a RedisLocker polling every poll until wait elapses.
func NewRedisLocker(store lockStore, ttl, wait, poll time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis lock store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	if wait < 0 {
		wait = 0
	}
	return &RedisLocker{store: store, ttl: ttl, wait: wait, poll: poll}, nil
}

// Lock polls for the lock; ErrLockTimeout is returned once wait is exhausted.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	var token string
	errBusy := errors.New("lock busy")

	backoff := retry.WithMaxDuration(l.wait, retry.NewConstant(l.poll))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		t, ok, err := l.store.AcquireLock(ctx, key, l.ttl)
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return retry.RetryableError(errBusy)
		}
		token = t
		return nil
	})
	if err != nil {
		if errors.Is(err, errBusy) {
			return nil, ErrLockTimeout
		}
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(context.WithoutCancel(ctx), key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// The request context may already be canceled here.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_, _ = l.store.ReleaseLock(releaseCtx, key, token)
		})
	}, nil
}

// keepAlive extends the lock until stop is closed or the lock is found to
// belong to someone else. Store errors are retried on the next tick.
func (l *RedisLocker) keepAlive(ctx context.Context, key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	every := l.ttl / 3
	if every <= 0 {
		every = l.ttl
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, every)
			owned, err := l.store.RefreshLock(refreshCtx, key, token, l.ttl)
			cancel()
			if err == nil && !owned {
				return
			}
		}
	}
}
