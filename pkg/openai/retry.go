package openai

import (
	"errors"
	"net/http"
	"time"

	sdk "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
)

// ErrRateLimited marks a completion that was still throttled after the last attempt.
var ErrRateLimited = errors.New("ai provider rate limited")

// RetryPolicy bounds how a completion is retried.
type RetryPolicy struct {
	// MaxAttempts counts the first call. Values below 1 mean a single attempt.
	MaxAttempts int
	// Delay returns the wait after the given failed attempt (1-based).
	Delay func(attempt int) time.Duration
	// Retryable decides whether a failed attempt may be repeated.
	Retryable func(error) bool
}

// DefaultRetryPolicy retries throttled calls with a linearly growing delay:
// base after the first failure, 2*base after the second, and so on.
func DefaultRetryPolicy(maxAttempts int, base time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Delay:       LinearDelay(base),
		Retryable:   IsRateLimited,
	}
}

// LinearDelay returns attempt*base.
func LinearDelay(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable == nil {
		return IsRateLimited(err)
	}
	return p.Retryable(err)
}

// delayAfter is the wait following the given failed attempt (1-based).
func (p RetryPolicy) delayAfter(attempt int) time.Duration {
	if p.Delay == nil {
		return 0
	}
	return p.Delay(attempt)
}

// backoff waits whatever the failed attempt stored in wait.
func (p RetryPolicy) backoff(wait *time.Duration) retry.Backoff {
	next := retry.BackoffFunc(func() (time.Duration, bool) {
		return *wait, false
	})
	return retry.WithMaxRetries(uint64(p.attempts()-1), next)
}

// IsRateLimited reports whether err is an HTTP 429 from the provider.
func IsRateLimited(err error) bool {
	return statusCode(err) == http.StatusTooManyRequests
}

func statusCode(err error) int {
	var apiErr *sdk.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *sdk.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
