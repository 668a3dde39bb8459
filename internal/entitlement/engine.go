// Package entitlement decides whether an account may issue another AI request.
// Everything here is pure: callers supply the account snapshot, the usage
// count for the current window and the instant to evaluate at.
package entitlement

import (
	"time"

	"github.com/forsocials/replyriser-backend/pkg/db/models"
	"github.com/forsocials/replyriser-backend/pkg/enums"
)

// TrialDuration is the length of the free trial (259,200,000 ms).
const TrialDuration = 72 * time.Hour

// Decision is the outcome of Evaluate.
type Decision struct {
	Allowed   bool
	Reason    enums.DenialReason
	Plan      enums.Plan
	Limit     int64
	Used      int64
	Remaining int64
	TimeLeft  TimeLeft
}

// WindowStart returns the first instant counted toward the account's quota.
// The boolean is false for a free account whose trial has not started.
func WindowStart(account models.Account, now time.Time) (time.Time, bool) {
	if !account.SubscriptionPlan.IsPaid() {
		if account.TrialStart == nil {
			return time.Time{}, false
		}
		return *account.TrialStart, true
	}
	if account.SubscriptionStart != nil {
		return *account.SubscriptionStart, true
	}
	return startOfMonth(now), true
}

// Evaluate computes the entitlement decision for account at now.
func Evaluate(account models.Account, usageCount int64, now time.Time) Decision {
	if usageCount < 0 {
		usageCount = 0
	}
	if !account.SubscriptionPlan.IsPaid() {
		return evaluateTrial(account, usageCount, now)
	}
	return evaluatePaid(account, usageCount, now)
}

func evaluateTrial(account models.Account, usageCount int64, now time.Time) Decision {
	limit := LimitFor(enums.PlanFree)
	d := Decision{Plan: enums.PlanFree, Limit: limit}

	if account.TrialStart == nil {
		d.Allowed = true
		d.Remaining = limit
		d.TimeLeft = NewTimeLeft(TrialDuration)
		return d
	}

	d.Used = usageCount
	elapsed := now.Sub(*account.TrialStart)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > TrialDuration {
		d.Reason = enums.DenialReasonTrialExpired
		d.TimeLeft = ExpiredTimeLeft()
		return d
	}

	d.TimeLeft = NewTimeLeft(TrialDuration - elapsed)
	d.Remaining = remaining(limit, usageCount)
	if usageCount >= limit {
		d.Reason = enums.DenialReasonLimitReached
		return d
	}
	d.Allowed = true
	return d
}

func evaluatePaid(account models.Account, usageCount int64, now time.Time) Decision {
	limit := LimitFor(account.SubscriptionPlan)
	d := Decision{
		Plan:      account.SubscriptionPlan,
		Limit:     limit,
		Used:      usageCount,
		Remaining: remaining(limit, usageCount),
	}

	end := startOfMonth(now).AddDate(0, 1, 0)
	if account.SubscriptionEnd != nil {
		end = *account.SubscriptionEnd
	}
	left := end.Sub(now)
	if left <= 0 {
		// An elapsed paid period denies like an elapsed trial.
		d.Remaining = 0
		d.TimeLeft = ExpiredTimeLeft()
		d.Reason = enums.DenialReasonTrialExpired
		return d
	}
	d.TimeLeft = NewTimeLeft(left)

	if d.Remaining == 0 {
		d.Reason = enums.DenialReasonLimitReached
		return d
	}
	d.Allowed = true
	return d
}

func remaining(limit, used int64) int64 {
	if used >= limit {
		return 0
	}
	return limit - used
}

func startOfMonth(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month(), 1, 0, 0, 0, 0, time.UTC)
}
