package enums

import (
	"fmt"
	"strings"
)

// Plan is the subscription tier attached to an account.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanStarter  Plan = "starter"
	PlanPro      Plan = "pro"
	PlanPower    Plan = "power"
	PlanLifetime Plan = "lifetime"
)

var validPlans = []Plan{
	PlanFree,
	PlanStarter,
	PlanPro,
	PlanPower,
	PlanLifetime,
}

// String implements fmt.Stringer.
func (p Plan) String() string {
	return string(p)
}

// IsValid reports whether the value is a known Plan.
func (p Plan) IsValid() bool {
	for _, candidate := range validPlans {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsPaid reports whether the plan is anything other than the free trial.
func (p Plan) IsPaid() bool {
	return p.IsValid() && p != PlanFree
}

// ParsePlan converts raw input into a Plan. Matching is case-insensitive.
func ParsePlan(value string) (Plan, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPlans {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan %q", value)
}
