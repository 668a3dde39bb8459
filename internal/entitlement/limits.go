package entitlement

import "github.com/forsocials/replyriser-backend/pkg/enums"

// planLimits is the per-window request quota for each plan.
var planLimits = map[enums.Plan]int64{
	enums.PlanFree:     20,
	enums.PlanStarter:  500,
	enums.PlanPro:      2500,
	enums.PlanPower:    10000,
	enums.PlanLifetime: 2500,
}

// LimitFor returns the quota for plan. Unknown plans get the free quota.
func LimitFor(plan enums.Plan) int64 {
	if limit, ok := planLimits[plan]; ok {
		return limit
	}
	return planLimits[enums.PlanFree]
}
