package domain

import "time"

// Plan enumerates billing tiers.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// QuotaDimension names a plan-limited resource.
type QuotaDimension string

const (
	QuotaAIAnalyses QuotaDimension = "ai_analyses_month"
	QuotaStorageMB  QuotaDimension = "storage_mb"
	QuotaExports    QuotaDimension = "exports_month"
)

// planLimits is the fixed quota table keyed by (plan, dimension).
var planLimits = map[Plan]map[QuotaDimension]int{
	PlanFree: {
		QuotaAIAnalyses: 50,
		QuotaStorageMB:  500,
		QuotaExports:    2,
	},
	PlanPro: {
		QuotaAIAnalyses: 1000,
		QuotaStorageMB:  10_240,
		QuotaExports:    20,
	},
	PlanEnterprise: {
		QuotaAIAnalyses: 20_000,
		QuotaStorageMB:  102_400,
		QuotaExports:    200,
	},
}

// PlanLimit returns the quota for a plan and dimension. Unknown plans fall
// back to the free tier; a false second return means the dimension is
// unlimited for the plan.
func PlanLimit(plan Plan, dim QuotaDimension) (int, bool) {
	limits, ok := planLimits[plan]
	if !ok {
		limits = planLimits[PlanFree]
	}
	limit, ok := limits[dim]
	return limit, ok
}

// Organization is a tenant account with billing-grade usage counters. The
// counters live in the durable store; the engine reads them for plan checks
// and increments them on completed work.
type Organization struct {
	ID                  string
	Name                string
	Plan                Plan
	DocumentCount       int
	StorageUsedMB       int
	AIAnalysesThisMonth int
	ExportsThisMonth    int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Usage returns the organization's current usage along a quota dimension.
func (o *Organization) Usage(dim QuotaDimension) int {
	switch dim {
	case QuotaAIAnalyses:
		return o.AIAnalysesThisMonth
	case QuotaStorageMB:
		return o.StorageUsedMB
	case QuotaExports:
		return o.ExportsThisMonth
	}
	return 0
}
