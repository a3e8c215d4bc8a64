package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"server/internal/domain"
)

// staleWindowAge is how long a tenant's admission window may sit idle before
// the sweeper drops it to bound memory.
const staleWindowAge = 25 * time.Hour

// QuotaGuard enforces per-tenant admission rates and plan-based resource
// quotas. Admission counters are process-local and rolling; plan quotas read
// the billing-grade usage figures from the durable organization record.
type QuotaGuard struct {
	mu         sync.Mutex
	maxPerHour int
	maxPerDay  int
	windows    map[string]*admissionWindow
	orgs       domain.OrganizationRepository
	now        func() time.Time
}

type admissionWindow struct {
	hourCount     int
	dayCount      int
	lastHourReset time.Time
	lastDayReset  time.Time
	lastSeen      time.Time
}

// NewQuotaGuard constructs a guard over the given organization collaborator.
func NewQuotaGuard(orgs domain.OrganizationRepository, maxPerHour, maxPerDay int) *QuotaGuard {
	return &QuotaGuard{
		maxPerHour: maxPerHour,
		maxPerDay:  maxPerDay,
		windows:    make(map[string]*admissionWindow),
		orgs:       orgs,
		now:        time.Now,
	}
}

// CheckAdmission validates and counts one job admission for the tenant. It
// runs once, at enqueue time only; processing-time re-validation must use
// CheckPlan, which does not touch these counters. The system tenant bypasses
// admission limits entirely.
func (g *QuotaGuard) CheckAdmission(orgID string) error {
	if orgID == domain.OrganizationSystem {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	w, ok := g.windows[orgID]
	if !ok {
		w = &admissionWindow{lastHourReset: now, lastDayReset: now}
		g.windows[orgID] = w
	}
	if now.Sub(w.lastHourReset) > time.Hour {
		w.hourCount = 0
		w.lastHourReset = now
	}
	if now.Sub(w.lastDayReset) > 24*time.Hour {
		w.dayCount = 0
		w.lastDayReset = now
	}
	w.lastSeen = now

	if w.hourCount >= g.maxPerHour {
		return fmt.Errorf("hourly job limit reached for organization %s: %w", orgID, domain.ErrQuotaExceeded)
	}
	if w.dayCount >= g.maxPerDay {
		return fmt.Errorf("daily job limit reached for organization %s: %w", orgID, domain.ErrQuotaExceeded)
	}

	w.hourCount++
	w.dayCount++
	return nil
}

// CheckPlan verifies the tenant's plan quota along the resource dimension the
// job type consumes. It is read-only and safe to call both at enqueue and at
// processing time. Job types without a plan dimension always pass.
func (g *QuotaGuard) CheckPlan(ctx context.Context, orgID string, jobType domain.JobType) error {
	if orgID == domain.OrganizationSystem {
		return nil
	}
	dim, ok := quotaDimensionFor(jobType)
	if !ok {
		return nil
	}

	org, err := g.orgs.GetByID(ctx, orgID)
	if err != nil {
		return fmt.Errorf("load organization %s: %w", orgID, err)
	}

	limit, limited := domain.PlanLimit(org.Plan, dim)
	if !limited {
		return nil
	}
	if org.Usage(dim) >= limit {
		return fmt.Errorf("plan %s limit reached for %s: %w", org.Plan, dim, domain.ErrQuotaExceeded)
	}
	return nil
}

// Sweep drops admission windows with no activity for over 25 hours.
func (g *QuotaGuard) Sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-staleWindowAge)
	for orgID, w := range g.windows {
		if w.lastSeen.Before(cutoff) {
			delete(g.windows, orgID)
		}
	}
}

// quotaDimensionFor maps a job type to the plan resource it consumes.
func quotaDimensionFor(jobType domain.JobType) (domain.QuotaDimension, bool) {
	switch jobType {
	case domain.JobTypeAnalysis, domain.JobTypeEmbeddingGeneration:
		return domain.QuotaAIAnalyses, true
	case domain.JobTypeBulkUpload:
		return domain.QuotaStorageMB, true
	case domain.JobTypeDataExport:
		return domain.QuotaExports, true
	}
	return "", false
}
