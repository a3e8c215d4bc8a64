package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"server/internal/domain"
	"server/internal/engine"
)

const (
	defaultAuditWindowDays = 7
	auditActivityLimit     = 1000
)

type auditPayload struct {
	WindowDays int `json:"windowDays"`
}

// AuditReport summarizes a tenant's recent activity log into a per-action
// count report stored on the job result.
type AuditReport struct {
	orgs domain.OrganizationRepository
	now  func() time.Time
}

func NewAuditReport(orgs domain.OrganizationRepository) *AuditReport {
	return &AuditReport{orgs: orgs, now: time.Now}
}

func (p *AuditReport) Type() domain.JobType {
	return domain.JobTypeAuditReport
}

func (p *AuditReport) ValidatePayload(payload json.RawMessage) error {
	if len(payload) == 0 {
		return nil
	}
	req, err := decodeAuditPayload(payload)
	if err != nil {
		return err
	}
	if req.WindowDays < 0 {
		return fmt.Errorf("negative window: %w", domain.ErrInvalidPayload)
	}
	return nil
}

func (p *AuditReport) Process(ctx context.Context, job *domain.Job) (engine.Result, error) {
	window := defaultAuditWindowDays
	if len(job.Payload) > 0 {
		req, err := decodeAuditPayload(job.Payload)
		if err != nil {
			return engine.Result{}, err
		}
		if req.WindowDays > 0 {
			window = req.WindowDays
		}
	}

	since := p.now().AddDate(0, 0, -window)
	entries, err := p.orgs.ListActivity(ctx, job.OrganizationID, since, auditActivityLimit)
	if err != nil {
		return engine.Result{}, fmt.Errorf("list activity: %w", err)
	}

	actionCounts := map[string]int{}
	userCounts := map[string]int{}
	for _, entry := range entries {
		actionCounts[entry.Action]++
		if entry.UserID != "" {
			userCounts[entry.UserID]++
		}
	}

	output, err := json.Marshal(map[string]any{
		"since":        since.UTC().Format(time.RFC3339),
		"windowDays":   window,
		"totalEntries": len(entries),
		"byAction":     actionCounts,
		"byUser":       userCounts,
	})
	if err != nil {
		return engine.Result{}, err
	}
	return engine.Result{Output: output}, nil
}

func decodeAuditPayload(payload json.RawMessage) (auditPayload, error) {
	var req auditPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return req, nil
}
