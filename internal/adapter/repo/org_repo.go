package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// OrganizationRepositoryPG implements domain.OrganizationRepository backed by PostgreSQL.
type OrganizationRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewOrganizationRepository creates a new organization repository.
func NewOrganizationRepository(pool *pgxpool.Pool) *OrganizationRepositoryPG {
	return &OrganizationRepositoryPG{pool: pool}
}

// GetByID fetches an organization with its usage counters.
func (r *OrganizationRepositoryPG) GetByID(ctx context.Context, orgID string) (*domain.Organization, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, name, plan, document_count, storage_used_mb, ai_analyses_this_month, exports_this_month, created_at, updated_at
FROM organizations
WHERE id = $1;
`, orgID)

	var org domain.Organization
	if err := row.Scan(
		&org.ID,
		&org.Name,
		&org.Plan,
		&org.DocumentCount,
		&org.StorageUsedMB,
		&org.AIAnalysesThisMonth,
		&org.ExportsThisMonth,
		&org.CreatedAt,
		&org.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

// IncrementUsage bumps one billing-grade usage counter.
func (r *OrganizationRepositoryPG) IncrementUsage(ctx context.Context, orgID string, dim domain.QuotaDimension, delta int) error {
	column, err := usageColumn(dim)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
UPDATE organizations
SET %s = %s + $2, updated_at = NOW()
WHERE id = $1;
`, column, column)
	tag, err := r.pool.Exec(ctx, query, orgID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// LogActivity appends one audit log entry.
func (r *OrganizationRepositoryPG) LogActivity(ctx context.Context, entry domain.ActivityEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal activity details: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO activity_log (organization_id, user_id, action, details, created_at)
VALUES ($1, $2, $3, $4, COALESCE($5, NOW()));
`, entry.OrganizationID, entry.UserID, entry.Action, details, nullableTime(entry.CreatedAt))
	return err
}

// ListActivity returns a tenant's audit entries since the given time.
func (r *OrganizationRepositoryPG) ListActivity(ctx context.Context, orgID string, since time.Time, limit int) ([]domain.ActivityEntry, error) {
	rows, err := r.pool.Query(ctx, `
SELECT organization_id, user_id, action, details, created_at
FROM activity_log
WHERE organization_id = $1 AND created_at >= $2
ORDER BY created_at DESC
LIMIT $3;
`, orgID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ActivityEntry
	for rows.Next() {
		var (
			entry   domain.ActivityEntry
			details []byte
		)
		if err := rows.Scan(&entry.OrganizationID, &entry.UserID, &entry.Action, &details, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("decode activity details: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// usageColumn maps a quota dimension to its counter column. The mapping is a
// fixed table so no caller-supplied text ever reaches the SQL.
func usageColumn(dim domain.QuotaDimension) (string, error) {
	switch dim {
	case domain.QuotaAIAnalyses:
		return "ai_analyses_this_month", nil
	case domain.QuotaStorageMB:
		return "storage_used_mb", nil
	case domain.QuotaExports:
		return "exports_this_month", nil
	}
	return "", fmt.Errorf("unknown usage dimension %q", dim)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
