// Package credentials reads and writes provider API keys kept in the
// database, so a deployment can rotate keys without restarting the worker.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const ProviderAI = "ai"

const (
	selectTokenSQL = `
SELECT token
FROM integration_credentials
WHERE provider = $1
ORDER BY updated_at DESC
LIMIT 1`

	upsertTokenSQL = `
INSERT INTO integration_credentials (provider, token, properties, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (provider)
DO UPDATE SET token = EXCLUDED.token, properties = EXCLUDED.properties, updated_at = NOW()`
)

// Executor is the subset of pgxpool.Pool the store needs.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

type Store struct {
	sql Executor
}

func NewStore(sql Executor) *Store {
	return &Store{sql: sql}
}

// AIAPIKey returns the stored provider key, or "" when none is configured.
func (s *Store) AIAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderAI)
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, selectTokenSQL, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetAIAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key is required")
	}
	return s.upsert(ctx, ProviderAI, key, nil)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, upsertTokenSQL, provider, token, raw)
	return err
}
