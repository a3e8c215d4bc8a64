// Package processors contains the job handlers registered with the engine,
// one per job type. Every processor validates its own payload shape at
// enqueue time, short-circuits work that already happened, and reports the
// provider calls it actually made so the shared daily budget stays honest.
package processors

import (
	"context"
	"encoding/json"
	"fmt"

	"server/internal/domain"
	"server/internal/providers/ai"
)

// AIClient is the slice of the provider client the processors need.
type AIClient interface {
	AnalyzeContent(ctx context.Context, text string) (*ai.Analysis, error)
	GenerateEmbedding(ctx context.Context, text, purpose string) ([]float32, error)
}

// documentPayload is the shared payload shape of document-scoped job types.
type documentPayload struct {
	DocumentID string `json:"documentId"`
}

func decodeDocumentPayload(payload json.RawMessage) (documentPayload, error) {
	var p documentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if p.DocumentID == "" {
		return p, fmt.Errorf("%w: documentId is required", domain.ErrInvalidPayload)
	}
	return p, nil
}
