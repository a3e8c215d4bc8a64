package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"server/internal/domain"
	"server/internal/engine"
)

// ContentExtraction derives searchable plain text from a document's raw
// content. It makes no provider calls, so its pool is not gated by the
// shared rate budget and may run wider than the AI pools.
type ContentExtraction struct {
	docs domain.DocumentRepository
}

// NewContentExtraction constructs the processor.
func NewContentExtraction(docs domain.DocumentRepository) *ContentExtraction {
	return &ContentExtraction{docs: docs}
}

func (p *ContentExtraction) Type() domain.JobType {
	return domain.JobTypeContentExtraction
}

func (p *ContentExtraction) ValidatePayload(payload json.RawMessage) error {
	_, err := decodeDocumentPayload(payload)
	return err
}

func (p *ContentExtraction) Process(ctx context.Context, job *domain.Job) (engine.Result, error) {
	payload, err := decodeDocumentPayload(job.Payload)
	if err != nil {
		return engine.Result{}, err
	}

	doc, err := p.docs.GetByID(ctx, payload.DocumentID)
	if err != nil {
		return engine.Result{}, fmt.Errorf("load document %s: %w", payload.DocumentID, err)
	}

	// Re-running extraction over an already-extracted document is a no-op.
	if doc.ExtractedText != "" {
		return extractionResult(doc.WordCount)
	}

	text := normalizeText(doc.RawContent)
	wordCount := len(strings.Fields(text))
	if err := p.docs.UpdateExtraction(ctx, doc.ID, text, wordCount); err != nil {
		return engine.Result{}, fmt.Errorf("store extraction: %w", err)
	}

	return extractionResult(wordCount)
}

func extractionResult(wordCount int) (engine.Result, error) {
	output, err := json.Marshal(map[string]any{"wordCount": wordCount})
	if err != nil {
		return engine.Result{}, err
	}
	return engine.Result{Output: output}, nil
}

// normalizeText produces NFC-normalized plain text with control characters
// stripped and runs of whitespace collapsed to single spaces.
func normalizeText(raw string) string {
	normalized := norm.NFC.String(raw)
	var b strings.Builder
	b.Grow(len(normalized))
	lastSpace := true
	for _, r := range normalized {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

var titleCaser = cases.Title(language.English)

// titleFromText derives a display title from the first words of extracted
// text, for documents uploaded without one.
func titleFromText(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	if len(words) == 0 {
		return "Untitled Document"
	}
	return titleCaser.String(strings.Join(words, " "))
}
