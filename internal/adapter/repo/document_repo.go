package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// DocumentRepositoryPG implements domain.DocumentRepository backed by PostgreSQL.
type DocumentRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepositoryPG {
	return &DocumentRepositoryPG{pool: pool}
}

// Text and analysis columns are NULL until the pipeline fills them in, so
// reads coalesce them to zero values.
const documentColumns = `id, organization_id, title, raw_content, COALESCE(extracted_text, ''), COALESCE(word_count, 0),
COALESCE(summary, ''), key_topics, COALESCE(document_type, ''), COALESCE(category, ''),
COALESCE(analysis_confidence, 0), embeddings_generated, size_mb, created_at, updated_at`

// Create inserts a new document record.
func (r *DocumentRepositoryPG) Create(ctx context.Context, doc *domain.Document) error {
	query := `
INSERT INTO documents (id, organization_id, title, raw_content, size_mb)
VALUES ($1, $2, $3, $4, $5);
`
	_, err := r.pool.Exec(ctx, query,
		doc.ID,
		doc.OrganizationID,
		doc.Title,
		doc.RawContent,
		doc.SizeMB,
	)
	return err
}

// GetByID fetches a document by its identifier.
func (r *DocumentRepositoryPG) GetByID(ctx context.Context, docID string) (*domain.Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, docID)
	return scanDocument(row)
}

// UpdateExtraction stores the extracted plain text and word count.
func (r *DocumentRepositoryPG) UpdateExtraction(ctx context.Context, docID, text string, wordCount int) error {
	_, err := r.pool.Exec(ctx, `
UPDATE documents
SET extracted_text = $2, word_count = $3, updated_at = NOW()
WHERE id = $1;
`, docID, text, wordCount)
	return err
}

// UpdateAnalysis stores the AI analysis outcome.
func (r *DocumentRepositoryPG) UpdateAnalysis(ctx context.Context, docID string, upd domain.AnalysisUpdate) error {
	_, err := r.pool.Exec(ctx, `
UPDATE documents
SET summary = $2,
    key_topics = $3,
    document_type = $4,
    category = $5,
    analysis_confidence = $6,
    word_count = $7,
    updated_at = NOW()
WHERE id = $1;
`, docID, upd.Summary, upd.KeyTopics, upd.DocumentType, upd.Category, upd.Confidence, upd.WordCount)
	return err
}

// SaveEmbedding persists the embedding vector and flips the generated flag.
func (r *DocumentRepositoryPG) SaveEmbedding(ctx context.Context, docID string, vector []float32) error {
	_, err := r.pool.Exec(ctx, `
UPDATE documents
SET embedding = $2, embeddings_generated = TRUE, updated_at = NOW()
WHERE id = $1;
`, docID, vector)
	return err
}

// ListByOrganization lists a tenant's documents, newest first.
func (r *DocumentRepositoryPG) ListByOrganization(ctx context.Context, orgID string, limit int) ([]*domain.Document, error) {
	query := `
SELECT ` + documentColumns + `
FROM documents
WHERE organization_id = $1
ORDER BY created_at DESC
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var doc domain.Document
	if err := row.Scan(
		&doc.ID,
		&doc.OrganizationID,
		&doc.Title,
		&doc.RawContent,
		&doc.ExtractedText,
		&doc.WordCount,
		&doc.Summary,
		&doc.KeyTopics,
		&doc.DocumentType,
		&doc.Category,
		&doc.AnalysisConfidence,
		&doc.EmbeddingsGenerated,
		&doc.SizeMB,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}
