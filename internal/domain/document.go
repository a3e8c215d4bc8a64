package domain

import "time"

// Document is the subject most job types operate on. Only the fields the
// engine and its processors need are modeled here; the full document schema
// belongs to the storage service.
type Document struct {
	ID                  string    `json:"id"`
	OrganizationID      string    `json:"organizationId"`
	Title               string    `json:"title"`
	RawContent          string    `json:"rawContent,omitempty"`
	ExtractedText       string    `json:"extractedText,omitempty"`
	WordCount           int       `json:"wordCount"`
	Summary             string    `json:"summary,omitempty"`
	KeyTopics           []string  `json:"keyTopics,omitempty"`
	DocumentType        string    `json:"documentType,omitempty"`
	Category            string    `json:"category,omitempty"`
	AnalysisConfidence  float64   `json:"analysisConfidence"`
	EmbeddingsGenerated bool      `json:"embeddingsGenerated"`
	SizeMB              int       `json:"sizeMb"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}
