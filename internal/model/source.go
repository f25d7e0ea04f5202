package model

import "time"

// SourceType classifies where a source's content came from
type SourceType string

const (
	SourceTypeDocument SourceType = "document" // Local file (PDF extraction, plain text)
	SourceTypeWebsite  SourceType = "website"  // Previously fetched web page
)

// Source is a content-addressed document or page that citations are
// verified against. Content with the same hash is stored exactly once.
type Source struct {
	ID          int64          `json:"id"`
	Type        SourceType     `json:"type"`
	Identifier  string         `json:"identifier"` // URI or file path
	Name        string         `json:"name,omitempty"`
	Version     string         `json:"version,omitempty"`
	Content     string         `json:"content"`
	ContentHash string         `json:"content_hash"` // SHA-256 hex of Content
	Metadata    SourceMetadata `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SourceMetadata carries provenance recorded at ingestion time
type SourceMetadata struct {
	URL        string    `json:"url,omitempty"`
	Title      string    `json:"title,omitempty"`
	FetchedAt  time.Time `json:"fetched_at,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
}
