package model

import "time"

// RequirementStatus is the validation lifecycle state of a requirement
type RequirementStatus string

const (
	RequirementPending  RequirementStatus = "pending"
	RequirementAccepted RequirementStatus = "accepted"
	RequirementRejected RequirementStatus = "rejected"
)

// Requirement is a single extracted normative statement with its
// supporting citations. Owned by exactly one job; created by the
// extractor, mutated by the validator, never deleted (soft lifecycle
// via status).
type Requirement struct {
	ID             string    `json:"id"` // UUID
	JobID          string    `json:"job_id"`
	RequirementID  string    `json:"requirement_id,omitempty"` // Extractor-assigned label, e.g. "REQ-007"
	Text           string    `json:"text"`
	Name           string    `json:"name,omitempty"`
	Type           string    `json:"type,omitempty"`
	Priority       string    `json:"priority,omitempty"`
	SourceDocument string    `json:"source_document,omitempty"`
	SourceLocation *Location `json:"source_location,omitempty"`
	GoBDRelevant   bool      `json:"gobd_relevant"`
	GDPRRelevant   bool      `json:"gdpr_relevant"`
	Reasoning      string    `json:"reasoning,omitempty"`
	ResearchNotes  string    `json:"research_notes,omitempty"`
	Confidence     float64   `json:"confidence"`
	Tags           []string  `json:"tags,omitempty"`

	Status           RequirementStatus `json:"status"`
	ValidationResult string            `json:"validation_result,omitempty"`
	RejectionReason  string            `json:"rejection_reason,omitempty"`
	RetryCount       int               `json:"retry_count"`
	LastError        string            `json:"last_error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
}

// Terminal reports whether the requirement has reached a final state
func (r *Requirement) Terminal() bool {
	return r.Status == RequirementAccepted || r.Status == RequirementRejected
}
