package model

import "time"

// VerificationStatus is the lifecycle state of a citation
type VerificationStatus string

const (
	CitationPending  VerificationStatus = "pending"  // Not yet verified
	CitationClaimed  VerificationStatus = "claimed"  // Leased by an in-flight worker
	CitationVerified VerificationStatus = "verified" // Quote located and (if judged) relevant
	CitationFailed   VerificationStatus = "failed"   // Terminal failure, see FailureKind
)

// FailureKind discriminates why a citation failed. The flat "failed"
// status alone conflates retryable backend errors with content
// judgments, so every failed citation also carries one of these.
type FailureKind string

const (
	FailureNone              FailureKind = ""
	FailureContentMismatch   FailureKind = "content_mismatch"   // Quote not locatable in source
	FailureRelevanceMismatch FailureKind = "relevance_mismatch" // Quote located but does not support the claim
	FailureInfraError        FailureKind = "infra_error"        // Backend/operational failure, retryable
	FailureSourceNotFound    FailureKind = "source_not_found"   // Dangling source reference, fatal configuration error
)

// Citation is a claimed quote-to-source mapping, the unit of
// verification. Created by the extractor alongside its requirement,
// mutated once by the verifier (plus explicit re-verification after
// an infrastructure failure).
type Citation struct {
	ID            int64              `json:"id"`
	RequirementID string             `json:"requirement_id"`
	Claim         string             `json:"claim"`          // The assertion being supported
	VerbatimQuote string             `json:"verbatim_quote"` // Exact string claimed to appear in the source
	QuoteContext  string             `json:"quote_context,omitempty"`
	QuoteLanguage string             `json:"quote_language,omitempty"`
	SourceID      int64              `json:"source_id"`
	Locator       *Location          `json:"locator,omitempty"` // Where the extractor claims the quote lives
	Confidence    float64            `json:"confidence"`        // Extractor's self-reported confidence, not similarity

	Status             VerificationStatus `json:"verification_status"`
	FailureKind        FailureKind        `json:"failure_kind,omitempty"`
	Notes              string             `json:"verification_notes,omitempty"`
	SimilarityScore    float64            `json:"similarity_score"`
	MatchedLocation    *Location          `json:"matched_location,omitempty"`
	RelevanceReasoning string             `json:"relevance_reasoning,omitempty"`
	ExtractionMethod   string             `json:"extraction_method,omitempty"`

	ClaimedAt *time.Time `json:"claimed_at,omitempty"` // Lease timestamp while claimed
	CreatedAt time.Time  `json:"created_at"`
	CreatedBy string     `json:"created_by,omitempty"`
}

// Location is a pointer into source content
type Location struct {
	Page   int `json:"page,omitempty"`   // 1-based page from "--- Page N ---" markers
	Offset int `json:"offset,omitempty"` // Rune offset within the source content
}

// Terminal reports whether the citation has reached a final verdict.
// An infra-error failure is terminal for the single attempt but may be
// re-verified explicitly.
func (c *Citation) Terminal() bool {
	return c.Status == CitationVerified || c.Status == CitationFailed
}

// Retryable reports whether a failed citation may be re-verified.
// Only operational failures qualify; content judgments are final
// absent new evidence.
func (c *Citation) Retryable() bool {
	return c.Status == CitationFailed && c.FailureKind == FailureInfraError
}
