// Package verify implements the citation verification engine: given a
// claim, a verbatim quote and a source document, decide whether the
// quote is an accurate, locatable excerpt of the source and whether it
// substantiates the claim.
package verify

import (
	"context"
	"fmt"

	"github.com/ppiankov/attest/internal/llm"
	"github.com/ppiankov/attest/internal/match"
	"github.com/ppiankov/attest/internal/model"
)

// OutcomeKind discriminates verification results. Operational failures
// are a distinct variant from content judgments: a backend 404 says
// nothing about whether the quote exists in the source.
type OutcomeKind int

const (
	// OutcomeVerified means the quote was located and, if a judge is
	// configured, substantiates the claim
	OutcomeVerified OutcomeKind = iota

	// OutcomeContentMismatch means the quote is not locatable in the
	// source above the similarity threshold. Terminal.
	OutcomeContentMismatch

	// OutcomeRelevanceMismatch means the quote was located but does
	// not substantiate the claim. Terminal.
	OutcomeRelevanceMismatch

	// OutcomeInfraError means the verification itself failed for
	// operational reasons (backend unavailable, timeout). Retryable.
	OutcomeInfraError

	// OutcomeSourceNotFound means the citation references a source
	// that does not exist. Fatal configuration error, not retryable.
	OutcomeSourceNotFound
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeVerified:
		return "verified"
	case OutcomeContentMismatch:
		return "content_mismatch"
	case OutcomeRelevanceMismatch:
		return "relevance_mismatch"
	case OutcomeInfraError:
		return "infra_error"
	case OutcomeSourceNotFound:
		return "source_not_found"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of verifying one citation
type Outcome struct {
	Kind     OutcomeKind
	Score    float64         // Best similarity found, 1.0 for exact matches
	Location *model.Location // Where the (best) match was found, nil when nothing matched
	Notes    string          // Human-readable narration of the verdict

	// Reasoning is the judge's justification, set when the relevance
	// pass ran
	Reasoning string

	// Cause is the underlying operational error for InfraError outcomes
	Cause error

	// TokensUsed and Requests account for backend usage on the owning job
	TokensUsed int
	Requests   int
}

// Retryable reports whether re-running verification could change the
// outcome without new evidence
func (o Outcome) Retryable() bool {
	return o.Kind == OutcomeInfraError
}

// StatusAndKind maps the outcome onto the stored discriminated union.
func (o Outcome) StatusAndKind() (model.VerificationStatus, model.FailureKind) {
	switch o.Kind {
	case OutcomeVerified:
		return model.CitationVerified, model.FailureNone
	case OutcomeContentMismatch:
		return model.CitationFailed, model.FailureContentMismatch
	case OutcomeRelevanceMismatch:
		return model.CitationFailed, model.FailureRelevanceMismatch
	case OutcomeSourceNotFound:
		return model.CitationFailed, model.FailureSourceNotFound
	default:
		return model.CitationFailed, model.FailureInfraError
	}
}

// Verifier locates quotes and classifies citations. The judge is
// optional; without one, verdicts are purely lexical.
type Verifier struct {
	threshold float64
	slack     int
	judge     llm.Judge
}

// New creates a verifier. A nil judge disables the relevance pass.
func New(cfg model.VerifyConfig, judge llm.Judge) *Verifier {
	threshold := cfg.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.65
	}
	slack := cfg.WindowSlack
	if slack < 0 {
		slack = 0
	}
	return &Verifier{
		threshold: threshold,
		slack:     slack,
		judge:     judge,
	}
}

// Threshold returns the fuzzy-match acceptance floor
func (v *Verifier) Threshold() float64 {
	return v.threshold
}

// Verify runs the three verification passes for one citation against
// its preprocessed source document:
//
//  1. exact whitespace-normalized substring search
//  2. fuzzy token-overlap over sliding windows, claimed page first
//  3. relevance judgment of the located text against the claim
//
// The passes never mutate anything; persisting the outcome is the
// caller's job.
func (v *Verifier) Verify(ctx context.Context, c *model.Citation, doc *match.Doc) Outcome {
	if c.VerbatimQuote == "" {
		return Outcome{
			Kind:  OutcomeContentMismatch,
			Notes: "Citation has no verbatim quote to verify.",
		}
	}

	// Pass 1: exact match.
	if m, ok := doc.Exact(c.VerbatimQuote); ok {
		loc := &model.Location{Page: m.Page, Offset: m.Offset}
		notes := fmt.Sprintf("Exact match at offset %d.", m.Offset)
		if m.Page > 0 {
			notes = fmt.Sprintf("Exact match on page %d (offset %d).", m.Page, m.Offset)
		}
		return v.judgeRelevance(ctx, c, m, Outcome{
			Kind:     OutcomeVerified,
			Score:    1.0,
			Location: loc,
			Notes:    notes,
		})
	}

	// Pass 2: fuzzy match near the claimed locator, then document-wide.
	hintPage := 0
	if c.Locator != nil {
		hintPage = c.Locator.Page
	}
	best := doc.Fuzzy(c.VerbatimQuote, v.slack, hintPage, v.threshold)
	if best == nil {
		return Outcome{
			Kind:  OutcomeContentMismatch,
			Notes: "The quote does not appear anywhere in the source and no comparable passage was found.",
		}
	}

	loc := &model.Location{Page: best.Page, Offset: best.Offset}
	if best.Score < v.threshold {
		where := fmt.Sprintf("offset %d", best.Offset)
		if best.Page > 0 {
			where = fmt.Sprintf("page %d", best.Page)
		}
		return Outcome{
			Kind:     OutcomeContentMismatch,
			Score:    best.Score,
			Location: loc,
			Notes: fmt.Sprintf(
				"The exact phrase does not appear anywhere in the source; the closest passage (%s) has similarity %.2f, below the %.2f threshold.",
				where, best.Score, v.threshold),
		}
	}

	notes := fmt.Sprintf("Fuzzy match with similarity %.2f at offset %d.", best.Score, best.Offset)
	if best.Page > 0 {
		notes = fmt.Sprintf("Fuzzy match with similarity %.2f on page %d.", best.Score, best.Page)
	}
	return v.judgeRelevance(ctx, c, best, Outcome{
		Kind:     OutcomeVerified,
		Score:    best.Score,
		Location: loc,
		Notes:    notes,
	})
}

// judgeRelevance runs the optional third pass on an already-located
// quote. String-match success and semantic support are orthogonal: a
// verbatim quote can still fail here.
func (v *Verifier) judgeRelevance(ctx context.Context, c *model.Citation, m *match.Match, located Outcome) Outcome {
	if v.judge == nil {
		return located
	}

	resp, err := v.judge.JudgeRelevance(ctx, llm.JudgeRequest{
		Claim:   c.Claim,
		Quote:   m.Window,
		Context: c.QuoteContext,
	})
	if err != nil {
		return Outcome{
			Kind:     OutcomeInfraError,
			Score:    located.Score,
			Location: located.Location,
			Notes:    fmt.Sprintf("Verification error: %v", err),
			Cause:    err,
			Requests: 1,
		}
	}

	if !resp.Supported {
		out := Outcome{
			Kind:     OutcomeRelevanceMismatch,
			Score:    located.Score,
			Location: located.Location,
			Notes: fmt.Sprintf(
				"Quote located (similarity %.2f) but it does not substantiate the claim.", located.Score),
			Reasoning:  resp.Reasoning,
			TokensUsed: resp.TokensUsed,
			Requests:   1,
		}
		return out
	}

	located.Reasoning = resp.Reasoning
	located.TokensUsed = resp.TokensUsed
	located.Requests = 1
	return located
}

// SourceNotFound builds the outcome for a dangling source reference.
func SourceNotFound(sourceID int64) Outcome {
	err := fmt.Errorf("source %d does not exist", sourceID)
	return Outcome{
		Kind:  OutcomeSourceNotFound,
		Notes: fmt.Sprintf("Verification error: %v.", err),
		Cause: err,
	}
}
