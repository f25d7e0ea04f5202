package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/attest/internal/model"
	"github.com/ppiankov/attest/internal/store"
	"github.com/ppiankov/attest/internal/verify"
	"github.com/ppiankov/attest/internal/workflow"
)

const testSource = `--- Page 11 ---
Ein und derselbe Geschäftsvorfall darf nicht mehrfach aufgezeichnet
werden. Die Belege sind geordnet und zeitgerecht abzulegen.`

func testConfig(t *testing.T) *model.Config {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "attest.db")
	cfg.Workflow.RetryBackoff = time.Millisecond
	cfg.LLM.RateLimit = 1000
	return cfg
}

func newTestPipeline(t *testing.T, cfg *model.Config) (*Pipeline, *store.Store) {
	t.Helper()
	s, err := store.New(cfg.Store.Path)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	p, err := New(cfg, s)
	if err != nil {
		t.Fatalf("creating pipeline: %v", err)
	}
	return p, s
}

// seedJob creates a job with one requirement and the given citations
// against a freshly ingested source.
func seedJob(t *testing.T, s *store.Store, quotes ...string) (jobID, reqID string, sourceID int64) {
	t.Helper()
	ctx := context.Background()

	src, err := s.PutSource(ctx, model.SourceTypeDocument, "gobd.txt", "GoBD", testSource, model.SourceMetadata{})
	if err != nil {
		t.Fatalf("putting source: %v", err)
	}

	job := &model.Job{Prompt: "validate requirements"}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("creating job: %v", err)
	}
	r := &model.Requirement{JobID: job.ID, Text: "Duplicate records are prohibited."}
	if err := s.CreateRequirement(ctx, r); err != nil {
		t.Fatalf("creating requirement: %v", err)
	}
	for _, q := range quotes {
		c := &model.Citation{
			RequirementID: r.ID,
			Claim:         "Duplicate recording is prohibited.",
			VerbatimQuote: q,
			SourceID:      src.ID,
		}
		if _, err := s.CreateCitation(ctx, c); err != nil {
			t.Fatalf("creating citation: %v", err)
		}
	}
	return job.ID, r.ID, src.ID
}

func TestRunJobAllVerified(t *testing.T) {
	p, s := newTestPipeline(t, testConfig(t))
	ctx := context.Background()

	jobID, reqID, _ := seedJob(t, s,
		"Ein und derselbe Geschäftsvorfall darf nicht mehrfach aufgezeichnet werden.",
		"Die Belege sind geordnet und zeitgerecht abzulegen.")

	stats, err := p.RunJob(ctx, jobID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.RequirementsAccepted != 1 || stats.RequirementsRejected != 0 {
		t.Errorf("expected 1 accepted, got %+v", stats)
	}
	if stats.CitationsVerified != 2 || stats.CitationsFailed != 0 {
		t.Errorf("expected 2 verified citations, got %+v", stats)
	}

	job, _ := s.GetJob(ctx, jobID)
	if job.Status != model.JobCompleted {
		t.Errorf("expected completed job, got %s", job.Status)
	}
	if !job.CreatorStatus.Terminal() || !job.ValidatorStatus.Terminal() {
		t.Errorf("sub-workflows not terminal: creator=%s validator=%s", job.CreatorStatus, job.ValidatorStatus)
	}
	if job.ErrorMessage != "" {
		t.Errorf("clean run must have no error summary, got %q", job.ErrorMessage)
	}

	r, _ := s.GetRequirement(ctx, reqID)
	if r.Status != model.RequirementAccepted {
		t.Errorf("expected accepted requirement, got %s", r.Status)
	}

	cits, _ := s.ListCitations(ctx, reqID)
	for _, c := range cits {
		if c.Status != model.CitationVerified {
			t.Errorf("citation %d: expected verified, got %s (%s)", c.ID, c.Status, c.Notes)
		}
		if c.SimilarityScore != 1.0 {
			t.Errorf("citation %d: expected score 1.0, got %f", c.ID, c.SimilarityScore)
		}
		if c.MatchedLocation == nil || c.MatchedLocation.Page != 11 {
			t.Errorf("citation %d: matched location lost: %+v", c.ID, c.MatchedLocation)
		}
	}
}

func TestRunJobContentMismatch(t *testing.T) {
	p, s := newTestPipeline(t, testConfig(t))
	ctx := context.Background()

	jobID, reqID, _ := seedJob(t, s,
		"Ein und derselbe Geschäftsvorfall darf nicht mehrfach aufgezeichnet werden.",
		"Der Unternehmer muss die Aufbewahrung von steuerlich relevanten Unterlagen für 10 Jahre sicherstellen.")

	stats, err := p.RunJob(ctx, jobID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.RequirementsRejected != 1 {
		t.Errorf("expected 1 rejected requirement, got %+v", stats)
	}
	if stats.CitationsVerified != 1 || stats.CitationsFailed != 1 {
		t.Errorf("expected 1 verified / 1 failed, got %+v", stats)
	}

	// One bad citation rejects the requirement but the job still
	// completes; the failure is surfaced, not swallowed.
	job, _ := s.GetJob(ctx, jobID)
	if job.Status != model.JobCompleted {
		t.Errorf("expected completed job, got %s", job.Status)
	}
	if job.ErrorMessage != "1 of 1 requirements rejected, 1 citations failed" {
		t.Errorf("unexpected error summary %q", job.ErrorMessage)
	}

	r, _ := s.GetRequirement(ctx, reqID)
	if r.Status != model.RequirementRejected {
		t.Errorf("expected rejected requirement, got %s", r.Status)
	}
	if !strings.Contains(r.RejectionReason, "does not appear anywhere in the source") {
		t.Errorf("rejection reason should carry the citation notes, got %q", r.RejectionReason)
	}

	cits, _ := s.ListCitations(ctx, reqID)
	for _, c := range cits {
		if c.Status == model.CitationFailed && c.FailureKind != model.FailureContentMismatch {
			t.Errorf("citation %d: expected content_mismatch, got %s", c.ID, c.FailureKind)
		}
	}
}

func TestRunJobInfraErrorRetriesThenRejects(t *testing.T) {
	// Judge backend answers 404 for every request, as a misconfigured
	// local model server would.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "model not found"}`))
	}))
	defer server.Close()

	cfg := testConfig(t)
	cfg.LLM.Provider = "ollama"
	cfg.LLM.Model = "llama3.2"
	cfg.LLM.BaseURL = server.URL
	cfg.Workflow.MaxRetries = 3

	var slept []time.Duration
	origSleep := sleepFunc
	sleepFunc = func(d time.Duration) { slept = append(slept, d) }
	defer func() { sleepFunc = origSleep }()

	p, s := newTestPipeline(t, cfg)
	ctx := context.Background()

	jobID, reqID, _ := seedJob(t, s,
		"Ein und derselbe Geschäftsvorfall darf nicht mehrfach aufgezeichnet werden.")

	stats, err := p.RunJob(ctx, jobID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.RequirementsRejected != 1 {
		t.Errorf("expected force-rejected requirement, got %+v", stats)
	}

	r, _ := s.GetRequirement(ctx, reqID)
	if r.Status != model.RequirementRejected {
		t.Fatalf("expected rejected requirement, got %s", r.Status)
	}
	if r.RetryCount != 3 {
		t.Errorf("expected exactly 3 booked attempts, got %d", r.RetryCount)
	}
	if !strings.HasPrefix(r.RejectionReason, "max retries exceeded (3):") {
		t.Errorf("unexpected rejection reason %q", r.RejectionReason)
	}
	if !strings.Contains(r.LastError, "404") {
		t.Errorf("last error should carry the backend status, got %q", r.LastError)
	}

	// Two in-place retries before exhaustion, with doubling backoff.
	if len(slept) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(slept))
	}
	if slept[0] != time.Millisecond || slept[1] != 2*time.Millisecond {
		t.Errorf("expected doubling backoff, got %v", slept)
	}

	cits, _ := s.ListCitations(ctx, reqID)
	if len(cits) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(cits))
	}
	c := cits[0]
	if c.Status != model.CitationFailed || c.FailureKind != model.FailureInfraError {
		t.Errorf("expected failed/infra_error, got %s/%s", c.Status, c.FailureKind)
	}
	if !strings.HasPrefix(c.Notes, "Verification error:") {
		t.Errorf("infra failure notes must carry the operational prefix, got %q", c.Notes)
	}

	job, _ := s.GetJob(ctx, jobID)
	if job.Status != model.JobCompleted {
		t.Errorf("retry exhaustion still completes the job, got %s", job.Status)
	}
}

func TestProcessCitationSourceNotFound(t *testing.T) {
	p, s := newTestPipeline(t, testConfig(t))
	ctx := context.Background()

	_, reqID, _ := seedJob(t, s, "irrelevant")

	// Point the citation at a source that does not exist, as a database
	// predating foreign-key enforcement could.
	cits, _ := s.ListCitations(ctx, reqID)
	c := cits[0]
	c.SourceID = 99999

	outcome, err := p.ProcessCitation(ctx, c)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Kind != verify.OutcomeSourceNotFound {
		t.Errorf("expected source_not_found, got %s", outcome.Kind)
	}

	got, _ := s.GetCitation(ctx, c.ID)
	if got.Status != model.CitationFailed || got.FailureKind != model.FailureSourceNotFound {
		t.Errorf("expected failed/source_not_found, got %s/%s", got.Status, got.FailureKind)
	}

	// Dangling references are a configuration error, not a retry case.
	r, _ := s.GetRequirement(ctx, reqID)
	if r.RetryCount != 0 {
		t.Errorf("expected no retries booked, got %d", r.RetryCount)
	}
}

func TestProcessCitationClaimConflict(t *testing.T) {
	p, s := newTestPipeline(t, testConfig(t))
	ctx := context.Background()

	_, reqID, _ := seedJob(t, s, "Die Belege sind geordnet und zeitgerecht abzulegen.")
	cits, _ := s.ListCitations(ctx, reqID)
	if err := s.ClaimCitation(ctx, cits[0].ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Someone else holds the claim; processing must bail, not verify.
	_, err := p.ProcessCitation(ctx, cits[0])
	if !errors.Is(err, store.ErrClaimConflict) {
		t.Errorf("expected ErrClaimConflict, got %v", err)
	}
}

func TestReverifyCitation(t *testing.T) {
	p, s := newTestPipeline(t, testConfig(t))
	ctx := context.Background()

	_, reqID, _ := seedJob(t, s, "Die Belege sind geordnet und zeitgerecht abzulegen.")
	cits, _ := s.ListCitations(ctx, reqID)
	id := cits[0].ID

	// Book an infra failure for the citation.
	if err := s.ClaimCitation(ctx, id); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.RecordVerification(ctx, id, model.CitationFailed, model.FailureInfraError,
		"Verification error: backend unavailable", 0, nil, ""); err != nil {
		t.Fatalf("record: %v", err)
	}

	outcome, err := p.ReverifyCitation(ctx, id)
	if err != nil {
		t.Fatalf("reverify: %v", err)
	}
	if outcome.Kind != verify.OutcomeVerified {
		t.Errorf("expected verified on reverify, got %s (%s)", outcome.Kind, outcome.Notes)
	}

	got, _ := s.GetCitation(ctx, id)
	if got.Status != model.CitationVerified {
		t.Errorf("expected verified, got %s", got.Status)
	}
}

func TestReverifyCitationRejectsContentMismatch(t *testing.T) {
	p, s := newTestPipeline(t, testConfig(t))
	ctx := context.Background()

	_, reqID, _ := seedJob(t, s, "absent quote")
	cits, _ := s.ListCitations(ctx, reqID)
	id := cits[0].ID

	if err := s.ClaimCitation(ctx, id); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.RecordVerification(ctx, id, model.CitationFailed, model.FailureContentMismatch,
		"not found", 0.1, nil, ""); err != nil {
		t.Fatalf("record: %v", err)
	}

	if _, err := p.ReverifyCitation(ctx, id); !errors.Is(err, store.ErrClaimConflict) {
		t.Errorf("expected ErrClaimConflict reverifying a content mismatch, got %v", err)
	}
}

func TestRunJobTwiceFails(t *testing.T) {
	p, s := newTestPipeline(t, testConfig(t))
	ctx := context.Background()

	jobID, _, _ := seedJob(t, s, "Die Belege sind geordnet und zeitgerecht abzulegen.")
	if _, err := p.RunJob(ctx, jobID); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// A completed job cannot be restarted.
	if _, err := p.RunJob(ctx, jobID); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRunJobMissing(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig(t))
	if _, err := p.RunJob(context.Background(), "no-such-job"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
