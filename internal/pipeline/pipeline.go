// Package pipeline orchestrates job runs: it walks a job's pending
// requirements, verifies their citations concurrently and applies the
// workflow transitions, leaving an auditable trail in the store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/attest/internal/cache"
	"github.com/ppiankov/attest/internal/llm"
	"github.com/ppiankov/attest/internal/match"
	"github.com/ppiankov/attest/internal/model"
	"github.com/ppiankov/attest/internal/store"
	"github.com/ppiankov/attest/internal/verify"
	"github.com/ppiankov/attest/internal/worker"
	"github.com/ppiankov/attest/internal/workflow"
)

// sleepFunc is the sleep used between retry attempts (injectable for tests)
var sleepFunc = time.Sleep

// Pipeline wires the verifier, tracker and store into a runnable
// validation workflow.
type Pipeline struct {
	store    *store.Store
	verifier *verify.Verifier
	tracker  *workflow.Tracker
	limiter  *worker.Limiter
	docs     *cache.DocCache
	config   *model.Config

	judgeModel string // Limiter key; empty when judging is disabled
}

// New creates a pipeline from configuration. The judge backend is
// optional: without one, citations are verified lexically only.
func New(cfg *model.Config, st *store.Store) (*Pipeline, error) {
	judge, err := llm.NewJudge(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("initialize judge: %w", err)
	}

	var docs *cache.DocCache
	if cfg.Cache.Enabled {
		docs = cache.NewDocCache(cfg.Cache.TTL)
	}

	judgeModel := ""
	if judge != nil {
		judgeModel = cfg.LLM.Model
		if judgeModel == "" {
			judgeModel = judge.Name()
		}
	}

	return &Pipeline{
		store:      st,
		verifier:   verify.New(cfg.Verify, judge),
		tracker:    workflow.New(st, cfg.Workflow),
		limiter:    worker.NewLimiter(cfg.LLM.RateLimit, cfg.LLM.RateBurst),
		docs:       docs,
		config:     cfg,
		judgeModel: judgeModel,
	}, nil
}

// Tracker exposes the workflow tracker, used by the CLI for manual
// transitions.
func (p *Pipeline) Tracker() *workflow.Tracker {
	return p.tracker
}

// RunJob processes one job end to end and returns its final stats.
func (p *Pipeline) RunJob(ctx context.Context, jobID string) (*model.JobStats, error) {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := p.tracker.StartJob(ctx, jobID); err != nil {
		return nil, err
	}

	// Extraction happened upstream; a pending creator sub-workflow on
	// a job that already has requirements is marked done so the job
	// can eventually complete.
	if job.CreatorStatus == model.SubPending {
		if err := p.tracker.SetCreatorStatus(ctx, jobID, model.SubCompleted); err != nil {
			return nil, err
		}
	}
	if err := p.tracker.SetValidatorStatus(ctx, jobID, model.SubRunning); err != nil {
		return nil, err
	}

	// Citations stranded by a previous crashed run go back to pending.
	if _, err := p.store.ReleaseExpiredClaims(ctx, p.config.Workflow.LeaseTimeout); err != nil {
		return nil, fmt.Errorf("releasing expired claims: %w", err)
	}

	stats, err := p.validateRequirements(ctx, jobID)
	if err != nil {
		_ = p.tracker.SetValidatorStatus(ctx, jobID, model.SubFailed)
		if failErr := p.tracker.FailJob(ctx, jobID, err.Error(), stats); failErr != nil {
			slog.Error("failing job", "job", jobID, "error", failErr)
		}
		return stats, err
	}

	if err := p.tracker.SetValidatorStatus(ctx, jobID, model.SubCompleted); err != nil {
		return stats, err
	}
	if err := p.tracker.CompleteJob(ctx, jobID, stats); err != nil {
		return stats, err
	}

	slog.Info("job completed",
		"job", jobID,
		"requirements", stats.RequirementsTotal,
		"accepted", stats.RequirementsAccepted,
		"rejected", stats.RequirementsRejected,
		"citations_failed", stats.CitationsFailed)
	return stats, nil
}

// validateRequirements verifies every pending requirement's citations
// and settles the requirement verdicts.
func (p *Pipeline) validateRequirements(ctx context.Context, jobID string) (*model.JobStats, error) {
	reqs, err := p.store.ListRequirements(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing requirements: %w", err)
	}

	stats := &model.JobStats{RequirementsTotal: len(reqs)}

	// Gather every pending citation across the job. Verification is
	// independent per citation, so one pool serves all requirements.
	var pending []model.Citation
	for _, r := range reqs {
		if r.Status != model.RequirementPending {
			continue
		}
		cits, err := p.store.ListCitations(ctx, r.ID)
		if err != nil {
			return stats, fmt.Errorf("listing citations for %s: %w", r.ID, err)
		}
		for _, c := range cits {
			if c.Status == model.CitationPending {
				pending = append(pending, c)
			}
		}
	}

	results := worker.VerifyCitations(p, pending, p.config.Concurrency.VerifyWorkers)
	for _, res := range results {
		if res.Err != nil && !errors.Is(res.Err, store.ErrClaimConflict) {
			slog.Error("citation verification errored",
				"citation", res.Citation.ID, "error", res.Err)
		}
		stats.InfraErrors += countInfra(res)
	}

	// Settle requirement verdicts from the stored terminal states, not
	// from in-memory results: another process may have raced us on
	// individual citations and the store is the source of truth.
	for _, r := range reqs {
		if err := p.settleRequirement(ctx, &r, stats); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func countInfra(res *worker.VerifyResult) int {
	if res.Outcome.Kind == verify.OutcomeInfraError {
		return 1
	}
	return 0
}

// settleRequirement derives the requirement verdict from its
// citations' terminal states.
func (p *Pipeline) settleRequirement(ctx context.Context, r *model.Requirement, stats *model.JobStats) error {
	// Re-read: the tracker may have force-rejected it on retry
	// exhaustion while citations were in flight.
	current, err := p.store.GetRequirement(ctx, r.ID)
	if err != nil {
		return err
	}

	cits, err := p.store.ListCitations(ctx, r.ID)
	if err != nil {
		return err
	}

	var reasons []string
	verified, failed, unresolved := 0, 0, 0
	for _, c := range cits {
		switch c.Status {
		case model.CitationVerified:
			verified++
		case model.CitationFailed:
			failed++
			reasons = append(reasons, fmt.Sprintf("citation %d: %s", c.ID, c.Notes))
		default:
			unresolved++
		}
	}
	stats.CitationsVerified += verified
	stats.CitationsFailed += failed

	if current.Status != model.RequirementPending {
		if current.Status == model.RequirementRejected {
			stats.RequirementsRejected++
		} else {
			stats.RequirementsAccepted++
		}
		return nil
	}

	if unresolved > 0 {
		// Retries exhausted elsewhere or claims raced; leave pending
		// for the next run rather than guessing a verdict.
		slog.Warn("requirement left pending", "requirement", r.ID, "unresolved_citations", unresolved)
		return nil
	}

	if failed > 0 {
		stats.RequirementsRejected++
		return p.tracker.RejectRequirement(ctx, r.ID, strings.Join(reasons, "; "))
	}

	stats.RequirementsAccepted++
	result := fmt.Sprintf("%d citations verified", verified)
	return p.tracker.AcceptRequirement(ctx, r.ID, result)
}

// ProcessCitation verifies one citation, retrying infra errors with
// backoff up to the requirement's retry ceiling. It implements
// worker.CitationProcessor.
func (p *Pipeline) ProcessCitation(ctx context.Context, c model.Citation) (verify.Outcome, error) {
	var outcome verify.Outcome

	for attempt := 0; ; attempt++ {
		if err := p.store.ClaimCitation(ctx, c.ID); err != nil {
			return outcome, err
		}

		outcome = p.verifyOnce(ctx, &c)

		status, kind := outcome.StatusAndKind()
		if err := p.store.RecordVerification(ctx, c.ID, status, kind, outcome.Notes,
			outcome.Score, outcome.Location, outcome.Reasoning); err != nil {
			return outcome, err
		}

		if outcome.TokensUsed > 0 || outcome.Requests > 0 {
			if r, err := p.store.GetRequirement(ctx, c.RequirementID); err == nil {
				if err := p.store.AddJobUsage(ctx, r.JobID, outcome.TokensUsed, outcome.Requests); err != nil {
					slog.Warn("recording job usage", "job", r.JobID, "error", err)
				}
			}
		}

		if outcome.Kind == verify.OutcomeSourceNotFound {
			// Misconfiguration, not a verdict on the content. Alert loudly.
			slog.Error("citation references missing source",
				"citation", c.ID, "source", c.SourceID, "requirement", c.RequirementID)
			return outcome, nil
		}

		if !outcome.Retryable() {
			return outcome, nil
		}

		count, exhausted, err := p.tracker.RecordInfraFailure(ctx, c.RequirementID, outcome.Cause)
		if err != nil {
			return outcome, err
		}
		if exhausted {
			return outcome, nil
		}

		slog.Warn("retrying citation after infra error",
			"citation", c.ID, "attempt", count, "cause", outcome.Cause)
		sleepFunc(p.tracker.Backoff(count))

		if err := p.store.ResetCitation(ctx, c.ID); err != nil {
			return outcome, err
		}
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}
	}
}

// verifyOnce runs a single verification attempt.
func (p *Pipeline) verifyOnce(ctx context.Context, c *model.Citation) verify.Outcome {
	src, err := p.store.GetSource(ctx, c.SourceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return verify.SourceNotFound(c.SourceID)
		}
		return verify.Outcome{
			Kind:  verify.OutcomeInfraError,
			Notes: fmt.Sprintf("Verification error: %v", err),
			Cause: err,
		}
	}

	doc := p.docFor(src)

	if p.judgeModel != "" {
		if err := p.limiter.Wait(ctx, p.judgeModel); err != nil {
			return verify.Outcome{
				Kind:  verify.OutcomeInfraError,
				Notes: fmt.Sprintf("Verification error: %v", err),
				Cause: err,
			}
		}
	}

	return p.verifier.Verify(ctx, c, doc)
}

// docFor returns the preprocessed document for a source, from cache
// when possible.
func (p *Pipeline) docFor(src *model.Source) *match.Doc {
	if p.docs == nil {
		return match.NewDoc(src.Content)
	}
	if doc, ok := p.docs.Get(src.ContentHash); ok {
		return doc
	}
	doc := match.NewDoc(src.Content)
	p.docs.Set(src.ContentHash, doc)
	return doc
}

// ReverifyCitation resets a retryably-failed citation and verifies it
// again immediately. Content judgments cannot be re-verified.
func (p *Pipeline) ReverifyCitation(ctx context.Context, citationID int64) (verify.Outcome, error) {
	if err := p.store.ResetCitation(ctx, citationID); err != nil {
		return verify.Outcome{}, err
	}
	c, err := p.store.GetCitation(ctx, citationID)
	if err != nil {
		return verify.Outcome{}, err
	}
	return p.ProcessCitation(ctx, *c)
}
