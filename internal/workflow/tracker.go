// Package workflow owns the lifecycle enums on jobs and requirements:
// which transitions are legal, when a job may complete, and how retry
// bookkeeping is bounded.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/attest/internal/model"
	"github.com/ppiankov/attest/internal/store"
)

// ErrInvalidTransition is returned when a status change is not
// permitted from the current state
var ErrInvalidTransition = errors.New("invalid status transition")

// Tracker enforces job and requirement state machines on top of the
// store. It never verifies anything itself.
type Tracker struct {
	store      *store.Store
	maxRetries int
	backoff    time.Duration
}

// New creates a tracker. maxRetries bounds infra-error retries per
// requirement; once reached the requirement is force-rejected so a
// down backend cannot cause a retry storm.
func New(st *store.Store, cfg model.WorkflowConfig) *Tracker {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Tracker{
		store:      st,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// MaxRetries returns the configured retry ceiling
func (t *Tracker) MaxRetries() int {
	return t.maxRetries
}

// Backoff returns the delay before the given retry attempt (1-based).
// Exponential: base, 2*base, 4*base, ...
func (t *Tracker) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return t.backoff << uint(attempt-1)
}

// validJobTransition encodes the job state machine:
// pending -> running -> {completed, failed}
func validJobTransition(from, to model.JobStatus) bool {
	switch from {
	case model.JobPending:
		return to == model.JobRunning
	case model.JobRunning:
		return to == model.JobCompleted || to == model.JobFailed
	default:
		return false
	}
}

// validSubTransition encodes the sub-workflow state machine:
// pending -> running -> {completed, failed}. Jumping straight from
// pending to a terminal state is allowed for sub-workflows that are
// skipped (e.g. extraction already done by an external collaborator).
func validSubTransition(from, to model.SubStatus) bool {
	switch from {
	case model.SubPending:
		return to == model.SubRunning || to.Terminal()
	case model.SubRunning:
		return to.Terminal()
	default:
		return false
	}
}

// StartJob moves a pending job to running.
func (t *Tracker) StartJob(ctx context.Context, id string) error {
	return t.setJobStatus(ctx, id, model.JobRunning)
}

// CompleteJob moves a running job to completed. Both sub-workflows
// must already be terminal; a job whose validator is still running has
// not finished, whatever its citation counts say.
func (t *Tracker) CompleteJob(ctx context.Context, id string, stats *model.JobStats) error {
	job, err := t.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if !job.CreatorStatus.Terminal() || !job.ValidatorStatus.Terminal() {
		return fmt.Errorf("job %s: sub-workflows not terminal (creator=%s, validator=%s): %w",
			id, job.CreatorStatus, job.ValidatorStatus, ErrInvalidTransition)
	}
	if !validJobTransition(job.Status, model.JobCompleted) {
		return fmt.Errorf("job %s: %s -> %s: %w", id, job.Status, model.JobCompleted, ErrInvalidTransition)
	}

	if stats != nil {
		msg := ""
		if stats.RequirementsRejected > 0 || stats.CitationsFailed > 0 {
			msg = fmt.Sprintf("%d of %d requirements rejected, %d citations failed",
				stats.RequirementsRejected, stats.RequirementsTotal, stats.CitationsFailed)
		}
		if err := t.store.SetJobError(ctx, id, msg, stats); err != nil {
			return err
		}
	}
	return t.store.SetJobStatus(ctx, id, model.JobCompleted)
}

// FailJob moves a running job to failed with an error summary.
func (t *Tracker) FailJob(ctx context.Context, id, message string, stats *model.JobStats) error {
	job, err := t.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if !validJobTransition(job.Status, model.JobFailed) {
		return fmt.Errorf("job %s: %s -> %s: %w", id, job.Status, model.JobFailed, ErrInvalidTransition)
	}
	if err := t.store.SetJobError(ctx, id, message, stats); err != nil {
		return err
	}
	return t.store.SetJobStatus(ctx, id, model.JobFailed)
}

func (t *Tracker) setJobStatus(ctx context.Context, id string, to model.JobStatus) error {
	job, err := t.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if !validJobTransition(job.Status, to) {
		return fmt.Errorf("job %s: %s -> %s: %w", id, job.Status, to, ErrInvalidTransition)
	}
	return t.store.SetJobStatus(ctx, id, to)
}

// SetCreatorStatus advances the extraction sub-workflow.
func (t *Tracker) SetCreatorStatus(ctx context.Context, id string, to model.SubStatus) error {
	return t.setSubStatus(ctx, id, "creator_status", to, func(j *model.Job) model.SubStatus { return j.CreatorStatus })
}

// SetValidatorStatus advances the validation sub-workflow.
func (t *Tracker) SetValidatorStatus(ctx context.Context, id string, to model.SubStatus) error {
	return t.setSubStatus(ctx, id, "validator_status", to, func(j *model.Job) model.SubStatus { return j.ValidatorStatus })
}

func (t *Tracker) setSubStatus(ctx context.Context, id, column string, to model.SubStatus, current func(*model.Job) model.SubStatus) error {
	job, err := t.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	from := current(job)
	if !validSubTransition(from, to) {
		return fmt.Errorf("job %s %s: %s -> %s: %w", id, column, from, to, ErrInvalidTransition)
	}
	return t.store.SetJobSubStatus(ctx, id, column, to)
}

// AcceptRequirement moves a pending requirement to accepted.
func (t *Tracker) AcceptRequirement(ctx context.Context, id, result string) error {
	r, err := t.store.GetRequirement(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != model.RequirementPending {
		return fmt.Errorf("requirement %s: %s -> %s: %w", id, r.Status, model.RequirementAccepted, ErrInvalidTransition)
	}
	if result == "" {
		result = "all citations verified"
	}
	return t.store.SetRequirementStatus(ctx, id, model.RequirementAccepted, result, "")
}

// RejectRequirement moves a pending requirement to rejected with a
// reason. Content and relevance mismatches land here directly, without
// consuming a retry.
func (t *Tracker) RejectRequirement(ctx context.Context, id, reason string) error {
	r, err := t.store.GetRequirement(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != model.RequirementPending {
		return fmt.Errorf("requirement %s: %s -> %s: %w", id, r.Status, model.RequirementRejected, ErrInvalidTransition)
	}
	return t.store.SetRequirementStatus(ctx, id, model.RequirementRejected, "rejected", reason)
}

// RecordInfraFailure books a transient verification failure against
// the requirement: retry_count increments by exactly one, last_error
// holds the latest cause. When the retry ceiling is reached the
// requirement is force-rejected and exhausted is returned true.
func (t *Tracker) RecordInfraFailure(ctx context.Context, id string, cause error) (retryCount int, exhausted bool, err error) {
	count, err := t.store.RecordRequirementError(ctx, id, cause.Error())
	if err != nil {
		return 0, false, err
	}

	if count >= t.maxRetries {
		reason := fmt.Sprintf("max retries exceeded (%d): %v", t.maxRetries, cause)
		slog.Warn("requirement exhausted retries", "requirement", id, "retries", count, "cause", cause)
		if err := t.RejectRequirement(ctx, id, reason); err != nil {
			// Already terminal from a concurrent path; the retry cap
			// still holds.
			if !errors.Is(err, ErrInvalidTransition) {
				return count, true, err
			}
		}
		return count, true, nil
	}
	return count, false, nil
}
