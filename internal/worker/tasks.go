package worker

import (
	"context"

	"github.com/ppiankov/attest/internal/model"
	"github.com/ppiankov/attest/internal/verify"
)

// CitationProcessor verifies a single citation end to end, including
// claiming it and persisting the outcome
type CitationProcessor interface {
	ProcessCitation(ctx context.Context, citation model.Citation) (verify.Outcome, error)
}

// VerifyTask verifies one citation via the processor
type VerifyTask struct {
	Citation  model.Citation
	Processor CitationProcessor
}

// Execute executes the verification task
func (t *VerifyTask) Execute(ctx context.Context) Result {
	outcome, err := t.Processor.ProcessCitation(ctx, t.Citation)
	return &VerifyResult{
		Citation: t.Citation,
		Outcome:  outcome,
		Err:      err,
	}
}

// VerifyResult is the result of one citation verification task
type VerifyResult struct {
	Citation model.Citation
	Outcome  verify.Outcome
	Err      error // Operational error in the processor itself, not a verdict
}

// GetError returns the processor error, if any
func (r *VerifyResult) GetError() error {
	return r.Err
}

// VerifyCitations fans a batch of citations out over the pool and
// collects every result. Order of results is not defined.
func VerifyCitations(processor CitationProcessor, citations []model.Citation, concurrency int) []*VerifyResult {
	if len(citations) == 0 {
		return nil
	}

	pool := NewPool(concurrency)
	pool.Start()

	// Submit and drain concurrently: the pool's channels are bounded,
	// so a batch larger than the buffers would wedge a single-threaded
	// submit-then-wait loop.
	go func() {
		for _, c := range citations {
			pool.Submit(&VerifyTask{Citation: c, Processor: processor})
		}
		pool.Finish()
	}()

	results := pool.Drain()

	out := make([]*VerifyResult, len(results))
	for i, r := range results {
		out[i] = r.(*VerifyResult)
	}
	return out
}
