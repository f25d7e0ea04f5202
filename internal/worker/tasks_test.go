package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/attest/internal/model"
	"github.com/ppiankov/attest/internal/verify"
)

// mockProcessor implements CitationProcessor
type mockProcessor struct {
	calls  int32
	failID int64
}

func (p *mockProcessor) ProcessCitation(_ context.Context, c model.Citation) (verify.Outcome, error) {
	atomic.AddInt32(&p.calls, 1)
	if c.ID == p.failID {
		return verify.Outcome{}, errors.New("processor blew up")
	}
	return verify.Outcome{Kind: verify.OutcomeVerified, Score: 1.0}, nil
}

func TestVerifyCitations(t *testing.T) {
	proc := &mockProcessor{failID: 3}
	citations := []model.Citation{
		{ID: 1, Claim: "a"},
		{ID: 2, Claim: "b"},
		{ID: 3, Claim: "c"},
		{ID: 4, Claim: "d"},
	}

	results := VerifyCitations(proc, citations, 2)

	if len(results) != len(citations) {
		t.Fatalf("expected %d results, got %d", len(citations), len(results))
	}
	if atomic.LoadInt32(&proc.calls) != int32(len(citations)) {
		t.Errorf("expected %d processor calls, got %d", len(citations), proc.calls)
	}

	errored := 0
	verified := 0
	for _, r := range results {
		if r.GetError() != nil {
			errored++
			if r.Citation.ID != 3 {
				t.Errorf("unexpected failing citation %d", r.Citation.ID)
			}
			continue
		}
		if r.Outcome.Kind == verify.OutcomeVerified {
			verified++
		}
	}
	if errored != 1 {
		t.Errorf("expected 1 errored result, got %d", errored)
	}
	if verified != 3 {
		t.Errorf("expected 3 verified results, got %d", verified)
	}
}

// A batch far larger than the pool's channel buffers must still
// complete: results have to drain while submission is in flight.
func TestVerifyCitationsLargeBatch(t *testing.T) {
	proc := &mockProcessor{}
	citations := make([]model.Citation, 60)
	for i := range citations {
		citations[i] = model.Citation{ID: int64(i + 1)}
	}

	done := make(chan []*VerifyResult, 1)
	go func() {
		done <- VerifyCitations(proc, citations, 4)
	}()

	select {
	case results := <-done:
		if len(results) != len(citations) {
			t.Fatalf("expected %d results, got %d", len(citations), len(results))
		}
		if atomic.LoadInt32(&proc.calls) != int32(len(citations)) {
			t.Errorf("expected %d processor calls, got %d", len(citations), proc.calls)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("VerifyCitations did not finish a 60-citation batch with 4 workers")
	}
}

func TestVerifyCitationsEmpty(t *testing.T) {
	if results := VerifyCitations(&mockProcessor{}, nil, 4); results != nil {
		t.Errorf("expected nil for empty batch, got %d results", len(results))
	}
}
