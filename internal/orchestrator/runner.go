package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftwatch/driftwatch/internal/stage"
)

// PipelineRunner executes the ordered stage sequence for one target,
// fail-fast: a failing stage ends the run and later stages never see a
// broken predecessor's output. The runner holds no state across runs beyond
// the active-target set backing its defensive single-flight check.
type PipelineRunner struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewPipelineRunner() *PipelineRunner {
	return &PipelineRunner{active: map[string]struct{}{}}
}

// Run executes the target's pipeline for one trigger batch. A nil batch
// means an unconditional run (startup or manual) with no change hints.
// Returns ErrRunInProgress if a run for the same target is already active;
// the state machine must make that impossible.
func (r *PipelineRunner) Run(ctx context.Context, target Target, batch *PendingBatch) (PipelineRun, error) {
	r.mu.Lock()
	if _, busy := r.active[target.ID]; busy {
		r.mu.Unlock()
		return PipelineRun{}, ErrRunInProgress
	}
	r.active[target.ID] = struct{}{}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.active, target.ID)
		r.mu.Unlock()
	}()

	run := PipelineRun{
		ID:           uuid.NewString(),
		TargetID:     target.ID,
		StartedAt:    time.Now().UTC(),
		TriggerPaths: batch.Paths(),
	}
	req := stage.Request{
		Locator:      target.Locator(),
		ChangedPaths: run.TriggerPaths,
	}

	for _, ps := range target.Stages {
		stageCtx := ctx
		cancel := func() {}
		if ps.Timeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, ps.Timeout)
		}
		started := time.Now()
		result := ps.Stage.Run(stageCtx, req)
		cancel()

		stageResult := StageResult{
			Name:       ps.Stage.Name(),
			DurationMs: time.Since(started).Milliseconds(),
			Message:    result.Message,
		}
		if result.OK {
			stageResult.Outcome = StageSuccess
			run.StageResults = append(run.StageResults, stageResult)
			continue
		}
		stageResult.Outcome = StageFailure
		if stageResult.Message == "" {
			stageResult.Message = "stage failed"
		}
		run.StageResults = append(run.StageResults, stageResult)
		if ctx.Err() != nil {
			run.Outcome = RunAborted
		} else {
			run.Outcome = RunFailed
		}
		run.FinishedAt = time.Now().UTC()
		return run, nil
	}

	run.Outcome = RunSuccess
	run.FinishedAt = time.Now().UTC()
	return run, nil
}

// Active reports whether a run is in flight for the target. Used by status
// reporting and tests.
func (r *PipelineRunner) Active(targetID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.active[targetID]
	return busy
}
