// Package runlog records terminal pipeline runs. The orchestrator keeps only
// the most recent run per target in memory; anything longer-lived lands here,
// behind a backend selected by DSN scheme.
package runlog

import (
	"errors"
	"sync"

	"github.com/driftwatch/driftwatch/internal/orchestrator"
)

var ErrInvalidInput = errors.New("invalid input")

const defaultHistoryLimit = 100

type Recorder interface {
	Record(run orchestrator.PipelineRun) error
	LastRun(targetID string) (orchestrator.PipelineRun, bool)
	Runs(targetID string, limit int) []orchestrator.PipelineRun
	Close() error
}

type InMemoryRecorder struct {
	mu      sync.Mutex
	history map[string][]orchestrator.PipelineRun
	limit   int
}

func NewInMemoryRecorder() *InMemoryRecorder {
	return &InMemoryRecorder{
		history: map[string][]orchestrator.PipelineRun{},
		limit:   defaultHistoryLimit,
	}
}

func (r *InMemoryRecorder) Record(run orchestrator.PipelineRun) error {
	if run.TargetID == "" {
		return ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	runs := append(r.history[run.TargetID], run)
	if len(runs) > r.limit {
		runs = runs[len(runs)-r.limit:]
	}
	r.history[run.TargetID] = runs
	return nil
}

func (r *InMemoryRecorder) LastRun(targetID string) (orchestrator.PipelineRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	runs := r.history[targetID]
	if len(runs) == 0 {
		return orchestrator.PipelineRun{}, false
	}
	return runs[len(runs)-1], true
}

func (r *InMemoryRecorder) Runs(targetID string, limit int) []orchestrator.PipelineRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	runs := r.history[targetID]
	if limit > 0 && len(runs) > limit {
		runs = runs[len(runs)-limit:]
	}
	return append([]orchestrator.PipelineRun(nil), runs...)
}

func (r *InMemoryRecorder) Close() error {
	return nil
}
