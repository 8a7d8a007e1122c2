package runlog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/driftwatch/driftwatch/internal/orchestrator"
)

type fileRecorderState struct {
	History map[string][]orchestrator.PipelineRun `json:"history"`
}

// FileRecorder persists the run history as a JSON snapshot, written with the
// write-temp-then-rename discipline so readers never observe a torn file.
type FileRecorder struct {
	path  string
	limit int
	mu    sync.Mutex
	state fileRecorderState
}

func NewFileRecorder(path string) (*FileRecorder, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	r := &FileRecorder{
		path:  path,
		limit: defaultHistoryLimit,
		state: fileRecorderState{History: map[string][]orchestrator.PipelineRun{}},
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRecorder) Record(run orchestrator.PipelineRun) error {
	if run.TargetID == "" {
		return ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	runs := append(r.state.History[run.TargetID], run)
	if len(runs) > r.limit {
		runs = runs[len(runs)-r.limit:]
	}
	r.state.History[run.TargetID] = runs
	return r.saveLocked()
}

func (r *FileRecorder) LastRun(targetID string) (orchestrator.PipelineRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	runs := r.state.History[targetID]
	if len(runs) == 0 {
		return orchestrator.PipelineRun{}, false
	}
	return runs[len(runs)-1], true
}

func (r *FileRecorder) Runs(targetID string, limit int) []orchestrator.PipelineRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	runs := r.state.History[targetID]
	if limit > 0 && len(runs) > limit {
		runs = runs[len(runs)-limit:]
	}
	return append([]orchestrator.PipelineRun(nil), runs...)
}

func (r *FileRecorder) Close() error {
	return nil
}

func (r *FileRecorder) load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var snapshot fileRecorderState
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}
	if snapshot.History == nil {
		snapshot.History = map[string][]orchestrator.PipelineRun{}
	}
	r.state = snapshot
	return nil
}

func (r *FileRecorder) saveLocked() error {
	data, err := json.Marshal(r.state)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}
