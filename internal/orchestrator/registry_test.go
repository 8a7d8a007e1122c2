package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driftwatch/driftwatch/internal/stage"
)

func okStage(name string) PipelineStage {
	return PipelineStage{Stage: stage.Func{StageName: name, Fn: func(ctx context.Context, req stage.Request) stage.Result {
		return stage.Result{OK: true}
	}}}
}

func fsTarget(t *testing.T, id string) Target {
	t.Helper()
	return Target{
		ID:     id,
		Source: SourceFilesystem,
		Path:   t.TempDir(),
		Stages: []PipelineStage{okStage("extract")},
	}
}

func TestNewRegistryRejectsDuplicateIDs(t *testing.T) {
	_, err := NewRegistry([]Target{fsTarget(t, "docs"), fsTarget(t, "docs")})
	if !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget for duplicate ids, got %v", err)
	}
}

func TestNewRegistryRejectsMissingPath(t *testing.T) {
	target := fsTarget(t, "docs")
	target.Path = "/nonexistent/driftwatch-test-path"
	if _, err := NewRegistry([]Target{target}); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget for unreachable path, got %v", err)
	}
}

func TestNewRegistryRejectsEmptyStages(t *testing.T) {
	target := fsTarget(t, "docs")
	target.Stages = nil
	if _, err := NewRegistry([]Target{target}); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget for missing stages, got %v", err)
	}
}

func TestNewRegistryRejectsDuplicateRepository(t *testing.T) {
	a := Target{ID: "a", Source: SourceWebhookRepository, Repository: "notes", Stages: []PipelineStage{okStage("extract")}}
	b := Target{ID: "b", Source: SourceWebhookRepository, Repository: "notes", Stages: []PipelineStage{okStage("extract")}}
	if _, err := NewRegistry([]Target{a, b}); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget for duplicate repository, got %v", err)
	}
}

func TestRegistryLookups(t *testing.T) {
	fs := fsTarget(t, "local")
	hook := Target{
		ID:             "remote",
		Source:         SourceWebhookRepository,
		Repository:     "team/notes",
		DebounceWindow: 5 * time.Second,
		Stages:         []PipelineStage{okStage("extract")},
	}
	r, err := NewRegistry([]Target{fs, hook})
	if err != nil {
		t.Fatalf("new registry failed: %v", err)
	}

	if _, ok := r.Get("local"); !ok {
		t.Fatalf("expected local target")
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatalf("expected missing target to be absent")
	}
	got, ok := r.GetByRepository("team/notes")
	if !ok || got.ID != "remote" {
		t.Fatalf("expected repository lookup to find remote, got %+v ok=%v", got, ok)
	}

	all := r.All()
	if len(all) != 2 || all[0].ID != "local" || all[1].ID != "remote" {
		t.Fatalf("expected configuration order, got %+v", all)
	}

	// Zero window picks up the default; the minimum reflects it.
	if all[0].DebounceWindow != defaultDebounceWindow {
		t.Fatalf("expected default window, got %v", all[0].DebounceWindow)
	}
	if min := r.MinDebounceWindow(); min != defaultDebounceWindow {
		t.Fatalf("expected min window %v, got %v", defaultDebounceWindow, min)
	}
}
