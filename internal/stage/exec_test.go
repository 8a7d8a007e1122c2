package stage

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestExecStageSuccess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	st, err := NewExecStage("extract", []string{"/bin/sh", "-c", "echo extracted $DRIFTWATCH_CHANGED_PATHS"})
	if err != nil {
		t.Fatalf("new exec stage failed: %v", err)
	}
	result := st.Run(context.Background(), Request{
		Locator:      "/tmp/source",
		ChangedPaths: []string{"a.md", "b.md"},
	})
	if !result.OK {
		t.Fatalf("expected success, got failure: %s", result.Message)
	}
	if !strings.Contains(result.Message, "a.md,b.md") {
		t.Fatalf("expected changed paths in output, got %q", result.Message)
	}
}

func TestExecStageFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	st, err := NewExecStage("extract", []string{"/bin/sh", "-c", "echo broken >&2; exit 3"})
	if err != nil {
		t.Fatalf("new exec stage failed: %v", err)
	}
	result := st.Run(context.Background(), Request{Locator: "/tmp/source"})
	if result.OK {
		t.Fatalf("expected failure, got success")
	}
	if !strings.Contains(result.Message, "broken") {
		t.Fatalf("expected stderr in message, got %q", result.Message)
	}
}

func TestExecStageTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	st, err := NewExecStage("extract", []string{"/bin/sh", "-c", "sleep 5"})
	if err != nil {
		t.Fatalf("new exec stage failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	result := st.Run(ctx, Request{Locator: "/tmp/source"})
	if result.OK {
		t.Fatalf("expected timeout failure, got success")
	}
	if !strings.Contains(result.Message, "deadline") {
		t.Fatalf("expected deadline message, got %q", result.Message)
	}
}

func TestNewExecStageValidation(t *testing.T) {
	if _, err := NewExecStage("", []string{"true"}); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if _, err := NewExecStage("extract", nil); err == nil {
		t.Fatalf("expected error for empty command")
	}
}
