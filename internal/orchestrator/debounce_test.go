package orchestrator

import (
	"testing"
	"time"
)

func TestDebounceSlidingWindow(t *testing.T) {
	c := NewDebounceCoalescer()
	window := 2 * time.Second
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	c.Record("docs", window, base, "README.md")
	c.Record("docs", window, base.Add(time.Second), "README.md")

	// First deadline would have been base+2s; the second event re-armed it.
	if due := c.Due(base.Add(2*time.Second + 500*time.Millisecond)); len(due) != 0 {
		t.Fatalf("expected nothing due before re-armed deadline, got %v", due)
	}
	due := c.Due(base.Add(3 * time.Second))
	if len(due) != 1 || due[0] != "docs" {
		t.Fatalf("expected docs due at last event + window, got %v", due)
	}
}

func TestDebounceBatchDeduplicatesPaths(t *testing.T) {
	c := NewDebounceCoalescer()
	now := time.Now()
	c.Record("docs", time.Second, now, "a.md", "b.md")
	c.Record("docs", time.Second, now, "a.md")

	batch, ok := c.Take("docs", now.Add(time.Second))
	if !ok {
		t.Fatalf("expected pending batch")
	}
	paths := batch.Paths()
	if len(paths) != 2 || paths[0] != "a.md" || paths[1] != "b.md" {
		t.Fatalf("expected deduplicated sorted paths, got %v", paths)
	}
}

func TestDebounceTakeSwapsBatchAtomically(t *testing.T) {
	c := NewDebounceCoalescer()
	now := time.Now()
	c.Record("docs", time.Second, now, "a.md")

	if _, ok := c.Take("docs", now.Add(time.Second)); !ok {
		t.Fatalf("expected first take to succeed")
	}
	if _, ok := c.Take("docs", now.Add(time.Second)); ok {
		t.Fatalf("expected second take to find nothing")
	}
	if c.Pending("docs") {
		t.Fatalf("expected no pending batch after take")
	}

	// Changes after the swap open a fresh batch.
	c.Record("docs", time.Second, now.Add(time.Minute), "c.md")
	batch, ok := c.Take("docs", now.Add(time.Minute+time.Second))
	if !ok || batch.Len() != 1 {
		t.Fatalf("expected fresh single-path batch, got %v", batch.Paths())
	}
}

func TestDebounceTakeRefusesReArmedBatch(t *testing.T) {
	c := NewDebounceCoalescer()
	window := 2 * time.Second
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	c.Record("docs", window, base, "a.md")
	tick := base.Add(window)
	if due := c.Due(tick); len(due) != 1 || due[0] != "docs" {
		t.Fatalf("expected docs due at deadline, got %v", due)
	}

	// A change landing between the Due snapshot and Take slides the window;
	// the batch must stay pending for the full new quiet window.
	c.Record("docs", window, tick, "b.md")
	if _, ok := c.Take("docs", tick); ok {
		t.Fatalf("expected take to refuse the re-armed batch")
	}
	if !c.Pending("docs") {
		t.Fatalf("expected re-armed batch to stay pending")
	}

	batch, ok := c.Take("docs", tick.Add(window))
	if !ok {
		t.Fatalf("expected take to succeed after the new window elapsed")
	}
	paths := batch.Paths()
	if len(paths) != 2 || paths[0] != "a.md" || paths[1] != "b.md" {
		t.Fatalf("expected both changes in one batch, got %v", paths)
	}
}

func TestDebounceTargetsIndependent(t *testing.T) {
	c := NewDebounceCoalescer()
	base := time.Now()
	c.Record("alpha", time.Second, base, "a.md")
	c.Record("beta", 10*time.Second, base, "b.md")

	due := c.Due(base.Add(2 * time.Second))
	if len(due) != 1 || due[0] != "alpha" {
		t.Fatalf("expected only alpha due, got %v", due)
	}
}

func TestDebounceRecordIgnoresEmptyInput(t *testing.T) {
	c := NewDebounceCoalescer()
	c.Record("", time.Second, time.Now(), "a.md")
	c.Record("docs", time.Second, time.Now())
	if c.Pending("docs") || c.Pending("") {
		t.Fatalf("expected no pending batches from empty input")
	}
}
