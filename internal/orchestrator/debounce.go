package orchestrator

import (
	"sort"
	"sync"
	"time"
)

// PendingBatch accumulates the deduplicated change set for one target while
// its debounce window is open.
type PendingBatch struct {
	paths    map[string]struct{}
	deadline time.Time
	firstAt  time.Time
	lastAt   time.Time
}

func (b *PendingBatch) Paths() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.paths))
	for path := range b.paths {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func (b *PendingBatch) Deadline() time.Time {
	if b == nil {
		return time.Time{}
	}
	return b.deadline
}

func (b *PendingBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.paths)
}

// DebounceCoalescer collapses bursts of relevant changes into one trigger per
// target. The window is sliding: every recorded change re-arms the deadline,
// so a batch fires only after a full quiet window.
type DebounceCoalescer struct {
	mu      sync.Mutex
	pending map[string]*PendingBatch
}

func NewDebounceCoalescer() *DebounceCoalescer {
	return &DebounceCoalescer{pending: map[string]*PendingBatch{}}
}

func (c *DebounceCoalescer) Record(targetID string, window time.Duration, now time.Time, paths ...string) {
	if targetID == "" || len(paths) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	batch, ok := c.pending[targetID]
	if !ok {
		batch = &PendingBatch{paths: map[string]struct{}{}, firstAt: now}
		c.pending[targetID] = batch
	}
	for _, path := range paths {
		batch.paths[path] = struct{}{}
	}
	batch.lastAt = now
	batch.deadline = now.Add(window)
}

// Due returns the targets whose non-empty batch deadline has elapsed. It does
// not remove them; the caller decides whether to Take based on target state.
func (c *DebounceCoalescer) Due(now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var due []string
	for targetID, batch := range c.pending {
		if len(batch.paths) > 0 && !now.Before(batch.deadline) {
			due = append(due, targetID)
		}
	}
	sort.Strings(due)
	return due
}

// Take atomically removes and returns the pending batch, so changes arriving
// during the triggered run start a fresh batch instead of being lost or
// double-counted. A Record landing between a Due snapshot and Take re-arms
// the window, so the deadline is re-checked under the coalescer lock: a
// re-armed batch is refused and stays pending for its full quiet window.
func (c *DebounceCoalescer) Take(targetID string, now time.Time) (*PendingBatch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch, ok := c.pending[targetID]
	if !ok || len(batch.paths) == 0 || now.Before(batch.deadline) {
		return nil, false
	}
	delete(c.pending, targetID)
	return batch, true
}

func (c *DebounceCoalescer) Pending(targetID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch, ok := c.pending[targetID]
	return ok && len(batch.paths) > 0
}

func (c *DebounceCoalescer) Clear(targetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, targetID)
}
