package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

const (
	minTick     = 5 * time.Millisecond
	maxTick     = 500 * time.Millisecond
	eventBuffer = 16
)

// RunRecorder receives every terminal pipeline run. Recording failures are
// logged and never fed back into the state machine.
type RunRecorder interface {
	Record(run PipelineRun) error
}

type Options struct {
	Registry *Registry
	Runner   *PipelineRunner
	Recorder RunRecorder
	Logger   *log.Logger
	// Tick overrides the control loop poll interval; zero derives it from
	// the smallest configured debounce window.
	Tick time.Duration
}

// Orchestrator owns every per-target state machine. Both ingress adapters
// (filesystem watch, webhook) feed it through Dispatch, so the single-flight
// and debounce invariants hold regardless of event origin.
type Orchestrator struct {
	registry  *Registry
	coalescer *DebounceCoalescer
	runner    *PipelineRunner
	recorder  RunRecorder
	logger    *log.Logger
	tick      time.Duration
	now       func() time.Time

	mu          sync.Mutex
	states      map[string]TargetState
	lastRuns    map[string]*PipelineRun
	subscribers map[int]chan Event
	nextSub     int

	inFlight sync.WaitGroup
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Registry == nil {
		return nil, errors.New("orchestrator: registry is required")
	}
	runner := opts.Runner
	if runner == nil {
		runner = NewPipelineRunner()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = opts.Registry.MinDebounceWindow() / 4
	}
	if tick < minTick {
		tick = minTick
	}
	if tick > maxTick {
		tick = maxTick
	}

	o := &Orchestrator{
		registry:    opts.Registry,
		coalescer:   NewDebounceCoalescer(),
		runner:      runner,
		recorder:    opts.Recorder,
		logger:      logger,
		tick:        tick,
		now:         time.Now,
		states:      map[string]TargetState{},
		lastRuns:    map[string]*PipelineRun{},
		subscribers: map[int]chan Event{},
	}
	for _, target := range opts.Registry.All() {
		o.states[target.ID] = StateIdle
	}
	return o, nil
}

// Dispatch is the single entry point for change events from every ingress
// source. It filters, records into the coalescer, and advances the state
// machine; it never blocks on pipeline execution.
func (o *Orchestrator) Dispatch(targetID string, event ChangeEvent) DispatchResult {
	target, ok := o.registry.Get(targetID)
	if !ok {
		return DispatchResult{Status: DispatchUnknownTarget}
	}

	relevant := make([]string, 0, len(event.Paths))
	for _, path := range event.Paths {
		if Relevant(target, path) {
			relevant = append(relevant, path)
		}
	}
	if len(relevant) == 0 {
		return DispatchResult{Status: DispatchSkipped}
	}

	now := event.ObservedAt
	if now.IsZero() {
		now = o.now()
	}

	o.mu.Lock()
	o.coalescer.Record(targetID, target.DebounceWindow, now, relevant...)
	prev := o.states[targetID]
	next := prev
	switch prev {
	case StateIdle, StateAwaitingChange:
		next = StateDebouncing
		o.states[targetID] = next
	}
	o.mu.Unlock()

	if next != prev {
		o.logger.Printf("target %s: %s -> %s (%d relevant paths via %s)", targetID, prev, next, len(relevant), event.Source)
		o.publish(Event{Type: EventStateChanged, TargetID: targetID, State: next, At: now})
	}
	return DispatchResult{Status: DispatchAccepted, AcceptedPaths: len(relevant)}
}

// DispatchRepository routes a webhook payload by repository name. The second
// return value is false when no target claims the repository.
func (o *Orchestrator) DispatchRepository(repository string, event ChangeEvent) (DispatchResult, bool) {
	target, ok := o.registry.GetByRepository(repository)
	if !ok {
		return DispatchResult{Status: DispatchUnknownTarget}, false
	}
	return o.Dispatch(target.ID, event), true
}

// Run is the orchestrator control loop. It polls the coalescer for elapsed
// deadlines and launches pipeline runs on their own goroutines, so ingress
// and the HTTP surface are never starved by a blocking stage. Returns once
// ctx is cancelled and all in-flight runs have reached a terminal state.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startupRuns(ctx)

	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			o.inFlight.Wait()
			return ctx.Err()
		case <-ticker.C:
			o.fireDue(ctx)
		}
	}
}

func (o *Orchestrator) startupRuns(ctx context.Context) {
	for _, target := range o.registry.All() {
		if !target.RunOnStart {
			continue
		}
		o.mu.Lock()
		if o.states[target.ID] != StateIdle {
			o.mu.Unlock()
			continue
		}
		o.states[target.ID] = StateRunning
		o.inFlight.Add(1)
		o.mu.Unlock()

		o.logger.Printf("target %s: startup run", target.ID)
		o.publish(Event{Type: EventStateChanged, TargetID: target.ID, State: StateRunning, At: o.now()})
		go func(t Target) {
			defer o.inFlight.Done()
			o.execute(ctx, t, nil)
		}(target)
	}
}

func (o *Orchestrator) fireDue(ctx context.Context) {
	now := o.now()
	for _, targetID := range o.coalescer.Due(now) {
		o.mu.Lock()
		// A deadline elapsing while the target runs stays pending; the next
		// batch starts only after the current run's terminal transition.
		if o.states[targetID] != StateDebouncing {
			o.mu.Unlock()
			continue
		}
		batch, ok := o.coalescer.Take(targetID, now)
		if !ok {
			o.mu.Unlock()
			continue
		}
		target, _ := o.registry.Get(targetID)
		o.states[targetID] = StateRunning
		o.inFlight.Add(1)
		o.mu.Unlock()

		o.logger.Printf("target %s: debounce elapsed, triggering run (%d paths)", targetID, batch.Len())
		o.publish(Event{Type: EventStateChanged, TargetID: targetID, State: StateRunning, At: now})
		go func(t Target, b *PendingBatch) {
			defer o.inFlight.Done()
			o.execute(ctx, t, b)
		}(target, batch)
	}
}

func (o *Orchestrator) execute(ctx context.Context, target Target, batch *PendingBatch) {
	run, err := o.runner.Run(ctx, target, batch)
	if err != nil {
		// Single-flight violation: an orchestrator bug, not a pipeline
		// fault. Record it as a failed run so the target needs a fresh
		// change before anything retries.
		o.logger.Printf("target %s: BUG: %v", target.ID, err)
		now := time.Now().UTC()
		run = PipelineRun{
			TargetID:     target.ID,
			StartedAt:    now,
			FinishedAt:   now,
			TriggerPaths: batch.Paths(),
			Outcome:      RunFailed,
			StageResults: []StageResult{{Name: "runner", Outcome: StageFailure, Message: err.Error()}},
		}
	}

	if o.recorder != nil {
		if recordErr := o.recorder.Record(run); recordErr != nil {
			o.logger.Printf("target %s: run log record failed: %v", target.ID, recordErr)
		}
	}

	o.mu.Lock()
	o.lastRuns[target.ID] = &run
	var next TargetState
	switch {
	case run.Outcome == RunFailed && !o.coalescer.Pending(target.ID):
		next = StateAwaitingChange
	case o.coalescer.Pending(target.ID):
		// Changes recorded during the run are the next batch's signal,
		// whatever this run's outcome was.
		next = StateDebouncing
	default:
		next = StateIdle
	}
	o.states[target.ID] = next
	o.mu.Unlock()

	o.logger.Printf("target %s: run %s finished outcome=%s stages=%d -> %s", target.ID, run.ID, run.Outcome, len(run.StageResults), next)
	o.publish(Event{Type: EventRunFinished, TargetID: target.ID, State: next, Run: &run, At: o.now()})
}

// State returns the current state machine position for one target.
func (o *Orchestrator) State(targetID string) (TargetState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.states[targetID]
	return state, ok
}

func (o *Orchestrator) LastRun(targetID string) (*PipelineRun, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.lastRuns[targetID]
	if !ok {
		return nil, false
	}
	clone := *run
	return &clone, true
}

// Status snapshots every target in configuration order.
func (o *Orchestrator) Status() []TargetStatus {
	targets := o.registry.All()
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]TargetStatus, 0, len(targets))
	for _, target := range targets {
		status := TargetStatus{TargetID: target.ID, State: o.states[target.ID]}
		if run, ok := o.lastRuns[target.ID]; ok {
			clone := *run
			status.LastRun = &clone
		}
		out = append(out, status)
	}
	return out
}

func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Subscribe returns a buffered event feed and its cancel function. Slow
// consumers drop events rather than stalling the control path.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextSub
	o.nextSub++
	ch := make(chan Event, eventBuffer)
	o.subscribers[id] = ch
	cancel := func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if existing, ok := o.subscribers[id]; ok {
			delete(o.subscribers, id)
			close(existing)
		}
	}
	return ch, cancel
}

func (o *Orchestrator) publish(event Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
