// Package orchestrator coalesces change notifications per watched target and
// drives the extract/validate/index pipeline with single-flight discipline.
package orchestrator

import (
	"time"

	"github.com/driftwatch/driftwatch/internal/stage"
)

type SourceKind string

const (
	SourceFilesystem        SourceKind = "filesystem"
	SourceWebhookRepository SourceKind = "webhook-repository"
)

// PipelineStage pairs a stage implementation with its execution timeout.
// Timeout zero means the stage inherits only the run's parent context.
type PipelineStage struct {
	Stage   stage.Stage
	Timeout time.Duration
}

// Target is one watched unit of work. Immutable after registry construction;
// exactly one runtime state machine exists per target.
type Target struct {
	ID                string
	Source            SourceKind
	Path              string
	Repository        string
	DebounceWindow    time.Duration
	IncludeExtensions []string
	IgnorePatterns    []string
	RunOnStart        bool
	Stages            []PipelineStage
}

func (t Target) Locator() string {
	if t.Source == SourceFilesystem {
		return t.Path
	}
	return t.Repository
}

type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventRemoved  EventKind = "removed"
)

type EventSource string

const (
	SourceWatch   EventSource = "filesystem-watch"
	SourceWebhook EventSource = "webhook"
)

// ChangeEvent is a single observed modification. Transient: consumed by the
// filter and coalescer, never persisted.
type ChangeEvent struct {
	Paths      []string
	Kind       EventKind
	ObservedAt time.Time
	Source     EventSource
}

type TargetState string

const (
	StateIdle           TargetState = "idle"
	StateDebouncing     TargetState = "debouncing"
	StateRunning        TargetState = "running"
	StateAwaitingChange TargetState = "awaiting_change_after_failure"
)

type StageOutcome string

const (
	StageSuccess StageOutcome = "success"
	StageFailure StageOutcome = "failure"
)

type StageResult struct {
	Name       string       `json:"stageName"`
	Outcome    StageOutcome `json:"outcome"`
	DurationMs int64        `json:"durationMs"`
	Message    string       `json:"message,omitempty"`
}

type RunOutcome string

const (
	RunSuccess RunOutcome = "success"
	RunFailed  RunOutcome = "failed"
	RunAborted RunOutcome = "aborted"
)

// PipelineRun is one execution instance, immutable once terminal.
type PipelineRun struct {
	ID           string        `json:"id"`
	TargetID     string        `json:"targetId"`
	StartedAt    time.Time     `json:"startedAt"`
	FinishedAt   time.Time     `json:"finishedAt"`
	TriggerPaths []string      `json:"triggerPaths,omitempty"`
	StageResults []StageResult `json:"stageResults"`
	Outcome      RunOutcome    `json:"outcome"`
}

type DispatchStatus string

const (
	DispatchAccepted      DispatchStatus = "accepted"
	DispatchSkipped       DispatchStatus = "skipped"
	DispatchUnknownTarget DispatchStatus = "unknown_target"
)

type DispatchResult struct {
	Status        DispatchStatus
	AcceptedPaths int
}

type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventRunFinished  EventType = "run_finished"
)

// Event is the orchestrator's observable feed, consumed by the websocket
// status stream and by tests.
type Event struct {
	Type     EventType    `json:"type"`
	TargetID string       `json:"targetId"`
	State    TargetState  `json:"state,omitempty"`
	Run      *PipelineRun `json:"run,omitempty"`
	At       time.Time    `json:"at"`
}

type TargetStatus struct {
	TargetID string       `json:"targetId"`
	State    TargetState  `json:"state"`
	LastRun  *PipelineRun `json:"lastRun,omitempty"`
}
