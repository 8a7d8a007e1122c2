package orchestrator

import "errors"

var (
	ErrUnknownTarget = errors.New("unknown target")
	ErrInvalidTarget = errors.New("invalid target configuration")
	// ErrRunInProgress is the defensive single-flight guard. The state
	// machine never calls the runner this way; seeing it means a bug.
	ErrRunInProgress = errors.New("pipeline run already in progress")
)
