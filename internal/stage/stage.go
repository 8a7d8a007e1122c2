// Package stage defines the pipeline stage boundary. A stage is an opaque
// unit of work (extractor, validator, indexer) invoked with a target locator
// and advisory change hints; the orchestrator assumes nothing about how a
// stage does its job, only that it reports a bounded success/failure outcome.
package stage

import "context"

// Request carries the inputs handed to every stage invocation. ChangedPaths
// is advisory: stages may operate on the full source state instead.
type Request struct {
	Locator      string
	ChangedPaths []string
}

type Result struct {
	OK      bool
	Message string
}

type Stage interface {
	Name() string
	Run(ctx context.Context, req Request) Result
}

// Func adapts a plain function to the Stage interface. Used in tests and for
// in-process stages.
type Func struct {
	StageName string
	Fn        func(ctx context.Context, req Request) Result
}

func (f Func) Name() string {
	if f.StageName == "" {
		return "func"
	}
	return f.StageName
}

func (f Func) Run(ctx context.Context, req Request) Result {
	if f.Fn == nil {
		return Result{OK: true}
	}
	return f.Fn(ctx, req)
}
