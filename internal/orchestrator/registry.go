package orchestrator

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const defaultDebounceWindow = 2 * time.Second

// Registry holds the immutable target configuration, keyed by target ID and,
// for webhook targets, by repository name. Read-only after construction, so
// safe for concurrent use without locking.
type Registry struct {
	targets      map[string]Target
	byRepository map[string]string
	order        []string
}

// NewRegistry validates every target and fails whole: a single bad target
// means no registry, never a partial one.
func NewRegistry(targets []Target) (*Registry, error) {
	r := &Registry{
		targets:      map[string]Target{},
		byRepository: map[string]string{},
	}
	for _, target := range targets {
		target.ID = strings.TrimSpace(target.ID)
		if target.ID == "" {
			return nil, fmt.Errorf("%w: missing target id", ErrInvalidTarget)
		}
		if _, exists := r.targets[target.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate target id %s", ErrInvalidTarget, target.ID)
		}
		if len(target.Stages) == 0 {
			return nil, fmt.Errorf("%w: target %s has no pipeline stages", ErrInvalidTarget, target.ID)
		}
		if target.DebounceWindow <= 0 {
			target.DebounceWindow = defaultDebounceWindow
		}

		switch target.Source {
		case SourceFilesystem:
			if strings.TrimSpace(target.Path) == "" {
				return nil, fmt.Errorf("%w: target %s has no path", ErrInvalidTarget, target.ID)
			}
			info, err := os.Stat(target.Path)
			if err != nil {
				return nil, fmt.Errorf("%w: target %s path %s: %v", ErrInvalidTarget, target.ID, target.Path, err)
			}
			if !info.IsDir() {
				return nil, fmt.Errorf("%w: target %s path %s is not a directory", ErrInvalidTarget, target.ID, target.Path)
			}
		case SourceWebhookRepository:
			repo := strings.TrimSpace(target.Repository)
			if repo == "" {
				return nil, fmt.Errorf("%w: target %s has no repository", ErrInvalidTarget, target.ID)
			}
			if existing, exists := r.byRepository[repo]; exists {
				return nil, fmt.Errorf("%w: repository %s claimed by both %s and %s", ErrInvalidTarget, repo, existing, target.ID)
			}
			target.Repository = repo
			r.byRepository[repo] = target.ID
		default:
			return nil, fmt.Errorf("%w: target %s has unsupported source %q", ErrInvalidTarget, target.ID, target.Source)
		}

		r.targets[target.ID] = target
		r.order = append(r.order, target.ID)
	}
	return r, nil
}

func (r *Registry) Get(targetID string) (Target, bool) {
	target, ok := r.targets[targetID]
	return target, ok
}

func (r *Registry) GetByRepository(repository string) (Target, bool) {
	targetID, ok := r.byRepository[strings.TrimSpace(repository)]
	if !ok {
		return Target{}, false
	}
	return r.Get(targetID)
}

// All returns targets in configuration order.
func (r *Registry) All() []Target {
	out := make([]Target, 0, len(r.order))
	for _, targetID := range r.order {
		out = append(out, r.targets[targetID])
	}
	return out
}

// MinDebounceWindow informs the control loop's poll granularity.
func (r *Registry) MinDebounceWindow() time.Duration {
	min := time.Duration(0)
	for _, target := range r.targets {
		if min == 0 || target.DebounceWindow < min {
			min = target.DebounceWindow
		}
	}
	return min
}
