// Package watchfs turns recursive fsnotify watches into change events for
// filesystem targets. It only observes and dispatches; filtering and
// debouncing belong to the orchestrator.
package watchfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/driftwatch/driftwatch/internal/orchestrator"
)

// Dispatcher is the slice of the orchestrator the watcher needs.
type Dispatcher interface {
	Dispatch(targetID string, event orchestrator.ChangeEvent) orchestrator.DispatchResult
}

type Watcher struct {
	target     orchestrator.Target
	dispatcher Dispatcher
	logger     *log.Logger
	fsw        *fsnotify.Watcher
}

func New(target orchestrator.Target, dispatcher Dispatcher, logger *log.Logger) (*Watcher, error) {
	if target.Source != orchestrator.SourceFilesystem {
		return nil, fmt.Errorf("watchfs: target %s is not a filesystem target", target.ID)
	}
	if dispatcher == nil {
		return nil, errors.New("watchfs: dispatcher is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{target: target, dispatcher: dispatcher, logger: logger, fsw: fsw}
	if err := w.addRecursive(target.Path); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run pumps watch events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("watch error for target %s: %v", w.target.ID, err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	var kind orchestrator.EventKind
	switch {
	case event.Op.Has(fsnotify.Create):
		kind = orchestrator.EventCreated
	case event.Op.Has(fsnotify.Write):
		kind = orchestrator.EventModified
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		kind = orchestrator.EventRemoved
	default:
		return
	}

	if kind == orchestrator.EventCreated {
		// New directories need their own watch before events inside them
		// can be seen. The create may race with a removal; stat decides.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Printf("watch add for %s failed: %v", event.Name, err)
			}
			return
		}
	}

	path := event.Name
	if rel, err := filepath.Rel(w.target.Path, event.Name); err == nil {
		path = rel
	}
	w.dispatcher.Dispatch(w.target.ID, orchestrator.ChangeEvent{
		Paths:      []string{path},
		Kind:       kind,
		ObservedAt: time.Now().UTC(),
		Source:     orchestrator.SourceWatch,
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			// Entries can vanish mid-walk; a missing one is not fatal.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && w.ignoredDir(entry.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) ignoredDir(name string) bool {
	for _, pattern := range w.target.IgnorePatterns {
		if name == pattern {
			return true
		}
	}
	return false
}
