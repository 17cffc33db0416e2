package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/dropship/internal/ports"
)

// StopWatcher watches an artifact directory for a STOP file. Creating the
// file asks a running disbursement to stop at its next pacing boundary,
// the same way SIGINT does.
type StopWatcher struct {
	dir    string
	logger ports.Logger
}

// NewStopWatcher creates a watcher for dir.
func NewStopWatcher(dir string, logger ports.Logger) *StopWatcher {
	return &StopWatcher{dir: dir, logger: logger}
}

// Path returns the location of the stop file.
func (w *StopWatcher) Path() string {
	return filepath.Join(w.dir, StopFile)
}

// ClearStale removes a stop file left over from an earlier run.
// It reports whether a file was removed.
func (w *StopWatcher) ClearStale() (bool, error) {
	err := os.Remove(w.Path())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	w.logger.Warn("removed stale stop file", ports.String("path", w.Path()))
	return true, nil
}

// Run blocks until ctx is done or the stop file appears. When it appears,
// stop is called once and Run returns nil.
func (w *StopWatcher) Run(ctx context.Context, stop func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("stop watcher: create: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("stop watcher: watch %s: %w", w.dir, err)
	}

	// The file may have been created before the watch was registered.
	if FileExists(w.Path()) {
		w.trigger(stop)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != StopFile {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.trigger(stop)
			return nil

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("stop watcher error", ports.Err(err))
		}
	}
}

func (w *StopWatcher) trigger(stop func()) {
	w.logger.Info("stop file detected, stopping after the current transfer", ports.String("path", w.Path()))
	stop()
}
