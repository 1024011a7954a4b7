package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// refFiles are the files under .git whose change means branch content may
// have moved.
var refFiles = map[string]bool{
	"FETCH_HEAD":  true,
	"ORIG_HEAD":   true,
	"HEAD":        true,
	"packed-refs": true,
}

// Watcher turns filesystem events into session triggers: a write to a
// watched document is a save, a ref change drops cached snapshots and
// refreshes every session.
type Watcher struct {
	watcher    *fsnotify.Watcher
	manager    *Manager
	gitDir     string
	invalidate func()
	logger     *zap.Logger

	mu   sync.Mutex
	dirs map[string]bool
}

// NewWatcher watches gitDir right away. invalidate is called on ref changes
// before sessions are refreshed.
func NewWatcher(manager *Manager, gitDir string, invalidate func(), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if gitDir != "" {
		gitDir = filepath.Clean(gitDir)
	}

	w := &Watcher{
		watcher:    watcher,
		manager:    manager,
		gitDir:     gitDir,
		invalidate: invalidate,
		logger:     logger,
		dirs:       make(map[string]bool),
	}

	if gitDir != "" {
		if err := watcher.Add(gitDir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watching %s: %w", gitDir, err)
		}
	}

	return w, nil
}

// Watch starts watching the directory of path and opens a session for it.
func (w *Watcher) Watch(path string) error {
	path = normalize(path)
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.dirs[dir] {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		w.dirs[dir] = true
	}

	w.manager.Notify(path, TriggerFocus)
	return nil
}

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleFSEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	name := filepath.Clean(event.Name)

	if w.gitDir != "" && filepath.Dir(name) == w.gitDir {
		if refFiles[filepath.Base(name)] {
			w.logger.Debug("refs changed", zap.String("file", filepath.Base(name)))
			if w.invalidate != nil {
				w.invalidate()
			}
			w.manager.RefreshAll()
		}
		return
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if w.manager.Has(name) {
		w.manager.Notify(name, TriggerSave)
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
