// Package document supplies the in-progress text of a file, which may differ
// from what is saved on disk.
package document

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Source yields the current working content of a document.
type Source interface {
	CurrentContent(path string) (string, error)
}

// Overlay serves unsaved editor buffers and falls back to the file on disk.
// Buffers are keyed by cleaned absolute path.
type Overlay struct {
	mu      sync.RWMutex
	buffers map[string]string
}

var _ Source = (*Overlay)(nil)

func NewOverlay() *Overlay {
	return &Overlay{buffers: make(map[string]string)}
}

func key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// SetBuffer records unsaved content for path.
func (o *Overlay) SetBuffer(path, content string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buffers[key(path)] = content
}

// ClearBuffer forgets the unsaved content, e.g. after a save or close.
func (o *Overlay) ClearBuffer(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.buffers, key(path))
}

func (o *Overlay) HasBuffer(path string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.buffers[key(path)]
	return ok
}

func (o *Overlay) CurrentContent(path string) (string, error) {
	o.mu.RLock()
	content, ok := o.buffers[key(path)]
	o.mu.RUnlock()
	if ok {
		return content, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading working copy of %s: %w", path, err)
	}
	return string(data), nil
}
