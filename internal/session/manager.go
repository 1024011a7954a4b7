package session

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"premerge/internal/predictor"
)

// Manager owns one Session per document path.
type Manager struct {
	analyzer Analyzer
	branches []string
	debounce time.Duration
	onCommit CommitHook
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

type Option func(*Manager)

func WithDebounce(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.debounce = d
		}
	}
}

// WithCommitHook registers fn to observe committed passes. fn runs on the
// pass goroutine.
func WithCommitHook(fn CommitHook) Option {
	return func(m *Manager) {
		m.onCommit = fn
	}
}

func NewManager(analyzer Analyzer, branches []string, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		analyzer: analyzer,
		branches: append([]string(nil), branches...),
		debounce: DefaultDebounce,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func normalize(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Notify delivers t to the session for path, creating it on first use.
func (m *Manager) Notify(path string, t Trigger) bool {
	s := m.session(normalize(path), true)
	if s == nil {
		return false
	}
	return s.Notify(t)
}

func (m *Manager) session(path string, create bool) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[path]; ok {
		return s
	}
	if !create || m.closed {
		return nil
	}

	s := newSession(m.ctx, path, m.analyzer, m.branches, m.debounce, m.onCommit, m.logger)
	m.sessions[path] = s
	return s
}

// Has reports whether path has a session.
func (m *Manager) Has(path string) bool {
	return m.session(normalize(path), false) != nil
}

// Snapshot returns the committed state for path.
func (m *Manager) Snapshot(path string) (predictor.Snapshot, bool) {
	s := m.session(normalize(path), false)
	if s == nil {
		return predictor.Snapshot{}, false
	}
	return s.Store().Snapshot(), true
}

// RegionsAt returns the regions of path that contain line.
func (m *Manager) RegionsAt(path string, line int) []predictor.ConflictRegion {
	s := m.session(normalize(path), false)
	if s == nil {
		return nil
	}
	return s.Store().RegionsAt(line)
}

// Paths lists documents with a session, sorted.
func (m *Manager) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths := make([]string, 0, len(m.sessions))
	for p := range m.sessions {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// RefreshAll runs a pass for every document.
func (m *Manager) RefreshAll() {
	for _, p := range m.Paths() {
		if s := m.session(p, false); s != nil {
			s.Notify(TriggerRefresh)
		}
	}
}

// Forget closes and drops the session for path.
func (m *Manager) Forget(path string) {
	path = normalize(path)

	m.mu.Lock()
	s, ok := m.sessions[path]
	delete(m.sessions, path)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
}

// Close stops every session. Notify returns false afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	m.cancel()
	for _, s := range sessions {
		s.Close()
	}
}
