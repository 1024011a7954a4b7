// Package session schedules analysis passes for open documents.
//
// Each document gets one Session with its own loop. Edits are debounced;
// saves, focus changes and refreshes run a pass at once. Starting a pass
// cancels the one in flight, and only the newest pass may commit.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "premerge/internal/errors"
	"premerge/internal/predictor"
)

// DefaultDebounce is the quiet period after the last edit before a pass runs.
const DefaultDebounce = 1500 * time.Millisecond

type Trigger int

const (
	TriggerEdit Trigger = iota
	TriggerSave
	TriggerFocus
	TriggerRefresh
)

func (t Trigger) String() string {
	switch t {
	case TriggerEdit:
		return "edit"
	case TriggerSave:
		return "save"
	case TriggerFocus:
		return "focus"
	case TriggerRefresh:
		return "refresh"
	default:
		return fmt.Sprintf("Trigger(%d)", int(t))
	}
}

// ParseTrigger maps an event name to a Trigger.
func ParseTrigger(s string) (Trigger, error) {
	switch s {
	case "edit":
		return TriggerEdit, nil
	case "save":
		return TriggerSave, nil
	case "focus":
		return TriggerFocus, nil
	case "refresh":
		return TriggerRefresh, nil
	}
	return 0, fmt.Errorf("unknown trigger %q", s)
}

// Analyzer runs one analysis pass. *predictor.Detector implements it.
type Analyzer interface {
	Analyze(ctx context.Context, path string, branches []string) ([]predictor.ConflictRegion, error)
}

// CommitHook observes every committed pass.
type CommitHook func(path, passID string, snap predictor.Snapshot)

type Session struct {
	path     string
	analyzer Analyzer
	branches []string
	debounce time.Duration
	store    *predictor.RegionStore
	onCommit CommitHook
	logger   *zap.Logger

	triggers   chan Trigger
	generation atomic.Uint64

	cancel context.CancelFunc
	done   chan struct{}
	passes sync.WaitGroup
}

func newSession(parent context.Context, path string, analyzer Analyzer, branches []string, debounce time.Duration, onCommit CommitHook, logger *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		path:     path,
		analyzer: analyzer,
		branches: branches,
		debounce: debounce,
		store:    predictor.NewRegionStore(),
		onCommit: onCommit,
		logger:   logger.With(zap.String("path", path)),
		triggers: make(chan Trigger, 16),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.loop(ctx)
	return s
}

func (s *Session) Path() string {
	return s.path
}

func (s *Session) Store() *predictor.RegionStore {
	return s.store
}

// Notify queues a trigger. It returns false once the session is closed.
func (s *Session) Notify(t Trigger) bool {
	select {
	case s.triggers <- t:
		return true
	case <-s.done:
		return false
	}
}

// Close stops the loop and waits for any pass in flight to finish.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)

	var (
		timer      *time.Timer
		timerC     <-chan time.Time
		cancelPass context.CancelFunc = func() {}
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timerC = nil
	}

	for {
		select {
		case <-ctx.Done():
			stopTimer()
			cancelPass()
			s.passes.Wait()
			return

		case t := <-s.triggers:
			if t == TriggerEdit {
				stopTimer()
				timer = time.NewTimer(s.debounce)
				timerC = timer.C
				continue
			}
			stopTimer()
			cancelPass = s.start(ctx, cancelPass, t)

		case <-timerC:
			timerC = nil
			cancelPass = s.start(ctx, cancelPass, TriggerEdit)
		}
	}
}

// start supersedes the running pass and launches a new one.
func (s *Session) start(ctx context.Context, cancelPrev context.CancelFunc, t Trigger) context.CancelFunc {
	cancelPrev()

	gen := s.generation.Add(1)
	passID := uuid.New().String()
	passCtx, cancel := context.WithCancel(predictor.WithPassID(ctx, passID))

	logger := s.logger.With(
		zap.Uint64("generation", gen),
		zap.String("pass_id", passID),
		zap.Stringer("trigger", t),
	)

	s.passes.Add(1)
	go func() {
		defer s.passes.Done()
		defer cancel()

		start := time.Now()
		regions, err := s.analyzer.Analyze(passCtx, s.path, s.branches)

		if passCtx.Err() != nil {
			logger.Debug("pass superseded")
			return
		}
		if err != nil && !apperrors.IsType(err, apperrors.ErrorTypeResolution) {
			logger.Error("pass failed", zap.Error(err))
			return
		}

		if !s.store.Commit(gen, regions, err) {
			logger.Debug("pass outdated on commit")
			return
		}
		logger.Debug("pass committed",
			zap.Int("regions", len(regions)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)

		if s.onCommit != nil {
			s.onCommit(s.path, passID, s.store.Snapshot())
		}
	}()

	return cancel
}
