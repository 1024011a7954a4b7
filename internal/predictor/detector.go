// Package predictor finds the lines of a working copy that would likely
// conflict with tracked branches if merged.
//
// For each tracked branch the detector diffs the merge base against the
// working copy and against the branch, and reports every pair of added
// ranges that overlap. It never performs a merge.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"premerge/internal/cache"
	"premerge/internal/diff"
	"premerge/internal/document"
	apperrors "premerge/internal/errors"
	"premerge/internal/gateway"
)

// DefaultMaxParallel bounds how many branches are analyzed at once.
const DefaultMaxParallel = 4

type Options struct {
	// MaxParallel bounds concurrent branch analyses.
	MaxParallel int
	// CacheBase caches merge-base snapshots under the merge-base commit id.
	CacheBase bool
	// Coalesce merges overlapping or touching regions of the same branch.
	Coalesce bool
}

func DefaultOptions() Options {
	return Options{
		MaxParallel: DefaultMaxParallel,
		CacheBase:   true,
	}
}

type Detector struct {
	gateway gateway.Gateway
	cache   cache.Cache
	docs    document.Source
	engine  *diff.Engine
	opts    Options
	logger  *zap.Logger

	fetches singleflight.Group

	// epoch counts ClearCache calls. A fetch started in an older epoch
	// must not populate the cache.
	epoch        atomic.Uint64
	invalidation sync.RWMutex
}

func New(gw gateway.Gateway, c cache.Cache, docs document.Source, engine *diff.Engine, logger *zap.Logger, opts Options) *Detector {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	if engine == nil {
		engine = diff.NewEngine(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		gateway: gw,
		cache:   c,
		docs:    docs,
		engine:  engine,
		opts:    opts,
		logger:  logger,
	}
}

type passIDKey struct{}

// WithPassID tags ctx with an analysis pass id used in log fields.
func WithPassID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, passIDKey{}, id)
}

// PassID returns the pass id carried by ctx, if any.
func PassID(ctx context.Context) string {
	id, _ := ctx.Value(passIDKey{}).(string)
	return id
}

// target is a resolved document: where it lives and what it says now.
type target struct {
	current string
	absPath string
	relPath string
	ours    string
}

func (d *Detector) resolve(ctx context.Context, path string) (*target, error) {
	current, err := d.gateway.CurrentBranch(ctx)
	if err != nil {
		return nil, apperrors.Resolution("could not determine current branch", err)
	}

	root, err := d.gateway.RepositoryRoot(ctx)
	if err != nil {
		return nil, apperrors.Resolution("could not determine repository root", err)
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	rel, err := gateway.RelativePath(root, abs)
	if err != nil {
		return nil, apperrors.Resolution("document is not inside the repository", err)
	}

	ours, err := d.docs.CurrentContent(abs)
	if err != nil {
		return nil, apperrors.Resolution("could not read working content", err)
	}

	return &target{current: current, absPath: abs, relPath: rel, ours: ours}, nil
}

// Analyze predicts conflicts between the working content of path and each
// of branches. A resolution failure is returned as an *errors.Error of type
// RESOLUTION; a failure on one branch only drops that branch's regions.
// Results follow the order of branches.
func (d *Detector) Analyze(ctx context.Context, path string, branches []string) ([]ConflictRegion, error) {
	start := time.Now()
	logger := d.logger.With(zap.String("path", path))
	if id := PassID(ctx); id != "" {
		logger = logger.With(zap.String("pass_id", id))
	}

	t, err := d.resolve(ctx, path)
	if err != nil {
		logger.Warn("analysis could not run", zap.Error(err))
		return nil, err
	}

	perBranch := make([][]ConflictRegion, len(branches))

	var g errgroup.Group
	g.SetLimit(d.opts.MaxParallel)
	for i, branch := range branches {
		g.Go(func() error {
			regions, err := d.analyzeBranch(ctx, t, branch)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("skipping branch", zap.String("branch", branch), zap.Error(err))
				}
				return nil
			}
			perBranch[i] = regions
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var regions []ConflictRegion
	for _, r := range perBranch {
		regions = append(regions, r...)
	}

	logger.Debug("analysis complete",
		zap.Int("branches", len(branches)),
		zap.Int("regions", len(regions)),
		zap.Duration("duration", time.Since(start)),
	)
	return regions, nil
}

func (d *Detector) analyzeBranch(ctx context.Context, t *target, branch string) ([]ConflictRegion, error) {
	if branch == t.current || !d.BranchExists(ctx, branch) {
		return nil, nil
	}

	theirs, err := d.content(ctx, branch, t.relPath)
	if err != nil {
		if errors.Is(err, gateway.ErrFileNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s at %s: %w", t.relPath, branch, err)
	}

	base := d.baseContent(ctx, t, branch)

	ourChanges := d.engine.AddedRanges(base, t.ours)
	theirChanges := d.engine.AddedRanges(base, theirs)

	regions := buildRegions(branch, FindOverlaps(ourChanges, theirChanges), diff.SplitLines(theirs))
	if d.opts.Coalesce {
		regions = CoalesceRegions(regions, theirs)
	}
	return regions, nil
}

// baseContent returns the file at the merge base of the current branch and
// branch. Missing history or a missing file both mean an empty base.
func (d *Detector) baseContent(ctx context.Context, t *target, branch string) string {
	mergeBase, err := d.gateway.MergeBase(ctx, t.current, branch)
	if err != nil {
		if !errors.Is(err, gateway.ErrNoMergeBase) {
			d.logger.Debug("merge base unavailable",
				zap.String("branch", branch), zap.String("path", t.relPath), zap.Error(err))
		}
		return ""
	}

	var base string
	if d.opts.CacheBase {
		base, err = d.content(ctx, mergeBase, t.relPath)
	} else {
		base, err = d.gateway.FileContentAt(ctx, mergeBase, t.relPath)
	}
	if err != nil {
		if !errors.Is(err, gateway.ErrFileNotFound) {
			d.logger.Debug("base snapshot unavailable",
				zap.String("branch", branch), zap.String("path", t.relPath), zap.Error(err))
		}
		return ""
	}
	return base
}

// content reads a snapshot through the cache. Concurrent misses on one key
// share a single gateway call. The shared call is detached from every
// caller's cancellation; each caller stops waiting when its own ctx ends.
func (d *Detector) content(ctx context.Context, ref, relPath string) (string, error) {
	if v, ok := d.cache.Get(ref, relPath); ok {
		return v, nil
	}

	epoch := d.epoch.Load()
	key := fmt.Sprintf("%d\x00%s\x00%s", epoch, ref, relPath)
	fetchCtx := context.WithoutCancel(ctx)

	ch := d.fetches.DoChan(key, func() (any, error) {
		content, err := d.gateway.FileContentAt(fetchCtx, ref, relPath)
		if err != nil {
			return "", err
		}
		d.store(epoch, ref, relPath, content)
		return content, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// store caches content read during epoch, unless the cache was cleared
// since.
func (d *Detector) store(epoch uint64, ref, relPath, content string) {
	d.invalidation.RLock()
	defer d.invalidation.RUnlock()

	if d.epoch.Load() != epoch {
		d.logger.Debug("dropping snapshot read before cache clear",
			zap.String("ref", ref), zap.String("path", relPath))
		return
	}
	d.cache.Put(ref, relPath, content)
}

// BranchExists reports whether ref names a local or remote-tracking branch.
// Errors count as absence.
func (d *Detector) BranchExists(ctx context.Context, ref string) bool {
	ok, err := d.gateway.RefExists(ctx, ref)
	if err != nil {
		d.logger.Debug("ref lookup failed", zap.String("branch", ref), zap.Error(err))
		return false
	}
	return ok
}

// ClearCache drops every cached snapshot. Fetches already in flight
// still answer their callers but are not cached.
func (d *Detector) ClearCache() {
	d.invalidation.Lock()
	defer d.invalidation.Unlock()

	d.epoch.Add(1)
	d.cache.InvalidateAll()
}
