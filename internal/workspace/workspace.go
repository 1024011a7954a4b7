// internal/workspace/workspace.go
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"premerge/internal/cache"
	"premerge/internal/config"
	"premerge/internal/diff"
	"premerge/internal/document"
	apperrors "premerge/internal/errors"
	"premerge/internal/gateway"
	"premerge/internal/predictor"
	"premerge/internal/report"
	"premerge/internal/session"
	"premerge/internal/storage"
	shared "premerge/shared/types"
)

// StateDir holds premerge's own files inside a repository.
const StateDir = ".premerge"

// Workspace wires the analysis stack for one repository.
type Workspace struct {
	Root      string
	Config    *config.Config
	Logger    *zap.Logger
	DB        *badger.DB
	Repo      gateway.Repository
	Cache     cache.Cache
	Documents *document.Overlay
	Engine    *diff.Engine
	Detector  *predictor.Detector
	Reports   *report.Store

	closers []func()
}

// Initialize creates the state directory under root.
func Initialize(root string) error {
	stateDir := filepath.Join(root, StateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("creating %s directory: %w", StateDir, err)
	}

	// Keep the state directory out of `git status`.
	ignore := filepath.Join(stateDir, ".gitignore")
	if _, err := os.Stat(ignore); os.IsNotExist(err) {
		if err := os.WriteFile(ignore, []byte("*\n"), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", ignore, err)
		}
	}
	return nil
}

// Open locates the repository containing dir and builds the stack
// described by cfg.
func Open(dir string, cfg *config.Config, logger *zap.Logger) (*Workspace, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for %s: %w", dir, err)
	}

	a := cfg.Analysis
	repo, err := gateway.Open(a.Backend, absDir, gateway.WithTimeout(a.GitTimeout))
	if err != nil {
		return nil, err
	}

	root, err := repo.RepositoryRoot(context.Background())
	if err != nil {
		return nil, fmt.Errorf("resolving repository root: %w", err)
	}

	w := &Workspace{
		Root:      root,
		Config:    cfg,
		Logger:    logger,
		Repo:      repo,
		Documents: document.NewOverlay(),
	}

	if err := Initialize(root); err != nil {
		return nil, fmt.Errorf("initializing directories: %w", err)
	}

	w.DB, err = w.openDB()
	if err != nil {
		return nil, err
	}
	w.closers = append(w.closers, func() { w.DB.Close() })

	algo, err := diff.ParseAlgorithm(a.DiffAlgorithm)
	if err != nil {
		w.Close()
		return nil, err
	}
	w.Engine = diff.NewEngine(3, diff.WithAlgorithm(algo))

	if err := w.buildCache(); err != nil {
		w.Close()
		return nil, err
	}

	w.Reports = report.NewStore(w.DB)
	w.Detector = predictor.New(repo, w.Cache, w.Documents, w.Engine, logger, predictor.Options{
		MaxParallel: a.MaxParallel,
		CacheBase:   a.CacheBase,
		Coalesce:    a.CoalesceRegions,
	})

	return w, nil
}

// openDB opens the on-disk database. A database held by another process
// (usually the daemon) degrades to an in-memory one so one-shot commands
// still work.
func (w *Workspace) openDB() (*badger.DB, error) {
	dbPath := w.Config.Database.Path
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(w.Root, dbPath)
	}

	db, err := storage.Open(dbPath)
	if err == nil {
		return db, nil
	}

	w.Logger.Warn("database unavailable, using in-memory state",
		zap.String("path", dbPath), zap.Error(err))

	return storage.OpenInMemory()
}

func (w *Workspace) buildCache() error {
	a := w.Config.Analysis

	memory, err := cache.NewMemory(a.CacheSize, a.CacheTTL)
	if err != nil {
		return fmt.Errorf("creating content cache: %w", err)
	}
	if !a.PersistentCache {
		w.Cache = memory
		return nil
	}

	persistent, err := cache.NewPersistent(w.DB, a.CacheTTL, w.Logger)
	if err != nil {
		return fmt.Errorf("creating persistent cache: %w", err)
	}
	w.closers = append(w.closers, persistent.Close)
	w.Cache = cache.NewTiered(memory, persistent)
	return nil
}

// Close releases the database and caches in reverse order of creation.
func (w *Workspace) Close() error {
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i]()
	}
	w.closers = nil
	return nil
}

// GitDir returns the repository's git directory, following a .git file
// as used by linked worktrees.
func (w *Workspace) GitDir() string {
	dotGit := filepath.Join(w.Root, ".git")

	info, err := os.Stat(dotGit)
	if err != nil || info.IsDir() {
		return dotGit
	}

	data, err := os.ReadFile(dotGit)
	if err != nil {
		return dotGit
	}
	line := strings.TrimSpace(string(data))
	if !strings.HasPrefix(line, "gitdir:") {
		return dotGit
	}
	dir := strings.TrimSpace(strings.TrimPrefix(line, "gitdir:"))
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(w.Root, dir)
	}
	return filepath.Clean(dir)
}

// AbsPath resolves path against the repository root when it is relative.
func (w *Workspace) AbsPath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(w.Root, path)
}

// TrackedBranches returns branches, or the configured set when empty.
func (w *Workspace) TrackedBranches(branches []string) []string {
	if len(branches) > 0 {
		return branches
	}
	return w.Config.Analysis.TrackedBranches
}

// Check runs one synchronous analysis pass over path and records it as the
// document's latest report. content, when non-nil, replaces the on-disk
// text for this and later passes. A resolution failure returns both the
// failed report and the error.
func (w *Workspace) Check(ctx context.Context, path string, branches []string, content *string) (*report.Report, error) {
	abs := w.AbsPath(path)
	if content != nil {
		w.Documents.SetBuffer(abs, *content)
	}
	branches = w.TrackedBranches(branches)

	passID := uuid.New().String()
	regions, err := w.Detector.Analyze(predictor.WithPassID(ctx, passID), abs, branches)
	if err != nil && !apperrors.IsType(err, apperrors.ErrorTypeResolution) {
		return nil, err
	}

	ours, readErr := w.Documents.CurrentContent(abs)
	if readErr != nil {
		ours = ""
	}

	r := report.New(abs, passID, ours, branches, regions, err)
	w.SaveReport(r)
	return r, err
}

// SaveReport persists r, logging failures.
func (w *Workspace) SaveReport(r *report.Report) {
	if err := w.Reports.Save(r); err != nil {
		w.Logger.Warn("saving report", zap.String("path", r.Path), zap.Error(err))
	}
}

// CommitHook persists every committed session pass as a report.
func (w *Workspace) CommitHook() session.CommitHook {
	return func(path, passID string, snap predictor.Snapshot) {
		ours, err := w.Documents.CurrentContent(path)
		if err != nil {
			ours = ""
		}
		w.SaveReport(report.New(path, passID, ours, w.Config.Analysis.TrackedBranches, snap.Regions, snap.Err))
	}
}

// NewManager creates a session manager over this workspace's detector.
func (w *Workspace) NewManager(opts ...session.Option) *session.Manager {
	opts = append([]session.Option{
		session.WithDebounce(w.Config.Analysis.DebounceDelay),
		session.WithCommitHook(w.CommitHook()),
	}, opts...)
	return session.NewManager(w.Detector, w.Config.Analysis.TrackedBranches, w.Logger, opts...)
}

// Branches lists local and remote branches, flagging tracked ones. Tracked
// branches that do not exist are appended with Exists false.
func (w *Workspace) Branches(ctx context.Context) ([]shared.BranchInfo, error) {
	listed, err := w.Repo.ListBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}

	current, err := w.Repo.CurrentBranch(ctx)
	if err != nil {
		current = ""
	}

	tracked := make(map[string]bool)
	for _, b := range w.Config.Analysis.TrackedBranches {
		tracked[b] = true
	}

	seen := make(map[string]bool)
	infos := make([]shared.BranchInfo, 0, len(listed))
	for _, b := range listed {
		seen[b.Name] = true
		infos = append(infos, shared.BranchInfo{
			Name:    b.Name,
			Remote:  b.Remote,
			Tracked: tracked[b.Name],
			Exists:  true,
			Current: b.Name == current,
		})
	}

	var missing []string
	for name := range tracked {
		if !seen[name] && !w.Detector.BranchExists(ctx, name) {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	for _, name := range missing {
		infos = append(infos, shared.BranchInfo{Name: name, Tracked: true})
	}

	return infos, nil
}

// Fetch updates remote-tracking refs once and drops cached snapshots.
func (w *Workspace) Fetch(ctx context.Context) error {
	if err := w.Repo.Fetch(ctx); err != nil {
		return fmt.Errorf("fetching: %w", err)
	}
	w.Detector.ClearCache()
	return nil
}

// DownloadBranch creates a local branch for remoteRef and drops cached
// snapshots.
func (w *Workspace) DownloadBranch(ctx context.Context, remoteRef string) (string, error) {
	local, err := w.Repo.DownloadBranch(ctx, remoteRef)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidRef) {
			return "", apperrors.ValidationError(err.Error(), map[string]string{"ref": remoteRef})
		}
		return "", fmt.Errorf("downloading %s: %w", remoteRef, err)
	}
	w.Detector.ClearCache()
	return local, nil
}

// FileDiff diffs path at ref against its working content.
func (w *Workspace) FileDiff(ctx context.Context, ref, path string) (*diff.DiffResult, error) {
	abs := w.AbsPath(path)
	rel, err := gateway.RelativePath(w.Root, abs)
	if err != nil {
		return nil, apperrors.ValidationError(err.Error(), nil)
	}

	base, err := w.Repo.FileContentAt(ctx, ref, rel)
	if err != nil && !errors.Is(err, gateway.ErrFileNotFound) {
		return nil, err
	}

	ours, err := w.Documents.CurrentContent(abs)
	if err != nil {
		return nil, err
	}

	return w.Engine.Diff([]byte(base), []byte(ours))
}
