package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GoGit reads the repository in-process. Access to the underlying
// repository is serialized.
type GoGit struct {
	mu   sync.Mutex
	repo *gogit.Repository
	root string
}

var _ Repository = (*GoGit)(nil)

// NewGoGit opens the repository containing dir.
func NewGoGit(dir string) (*GoGit, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotGitRepo, dir)
		}
		return nil, fmt.Errorf("opening repository at %s: %w", dir, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("repository at %s has no worktree: %w", dir, err)
	}

	return &GoGit{repo: repo, root: wt.Filesystem.Root()}, nil
}

// Repository exposes the go-git handle.
func (g *GoGit) Repository() *gogit.Repository {
	return g.repo
}

func (g *GoGit) CurrentBranch(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	head, err := g.repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "HEAD", nil
	}
	return head.Name().Short(), nil
}

func (g *GoGit) RefExists(ctx context.Context, ref string) (bool, error) {
	if ref == "" {
		return false, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, name := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(ref),
		plumbing.ReferenceName("refs/remotes/" + ref),
	} {
		_, err := g.repo.Reference(name, true)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, plumbing.ErrReferenceNotFound) {
			return false, fmt.Errorf("resolving %s: %w", name, err)
		}
	}
	return false, nil
}

// commit must be called with g.mu held.
func (g *GoGit) commit(ref string) (*object.Commit, error) {
	hash, err := g.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, ErrRefNotFound)
	}

	c, err := g.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("loading commit %s: %w", hash, err)
	}
	return c, nil
}

func (g *GoGit) MergeBase(ctx context.Context, refA, refB string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	a, err := g.commit(refA)
	if err != nil {
		return "", err
	}
	b, err := g.commit(refB)
	if err != nil {
		return "", err
	}

	bases, err := a.MergeBase(b)
	if err != nil {
		return "", fmt.Errorf("merge-base %s %s: %w", refA, refB, err)
	}
	if len(bases) == 0 {
		return "", fmt.Errorf("%s and %s: %w", refA, refB, ErrNoMergeBase)
	}
	return bases[0].Hash.String(), nil
}

func (g *GoGit) FileContentAt(ctx context.Context, ref, relPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	c, err := g.commit(ref)
	if err != nil {
		return "", err
	}

	f, err := c.File(relPath)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", fmt.Errorf("%s at %s: %w", relPath, ref, ErrFileNotFound)
		}
		return "", fmt.Errorf("reading %s at %s: %w", relPath, ref, err)
	}

	content, err := f.Contents()
	if err != nil {
		return "", fmt.Errorf("reading %s at %s: %w", relPath, ref, err)
	}
	return content, nil
}

func (g *GoGit) RepositoryRoot(ctx context.Context) (string, error) {
	return g.root, nil
}

func (g *GoGit) ListBranches(ctx context.Context) ([]Branch, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	refs, err := g.repo.References()
	if err != nil {
		return nil, fmt.Errorf("listing references: %w", err)
	}
	defer refs.Close()

	var local, remote []string
	err = refs.ForEach(func(r *plumbing.Reference) error {
		if r.Type() != plumbing.HashReference {
			return nil
		}
		name := r.Name()
		switch {
		case name.IsBranch():
			local = append(local, name.Short())
		case name.IsRemote():
			remote = append(remote, strings.TrimPrefix(name.String(), "refs/remotes/"))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing references: %w", err)
	}

	sort.Strings(local)
	sort.Strings(remote)
	return mergeBranches(local, remote), nil
}

func (g *GoGit) Fetch(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	remotes, err := g.repo.Remotes()
	if err != nil {
		return fmt.Errorf("listing remotes: %w", err)
	}

	for _, r := range remotes {
		err := r.FetchContext(ctx, &gogit.FetchOptions{RemoteName: r.Config().Name})
		if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
			return fmt.Errorf("fetching %s: %w", r.Config().Name, err)
		}
	}
	return nil
}

func (g *GoGit) DownloadBranch(ctx context.Context, remoteRef string) (string, error) {
	remote, branch, err := SplitRemoteRef(remoteRef)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	remoteName := plumbing.NewRemoteReferenceName(remote, branch)
	spec := config.RefSpec(fmt.Sprintf("+%s:%s", plumbing.NewBranchReferenceName(branch), remoteName))

	err = g.repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{spec},
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return "", fmt.Errorf("fetching %s: %w", remoteRef, err)
	}

	ref, err := g.repo.Reference(remoteName, true)
	if err != nil {
		return "", fmt.Errorf("%s: %w", remoteRef, ErrRefNotFound)
	}

	local := plumbing.NewBranchReferenceName(branch)
	if _, err := g.repo.Reference(local, false); err == nil {
		return "", fmt.Errorf("branch %s already exists", branch)
	}

	if err := g.repo.Storer.SetReference(plumbing.NewHashReference(local, ref.Hash())); err != nil {
		return "", fmt.Errorf("creating branch %s: %w", branch, err)
	}

	err = g.repo.CreateBranch(&config.Branch{Name: branch, Remote: remote, Merge: local})
	if err != nil && !errors.Is(err, gogit.ErrBranchExists) {
		return "", fmt.Errorf("configuring branch %s: %w", branch, err)
	}

	return branch, nil
}
