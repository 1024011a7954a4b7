// Package gateway reads version-controlled content: branch names, merge
// bases and file snapshots at a ref. Two backends exist, one driving the git
// binary and one running in-process on go-git.
package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrNotGitRepo   = errors.New("not a git repository")
	ErrFileNotFound = errors.New("file not found at ref")
	ErrNoMergeBase  = errors.New("no merge base")
	ErrRefNotFound  = errors.New("reference not found")
	ErrInvalidRef   = errors.New("invalid reference")
)

// Gateway is what the conflict detector needs from version control.
type Gateway interface {
	CurrentBranch(ctx context.Context) (string, error)
	RefExists(ctx context.Context, ref string) (bool, error)
	// MergeBase returns ErrNoMergeBase when the refs share no history.
	MergeBase(ctx context.Context, refA, refB string) (string, error)
	// FileContentAt returns ErrFileNotFound when relPath is absent at ref.
	FileContentAt(ctx context.Context, ref, relPath string) (string, error)
	RepositoryRoot(ctx context.Context) (string, error)
}

// Branch is a local or remote-tracking branch.
type Branch struct {
	Name   string `json:"name"`
	Remote bool   `json:"remote"`
}

// BranchLister enumerates branches for selection.
type BranchLister interface {
	ListBranches(ctx context.Context) ([]Branch, error)
}

// Syncer talks to remotes. Nothing in this package fetches on its own.
type Syncer interface {
	Fetch(ctx context.Context) error
	// DownloadBranch creates a local branch tracking remoteRef
	// ("origin/feature") and returns the local name.
	DownloadBranch(ctx context.Context, remoteRef string) (string, error)
}

// Repository is the full surface both backends provide.
type Repository interface {
	Gateway
	BranchLister
	Syncer
}

// Backend names accepted by Open.
const (
	BackendGit   = "git"
	BackendGoGit = "gogit"
)

// Open returns the backend named by backend for the repository containing dir.
func Open(backend, dir string, opts ...CLIOption) (Repository, error) {
	switch backend {
	case "", BackendGit:
		return NewCLI(dir, opts...)
	case BackendGoGit:
		return NewGoGit(dir)
	default:
		return nil, fmt.Errorf("unknown gateway backend %q", backend)
	}
}

// SplitRemoteRef splits "origin/feature/x" into ("origin", "feature/x").
func SplitRemoteRef(ref string) (remote, branch string, err error) {
	ref = strings.TrimPrefix(ref, "remotes/")
	i := strings.Index(ref, "/")
	if i <= 0 || i == len(ref)-1 || strings.ContainsAny(ref, " \t~^:?*[\\") {
		return "", "", fmt.Errorf("%w: %q is not of the form remote/branch", ErrInvalidRef, ref)
	}
	return ref[:i], ref[i+1:], nil
}

// RelativePath converts p, absolute or relative to root, into the
// slash-separated form used inside trees.
func RelativePath(root, p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return "", fmt.Errorf("resolving %s against %s: %w", p, root, err)
		}
		p = rel
	}
	rel := path.Clean(filepath.ToSlash(p))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside repository %s", p, root)
	}
	return rel, nil
}

// ParseBranchList reads `git branch -a` output. Local branches come first;
// a remote branch is listed only when no branch with its short name was
// listed before it. HEAD pointers and detached entries are skipped.
func ParseBranchList(output string) []Branch {
	var local, remote []string

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "* ")
		line = strings.TrimPrefix(line, "+ ")
		line = strings.TrimSpace(line)

		if line == "" || strings.HasPrefix(line, "(") || strings.Contains(line, "->") {
			continue
		}

		if strings.HasPrefix(line, "remotes/") {
			remote = append(remote, strings.TrimPrefix(line, "remotes/"))
			continue
		}
		local = append(local, line)
	}

	return mergeBranches(local, remote)
}

func mergeBranches(local, remote []string) []Branch {
	var branches []Branch
	seen := make(map[string]bool)

	for _, name := range local {
		if seen[name] {
			continue
		}
		branches = append(branches, Branch{Name: name})
		seen[name] = true
	}

	for _, name := range remote {
		i := strings.Index(name, "/")
		if i <= 0 {
			continue
		}
		short := name[i+1:]
		if short == "HEAD" || seen[name] || seen[short] {
			continue
		}
		branches = append(branches, Branch{Name: name, Remote: true})
		seen[name] = true
		seen[short] = true
	}

	return branches
}
