package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultGitTimeout bounds a single git invocation.
const DefaultGitTimeout = 10 * time.Second

// CLI drives the git binary. Every call runs in the repository root.
type CLI struct {
	root    string
	binary  string
	timeout time.Duration
}

var _ Repository = (*CLI)(nil)

// CLIOption configures a CLI backend.
type CLIOption func(*CLI)

// WithTimeout bounds each git command. Zero disables the bound.
func WithTimeout(d time.Duration) CLIOption {
	return func(c *CLI) {
		c.timeout = d
	}
}

// WithGitBinary overrides the git executable.
func WithGitBinary(path string) CLIOption {
	return func(c *CLI) {
		c.binary = path
	}
}

// commandError keeps the exit status and stderr of a failed git command so
// callers can classify the failure.
type commandError struct {
	op       string
	err      error
	exitCode int
	stdout   string
	stderr   string
}

func (e *commandError) Error() string {
	return fmt.Sprintf("%s failed: %v\nStdout: %s\nStderr: %s", e.op, e.err, e.stdout, e.stderr)
}

func (e *commandError) Unwrap() error {
	return e.err
}

func formatCommandError(op string, err error, stdout, stderr bytes.Buffer) error {
	if err == nil {
		return nil
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}

	return &commandError{
		op:       op,
		err:      err,
		exitCode: code,
		stdout:   strings.TrimSpace(stdout.String()),
		stderr:   strings.TrimSpace(stderr.String()),
	}
}

// NewCLI locates the repository containing dir.
func NewCLI(dir string, opts ...CLIOption) (*CLI, error) {
	c := &CLI{
		root:    dir,
		binary:  "git",
		timeout: DefaultGitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if _, err := exec.LookPath(c.binary); err != nil {
		return nil, fmt.Errorf("git executable %q: %w", c.binary, err)
	}

	out, err := c.run(context.Background(), "resolve repository root", "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotGitRepo, dir, err)
	}
	c.root = strings.TrimSpace(out)

	return c, nil
}

func (c *CLI) run(ctx context.Context, op string, args ...string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = c.root
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s: %w", op, ctxErr)
		}
		return "", formatCommandError(op, err, stdout, stderr)
	}

	return stdout.String(), nil
}

func exitCode(err error) int {
	var cmdErr *commandError
	if errors.As(err, &cmdErr) {
		return cmdErr.exitCode
	}
	return -1
}

func stderrOf(err error) string {
	var cmdErr *commandError
	if errors.As(err, &cmdErr) {
		return cmdErr.stderr
	}
	return ""
}

func (c *CLI) CurrentBranch(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "get current branch", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RefExists checks refs/heads/<ref>, then refs/remotes/<ref>.
func (c *CLI) RefExists(ctx context.Context, ref string) (bool, error) {
	if ref == "" {
		return false, nil
	}

	for _, full := range []string{"refs/heads/" + ref, "refs/remotes/" + ref} {
		_, err := c.run(ctx, "verify ref", "show-ref", "--verify", "--quiet", full)
		if err == nil {
			return true, nil
		}
		if exitCode(err) < 0 {
			return false, err
		}
	}
	return false, nil
}

func (c *CLI) MergeBase(ctx context.Context, refA, refB string) (string, error) {
	out, err := c.run(ctx, "merge-base", "merge-base", refA, refB)
	if err != nil {
		if exitCode(err) == 1 {
			return "", fmt.Errorf("%s and %s: %w", refA, refB, ErrNoMergeBase)
		}
		return "", err
	}

	sha := strings.TrimSpace(out)
	if sha == "" {
		return "", fmt.Errorf("%s and %s: %w", refA, refB, ErrNoMergeBase)
	}
	return sha, nil
}

func (c *CLI) FileContentAt(ctx context.Context, ref, relPath string) (string, error) {
	out, err := c.run(ctx, "show file", "show", ref+":"+relPath)
	if err != nil {
		stderr := stderrOf(err)
		switch {
		case strings.Contains(stderr, "does not exist in"),
			strings.Contains(stderr, "exists on disk, but not in"):
			return "", fmt.Errorf("%s at %s: %w", relPath, ref, ErrFileNotFound)
		case strings.Contains(stderr, "invalid object name"),
			strings.Contains(stderr, "unknown revision"):
			return "", fmt.Errorf("%s: %w", ref, ErrRefNotFound)
		}
		return "", err
	}
	return out, nil
}

func (c *CLI) RepositoryRoot(ctx context.Context) (string, error) {
	return c.root, nil
}

func (c *CLI) ListBranches(ctx context.Context) ([]Branch, error) {
	out, err := c.run(ctx, "get branches", "branch", "-a", "--no-color")
	if err != nil {
		return nil, err
	}
	return ParseBranchList(out), nil
}

func (c *CLI) Fetch(ctx context.Context) error {
	_, err := c.run(ctx, "fetch", "fetch", "--all", "--prune", "--quiet")
	return err
}

func (c *CLI) DownloadBranch(ctx context.Context, remoteRef string) (string, error) {
	remote, branch, err := SplitRemoteRef(remoteRef)
	if err != nil {
		return "", err
	}

	if _, err := c.run(ctx, "fetch branch", "fetch", "--quiet", remote, branch); err != nil {
		return "", err
	}

	if _, err := c.run(ctx, "create branch", "branch", "--track", branch, remote+"/"+branch); err != nil {
		return "", err
	}

	return branch, nil
}
