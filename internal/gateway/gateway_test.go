package gateway

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRepo builds a repository with history:
//
//	main:    a/b/c  ->  a/b/c/main-tail
//	feature: a/b/c  ->  a/FEATURE/c      (also adds only-feature.txt)
//
// plus remote-tracking refs origin/feature, origin/remote-only and a
// symbolic origin/HEAD.
func testRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, repo.Storer.SetReference(
		plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))))

	w, err := repo.Worktree()
	require.NoError(t, err)

	commit := func(msg string, files map[string]string) plumbing.Hash {
		for name, content := range files {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
			_, err := w.Add(name)
			require.NoError(t, err)
		}
		hash, err := w.Commit(msg, &gogit.CommitOptions{
			Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
		})
		require.NoError(t, err)
		return hash
	}

	commit("initial", map[string]string{"file.txt": "a\nb\nc\n"})

	require.NoError(t, w.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName("feature"),
		Create: true,
	}))
	featureHead := commit("feature change", map[string]string{
		"file.txt":         "a\nFEATURE\nc\n",
		"only-feature.txt": "x\n",
	})

	require.NoError(t, w.Checkout(&gogit.CheckoutOptions{Branch: plumbing.NewBranchReferenceName("main")}))
	commit("main change", map[string]string{"file.txt": "a\nb\nc\nmain-tail\n"})

	for _, name := range []string{"feature", "remote-only"} {
		require.NoError(t, repo.Storer.SetReference(
			plumbing.NewHashReference(plumbing.NewRemoteReferenceName("origin", name), featureHead)))
	}
	require.NoError(t, repo.Storer.SetReference(
		plumbing.NewSymbolicReference(plumbing.NewRemoteReferenceName("origin", "HEAD"),
			plumbing.NewRemoteReferenceName("origin", "feature"))))

	return dir
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	args = append([]string{"-c", "user.name=Test", "-c", "user.email=test@example.com"}, args...)
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	return string(out)
}

func backends(t *testing.T, dir string) map[string]Repository {
	t.Helper()

	out := make(map[string]Repository)

	gg, err := NewGoGit(dir)
	require.NoError(t, err)
	out[BackendGoGit] = gg

	if _, err := exec.LookPath("git"); err == nil {
		cli, err := NewCLI(dir)
		require.NoError(t, err)
		out[BackendGit] = cli
	}
	return out
}

func TestBackends_Resolution(t *testing.T) {
	dir := testRepo(t)
	ctx := context.Background()

	for name, repo := range backends(t, dir) {
		t.Run(name, func(t *testing.T) {
			branch, err := repo.CurrentBranch(ctx)
			require.NoError(t, err)
			assert.Equal(t, "main", branch)

			root, err := repo.RepositoryRoot(ctx)
			require.NoError(t, err)
			wantRoot, _ := filepath.EvalSymlinks(dir)
			gotRoot, _ := filepath.EvalSymlinks(root)
			assert.Equal(t, wantRoot, gotRoot)
		})
	}
}

func TestBackends_RefExists(t *testing.T) {
	dir := testRepo(t)
	ctx := context.Background()

	tests := []struct {
		ref  string
		want bool
	}{
		{"main", true},
		{"feature", true},
		{"origin/feature", true},
		{"origin/remote-only", true},
		{"remote-only", false},
		{"missing", false},
		{"", false},
	}

	for name, repo := range backends(t, dir) {
		for _, tt := range tests {
			t.Run(name+"/"+tt.ref, func(t *testing.T) {
				got, err := repo.RefExists(ctx, tt.ref)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			})
		}
	}
}

func TestBackends_FileContentAt(t *testing.T) {
	dir := testRepo(t)
	ctx := context.Background()

	for name, repo := range backends(t, dir) {
		t.Run(name, func(t *testing.T) {
			got, err := repo.FileContentAt(ctx, "feature", "file.txt")
			require.NoError(t, err)
			assert.Equal(t, "a\nFEATURE\nc\n", got)

			got, err = repo.FileContentAt(ctx, "main", "file.txt")
			require.NoError(t, err)
			assert.Equal(t, "a\nb\nc\nmain-tail\n", got)

			_, err = repo.FileContentAt(ctx, "main", "only-feature.txt")
			assert.ErrorIs(t, err, ErrFileNotFound)

			_, err = repo.FileContentAt(ctx, "no-such-branch", "file.txt")
			assert.ErrorIs(t, err, ErrRefNotFound)
		})
	}
}

func TestBackends_MergeBase(t *testing.T) {
	dir := testRepo(t)
	ctx := context.Background()

	for name, repo := range backends(t, dir) {
		t.Run(name, func(t *testing.T) {
			base, err := repo.MergeBase(ctx, "main", "feature")
			require.NoError(t, err)
			require.NotEmpty(t, base)

			content, err := repo.FileContentAt(ctx, base, "file.txt")
			require.NoError(t, err)
			assert.Equal(t, "a\nb\nc\n", content)
		})
	}
}

func TestBackends_ListBranches(t *testing.T) {
	dir := testRepo(t)
	ctx := context.Background()

	want := []Branch{
		{Name: "feature"},
		{Name: "main"},
		{Name: "origin/remote-only", Remote: true},
	}

	for name, repo := range backends(t, dir) {
		t.Run(name, func(t *testing.T) {
			got, err := repo.ListBranches(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestCLI_NoMergeBase(t *testing.T) {
	requireGit(t)
	dir := testRepo(t)

	gitCmd(t, dir, "checkout", "--quiet", "--orphan", "unrelated")
	gitCmd(t, dir, "rm", "-rf", "--quiet", ".")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("other\n"), 0644))
	gitCmd(t, dir, "add", "file.txt")
	gitCmd(t, dir, "commit", "--quiet", "-m", "unrelated root")

	cli, err := NewCLI(dir)
	require.NoError(t, err)

	_, err = cli.MergeBase(context.Background(), "main", "unrelated")
	assert.ErrorIs(t, err, ErrNoMergeBase)

	gg, err := NewGoGit(dir)
	require.NoError(t, err)
	_, err = gg.MergeBase(context.Background(), "main", "unrelated")
	assert.ErrorIs(t, err, ErrNoMergeBase)
}

func TestCLI_DownloadBranch(t *testing.T) {
	requireGit(t)
	upstream := testRepo(t)

	clone := filepath.Join(t.TempDir(), "clone")
	gitCmd(t, filepath.Dir(clone), "clone", "--quiet", upstream, clone)

	cli, err := NewCLI(clone)
	require.NoError(t, err)
	ctx := context.Background()

	exists, err := cli.RefExists(ctx, "feature")
	require.NoError(t, err)
	require.False(t, exists)

	local, err := cli.DownloadBranch(ctx, "origin/feature")
	require.NoError(t, err)
	assert.Equal(t, "feature", local)

	exists, err = cli.RefExists(ctx, "feature")
	require.NoError(t, err)
	assert.True(t, exists)

	current, err := cli.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", current, "download must not switch the working tree")

	require.NoError(t, cli.Fetch(ctx))

	_, err = cli.DownloadBranch(ctx, "feature")
	assert.ErrorIs(t, err, ErrInvalidRef)
}

func TestNewBackends_NotARepository(t *testing.T) {
	dir := t.TempDir()

	_, err := NewGoGit(dir)
	assert.ErrorIs(t, err, ErrNotGitRepo)

	if _, lookErr := exec.LookPath("git"); lookErr == nil {
		t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))
		_, err = NewCLI(dir)
		assert.ErrorIs(t, err, ErrNotGitRepo)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("svn", t.TempDir())
	assert.Error(t, err)
}

func TestParseBranchList(t *testing.T) {
	output := `  develop
* main
+ worktree-branch
  (HEAD detached at 1a2b3c4)
  remotes/origin/HEAD -> origin/main
  remotes/origin/main
  remotes/origin/feature/login
  remotes/upstream/feature/login
  remotes/origin/develop
`

	want := []Branch{
		{Name: "develop"},
		{Name: "main"},
		{Name: "worktree-branch"},
		{Name: "origin/feature/login", Remote: true},
	}
	assert.Equal(t, want, ParseBranchList(output))
	assert.Empty(t, ParseBranchList(""))
}

func TestSplitRemoteRef(t *testing.T) {
	tests := []struct {
		ref     string
		remote  string
		branch  string
		wantErr bool
	}{
		{ref: "origin/feature", remote: "origin", branch: "feature"},
		{ref: "origin/feature/nested", remote: "origin", branch: "feature/nested"},
		{ref: "remotes/upstream/main", remote: "upstream", branch: "main"},
		{ref: "feature", wantErr: true},
		{ref: "origin/", wantErr: true},
		{ref: "/feature", wantErr: true},
		{ref: "origin/bad name", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			remote, branch, err := SplitRemoteRef(tt.ref)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRef)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.remote, remote)
			assert.Equal(t, tt.branch, branch)
		})
	}
}

func TestRelativePath(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "repo")

	got, err := RelativePath(root, filepath.Join(root, "pkg", "a.go"))
	require.NoError(t, err)
	assert.Equal(t, "pkg/a.go", got)

	got, err = RelativePath(root, "pkg/./b.go")
	require.NoError(t, err)
	assert.Equal(t, "pkg/b.go", got)

	_, err = RelativePath(root, filepath.Join(string(filepath.Separator), "elsewhere", "a.go"))
	assert.Error(t, err)

	_, err = RelativePath(root, root)
	assert.Error(t, err)
}
