package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"premerge/internal/config"
	"premerge/internal/errors"
	"premerge/internal/session"
	"premerge/internal/workspace"
	shared "premerge/shared/types"
)

// newTestServer serves a repository where main and develop both start from
// "a/b/c" and develop rewrites the middle line.
func newTestServer(t *testing.T) (*httptest.Server, *workspace.Workspace, *session.Manager) {
	t.Helper()

	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, repo.Storer.SetReference(
		plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))))
	wt, err := repo.Worktree()
	require.NoError(t, err)

	commit := func(content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte(content), 0644))
		_, err := wt.Add("file.txt")
		require.NoError(t, err)
		_, err = wt.Commit("update", &gogit.CommitOptions{
			Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
		})
		require.NoError(t, err)
	}
	commit("a\nb\nc\n")
	require.NoError(t, wt.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName("develop"),
		Create: true,
	}))
	commit("a\nDEVELOP\nc\n")
	require.NoError(t, wt.Checkout(&gogit.CheckoutOptions{Branch: plumbing.NewBranchReferenceName("main")}))

	cfg := config.Default()
	cfg.Analysis.Backend = "gogit"
	cfg.Analysis.TrackedBranches = []string{"main", "develop"}

	ws, err := workspace.Open(dir, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	sessions := ws.NewManager(session.WithDebounce(10 * time.Millisecond))
	t.Cleanup(sessions.Close)

	mux := http.NewServeMux()
	NewHandler(ws, sessions, nil, nil).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, ws, sessions
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func strPtr(s string) *string { return &s }

func TestHandler_Health(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health shared.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
}

func TestHandler_Analyze(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name        string
		input       any
		wantStatus  int
		wantRegions int
		wantState   string
	}{
		{
			name:        "conflicting buffer",
			input:       shared.AnalyzeRequest{Path: "file.txt", Content: strPtr("a\nMAIN\nc\n")},
			wantStatus:  http.StatusOK,
			wantRegions: 1,
			wantState:   shared.StatusOK,
		},
		{
			name:       "clean buffer",
			input:      shared.AnalyzeRequest{Path: "file.txt", Content: strPtr("a\nb\nc\nd\n")},
			wantStatus: http.StatusOK,
			wantState:  shared.StatusOK,
		},
		{
			name:       "unreadable document",
			input:      shared.AnalyzeRequest{Path: "missing.txt"},
			wantStatus: http.StatusUnprocessableEntity,
			wantState:  shared.StatusFailed,
		},
		{
			name:       "missing path",
			input:      map[string]any{"branches": []string{"main"}},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/api/analyze", tt.input)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantState == "" {
				var apiErr errors.Error
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
				assert.Equal(t, errors.ErrorTypeValidation, apiErr.Type)
				return
			}

			var got shared.AnalyzeResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			assert.Equal(t, tt.wantState, got.Status)
			assert.Len(t, got.Regions, tt.wantRegions)
			if tt.wantState == shared.StatusFailed {
				require.NotNil(t, got.Error)
				assert.Equal(t, errors.ErrorTypeResolution, got.Error.Type)
			} else {
				assert.NotEmpty(t, got.PassID)
			}
		})
	}
}

func TestHandler_AnalyzeRegionShape(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := post(t, srv.URL+"/api/analyze", shared.AnalyzeRequest{
		Path:     "file.txt",
		Branches: []string{"develop"},
		Content:  strPtr("a\nMAIN\nc\n"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got shared.AnalyzeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, []shared.ConflictRegion{
		{StartLine: 1, EndLine: 1, Branch: "develop", TheirContent: "DEVELOP", Preview: "DEVELOP"},
	}, got.Regions)
	assert.Equal(t, []string{"develop"}, got.Branches)
}

func TestHandler_DocumentLifecycle(t *testing.T) {
	srv, ws, sessions := newTestServer(t)
	path := filepath.Join(ws.Root, "file.txt")

	resp := post(t, srv.URL+"/api/documents", shared.DocumentEvent{
		Path: "file.txt", Event: shared.EventEdit, Content: strPtr("a\nMINE\nc\n"),
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, ws.Documents.HasBuffer(path))

	assert.Eventually(t, func() bool {
		snap, ok := sessions.Snapshot(path)
		return ok && snap.Generation > 0
	}, 2*time.Second, 10*time.Millisecond)

	resp = get(t, srv.URL+"/api/regions?path=file.txt&line=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var regions shared.RegionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&regions))
	assert.Equal(t, shared.StatusOK, regions.Status)
	require.Len(t, regions.Regions, 1)
	assert.Equal(t, "develop", regions.Regions[0].Branch)

	resp = get(t, srv.URL+"/api/regions?path=file.txt&line=0")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	regions = shared.RegionsResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&regions))
	assert.Empty(t, regions.Regions)

	resp = post(t, srv.URL+"/api/documents", shared.DocumentEvent{Path: "file.txt", Event: shared.EventClose})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.False(t, sessions.Has(path))
	assert.False(t, ws.Documents.HasBuffer(path))

	// The report persisted by the session still answers.
	resp = get(t, srv.URL+"/api/regions?path=file.txt")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandler_DocumentValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := post(t, srv.URL+"/api/documents", shared.DocumentEvent{Path: "file.txt", Event: "rename"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, srv.URL+"/api/documents", shared.DocumentEvent{Path: "file.txt", Event: shared.EventEdit})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_Regions(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{name: "missing path", query: "", wantStatus: http.StatusBadRequest},
		{name: "bad line", query: "?path=file.txt&line=x", wantStatus: http.StatusBadRequest},
		{name: "negative line", query: "?path=file.txt&line=-1", wantStatus: http.StatusBadRequest},
		{name: "never analyzed", query: "?path=file.txt", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, srv.URL+"/api/regions"+tt.query)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestHandler_Branches(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := get(t, srv.URL+"/api/branches")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var branches []shared.BranchInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&branches))

	names := make([]string, 0, len(branches))
	for _, b := range branches {
		names = append(names, b.Name)
		assert.True(t, b.Tracked)
		assert.True(t, b.Exists)
	}
	assert.ElementsMatch(t, []string{"main", "develop"}, names)
}

func TestHandler_ClearCache(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := post(t, srv.URL+"/api/cache/clear", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHandler_Fetch(t *testing.T) {
	srv, _, _ := newTestServer(t)

	// No remotes configured: nothing to fetch.
	resp := post(t, srv.URL+"/api/fetch", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHandler_DownloadValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := post(t, srv.URL+"/api/branches/download", shared.DownloadRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, srv.URL+"/api/branches/download", shared.DownloadRequest{Ref: "no-remote"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := get(t, srv.URL+"/api/analyze")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
