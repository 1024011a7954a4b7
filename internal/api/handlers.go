// internal/api/handlers.go
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"premerge/internal/errors"
	"premerge/internal/logging"
	"premerge/internal/predictor"
	"premerge/internal/session"
	"premerge/internal/validation"
	"premerge/internal/workspace"
	shared "premerge/shared/types"
	"premerge/shared/utils"
)

// Watcher opens a document for file watching. *session.Watcher implements it.
type Watcher interface {
	Watch(path string) error
}

type Handler struct {
	ws       *workspace.Workspace
	sessions *session.Manager
	watcher  Watcher
	logger   *logging.Logger
}

// NewHandler serves ws and its sessions. watcher may be nil, in which case
// focus events only notify the session.
func NewHandler(ws *workspace.Workspace, sessions *session.Manager, watcher Watcher, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{ws: ws, sessions: sessions, watcher: watcher, logger: logger}
}

// Register adds every route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /api/analyze", h.Analyze)
	mux.HandleFunc("POST /api/documents", h.Document)
	mux.HandleFunc("GET /api/regions", h.Regions)
	mux.HandleFunc("GET /api/branches", h.Branches)
	mux.HandleFunc("POST /api/branches/download", h.Download)
	mux.HandleFunc("POST /api/cache/clear", h.ClearCache)
	mux.HandleFunc("POST /api/fetch", h.Fetch)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, shared.HealthResponse{Status: "healthy"})
}

// Analyze runs a synchronous pass. A resolution failure is still a
// well-formed response, with status "failed".
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	req, err := validation.ValidateAnalyzeRequest(r)
	if err != nil {
		errors.WriteJSON(w, err)
		return
	}

	rep, err := h.ws.Check(r.Context(), req.Path, req.Branches, req.Content)
	if err != nil && !errors.IsType(err, errors.ErrorTypeResolution) {
		h.logger.WithRequestID(r.Context()).Error("analysis failed",
			zap.String("path", req.Path), zap.Error(err))
		errors.WriteJSON(w, err)
		return
	}

	resp := shared.AnalyzeResponse{
		Status:   shared.StatusOK,
		Path:     rep.Path,
		PassID:   rep.PassID,
		Regions:  utils.ToRegions(rep.Regions),
		Branches: rep.Branches,
	}
	status := http.StatusOK
	if err != nil {
		resp.Status = shared.StatusFailed
		resp.Error = errors.As(err)
		status = resp.Error.Code
	}

	writeJSON(w, status, resp)
}

// Document applies an editor event to the overlay and the document's session.
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	ev, err := validation.ValidateDocumentEvent(r)
	if err != nil {
		errors.WriteJSON(w, err)
		return
	}

	path := h.ws.AbsPath(ev.Path)
	docs := h.ws.Documents

	switch ev.Event {
	case shared.EventEdit:
		docs.SetBuffer(path, *ev.Content)
		h.sessions.Notify(path, session.TriggerEdit)

	case shared.EventSave:
		// After a save the file on disk is the document.
		if ev.Content != nil {
			docs.SetBuffer(path, *ev.Content)
		} else {
			docs.ClearBuffer(path)
		}
		h.sessions.Notify(path, session.TriggerSave)

	case shared.EventFocus:
		if ev.Content != nil {
			docs.SetBuffer(path, *ev.Content)
		}
		if h.watcher != nil {
			if err := h.watcher.Watch(path); err != nil {
				h.logger.WithRequestID(r.Context()).Warn("watching document",
					zap.String("path", path), zap.Error(err))
				h.sessions.Notify(path, session.TriggerFocus)
			}
		} else {
			h.sessions.Notify(path, session.TriggerFocus)
		}

	case shared.EventClose:
		h.sessions.Forget(path)
		docs.ClearBuffer(path)
		writeJSON(w, http.StatusAccepted, shared.RegionsResponse{Status: shared.StatusOK, Path: path})
		return
	}

	writeJSON(w, http.StatusAccepted, shared.RegionsResponse{Status: shared.StatusPending, Path: path})
}

// Regions returns the latest committed regions of a document. Documents
// without a session fall back to their last stored report.
func (h *Handler) Regions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("path") == "" {
		errors.WriteJSON(w, errors.ValidationError("path is required", nil))
		return
	}
	path := h.ws.AbsPath(q.Get("path"))

	line := -1
	if raw := q.Get("line"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errors.WriteJSON(w, errors.ValidationError("line must be a non-negative integer",
				map[string]string{"line": raw}))
			return
		}
		line = n
	}

	resp, ok := h.sessionRegions(path, line)
	if !ok {
		var err error
		resp, ok, err = h.reportRegions(path, line)
		if err != nil {
			errors.WriteJSON(w, errors.Internal("loading report", err))
			return
		}
	}
	if !ok {
		errors.WriteJSON(w, errors.NotFound("no analysis for "+path))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) sessionRegions(path string, line int) (shared.RegionsResponse, bool) {
	snap, ok := h.sessions.Snapshot(path)
	if !ok {
		return shared.RegionsResponse{}, false
	}

	regions := snap.Regions
	if line >= 0 {
		regions = predictor.RegionsAt(regions, line)
	}

	resp := shared.RegionsResponse{
		Status:     shared.StatusOK,
		Path:       path,
		Generation: snap.Generation,
		Regions:    utils.ToRegions(regions),
		Branches:   predictor.BranchesOf(regions),
		UpdatedAt:  snap.UpdatedAt,
	}
	switch {
	case snap.Err != nil:
		resp.Status = shared.StatusFailed
		resp.Error = snap.Err.Error()
	case snap.Generation == 0:
		resp.Status = shared.StatusPending
	}
	return resp, true
}

func (h *Handler) reportRegions(path string, line int) (shared.RegionsResponse, bool, error) {
	rep, err := h.ws.Reports.Get(path)
	if err != nil || rep == nil {
		return shared.RegionsResponse{}, false, err
	}

	regions := rep.Regions
	if line >= 0 {
		regions = rep.RegionsAt(line)
	}

	resp := shared.RegionsResponse{
		Status:    shared.StatusOK,
		Path:      path,
		Regions:   utils.ToRegions(regions),
		Branches:  predictor.BranchesOf(regions),
		UpdatedAt: rep.CreatedAt,
	}
	if rep.Failed() {
		resp.Status = shared.StatusFailed
		resp.Error = rep.Error
	}
	return resp, true, nil
}

func (h *Handler) Branches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.ws.Branches(r.Context())
	if err != nil {
		errors.WriteJSON(w, errors.Internal("listing branches", err))
		return
	}
	writeJSON(w, http.StatusOK, branches)
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	req, err := validation.ValidateDownloadRequest(r)
	if err != nil {
		errors.WriteJSON(w, err)
		return
	}

	local, err := h.ws.DownloadBranch(r.Context(), req.Ref)
	if err != nil {
		h.logger.WithRequestID(r.Context()).Error("download failed",
			zap.String("ref", req.Ref), zap.Error(err))
		errors.WriteJSON(w, err)
		return
	}

	h.sessions.RefreshAll()
	writeJSON(w, http.StatusOK, shared.DownloadResponse{Branch: local})
}

func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.ws.Detector.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.Fetch(r.Context()); err != nil {
		h.logger.WithRequestID(r.Context()).Error("fetch failed", zap.Error(err))
		errors.WriteJSON(w, errors.Internal("fetch failed", err))
		return
	}

	h.sessions.RefreshAll()
	w.WriteHeader(http.StatusNoContent)
}
