package validation

import (
	"encoding/json"
	"net/http"
	"strings"

	"premerge/internal/errors"
	shared "premerge/shared/types"
)

func ValidateAnalyzeRequest(r *http.Request) (*shared.AnalyzeRequest, error) {
	var req shared.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.ValidationError("invalid request body", nil)
	}

	if strings.TrimSpace(req.Path) == "" {
		return nil, errors.ValidationError("path is required", nil)
	}
	for _, b := range req.Branches {
		if strings.TrimSpace(b) == "" {
			return nil, errors.ValidationError("branch names must not be empty", nil)
		}
	}

	return &req, nil
}

func ValidateDocumentEvent(r *http.Request) (*shared.DocumentEvent, error) {
	var ev shared.DocumentEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		return nil, errors.ValidationError("invalid request body", nil)
	}

	if strings.TrimSpace(ev.Path) == "" {
		return nil, errors.ValidationError("path is required", nil)
	}

	switch ev.Event {
	case shared.EventEdit, shared.EventSave, shared.EventFocus, shared.EventClose:
	default:
		return nil, errors.ValidationError("unknown event", map[string]string{"event": ev.Event})
	}

	// Edits must carry the buffer; the other events may fall back to disk.
	if ev.Event == shared.EventEdit && ev.Content == nil {
		return nil, errors.ValidationError("content is required for edit events", nil)
	}

	return &ev, nil
}

func ValidateDownloadRequest(r *http.Request) (*shared.DownloadRequest, error) {
	var req shared.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.ValidationError("invalid request body", nil)
	}

	if strings.TrimSpace(req.Ref) == "" {
		return nil, errors.ValidationError("ref is required", nil)
	}

	return &req, nil
}
