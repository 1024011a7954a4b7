// Package shared holds the JSON shapes exchanged between the daemon, its Go
// client and the CLI.
package shared

import (
	"time"

	"premerge/internal/errors"
)

// Analysis status values.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusPending = "pending"
)

// Document event names.
const (
	EventEdit  = "edit"
	EventSave  = "save"
	EventFocus = "focus"
	EventClose = "close"
)

// ConflictRegion is a predicted conflict in working-copy coordinates.
// Lines are zero-based and inclusive.
type ConflictRegion struct {
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
	Branch       string `json:"branch"`
	TheirContent string `json:"their_content"`
	// Preview is TheirContent on one line, truncated for hovers.
	Preview string `json:"preview"`
}

type AnalyzeRequest struct {
	Path     string   `json:"path"`
	Branches []string `json:"branches,omitempty"`
	// Content, when set, is the unsaved editor buffer.
	Content *string `json:"content,omitempty"`
}

type AnalyzeResponse struct {
	Status   string           `json:"status"`
	Path     string           `json:"path"`
	PassID   string           `json:"pass_id,omitempty"`
	Regions  []ConflictRegion `json:"regions"`
	Branches []string         `json:"branches"`
	Error    *errors.Error    `json:"error,omitempty"`
}

type DocumentEvent struct {
	Path    string  `json:"path"`
	Event   string  `json:"event"`
	Content *string `json:"content,omitempty"`
}

type RegionsResponse struct {
	Status     string           `json:"status"`
	Path       string           `json:"path"`
	Generation uint64           `json:"generation"`
	Regions    []ConflictRegion `json:"regions"`
	Branches   []string         `json:"branches"`
	Error      string           `json:"error,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at,omitempty"`
}

type BranchInfo struct {
	Name    string `json:"name"`
	Remote  bool   `json:"remote"`
	Tracked bool   `json:"tracked"`
	// Exists is false for a tracked branch that is missing locally.
	Exists  bool `json:"exists"`
	Current bool `json:"current"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type DownloadRequest struct {
	// Ref is a remote branch such as "origin/feature".
	Ref string `json:"ref"`
}

type DownloadResponse struct {
	Branch string `json:"branch"`
}
