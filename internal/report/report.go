// Package report persists the last analysis of each document so separate
// CLI invocations can answer queries about it.
package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"premerge/internal/predictor"
	"premerge/internal/storage"
	"premerge/shared/utils"
)

const prefix = "report"

// Report is one analysis pass of a document.
type Report struct {
	Path        string                     `json:"path"`
	PassID      string                     `json:"pass_id"`
	ContentHash string                     `json:"content_hash"`
	Branches    []string                   `json:"branches"`
	Regions     []predictor.ConflictRegion `json:"regions"`
	Error       string                     `json:"error,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
}

func (r *Report) GetID() string {
	return r.Path
}

// Failed reports whether the pass could not run.
func (r *Report) Failed() bool {
	return r.Error != ""
}

// Stale reports whether content differs from what was analyzed.
func (r *Report) Stale(content string) bool {
	return r.ContentHash != utils.HashContent([]byte(content))
}

// RegionsAt returns the regions containing line.
func (r *Report) RegionsAt(line int) []predictor.ConflictRegion {
	return predictor.RegionsAt(r.Regions, line)
}

// New builds a report for content analyzed in pass passID.
func New(path, passID, content string, branches []string, regions []predictor.ConflictRegion, err error) *Report {
	r := &Report{
		Path:        path,
		PassID:      passID,
		ContentHash: utils.HashContent([]byte(content)),
		Branches:    append([]string(nil), branches...),
		Regions:     append([]predictor.ConflictRegion(nil), regions...),
		CreatedAt:   time.Now().UTC(),
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

type Store struct {
	store *storage.BadgerStore
}

func NewStore(db *badger.DB) *Store {
	return &Store{store: storage.NewBadgerStore(db, prefix)}
}

// Save replaces the report for r.Path.
func (s *Store) Save(r *Report) error {
	if err := s.store.Put(r); err != nil {
		return fmt.Errorf("saving report for %s: %w", r.Path, err)
	}
	return nil
}

// Get returns the last report for path, or (nil, nil) when there is none.
func (s *Store) Get(path string) (*Report, error) {
	var r Report
	if err := s.store.Get(path, &r); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading report for %s: %w", path, err)
	}
	return &r, nil
}

func (s *Store) List() ([]Report, error) {
	var reports []Report
	if err := s.store.List(&reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// Clear drops every stored report.
func (s *Store) Clear() error {
	return s.store.DeleteAll()
}
