package predictor

import (
	"sort"
	"sync"
	"time"
)

// Snapshot is the committed state of a RegionStore.
type Snapshot struct {
	Generation uint64
	Regions    []ConflictRegion
	// Err is set when the latest pass could not run. Regions then still
	// hold the last successful result.
	Err       error
	UpdatedAt time.Time
}

// RegionStore holds the latest conflict regions of one document. Results
// are replaced wholesale and only by a newer generation.
type RegionStore struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

func NewRegionStore() *RegionStore {
	return &RegionStore{now: time.Now}
}

// Commit records the outcome of pass generation. It returns false and
// changes nothing when a pass of the same or a newer generation has already
// been committed.
func (s *RegionStore) Commit(generation uint64, regions []ConflictRegion, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation <= s.snap.Generation {
		return false
	}

	s.snap.Generation = generation
	s.snap.UpdatedAt = s.now()
	s.snap.Err = err
	if err == nil {
		s.snap.Regions = append([]ConflictRegion(nil), regions...)
	}
	return true
}

func (s *RegionStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snap
	snap.Regions = append([]ConflictRegion(nil), s.snap.Regions...)
	return snap
}

// RegionsAt returns the regions containing line, in stored order.
func (s *RegionStore) RegionsAt(line int) []ConflictRegion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return RegionsAt(s.snap.Regions, line)
}

// Branches returns the distinct branches with at least one region, sorted.
func (s *RegionStore) Branches() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return BranchesOf(s.snap.Regions)
}

// RegionsAt filters regions to those containing line.
func RegionsAt(regions []ConflictRegion, line int) []ConflictRegion {
	var out []ConflictRegion
	for _, r := range regions {
		if r.Contains(line) {
			out = append(out, r)
		}
	}
	return out
}

// BranchesOf lists the distinct branches among regions, sorted.
func BranchesOf(regions []ConflictRegion) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range regions {
		if !seen[r.Branch] {
			seen[r.Branch] = true
			out = append(out, r.Branch)
		}
	}
	sort.Strings(out)
	return out
}
