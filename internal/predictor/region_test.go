package predictor

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"premerge/internal/diff"
)

func TestOverlaps_Symmetric(t *testing.T) {
	ranges := []diff.LineRange{
		{Start: 0, End: 0},
		{Start: 0, End: 3},
		{Start: 2, End: 2},
		{Start: 3, End: 7},
		{Start: 8, End: 9},
	}

	for _, a := range ranges {
		for _, b := range ranges {
			assert.Equal(t, Overlaps(a, b), Overlaps(b, a), "%v %v", a, b)
		}
	}

	assert.True(t, Overlaps(diff.LineRange{Start: 0, End: 3}, diff.LineRange{Start: 3, End: 7}))
	assert.False(t, Overlaps(diff.LineRange{Start: 3, End: 7}, diff.LineRange{Start: 8, End: 9}))
}

func TestFindOverlaps(t *testing.T) {
	tests := []struct {
		name   string
		ours   []diff.LineRange
		theirs []diff.LineRange
		want   []diff.LineRange
	}{
		{name: "empty", want: nil},
		{
			name:   "disjoint",
			ours:   []diff.LineRange{{Start: 0, End: 1}},
			theirs: []diff.LineRange{{Start: 3, End: 4}},
			want:   nil,
		},
		{
			name:   "union of pair",
			ours:   []diff.LineRange{{Start: 2, End: 4}},
			theirs: []diff.LineRange{{Start: 4, End: 6}},
			want:   []diff.LineRange{{Start: 2, End: 6}},
		},
		{
			name:   "every pair reported",
			ours:   []diff.LineRange{{Start: 0, End: 2}, {Start: 5, End: 5}},
			theirs: []diff.LineRange{{Start: 1, End: 1}, {Start: 2, End: 5}},
			want: []diff.LineRange{
				{Start: 0, End: 2},
				{Start: 0, End: 5},
				{Start: 2, End: 5},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindOverlaps(tt.ours, tt.theirs))
		})
	}
}

func TestSliceLines_Clamps(t *testing.T) {
	lines := []string{"a", "b", "c"}

	assert.Equal(t, "b\nc", sliceLines(lines, 1, 2))
	assert.Equal(t, "b\nc", sliceLines(lines, 1, 10))
	assert.Equal(t, "", sliceLines(lines, 5, 7))
	assert.Equal(t, "", sliceLines(nil, 0, 0))
}

func TestCoalesceRegions(t *testing.T) {
	theirs := "l0\nl1\nl2\nl3\nl4\nl5\nl6\n"

	regions := []ConflictRegion{
		{StartLine: 4, EndLine: 4, Branch: "b", TheirContent: "l4"},
		{StartLine: 0, EndLine: 1, Branch: "b", TheirContent: "l0\nl1"},
		{StartLine: 2, EndLine: 2, Branch: "b", TheirContent: "l2"},
		{StartLine: 1, EndLine: 1, Branch: "b", TheirContent: "l1"},
	}

	got := CoalesceRegions(regions, theirs)
	assert.Equal(t, []ConflictRegion{
		{StartLine: 0, EndLine: 2, Branch: "b", TheirContent: "l0\nl1\nl2"},
		{StartLine: 4, EndLine: 4, Branch: "b", TheirContent: "l4"},
	}, got)

	single := regions[:1]
	assert.Equal(t, single, CoalesceRegions(single, theirs))
}

func TestRegionStore_CommitOrdering(t *testing.T) {
	s := NewRegionStore()

	first := []ConflictRegion{{StartLine: 1, EndLine: 1, Branch: "main"}}
	second := []ConflictRegion{{StartLine: 5, EndLine: 6, Branch: "develop"}}

	assert.True(t, s.Commit(2, second, nil))
	assert.False(t, s.Commit(1, first, nil), "older pass must not overwrite newer")
	assert.False(t, s.Commit(2, first, nil))

	snap := s.Snapshot()
	assert.Equal(t, uint64(2), snap.Generation)
	assert.Equal(t, second, snap.Regions)
	assert.NoError(t, snap.Err)
	assert.False(t, snap.UpdatedAt.IsZero())
}

func TestRegionStore_FailureKeepsPreviousRegions(t *testing.T) {
	s := NewRegionStore()
	regions := []ConflictRegion{{StartLine: 1, EndLine: 2, Branch: "main"}}

	require.True(t, s.Commit(1, regions, nil))
	cause := errors.New("not a git repository")
	require.True(t, s.Commit(2, nil, cause))

	snap := s.Snapshot()
	assert.Equal(t, regions, snap.Regions)
	assert.ErrorIs(t, snap.Err, cause)

	require.True(t, s.Commit(3, nil, nil))
	snap = s.Snapshot()
	assert.Empty(t, snap.Regions)
	assert.NoError(t, snap.Err)
}

func TestRegionStore_Queries(t *testing.T) {
	s := NewRegionStore()
	s.Commit(1, []ConflictRegion{
		{StartLine: 0, EndLine: 2, Branch: "main"},
		{StartLine: 2, EndLine: 4, Branch: "develop"},
		{StartLine: 10, EndLine: 10, Branch: "main"},
	}, nil)

	assert.Len(t, s.RegionsAt(2), 2)
	assert.Len(t, s.RegionsAt(0), 1)
	assert.Empty(t, s.RegionsAt(5))
	assert.Equal(t, "main", s.RegionsAt(10)[0].Branch)
	assert.Equal(t, []string{"develop", "main"}, s.Branches())
}

func TestRegionStore_SnapshotIsACopy(t *testing.T) {
	s := NewRegionStore()
	s.Commit(1, []ConflictRegion{{StartLine: 0, EndLine: 0, Branch: "main"}}, nil)

	snap := s.Snapshot()
	snap.Regions[0].Branch = "mutated"

	assert.Equal(t, "main", s.Snapshot().Regions[0].Branch)
}

func TestRegionStore_ConcurrentCommits(t *testing.T) {
	s := NewRegionStore()

	var wg sync.WaitGroup
	for gen := uint64(1); gen <= 50; gen++ {
		wg.Add(1)
		go func(gen uint64) {
			defer wg.Done()
			s.Commit(gen, []ConflictRegion{{StartLine: int(gen), EndLine: int(gen), Branch: "b"}}, nil)
			s.Snapshot()
		}(gen)
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, uint64(50), snap.Generation)
	assert.Equal(t, 50, snap.Regions[0].StartLine)
}
