package predictor

import (
	"sort"
	"strings"

	"premerge/internal/diff"
)

// ConflictRegion is a span of the working copy that both the working copy
// and Branch changed relative to their merge base. Lines are zero-based and
// inclusive.
type ConflictRegion struct {
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
	Branch       string `json:"branch"`
	TheirContent string `json:"their_content"`
}

// Contains reports whether line falls inside the region.
func (r ConflictRegion) Contains(line int) bool {
	return r.StartLine <= line && line <= r.EndLine
}

// Overlaps reports whether two inclusive ranges share at least one line.
func Overlaps(a, b diff.LineRange) bool {
	return a.Start <= b.End && a.End >= b.Start
}

// FindOverlaps returns, for every overlapping pair (o, t) in ours x theirs,
// the span covering both. Pairs are visited in ours order, then theirs
// order, and are not deduplicated.
func FindOverlaps(ours, theirs []diff.LineRange) []diff.LineRange {
	var spans []diff.LineRange
	for _, o := range ours {
		for _, t := range theirs {
			if !Overlaps(o, t) {
				continue
			}
			spans = append(spans, diff.LineRange{
				Start: min(o.Start, t.Start),
				End:   max(o.End, t.End),
			})
		}
	}
	return spans
}

// sliceLines joins lines[start..end], clamped to the available lines.
func sliceLines(lines []string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end >= len(lines) {
		end = len(lines) - 1
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start:end+1], "\n")
}

func buildRegions(branch string, spans []diff.LineRange, theirLines []string) []ConflictRegion {
	if len(spans) == 0 {
		return nil
	}
	regions := make([]ConflictRegion, 0, len(spans))
	for _, s := range spans {
		regions = append(regions, ConflictRegion{
			StartLine:    s.Start,
			EndLine:      s.End,
			Branch:       branch,
			TheirContent: sliceLines(theirLines, s.Start, s.End),
		})
	}
	return regions
}

// CoalesceRegions merges overlapping or touching regions of one branch and
// re-slices their content from theirs. Regions are returned sorted by start.
func CoalesceRegions(regions []ConflictRegion, theirs string) []ConflictRegion {
	if len(regions) < 2 {
		return regions
	}

	sorted := append([]ConflictRegion(nil), regions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartLine < sorted[j].StartLine
	})

	lines := diff.SplitLines(theirs)
	merged := []ConflictRegion{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.StartLine <= last.EndLine+1 {
			last.EndLine = max(last.EndLine, r.EndLine)
			last.TheirContent = sliceLines(lines, last.StartLine, last.EndLine)
			continue
		}
		merged = append(merged, r)
	}
	return merged
}
