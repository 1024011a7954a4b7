package diff

import "strings"

// LineRange is an inclusive, zero-based span of lines. The coordinates
// belong to one specific text; ranges from different texts only compare
// meaningfully when both were computed against the same base.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of lines in the range.
func (r LineRange) Len() int {
	return r.End - r.Start + 1
}

// Overlaps reports whether the two inclusive ranges share a line.
func (r LineRange) Overlaps(o LineRange) bool {
	return r.Start <= o.End && r.End >= o.Start
}

// SplitLines splits text on '\n'. A single trailing newline does not start
// a new line, and empty text has no lines.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// AddedRanges returns the runs of lines present in other but not in base,
// in other's line coordinates.
func (e *Engine) AddedRanges(base, other string) []LineRange {
	var (
		ranges  []LineRange
		counter int
	)

	for _, chunk := range e.Script(base, other) {
		switch chunk.Type {
		case Addition:
			n := max(chunk.Count(), 1)
			ranges = append(ranges, LineRange{Start: counter, End: counter + n - 1})
			counter += chunk.Count()
		case Context:
			counter += chunk.Count()
		}
	}

	return ranges
}
