// internal/diff/diff.go
package diff

import (
	"bytes"
	"fmt"
)

// Line represents a single line in a diff with its type and content
type Line struct {
	Type    LineType
	Content string
	OldNum  int
	NewNum  int
}

// LineType indicates whether a line was added, removed, or is context
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

func (t LineType) String() string {
	switch t {
	case Addition:
		return "addition"
	case Deletion:
		return "deletion"
	default:
		return "context"
	}
}

// DiffResult contains the complete diff information
type DiffResult struct {
	Hunks []Hunk
	Stats struct {
		Additions int
		Deletions int
		Changes   int
	}
}

// Hunk represents a continuous section of changes
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// Chunk is one step of an edit script: a run of lines that are equal in
// both texts, only in the new text, or only in the old text.
type Chunk struct {
	Type  LineType
	Lines []string
}

// Count returns the number of lines covered by the chunk.
func (c Chunk) Count() int {
	return len(c.Lines)
}

// Algorithm selects the edit script backend.
type Algorithm string

const (
	LCS   Algorithm = "lcs"
	Myers Algorithm = "myers"
)

// ParseAlgorithm validates an algorithm name from configuration.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case LCS, Myers:
		return Algorithm(name), nil
	case "":
		return LCS, nil
	}
	return "", fmt.Errorf("unknown diff algorithm %q", name)
}

// DefaultMaxLCSCells bounds the LCS table; larger inputs use Myers.
const DefaultMaxLCSCells = 4_000_000

// Engine provides diffing capabilities
type Engine struct {
	contextLines int
	algorithm    Algorithm
	maxLCSCells  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithAlgorithm selects the edit script backend.
func WithAlgorithm(a Algorithm) Option {
	return func(e *Engine) {
		e.algorithm = a
	}
}

// WithMaxLCSCells sets the table size above which LCS falls back to Myers.
func WithMaxLCSCells(n int) Option {
	return func(e *Engine) {
		e.maxLCSCells = n
	}
}

// NewEngine creates a new diff engine with specified context lines
func NewEngine(contextLines int, opts ...Option) *Engine {
	e := &Engine{
		contextLines: contextLines,
		algorithm:    LCS,
		maxLCSCells:  DefaultMaxLCSCells,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Algorithm reports the configured backend.
func (e *Engine) Algorithm() Algorithm {
	return e.algorithm
}

// Script computes the line-level edit script turning base into other.
// Chunks are in source order and adjacent chunks never share a type.
func (e *Engine) Script(base, other string) []Chunk {
	a, b := SplitLines(base), SplitLines(other)

	if e.algorithm == Myers {
		if script, ok := myersScript(a, b); ok {
			return script
		}
		return lcsScript(a, b)
	}

	prefix, suffix := commonPrefix(a, b), 0
	if prefix < len(a) && prefix < len(b) {
		suffix = commonSuffix(a[prefix:], b[prefix:])
	}
	rows, cols := len(a)-prefix-suffix+1, len(b)-prefix-suffix+1
	if e.maxLCSCells > 0 && rows*cols > e.maxLCSCells {
		if script, ok := myersScript(a, b); ok {
			return script
		}
	}
	return lcsScript(a, b)
}

// Diff generates a line-by-line diff between two contents
func (e *Engine) Diff(oldContent, newContent []byte) (*DiffResult, error) {
	script := e.Script(string(oldContent), string(newContent))

	lines, oldBefore, newBefore := flatten(script)

	result := &DiffResult{}
	result.Hunks = e.groupHunks(lines, oldBefore, newBefore)

	for _, hunk := range result.Hunks {
		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				result.Stats.Additions++
			case Deletion:
				result.Stats.Deletions++
			}
		}
	}
	result.Stats.Changes = result.Stats.Additions + result.Stats.Deletions

	return result, nil
}

// flatten expands a script into numbered lines. oldBefore[k] and
// newBefore[k] count the old/new lines consumed before line k.
func flatten(script []Chunk) ([]Line, []int, []int) {
	var (
		lines                []Line
		oldBefore, newBefore []int
	)
	oldNum, newNum := 0, 0

	for _, chunk := range script {
		for _, content := range chunk.Lines {
			oldBefore = append(oldBefore, oldNum)
			newBefore = append(newBefore, newNum)

			line := Line{Type: chunk.Type, Content: content}
			switch chunk.Type {
			case Context:
				oldNum++
				newNum++
				line.OldNum, line.NewNum = oldNum, newNum
			case Deletion:
				oldNum++
				line.OldNum = oldNum
			case Addition:
				newNum++
				line.NewNum = newNum
			}
			lines = append(lines, line)
		}
	}

	return lines, oldBefore, newBefore
}

// groupHunks cuts numbered lines into hunks with surrounding context.
// Changes closer than twice the context width share a hunk.
func (e *Engine) groupHunks(lines []Line, oldBefore, newBefore []int) []Hunk {
	var changed []int
	for i, line := range lines {
		if line.Type != Context {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	var hunks []Hunk
	first, last := changed[0], changed[0]
	flush := func() {
		lo := max(0, first-e.contextLines)
		hi := min(len(lines)-1, last+e.contextLines)
		hunks = append(hunks, buildHunk(lines[lo:hi+1], oldBefore[lo], newBefore[lo]))
	}

	for _, idx := range changed[1:] {
		if idx-last-1 <= 2*e.contextLines {
			last = idx
			continue
		}
		flush()
		first, last = idx, idx
	}
	flush()

	return hunks
}

func buildHunk(lines []Line, oldBefore, newBefore int) Hunk {
	hunk := Hunk{Lines: append([]Line(nil), lines...)}
	for _, line := range lines {
		switch line.Type {
		case Context:
			hunk.OldLines++
			hunk.NewLines++
		case Deletion:
			hunk.OldLines++
		case Addition:
			hunk.NewLines++
		}
	}

	// Unified convention: an empty side starts at the line before the hunk.
	hunk.OldStart = oldBefore
	if hunk.OldLines > 0 {
		hunk.OldStart++
	}
	hunk.NewStart = newBefore
	if hunk.NewLines > 0 {
		hunk.NewStart++
	}
	return hunk
}

// Format returns a string representation of the diff
func (r *DiffResult) Format() string {
	var buf bytes.Buffer

	for _, hunk := range r.Hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n",
			hunk.OldStart, hunk.OldLines,
			hunk.NewStart, hunk.NewLines)

		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				buf.WriteString("+ ")
			case Deletion:
				buf.WriteString("- ")
			case Context:
				buf.WriteString("  ")
			}
			buf.WriteString(line.Content)
			buf.WriteString("\n")
		}
	}

	return buf.String()
}
