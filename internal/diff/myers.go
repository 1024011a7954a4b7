package diff

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	firstLineRune  = 0x100
	surrogateStart = 0xD800
	surrogateWidth = 0x800
)

// myersScript runs diffmatchpatch over a one-rune-per-line encoding of the
// inputs. It reports false when there are too many distinct lines to encode.
func myersScript(a, b []string) ([]Chunk, bool) {
	index := make(map[string]rune)
	encode := func(lines []string) ([]rune, bool) {
		runes := make([]rune, len(lines))
		for i, line := range lines {
			r, ok := index[line]
			if !ok {
				r = lineRune(len(index))
				if r > utf8.MaxRune {
					return nil, false
				}
				index[line] = r
			}
			runes[i] = r
		}
		return runes, true
	}

	ra, ok := encode(a)
	if !ok {
		return nil, false
	}
	rb, ok := encode(b)
	if !ok {
		return nil, false
	}

	dmp := diffmatchpatch.New()
	// No deadline: a timed-out diff is not reproducible.
	dmp.DiffTimeout = 0

	var script []Chunk
	ia, ib := 0, 0
	for _, d := range dmp.DiffMainRunes(ra, rb, false) {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			script = appendLines(script, Context, a[ia:ia+n]...)
			ia += n
			ib += n
		case diffmatchpatch.DiffDelete:
			script = appendLines(script, Deletion, a[ia:ia+n]...)
			ia += n
		case diffmatchpatch.DiffInsert:
			script = appendLines(script, Addition, b[ib:ib+n]...)
			ib += n
		}
	}

	return script, true
}

// lineRune maps the n-th distinct line to a valid, non-surrogate rune.
func lineRune(n int) rune {
	r := rune(firstLineRune + n)
	if r >= surrogateStart {
		r += surrogateWidth
	}
	return r
}
