package diff

// lcsScript builds an edit script from a longest common subsequence table.
// The common prefix and suffix are peeled off first so the table only
// covers the changed middle.
func lcsScript(a, b []string) []Chunk {
	var script []Chunk

	prefix := commonPrefix(a, b)
	script = appendLines(script, Context, a[:prefix]...)
	a, b = a[prefix:], b[prefix:]

	suffix := commonSuffix(a, b)
	tail := a[len(a)-suffix:]
	a, b = a[:len(a)-suffix], b[:len(b)-suffix]

	matrix := buildLCSMatrix(a, b)

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			script = appendLines(script, Context, a[i])
			i++
			j++
		case matrix[i+1][j] >= matrix[i][j+1]:
			script = appendLines(script, Deletion, a[i])
			i++
		default:
			script = appendLines(script, Addition, b[j])
			j++
		}
	}
	script = appendLines(script, Deletion, a[i:]...)
	script = appendLines(script, Addition, b[j:]...)
	script = appendLines(script, Context, tail...)

	return script
}

// buildLCSMatrix returns the suffix table: matrix[i][j] is the LCS length
// of a[i:] and b[j:].
func buildLCSMatrix(a, b []string) [][]int {
	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
	}

	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				matrix[i][j] = matrix[i+1][j+1] + 1
			} else {
				matrix[i][j] = max(matrix[i+1][j], matrix[i][j+1])
			}
		}
	}

	return matrix
}

func commonPrefix(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func commonSuffix(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	return n
}

// appendLines adds lines to the script, extending the last chunk when it
// has the same type.
func appendLines(script []Chunk, t LineType, lines ...string) []Chunk {
	if len(lines) == 0 {
		return script
	}
	if n := len(script); n > 0 && script[n-1].Type == t {
		script[n-1].Lines = append(script[n-1].Lines, lines...)
		return script
	}
	return append(script, Chunk{Type: t, Lines: append([]string(nil), lines...)})
}
