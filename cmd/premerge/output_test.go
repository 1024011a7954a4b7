package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	shared "premerge/shared/types"
)

func init() {
	color.NoColor = true
}

func TestPrintRegions(t *testing.T) {
	var buf bytes.Buffer
	printRegions(&buf, "a.go", []shared.ConflictRegion{
		{StartLine: 1, EndLine: 1, Branch: "main", Preview: "Y"},
		{StartLine: 4, EndLine: 6, Branch: "develop", Preview: "a b c"},
	})

	assert.Equal(t,
		"2 potential conflict(s) in a.go:\n"+
			"  line 2  main  Y\n"+
			"  lines 5-7  develop  a b c\n",
		buf.String())
}

func TestPrintRegions_None(t *testing.T) {
	var buf bytes.Buffer
	printRegions(&buf, "a.go", nil)
	assert.Equal(t, "No potential conflicts found in a.go\n", buf.String())
}

func TestPrintHover(t *testing.T) {
	var buf bytes.Buffer
	printHover(&buf, 2, []shared.ConflictRegion{
		{StartLine: 1, EndLine: 2, Branch: "main", TheirContent: "x\ny"},
	})
	assert.Equal(t, "lines 2-3 conflicts with main\n    x\n    y\n", buf.String())
}

func TestPrintBranches(t *testing.T) {
	var buf bytes.Buffer
	printBranches(&buf, []shared.BranchInfo{
		{Name: "main", Tracked: true, Exists: true, Current: true},
		{Name: "origin/old", Remote: true, Exists: true},
		{Name: "release", Tracked: true},
	})

	assert.Equal(t,
		"* main (tracked)\n"+
			"  origin/old (remote)\n"+
			"  release (tracked, missing)\n",
		buf.String())
}

func TestPrintColoredDiff(t *testing.T) {
	var buf bytes.Buffer
	printColoredDiff(&buf, "@@ -1,2 +1,2 @@\n  a\n- b\n+ X\n")
	assert.Equal(t, "@@ -1,2 +1,2 @@\n  a\n- b\n+ X\n", buf.String())
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "1", want: 0},
		{in: "42", want: 41},
		{in: "0", wantErr: true},
		{in: "-3", wantErr: true},
		{in: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLine(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
