package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	shared "premerge/shared/types"
)

var (
	regionColor  = color.New(color.FgYellow)
	branchColor  = color.New(color.FgCyan)
	errorColor   = color.New(color.FgRed)
	successColor = color.New(color.FgGreen)
	dimColor     = color.New(color.Faint)
)

// printRegions lists regions with human (1-based) line numbers.
func printRegions(w io.Writer, path string, regions []shared.ConflictRegion) {
	if len(regions) == 0 {
		successColor.Fprintf(w, "No potential conflicts found in %s\n", path)
		return
	}

	fmt.Fprintf(w, "%d potential conflict(s) in %s:\n", len(regions), path)
	for _, r := range regions {
		regionColor.Fprintf(w, "  %s", lineSpan(r))
		fmt.Fprint(w, "  ")
		branchColor.Fprint(w, r.Branch)
		if r.Preview != "" {
			fmt.Fprintf(w, "  %s", r.Preview)
		}
		fmt.Fprintln(w)
	}
}

// printHover prints the full content each branch has for one line.
func printHover(w io.Writer, line int, regions []shared.ConflictRegion) {
	if len(regions) == 0 {
		successColor.Fprintf(w, "No potential conflicts at line %d\n", line)
		return
	}

	for _, r := range regions {
		regionColor.Fprint(w, lineSpan(r))
		fmt.Fprint(w, " conflicts with ")
		branchColor.Fprintln(w, r.Branch)
		for _, l := range strings.Split(r.TheirContent, "\n") {
			fmt.Fprintf(w, "    %s\n", l)
		}
	}
}

func lineSpan(r shared.ConflictRegion) string {
	if r.StartLine == r.EndLine {
		return fmt.Sprintf("line %d", r.StartLine+1)
	}
	return fmt.Sprintf("lines %d-%d", r.StartLine+1, r.EndLine+1)
}

func printBranches(w io.Writer, branches []shared.BranchInfo) {
	for _, b := range branches {
		marker := " "
		if b.Current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s ", marker)

		if b.Tracked {
			branchColor.Fprint(w, b.Name)
		} else {
			fmt.Fprint(w, b.Name)
		}

		var notes []string
		if b.Remote {
			notes = append(notes, "remote")
		}
		if b.Tracked {
			notes = append(notes, "tracked")
		}
		if !b.Exists {
			notes = append(notes, "missing")
		}
		if len(notes) > 0 {
			dimColor.Fprintf(w, " (%s)", strings.Join(notes, ", "))
		}
		fmt.Fprintln(w)
	}
}

func printColoredDiff(w io.Writer, diff string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	for _, line := range strings.Split(diff, "\n") {
		if len(line) == 0 {
			continue
		}

		switch {
		case strings.HasPrefix(line, "@@"):
			header.Fprintln(w, line)
		case strings.HasPrefix(line, "+"):
			added.Fprintln(w, line)
		case strings.HasPrefix(line, "-"):
			removed.Fprintln(w, line)
		default:
			fmt.Fprintln(w, line)
		}
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
