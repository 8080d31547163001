// File path: internal/diff/diff.go

// Package diff computes textual diffs between two versions of a file. The
// functions are pure; nothing here touches the network or disk.
package diff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// LineType classifies a row in a line-level diff.
type LineType string

const (
	Unchanged LineType = "unchanged"
	Removed   LineType = "removed"
	Added     LineType = "added"
)

// Line is one emitted row of a line-level diff. Number is a running counter
// over emitted rows, not a source line number; callers needing source
// positions must track the opcode ranges themselves.
type Line struct {
	Type    LineType `json:"type"`
	Content string   `json:"content"`
	Number  int      `json:"line_number"`
}

// Unified returns a unified diff between the two versions with the given
// number of context lines. Identical inputs produce an empty string.
func Unified(original, modified string, contextLines int) (string, error) {
	if contextLines < 0 {
		contextLines = 3
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(modified),
		FromFile: "original",
		ToFile:   "modified",
		Context:  contextLines,
	})
}

// Lines decomposes the change into per-line rows using longest-common-
// subsequence opcodes. Replacements emit the removed original lines first,
// then the added modified lines.
func Lines(original, modified string) []Line {
	a := strings.Split(original, "\n")
	b := strings.Split(modified, "\n")
	matcher := difflib.NewMatcher(a, b)

	var result []Line
	emit := func(kind LineType, lines []string) {
		for _, line := range lines {
			result = append(result, Line{Type: kind, Content: line, Number: len(result) + 1})
		}
	}
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'e':
			emit(Unchanged, a[op.I1:op.I2])
		case 'd':
			emit(Removed, a[op.I1:op.I2])
		case 'i':
			emit(Added, b[op.J1:op.J2])
		case 'r':
			emit(Removed, a[op.I1:op.I2])
			emit(Added, b[op.J1:op.J2])
		}
	}
	return result
}

// ChangedLines returns the 1-based source line numbers removed from the
// original and added in the modified version.
func ChangedLines(original, modified string) (removed, added []int) {
	a := strings.Split(original, "\n")
	b := strings.Split(modified, "\n")
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		if op.Tag == 'd' || op.Tag == 'r' {
			for i := op.I1; i < op.I2; i++ {
				removed = append(removed, i+1)
			}
		}
		if op.Tag == 'i' || op.Tag == 'r' {
			for j := op.J1; j < op.J2; j++ {
				added = append(added, j+1)
			}
		}
	}
	return removed, added
}
