// File path: internal/diff/diff_test.go
package diff

import (
	"strings"
	"testing"
)

func TestUnifiedIdenticalInputs(t *testing.T) {
	text := "alpha\nbeta\ngamma\n"
	out, err := Unified(text, text, 3)
	if err != nil {
		t.Fatalf("unified diff: %v", err)
	}
	if out != "" {
		t.Fatalf("expected empty diff for identical inputs, got %q", out)
	}
}

func TestUnifiedMarksChanges(t *testing.T) {
	original := "alpha\nbeta\ngamma\n"
	modified := "alpha\nBETA\ngamma\n"
	out, err := Unified(original, modified, 3)
	if err != nil {
		t.Fatalf("unified diff: %v", err)
	}
	if !strings.Contains(out, "--- original") || !strings.Contains(out, "+++ modified") {
		t.Fatalf("expected file headers in diff, got %q", out)
	}
	if !strings.Contains(out, "-beta") || !strings.Contains(out, "+BETA") {
		t.Fatalf("expected changed line markers, got %q", out)
	}
}

func TestLinesIdenticalInputs(t *testing.T) {
	text := "one\ntwo\nthree"
	rows := Lines(text, text)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row.Type != Unchanged {
			t.Fatalf("row %d: expected unchanged, got %s", i, row.Type)
		}
		if row.Number != i+1 {
			t.Fatalf("row %d: expected running number %d, got %d", i, i+1, row.Number)
		}
	}
}

func TestLinesReplacementOrder(t *testing.T) {
	rows := Lines("keep\nold\nkeep2", "keep\nnew\nkeep2")
	want := []struct {
		kind    LineType
		content string
	}{
		{Unchanged, "keep"},
		{Removed, "old"},
		{Added, "new"},
		{Unchanged, "keep2"},
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i, w := range want {
		if rows[i].Type != w.kind || rows[i].Content != w.content {
			t.Fatalf("row %d: got (%s, %q), want (%s, %q)", i, rows[i].Type, rows[i].Content, w.kind, w.content)
		}
		if rows[i].Number != i+1 {
			t.Fatalf("row %d: running number %d, want %d", i, rows[i].Number, i+1)
		}
	}
}

func TestLinesPureInsertion(t *testing.T) {
	rows := Lines("a\nb", "a\nb\nc")
	var added []string
	for _, row := range rows {
		if row.Type == Added {
			added = append(added, row.Content)
		}
	}
	if len(added) != 1 || added[0] != "c" {
		t.Fatalf("expected single added row %q, got %v", "c", added)
	}
}

func TestChangedLines(t *testing.T) {
	removed, added := ChangedLines("a\nb\nc", "a\nB\nc\nd")
	if len(removed) != 1 || removed[0] != 2 {
		t.Fatalf("expected removed line [2], got %v", removed)
	}
	if len(added) != 2 || added[0] != 2 || added[1] != 4 {
		t.Fatalf("expected added lines [2 4], got %v", added)
	}
}
