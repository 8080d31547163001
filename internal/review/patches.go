// File path: internal/review/patches.go
package review

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/coderev-ai/coderev/internal/agents"
	"github.com/coderev-ai/coderev/internal/common"
	"github.com/coderev-ai/coderev/internal/diff"
)

// GeneratePatches synthesizes fixes for the selected findings of a completed
// review, grouped per file. Findings are applied in ascending start-line
// order against a working copy of each file, and a fix is only taken when
// its original snippet still matches the working copy exactly; anything
// stale is skipped. An empty findingIDs selection means every finding.
func (m *Manager) GeneratePatches(ctx context.Context, reviewID string, findingIDs []string) (map[string]FilePatch, error) {
	res, err := m.Results(reviewID)
	if err != nil {
		return nil, err
	}
	selected := selectFindings(res.Findings, findingIDs)
	if len(selected) == 0 {
		return nil, fmt.Errorf("no matching findings for review %s", reviewID)
	}

	byFile := make(map[string][]agents.Finding)
	for _, finding := range selected {
		if finding.FilePath == "" {
			continue
		}
		byFile[finding.FilePath] = append(byFile[finding.FilePath], finding)
	}

	patches := make(map[string]FilePatch, len(byFile))
	for path, findings := range byFile {
		sort.Slice(findings, func(i, j int) bool {
			return findings[i].StartLine < findings[j].StartLine
		})
		original, err := m.repos.ReadFile(res.RepoID, path)
		if err != nil {
			common.Logger().Warn("review: skip patch for unreadable file",
				"review_id", reviewID, "path", path, "error", err)
			continue
		}

		working := original
		applied := 0
		confidence := 0.0
		for _, finding := range findings {
			result, err := m.patcher.Generate(ctx, path, working, finding)
			if err != nil {
				common.Logger().Warn("review: patch generation failed",
					"review_id", reviewID, "finding_id", finding.ID, "error", err)
				continue
			}
			if result.OriginalSnippet == "" || !strings.Contains(working, result.OriginalSnippet) {
				common.Logger().Warn("review: patch anchor no longer matches, skipping",
					"review_id", reviewID, "finding_id", finding.ID, "path", path)
				continue
			}
			working = strings.Replace(working, result.OriginalSnippet, result.Patch, 1)
			confidence += result.Confidence
			applied++
		}

		unified, err := diff.Unified(original, working, 3)
		if err != nil {
			common.Logger().Warn("review: compute diff", "review_id", reviewID, "path", path, "error", err)
			unified = ""
		}
		patch := FilePatch{
			Original: original,
			Modified: working,
			Diff:     unified,
			LineDiff: diff.Lines(original, working),
		}
		if applied > 0 {
			patch.Confidence = confidence / float64(applied)
		}
		patches[path] = patch
	}
	return patches, nil
}

// ApplyPatches writes the modified file contents back into the working
// clone. Files are written as given; callers pass the Modified text from
// GeneratePatches, possibly after manual edits.
func (m *Manager) ApplyPatches(reviewID string, files map[string]string) error {
	rec, err := m.Status(reviewID)
	if err != nil {
		return err
	}
	for path, content := range files {
		if err := m.repos.WriteFile(rec.RepoID, path, content); err != nil {
			return fmt.Errorf("apply patch to %s: %w", path, err)
		}
	}
	common.Logger().Info("review: patches applied", "review_id", reviewID, "files", len(files))
	return nil
}

// Publish commits the clone's current state to a new branch and opens a pull
// request for it. Returns the pull request URL.
func (m *Manager) Publish(ctx context.Context, reviewID, title, body string) (string, error) {
	rec, err := m.Status(reviewID)
	if err != nil {
		return "", err
	}
	if title == "" {
		title = fmt.Sprintf("Automated review fixes (%s)", reviewID)
	}
	return m.publisher.Publish(ctx, rec.RepoID, title, body)
}

func selectFindings(findings []agents.Finding, ids []string) []agents.Finding {
	if len(ids) == 0 {
		return findings
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var selected []agents.Finding
	for _, finding := range findings {
		if wanted[finding.ID] {
			selected = append(selected, finding)
		}
	}
	return selected
}
