// File path: internal/agents/patcher.go
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/coderev-ai/coderev/internal/common"
	"github.com/coderev-ai/coderev/internal/llm"
)

// contextWindow is the number of lines captured on each side of a finding
// when building a patch request. Kept small so the synthesis prompt stays
// focused on the defective region.
const contextWindow = 5

const patcherSystemPrompt = "You are an expert coder. Fix the following issue in the code snippet."

// PatchResult is one synthesized replacement fragment. OriginalSnippet is
// the anchor text the replacement applies to; a patch is only accepted when
// that anchor still occurs in the current file content.
type PatchResult struct {
	Patch           string  `json:"patch"`
	OriginalSnippet string  `json:"original_snippet"`
	Confidence      float64 `json:"confidence"`
	Explanation     string  `json:"explanation"`
	FindingID       string  `json:"finding_id"`
}

// Patcher synthesizes replacement fragments for findings.
type Patcher struct {
	provider llm.Provider
}

// NewPatcher constructs a patch synthesizer using the given backend.
func NewPatcher(provider llm.Provider) *Patcher {
	return &Patcher{provider: provider}
}

// Generate asks the backend for a replacement fragment for the finding,
// using only a small line window of context rather than the whole file. The
// backend is instructed to return the fragment alone; stray markdown fences
// are stripped when it ignores that.
func (p *Patcher) Generate(ctx context.Context, filePath, fileContent string, finding Finding) (PatchResult, error) {
	snippet := ExtractContext(fileContent, finding.StartLine, contextWindow)
	prompt := fmt.Sprintf(`Issue: %s - %s
Fix: %s
File: %s (lines %d-%d)

Code:
`+"```\n%s\n```"+`
Return ONLY the full modified code snippet. No JSON, no markdown, no explanation.`,
		finding.Title, finding.Description, finding.Suggestion,
		filePath, finding.StartLine, finding.EndLine, snippet)

	response, err := p.provider.Generate(ctx, patcherSystemPrompt, prompt, llm.GenerateOptions{
		Temperature: llm.DefaultGenerateOptions().Temperature,
		MaxTokens:   600,
	})
	if err != nil {
		common.Logger().Error("agents: patch synthesis failed",
			"file", filePath, "finding", finding.ID, "error", err)
		return PatchResult{
			Patch:           snippet,
			OriginalSnippet: snippet,
			Confidence:      0,
			Explanation:     fmt.Sprintf("Failed to generate patch: %v", err),
			FindingID:       finding.ID,
		}, err
	}
	return PatchResult{
		Patch:           stripCodeFences(response),
		OriginalSnippet: snippet,
		Confidence:      0.95,
		Explanation:     "Applied AI fix",
		FindingID:       finding.ID,
	}, nil
}

// ExtractContext returns the lines within window of the 1-based line number,
// clamped to the file bounds.
func ExtractContext(content string, line, window int) string {
	lines := strings.Split(content, "\n")
	start := line - 1 - window
	if start < 0 {
		start = 0
	}
	end := line + window
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "\n")
}

// stripCodeFences removes a surrounding markdown code block, including any
// language tag on the opening fence.
func stripCodeFences(text string) string {
	content := strings.TrimSpace(text)
	if !strings.Contains(content, "```") {
		return content
	}
	parts := strings.Split(content, "```")
	if len(parts) < 3 {
		return content
	}
	inner := parts[1]
	if idx := strings.Index(inner, "\n"); idx >= 0 {
		inner = inner[idx+1:]
	}
	return strings.TrimRight(inner, "\n")
}
