// File path: internal/agents/agent.go

// Package agents runs the analysis passes of a review and synthesizes
// patches for their findings. A pass is one configured instruction set
// executed by a generic agent; the heuristics live entirely in the
// instruction text.
package agents

import (
	"context"
	"fmt"

	"github.com/coderev-ai/coderev/internal/chunk"
	"github.com/coderev-ai/coderev/internal/common"
	"github.com/coderev-ai/coderev/internal/llm"
	"github.com/coderev-ai/coderev/internal/llm/jsonrepair"
)

// Agent executes one analysis pass over a set of chunks. Calls to the
// completion backend are sequential: the backend is assumed to be a
// single-capacity local resource and fanning out would thrash it.
type Agent struct {
	cfg      Config
	provider llm.Provider

	parseFailures int
}

// New constructs an agent for the given pass configuration.
func New(cfg Config, provider llm.Provider) *Agent {
	return &Agent{cfg: cfg, provider: provider}
}

func (a *Agent) Name() string { return a.cfg.Name }

// Query returns the text used to retrieve relevant chunks for this pass
// from the relevance index.
func (a *Agent) Query() string { return a.cfg.Instructions }

// ParseFailures reports how many chunk responses could not be parsed even
// after repair during the lifetime of this agent.
func (a *Agent) ParseFailures() int { return a.parseFailures }

// Analyze runs the pass over the chunks. Per-chunk failures (backend errors,
// unparseable output) are absorbed: the chunk contributes zero findings and
// the pass continues. progress, when non-nil, is invoked after each chunk.
func (a *Agent) Analyze(ctx context.Context, chunks []chunk.Chunk, progress func(done, total int)) []Finding {
	logger := common.Logger()
	var findings []Finding
	for i, ch := range chunks {
		if err := ctx.Err(); err != nil {
			logger.Warn("agents: pass aborted", "pass", a.cfg.Name, "error", err)
			break
		}
		chunkFindings, err := a.analyzeChunk(ctx, ch)
		if err != nil {
			logger.Error("agents: chunk analysis failed",
				"pass", a.cfg.Name, "file", ch.FilePath, "error", err)
		} else {
			findings = append(findings, chunkFindings...)
		}
		if progress != nil {
			progress(i+1, len(chunks))
		}
	}
	return findings
}

type findingRecord struct {
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
	Suggestion  string `json:"suggestion"`
	CodeSnippet string `json:"code_snippet"`
}

type analysisResponse struct {
	Findings []findingRecord `json:"findings"`
}

func (a *Agent) analyzeChunk(ctx context.Context, ch chunk.Chunk) ([]Finding, error) {
	raw, err := a.provider.Generate(ctx, a.cfg.Instructions, buildPrompt(ch), llm.DefaultGenerateOptions())
	if err != nil {
		return nil, err
	}
	var resp analysisResponse
	if err := jsonrepair.RepairAndParse(ctx, a.provider, raw, &resp); err != nil {
		a.parseFailures++
		common.Logger().Warn("agents: dropping unparseable chunk response",
			"pass", a.cfg.Name, "file", ch.FilePath, "parse_failures", a.parseFailures)
		return nil, nil
	}
	findings := make([]Finding, 0, len(resp.Findings))
	for _, rec := range resp.Findings {
		findings = append(findings, a.buildFinding(rec, ch))
	}
	return findings, nil
}

// buildFinding back-fills missing optional fields from the originating
// chunk's position metadata instead of leaving them absent.
func (a *Agent) buildFinding(rec findingRecord, ch chunk.Chunk) Finding {
	finding := Finding{
		ID:          NewID(),
		Agent:       a.cfg.Name,
		Severity:    NormalizeSeverity(rec.Severity),
		Category:    rec.Category,
		Title:       rec.Title,
		Description: rec.Description,
		FilePath:    ch.FilePath,
		StartLine:   rec.StartLine,
		EndLine:     rec.EndLine,
		Suggestion:  rec.Suggestion,
		CodeSnippet: rec.CodeSnippet,
	}
	if finding.Category == "" {
		finding.Category = a.cfg.Category
	}
	if finding.Title == "" {
		finding.Title = "Untitled"
	}
	if finding.StartLine <= 0 {
		finding.StartLine = ch.StartLine
	}
	if finding.EndLine <= 0 {
		finding.EndLine = ch.EndLine
	}
	if finding.EndLine < finding.StartLine {
		finding.EndLine = finding.StartLine
	}
	return finding
}

func buildPrompt(ch chunk.Chunk) string {
	return fmt.Sprintf(`Analyze the following %s code from %s (lines %d-%d):

`+"```%s\n%s\n```"+`

Provide your analysis in the following JSON format:
{
    "findings": [
        {
            "severity": "critical|high|medium|low|info",
            "category": "category name",
            "title": "brief title",
            "description": "detailed description",
            "start_line": %d,
            "end_line": line number,
            "suggestion": "how to fix",
            "code_snippet": "relevant code"
        }
    ]
}

If no issues found, return {"findings": []}`,
		ch.Language, ch.FilePath, ch.StartLine, ch.EndLine,
		ch.Language, ch.Content, ch.StartLine)
}
