// File path: internal/agents/finding.go
package agents

import (
	"strings"

	"github.com/google/uuid"
)

// Severity levels, highest first.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// Severities lists every level in rank order.
var Severities = []string{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// Finding is one structured issue reported by an analysis pass, anchored to
// a file and line range. Findings are immutable once created.
type Finding struct {
	ID          string `json:"id"`
	Agent       string `json:"agent"`
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	FilePath    string `json:"file_path"`
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
	Suggestion  string `json:"suggestion"`
	CodeSnippet string `json:"code_snippet"`
}

// NewID returns a short random identifier, the same shape used for review
// and repository ids.
func NewID() string {
	return uuid.NewString()[:8]
}

// NormalizeSeverity maps arbitrary model output onto a known level,
// defaulting to info.
func NormalizeSeverity(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	for _, level := range Severities {
		if lowered == level {
			return level
		}
	}
	return SeverityInfo
}
