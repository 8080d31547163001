// File path: internal/review/types.go
package review

import (
	"errors"
	"time"

	"github.com/coderev-ai/coderev/internal/agents"
	"github.com/coderev-ai/coderev/internal/chunk"
	"github.com/coderev-ai/coderev/internal/diff"
)

// Session lifecycle states. pending and processing are transient; completed
// and failed are terminal.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var (
	ErrReviewNotFound  = errors.New("review not found")
	ErrResultsNotReady = errors.New("review not yet completed")
)

// StatusRecord is the small, frequently persisted view of a session.
// Progress is monotonically non-decreasing while the session is processing.
type StatusRecord struct {
	ReviewID  string    `json:"review_id"`
	RepoID    string    `json:"repo_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the record has reached a final state.
func (r StatusRecord) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// session is the in-memory state of one review run. Exactly one goroutine,
// the pipeline owner, mutates it after creation.
type session struct {
	StatusRecord
	chunks   []chunk.Chunk
	byID     map[string]chunk.Chunk
	findings []agents.Finding
}

// Result is the compiled outcome of a review: derived entirely from the
// session's findings and recomputable at any time.
type Result struct {
	ReviewID       string           `json:"review_id"`
	RepoID         string           `json:"repo_id"`
	RepoURL        string           `json:"repo_url,omitempty"`
	Status         string           `json:"status"`
	TotalFindings  int              `json:"total_findings"`
	SeverityCounts map[string]int   `json:"severity_counts"`
	Findings       []agents.Finding `json:"findings"`
}

// Compile derives a Result from a finding set. Every severity level appears
// in the counts, including zeroes, so sum(counts) == TotalFindings ==
// len(Findings) always holds.
func Compile(reviewID, repoID, status string, findings []agents.Finding) Result {
	counts := make(map[string]int, len(agents.Severities))
	for _, level := range agents.Severities {
		counts[level] = 0
	}
	for _, finding := range findings {
		counts[agents.NormalizeSeverity(finding.Severity)]++
	}
	copied := make([]agents.Finding, len(findings))
	copy(copied, findings)
	return Result{
		ReviewID:       reviewID,
		RepoID:         repoID,
		Status:         status,
		TotalFindings:  len(findings),
		SeverityCounts: counts,
		Findings:       copied,
	}
}

// FilePatch is the reviewable edit for one file: both text versions, their
// diffs, and the mean confidence of the findings that were actually applied.
// Patches are computed on demand and never persisted with the session.
type FilePatch struct {
	Original   string      `json:"original"`
	Modified   string      `json:"modified"`
	Diff       string      `json:"diff"`
	LineDiff   []diff.Line `json:"line_diff"`
	Confidence float64     `json:"confidence"`
}
