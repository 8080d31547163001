// File path: internal/review/pipeline.go
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/coderev-ai/coderev/internal/agents"
	"github.com/coderev-ai/coderev/internal/chunk"
	"github.com/coderev-ai/coderev/internal/common"
)

// Progress checkpoints of one pipeline run. Analysis passes share the band
// between progressIndexed and progressAnalyzed.
const (
	progressAvailable = 5
	progressLoading   = 10
	progressChunked   = 20
	progressIndexed   = 30
	progressAnalyzed  = 90
	progressDone      = 100
)

// run executes the full pipeline for one session. It acquires the global run
// lock before doing any work; while waiting it reports the queue position
// through the status message rather than failing.
func (m *Manager) run(sess *session) {
	if !m.runMu.TryLock() {
		m.setStatus(sess, StatusPending, sess.Progress, "waiting for an active review to finish")
		m.runMu.Lock()
	}
	defer m.runMu.Unlock()

	ctx := context.Background()
	if err := m.pipeline(ctx, sess); err != nil {
		m.fail(sess, err)
	}
}

func (m *Manager) pipeline(ctx context.Context, sess *session) error {
	started := time.Now()
	m.setStatus(sess, StatusProcessing, 0, "starting review")

	if err := m.provider.Available(ctx); err != nil {
		return fmt.Errorf("model backend unavailable: %w", err)
	}
	if !m.index.Available() {
		return fmt.Errorf("relevance index unavailable")
	}
	m.setStatus(sess, StatusProcessing, progressAvailable, "backends available")

	if err := m.loadAndSegment(sess); err != nil {
		return err
	}
	if len(sess.chunks) == 0 {
		return fmt.Errorf("repository produced no reviewable content")
	}
	m.setStatus(sess, StatusProcessing, progressChunked,
		fmt.Sprintf("segmented repository into %d chunks", len(sess.chunks)))

	if err := m.indexChunks(ctx, sess); err != nil {
		return fmt.Errorf("index repository chunks: %w", err)
	}
	m.setStatus(sess, StatusProcessing, progressIndexed, "repository indexed")

	band := progressAnalyzed - progressIndexed
	for i, passCfg := range m.passes {
		agent := agents.New(passCfg, m.provider)
		passStart := progressIndexed + i*band/len(m.passes)
		passEnd := progressIndexed + (i+1)*band/len(m.passes)
		m.setStatus(sess, StatusProcessing, passStart, fmt.Sprintf("running %s", agent.Name()))

		selected := m.retrieve(ctx, sess, agent.Query())
		findings := agent.Analyze(ctx, selected, func(done, total int) {
			if total == 0 {
				return
			}
			p := passStart + done*(passEnd-passStart)/total
			m.setStatus(sess, StatusProcessing, p, fmt.Sprintf("%s: %d/%d chunks", agent.Name(), done, total))
		})
		sess.findings = append(sess.findings, findings...)
		if n := agent.ParseFailures(); n > 0 {
			common.Logger().Warn("review: pass had unparseable responses",
				"review_id", sess.ReviewID, "pass", agent.Name(), "count", n)
		}

		// Persist after every pass so a crash loses at most the pass in
		// flight.
		m.store.SaveResult(Compile(sess.ReviewID, sess.RepoID, StatusProcessing, sess.findings))
		m.setStatus(sess, StatusProcessing, passEnd,
			fmt.Sprintf("%s finished with %d findings", agent.Name(), len(findings)))
	}

	final := Compile(sess.ReviewID, sess.RepoID, StatusCompleted, sess.findings)
	if remote, err := m.repos.RemoteURL(sess.RepoID); err == nil {
		final.RepoURL = remote
	}
	m.store.SaveResult(final)
	m.setStatus(sess, StatusCompleted, progressDone,
		fmt.Sprintf("review completed with %d findings", final.TotalFindings))
	common.Logger().Info("review: completed", "review_id", sess.ReviewID,
		"findings", final.TotalFindings, "elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}

// loadAndSegment reads the repository's reviewable files and chunks them,
// honoring the per-review file and chunk caps. A file that cannot be read
// within the timeout is skipped, not fatal.
func (m *Manager) loadAndSegment(sess *session) error {
	files, err := m.repos.Files(sess.RepoID)
	if err != nil {
		return fmt.Errorf("list repository files: %w", err)
	}
	if len(files) > m.cfg.MaxFilesPerReview {
		common.Logger().Warn("review: truncating file list",
			"review_id", sess.ReviewID, "files", len(files), "cap", m.cfg.MaxFilesPerReview)
		files = files[:m.cfg.MaxFilesPerReview]
	}
	m.setStatus(sess, StatusProcessing, progressLoading,
		fmt.Sprintf("loading %d files", len(files)))

	sess.byID = make(map[string]chunk.Chunk)
	for _, path := range files {
		content, err := m.readFileWithTimeout(sess.RepoID, path)
		if err != nil {
			common.Logger().Warn("review: skipping unreadable file",
				"review_id", sess.ReviewID, "path", path, "error", err)
			continue
		}
		for _, ch := range m.chunker.Chunk(content, path) {
			if len(sess.chunks) >= m.cfg.MaxChunksTotal {
				common.Logger().Warn("review: chunk cap reached",
					"review_id", sess.ReviewID, "cap", m.cfg.MaxChunksTotal)
				return nil
			}
			sess.chunks = append(sess.chunks, ch)
			sess.byID[ch.ID()] = ch
		}
	}
	return nil
}

func (m *Manager) readFileWithTimeout(repoID, path string) (string, error) {
	type outcome struct {
		content string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		content, err := m.repos.ReadFile(repoID, path)
		done <- outcome{content, err}
	}()
	select {
	case out := <-done:
		return out.content, out.err
	case <-time.After(m.cfg.FileLoadTimeout):
		return "", fmt.Errorf("read %s: timed out after %s", path, m.cfg.FileLoadTimeout)
	}
}

// indexChunks embeds every chunk and upserts the batch into the review's
// collection.
func (m *Manager) indexChunks(ctx context.Context, sess *session) error {
	inputs := make([]string, len(sess.chunks))
	for i, ch := range sess.chunks {
		inputs[i] = ch.Content
	}
	vectors, err := m.provider.Embed(ctx, inputs)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(sess.chunks) {
		return fmt.Errorf("embedding count mismatch: %d vectors for %d chunks", len(vectors), len(sess.chunks))
	}
	return m.index.Upsert(ctx, collectionName(sess.ReviewID), sess.chunks, vectors)
}

// retrieve selects the chunks a pass should analyze: semantic nearest
// neighbors for the pass's instruction text when the index can answer, the
// configured fallback otherwise. Retrieval failure degrades the pass, never
// fails the review.
func (m *Manager) retrieve(ctx context.Context, sess *session, query string) []chunk.Chunk {
	selected := m.semanticRetrieve(ctx, sess, query)
	if len(selected) == 0 {
		common.Logger().Warn("review: semantic retrieval unavailable, using fallback",
			"review_id", sess.ReviewID)
		return m.fallback(sess.chunks, m.cfg.RetrievalTopK)
	}
	return selected
}

func (m *Manager) semanticRetrieve(ctx context.Context, sess *session, query string) []chunk.Chunk {
	vectors, err := m.provider.Embed(ctx, []string{query})
	if err != nil || len(vectors) == 0 {
		common.Logger().Warn("review: embed retrieval query", "review_id", sess.ReviewID, "error", err)
		return nil
	}
	results, err := m.index.Query(ctx, collectionName(sess.ReviewID), vectors[0], m.cfg.RetrievalTopK)
	if err != nil {
		common.Logger().Warn("review: query relevance index", "review_id", sess.ReviewID, "error", err)
		return nil
	}
	selected := make([]chunk.Chunk, 0, len(results))
	for _, res := range results {
		if ch, ok := sess.byID[res.ID]; ok {
			selected = append(selected, ch)
		}
	}
	return selected
}

// setStatus applies a status transition and persists it. Progress never
// moves backwards within a run.
func (m *Manager) setStatus(sess *session, status string, progress int, message string) {
	m.mu.Lock()
	if progress < sess.Progress {
		progress = sess.Progress
	}
	sess.Status = status
	sess.Progress = progress
	sess.Message = message
	sess.UpdatedAt = time.Now().UTC()
	rec := sess.StatusRecord
	m.mu.Unlock()
	m.store.SaveStatus(rec)
}

func (m *Manager) fail(sess *session, err error) {
	common.Logger().Error("review: failed", "review_id", sess.ReviewID, "error", err)
	m.mu.Lock()
	sess.Status = StatusFailed
	sess.Error = err.Error()
	sess.Message = ""
	sess.UpdatedAt = time.Now().UTC()
	rec := sess.StatusRecord
	m.mu.Unlock()
	m.store.SaveStatus(rec)
	m.store.SaveResult(Compile(sess.ReviewID, sess.RepoID, StatusFailed, sess.findings))
}

func (m *Manager) dropCollection(reviewID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.index.DropCollection(ctx, collectionName(reviewID)); err != nil {
		common.Logger().Warn("review: drop collection", "review_id", reviewID, "error", err)
	}
}
