// File path: internal/review/manager.go
package review

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coderev-ai/coderev/internal/agents"
	"github.com/coderev-ai/coderev/internal/chunk"
	"github.com/coderev-ai/coderev/internal/common"
	"github.com/coderev-ai/coderev/internal/llm"
	"github.com/coderev-ai/coderev/internal/repo"
	"github.com/coderev-ai/coderev/internal/vector"
)

// RetrievalFallback selects the chunks an analysis pass should see when
// semantic retrieval is unavailable or returns nothing. The default takes
// the first topK chunks in their original file order.
type RetrievalFallback func(all []chunk.Chunk, topK int) []chunk.Chunk

func firstChunks(all []chunk.Chunk, topK int) []chunk.Chunk {
	if topK <= 0 || topK >= len(all) {
		return all
	}
	return all[:topK]
}

// Manager owns the review sessions and runs the analysis pipeline. At most
// one review executes at a time: the run lock serializes pipelines while
// StartReview itself stays non-blocking.
type Manager struct {
	cfg       Config
	provider  llm.Provider
	index     vector.Store
	repos     *repo.Store
	publisher *repo.Publisher
	store     *Store
	chunker   *chunk.Chunker
	patcher   *agents.Patcher
	passes    []agents.Config
	fallback  RetrievalFallback

	runMu sync.Mutex

	mu       sync.RWMutex
	sessions map[string]*session
}

// Option adjusts Manager construction.
type Option func(*Manager)

// WithRetrievalFallback overrides the chunk selection used when the
// relevance index cannot answer a pass's query.
func WithRetrievalFallback(f RetrievalFallback) Option {
	return func(m *Manager) {
		if f != nil {
			m.fallback = f
		}
	}
}

// WithPasses replaces the default analysis passes.
func WithPasses(passes []agents.Config) Option {
	return func(m *Manager) {
		if len(passes) > 0 {
			m.passes = passes
		}
	}
}

// NewManager wires the pipeline dependencies together and restores any
// persisted session state. Interrupted sessions are failed before the
// manager accepts new work.
func NewManager(cfg Config, provider llm.Provider, index vector.Store, repos *repo.Store, opts ...Option) (*Manager, error) {
	store, err := NewStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	if n := store.RecoverInterrupted(); n > 0 {
		common.Logger().Info("review: failed interrupted sessions on startup", "count", n)
	}
	m := &Manager{
		cfg:       cfg,
		provider:  provider,
		index:     index,
		repos:     repos,
		publisher: repo.NewPublisher(repos),
		store:     store,
		chunker:   chunk.NewChunker(chunk.LoadConfig()),
		patcher:   agents.NewPatcher(provider),
		passes:    agents.Defaults(),
		fallback:  firstChunks,
		sessions:  make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// StartReview registers a new session and launches its pipeline in the
// background. The returned id is immediately queryable via Status. The call
// never waits on the run lock; a queued session reports its wait through the
// status message instead.
func (m *Manager) StartReview(repoID string) (string, error) {
	if _, err := m.repos.Path(repoID); err != nil {
		return "", err
	}
	reviewID := uuid.NewString()[:8]
	sess := &session{
		StatusRecord: StatusRecord{
			ReviewID:  reviewID,
			RepoID:    repoID,
			Status:    StatusPending,
			Progress:  0,
			Message:   "review queued",
			UpdatedAt: time.Now().UTC(),
		},
	}
	m.mu.Lock()
	m.sessions[reviewID] = sess
	m.mu.Unlock()
	m.store.SaveStatus(sess.StatusRecord)
	common.Logger().Info("review: session created", "review_id", reviewID, "repo_id", repoID)

	go m.run(sess)
	return reviewID, nil
}

// Status returns the current status snapshot for a review, consulting live
// sessions first and falling back to persisted records from prior runs.
func (m *Manager) Status(reviewID string) (StatusRecord, error) {
	m.mu.RLock()
	sess, ok := m.sessions[reviewID]
	var rec StatusRecord
	if ok {
		rec = sess.StatusRecord
	}
	m.mu.RUnlock()
	if ok {
		return rec, nil
	}
	if rec, found := m.store.GetStatus(reviewID); found {
		return rec, nil
	}
	return StatusRecord{}, ErrReviewNotFound
}

// Results returns the compiled result for a completed review. Partial
// results persisted mid-run are not served; callers poll Status until the
// session is terminal.
func (m *Manager) Results(reviewID string) (Result, error) {
	rec, err := m.Status(reviewID)
	if err != nil {
		return Result{}, err
	}
	if rec.Status != StatusCompleted {
		return Result{}, fmt.Errorf("%w: status is %s", ErrResultsNotReady, rec.Status)
	}
	res, ok := m.store.GetResult(reviewID)
	if !ok {
		return Result{}, ErrResultsNotReady
	}
	return res, nil
}

// DeleteReview discards a terminal session, its persisted records, and its
// index collection. Live sessions cannot be deleted.
func (m *Manager) DeleteReview(reviewID string) error {
	rec, err := m.Status(reviewID)
	if err != nil {
		return err
	}
	if !rec.Terminal() {
		return fmt.Errorf("review %s is still %s", reviewID, rec.Status)
	}
	m.mu.Lock()
	delete(m.sessions, reviewID)
	m.mu.Unlock()
	m.store.Delete(reviewID)
	m.dropCollection(reviewID)
	return nil
}

func collectionName(reviewID string) string {
	return "review_" + reviewID
}
