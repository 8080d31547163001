// File path: internal/review/manager_test.go
package review

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coderev-ai/coderev/internal/agents"
	"github.com/coderev-ai/coderev/internal/chunk"
	"github.com/coderev-ai/coderev/internal/llm"
	"github.com/coderev-ai/coderev/internal/repo"
	"github.com/coderev-ai/coderev/internal/vector"
)

const fixtureSource = `def handler(request):
    data = eval(request.body)
    return process(data)

def process(data):
    for item in data:
        print(item)
    return data
`

type fakeProvider struct {
	mu            sync.Mutex
	gate          chan struct{}
	availableErr  error
	patchErr      error
	patchResponse string
	generateCalls int
}

func (f *fakeProvider) Generate(ctx context.Context, system, prompt string, opts llm.GenerateOptions) (string, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.generateCalls++
	f.mu.Unlock()
	if strings.Contains(system, "expert coder") {
		if f.patchErr != nil {
			return "", f.patchErr
		}
		if f.patchResponse != "" {
			return f.patchResponse, nil
		}
		return "patched = True", nil
	}
	return `{"findings": [{"severity": "high", "title": "Unsafe eval", "description": "eval on untrusted input"}]}`, nil
}

func (f *fakeProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	vectors := make([][]float32, len(inputs))
	for i := range inputs {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (f *fakeProvider) Available(ctx context.Context) error { return f.availableErr }
func (f *fakeProvider) Name() string                        { return "fake" }

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generateCalls
}

type fakeIndex struct {
	mu          sync.Mutex
	collections map[string][]string
	queryErr    error
	dropped     []string
	unavailable bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{collections: make(map[string][]string)}
}

func (f *fakeIndex) Available() bool { return !f.unavailable }

func (f *fakeIndex) Upsert(ctx context.Context, collection string, chunks []chunk.Chunk, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range chunks {
		f.collections[collection] = append(f.collections[collection], ch.ID())
	}
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, collection string, vec []float32, topK int) ([]vector.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	ids := f.collections[collection]
	if topK < len(ids) {
		ids = ids[:topK]
	}
	results := make([]vector.SearchResult, len(ids))
	for i, id := range ids {
		results[i] = vector.SearchResult{ID: id, Score: 1}
	}
	return results, nil
}

func (f *fakeIndex) DropCollection(ctx context.Context, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, collection)
	delete(f.collections, collection)
	return nil
}

func seedRepository(t *testing.T, files map[string]string) (*repo.Store, string) {
	t.Helper()
	catalog, err := repo.OpenCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { catalog.Close() })

	repoID := "fixt0001"
	root := filepath.Join(t.TempDir(), repoID)
	for path, content := range files {
		full := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	rec := repo.Record{
		RepoID:    repoID,
		Name:      "fixture",
		URL:       "https://github.com/acme/fixture",
		Branch:    "main",
		Path:      root,
		CreatedAt: time.Now().UTC(),
	}
	if err := catalog.Insert(context.Background(), rec); err != nil {
		t.Fatalf("insert fixture record: %v", err)
	}
	repos, err := repo.NewStore(t.TempDir(), catalog)
	if err != nil {
		t.Fatalf("new repo store: %v", err)
	}
	return repos, repoID
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	return cfg
}

func waitFor(t *testing.T, m *Manager, reviewID string, pred func(StatusRecord) bool) StatusRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := m.Status(reviewID)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if pred(rec) {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	rec, _ := m.Status(reviewID)
	t.Fatalf("timed out waiting for review %s, last status %+v", reviewID, rec)
	return StatusRecord{}
}

func TestReviewPipelineCompletes(t *testing.T) {
	repos, repoID := seedRepository(t, map[string]string{"app/main.py": fixtureSource})
	provider := &fakeProvider{}
	index := newFakeIndex()

	m, err := NewManager(testConfig(t), provider, index, repos)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	reviewID, err := m.StartReview(repoID)
	if err != nil {
		t.Fatalf("start review: %v", err)
	}
	rec := waitFor(t, m, reviewID, StatusRecord.Terminal)
	if rec.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (error %q)", rec.Status, rec.Error)
	}
	if rec.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", rec.Progress)
	}

	res, err := m.Results(reviewID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	// One finding per chunk per pass, three passes over a single chunk.
	if res.TotalFindings != 3 {
		t.Fatalf("expected 3 findings, got %d", res.TotalFindings)
	}
	if res.SeverityCounts[agents.SeverityHigh] != 3 {
		t.Fatalf("expected 3 high findings, got %v", res.SeverityCounts)
	}
	sum := 0
	for _, n := range res.SeverityCounts {
		sum += n
	}
	if sum != res.TotalFindings {
		t.Fatalf("severity counts sum %d, want %d", sum, res.TotalFindings)
	}
	if res.RepoID != repoID {
		t.Fatalf("expected repo id %s, got %s", repoID, res.RepoID)
	}
}

func TestStartReviewUnknownRepo(t *testing.T) {
	repos, _ := seedRepository(t, map[string]string{"main.py": fixtureSource})
	m, err := NewManager(testConfig(t), &fakeProvider{}, newFakeIndex(), repos)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m.StartReview("missing1"); !errors.Is(err, repo.ErrRepoNotFound) {
		t.Fatalf("expected ErrRepoNotFound, got %v", err)
	}
}

func TestResultsNotReadyWhileRunning(t *testing.T) {
	repos, repoID := seedRepository(t, map[string]string{"main.py": fixtureSource})
	provider := &fakeProvider{gate: make(chan struct{})}
	m, err := NewManager(testConfig(t), provider, newFakeIndex(), repos)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	reviewID, err := m.StartReview(repoID)
	if err != nil {
		t.Fatalf("start review: %v", err)
	}
	waitFor(t, m, reviewID, func(rec StatusRecord) bool { return rec.Status == StatusProcessing })

	if _, err := m.Results(reviewID); !errors.Is(err, ErrResultsNotReady) {
		t.Fatalf("expected ErrResultsNotReady, got %v", err)
	}
	close(provider.gate)
	waitFor(t, m, reviewID, StatusRecord.Terminal)
}

func TestSecondReviewWaitsForRunLock(t *testing.T) {
	repos, repoID := seedRepository(t, map[string]string{"main.py": fixtureSource})
	provider := &fakeProvider{gate: make(chan struct{})}
	m, err := NewManager(testConfig(t), provider, newFakeIndex(), repos)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	first, err := m.StartReview(repoID)
	if err != nil {
		t.Fatalf("start first review: %v", err)
	}
	waitFor(t, m, first, func(rec StatusRecord) bool { return rec.Status == StatusProcessing })

	second, err := m.StartReview(repoID)
	if err != nil {
		t.Fatalf("start second review: %v", err)
	}
	waitFor(t, m, second, func(rec StatusRecord) bool {
		return strings.Contains(rec.Message, "waiting")
	})
	rec, err := m.Status(second)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if rec.Status != StatusPending {
		t.Fatalf("queued review must stay pending, got %s", rec.Status)
	}

	close(provider.gate)
	firstRec := waitFor(t, m, first, StatusRecord.Terminal)
	secondRec := waitFor(t, m, second, StatusRecord.Terminal)
	if firstRec.Status != StatusCompleted || secondRec.Status != StatusCompleted {
		t.Fatalf("expected both reviews completed, got %s and %s", firstRec.Status, secondRec.Status)
	}
}

func TestReviewFailsWhenBackendUnavailable(t *testing.T) {
	repos, repoID := seedRepository(t, map[string]string{"main.py": fixtureSource})
	provider := &fakeProvider{availableErr: errors.New("connection refused")}
	m, err := NewManager(testConfig(t), provider, newFakeIndex(), repos)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	reviewID, err := m.StartReview(repoID)
	if err != nil {
		t.Fatalf("start review: %v", err)
	}
	rec := waitFor(t, m, reviewID, StatusRecord.Terminal)
	if rec.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", rec.Status)
	}
	if !strings.Contains(rec.Error, "unavailable") {
		t.Fatalf("expected availability error, got %q", rec.Error)
	}
	if _, err := m.Results(reviewID); !errors.Is(err, ErrResultsNotReady) {
		t.Fatalf("failed review must not serve results, got %v", err)
	}
}

func TestRetrievalFallbackOnQueryError(t *testing.T) {
	repos, repoID := seedRepository(t, map[string]string{"main.py": fixtureSource})
	index := newFakeIndex()
	index.queryErr = errors.New("index offline")

	var fallbackCalls int
	var mu sync.Mutex
	m, err := NewManager(testConfig(t), &fakeProvider{}, index, repos,
		WithRetrievalFallback(func(all []chunk.Chunk, topK int) []chunk.Chunk {
			mu.Lock()
			fallbackCalls++
			mu.Unlock()
			if topK < len(all) {
				return all[:topK]
			}
			return all
		}))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	reviewID, err := m.StartReview(repoID)
	if err != nil {
		t.Fatalf("start review: %v", err)
	}
	rec := waitFor(t, m, reviewID, StatusRecord.Terminal)
	if rec.Status != StatusCompleted {
		t.Fatalf("retrieval failure must degrade, not fail: %s (%q)", rec.Status, rec.Error)
	}
	mu.Lock()
	defer mu.Unlock()
	if fallbackCalls != 3 {
		t.Fatalf("expected fallback once per pass, got %d calls", fallbackCalls)
	}
}

func TestManagerRecoversInterruptedOnStartup(t *testing.T) {
	repos, _ := seedRepository(t, map[string]string{"main.py": fixtureSource})
	cfg := testConfig(t)

	store, err := NewStore(cfg.DataDir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	store.SaveStatus(StatusRecord{
		ReviewID:  "stale001",
		RepoID:    "fixt0001",
		Status:    StatusProcessing,
		Progress:  40,
		UpdatedAt: time.Now().UTC(),
	})

	m, err := NewManager(cfg, &fakeProvider{}, newFakeIndex(), repos)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	rec, err := m.Status("stale001")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if rec.Status != StatusFailed {
		t.Fatalf("interrupted session must be failed on startup, got %s", rec.Status)
	}
	if !strings.Contains(rec.Error, "restart") {
		t.Fatalf("expected restart marker in error, got %q", rec.Error)
	}
}

func TestGeneratePatchesAppliesFixes(t *testing.T) {
	repos, repoID := seedRepository(t, map[string]string{"app/main.py": fixtureSource})
	provider := &fakeProvider{patchResponse: "def handler(request):\n    data = json.loads(request.body)\n    return process(data)"}
	m, err := NewManager(testConfig(t), provider, newFakeIndex(), repos)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	reviewID, err := m.StartReview(repoID)
	if err != nil {
		t.Fatalf("start review: %v", err)
	}
	waitFor(t, m, reviewID, StatusRecord.Terminal)

	patches, err := m.GeneratePatches(context.Background(), reviewID, nil)
	if err != nil {
		t.Fatalf("generate patches: %v", err)
	}
	patch, ok := patches["app/main.py"]
	if !ok {
		t.Fatalf("expected a patch for app/main.py, got %v", patches)
	}
	if patch.Original != fixtureSource {
		t.Fatalf("original must be the unmodified file")
	}
	if !strings.Contains(patch.Modified, "json.loads") {
		t.Fatalf("expected fix applied, got %q", patch.Modified)
	}
	if patch.Confidence != 0.95 {
		t.Fatalf("expected confidence 0.95, got %v", patch.Confidence)
	}
	if patch.Diff == "" || len(patch.LineDiff) == 0 {
		t.Fatalf("expected diffs to be populated")
	}
	// Generating patches must not mutate the working copy.
	current, err := repos.ReadFile(repoID, "app/main.py")
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if current != fixtureSource {
		t.Fatalf("working copy mutated by patch generation")
	}
}

func TestGeneratePatchesSkipsFailedSynthesis(t *testing.T) {
	repos, repoID := seedRepository(t, map[string]string{"main.py": fixtureSource})
	provider := &fakeProvider{patchErr: errors.New("backend down")}
	m, err := NewManager(testConfig(t), provider, newFakeIndex(), repos)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	reviewID, err := m.StartReview(repoID)
	if err != nil {
		t.Fatalf("start review: %v", err)
	}
	waitFor(t, m, reviewID, StatusRecord.Terminal)

	patches, err := m.GeneratePatches(context.Background(), reviewID, nil)
	if err != nil {
		t.Fatalf("generate patches: %v", err)
	}
	patch, ok := patches["main.py"]
	if !ok {
		t.Fatalf("expected an entry for main.py")
	}
	if patch.Modified != patch.Original {
		t.Fatalf("failed synthesis must leave the file unchanged")
	}
	if patch.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %v", patch.Confidence)
	}
	if patch.Diff != "" {
		t.Fatalf("expected empty diff for unchanged file, got %q", patch.Diff)
	}
}

func TestApplyPatchesWritesFiles(t *testing.T) {
	repos, repoID := seedRepository(t, map[string]string{"main.py": fixtureSource})
	m, err := NewManager(testConfig(t), &fakeProvider{}, newFakeIndex(), repos)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	reviewID, err := m.StartReview(repoID)
	if err != nil {
		t.Fatalf("start review: %v", err)
	}
	waitFor(t, m, reviewID, StatusRecord.Terminal)

	patched := "def handler(request):\n    return None\n"
	if err := m.ApplyPatches(reviewID, map[string]string{"main.py": patched}); err != nil {
		t.Fatalf("apply patches: %v", err)
	}
	current, err := repos.ReadFile(repoID, "main.py")
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if current != patched {
		t.Fatalf("expected patched content on disk, got %q", current)
	}
}

func TestDeleteReviewDropsCollection(t *testing.T) {
	repos, repoID := seedRepository(t, map[string]string{"main.py": fixtureSource})
	index := newFakeIndex()
	m, err := NewManager(testConfig(t), &fakeProvider{}, index, repos)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	reviewID, err := m.StartReview(repoID)
	if err != nil {
		t.Fatalf("start review: %v", err)
	}
	waitFor(t, m, reviewID, StatusRecord.Terminal)

	if err := m.DeleteReview(reviewID); err != nil {
		t.Fatalf("delete review: %v", err)
	}
	if _, err := m.Status(reviewID); !errors.Is(err, ErrReviewNotFound) {
		t.Fatalf("expected review gone, got %v", err)
	}
	index.mu.Lock()
	dropped := append([]string(nil), index.dropped...)
	index.mu.Unlock()
	found := false
	for _, name := range dropped {
		if name == fmt.Sprintf("review_%s", reviewID) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected collection drop for %s, got %v", reviewID, dropped)
	}
}
