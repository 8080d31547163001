// File path: internal/review/store.go
package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coderev-ai/coderev/internal/common"
)

const (
	statusFile  = "status.json"
	resultsFile = "results.json"
)

// Store persists session statuses and compiled results as two JSON documents
// under a data directory. Writes go through a temp file and rename so a crash
// mid-write never leaves a truncated record behind.
type Store struct {
	dir string

	mu       sync.Mutex
	statuses map[string]StatusRecord
	results  map[string]Result
}

// NewStore opens the data directory and loads any previously persisted
// records. Missing files are treated as empty state, not errors.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create review data dir: %w", err)
	}
	s := &Store{
		dir:      dir,
		statuses: make(map[string]StatusRecord),
		results:  make(map[string]Result),
	}
	if err := loadJSON(filepath.Join(dir, statusFile), &s.statuses); err != nil {
		return nil, fmt.Errorf("load review statuses: %w", err)
	}
	if err := loadJSON(filepath.Join(dir, resultsFile), &s.results); err != nil {
		return nil, fmt.Errorf("load review results: %w", err)
	}
	return s, nil
}

// RecoverInterrupted marks every non-terminal session as failed. Called once
// at startup, before any new review can start: a session that was pending or
// processing when the process died can never resume, so it must not present
// itself as live work.
func (s *Store) RecoverInterrupted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	recovered := 0
	for id, rec := range s.statuses {
		if rec.Terminal() {
			continue
		}
		rec.Status = StatusFailed
		rec.Error = "review interrupted by process restart"
		rec.Message = ""
		rec.UpdatedAt = time.Now().UTC()
		s.statuses[id] = rec
		recovered++
		common.Logger().Warn("review: recovered interrupted session", "review_id", id)
	}
	if recovered > 0 {
		s.persistStatusesLocked()
	}
	return recovered
}

// SaveStatus records the latest status snapshot and persists the status map.
// Persistence failures are logged and absorbed: the in-memory record stays
// authoritative for the life of the process.
func (s *Store) SaveStatus(rec StatusRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[rec.ReviewID] = rec
	s.persistStatusesLocked()
}

// GetStatus returns the persisted status for a review.
func (s *Store) GetStatus(reviewID string) (StatusRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.statuses[reviewID]
	return rec, ok
}

// SaveResult stores a compiled result. Called after every analysis pass, so
// a crash mid-review loses at most the pass in flight.
func (s *Store) SaveResult(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[res.ReviewID] = res
	s.persistLocked(resultsFile, s.results)
}

// GetResult returns the most recently compiled result for a review.
func (s *Store) GetResult(reviewID string) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[reviewID]
	return res, ok
}

// Delete removes a review's records from both documents.
func (s *Store) Delete(reviewID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.statuses, reviewID)
	delete(s.results, reviewID)
	s.persistStatusesLocked()
	s.persistLocked(resultsFile, s.results)
}

func (s *Store) persistStatusesLocked() {
	s.persistLocked(statusFile, s.statuses)
}

func (s *Store) persistLocked(name string, v any) {
	path := filepath.Join(s.dir, name)
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		common.Logger().Error("review: marshal state", "file", name, "error", err)
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		common.Logger().Error("review: write state", "file", name, "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		common.Logger().Error("review: replace state", "file", name, "error", err)
	}
}

func loadJSON(path string, out any) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, out)
}
