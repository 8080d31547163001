// File path: internal/vector/chromadb_test.go
package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coderev-ai/coderev/internal/chunk"
)

// mockChroma is a minimal in-memory stand-in for the ChromaDB HTTP API.
type mockChroma struct {
	collections map[string]string // name -> id
	upserts     map[string][]string
}

func newMockChroma() *mockChroma {
	return &mockChroma{
		collections: make(map[string]string),
		upserts:     make(map[string][]string),
	}
}

func (m *mockChroma) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			type col struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			}
			resp := struct {
				Collections []col `json:"collections"`
			}{}
			for name, id := range m.collections {
				resp.Collections = append(resp.Collections, col{ID: id, Name: name})
			}
			_ = json.NewEncoder(w).Encode(resp)
		case http.MethodPost:
			var payload struct {
				Name string `json:"name"`
			}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			if _, exists := m.collections[payload.Name]; exists {
				w.WriteHeader(http.StatusConflict)
				return
			}
			id := "id-" + payload.Name
			m.collections[payload.Name] = id
			_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/collections/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/collections/")
		parts := strings.SplitN(rest, "/", 2)
		target := parts[0]

		if r.Method == http.MethodDelete {
			for name, id := range m.collections {
				if name == target || id == target {
					delete(m.collections, name)
					w.WriteHeader(http.StatusOK)
					return
				}
			}
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if len(parts) != 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch parts[1] {
		case "upsert":
			var payload struct {
				IDs []string `json:"ids"`
			}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			m.upserts[target] = append(m.upserts[target], payload.IDs...)
			w.WriteHeader(http.StatusOK)
		case "query":
			ids := m.upserts[target]
			resp := map[string]interface{}{
				"ids":       [][]string{ids},
				"distances": [][]float64{make([]float64, len(ids))},
				"documents": [][]string{make([]string, len(ids))},
				"metadatas": [][]map[string]interface{}{make([]map[string]interface{}, len(ids))},
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *mockChroma) {
	t.Helper()
	mock := newMockChroma()
	server := httptest.NewServer(mock.handler())
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	cfg := Config{
		Host:    parsed.Hostname(),
		Port:    parsed.Port(),
		Scheme:  "http",
		Timeout: 5 * time.Second,
	}
	client := New(context.Background(), cfg)
	if !client.Available() {
		t.Fatalf("expected client to report available against mock server")
	}
	return client, mock
}

func testChunks() []chunk.Chunk {
	return []chunk.Chunk{
		{
			Content:   "package main\n\nfunc main() {}\n",
			FilePath:  "main.go",
			StartLine: 1,
			EndLine:   3,
			Language:  "go",
			Metadata:  map[string]interface{}{"chunk_index": 0},
		},
		{
			Content:   "package util\n\nfunc Helper() {}\n",
			FilePath:  "util.go",
			StartLine: 1,
			EndLine:   3,
			Language:  "go",
			Metadata:  map[string]interface{}{"chunk_index": 0},
		},
	}
}

func TestUpsertCreatesCollection(t *testing.T) {
	client, mock := newTestClient(t)
	chunks := testChunks()
	vectors := [][]float32{{1, 0}, {0, 1}}

	if err := client.Upsert(context.Background(), "review_test", chunks, vectors); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, ok := mock.collections["review_test"]; !ok {
		t.Fatalf("expected collection to be created, got %v", mock.collections)
	}
	if got := len(mock.upserts["id-review_test"]); got != 2 {
		t.Fatalf("expected 2 upserted ids, got %d", got)
	}
}

func TestQueryMapsDistancesToScores(t *testing.T) {
	client, _ := newTestClient(t)
	chunks := testChunks()
	if err := client.Upsert(context.Background(), "review_q", chunks, [][]float32{{1}, {1}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := client.Query(context.Background(), "review_q", []float32{1}, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, res := range results {
		// Distance zero maps to score 1.
		if res.Score != 1 {
			t.Fatalf("expected score 1 for zero distance, got %v", res.Score)
		}
		if res.ID == "" {
			t.Fatalf("expected chunk id in result")
		}
	}
}

func TestQueryMissingCollection(t *testing.T) {
	client, _ := newTestClient(t)
	if _, err := client.Query(context.Background(), "never_created", []float32{1}, 5); err == nil {
		t.Fatalf("expected error for missing collection")
	}
}

func TestDropCollectionIdempotent(t *testing.T) {
	client, mock := newTestClient(t)
	if err := client.Upsert(context.Background(), "review_d", testChunks(), [][]float32{{1}, {1}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := client.DropCollection(context.Background(), "review_d"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, ok := mock.collections["review_d"]; ok {
		t.Fatalf("expected collection removed")
	}
	// Dropping again is not an error.
	if err := client.DropCollection(context.Background(), "review_d"); err != nil {
		t.Fatalf("second drop: %v", err)
	}
}
