// File path: internal/vector/chromadb.go
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coderev-ai/coderev/internal/chunk"
	"github.com/coderev-ai/coderev/internal/common"
)

// Store is the relevance-index contract: per-collection upsert and
// nearest-neighbor query. Collections are isolated per review id and dropped
// with the review that owns them.
type Store interface {
	Available() bool
	Upsert(ctx context.Context, collection string, chunks []chunk.Chunk, vectors [][]float32) error
	Query(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error)
	DropCollection(ctx context.Context, collection string) error
}

// SearchResult is one nearest-neighbor match with its chunk payload.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]interface{}
}

// Client talks to a ChromaDB server over its HTTP API.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport

	baseURL   string
	apiKey    string
	available bool

	mu          sync.RWMutex
	collections map[string]string
}

var (
	errNotFound = errors.New("resource not found")
	errConflict = errors.New("resource conflict")
)

// NewFromEnv constructs a client from environment configuration.
func NewFromEnv(ctx context.Context) *Client {
	return New(ctx, LoadConfig())
}

// New constructs a client using the provided configuration. An unreachable
// server is not an error at construction time; the client reports
// unavailable until a health check succeeds.
func New(ctx context.Context, cfg Config) *Client {
	logger := common.Logger()
	logger.Info("vector: initializing chromadb client",
		"host", cfg.Host, "port", cfg.Port, "timeout", cfg.Timeout)
	transport := &http.Transport{
		MaxIdleConns:        cfg.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTPMaxIdlePerHost,
		IdleConnTimeout:     cfg.HTTPIdleConnTimeout,
	}
	client := &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout, Transport: transport},
		transport:   transport,
		baseURL:     fmt.Sprintf("%s://%s:%s/api/v1", cfg.Scheme, cfg.Host, cfg.Port),
		apiKey:      cfg.APIKey,
		collections: make(map[string]string),
	}
	if err := client.ensureReady(ctx); err != nil {
		logger.Warn("vector: chromadb initialization failed", "error", err)
		return client
	}
	logger.Info("vector: chromadb connection established")
	return client
}

func (c *Client) Available() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

func (c *Client) ensureReady(ctx context.Context) error {
	if c == nil {
		return errors.New("chromadb client not configured")
	}
	if c.Available() {
		return nil
	}
	const maxAttempts = 3
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = c.health(ctx)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 250 * time.Millisecond):
		}
	}
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.available = true
	c.mu.Unlock()
	return nil
}

// Upsert stores the chunks and their vectors in the named collection,
// creating it when missing.
func (c *Client) Upsert(ctx context.Context, collection string, chunks []chunk.Chunk, vectors [][]float32) error {
	if err := c.ensureReady(ctx); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	collectionID, err := c.resolveCollection(ctx, collection, true)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(chunks))
	embeddings := make([][]float32, 0, len(chunks))
	documents := make([]string, 0, len(chunks))
	metadatas := make([]map[string]interface{}, 0, len(chunks))
	for idx, ch := range chunks {
		ids = append(ids, ch.ID())
		if idx < len(vectors) {
			embeddings = append(embeddings, vectors[idx])
		} else {
			embeddings = append(embeddings, nil)
		}
		documents = append(documents, ch.Content)
		metadatas = append(metadatas, map[string]interface{}{
			"file_path":  ch.FilePath,
			"start_line": ch.StartLine,
			"end_line":   ch.EndLine,
			"language":   ch.Language,
		})
	}
	payload := map[string]interface{}{
		"ids":        ids,
		"documents":  documents,
		"metadatas":  metadatas,
		"embeddings": embeddings,
	}
	endpoint := fmt.Sprintf("%s/collections/%s/upsert", c.baseURL, url.PathEscape(collectionID))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, payload, nil); err != nil {
		if errors.Is(err, errNotFound) {
			fallback := fmt.Sprintf("%s/collections/%s/add", c.baseURL, url.PathEscape(collectionID))
			return c.doRequest(ctx, http.MethodPost, fallback, payload, nil)
		}
		return err
	}
	common.Logger().Debug("vector: upserted chunks", "collection", collection, "count", len(chunks))
	return nil
}

// Query returns the topK nearest chunks in the named collection. Scores are
// mapped from distances via 1/(1+d).
func (c *Client) Query(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}
	collectionID, err := c.resolveCollection(ctx, collection, false)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{
		"query_embeddings": [][]float32{vector},
		"n_results":        topK,
	}
	endpoint := fmt.Sprintf("%s/collections/%s/query", c.baseURL, url.PathEscape(collectionID))
	var resp struct {
		IDs       [][]string                 `json:"ids"`
		Distances [][]float64                `json:"distances"`
		Metadatas [][]map[string]interface{} `json:"metadatas"`
		Documents [][]string                 `json:"documents"`
	}
	if err := c.doRequest(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}
	results := make([]SearchResult, 0, len(resp.IDs[0]))
	for idx, id := range resp.IDs[0] {
		payload := map[string]interface{}{}
		if len(resp.Metadatas) > 0 && idx < len(resp.Metadatas[0]) {
			for k, v := range resp.Metadatas[0][idx] {
				payload[k] = v
			}
		}
		if len(resp.Documents) > 0 && idx < len(resp.Documents[0]) && resp.Documents[0][idx] != "" {
			payload["content"] = resp.Documents[0][idx]
		}
		score := float32(0)
		if len(resp.Distances) > 0 && idx < len(resp.Distances[0]) {
			score = float32(1.0 / (1.0 + resp.Distances[0][idx]))
		}
		results = append(results, SearchResult{ID: id, Score: score, Payload: payload})
	}
	return results, nil
}

// DropCollection removes the named collection. Missing collections are not
// an error; the index entry is simply gone.
func (c *Client) DropCollection(ctx context.Context, collection string) error {
	if err := c.ensureReady(ctx); err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/collections/%s", c.baseURL, url.PathEscape(collection))
	err := c.doRequest(ctx, http.MethodDelete, endpoint, nil, nil)
	if errors.Is(err, errNotFound) {
		err = nil
	}
	if err == nil {
		c.mu.Lock()
		delete(c.collections, collection)
		c.mu.Unlock()
	}
	return err
}

var _ Store = (*Client)(nil)

// resolveCollection maps a collection name to its server-side id, creating
// the collection when requested. Resolved ids are cached per name.
func (c *Client) resolveCollection(ctx context.Context, name string, create bool) (string, error) {
	c.mu.RLock()
	id, ok := c.collections[name]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}
	id, err := c.findCollection(ctx, name)
	if err != nil {
		return "", err
	}
	if id == "" {
		if !create {
			return "", fmt.Errorf("collection %s not found", name)
		}
		id, err = c.createCollection(ctx, name)
		if err != nil {
			return "", err
		}
	}
	c.mu.Lock()
	c.collections[name] = id
	c.mu.Unlock()
	return id, nil
}

func (c *Client) findCollection(ctx context.Context, name string) (string, error) {
	endpoint := fmt.Sprintf("%s/collections?name=%s", c.baseURL, url.QueryEscape(name))
	var resp struct {
		Collections []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"collections"`
	}
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return "", nil
		}
		// Fall back to enumerating collections when the name filter is
		// unsupported.
		endpoint = fmt.Sprintf("%s/collections", c.baseURL)
		if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
			return "", err
		}
	}
	for _, col := range resp.Collections {
		if strings.EqualFold(col.Name, name) {
			return col.ID, nil
		}
	}
	return "", nil
}

func (c *Client) createCollection(ctx context.Context, name string) (string, error) {
	payload := map[string]interface{}{
		"name":     name,
		"metadata": map[string]interface{}{"hnsw:space": "cosine"},
	}
	endpoint := fmt.Sprintf("%s/collections", c.baseURL)
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.doRequest(ctx, http.MethodPost, endpoint, payload, &resp); err != nil {
		if errors.Is(err, errConflict) {
			return c.findCollection(ctx, name)
		}
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) health(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, c.baseURL+"/heartbeat", nil, nil)
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, out interface{}) error {
	if c == nil {
		return errors.New("chromadb client not configured")
	}
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode == http.StatusConflict:
		return errConflict
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chromadb %s %s failed: %s", method, endpoint, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Close releases pooled connections.
func (c *Client) Close() error {
	if c != nil && c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	return nil
}
