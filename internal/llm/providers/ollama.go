// File path: internal/llm/providers/ollama.go
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coderev-ai/coderev/internal/common"
)

// OllamaConfig describes the connection to a local Ollama host.
type OllamaConfig struct {
	Host          string
	ChatModel     string
	EmbedModel    string
	ContextWindow int
	Timeout       time.Duration
	EmbedTimeout  time.Duration
	ProbeTimeout  time.Duration
}

// LoadOllamaConfig reads the Ollama connection settings from the environment.
func LoadOllamaConfig() OllamaConfig {
	cfg := OllamaConfig{
		Host:          "http://127.0.0.1:11434",
		ChatModel:     "llama3",
		EmbedModel:    "nomic-embed-text",
		ContextWindow: 4096,
		Timeout:       120 * time.Second,
		EmbedTimeout:  30 * time.Second,
		ProbeTimeout:  10 * time.Second,
	}
	if host := strings.TrimSpace(os.Getenv("OLLAMA_HOST")); host != "" {
		cfg.Host = strings.TrimRight(host, "/")
	}
	if model := strings.TrimSpace(os.Getenv("OLLAMA_CHAT_MODEL")); model != "" {
		cfg.ChatModel = model
	}
	if model := strings.TrimSpace(os.Getenv("OLLAMA_EMBED_MODEL")); model != "" {
		cfg.EmbedModel = model
	}
	if raw := strings.TrimSpace(os.Getenv("OLLAMA_TIMEOUT")); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			cfg.Timeout = parsed
		} else {
			common.Logger().Warn("llm: invalid OLLAMA_TIMEOUT, using default", "value", raw)
		}
	}
	return cfg
}

// OllamaProvider talks to a local Ollama instance over its HTTP API.
type OllamaProvider struct {
	httpClient *http.Client
	cfg        OllamaConfig
}

// NewOllamaProvider constructs a provider using the given configuration.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.Host == "" {
		cfg = LoadOllamaConfig()
	}
	common.Logger().Info("llm: ollama provider configured",
		"host", cfg.Host, "chat_model", cfg.ChatModel, "embed_model", cfg.EmbedModel)
	return &OllamaProvider{
		httpClient: &http.Client{},
		cfg:        cfg,
	}
}

func (o *OllamaProvider) Generate(ctx context.Context, system, prompt string, opts GenerateOptions) (string, error) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultGenerateOptions().MaxTokens
	}
	payload := map[string]interface{}{
		"model":  o.cfg.ChatModel,
		"prompt": prompt,
		"system": system,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": opts.Temperature,
			"num_predict": opts.MaxTokens,
			"num_ctx":     o.cfg.ContextWindow,
		},
	}
	var resp struct {
		Response string `json:"response"`
	}
	if err := o.doRequest(ctx, http.MethodPost, "/api/generate", payload, &resp, o.cfg.Timeout); err != nil {
		common.Logger().Error("llm: generate request failed", "error", err)
		return "", err
	}
	return resp.Response, nil
}

func (o *OllamaProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(inputs))
	for _, input := range inputs {
		vector, err := o.embedOne(ctx, truncateForEmbedding(input))
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}

func (o *OllamaProvider) embedOne(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	// Prefer /api/embed (newer) over /api/embeddings (legacy).
	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
		Embedding  []float32   `json:"embedding"`
	}
	payload := map[string]interface{}{"model": o.cfg.EmbedModel, "input": text}
	err := o.doRequest(ctx, http.MethodPost, "/api/embed", payload, &resp, o.cfg.EmbedTimeout)
	if errors.Is(err, errNotFound) {
		legacy := map[string]interface{}{"model": o.cfg.EmbedModel, "prompt": text}
		err = o.doRequest(ctx, http.MethodPost, "/api/embeddings", legacy, &resp, o.cfg.EmbedTimeout)
	}
	if err != nil {
		common.Logger().Error("llm: embedding request failed", "chars", len(text), "error", err)
		return nil, err
	}
	if len(resp.Embeddings) > 0 {
		return resp.Embeddings[0], nil
	}
	if len(resp.Embedding) > 0 {
		return resp.Embedding, nil
	}
	return nil, errors.New("unexpected embedding response format")
}

// Available checks the host and verifies that both configured models are
// provisioned. Some Ollama versions report "model:latest", others just
// "model", so matching is by substring.
func (o *OllamaProvider) Available(ctx context.Context) error {
	var resp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := o.doRequest(ctx, http.MethodGet, "/api/tags", nil, &resp, o.cfg.ProbeTimeout); err != nil {
		return fmt.Errorf("ollama unreachable at %s: %w", o.cfg.Host, err)
	}
	for _, model := range []string{o.cfg.ChatModel, o.cfg.EmbedModel} {
		found := false
		for _, entry := range resp.Models {
			if strings.Contains(entry.Name, model) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("model %s not provisioned; pull it with: ollama pull %s", model, model)
		}
	}
	return nil
}

func (o *OllamaProvider) Name() string {
	return "ollama"
}

var errNotFound = errors.New("resource not found")

func (o *OllamaProvider) doRequest(ctx context.Context, method, path string, body, out interface{}, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, o.cfg.Host+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama %s %s failed: %s", method, path, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
