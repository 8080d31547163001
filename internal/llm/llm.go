// File path: internal/llm/llm.go
package llm

import (
	"os"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/coderev-ai/coderev/internal/common"
	"github.com/coderev-ai/coderev/internal/llm/providers"
)

type GenerateOptions = providers.GenerateOptions

type Provider = providers.Provider

// DefaultGenerateOptions re-exports the standard sampling parameters.
func DefaultGenerateOptions() GenerateOptions {
	return providers.DefaultGenerateOptions()
}

// NewProvider selects the configured backend: OpenAI when OPENAI_API_KEY is
// set, a local Ollama host otherwise.
func NewProvider() Provider {
	logger := common.Logger()
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey != "" {
		opts := []option.RequestOption{option.WithAPIKey(apiKey)}
		if raw := strings.TrimSpace(os.Getenv("OPENAI_HTTP_TIMEOUT")); raw != "" {
			timeout, err := time.ParseDuration(raw)
			if err != nil {
				logger.Warn("llm: invalid OPENAI_HTTP_TIMEOUT, using default", "value", raw, "error", err)
			} else {
				opts = append(opts, option.WithRequestTimeout(timeout))
			}
		}
		if endpoint := strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT")); endpoint != "" {
			logger.Info("llm: configuring OpenAI client with custom endpoint", "endpoint", endpoint)
			opts = append(opts, option.WithBaseURL(endpoint))
		}
		logger.Info("llm: OpenAI provider selected")
		return providers.NewOpenAIProvider(openai.NewClient(opts...))
	}
	logger.Info("llm: OPENAI_API_KEY not set; using local ollama provider")
	return providers.NewOllamaProvider(providers.LoadOllamaConfig())
}
