// File path: internal/llm/providers/provider.go
package providers

import "context"

// GenerateOptions tune a single completion request.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// DefaultGenerateOptions returns the standard sampling parameters used for
// analysis requests.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{Temperature: 0.2, MaxTokens: 2048}
}

// Provider is the combined completion and embedding backend contract. Both
// concerns are served by one configured provider because the deployment
// assumption is a single-capacity local model host.
type Provider interface {
	// Generate produces a completion for the given system instructions and
	// user prompt.
	Generate(ctx context.Context, system, prompt string, opts GenerateOptions) (string, error)
	// Embed returns one vector per input text.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	// Available verifies the backend is reachable and that the configured
	// chat and embedding models are provisioned.
	Available(ctx context.Context) error
	Name() string
}

// maxEmbedChars bounds embedding inputs to avoid context window errors.
const maxEmbedChars = 8000

func truncateForEmbedding(text string) string {
	if len(text) > maxEmbedChars {
		return text[:maxEmbedChars]
	}
	return text
}
