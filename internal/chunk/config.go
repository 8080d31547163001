// File path: internal/chunk/config.go
package chunk

import (
	"os"
	"strconv"
	"strings"

	"github.com/coderev-ai/coderev/internal/common"
)

// Config controls how files are segmented into analyzable chunks.
type Config struct {
	// Size is the character window length of a single chunk.
	Size int
	// Overlap is the number of characters shared between consecutive chunks.
	Overlap int
	// MinContent is the minimum file length eligible for chunking; shorter
	// files produce no chunks at all.
	MinContent int
	// MaxChunksPerFile bounds pathological inputs such as minified
	// single-line bundles.
	MaxChunksPerFile int
}

// DefaultConfig returns the production chunking parameters.
func DefaultConfig() Config {
	return Config{
		Size:             1000,
		Overlap:          200,
		MinContent:       50,
		MaxChunksPerFile: 200,
	}
}

// LoadConfig reads chunking parameters from the environment, falling back to
// defaults for unset or invalid values.
func LoadConfig() Config {
	cfg := DefaultConfig()
	cfg.Size = envInt("CODEREV_CHUNK_SIZE", cfg.Size)
	cfg.Overlap = envInt("CODEREV_CHUNK_OVERLAP", cfg.Overlap)
	cfg.MinContent = envInt("CODEREV_CHUNK_MIN_CONTENT", cfg.MinContent)
	cfg.MaxChunksPerFile = envInt("CODEREV_CHUNK_MAX_PER_FILE", cfg.MaxChunksPerFile)
	if cfg.Overlap >= cfg.Size {
		common.Logger().Warn("chunk: overlap must be smaller than size, using defaults",
			"size", cfg.Size, "overlap", cfg.Overlap)
		return DefaultConfig()
	}
	return cfg
}

func envInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		common.Logger().Warn("chunk: invalid configuration value", "key", key, "value", value)
		return fallback
	}
	return parsed
}
