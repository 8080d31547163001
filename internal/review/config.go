// File path: internal/review/config.go
package review

import (
	"os"
	"strconv"
	"time"
)

// Config bounds a review run. The caps keep one pathological repository from
// starving every queued session behind the run lock.
type Config struct {
	DataDir           string
	MaxFilesPerReview int
	RetrievalTopK     int
	MaxChunksTotal    int
	FileLoadTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		DataDir:           "data/reviews",
		MaxFilesPerReview: 30,
		RetrievalTopK:     20,
		MaxChunksTotal:    100,
		FileLoadTimeout:   10 * time.Second,
	}
}

// LoadConfig reads review settings from the environment, falling back to
// defaults for anything unset or malformed.
func LoadConfig() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("CODEREV_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	cfg.MaxFilesPerReview = envInt("CODEREV_MAX_FILES", cfg.MaxFilesPerReview)
	cfg.RetrievalTopK = envInt("CODEREV_RETRIEVAL_TOP_K", cfg.RetrievalTopK)
	cfg.MaxChunksTotal = envInt("CODEREV_MAX_CHUNKS", cfg.MaxChunksTotal)
	if v := os.Getenv("CODEREV_FILE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.FileLoadTimeout = d
		}
	}
	return cfg
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
