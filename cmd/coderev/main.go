// File path: cmd/coderev/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/coderev-ai/coderev/internal/api"
	"github.com/coderev-ai/coderev/internal/common"
	"github.com/coderev-ai/coderev/internal/llm"
	"github.com/coderev-ai/coderev/internal/repo"
	"github.com/coderev-ai/coderev/internal/review"
	"github.com/coderev-ai/coderev/internal/vector"
)

func main() {
	logger := common.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil {
		logger.Warn("coderev: .env file not loaded", "error", err)
	} else {
		logger.Info("coderev: environment loaded from .env")
	}

	addr := flag.String("addr", ":8080", "listen address")
	dataDir := flag.String("data", defaultDataDir(), "path to the review state directory")
	cloneDir := flag.String("clones", defaultCloneDir(), "path to the repository clone directory")
	catalogPath := flag.String("catalog", defaultCatalogPath(), "path to the SQLite repository catalog")
	flag.Parse()

	logger.Info("coderev: startup initiated", "addr", *addr, "data", *dataDir)

	catalog, err := repo.OpenCatalog(*catalogPath)
	if err != nil {
		logger.Error("coderev: catalog open failed", "error", err)
		fmt.Println("catalog error:", err)
		os.Exit(1)
	}
	defer catalog.Close()

	repos, err := repo.NewStore(*cloneDir, catalog)
	if err != nil {
		logger.Error("coderev: repository store init failed", "error", err)
		fmt.Println("repository store error:", err)
		os.Exit(1)
	}

	provider := llm.NewProvider()
	logger.Info("coderev: model backend selected", "provider", provider.Name())

	index := vector.NewFromEnv(ctx)
	if !index.Available() {
		logger.Warn("coderev: relevance index unavailable at startup; reviews will fail until it comes up")
	}

	reviewCfg := review.LoadConfig()
	if trimmed := strings.TrimSpace(*dataDir); trimmed != "" {
		reviewCfg.DataDir = trimmed
	}
	reviews, err := review.NewManager(reviewCfg, provider, index, repos)
	if err != nil {
		logger.Error("coderev: review manager init failed", "error", err)
		fmt.Println("review manager error:", err)
		os.Exit(1)
	}

	server := api.NewServer(repos, reviews)
	logger.Info("coderev: listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, server.Router()); err != nil {
		logger.Error("coderev: server terminated", "error", err)
		fmt.Println("server error:", err)
		os.Exit(1)
	}
}

func defaultDataDir() string {
	if env := strings.TrimSpace(os.Getenv("CODEREV_DATA_DIR")); env != "" {
		return env
	}
	return filepath.Join("data", "reviews")
}

func defaultCloneDir() string {
	if env := strings.TrimSpace(os.Getenv("CODEREV_CLONE_DIR")); env != "" {
		return env
	}
	return filepath.Join("data", "clones")
}

func defaultCatalogPath() string {
	if env := strings.TrimSpace(os.Getenv("CODEREV_CATALOG_PATH")); env != "" {
		return env
	}
	return filepath.Join("data", "catalog.db")
}
