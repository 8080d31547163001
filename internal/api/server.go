// File path: internal/api/server.go
package api

import (
	"encoding/json"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/coderev-ai/coderev/internal/common"
	"github.com/coderev-ai/coderev/internal/repo"
	"github.com/coderev-ai/coderev/internal/review"
)

// Server exposes the review engine over HTTP.
type Server struct {
	router  chi.Router
	repos   *repo.Store
	reviews *review.Manager
}

func NewServer(repos *repo.Store, reviews *review.Manager) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		repos:   repos,
		reviews: reviews,
	}
	s.routes()
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() {
	logger := common.Logger()
	logger.Info("api: configuring routes")
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start), "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Post("/api/repo/github", s.handleRepoClone)
	s.router.Get("/api/repo/files/{repoID}", s.handleRepoFiles)
	s.router.Get("/api/repo/content/{repoID}", s.handleRepoContent)

	s.router.Post("/api/review/", s.handleReviewStart)
	s.router.Get("/api/review/status/{reviewID}", s.handleReviewStatus)
	s.router.Get("/api/review/{reviewID}", s.handleReviewResults)
	s.router.Delete("/api/review/{reviewID}", s.handleReviewDelete)
	s.router.Post("/api/review/{reviewID}/patches", s.handleReviewPatches)
	s.router.Post("/api/review/{reviewID}/apply", s.handleReviewApply)
	s.router.Post("/api/review/{reviewID}/publish", s.handleReviewPublish)

	s.router.Get("/api/logs", s.handleLogs)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": common.LogEntries()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
