// File path: internal/api/repo_handler.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/coderev-ai/coderev/internal/repo"
)

type cloneRequest struct {
	URL    string `json:"url"`
	Branch string `json:"branch,omitempty"`
}

func (s *Server) handleRepoClone(w http.ResponseWriter, r *http.Request) {
	var req cloneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("url required"))
		return
	}
	info, err := s.repos.Clone(r.Context(), req.URL, req.Branch)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleRepoFiles(w http.ResponseWriter, r *http.Request) {
	repoID := chi.URLParam(r, "repoID")
	tree, err := s.repos.FileTree(repoID)
	if err != nil {
		if errors.Is(err, repo.ErrRepoNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"repo_id": repoID, "files": tree})
}

func (s *Server) handleRepoContent(w http.ResponseWriter, r *http.Request) {
	repoID := chi.URLParam(r, "repoID")
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("path query parameter required"))
		return
	}
	content, err := s.repos.ReadFile(repoID, path)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrRepoNotFound), errors.Is(err, repo.ErrFileNotFound):
			writeError(w, http.StatusNotFound, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"repo_id": repoID, "path": path, "content": content})
}
