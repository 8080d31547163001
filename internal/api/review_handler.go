// File path: internal/api/review_handler.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/coderev-ai/coderev/internal/repo"
	"github.com/coderev-ai/coderev/internal/review"
)

type startReviewRequest struct {
	RepoID string `json:"repo_id"`
}

func (s *Server) handleReviewStart(w http.ResponseWriter, r *http.Request) {
	var req startReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.RepoID) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("repo_id required"))
		return
	}
	reviewID, err := s.reviews.StartReview(req.RepoID)
	if err != nil {
		if errors.Is(err, repo.ErrRepoNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"review_id": reviewID,
		"status":    review.StatusPending,
	})
}

func (s *Server) handleReviewStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.reviews.Status(chi.URLParam(r, "reviewID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReviewResults(w http.ResponseWriter, r *http.Request) {
	res, err := s.reviews.Results(chi.URLParam(r, "reviewID"))
	if err != nil {
		switch {
		case errors.Is(err, review.ErrReviewNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, review.ErrResultsNotReady):
			writeError(w, http.StatusConflict, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReviewDelete(w http.ResponseWriter, r *http.Request) {
	reviewID := chi.URLParam(r, "reviewID")
	if err := s.reviews.DeleteReview(reviewID); err != nil {
		if errors.Is(err, review.ErrReviewNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"review_id": reviewID, "status": "deleted"})
}

type patchRequest struct {
	FindingIDs []string `json:"finding_ids,omitempty"`
}

func (s *Server) handleReviewPatches(w http.ResponseWriter, r *http.Request) {
	reviewID := chi.URLParam(r, "reviewID")
	var req patchRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}
	patches, err := s.reviews.GeneratePatches(r.Context(), reviewID, req.FindingIDs)
	if err != nil {
		switch {
		case errors.Is(err, review.ErrReviewNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, review.ErrResultsNotReady):
			writeError(w, http.StatusConflict, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"review_id": reviewID, "patches": patches})
}

type applyRequest struct {
	Files map[string]string `json:"files"`
}

func (s *Server) handleReviewApply(w http.ResponseWriter, r *http.Request) {
	reviewID := chi.URLParam(r, "reviewID")
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.Files) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("files required"))
		return
	}
	if err := s.reviews.ApplyPatches(reviewID, req.Files); err != nil {
		if errors.Is(err, review.ErrReviewNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"review_id": reviewID, "applied": len(req.Files)})
}

type publishRequest struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

func (s *Server) handleReviewPublish(w http.ResponseWriter, r *http.Request) {
	reviewID := chi.URLParam(r, "reviewID")
	var req publishRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}
	prURL, err := s.reviews.Publish(r.Context(), reviewID, req.Title, req.Body)
	if err != nil {
		if errors.Is(err, review.ErrReviewNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"review_id": reviewID, "pull_request_url": prURL})
}
