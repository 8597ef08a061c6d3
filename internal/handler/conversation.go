package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bookswap/backend/internal/middleware"
	"github.com/bookswap/backend/internal/repository"
	"github.com/bookswap/backend/internal/service"
)

type ConversationHandler struct {
	convRepo *repository.ConversationRepository
	summary  *service.SummaryService
}

func NewConversationHandler(convRepo *repository.ConversationRepository, summary *service.SummaryService) *ConversationHandler {
	return &ConversationHandler{convRepo: convRepo, summary: summary}
}

// CreateOrGet opens (or finds) the conversation between the requester and
// user_id. 201 on first creation, 200 when the pair already talks.
func (h *ConversationHandler) CreateOrGet(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}

	conv, created, err := h.convRepo.GetOrCreate(r.Context(), userID, req.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidParticipant) {
			writeError(w, http.StatusBadRequest, "invalid participant")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to open conversation")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, conv)
}

// List returns the requester's conversation summaries, newest activity first.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	summaries, err := h.summary.ListSummaries(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// Get returns one conversation; only its participants may see it.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "conversationId")

	conv, err := h.convRepo.GetByID(r.Context(), convID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get conversation")
		return
	}
	if !conv.HasParticipant(userID) {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}
