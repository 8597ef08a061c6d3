package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bookswap/backend/internal/middleware"
	"github.com/bookswap/backend/internal/model"
	"github.com/bookswap/backend/internal/repository"
	"github.com/bookswap/backend/internal/ws"
)

type MessageHandler struct {
	msgRepo  *repository.MessageRepository
	convRepo *repository.ConversationRepository
	userRepo *repository.UserRepository
	hub      *ws.Hub
}

func NewMessageHandler(msgRepo *repository.MessageRepository, convRepo *repository.ConversationRepository, userRepo *repository.UserRepository, hub *ws.Hub) *MessageHandler {
	return &MessageHandler{msgRepo: msgRepo, convRepo: convRepo, userRepo: userRepo, hub: hub}
}

// Send appends a message over HTTP; live delivery to the receiver goes
// through the hub exactly as for socket sends.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		ConversationID string `json:"conversation_id"`
		Content        string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "conversation_id required")
		return
	}

	m, err := h.msgRepo.Append(r.Context(), req.ConversationID, userID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "conversation not found")
		case errors.Is(err, repository.ErrNotParticipant):
			writeError(w, http.StatusForbidden, "not a participant")
		case errors.Is(err, repository.ErrEmptyContent):
			writeError(w, http.StatusBadRequest, "content is empty")
		case errors.Is(err, repository.ErrContentTooLong):
			writeError(w, http.StatusBadRequest, "content too long")
		default:
			writeError(w, http.StatusInternalServerError, "failed to send message")
		}
		return
	}

	if sender, err := h.userRepo.GetByID(r.Context(), userID); err == nil {
		pub := sender.ToPublic()
		m.Sender = &pub
	}
	if h.hub != nil {
		h.hub.DeliverMessage(r.Context(), m)
	}
	writeJSON(w, http.StatusCreated, m)
}

// List returns a conversation's history for a participant. Supports limit,
// offset, since, until (RFC3339), sender_id and order=desc.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "conversationId")

	if !h.requireParticipant(w, r, convID, userID) {
		return
	}

	limit := queryInt(r, "limit", 100)
	if limit > 500 {
		limit = 500
	}
	opts := repository.ListOptions{
		Limit:      limit,
		Offset:     queryInt(r, "offset", 0),
		Since:      queryTime(r, "since"),
		Until:      queryTime(r, "until"),
		SenderID:   r.URL.Query().Get("sender_id"),
		Descending: r.URL.Query().Get("order") == "desc",
	}

	msgs, err := h.msgRepo.ListForConversation(r.Context(), convID, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get messages")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// Search matches message content case-insensitively within one conversation.
func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "conversationId")

	if !h.requireParticipant(w, r, convID, userID) {
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusOK, []model.Message{})
		return
	}
	limit := queryInt(r, "limit", 50)
	if limit > 100 {
		limit = 100
	}

	msgs, err := h.msgRepo.Search(r.Context(), convID, query, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// MarkStatus handles PUT /api/messages/{messageId}/{delivered|seen|read}.
// Only the receiver may flip flags; flags only ever go false to true.
func (h *MessageHandler) MarkStatus(status model.StatusFlag) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		messageID := chi.URLParam(r, "messageId")

		updated, err := h.msgRepo.MarkStatus(r.Context(), messageID, userID, status)
		if err != nil {
			switch {
			case errors.Is(err, repository.ErrNotFound):
				writeError(w, http.StatusNotFound, "message not found")
			case errors.Is(err, repository.ErrNotAuthorized):
				writeError(w, http.StatusForbidden, "only the receiver can update status")
			default:
				writeError(w, http.StatusInternalServerError, "failed to update status")
			}
			return
		}

		if h.hub != nil {
			h.hub.NotifyStatus(updated, status)
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func (h *MessageHandler) requireParticipant(w http.ResponseWriter, r *http.Request, convID, userID string) bool {
	conv, err := h.convRepo.GetByID(r.Context(), convID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return false
		}
		writeError(w, http.StatusInternalServerError, "failed to get conversation")
		return false
	}
	if !conv.HasParticipant(userID) {
		writeError(w, http.StatusForbidden, "not a participant")
		return false
	}
	return true
}
