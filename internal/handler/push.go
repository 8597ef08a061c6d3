package handler

import (
	"encoding/json"
	"net/http"

	"github.com/bookswap/backend/internal/logger"
	"github.com/bookswap/backend/internal/middleware"
	"github.com/bookswap/backend/internal/push"
	"github.com/bookswap/backend/internal/storage"
)

type PushHandler struct {
	store storage.Store
}

func NewPushHandler(store storage.Store) *PushHandler {
	return &PushHandler{store: store}
}

// Subscribe stores the browser's push subscription for the requester.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var sub push.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "subscription (endpoint, keys.p256dh, keys.auth) required")
		return
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "subscription encode")
		return
	}
	if err := h.store.AddPushSubscription(r.Context(), userID, string(raw)); err != nil {
		logger.Errorf("push subscribe user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unsubscribe removes the subscriptions matching the given endpoint.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint required")
		return
	}

	list, err := h.store.ListPushSubscriptions(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get subscriptions")
		return
	}
	for _, raw := range list {
		var sub push.Subscription
		if json.Unmarshal([]byte(raw), &sub) == nil && sub.Endpoint == req.Endpoint {
			if err := h.store.RemovePushSubscription(r.Context(), userID, raw); err != nil {
				logger.Errorf("push unsubscribe user=%s: %v", userID, err)
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
