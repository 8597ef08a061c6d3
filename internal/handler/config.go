package handler

import "net/http"

type ConfigHandler struct {
	vapidPublicKey string
}

func NewConfigHandler(vapidPublicKey string) *ConfigHandler {
	return &ConfigHandler{vapidPublicKey: vapidPublicKey}
}

// PushConfig tells the frontend whether Web Push is enabled and with which
// public key to subscribe.
func (h *ConfigHandler) PushConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":          h.vapidPublicKey != "",
		"vapid_public_key": h.vapidPublicKey,
	})
}
