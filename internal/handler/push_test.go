package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookswap/backend/internal/middleware"
	"github.com/bookswap/backend/internal/storage/memory"
)

func authedRequest(method, target, body, userID string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := context.WithValue(r.Context(), middleware.UserIDKey, userID)
	return r.WithContext(ctx)
}

func TestPushSubscribe(t *testing.T) {
	store := memory.New()
	h := NewPushHandler(store)

	t.Run("rejects incomplete subscription", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Subscribe(rec, authedRequest(http.MethodPost, "/api/push/subscribe",
			`{"endpoint":"https://push.example/ep1"}`, "u1"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	sub := `{"endpoint":"https://push.example/ep1","keys":{"p256dh":"pk","auth":"ak"}}`
	rec := httptest.NewRecorder()
	h.Subscribe(rec, authedRequest(http.MethodPost, "/api/push/subscribe", sub, "u1"))
	require.Equal(t, http.StatusNoContent, rec.Code)

	list, err := store.ListPushSubscriptions(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Contains(t, list[0], "https://push.example/ep1")

	// Unsubscribe by endpoint.
	rec = httptest.NewRecorder()
	h.Unsubscribe(rec, authedRequest(http.MethodDelete, "/api/push/subscribe",
		`{"endpoint":"https://push.example/ep1"}`, "u1"))
	require.Equal(t, http.StatusNoContent, rec.Code)

	list, err = store.ListPushSubscriptions(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPushConfig(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		h := NewConfigHandler("BPubKey")
		rec := httptest.NewRecorder()
		h.PushConfig(rec, httptest.NewRequest(http.MethodGet, "/api/config/push", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Enabled        bool   `json:"enabled"`
			VAPIDPublicKey string `json:"vapid_public_key"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Enabled)
		assert.Equal(t, "BPubKey", resp.VAPIDPublicKey)
	})

	t.Run("disabled without keys", func(t *testing.T) {
		h := NewConfigHandler("")
		rec := httptest.NewRecorder()
		h.PushConfig(rec, httptest.NewRequest(http.MethodGet, "/api/config/push", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Enabled bool `json:"enabled"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Enabled)
	})
}
