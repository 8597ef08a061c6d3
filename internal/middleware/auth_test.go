package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookswap/backend/internal/storage/memory"
)

func TestTokenAuth(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.SetSessionUser(context.Background(), "good-token", "u42"))

	var gotUserID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := TokenAuth(store)(next)

	t.Run("no token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
		req.Header.Set("Authorization", "Bearer bogus")
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bearer header", func(t *testing.T) {
		gotUserID = ""
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u42", gotUserID)
	})

	t.Run("query token for websocket clients", func(t *testing.T) {
		gotUserID = ""
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ws?token=good-token", nil)
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u42", gotUserID)
	})
}

func TestRateLimiterWindow(t *testing.T) {
	rl := newRateLimiter(2, 50*time.Millisecond)

	assert.True(t, rl.allow("k"))
	assert.True(t, rl.allow("k"))
	assert.False(t, rl.allow("k"))

	// Another key has its own budget.
	assert.True(t, rl.allow("other"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.allow("k"), "window slides, old entries expire")
}
