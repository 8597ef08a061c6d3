package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookswap/backend/internal/middleware"
	"github.com/bookswap/backend/internal/storage/memory"
	"github.com/bookswap/backend/internal/ws"
)

// End-to-end over a real socket: token auth on connect, upgrade, and the
// per-frame error path. Frames that need the database are exercised in the
// repository and service tests.
func TestServeWS(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.SetSessionUser(context.Background(), "ws-token", "u1"))

	hub := ws.NewHub(nil, nil, nil, nil, ws.Settings{})
	hubCtx, hubCancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()
	t.Cleanup(func() {
		hubCancel()
		<-hubDone
	})

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.TokenAuth(store))
		r.Get("/ws", NewWSHandler(hub, "*").ServeWS)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	t.Run("rejects missing token", func(t *testing.T) {
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.Error(t, err)
		if conn != nil {
			conn.Close()
		}
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("connects and answers unknown frames with an error event", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token=ws-token", nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteJSON(map[string]string{"type": "shrug"}))

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var out struct {
			Type    string `json:"type"`
			Payload string `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&out))
		assert.Equal(t, string(ws.EventError), out.Type)
		assert.Contains(t, out.Payload, "unknown event")
	})
}
