package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/bookswap/backend/internal/logger"
	"github.com/bookswap/backend/internal/storage"
)

// TokenAuth resolves the bearer token to a user id via the session store and
// puts the id into the request context. Token issuance lives in the auth
// service; this side only validates.
//
// The token is read from "Authorization: Bearer <token>" or, for WebSocket
// clients that cannot set headers, from the "token" query parameter.
func TokenAuth(store storage.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			}
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			userID, err := store.GetSessionUser(r.Context(), token)
			if err != nil {
				logger.Errorf("auth middleware session lookup: %v", err)
				http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
				return
			}
			if userID == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
