package storage

import "context"

// Store holds the ephemeral state the API shares with its collaborators: the
// session tokens the auth service issues (token -> user id) and Web Push
// subscriptions. Implementations: redis.Client, memory.Client (for -dev and
// tests, no Redis required).
type Store interface {
	// GetSessionUser resolves a session token to a user id. Returns "" when
	// the token is unknown or expired.
	GetSessionUser(ctx context.Context, token string) (string, error)
	SetSessionUser(ctx context.Context, token, userID string) error
	DeleteSession(ctx context.Context, token string) error

	AddPushSubscription(ctx context.Context, userID, subscription string) error
	ListPushSubscriptions(ctx context.Context, userID string) ([]string, error)
	RemovePushSubscription(ctx context.Context, userID, subscription string) error

	Close() error
}
