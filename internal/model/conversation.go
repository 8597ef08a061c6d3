package model

import "time"

// Conversation pairs exactly two users. The pair is unordered: at most one
// conversation exists for any two users, enforced by a unique index on
// (LEAST(user_a_id, user_b_id), GREATEST(user_a_id, user_b_id)).
type Conversation struct {
	ID             string    `json:"id"`
	UserAID        string    `json:"user_a_id"`
	UserBID        string    `json:"user_b_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.UserAID == userID || c.UserBID == userID
}

// Counterpart returns the participant that is not userID. The result is only
// meaningful when userID is a participant.
func (c *Conversation) Counterpart(userID string) string {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

// ConversationSummary is the derived list-view of a conversation for one
// requesting user. It is recomputed on every listing, never persisted.
type ConversationSummary struct {
	ConversationID     string     `json:"conversation_id"`
	Counterpart        UserPublic `json:"counterpart"`
	CreatedAt          time.Time  `json:"created_at"`
	LastMessageSnippet string     `json:"last_message_snippet,omitempty"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
}

// ActivityAt is the sort key for summary ordering: the last message time,
// falling back to the conversation creation time when no message exists.
func (s *ConversationSummary) ActivityAt() time.Time {
	if s.LastMessageAt != nil {
		return *s.LastMessageAt
	}
	return s.CreatedAt
}
