package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConversationParticipants(t *testing.T) {
	c := &Conversation{ID: "c1", UserAID: "alice", UserBID: "bob"}

	assert.True(t, c.HasParticipant("alice"))
	assert.True(t, c.HasParticipant("bob"))
	assert.False(t, c.HasParticipant("mallory"))

	assert.Equal(t, "bob", c.Counterpart("alice"))
	assert.Equal(t, "alice", c.Counterpart("bob"))
}

func TestSummaryActivityAt(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := &ConversationSummary{ConversationID: "c1", CreatedAt: created}
	assert.Equal(t, created, s.ActivityAt(), "without messages the creation time is the sort key")

	last := created.Add(2 * time.Hour)
	s.LastMessageAt = &last
	assert.Equal(t, last, s.ActivityAt())
}

func TestValidStatusFlag(t *testing.T) {
	assert.True(t, ValidStatusFlag(StatusDelivered))
	assert.True(t, ValidStatusFlag(StatusSeen))
	assert.True(t, ValidStatusFlag(StatusRead))
	assert.False(t, ValidStatusFlag("archived"))
	assert.False(t, ValidStatusFlag(""))
}

func TestUserToPublic(t *testing.T) {
	u := &User{ID: "u1", Username: "alice", Email: "alice@example.com", ProfilePictureURL: "http://x/p.png"}
	pub := u.ToPublic()
	assert.Equal(t, "u1", pub.ID)
	assert.Equal(t, "alice", pub.Username)
	assert.Equal(t, "http://x/p.png", pub.ProfilePictureURL)
}
