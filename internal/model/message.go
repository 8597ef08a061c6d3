package model

import "time"

// MaxContentLength bounds message content (in runes) after trimming.
const MaxContentLength = 1000

// StatusFlag names one of the three per-message delivery flags. Flags only
// move from false to true; marking is restricted to the receiver.
type StatusFlag string

const (
	StatusDelivered StatusFlag = "delivered"
	StatusSeen      StatusFlag = "seen"
	StatusRead      StatusFlag = "read"
)

// ValidStatusFlag reports whether s names a known flag.
func ValidStatusFlag(s StatusFlag) bool {
	switch s {
	case StatusDelivered, StatusSeen, StatusRead:
		return true
	}
	return false
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	ReceiverID     string    `json:"receiver_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	Delivered      bool      `json:"delivered"`
	Seen           bool      `json:"seen"`
	Read           bool      `json:"read"`

	Sender *UserPublic `json:"sender,omitempty"`
}
