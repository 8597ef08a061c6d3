package ws

import "github.com/bookswap/backend/internal/model"

type EventType string

const (
	EventSendMessage   EventType = "send_message"
	EventNewMessage    EventType = "new_message"
	EventMarkDelivered EventType = "mark_delivered"
	EventMarkSeen      EventType = "mark_seen"
	EventMarkRead      EventType = "mark_read"
	EventMessageStatus EventType = "message_status"
	EventTyping        EventType = "typing"
	EventError         EventType = "error"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	// ReceiverID may replace ConversationID on send_message; the conversation
	// is then created or fetched on the fly.
	ReceiverID string `json:"receiver_id,omitempty"`
	Content    string `json:"content,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// MessageStatusPayload is sent when a delivery flag of a message changes.
type MessageStatusPayload struct {
	MessageID      string           `json:"message_id"`
	ConversationID string           `json:"conversation_id"`
	Status         model.StatusFlag `json:"status"`
	Delivered      bool             `json:"delivered"`
	Seen           bool             `json:"seen"`
	Read           bool             `json:"read"`
}

// TypingPayload is sent to the counterpart while a user is typing.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}
