package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bookswap/backend/internal/logger"
	"github.com/bookswap/backend/internal/model"
	"github.com/bookswap/backend/internal/repository"
)

// PushNotifier sends push notifications to users without a live socket.
// A nil notifier disables push.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// Settings tunes connection handling; zero values fall back to defaults.
type Settings struct {
	MaxConns       int
	SendBufferSize int
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
}

func (s *Settings) applyDefaults() {
	if s.MaxConns <= 0 {
		s.MaxConns = 10000
	}
	if s.SendBufferSize <= 0 {
		s.SendBufferSize = 256
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = 10 * time.Second
	}
	if s.PongTimeout <= 0 {
		s.PongTimeout = 60 * time.Second
	}
	if s.MaxMessageSize <= 0 {
		s.MaxMessageSize = 4096
	}
}

// Hub tracks live connections, one per user. A new connection for a user
// atomically replaces and closes the previous one.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	settings   Settings
	convRepo   *repository.ConversationRepository
	msgRepo    *repository.MessageRepository
	userRepo   *repository.UserRepository
	pushClient PushNotifier
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(
	convRepo *repository.ConversationRepository,
	msgRepo *repository.MessageRepository,
	userRepo *repository.UserRepository,
	pushClient PushNotifier,
	settings Settings,
) *Hub {
	settings.applyDefaults()
	return &Hub{
		clients:    make(map[string]*Client),
		settings:   settings,
		convRepo:   convRepo,
		msgRepo:    msgRepo,
		userRepo:   userRepo,
		pushClient: pushClient,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	all := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	old, replacing := h.clients[c.userID]
	if !replacing && len(h.clients) >= h.settings.MaxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.settings.MaxConns, c.userID)
		c.Close()
		return
	}
	h.clients[c.userID] = c
	h.mu.Unlock()

	// Close the replaced connection outside the lock.
	if replacing && old != c {
		old.Close()
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	// A stale unregister from a replaced connection must not evict the
	// current one.
	if h.clients[c.userID] != c {
		h.mu.Unlock()
		c.Close()
		return
	}
	delete(h.clients, c.userID)
	h.mu.Unlock()

	c.Close()
}

// ConnectedCount returns the number of live connections.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsOnline reports whether userID has a live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// Push queues msg for userID's live connection. Returns false when the user
// has no connection or the connection could not accept the message.
func (h *Hub) Push(userID string, msg OutgoingMessage) bool {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.sendToClient(c, msg)
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) bool {
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
		return false
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// HandleMessage dispatches incoming WebSocket frames. Errors are answered on
// the same connection and never tear it down.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventSendMessage:
		h.handleSendMessage(ctx, c, msg)
	case EventMarkDelivered:
		h.handleMarkStatus(ctx, c, msg, model.StatusDelivered)
	case EventMarkSeen:
		h.handleMarkStatus(ctx, c, msg, model.StatusSeen)
	case EventMarkRead:
		h.handleMarkStatus(ctx, c, msg, model.StatusRead)
	case EventTyping:
		h.handleTyping(ctx, c, msg)
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleSendMessage", time.Now())()
	if (msg.ConversationID == "" && msg.ReceiverID == "") || msg.Content == "" {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "conversation_id (or receiver_id) and content required"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// A first message may address a user directly; the conversation comes
	// into being on the fly.
	if msg.ConversationID == "" {
		conv, _, err := h.convRepo.GetOrCreate(ctx, c.userID, msg.ReceiverID)
		if err != nil {
			if errors.Is(err, repository.ErrInvalidParticipant) {
				h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "invalid receiver"})
			} else {
				logger.Errorf("ws open conversation user=%s receiver=%s: %v", c.userID, msg.ReceiverID, err)
				h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to open conversation"})
			}
			return
		}
		msg.ConversationID = conv.ID
	}

	m, err := h.msgRepo.Append(ctx, msg.ConversationID, c.userID, msg.Content)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "conversation not found"})
		case errors.Is(err, repository.ErrNotParticipant):
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "not a participant"})
		case errors.Is(err, repository.ErrEmptyContent):
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "content is empty"})
		case errors.Is(err, repository.ErrContentTooLong):
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "content too long"})
		default:
			logger.Errorf("ws save message conversation=%s user=%s: %v", msg.ConversationID, c.userID, err)
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to save message"})
		}
		return
	}

	sender, err := h.userRepo.GetByID(ctx, c.userID)
	if err != nil {
		logger.Errorf("ws get sender user=%s: %v", c.userID, err)
	} else {
		pub := sender.ToPublic()
		m.Sender = &pub
	}

	h.DeliverMessage(ctx, m)

	// Echo to the sender so all its views converge on the stored message.
	h.sendToClient(c, OutgoingMessage{Type: EventNewMessage, Payload: m})
}

// DeliverMessage pushes a stored message to the receiver's live connection.
// On success the delivered flag is set best-effort and the sender is told;
// without a live connection a push notification goes out instead. Also used
// by the HTTP send path.
func (h *Hub) DeliverMessage(ctx context.Context, m *model.Message) {
	out := OutgoingMessage{Type: EventNewMessage, Payload: m}
	if h.Push(m.ReceiverID, out) {
		updated, err := h.msgRepo.MarkStatus(ctx, m.ID, m.ReceiverID, model.StatusDelivered)
		if err != nil {
			logger.Errorf("ws mark delivered message=%s: %v", m.ID, err)
			return
		}
		m.Delivered = updated.Delivered
		h.Push(m.SenderID, statusEvent(updated, model.StatusDelivered))
		return
	}

	if h.pushClient != nil {
		title := "New message"
		if m.Sender != nil && m.Sender.Username != "" {
			title = m.Sender.Username
		}
		body := m.Content
		if len([]rune(body)) > 120 {
			body = string([]rune(body)[:117]) + "..."
		}
		data := map[string]string{"conversation_id": m.ConversationID, "message_id": m.ID}
		receiverID := m.ReceiverID
		go h.pushClient.Notify(context.Background(), receiverID, title, body, data)
	}
}

func (h *Hub) handleMarkStatus(ctx context.Context, c *Client, msg IncomingMessage, status model.StatusFlag) {
	defer logger.DeferLogDuration("ws.handleMarkStatus", time.Now())()
	if msg.MessageID == "" {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "message_id required"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	updated, err := h.msgRepo.MarkStatus(ctx, msg.MessageID, c.userID, status)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "message not found"})
		case errors.Is(err, repository.ErrNotAuthorized):
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "only the receiver can update status"})
		default:
			logger.Errorf("ws mark %s message=%s user=%s: %v", status, msg.MessageID, c.userID, err)
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to update status"})
		}
		return
	}

	ev := statusEvent(updated, status)
	h.Push(updated.SenderID, ev)
	h.sendToClient(c, ev)
}

// NotifyStatus tells both participants about a flag change made over HTTP.
func (h *Hub) NotifyStatus(m *model.Message, status model.StatusFlag) {
	ev := statusEvent(m, status)
	h.Push(m.SenderID, ev)
	h.Push(m.ReceiverID, ev)
}

func (h *Hub) handleTyping(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.ConversationID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	conv, err := h.convRepo.GetByID(ctx, msg.ConversationID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Errorf("ws typing conversation=%s: %v", msg.ConversationID, err)
		}
		return
	}
	if !conv.HasParticipant(c.userID) {
		return
	}

	h.Push(conv.Counterpart(c.userID), OutgoingMessage{
		Type:    EventTyping,
		Payload: TypingPayload{ConversationID: msg.ConversationID, UserID: c.userID},
	})
}

func statusEvent(m *model.Message, status model.StatusFlag) OutgoingMessage {
	return OutgoingMessage{Type: EventMessageStatus, Payload: MessageStatusPayload{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		Status:         status,
		Delivered:      m.Delivered,
		Seen:           m.Seen,
		Read:           m.Read,
	}}
}
