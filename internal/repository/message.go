package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookswap/backend/internal/logger"
	"github.com/bookswap/backend/internal/model"
)

const messageCols = `id, conversation_id, sender_id, receiver_id, content, created_at, delivered, seen, read`

type MessageRepository struct {
	pool     *pgxpool.Pool
	convRepo *ConversationRepository
}

func NewMessageRepository(pool *pgxpool.Pool, convRepo *ConversationRepository) *MessageRepository {
	return &MessageRepository{pool: pool, convRepo: convRepo}
}

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Content,
		&m.CreatedAt, &m.Delivered, &m.Seen, &m.Read)
}

// Append persists a new message from senderID into the conversation. The
// receiver is derived as the other participant; all status flags start false.
// The insert and the conversation's last_activity_at bump commit in one
// transaction so activity never advances without a visible message.
func (r *MessageRepository) Append(ctx context.Context, conversationID, senderID, content string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.Append", time.Now())()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > model.MaxContentLength {
		return nil, ErrContentTooLong
	}

	conv, err := r.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, ErrNotParticipant
	}

	m := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     conv.Counterpart(senderID),
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Append begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content, created_at, delivered, seen, read)
		 VALUES ($1, $2, $3, $4, $5, $6, false, false, false)`,
		m.ID, m.ConversationID, m.SenderID, m.ReceiverID, m.Content, m.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("msgRepo.Append insert: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET last_activity_at = $1 WHERE id = $2`,
		m.CreatedAt, m.ConversationID,
	); err != nil {
		return nil, fmt.Errorf("msgRepo.Append touch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("msgRepo.Append commit: %w", err)
	}
	return m, nil
}

// ListOptions filters and pages a conversation's history. The default order
// is ascending by created_at (scrollback); Descending serves latest-first
// queries and must be requested explicitly by the caller.
type ListOptions struct {
	Limit      int
	Offset     int
	Since      *time.Time
	Until      *time.Time
	SenderID   string
	Descending bool
}

func (r *MessageRepository) ListForConversation(ctx context.Context, conversationID string, opts ListOptions) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListForConversation", time.Now())()
	if opts.Limit <= 0 {
		opts.Limit = 100
	}

	sql := `SELECT ` + messageCols + ` FROM messages WHERE conversation_id = $1`
	args := []any{conversationID}
	if opts.Since != nil {
		args = append(args, *opts.Since)
		sql += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		sql += fmt.Sprintf(` AND created_at <= $%d`, len(args))
	}
	if opts.SenderID != "" {
		args = append(args, opts.SenderID)
		sql += fmt.Sprintf(` AND sender_id = $%d`, len(args))
	}
	order := ` ORDER BY created_at ASC, id ASC`
	if opts.Descending {
		order = ` ORDER BY created_at DESC, id DESC`
	}
	args = append(args, opts.Limit, opts.Offset)
	sql += order + fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListForConversation query: %w", err)
	}
	defer rows.Close()

	msgs := make([]model.Message, 0, opts.Limit)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.ListForConversation scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ListForConversation rows: %w", err)
	}
	return msgs, nil
}

// Search does a case-insensitive substring match over a conversation's
// message content.
func (r *MessageRepository) Search(ctx context.Context, conversationID, query string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.Search", time.Now())()
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE conversation_id = $1 AND content ILIKE '%' || $2 || '%'
		 ORDER BY created_at ASC, id ASC
		 LIMIT $3`,
		conversationID, query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Search query: %w", err)
	}
	defer rows.Close()

	msgs := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.Search scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.Search rows: %w", err)
	}
	return msgs, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx, `SELECT `+messageCols+` FROM messages WHERE id = $1`, id)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// GetLastMessage is a point lookup for the most recent message in one
// conversation (summary building), never a scan across all messages.
func (r *MessageRepository) GetLastMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetLastMessage", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, conversationID,
	)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("msgRepo.GetLastMessage: %w", err)
	}
	return m, nil
}

// MarkStatus sets one status flag on a message. Only the receiver may do
// this; flags are monotone (false→true only) and marking an already-set flag
// is a no-op. Marking seen or read also sets delivered, so the stored flags
// never show a message seen before it was delivered.
func (r *MessageRepository) MarkStatus(ctx context.Context, messageID, requesterID string, status model.StatusFlag) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.MarkStatus", time.Now())()
	if !model.ValidStatusFlag(status) {
		return nil, fmt.Errorf("msgRepo.MarkStatus: unknown status %q", status)
	}

	var set string
	switch status {
	case model.StatusDelivered:
		set = `delivered = true`
	case model.StatusSeen:
		set = `seen = true, delivered = true`
	case model.StatusRead:
		set = `read = true, delivered = true`
	}

	m := &model.Message{}
	row := r.pool.QueryRow(ctx,
		`UPDATE messages SET `+set+`
		 WHERE id = $1 AND receiver_id = $2
		 RETURNING `+messageCols,
		messageID, requesterID,
	)
	if err := scanMessage(row, m); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("msgRepo.MarkStatus: %w", err)
		}
		// Distinguish a missing message from a requester that is not the
		// receiver; the latter never learns the message content.
		if _, err := r.GetByID(ctx, messageID); err != nil {
			return nil, err
		}
		return nil, ErrNotAuthorized
	}
	return m, nil
}
