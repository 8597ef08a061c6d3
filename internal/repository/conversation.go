package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookswap/backend/internal/logger"
	"github.com/bookswap/backend/internal/model"
)

const conversationCols = `id, user_a_id, user_b_id, created_at, last_activity_at`

type ConversationRepository struct {
	pool     *pgxpool.Pool
	userRepo *UserRepository
}

func NewConversationRepository(pool *pgxpool.Pool, userRepo *UserRepository) *ConversationRepository {
	return &ConversationRepository{pool: pool, userRepo: userRepo}
}

func scanConversation(s interface{ Scan(dest ...any) error }, c *model.Conversation) error {
	return s.Scan(&c.ID, &c.UserAID, &c.UserBID, &c.CreatedAt, &c.LastActivityAt)
}

// GetOrCreate returns the conversation for the unordered pair {userX, userY},
// creating it when absent; created reports which happened. The insert relies
// on the unique index over (LEAST, GREATEST) of the pair, so two concurrent
// callers converge on the same row instead of racing check-then-insert.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, userX, userY string) (conv *model.Conversation, created bool, err error) {
	defer logger.DeferLogDuration("conv.GetOrCreate", time.Now())()
	if userX == userY {
		return nil, false, ErrInvalidParticipant
	}
	for _, id := range []string{userX, userY} {
		ok, err := r.userRepo.Exists(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("user %s: %w", id, ErrInvalidParticipant)
		}
	}

	now := time.Now().UTC()
	c := &model.Conversation{}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO conversations (id, user_a_id, user_b_id, created_at, last_activity_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (LEAST(user_a_id, user_b_id), GREATEST(user_a_id, user_b_id)) DO NOTHING
		 RETURNING `+conversationCols,
		uuid.New().String(), userX, userY, now,
	)
	if err := scanConversation(row, c); err == nil {
		return c, true, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("convRepo.GetOrCreate insert: %w", err)
	}

	// Conflict: the pair already has a conversation (possibly created by a
	// concurrent caller a moment ago).
	conv, err = r.FindByPair(ctx, userX, userY)
	return conv, false, err
}

// FindByPair looks up the conversation for the unordered pair {userX, userY}.
func (r *ConversationRepository) FindByPair(ctx context.Context, userX, userY string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.FindByPair", time.Now())()
	c := &model.Conversation{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM conversations
		 WHERE LEAST(user_a_id, user_b_id) = LEAST($1::text, $2::text)
		   AND GREATEST(user_a_id, user_b_id) = GREATEST($1::text, $2::text)`,
		userX, userY,
	)
	if err := scanConversation(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("convRepo.FindByPair: %w", err)
	}
	return c, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.GetByID", time.Now())()
	c := &model.Conversation{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = $1`, id)
	if err := scanConversation(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("convRepo.GetByID: %w", err)
	}
	return c, nil
}

// ListForUser returns every conversation the user participates in. Order is
// unspecified; summary building sorts by activity.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	defer logger.DeferLogDuration("conv.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+conversationCols+` FROM conversations
		 WHERE user_a_id = $1 OR user_b_id = $1`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("convRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	convs := make([]model.Conversation, 0, 16)
	for rows.Next() {
		var c model.Conversation
		if err := scanConversation(rows, &c); err != nil {
			return nil, fmt.Errorf("convRepo.ListForUser scan: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convRepo.ListForUser rows: %w", err)
	}
	return convs, nil
}

// Touch bumps last_activity_at. Last write wins; sends are already ordered by
// their own created_at, so no monotonicity check is needed here.
func (r *ConversationRepository) Touch(ctx context.Context, id string, at time.Time) error {
	defer logger.DeferLogDuration("conv.Touch", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations SET last_activity_at = $1 WHERE id = $2`, at, id,
	)
	if err != nil {
		return fmt.Errorf("convRepo.Touch: %w", err)
	}
	return nil
}
