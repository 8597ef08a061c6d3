package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookswap/backend/internal/logger"
	"github.com/bookswap/backend/internal/model"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrInvalidParticipant: self-conversation or a user id that does not
	// resolve in the user directory.
	ErrInvalidParticipant = errors.New("invalid participant")

	// ErrNotParticipant: the acting user does not belong to the conversation.
	ErrNotParticipant = errors.New("not a participant")

	// ErrNotAuthorized: the acting user may not perform this operation on the
	// message (status flags are receiver-only).
	ErrNotAuthorized = errors.New("not authorized")

	ErrEmptyContent   = errors.New("empty content")
	ErrContentTooLong = errors.New("content too long")
)

const userCols = `id, username, email, COALESCE(profile_picture_url,''), created_at`

// UserRepository is the read side of the user directory. The messaging core
// only resolves identities here; registration and profile editing live in the
// account service.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.Username, &u.Email, &u.ProfilePictureURL, &u.CreatedAt)
}

// Create inserts a directory record. Used by dev seeding and tests; the API
// itself never writes users.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, profile_picture_url, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.Email, u.ProfilePictureURL, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	defer logger.DeferLogDuration("user.Exists", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("userRepo.Exists: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) SearchByUsername(ctx context.Context, query string, limit int) ([]model.User, error) {
	defer logger.DeferLogDuration("user.SearchByUsername", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+userCols+` FROM users WHERE username ILIKE $1 ORDER BY username LIMIT $2`,
		"%"+query+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("userRepo.SearchByUsername query: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.SearchByUsername scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.SearchByUsername rows: %w", err)
	}
	return users, nil
}
