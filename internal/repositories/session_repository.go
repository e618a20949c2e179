package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chat-backend/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository abstracts login session persistence. Rotate implements
// the session-key change that accompanies a profile update: the new key must
// replace the old one atomically so no window exists where both are valid.
type SessionRepository interface {
	Create(ctx context.Context, userID int) (models.Session, error)
	GetByKey(ctx context.Context, key string) (models.Session, error)
	Rotate(ctx context.Context, oldKey string) (models.Session, error)
	DeleteByKey(ctx context.Context, key string) error
	DeleteAllForUser(ctx context.Context, userID int) error
}

// SessionRepo is a sqlx implementation of SessionRepository.
type SessionRepo struct {
	db *sqlx.DB
}

// NewSessionRepo constructs a SessionRepo.
func NewSessionRepo(db *sqlx.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create stores a fresh session for the user.
func (r *SessionRepo) Create(ctx context.Context, userID int) (models.Session, error) {
	var session models.Session
	err := r.db.QueryRowxContext(ctx, `INSERT INTO sessions (key, user_id) VALUES ($1, $2) RETURNING key, user_id, created_at`, uuid.NewString(), userID).
		Scan(&session.Key, &session.UserID, &session.CreatedAt)
	return session, err
}

// GetByKey resolves a session token.
func (r *SessionRepo) GetByKey(ctx context.Context, key string) (models.Session, error) {
	var session models.Session
	err := r.db.GetContext(ctx, &session, `SELECT key, user_id, created_at FROM sessions WHERE key=$1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrSessionNotFound
	}
	return session, err
}

// Rotate replaces a session key with a new one in a single transaction.
func (r *SessionRepo) Rotate(ctx context.Context, oldKey string) (models.Session, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Session{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var userID int
	if err = tx.QueryRowxContext(ctx, `DELETE FROM sessions WHERE key=$1 RETURNING user_id`, oldKey).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrSessionNotFound
		}
		return models.Session{}, err
	}

	var session models.Session
	if err = tx.QueryRowxContext(ctx, `INSERT INTO sessions (key, user_id) VALUES ($1, $2) RETURNING key, user_id, created_at`, uuid.NewString(), userID).
		Scan(&session.Key, &session.UserID, &session.CreatedAt); err != nil {
		return models.Session{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Session{}, err
	}
	return session, nil
}

// DeleteByKey removes one session.
func (r *SessionRepo) DeleteByKey(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE key=$1`, key)
	return err
}

// DeleteAllForUser removes every session the user holds.
func (r *SessionRepo) DeleteAllForUser(ctx context.Context, userID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id=$1`, userID)
	return err
}
