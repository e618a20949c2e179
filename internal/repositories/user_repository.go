package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-backend/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository abstracts user account persistence.
type UserRepository interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	GetUsers(ctx context.Context, userIDs []int) (map[int]models.User, error)
	UpdateUser(ctx context.Context, user models.User) error
	DeleteUser(ctx context.Context, userID int) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches one user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, user_name, avatar_url, email, phone, kind FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetUsers bulk-fetches users keyed by id. Missing ids are simply absent.
func (r *UserRepo) GetUsers(ctx context.Context, userIDs []int) (map[int]models.User, error) {
	result := make(map[int]models.User, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT id, user_name, avatar_url, email, phone, kind FROM users WHERE id IN (?)`, userIDs)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, err
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}

// UpdateUser persists mutable profile fields.
func (r *UserRepo) UpdateUser(ctx context.Context, user models.User) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET user_name=$2, avatar_url=$3, email=$4, phone=$5 WHERE id=$1`,
		user.ID, user.UserName, user.AvatarURL, user.Email, user.Phone)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser removes the account row; dependent rows cascade.
func (r *UserRepo) DeleteUser(ctx context.Context, userID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}
