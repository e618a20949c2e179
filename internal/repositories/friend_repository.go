package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-backend/internal/models"
)

var (
	ErrFriendNotFound     = errors.New("friend not found")
	ErrInvitationNotFound = errors.New("invitation not found")
)

// FriendRepository abstracts friendship and invitation persistence. Friend
// edges are always written and deleted as reciprocal pairs in one transaction.
type FriendRepository interface {
	AreFriends(ctx context.Context, userID int, otherID int) (bool, error)
	CreateFriendship(ctx context.Context, userID int, otherID int) error
	DeleteFriendship(ctx context.Context, userID int, otherID int) error
	ListFriends(ctx context.Context, userID int) ([]models.Friend, error)
	CreateInvitation(ctx context.Context, senderID int, receiverID int, comment string) (models.FriendInvitation, error)
	GetInvitation(ctx context.Context, invitationID int) (models.FriendInvitation, error)
	FindInvitation(ctx context.Context, senderID int, receiverID int) (models.FriendInvitation, error)
	DeleteInvitation(ctx context.Context, invitationID int) error
	ListInvitationsForReceiver(ctx context.Context, receiverID int) ([]models.FriendInvitation, error)
}

// FriendRepo is a sqlx implementation of FriendRepository.
type FriendRepo struct {
	db *sqlx.DB
}

// NewFriendRepo constructs a FriendRepo.
func NewFriendRepo(db *sqlx.DB) *FriendRepo {
	return &FriendRepo{db: db}
}

// AreFriends checks for the edge owned by userID.
func (r *FriendRepo) AreFriends(ctx context.Context, userID int, otherID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM friends WHERE user_id=$1 AND friend_id=$2)`, userID, otherID)
	return exists, err
}

// CreateFriendship writes both directed edges atomically.
func (r *FriendRepo) CreateFriendship(ctx context.Context, userID int, otherID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `INSERT INTO friends (user_id, friend_id, nickname) VALUES ($1, $2, '') ON CONFLICT DO NOTHING`, userID, otherID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO friends (user_id, friend_id, nickname) VALUES ($1, $2, '') ON CONFLICT DO NOTHING`, otherID, userID); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteFriendship removes both directed edges atomically.
func (r *FriendRepo) DeleteFriendship(ctx context.Context, userID int, otherID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, execErr := tx.ExecContext(ctx, `DELETE FROM friends WHERE user_id=$1 AND friend_id=$2`, userID, otherID)
	if execErr != nil {
		err = execErr
		return err
	}
	count, countErr := res.RowsAffected()
	if countErr != nil {
		err = countErr
		return err
	}
	if count == 0 {
		err = ErrFriendNotFound
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM friends WHERE user_id=$1 AND friend_id=$2`, otherID, userID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListFriends returns the edges owned by the user.
func (r *FriendRepo) ListFriends(ctx context.Context, userID int) ([]models.Friend, error) {
	var friends []models.Friend
	err := r.db.SelectContext(ctx, &friends, `SELECT id, user_id, friend_id, nickname FROM friends WHERE user_id=$1 ORDER BY id`, userID)
	return friends, err
}

// CreateInvitation stores a pending invitation, replacing any previous one
// from the same sender to the same receiver.
func (r *FriendRepo) CreateInvitation(ctx context.Context, senderID int, receiverID int, comment string) (models.FriendInvitation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.FriendInvitation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM friend_invitations WHERE sender_id=$1 AND receiver_id=$2`, senderID, receiverID); err != nil {
		return models.FriendInvitation{}, err
	}

	var inv models.FriendInvitation
	if err = tx.QueryRowxContext(ctx, `INSERT INTO friend_invitations (sender_id, receiver_id, comment) VALUES ($1, $2, $3) RETURNING id, sender_id, receiver_id, comment, created_at`, senderID, receiverID, comment).
		Scan(&inv.ID, &inv.SenderID, &inv.ReceiverID, &inv.Comment, &inv.CreatedAt); err != nil {
		return models.FriendInvitation{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.FriendInvitation{}, err
	}
	return inv, nil
}

// GetInvitation fetches an invitation by id.
func (r *FriendRepo) GetInvitation(ctx context.Context, invitationID int) (models.FriendInvitation, error) {
	var inv models.FriendInvitation
	err := r.db.GetContext(ctx, &inv, `SELECT id, sender_id, receiver_id, comment, created_at FROM friend_invitations WHERE id=$1`, invitationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendInvitation{}, ErrInvitationNotFound
	}
	return inv, err
}

// FindInvitation fetches the pending invitation between two users, if any.
func (r *FriendRepo) FindInvitation(ctx context.Context, senderID int, receiverID int) (models.FriendInvitation, error) {
	var inv models.FriendInvitation
	err := r.db.GetContext(ctx, &inv, `SELECT id, sender_id, receiver_id, comment, created_at FROM friend_invitations WHERE sender_id=$1 AND receiver_id=$2`, senderID, receiverID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendInvitation{}, ErrInvitationNotFound
	}
	return inv, err
}

// DeleteInvitation removes an invitation.
func (r *FriendRepo) DeleteInvitation(ctx context.Context, invitationID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM friend_invitations WHERE id=$1`, invitationID)
	return err
}

// ListInvitationsForReceiver returns pending invitations addressed to a user.
func (r *FriendRepo) ListInvitationsForReceiver(ctx context.Context, receiverID int) ([]models.FriendInvitation, error) {
	var invs []models.FriendInvitation
	err := r.db.SelectContext(ctx, &invs, `SELECT id, sender_id, receiver_id, comment, created_at FROM friend_invitations WHERE receiver_id=$1 ORDER BY id`, receiverID)
	return invs, err
}
