package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"chat-backend/internal/models"
)

var (
	ErrChatNotFound           = errors.New("chat not found")
	ErrRelationNotFound       = errors.New("chat relation not found")
	ErrChatInvitationNotFound = errors.New("chat invitation not found")
)

// ChatRepository abstracts chat and membership persistence. Compound
// mutations (chat + member rows + relation rows) commit atomically so the
// dispatcher always observes a fully applied state.
type ChatRepository interface {
	CreateGroupChat(ctx context.Context, ownerID int, name string, memberIDs []int) (models.Chat, error)
	CreatePrivateChat(ctx context.Context, userA int, userB int) (models.Chat, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	IsMember(ctx context.Context, chatID int, userID int) (bool, error)
	AddMember(ctx context.Context, chatID int, userID int) error
	RemoveMember(ctx context.Context, chatID int, userID int) error
	SetAdmin(ctx context.Context, chatID int, userID int, isAdmin bool) error
	TransferOwner(ctx context.Context, chatID int, newOwnerID int) error
	DeleteChat(ctx context.Context, chatID int) error
	GetRelation(ctx context.Context, chatID int, userID int) (models.UserChatRelation, error)
	ListRelationsForUser(ctx context.Context, userID int) ([]models.UserChatRelation, error)
	ListGroupChatIDsForUser(ctx context.Context, userID int) ([]int, error)
	CreateChatInvitation(ctx context.Context, chatID int, userID int, invitedBy int) (models.ChatInvitation, error)
	GetChatInvitation(ctx context.Context, invitationID int) (models.ChatInvitation, error)
	DeleteChatInvitation(ctx context.Context, invitationID int) error
	ListChatInvitations(ctx context.Context, chatID int) ([]models.ChatInvitation, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateGroupChat creates a group chat, its member rows, and the per-member
// relation rows in one transaction. The owner is always included as a member.
func (r *ChatRepo) CreateGroupChat(ctx context.Context, ownerID int, name string, memberIDs []int) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var chat models.Chat
	if err = tx.QueryRowxContext(ctx, `INSERT INTO chats (name, owner_id) VALUES ($1, $2) RETURNING id, name, owner_id, created_at`, name, ownerID).
		Scan(&chat.ID, &chat.Name, &chat.OwnerID, &chat.CreatedAt); err != nil {
		return models.Chat{}, err
	}

	memberSet := map[int]struct{}{ownerID: {}}
	for _, id := range memberIDs {
		memberSet[id] = struct{}{}
	}
	ids := make([]int, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		if _, err = tx.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO user_chat_relations (chat_id, user_id, nickname) VALUES ($1, $2, '')`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	chat.Members = ids
	return chat, nil
}

// CreatePrivateChat creates the two-member unnamed chat that backs a
// friendship. The first user becomes the nominal (immutable) owner.
func (r *ChatRepo) CreatePrivateChat(ctx context.Context, userA int, userB int) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var chat models.Chat
	if err = tx.QueryRowxContext(ctx, `INSERT INTO chats (name, owner_id) VALUES ('', $1) RETURNING id, name, owner_id, created_at`, userA).
		Scan(&chat.ID, &chat.Name, &chat.OwnerID, &chat.CreatedAt); err != nil {
		return models.Chat{}, err
	}

	for _, id := range []int{userA, userB} {
		if _, err = tx.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO user_chat_relations (chat_id, user_id, nickname) VALUES ($1, $2, '')`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	chat.Members = []int{userA, userB}
	return chat, nil
}

// GetChat fetches a chat together with its member and admin sets.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT id, name, owner_id, created_at FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}

	if err := r.db.SelectContext(ctx, &chat.Members, `SELECT user_id FROM chat_members WHERE chat_id=$1 ORDER BY user_id`, chatID); err != nil {
		return models.Chat{}, err
	}
	if err := r.db.SelectContext(ctx, &chat.Admins, `SELECT user_id FROM chat_admins WHERE chat_id=$1 ORDER BY user_id`, chatID); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// IsMember checks whether a user currently belongs to the chat.
func (r *ChatRepo) IsMember(ctx context.Context, chatID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chat_members WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

// AddMember adds a user to the chat and creates their relation row.
func (r *ChatRepo) AddMember(ctx context.Context, chatID int, userID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, chatID, userID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO user_chat_relations (chat_id, user_id, nickname) VALUES ($1, $2, '') ON CONFLICT DO NOTHING`, chatID, userID); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveMember removes a user's member, admin, and relation rows atomically.
func (r *ChatRepo) RemoveMember(ctx context.Context, chatID int, userID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM chat_admins WHERE chat_id=$1 AND user_id=$2`, chatID, userID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM chat_members WHERE chat_id=$1 AND user_id=$2`, chatID, userID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM user_chat_relations WHERE chat_id=$1 AND user_id=$2`, chatID, userID); err != nil {
		return err
	}
	return tx.Commit()
}

// SetAdmin grants or revokes admin status.
func (r *ChatRepo) SetAdmin(ctx context.Context, chatID int, userID int, isAdmin bool) error {
	if isAdmin {
		_, err := r.db.ExecContext(ctx, `INSERT INTO chat_admins (chat_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, chatID, userID)
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM chat_admins WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	return err
}

// TransferOwner moves ownership, removing the new owner from the admin set and
// adding the previous owner to it, all in one transaction.
func (r *ChatRepo) TransferOwner(ctx context.Context, chatID int, newOwnerID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var oldOwnerID int
	if err = tx.QueryRowxContext(ctx, `SELECT owner_id FROM chats WHERE id=$1 FOR UPDATE`, chatID).Scan(&oldOwnerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrChatNotFound
		}
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE chats SET owner_id=$2 WHERE id=$1`, chatID, newOwnerID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM chat_admins WHERE chat_id=$1 AND user_id=$2`, chatID, newOwnerID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO chat_admins (chat_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, chatID, oldOwnerID); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteChat removes the chat; messages, member rows, and relations cascade.
func (r *ChatRepo) DeleteChat(ctx context.Context, chatID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id=$1`, chatID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return nil
}

// GetRelation fetches the (user, chat) relation row.
func (r *ChatRepo) GetRelation(ctx context.Context, chatID int, userID int) (models.UserChatRelation, error) {
	var rel models.UserChatRelation
	err := r.db.GetContext(ctx, &rel, `SELECT id, user_id, chat_id, nickname, unread_after FROM user_chat_relations WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserChatRelation{}, ErrRelationNotFound
	}
	return rel, err
}

// ListRelationsForUser returns every chat relation the user holds.
func (r *ChatRepo) ListRelationsForUser(ctx context.Context, userID int) ([]models.UserChatRelation, error) {
	var rels []models.UserChatRelation
	err := r.db.SelectContext(ctx, &rels, `SELECT id, user_id, chat_id, nickname, unread_after FROM user_chat_relations WHERE user_id=$1 ORDER BY id`, userID)
	return rels, err
}

// ListGroupChatIDsForUser returns the ids of every non-private chat the user
// belongs to. The subscription manager uses this to compute the initial topic
// set on connect.
func (r *ChatRepo) ListGroupChatIDsForUser(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT c.id FROM chats c INNER JOIN chat_members cm ON cm.chat_id = c.id WHERE cm.user_id=$1 AND c.name <> '' ORDER BY c.id`, userID)
	return ids, err
}

// CreateChatInvitation stores a pending member invitation, replacing any
// previous one for the same (chat, invitee) pair.
func (r *ChatRepo) CreateChatInvitation(ctx context.Context, chatID int, userID int, invitedBy int) (models.ChatInvitation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ChatInvitation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM chat_invitations WHERE chat_id=$1 AND user_id=$2`, chatID, userID); err != nil {
		return models.ChatInvitation{}, err
	}

	var inv models.ChatInvitation
	if err = tx.QueryRowxContext(ctx, `INSERT INTO chat_invitations (chat_id, user_id, invited_by) VALUES ($1, $2, $3) RETURNING id, chat_id, user_id, invited_by, created_at`, chatID, userID, invitedBy).
		Scan(&inv.ID, &inv.ChatID, &inv.UserID, &inv.InvitedBy, &inv.CreatedAt); err != nil {
		return models.ChatInvitation{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.ChatInvitation{}, err
	}
	return inv, nil
}

// GetChatInvitation fetches a member invitation by id.
func (r *ChatRepo) GetChatInvitation(ctx context.Context, invitationID int) (models.ChatInvitation, error) {
	var inv models.ChatInvitation
	err := r.db.GetContext(ctx, &inv, `SELECT id, chat_id, user_id, invited_by, created_at FROM chat_invitations WHERE id=$1`, invitationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatInvitation{}, ErrChatInvitationNotFound
	}
	return inv, err
}

// DeleteChatInvitation removes a member invitation.
func (r *ChatRepo) DeleteChatInvitation(ctx context.Context, invitationID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chat_invitations WHERE id=$1`, invitationID)
	return err
}

// ListChatInvitations returns the pending member invitations of a chat.
func (r *ChatRepo) ListChatInvitations(ctx context.Context, chatID int) ([]models.ChatInvitation, error) {
	var invs []models.ChatInvitation
	err := r.db.SelectContext(ctx, &invs, `SELECT id, chat_id, user_id, invited_by, created_at FROM chat_invitations WHERE chat_id=$1 ORDER BY id`, chatID)
	return invs, err
}
