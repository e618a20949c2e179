package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-backend/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrMessageRecalled = errors.New("message already recalled")
)

// MessageRepository governs the message lifecycle: creation, the global recall
// transition, per-viewer deletion, and the monotone read-tracking model.
type MessageRepository interface {
	CreateMessage(ctx context.Context, chatID int, senderID *int, senderKind models.UserKind, content string, replyTo *int) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	RecallMessage(ctx context.Context, messageID int) (models.Message, error)
	DeleteForViewer(ctx context.Context, messageID int, userID int) error
	IsDeletedFor(ctx context.Context, messageID int, userID int) (bool, error)
	ListChatMessages(ctx context.Context, chatID int) ([]models.Message, error)
	ListDeletedFor(ctx context.Context, chatID int, userID int) (map[int]bool, error)
	MarkChatRead(ctx context.Context, chatID int, userID int) error
	UnreadCount(ctx context.Context, chatID int, userID int) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message. senderID is nil for sentinel senders
// (system-authored messages); replyTo is nil when the message replies to
// nothing.
func (r *MessageRepo) CreateMessage(ctx context.Context, chatID int, senderID *int, senderKind models.UserKind, content string, replyTo *int) (models.Message, error) {
	var sender sql.NullInt64
	if senderID != nil {
		sender = sql.NullInt64{Int64: int64(*senderID), Valid: true}
	}
	var reply sql.NullInt64
	if replyTo != nil {
		reply = sql.NullInt64{Int64: int64(*replyTo), Valid: true}
	}

	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (chat_id, sender_id, sender_kind, content, reply_to) VALUES ($1, $2, $3, $4, $5)
        RETURNING id, chat_id, sender_id, sender_kind, content, recalled, reply_to, sent_at`,
		chatID, sender, senderKind, content, reply).
		Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.SenderKind, &msg.Content, &msg.Recalled, &msg.ReplyTo, &msg.SentAt)
	return msg, err
}

// GetMessage retrieves a single message row.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, chat_id, sender_id, sender_kind, content, recalled, reply_to, sent_at FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// RecallMessage performs the irreversible global recall: content replaced with
// the placeholder, sender rebound to the deleted sentinel, reply_to cleared.
// A second recall fails with ErrMessageRecalled.
func (r *MessageRepo) RecallMessage(ctx context.Context, messageID int) (models.Message, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET recalled = TRUE, content = $2, sender_id = NULL, sender_kind = $3, reply_to = NULL
        WHERE id=$1 AND recalled = FALSE`,
		messageID, models.RecalledPlaceholder, models.UserKindDeleted)
	if err != nil {
		return models.Message{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.Message{}, err
	}
	if count == 0 {
		if _, err := r.GetMessage(ctx, messageID); err != nil {
			return models.Message{}, err
		}
		return models.Message{}, ErrMessageRecalled
	}
	return r.GetMessage(ctx, messageID)
}

// DeleteForViewer adds the user to the message's deletion set. Repeating the
// deletion is a no-op.
func (r *MessageRepo) DeleteForViewer(ctx context.Context, messageID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_deletions (message_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, messageID, userID)
	return err
}

// IsDeletedFor reports whether the user deleted the message for themselves.
func (r *MessageRepo) IsDeletedFor(ctx context.Context, messageID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM message_deletions WHERE message_id=$1 AND user_id=$2)`, messageID, userID)
	return exists, err
}

// ListChatMessages returns all messages of a chat ordered by send time.
func (r *MessageRepo) ListChatMessages(ctx context.Context, chatID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT id, chat_id, sender_id, sender_kind, content, recalled, reply_to, sent_at FROM messages WHERE chat_id=$1 ORDER BY sent_at ASC, id ASC`, chatID)
	return msgs, err
}

// ListDeletedFor returns the set of message ids in a chat the user deleted for
// themselves, keyed by message id.
func (r *MessageRepo) ListDeletedFor(ctx context.Context, chatID int, userID int) (map[int]bool, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT md.message_id FROM message_deletions md INNER JOIN messages m ON m.id = md.message_id WHERE m.chat_id=$1 AND md.user_id=$2`, chatID, userID)
	if err != nil {
		return nil, err
	}
	deleted := make(map[int]bool, len(ids))
	for _, id := range ids {
		deleted[id] = true
	}
	return deleted, nil
}

// MarkChatRead adds the user to the read set of every message currently in the
// chat and advances the user's read cursor to now, atomically.
func (r *MessageRepo) MarkChatRead(ctx context.Context, chatID int, userID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id) SELECT id, $2 FROM messages WHERE chat_id=$1 ON CONFLICT DO NOTHING`, chatID, userID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE user_chat_relations SET unread_after = NOW() WHERE chat_id=$1 AND user_id=$2`, chatID, userID); err != nil {
		return err
	}
	return tx.Commit()
}

// UnreadCount derives the unread count from the read cursor. The comparison is
// strictly greater-than so the boundary message is never double counted.
func (r *MessageRepo) UnreadCount(ctx context.Context, chatID int, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages m
        INNER JOIN user_chat_relations r ON r.chat_id = m.chat_id AND r.user_id=$2
        WHERE m.chat_id=$1 AND m.sent_at > r.unread_after`, chatID, userID)
	return count, err
}
