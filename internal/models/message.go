package models

import (
	"database/sql"
	"time"
)

// RecalledPlaceholder replaces the content of a recalled message.
const RecalledPlaceholder = "Message recalled"

// Message represents a chat message row. SenderID is null when the sender is a
// sentinel identity (system-authored or recalled); SenderKind disambiguates.
type Message struct {
	ID         int           `db:"id"`
	ChatID     int           `db:"chat_id"`
	SenderID   sql.NullInt64 `db:"sender_id"`
	SenderKind UserKind      `db:"sender_kind"`
	Content    string        `db:"content"`
	Recalled   bool          `db:"recalled"`
	ReplyTo    sql.NullInt64 `db:"reply_to"`
	SentAt     time.Time     `db:"sent_at"`
}

// MessageView is a message rendered for one viewer.
type MessageView struct {
	MessageID int       `json:"message_id"`
	ChatID    int       `json:"chat_id"`
	Content   string    `json:"content"`
	SentAt    time.Time `json:"sent_at"`
	Sender    UserRef   `json:"sender"`
	ReplyTo   *int      `json:"reply_to,omitempty"`
	Recalled  bool      `json:"recalled"`
	Deleted   bool      `json:"deleted"`
}

// View renders the message for one viewer. sender is the resolved sender row
// for normal messages and is ignored for sentinel senders. deletedForViewer is
// the viewer's membership in the message's deletion set; a recalled message
// renders as deleted for every viewer regardless.
func (m Message) View(sender UserRef, deletedForViewer bool) MessageView {
	v := MessageView{
		MessageID: m.ID,
		ChatID:    m.ChatID,
		Content:   m.Content,
		SentAt:    m.SentAt,
		Recalled:  m.Recalled,
		Deleted:   deletedForViewer || m.Recalled,
	}

	switch m.SenderKind {
	case UserKindSystem:
		v.Sender = SystemUser()
	case UserKindDeleted:
		v.Sender = DeletedUser()
	default:
		v.Sender = sender
	}

	if m.Recalled {
		v.Content = RecalledPlaceholder
		v.Sender = DeletedUser()
		return v
	}

	if m.ReplyTo.Valid {
		id := int(m.ReplyTo.Int64)
		v.ReplyTo = &id
	}
	return v
}
