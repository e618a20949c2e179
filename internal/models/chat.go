package models

import "time"

// MaxChatNameLen bounds group chat names; a chat with an empty name is private.
const MaxChatNameLen = 60

// Chat represents a private or group chat. Members always contains the owner
// and every admin; Admins never contains the owner.
type Chat struct {
	ID        int       `db:"id" json:"chat_id"`
	Name      string    `db:"name" json:"chat_name"`
	OwnerID   int       `db:"owner_id" json:"owner_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	Members []int `db:"-" json:"chat_members"`
	Admins  []int `db:"-" json:"chat_admins"`
}

// IsPrivate reports whether the chat is a two-member private chat.
func (c Chat) IsPrivate() bool {
	return c.Name == ""
}

// HasMember reports whether the user is currently a member.
func (c Chat) HasMember(userID int) bool {
	for _, id := range c.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// HasAdmin reports whether the user is currently an admin.
func (c Chat) HasAdmin(userID int) bool {
	for _, id := range c.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

// UserChatRelation is the per-(user, chat) row carrying the read cursor.
type UserChatRelation struct {
	ID          int       `db:"id" json:"-"`
	UserID      int       `db:"user_id" json:"user_id"`
	ChatID      int       `db:"chat_id" json:"chat_id"`
	Nickname    string    `db:"nickname" json:"nickname"`
	UnreadAfter time.Time `db:"unread_after" json:"unread_after"`
}

// ChatInvitation is a member's pending proposal to bring a friend into a
// group chat; it waits for an owner or admin to approve.
type ChatInvitation struct {
	ID        int       `db:"id" json:"id"`
	ChatID    int       `db:"chat_id" json:"chat_id"`
	UserID    int       `db:"user_id" json:"user_id"`
	InvitedBy int       `db:"invited_by" json:"invited_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ChatSummary is the per-user view of a chat returned by the list endpoint.
type ChatSummary struct {
	Chat        Chat   `json:"chat"`
	Nickname    string `json:"nickname"`
	UnreadCount int    `json:"unread_count"`
}
