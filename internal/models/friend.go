package models

import "time"

// Friend is one direction of a friendship. Rows are always created and
// destroyed in reciprocal pairs so the relation stays symmetric in storage.
type Friend struct {
	ID       int    `db:"id" json:"-"`
	UserID   int    `db:"user_id" json:"user_id"`
	FriendID int    `db:"friend_id" json:"friend_id"`
	Nickname string `db:"nickname" json:"nickname"`
}

// FriendInvitation is a pending friend request.
type FriendInvitation struct {
	ID         int       `db:"id" json:"id"`
	SenderID   int       `db:"sender_id" json:"sender_id"`
	ReceiverID int       `db:"receiver_id" json:"receiver_id"`
	Comment    string    `db:"comment" json:"comment"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
