package models

import "time"

// Session is a server-side login session. The key doubles as the websocket
// session topic suffix and rotates whenever the profile changes.
type Session struct {
	Key       string    `db:"key" json:"-"`
	UserID    int       `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
