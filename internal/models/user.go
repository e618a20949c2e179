package models

// UserKind tags the identity behind a message sender. System and Deleted are
// sentinel identities and never correspond to a signed-in account.
type UserKind int16

const (
	UserKindNormal UserKind = iota
	UserKindSystem
	UserKindDeleted
)

// User represents a user account.
type User struct {
	ID        int      `db:"id" json:"id"`
	UserName  string   `db:"user_name" json:"user_name"`
	AvatarURL string   `db:"avatar_url" json:"avatar_url"`
	Email     string   `db:"email" json:"email"`
	Phone     string   `db:"phone" json:"phone"`
	Kind      UserKind `db:"kind" json:"-"`
}

// UserRef is the compact user struct embedded in message and chat payloads.
type UserRef struct {
	ID        int    `json:"id"`
	UserName  string `json:"user_name"`
	AvatarURL string `json:"avatar_url"`
}

// Ref converts a full user row to its payload form.
func (u User) Ref() UserRef {
	return UserRef{ID: u.ID, UserName: u.UserName, AvatarURL: u.AvatarURL}
}

// SystemUser is the sender rendered for server-authored messages.
func SystemUser() UserRef {
	return UserRef{ID: 0, UserName: "#SYSTEM"}
}

// DeletedUser is the sender rendered for recalled messages and removed accounts.
func DeletedUser() UserRef {
	return UserRef{ID: -1, UserName: "#DELETED"}
}
