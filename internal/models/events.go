package models

// Event payloads pushed to websocket clients. Names mirror the wire actions.

// NewChatEvent announces a freshly created group chat to each member.
type NewChatEvent struct {
	ChatID int `json:"chat_id"`
}

// NewMessageEvent carries a message rendered with no viewer-specific state.
type NewMessageEvent struct {
	Message MessageView `json:"message"`
}

// MessageRecalledEvent carries the post-recall rendering of a message.
type MessageRecalledEvent struct {
	Message MessageView `json:"message"`
}

// MessageDeletedEvent informs a single viewer of their own deletion.
type MessageDeletedEvent struct {
	ChatID    int `json:"chat_id"`
	MessageID int `json:"message_id"`
}

// AdminStateEvent announces an admin grant or revocation.
type AdminStateEvent struct {
	ChatID  int  `json:"chat_id"`
	UserID  int  `json:"user_id"`
	IsAdmin bool `json:"is_admin"`
}

// OwnerStateEvent announces an ownership transfer.
type OwnerStateEvent struct {
	ChatID  int `json:"chat_id"`
	OwnerID int `json:"owner_id"`
}

// ChatMemberEvent announces a membership change on a chat topic.
type ChatMemberEvent struct {
	ChatID int `json:"chat_id"`
	UserID int `json:"user_id"`
}

// ChatInvitationEvent informs a chat's approvers of a pending invitation.
type ChatInvitationEvent struct {
	InvitationID int `json:"invitation_id"`
	ChatID       int `json:"chat_id"`
	UserID       int `json:"user_id"`
	InvitedBy    int `json:"invited_by"`
}

// ChatDeletedEvent announces the deletion of an entire chat.
type ChatDeletedEvent struct {
	ChatID int `json:"chat_id"`
}

// FriendEvent announces a friendship created or destroyed with the given user.
type FriendEvent struct {
	UserID int `json:"user_id"`
}

// MessagesReadEvent syncs a read-cursor advance across a user's devices.
type MessagesReadEvent struct {
	ChatID int `json:"chat_id"`
	UserID int `json:"user_id"`
}
