package notify

import (
	"chat-backend/internal/models"
	"chat-backend/internal/topics"
)

// Dispatcher is the single choke point through which every state-changing
// operation announces itself. Each method resolves the minimal topic set for
// one domain event and publishes exactly once per affected topic. Dispatcher
// methods never fail: by the time they run the mutation has already committed,
// and publishing to a topic nobody subscribes to is a silent no-op.
type Dispatcher struct {
	registry *topics.Registry
}

// NewDispatcher constructs a Dispatcher over the given registry.
func NewDispatcher(registry *topics.Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// NewChat announces a freshly created group chat. The chat topic has no
// subscribers yet, so this is the one event that iterates members and
// publishes to each member's user topic instead.
func (d *Dispatcher) NewChat(chat models.Chat) {
	if chat.IsPrivate() {
		return
	}
	for _, memberID := range chat.Members {
		d.registry.Publish(topics.UserTopic(memberID), topics.Event{
			Action: "new_group_chat",
			Data:   models.NewChatEvent{ChatID: chat.ID},
			ChatID: chat.ID,
		})
	}
}

// NewMessage announces a stored message. Group messages go to the shared chat
// topic; private chats have no shared topic, so both members are addressed
// through their private-chat aggregate topics.
func (d *Dispatcher) NewMessage(chat models.Chat, view models.MessageView) {
	ev := topics.Event{
		Action: "new_message",
		Data:   models.NewMessageEvent{Message: view},
		ChatID: chat.ID,
	}
	if chat.IsPrivate() {
		for _, memberID := range chat.Members {
			d.registry.Publish(topics.PrivateChatTopic(memberID), ev)
		}
		return
	}
	d.registry.Publish(topics.ChatTopic(chat.ID), ev)
}

// MessageRecalled announces a global recall to the same audience that saw the
// original message.
func (d *Dispatcher) MessageRecalled(chat models.Chat, view models.MessageView) {
	ev := topics.Event{
		Action: "message_recalled",
		Data:   models.MessageRecalledEvent{Message: view},
		ChatID: chat.ID,
	}
	if chat.IsPrivate() {
		for _, memberID := range chat.Members {
			d.registry.Publish(topics.PrivateChatTopic(memberID), ev)
		}
		return
	}
	d.registry.Publish(topics.ChatTopic(chat.ID), ev)
}

// MessageDeleted informs only the acting viewer; per-viewer deletion is never
// broadcast.
func (d *Dispatcher) MessageDeleted(viewerID int, chatID int, messageID int) {
	d.registry.Publish(topics.UserTopic(viewerID), topics.Event{
		Action: "message_deleted",
		Data:   models.MessageDeletedEvent{ChatID: chatID, MessageID: messageID},
		ChatID: chatID,
	})
}

// AdminStateChange announces an admin grant or revocation on the chat topic.
func (d *Dispatcher) AdminStateChange(chat models.Chat, userID int, isAdmin bool) {
	if chat.IsPrivate() {
		return
	}
	d.registry.Publish(topics.ChatTopic(chat.ID), topics.Event{
		Action: "admin_state_change",
		Data:   models.AdminStateEvent{ChatID: chat.ID, UserID: userID, IsAdmin: isAdmin},
		ChatID: chat.ID,
		UserID: userID,
	})
}

// OwnerStateChange announces an ownership transfer on the chat topic.
func (d *Dispatcher) OwnerStateChange(chat models.Chat) {
	if chat.IsPrivate() {
		return
	}
	d.registry.Publish(topics.ChatTopic(chat.ID), topics.Event{
		Action: "owner_state_change",
		Data:   models.OwnerStateEvent{ChatID: chat.ID, OwnerID: chat.OwnerID},
		ChatID: chat.ID,
	})
}

// ChatMemberAdded first informs the new member on their user topic so their
// sessions can subscribe to the chat, then announces the addition on the chat
// topic itself.
func (d *Dispatcher) ChatMemberAdded(chat models.Chat, memberID int) {
	if chat.IsPrivate() {
		return
	}
	d.registry.Publish(topics.UserTopic(memberID), topics.Event{
		Action: "new_group_chat",
		Data:   models.NewChatEvent{ChatID: chat.ID},
		ChatID: chat.ID,
	})
	d.registry.Publish(topics.ChatTopic(chat.ID), topics.Event{
		Action: "member_added",
		Data:   models.ChatMemberEvent{ChatID: chat.ID, UserID: memberID},
		ChatID: chat.ID,
		UserID: memberID,
	})
}

// ChatMemberInvited informs the chat's approvers, the owner and every admin,
// of a pending member invitation on their user topics. The invitee learns
// nothing until an approver lets them in.
func (d *Dispatcher) ChatMemberInvited(chat models.Chat, inv models.ChatInvitation) {
	if chat.IsPrivate() {
		return
	}
	ev := topics.Event{
		Action: "chat_invitation",
		Data: models.ChatInvitationEvent{
			InvitationID: inv.ID,
			ChatID:       inv.ChatID,
			UserID:       inv.UserID,
			InvitedBy:    inv.InvitedBy,
		},
		ChatID: chat.ID,
		UserID: inv.UserID,
	}
	d.registry.Publish(topics.UserTopic(chat.OwnerID), ev)
	for _, adminID := range chat.Admins {
		d.registry.Publish(topics.UserTopic(adminID), ev)
	}
}

// ChatMemberToBeRemoved announces a pending removal on the chat topic. It must
// run before the member row is observed gone by the removed user's sessions:
// the event itself is what triggers their unsubscribe, after delivery.
func (d *Dispatcher) ChatMemberToBeRemoved(chat models.Chat, memberID int) {
	if chat.IsPrivate() {
		return
	}
	d.registry.Publish(topics.ChatTopic(chat.ID), topics.Event{
		Action: "member_deleted",
		Data:   models.ChatMemberEvent{ChatID: chat.ID, UserID: memberID},
		ChatID: chat.ID,
		UserID: memberID,
	})
}

// ChatToBeDeleted announces the deletion of the whole chat; subscribers drop
// the chat topic after delivery.
func (d *Dispatcher) ChatToBeDeleted(chat models.Chat) {
	if chat.IsPrivate() {
		return
	}
	d.registry.Publish(topics.ChatTopic(chat.ID), topics.Event{
		Action: "chat_deleted",
		Data:   models.ChatDeletedEvent{ChatID: chat.ID},
		ChatID: chat.ID,
	})
}

// FriendCreated informs both parties of the new friendship.
func (d *Dispatcher) FriendCreated(userA int, userB int) {
	d.registry.Publish(topics.UserTopic(userA), topics.Event{
		Action: "friend_created",
		Data:   models.FriendEvent{UserID: userB},
	})
	d.registry.Publish(topics.UserTopic(userB), topics.Event{
		Action: "friend_created",
		Data:   models.FriendEvent{UserID: userA},
	})
}

// FriendToBeDeleted informs only the other party; the actor already knows.
func (d *Dispatcher) FriendToBeDeleted(actorID int, otherID int) {
	d.registry.Publish(topics.UserTopic(otherID), topics.Event{
		Action: "friend_deleted",
		Data:   models.FriendEvent{UserID: actorID},
	})
}

// ProfileChange informs all of a user's sessions of the profile update and
// carries the rotated session key so each session can swap its session topic.
func (d *Dispatcher) ProfileChange(userID int, newSessionKey string) {
	d.registry.Publish(topics.UserTopic(userID), topics.Event{
		Action:     "profile_change",
		Data:       nil,
		SessionKey: newSessionKey,
	})
}

// Logout forces exactly the sessions holding the invalidated key to close.
func (d *Dispatcher) Logout(sessionKey string) {
	d.registry.Publish(topics.SessionTopic(sessionKey), topics.Event{
		Action:     "logout",
		SessionKey: sessionKey,
	})
}

// UserDeletion force-logs-out every session of the deleted account.
func (d *Dispatcher) UserDeletion(userID int) {
	d.registry.Publish(topics.UserTopic(userID), topics.Event{
		Action: "logout",
		UserID: userID,
	})
}

// MessagesRead syncs a read-cursor advance to the acting user's other devices.
func (d *Dispatcher) MessagesRead(chatID int, userID int) {
	d.registry.Publish(topics.UserTopic(userID), topics.Event{
		Action: "messages_read",
		Data:   models.MessagesReadEvent{ChatID: chatID, UserID: userID},
		ChatID: chatID,
		UserID: userID,
	})
}
