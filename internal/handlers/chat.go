package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-backend/internal/models"
	"chat-backend/internal/notify"
	"chat-backend/internal/repositories"
	"chat-backend/internal/telemetry"
)

// ChatHandler manages group chat endpoints.
type ChatHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	friendRepo  repositories.FriendRepository
	dispatcher  *notify.Dispatcher
	audit       *telemetry.AuditEmitter
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, friendRepo repositories.FriendRepository, dispatcher *notify.Dispatcher, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		friendRepo:  friendRepo,
		dispatcher:  dispatcher,
		audit:       audit,
	}
}

// CreateChat handles POST /chats. Every requested member must already be a
// friend of the caller.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		Name      string `json:"name" binding:"required"`
		MemberIDs []int  `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Name) > models.MaxChatNameLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat name too long"})
		return
	}

	for _, memberID := range req.MemberIDs {
		if memberID == userID {
			continue
		}
		friends, err := h.friendRepo.AreFriends(c.Request.Context(), userID, memberID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate members"})
			return
		}
		if !friends {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("user %d is not a friend", memberID)})
			return
		}
	}

	chat, err := h.chatRepo.CreateGroupChat(c.Request.Context(), userID, req.Name, req.MemberIDs)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	h.dispatcher.NewChat(chat)
	h.postSystemMessage(c, chat, h.creationAnnouncement(c, chat, userID, req.MemberIDs))

	h.emitAudit(c, "INFO", "Chat created")
	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

// creationAnnouncement renders the system message that opens a new group chat.
func (h *ChatHandler) creationAnnouncement(c *gin.Context, chat models.Chat, ownerID int, memberIDs []int) string {
	ids := append([]int{ownerID}, memberIDs...)
	users, err := h.userRepo.GetUsers(c.Request.Context(), ids)
	if err != nil {
		users = map[int]models.User{}
	}

	names := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id == ownerID {
			continue
		}
		if u, ok := users[id]; ok {
			names = append(names, u.UserName)
		}
	}

	text := fmt.Sprintf("Group %s created by %s", chat.Name, users[ownerID].UserName)
	if len(names) > 0 {
		text += " with " + strings.Join(names, ", ")
	}
	return text
}

// ListChats handles GET /chats, returning per-chat summaries with unread
// counts for the caller.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt("userID")

	rels, err := h.chatRepo.ListRelationsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	summaries := make([]models.ChatSummary, 0, len(rels))
	for _, rel := range rels {
		chat, err := h.chatRepo.GetChat(c.Request.Context(), rel.ChatID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
			return
		}
		unread, err := h.messageRepo.UnreadCount(c.Request.Context(), rel.ChatID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
			return
		}
		summaries = append(summaries, models.ChatSummary{Chat: chat, Nickname: rel.Nickname, UnreadCount: unread})
	}

	c.JSON(http.StatusOK, gin.H{"chats": summaries})
}

// GetChat handles GET /chats/:chat_id, returning the chat together with the
// caller's relation.
func (h *ChatHandler) GetChat(c *gin.Context) {
	chatID, ok := parseParamID(c, "chat_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}
	if !chat.HasMember(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	rel, err := h.chatRepo.GetRelation(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat"})
		return
	}
	unread, err := h.messageRepo.UnreadCount(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat": models.ChatSummary{Chat: chat, Nickname: rel.Nickname, UnreadCount: unread}})
}

// GetChatMessages handles GET /chats/:chat_id/messages. Messages are rendered
// for the caller and returned newest first.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	chatID, ok := parseParamID(c, "chat_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}
	if !chat.HasMember(userID) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	msgs, err := h.messageRepo.ListChatMessages(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	deleted, err := h.messageRepo.ListDeletedFor(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	senderIDs := make([]int, 0, len(msgs))
	seen := map[int]struct{}{}
	for _, m := range msgs {
		if m.SenderKind != models.UserKindNormal || !m.SenderID.Valid {
			continue
		}
		id := int(m.SenderID.Int64)
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			senderIDs = append(senderIDs, id)
		}
	}
	senders, err := h.userRepo.GetUsers(c.Request.Context(), senderIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load senders"})
		return
	}

	views := make([]models.MessageView, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		var sender models.UserRef
		if m.SenderID.Valid {
			sender = senders[int(m.SenderID.Int64)].Ref()
		}
		views = append(views, m.View(sender, deleted[m.ID]))
	}

	c.JSON(http.StatusOK, gin.H{"messages": views})
}

// LeaveChat handles DELETE /chats/:chat_id. The owner leaving deletes the
// whole chat; anyone else just leaves.
func (h *ChatHandler) LeaveChat(c *gin.Context) {
	chatID, ok := parseParamID(c, "chat_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}
	if chat.IsPrivate() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot leave a private chat"})
		return
	}
	if !chat.HasMember(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	if chat.OwnerID == userID {
		h.dispatcher.ChatToBeDeleted(chat)
		if err := h.chatRepo.DeleteChat(c.Request.Context(), chatID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete chat"})
			return
		}
		h.emitAudit(c, "INFO", "Chat deleted by owner")
		c.Status(http.StatusNoContent)
		return
	}

	// A leaving admin loses admin status first so every subscriber observes
	// the downgrade before the membership change.
	if chat.HasAdmin(userID) {
		if err := h.chatRepo.SetAdmin(c.Request.Context(), chatID, userID, false); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave chat"})
			return
		}
		h.dispatcher.AdminStateChange(chat, userID, false)
	}

	h.dispatcher.ChatMemberToBeRemoved(chat, userID)
	if err := h.chatRepo.RemoveMember(c.Request.Context(), chatID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave chat"})
		return
	}

	h.postSystemMessage(c, chat, fmt.Sprintf("%s left the chat", h.userName(c, userID)))
	h.emitAudit(c, "INFO", "Member left chat")
	c.Status(http.StatusNoContent)
}

// AddMember handles POST /chats/:chat_id/members. Only the owner and admins
// may add, and the newcomer must be a friend of the caller.
func (h *ChatHandler) AddMember(c *gin.Context) {
	chatID, ok := parseParamID(c, "chat_id")
	if !ok {
		return
	}

	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}
	if chat.IsPrivate() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot add members to a private chat"})
		return
	}
	if chat.OwnerID != userID && !chat.HasAdmin(userID) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "owner or admin required"})
		return
	}
	if chat.HasMember(req.UserID) {
		c.JSON(http.StatusConflict, gin.H{"error": "user already a member"})
		return
	}

	friends, err := h.friendRepo.AreFriends(c.Request.Context(), userID, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate member"})
		return
	}
	if !friends {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user is not a friend"})
		return
	}

	if err := h.chatRepo.AddMember(c.Request.Context(), chatID, req.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add member"})
		return
	}
	h.dispatcher.ChatMemberAdded(chat, req.UserID)

	h.postSystemMessage(c, chat, fmt.Sprintf("%s added %s to the group", h.userName(c, userID), h.userName(c, req.UserID)))
	h.emitAudit(c, "INFO", "Member added to chat")
	c.Status(http.StatusNoContent)
}

// InviteMember handles POST /chats/:chat_id/invitations. Any member may
// propose a friend of theirs; the invitation waits for an owner or admin to
// approve before the friend becomes a member.
func (h *ChatHandler) InviteMember(c *gin.Context) {
	chatID, ok := parseParamID(c, "chat_id")
	if !ok {
		return
	}

	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}
	if chat.IsPrivate() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot invite members to a private chat"})
		return
	}
	if !chat.HasMember(userID) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}
	if chat.HasMember(req.UserID) {
		c.JSON(http.StatusConflict, gin.H{"error": "user already a member"})
		return
	}

	friends, err := h.friendRepo.AreFriends(c.Request.Context(), userID, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate invitee"})
		return
	}
	if !friends {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user is not a friend"})
		return
	}

	inv, err := h.chatRepo.CreateChatInvitation(c.Request.Context(), chatID, req.UserID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create invitation"})
		return
	}
	h.dispatcher.ChatMemberInvited(chat, inv)

	h.emitAudit(c, "INFO", "Chat invitation created")
	c.JSON(http.StatusCreated, gin.H{"invitation": inv})
}

// ListChatInvitations handles GET /chats/:chat_id/invitations. Only the owner
// and admins, the people who can act on an invitation, may list them.
func (h *ChatHandler) ListChatInvitations(c *gin.Context) {
	chatID, ok := parseParamID(c, "chat_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}
	if chat.OwnerID != userID && !chat.HasAdmin(userID) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "owner or admin required"})
		return
	}

	invs, err := h.chatRepo.ListChatInvitations(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load invitations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"invitations": invs})
}

// ApproveInvitation handles POST /chats/:chat_id/invitations/:invitation_id/approve.
// An owner or admin consumes the invitation and the invitee becomes a member.
func (h *ChatHandler) ApproveInvitation(c *gin.Context) {
	chatID, ok := parseParamID(c, "chat_id")
	if !ok {
		return
	}
	invitationID, ok := parseParamID(c, "invitation_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}
	if chat.OwnerID != userID && !chat.HasAdmin(userID) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "owner or admin required"})
		return
	}

	inv, err := h.chatRepo.GetChatInvitation(c.Request.Context(), invitationID)
	if err != nil || inv.ChatID != chatID {
		status := http.StatusInternalServerError
		if err == nil || errors.Is(err, repositories.ErrChatInvitationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "invitation not found"})
		return
	}

	if err := h.chatRepo.DeleteChatInvitation(c.Request.Context(), invitationID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not approve invitation"})
		return
	}
	// The invitee may have joined through another path while the invitation
	// was pending; the stale invitation is consumed either way.
	if chat.HasMember(inv.UserID) {
		c.JSON(http.StatusConflict, gin.H{"error": "user already a member"})
		return
	}

	if err := h.chatRepo.AddMember(c.Request.Context(), chatID, inv.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not approve invitation"})
		return
	}
	h.dispatcher.ChatMemberAdded(chat, inv.UserID)

	h.postSystemMessage(c, chat, fmt.Sprintf("%s joined the group", h.userName(c, inv.UserID)))
	h.emitAudit(c, "INFO", "Chat invitation approved")
	c.Status(http.StatusNoContent)
}

// RejectInvitation handles DELETE /chats/:chat_id/invitations/:invitation_id.
// An owner or admin may reject; the inviter may withdraw their own proposal.
func (h *ChatHandler) RejectInvitation(c *gin.Context) {
	chatID, ok := parseParamID(c, "chat_id")
	if !ok {
		return
	}
	invitationID, ok := parseParamID(c, "invitation_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}

	inv, err := h.chatRepo.GetChatInvitation(c.Request.Context(), invitationID)
	if err != nil || inv.ChatID != chatID {
		status := http.StatusInternalServerError
		if err == nil || errors.Is(err, repositories.ErrChatInvitationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "invitation not found"})
		return
	}
	if chat.OwnerID != userID && !chat.HasAdmin(userID) && inv.InvitedBy != userID {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "owner, admin or inviter required"})
		return
	}

	if err := h.chatRepo.DeleteChatInvitation(c.Request.Context(), invitationID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not reject invitation"})
		return
	}

	h.emitAudit(c, "INFO", "Chat invitation rejected")
	c.Status(http.StatusNoContent)
}

// RemoveMember handles DELETE /chats/:chat_id/members/:user_id. The owner can
// never be removed; removing an admin takes the owner.
func (h *ChatHandler) RemoveMember(c *gin.Context) {
	chatID, ok := parseParamID(c, "chat_id")
	if !ok {
		return
	}
	targetID, ok := parseParamID(c, "user_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}
	if chat.IsPrivate() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot remove members from a private chat"})
		return
	}
	if chat.OwnerID != userID && !chat.HasAdmin(userID) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "owner or admin required"})
		return
	}
	if !chat.HasMember(targetID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user is not a member"})
		return
	}
	if targetID == chat.OwnerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot remove the owner"})
		return
	}

	if chat.HasAdmin(targetID) {
		if chat.OwnerID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "only the owner can remove an admin"})
			return
		}
		// The downgrade is broadcast before the removal so no subscriber ever
		// sees an admin vanish while still listed.
		if err := h.chatRepo.SetAdmin(c.Request.Context(), chatID, targetID, false); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove member"})
			return
		}
		h.dispatcher.AdminStateChange(chat, targetID, false)
	}

	h.dispatcher.ChatMemberToBeRemoved(chat, targetID)
	if err := h.chatRepo.RemoveMember(c.Request.Context(), chatID, targetID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove member"})
		return
	}

	h.postSystemMessage(c, chat, fmt.Sprintf("%s removed %s from the group", h.userName(c, userID), h.userName(c, targetID)))
	h.emitAudit(c, "INFO", "Member removed from chat")
	c.Status(http.StatusNoContent)
}

// SetAdmin handles PUT /chats/:chat_id/admins/:user_id. Owner only.
func (h *ChatHandler) SetAdmin(c *gin.Context) {
	chatID, ok := parseParamID(c, "chat_id")
	if !ok {
		return
	}
	targetID, ok := parseParamID(c, "user_id")
	if !ok {
		return
	}

	var req struct {
		IsAdmin *bool `json:"is_admin" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}
	if chat.IsPrivate() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "private chats have no admins"})
		return
	}
	if chat.OwnerID != userID {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "owner required"})
		return
	}
	if !chat.HasMember(targetID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user is not a member"})
		return
	}
	if targetID == chat.OwnerID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot change the owner's admin state"})
		return
	}
	if chat.HasAdmin(targetID) == *req.IsAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "admin state unchanged"})
		return
	}

	if err := h.chatRepo.SetAdmin(c.Request.Context(), chatID, targetID, *req.IsAdmin); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update admin state"})
		return
	}
	h.dispatcher.AdminStateChange(chat, targetID, *req.IsAdmin)

	h.emitAudit(c, "INFO", "Admin state changed")
	c.Status(http.StatusNoContent)
}

// TransferOwner handles PUT /chats/:chat_id/owner. Owner only. Ownership moves
// to an existing member; the previous owner stays behind as an admin.
func (h *ChatHandler) TransferOwner(c *gin.Context) {
	chatID, ok := parseParamID(c, "chat_id")
	if !ok {
		return
	}

	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}
	if chat.IsPrivate() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "private chats have no owner to transfer"})
		return
	}
	if chat.OwnerID != userID {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "owner required"})
		return
	}
	if !chat.HasMember(req.UserID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user is not a member"})
		return
	}
	if req.UserID == chat.OwnerID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user already owns the chat"})
		return
	}

	wasAdmin := chat.HasAdmin(req.UserID)
	if err := h.chatRepo.TransferOwner(c.Request.Context(), chatID, req.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not transfer ownership"})
		return
	}

	// Subscribers see the new owner shed admin status, then gain ownership,
	// then the previous owner become an admin.
	if wasAdmin {
		h.dispatcher.AdminStateChange(chat, req.UserID, false)
	}
	chat.OwnerID = req.UserID
	h.dispatcher.OwnerStateChange(chat)
	h.dispatcher.AdminStateChange(chat, userID, true)

	h.emitAudit(c, "INFO", "Chat ownership transferred")
	c.Status(http.StatusNoContent)
}

// MarkChatRead handles POST /chats/:chat_id/read.
func (h *ChatHandler) MarkChatRead(c *gin.Context) {
	chatID, ok := parseParamID(c, "chat_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}
	if !chat.HasMember(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	if err := h.messageRepo.MarkChatRead(c.Request.Context(), chatID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark chat read"})
		return
	}
	h.dispatcher.MessagesRead(chatID, userID)

	c.Status(http.StatusNoContent)
}

// postSystemMessage stores a system-authored message and announces it. System
// messages are best effort; a failure never fails the surrounding request.
func (h *ChatHandler) postSystemMessage(c *gin.Context, chat models.Chat, content string) {
	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), chat.ID, nil, models.UserKindSystem, content, nil)
	if err != nil {
		h.emitAudit(c, "ERROR", "failed to store system message")
		return
	}
	h.dispatcher.NewMessage(chat, msg.View(models.SystemUser(), false))
}

func (h *ChatHandler) userName(c *gin.Context, userID int) string {
	user, err := h.userRepo.GetUser(c.Request.Context(), userID)
	if err != nil {
		return fmt.Sprintf("user %d", userID)
	}
	return user.UserName
}

func (h *ChatHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func parseParamID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
