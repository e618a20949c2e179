package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-backend/internal/models"
	"chat-backend/internal/notify"
	"chat-backend/internal/repositories"
	"chat-backend/internal/telemetry"
)

// FriendHandler manages friendship and invitation endpoints.
type FriendHandler struct {
	friendRepo  repositories.FriendRepository
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	dispatcher  *notify.Dispatcher
	audit       *telemetry.AuditEmitter
}

// NewFriendHandler constructs a FriendHandler.
func NewFriendHandler(friendRepo repositories.FriendRepository, chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, dispatcher *notify.Dispatcher, audit *telemetry.AuditEmitter) *FriendHandler {
	return &FriendHandler{
		friendRepo:  friendRepo,
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		dispatcher:  dispatcher,
		audit:       audit,
	}
}

// ListFriends handles GET /friends.
func (h *FriendHandler) ListFriends(c *gin.Context) {
	userID := c.GetInt("userID")

	friends, err := h.friendRepo.ListFriends(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load friends"})
		return
	}

	ids := make([]int, 0, len(friends))
	for _, f := range friends {
		ids = append(ids, f.FriendID)
	}
	users, err := h.userRepo.GetUsers(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load friends"})
		return
	}

	type friendResponse struct {
		User     models.UserRef `json:"user"`
		Nickname string         `json:"nickname"`
	}
	resp := make([]friendResponse, 0, len(friends))
	for _, f := range friends {
		resp = append(resp, friendResponse{User: users[f.FriendID].Ref(), Nickname: f.Nickname})
	}

	c.JSON(http.StatusOK, gin.H{"friends": resp})
}

// SendInvitation handles POST /friends/invitations. If the target already has
// a pending invitation towards the caller, the pair is matched immediately.
func (h *FriendHandler) SendInvitation(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		UserID  int    `json:"user_id" binding:"required"`
		Comment string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot invite yourself"})
		return
	}

	if _, err := h.userRepo.GetUser(c.Request.Context(), req.UserID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	friends, err := h.friendRepo.AreFriends(c.Request.Context(), userID, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check friendship"})
		return
	}
	if friends {
		c.JSON(http.StatusConflict, gin.H{"error": "users are already friends"})
		return
	}

	// A reverse pending invitation means both sides want the friendship.
	if reverse, err := h.friendRepo.FindInvitation(c.Request.Context(), req.UserID, userID); err == nil {
		if !h.establishFriendship(c, reverse.SenderID, reverse.ReceiverID, reverse.ID) {
			return
		}
		h.emitAudit(c, "INFO", "Mutual invitation matched")
		c.JSON(http.StatusOK, gin.H{"status": "accepted"})
		return
	} else if !errors.Is(err, repositories.ErrInvitationNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check invitations"})
		return
	}

	inv, err := h.friendRepo.CreateInvitation(c.Request.Context(), userID, req.UserID, req.Comment)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create invitation"})
		return
	}

	h.emitAudit(c, "INFO", "Friend invitation sent")
	c.JSON(http.StatusCreated, gin.H{"invitation": inv})
}

// ListInvitations handles GET /friends/invitations, returning invitations
// addressed to the caller.
func (h *FriendHandler) ListInvitations(c *gin.Context) {
	userID := c.GetInt("userID")

	invs, err := h.friendRepo.ListInvitationsForReceiver(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load invitations"})
		return
	}

	ids := make([]int, 0, len(invs))
	for _, inv := range invs {
		ids = append(ids, inv.SenderID)
	}
	users, err := h.userRepo.GetUsers(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load invitations"})
		return
	}

	type invitationResponse struct {
		models.FriendInvitation
		Sender models.UserRef `json:"sender"`
	}
	resp := make([]invitationResponse, 0, len(invs))
	for _, inv := range invs {
		resp = append(resp, invitationResponse{FriendInvitation: inv, Sender: users[inv.SenderID].Ref()})
	}

	c.JSON(http.StatusOK, gin.H{"invitations": resp})
}

// AcceptInvitation handles POST /friends/invitations/:invitation_id/accept.
// Only the receiver may accept.
func (h *FriendHandler) AcceptInvitation(c *gin.Context) {
	invitationID, ok := parseParamID(c, "invitation_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	inv, err := h.friendRepo.GetInvitation(c.Request.Context(), invitationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrInvitationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "invitation not found"})
		return
	}
	if inv.ReceiverID != userID {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "only the receiver can accept"})
		return
	}

	if !h.establishFriendship(c, inv.SenderID, inv.ReceiverID, inv.ID) {
		return
	}

	h.emitAudit(c, "INFO", "Friend invitation accepted")
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// DeclineInvitation handles DELETE /friends/invitations/:invitation_id. Either
// party may remove a pending invitation.
func (h *FriendHandler) DeclineInvitation(c *gin.Context) {
	invitationID, ok := parseParamID(c, "invitation_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	inv, err := h.friendRepo.GetInvitation(c.Request.Context(), invitationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrInvitationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "invitation not found"})
		return
	}
	if inv.ReceiverID != userID && inv.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}

	if err := h.friendRepo.DeleteInvitation(c.Request.Context(), invitationID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete invitation"})
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteFriend handles DELETE /friends/:user_id. The private chat backing the
// friendship is kept.
func (h *FriendHandler) DeleteFriend(c *gin.Context) {
	otherID, ok := parseParamID(c, "user_id")
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	if err := h.friendRepo.DeleteFriendship(c.Request.Context(), userID, otherID); err != nil {
		if errors.Is(err, repositories.ErrFriendNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "users are not friends"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete friend"})
		return
	}
	h.dispatcher.FriendToBeDeleted(userID, otherID)

	h.emitAudit(c, "INFO", "Friend deleted")
	c.Status(http.StatusNoContent)
}

// establishFriendship consumes the invitation, writes the friendship, creates
// the backing private chat with its opening system message, and announces both
// to the pair. Reports whether the request may proceed.
func (h *FriendHandler) establishFriendship(c *gin.Context, senderID, receiverID, invitationID int) bool {
	if err := h.friendRepo.DeleteInvitation(c.Request.Context(), invitationID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not accept invitation"})
		return false
	}
	if err := h.friendRepo.CreateFriendship(c.Request.Context(), senderID, receiverID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not accept invitation"})
		return false
	}

	chat, err := h.chatRepo.CreatePrivateChat(c.Request.Context(), senderID, receiverID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create private chat"})
		return false
	}

	h.dispatcher.FriendCreated(senderID, receiverID)

	users, err := h.userRepo.GetUsers(c.Request.Context(), []int{senderID, receiverID})
	if err != nil {
		users = map[int]models.User{}
	}
	content := fmt.Sprintf("%s added %s as a friend", users[senderID].UserName, users[receiverID].UserName)
	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), chat.ID, nil, models.UserKindSystem, content, nil)
	if err != nil {
		h.emitAudit(c, "ERROR", "failed to store system message")
		return true
	}
	h.dispatcher.NewMessage(chat, msg.View(models.SystemUser(), false))
	return true
}

func (h *FriendHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
