package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-backend/internal/notify"
	"chat-backend/internal/repositories"
	"chat-backend/internal/telemetry"
)

// UserHandler manages the authenticated user's own account.
type UserHandler struct {
	userRepo    repositories.UserRepository
	sessionRepo repositories.SessionRepository
	chatRepo    repositories.ChatRepository
	friendRepo  repositories.FriendRepository
	dispatcher  *notify.Dispatcher
	audit       *telemetry.AuditEmitter
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(userRepo repositories.UserRepository, sessionRepo repositories.SessionRepository, chatRepo repositories.ChatRepository, friendRepo repositories.FriendRepository, dispatcher *notify.Dispatcher, audit *telemetry.AuditEmitter) *UserHandler {
	return &UserHandler{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		chatRepo:    chatRepo,
		friendRepo:  friendRepo,
		dispatcher:  dispatcher,
		audit:       audit,
	}
}

// GetMe handles GET /user.
func (h *UserHandler) GetMe(c *gin.Context) {
	userID := c.GetInt("userID")

	user, err := h.userRepo.GetUser(c.Request.Context(), userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateProfile handles PATCH /user. Any profile update rotates the session
// key; the response carries the replacement and every live websocket session
// is told to swap.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		UserName  *string `json:"user_name"`
		AvatarURL *string `json:"avatar_url"`
		Email     *string `json:"email"`
		Phone     *string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.userRepo.GetUser(c.Request.Context(), userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	if req.UserName != nil {
		if *req.UserName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user name cannot be empty"})
			return
		}
		user.UserName = *req.UserName
	}
	if req.AvatarURL != nil {
		user.AvatarURL = *req.AvatarURL
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}

	if err := h.userRepo.UpdateUser(c.Request.Context(), user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update profile"})
		return
	}

	session, err := h.sessionRepo.Rotate(c.Request.Context(), c.GetString("sessionKey"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not rotate session"})
		return
	}
	h.dispatcher.ProfileChange(userID, session.Key)

	h.emitAudit(c, "INFO", "Profile updated")
	c.JSON(http.StatusOK, gin.H{"user": user, "session_key": session.Key})
}

// Logout handles POST /user/logout. Only the presenting session is
// invalidated; the user's other devices stay signed in.
func (h *UserHandler) Logout(c *gin.Context) {
	sessionKey := c.GetString("sessionKey")

	if err := h.sessionRepo.DeleteByKey(c.Request.Context(), sessionKey); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not log out"})
		return
	}
	h.dispatcher.Logout(sessionKey)

	h.emitAudit(c, "INFO", "Logged out")
	c.Status(http.StatusNoContent)
}

// DeleteAccount handles DELETE /user. Every chat the user belongs to sees a
// membership removal, every friend sees the friendship end, and all of the
// user's sessions are force-closed before the row cascade runs.
func (h *UserHandler) DeleteAccount(c *gin.Context) {
	userID := c.GetInt("userID")

	rels, err := h.chatRepo.ListRelationsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete account"})
		return
	}
	for _, rel := range rels {
		chat, err := h.chatRepo.GetChat(c.Request.Context(), rel.ChatID)
		if err != nil {
			continue
		}
		h.dispatcher.ChatMemberToBeRemoved(chat, userID)
	}

	friends, err := h.friendRepo.ListFriends(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete account"})
		return
	}
	for _, f := range friends {
		h.dispatcher.FriendToBeDeleted(userID, f.FriendID)
	}

	h.dispatcher.UserDeletion(userID)

	if err := h.sessionRepo.DeleteAllForUser(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete account"})
		return
	}
	if err := h.userRepo.DeleteUser(c.Request.Context(), userID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not delete account"})
		return
	}

	h.emitAudit(c, "INFO", "Account deleted")
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
