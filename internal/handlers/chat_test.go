package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/mocks"
	"chat-backend/internal/models"
	"chat-backend/internal/notify"
	"chat-backend/internal/topics"
)

// eventSink records every event published to the topics it subscribes to.
type eventSink struct {
	mu        sync.Mutex
	delivered []sinkEntry
}

type sinkEntry struct {
	topic string
	event topics.Event
}

func (s *eventSink) Deliver(topic string, ev topics.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, sinkEntry{topic: topic, event: ev})
}

func (s *eventSink) actionsOn(topic string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var actions []string
	for _, e := range s.delivered {
		if e.topic == topic {
			actions = append(actions, e.event.Action)
		}
	}
	return actions
}

func (s *eventSink) entries() []sinkEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sinkEntry, len(s.delivered))
	copy(out, s.delivered)
	return out
}

func performRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func authContext(userID int, sessionKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", userID)
		c.Set("sessionKey", sessionKey)
	}
}

type chatFixture struct {
	router   *gin.Engine
	registry *topics.Registry
	chats    *mocks.ChatRepositoryMock
	messages *mocks.MessageRepositoryMock
	users    *mocks.UserRepositoryMock
	friends  *mocks.FriendRepositoryMock
}

func newChatFixture(userID int) *chatFixture {
	gin.SetMode(gin.TestMode)

	f := &chatFixture{
		registry: topics.NewRegistry(),
		chats:    &mocks.ChatRepositoryMock{},
		messages: &mocks.MessageRepositoryMock{},
		users:    &mocks.UserRepositoryMock{},
		friends:  &mocks.FriendRepositoryMock{},
	}
	h := NewChatHandler(f.chats, f.messages, f.users, f.friends, notify.NewDispatcher(f.registry), nil)

	f.router = gin.New()
	f.router.Use(authContext(userID, "key-1"))
	f.router.POST("/chats", h.CreateChat)
	f.router.GET("/chats", h.ListChats)
	f.router.GET("/chats/:chat_id", h.GetChat)
	f.router.GET("/chats/:chat_id/messages", h.GetChatMessages)
	f.router.DELETE("/chats/:chat_id", h.LeaveChat)
	f.router.POST("/chats/:chat_id/members", h.AddMember)
	f.router.DELETE("/chats/:chat_id/members/:user_id", h.RemoveMember)
	f.router.PUT("/chats/:chat_id/admins/:user_id", h.SetAdmin)
	f.router.PUT("/chats/:chat_id/owner", h.TransferOwner)
	f.router.POST("/chats/:chat_id/read", h.MarkChatRead)
	f.router.POST("/chats/:chat_id/invitations", h.InviteMember)
	f.router.GET("/chats/:chat_id/invitations", h.ListChatInvitations)
	f.router.POST("/chats/:chat_id/invitations/:invitation_id/approve", h.ApproveInvitation)
	f.router.DELETE("/chats/:chat_id/invitations/:invitation_id", h.RejectInvitation)
	return f
}

func (f *chatFixture) subscribe(topics ...string) *eventSink {
	sink := &eventSink{}
	for _, t := range topics {
		f.registry.Subscribe(t, sink)
	}
	return sink
}

func intNull(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: true}
}

func groupChat(id, ownerID int, members, admins []int) models.Chat {
	return models.Chat{ID: id, Name: "trip", OwnerID: ownerID, Members: members, Admins: admins}
}

func TestCreateChatRejectsNonFriendMember(t *testing.T) {
	f := newChatFixture(1)
	f.friends.On("AreFriends", mock.Anything, 1, 2).Return(false, nil)

	w := performRequest(f.router, http.MethodPost, "/chats", gin.H{"name": "trip", "member_ids": []int{2}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.chats.AssertNotCalled(t, "CreateGroupChat", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateChatAnnouncesAndPostsSystemMessage(t *testing.T) {
	f := newChatFixture(1)
	chat := groupChat(9, 1, []int{1, 2, 3}, nil)

	f.friends.On("AreFriends", mock.Anything, 1, 2).Return(true, nil)
	f.friends.On("AreFriends", mock.Anything, 1, 3).Return(true, nil)
	f.chats.On("CreateGroupChat", mock.Anything, 1, "trip", []int{2, 3}).Return(chat, nil)
	f.users.On("GetUsers", mock.Anything, []int{1, 2, 3}).Return(map[int]models.User{
		1: {ID: 1, UserName: "alice"},
		2: {ID: 2, UserName: "bob"},
		3: {ID: 3, UserName: "carol"},
	}, nil)
	f.messages.On("CreateMessage", mock.Anything, 9, (*int)(nil), models.UserKindSystem, "Group trip created by alice with bob, carol", (*int)(nil)).
		Return(models.Message{ID: 100, ChatID: 9, SenderKind: models.UserKindSystem, Content: "Group trip created by alice with bob, carol"}, nil)

	sink := f.subscribe(topics.UserTopic(1), topics.UserTopic(2), topics.UserTopic(3), topics.ChatTopic(9))
	w := performRequest(f.router, http.MethodPost, "/chats", gin.H{"name": "trip", "member_ids": []int{2, 3}})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"new_group_chat"}, sink.actionsOn(topics.UserTopic(2)))
	assert.Equal(t, []string{"new_group_chat"}, sink.actionsOn(topics.UserTopic(3)))
	assert.Equal(t, []string{"new_message"}, sink.actionsOn(topics.ChatTopic(9)))
	f.messages.AssertExpectations(t)
}

func TestLeaveChatOwnerDeletesChat(t *testing.T) {
	f := newChatFixture(1)
	chat := groupChat(9, 1, []int{1, 2}, nil)

	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)
	f.chats.On("DeleteChat", mock.Anything, 9).Return(nil)

	sink := f.subscribe(topics.ChatTopic(9))
	w := performRequest(f.router, http.MethodDelete, "/chats/9", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"chat_deleted"}, sink.actionsOn(topics.ChatTopic(9)))
	f.chats.AssertExpectations(t)
}

func TestLeaveChatAdminDowngradedBeforeRemoval(t *testing.T) {
	f := newChatFixture(2)
	chat := groupChat(9, 1, []int{1, 2, 3}, []int{2})

	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)
	f.chats.On("SetAdmin", mock.Anything, 9, 2, false).Return(nil)
	f.chats.On("RemoveMember", mock.Anything, 9, 2).Return(nil)
	f.users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2, UserName: "bob"}, nil)
	f.messages.On("CreateMessage", mock.Anything, 9, (*int)(nil), models.UserKindSystem, "bob left the chat", (*int)(nil)).
		Return(models.Message{ID: 101, ChatID: 9, SenderKind: models.UserKindSystem, Content: "bob left the chat"}, nil)

	sink := f.subscribe(topics.ChatTopic(9))
	w := performRequest(f.router, http.MethodDelete, "/chats/9", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"admin_state_change", "member_deleted", "new_message"}, sink.actionsOn(topics.ChatTopic(9)))
	f.chats.AssertExpectations(t)
}

func TestLeaveChatRejectsPrivateChat(t *testing.T) {
	f := newChatFixture(1)
	f.chats.On("GetChat", mock.Anything, 5).Return(models.Chat{ID: 5, OwnerID: 1, Members: []int{1, 2}}, nil)

	w := performRequest(f.router, http.MethodDelete, "/chats/5", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveMemberOwnerTargetForbidden(t *testing.T) {
	f := newChatFixture(1)
	chat := groupChat(9, 1, []int{1, 2}, nil)
	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)

	w := performRequest(f.router, http.MethodDelete, "/chats/9/members/1", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	f.chats.AssertNotCalled(t, "RemoveMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestRemoveMemberAdminRequiresOwner(t *testing.T) {
	f := newChatFixture(2)
	chat := groupChat(9, 1, []int{1, 2, 3}, []int{2, 3})
	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)

	w := performRequest(f.router, http.MethodDelete, "/chats/9/members/3", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	f.chats.AssertNotCalled(t, "RemoveMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestRemoveAdminByOwnerDowngradesFirst(t *testing.T) {
	f := newChatFixture(1)
	chat := groupChat(9, 1, []int{1, 2}, []int{2})

	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)
	f.chats.On("SetAdmin", mock.Anything, 9, 2, false).Return(nil)
	f.chats.On("RemoveMember", mock.Anything, 9, 2).Return(nil)
	f.users.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, UserName: "alice"}, nil)
	f.users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2, UserName: "bob"}, nil)
	f.messages.On("CreateMessage", mock.Anything, 9, (*int)(nil), models.UserKindSystem, "alice removed bob from the group", (*int)(nil)).
		Return(models.Message{ID: 102, ChatID: 9, SenderKind: models.UserKindSystem}, nil)

	sink := f.subscribe(topics.ChatTopic(9))
	w := performRequest(f.router, http.MethodDelete, "/chats/9/members/2", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"admin_state_change", "member_deleted", "new_message"}, sink.actionsOn(topics.ChatTopic(9)))
}

func TestSetAdminSameStateRejected(t *testing.T) {
	f := newChatFixture(1)
	chat := groupChat(9, 1, []int{1, 2}, []int{2})
	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)

	w := performRequest(f.router, http.MethodPut, "/chats/9/admins/2", gin.H{"is_admin": true})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.chats.AssertNotCalled(t, "SetAdmin", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTransferOwnerEventSequence(t *testing.T) {
	f := newChatFixture(1)
	chat := groupChat(9, 1, []int{1, 2}, []int{2})

	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)
	f.chats.On("TransferOwner", mock.Anything, 9, 2).Return(nil)

	sink := f.subscribe(topics.ChatTopic(9))
	w := performRequest(f.router, http.MethodPut, "/chats/9/owner", gin.H{"user_id": 2})

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, []string{"admin_state_change", "owner_state_change", "admin_state_change"}, sink.actionsOn(topics.ChatTopic(9)))

	entries := sink.entries()
	first := entries[0].event.Data.(models.AdminStateEvent)
	assert.Equal(t, 2, first.UserID)
	assert.False(t, first.IsAdmin)
	owner := entries[1].event.Data.(models.OwnerStateEvent)
	assert.Equal(t, 2, owner.OwnerID)
	last := entries[2].event.Data.(models.AdminStateEvent)
	assert.Equal(t, 1, last.UserID)
	assert.True(t, last.IsAdmin)
}

func TestMarkChatReadRequiresMembership(t *testing.T) {
	f := newChatFixture(4)
	chat := groupChat(9, 1, []int{1, 2}, nil)
	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)

	w := performRequest(f.router, http.MethodPost, "/chats/9/read", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	f.messages.AssertNotCalled(t, "MarkChatRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkChatReadSyncsDevices(t *testing.T) {
	f := newChatFixture(2)
	chat := groupChat(9, 1, []int{1, 2}, nil)

	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)
	f.messages.On("MarkChatRead", mock.Anything, 9, 2).Return(nil)

	sink := f.subscribe(topics.UserTopic(2))
	w := performRequest(f.router, http.MethodPost, "/chats/9/read", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"messages_read"}, sink.actionsOn(topics.UserTopic(2)))
}

func TestGetChatMessagesRendersForViewer(t *testing.T) {
	f := newChatFixture(2)
	chat := groupChat(9, 1, []int{1, 2}, nil)

	msgs := []models.Message{
		{ID: 10, ChatID: 9, SenderID: intNull(1), SenderKind: models.UserKindNormal, Content: "hello"},
		{ID: 11, ChatID: 9, SenderID: intNull(1), SenderKind: models.UserKindNormal, Content: "secret"},
	}
	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)
	f.messages.On("ListChatMessages", mock.Anything, 9).Return(msgs, nil)
	f.messages.On("ListDeletedFor", mock.Anything, 9, 2).Return(map[int]bool{11: true}, nil)
	f.users.On("GetUsers", mock.Anything, []int{1}).Return(map[int]models.User{1: {ID: 1, UserName: "alice"}}, nil)

	w := performRequest(f.router, http.MethodGet, "/chats/9/messages", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Messages []models.MessageView `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, 11, resp.Messages[0].MessageID)
	assert.True(t, resp.Messages[0].Deleted)
	assert.Equal(t, 10, resp.Messages[1].MessageID)
	assert.False(t, resp.Messages[1].Deleted)
	assert.Equal(t, "alice", resp.Messages[1].Sender.UserName)
}

func TestGetChatIncludesUnreadCount(t *testing.T) {
	f := newChatFixture(2)
	chat := groupChat(9, 1, []int{1, 2}, nil)

	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)
	f.chats.On("GetRelation", mock.Anything, 9, 2).Return(models.UserChatRelation{ChatID: 9, UserID: 2, Nickname: "trip squad"}, nil)
	f.messages.On("UnreadCount", mock.Anything, 9, 2).Return(3, nil)

	w := performRequest(f.router, http.MethodGet, "/chats/9", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unread_count":3`)
	assert.Contains(t, w.Body.String(), `"nickname":"trip squad"`)
}

func TestGetChatMessagesNonMemberForbidden(t *testing.T) {
	f := newChatFixture(4)
	chat := groupChat(9, 1, []int{1, 2}, nil)
	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)

	w := performRequest(f.router, http.MethodGet, "/chats/9/messages", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestInviteMemberNotifiesApprovers(t *testing.T) {
	f := newChatFixture(3)
	chat := groupChat(9, 1, []int{1, 2, 3}, []int{2})
	inv := models.ChatInvitation{ID: 50, ChatID: 9, UserID: 4, InvitedBy: 3}

	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)
	f.friends.On("AreFriends", mock.Anything, 3, 4).Return(true, nil)
	f.chats.On("CreateChatInvitation", mock.Anything, 9, 4, 3).Return(inv, nil)

	sink := f.subscribe(topics.UserTopic(1), topics.UserTopic(2), topics.UserTopic(4))
	w := performRequest(f.router, http.MethodPost, "/chats/9/invitations", gin.H{"user_id": 4})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"chat_invitation"}, sink.actionsOn(topics.UserTopic(1)))
	assert.Equal(t, []string{"chat_invitation"}, sink.actionsOn(topics.UserTopic(2)))
	assert.Empty(t, sink.actionsOn(topics.UserTopic(4)))

	entries := sink.entries()
	require.NotEmpty(t, entries)
	data := entries[0].event.Data.(models.ChatInvitationEvent)
	assert.Equal(t, 50, data.InvitationID)
	assert.Equal(t, 4, data.UserID)
	assert.Equal(t, 3, data.InvitedBy)
}

func TestInviteMemberRequiresFriendship(t *testing.T) {
	f := newChatFixture(3)
	chat := groupChat(9, 1, []int{1, 2, 3}, nil)

	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)
	f.friends.On("AreFriends", mock.Anything, 3, 4).Return(false, nil)

	w := performRequest(f.router, http.MethodPost, "/chats/9/invitations", gin.H{"user_id": 4})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.chats.AssertNotCalled(t, "CreateChatInvitation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApproveInvitationAddsMember(t *testing.T) {
	f := newChatFixture(2)
	chat := groupChat(9, 1, []int{1, 2, 3}, []int{2})
	inv := models.ChatInvitation{ID: 50, ChatID: 9, UserID: 4, InvitedBy: 3}

	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)
	f.chats.On("GetChatInvitation", mock.Anything, 50).Return(inv, nil)
	f.chats.On("DeleteChatInvitation", mock.Anything, 50).Return(nil)
	f.chats.On("AddMember", mock.Anything, 9, 4).Return(nil)
	f.users.On("GetUser", mock.Anything, 4).Return(models.User{ID: 4, UserName: "dave"}, nil)
	f.messages.On("CreateMessage", mock.Anything, 9, (*int)(nil), models.UserKindSystem, "dave joined the group", (*int)(nil)).
		Return(models.Message{ID: 104, ChatID: 9, SenderKind: models.UserKindSystem}, nil)

	sink := f.subscribe(topics.UserTopic(4), topics.ChatTopic(9))
	w := performRequest(f.router, http.MethodPost, "/chats/9/invitations/50/approve", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	entries := sink.entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, topics.UserTopic(4), entries[0].topic)
	assert.Equal(t, "new_group_chat", entries[0].event.Action)
	assert.Equal(t, []string{"member_added", "new_message"}, sink.actionsOn(topics.ChatTopic(9)))
	f.chats.AssertExpectations(t)
}

func TestApproveInvitationRequiresOwnerOrAdmin(t *testing.T) {
	f := newChatFixture(3)
	chat := groupChat(9, 1, []int{1, 2, 3}, []int{2})
	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)

	w := performRequest(f.router, http.MethodPost, "/chats/9/invitations/50/approve", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	f.chats.AssertNotCalled(t, "AddMember", mock.Anything, mock.Anything, mock.Anything)
	f.chats.AssertNotCalled(t, "DeleteChatInvitation", mock.Anything, mock.Anything)
}

func TestRejectInvitationByInviter(t *testing.T) {
	f := newChatFixture(3)
	chat := groupChat(9, 1, []int{1, 2, 3}, nil)
	inv := models.ChatInvitation{ID: 50, ChatID: 9, UserID: 4, InvitedBy: 3}

	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)
	f.chats.On("GetChatInvitation", mock.Anything, 50).Return(inv, nil)
	f.chats.On("DeleteChatInvitation", mock.Anything, 50).Return(nil)

	w := performRequest(f.router, http.MethodDelete, "/chats/9/invitations/50", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	f.chats.AssertExpectations(t)
}

func TestRejectInvitationByPlainMemberForbidden(t *testing.T) {
	f := newChatFixture(2)
	chat := groupChat(9, 1, []int{1, 2, 3}, nil)
	inv := models.ChatInvitation{ID: 50, ChatID: 9, UserID: 4, InvitedBy: 3}

	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)
	f.chats.On("GetChatInvitation", mock.Anything, 50).Return(inv, nil)

	w := performRequest(f.router, http.MethodDelete, "/chats/9/invitations/50", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	f.chats.AssertNotCalled(t, "DeleteChatInvitation", mock.Anything, mock.Anything)
}

func TestAddMemberAnnouncesBeforeChatTopic(t *testing.T) {
	f := newChatFixture(1)
	chat := groupChat(9, 1, []int{1, 2}, nil)

	f.chats.On("GetChat", mock.Anything, 9).Return(chat, nil)
	f.friends.On("AreFriends", mock.Anything, 1, 3).Return(true, nil)
	f.chats.On("AddMember", mock.Anything, 9, 3).Return(nil)
	f.users.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, UserName: "alice"}, nil)
	f.users.On("GetUser", mock.Anything, 3).Return(models.User{ID: 3, UserName: "carol"}, nil)
	f.messages.On("CreateMessage", mock.Anything, 9, (*int)(nil), models.UserKindSystem, "alice added carol to the group", (*int)(nil)).
		Return(models.Message{ID: 103, ChatID: 9, SenderKind: models.UserKindSystem}, nil)

	sink := f.subscribe(topics.UserTopic(3), topics.ChatTopic(9))
	w := performRequest(f.router, http.MethodPost, "/chats/9/members", gin.H{"user_id": 3})

	assert.Equal(t, http.StatusNoContent, w.Code)
	entries := sink.entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, topics.UserTopic(3), entries[0].topic)
	assert.Equal(t, "new_group_chat", entries[0].event.Action)
	assert.Equal(t, []string{"member_added", "new_message"}, sink.actionsOn(topics.ChatTopic(9)))
}
