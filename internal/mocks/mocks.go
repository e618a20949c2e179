package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateGroupChat(ctx context.Context, ownerID int, name string, memberIDs []int) (models.Chat, error) {
	args := m.Called(ctx, ownerID, name, memberIDs)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) CreatePrivateChat(ctx context.Context, userA int, userB int) (models.Chat, error) {
	args := m.Called(ctx, userA, userB)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) IsMember(ctx context.Context, chatID int, userID int) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) AddMember(ctx context.Context, chatID int, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) RemoveMember(ctx context.Context, chatID int, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) SetAdmin(ctx context.Context, chatID int, userID int, isAdmin bool) error {
	args := m.Called(ctx, chatID, userID, isAdmin)
	return args.Error(0)
}

func (m *ChatRepositoryMock) TransferOwner(ctx context.Context, chatID int, newOwnerID int) error {
	args := m.Called(ctx, chatID, newOwnerID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) DeleteChat(ctx context.Context, chatID int) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) GetRelation(ctx context.Context, chatID int, userID int) (models.UserChatRelation, error) {
	args := m.Called(ctx, chatID, userID)
	var rel models.UserChatRelation
	if val := args.Get(0); val != nil {
		rel = val.(models.UserChatRelation)
	}
	return rel, args.Error(1)
}

func (m *ChatRepositoryMock) ListRelationsForUser(ctx context.Context, userID int) ([]models.UserChatRelation, error) {
	args := m.Called(ctx, userID)
	var rels []models.UserChatRelation
	if val := args.Get(0); val != nil {
		rels = val.([]models.UserChatRelation)
	}
	return rels, args.Error(1)
}

func (m *ChatRepositoryMock) ListGroupChatIDsForUser(ctx context.Context, userID int) ([]int, error) {
	args := m.Called(ctx, userID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *ChatRepositoryMock) CreateChatInvitation(ctx context.Context, chatID int, userID int, invitedBy int) (models.ChatInvitation, error) {
	args := m.Called(ctx, chatID, userID, invitedBy)
	var inv models.ChatInvitation
	if val := args.Get(0); val != nil {
		inv = val.(models.ChatInvitation)
	}
	return inv, args.Error(1)
}

func (m *ChatRepositoryMock) GetChatInvitation(ctx context.Context, invitationID int) (models.ChatInvitation, error) {
	args := m.Called(ctx, invitationID)
	var inv models.ChatInvitation
	if val := args.Get(0); val != nil {
		inv = val.(models.ChatInvitation)
	}
	return inv, args.Error(1)
}

func (m *ChatRepositoryMock) DeleteChatInvitation(ctx context.Context, invitationID int) error {
	args := m.Called(ctx, invitationID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) ListChatInvitations(ctx context.Context, chatID int) ([]models.ChatInvitation, error) {
	args := m.Called(ctx, chatID)
	var invs []models.ChatInvitation
	if val := args.Get(0); val != nil {
		invs = val.([]models.ChatInvitation)
	}
	return invs, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, chatID int, senderID *int, senderKind models.UserKind, content string, replyTo *int) (models.Message, error) {
	args := m.Called(ctx, chatID, senderID, senderKind, content, replyTo)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) RecallMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteForViewer(ctx context.Context, messageID int, userID int) error {
	args := m.Called(ctx, messageID, userID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) IsDeletedFor(ctx context.Context, messageID int, userID int) (bool, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) ListChatMessages(ctx context.Context, chatID int) ([]models.Message, error) {
	args := m.Called(ctx, chatID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListDeletedFor(ctx context.Context, chatID int, userID int) (map[int]bool, error) {
	args := m.Called(ctx, chatID, userID)
	var deleted map[int]bool
	if val := args.Get(0); val != nil {
		deleted = val.(map[int]bool)
	}
	return deleted, args.Error(1)
}

func (m *MessageRepositoryMock) MarkChatRead(ctx context.Context, chatID int, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) UnreadCount(ctx context.Context, chatID int, userID int) (int, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Int(0), args.Error(1)
}

type FriendRepositoryMock struct {
	mock.Mock
}

func (m *FriendRepositoryMock) AreFriends(ctx context.Context, userID int, otherID int) (bool, error) {
	args := m.Called(ctx, userID, otherID)
	return args.Bool(0), args.Error(1)
}

func (m *FriendRepositoryMock) CreateFriendship(ctx context.Context, userID int, otherID int) error {
	args := m.Called(ctx, userID, otherID)
	return args.Error(0)
}

func (m *FriendRepositoryMock) DeleteFriendship(ctx context.Context, userID int, otherID int) error {
	args := m.Called(ctx, userID, otherID)
	return args.Error(0)
}

func (m *FriendRepositoryMock) ListFriends(ctx context.Context, userID int) ([]models.Friend, error) {
	args := m.Called(ctx, userID)
	var friends []models.Friend
	if val := args.Get(0); val != nil {
		friends = val.([]models.Friend)
	}
	return friends, args.Error(1)
}

func (m *FriendRepositoryMock) CreateInvitation(ctx context.Context, senderID int, receiverID int, comment string) (models.FriendInvitation, error) {
	args := m.Called(ctx, senderID, receiverID, comment)
	var inv models.FriendInvitation
	if val := args.Get(0); val != nil {
		inv = val.(models.FriendInvitation)
	}
	return inv, args.Error(1)
}

func (m *FriendRepositoryMock) GetInvitation(ctx context.Context, invitationID int) (models.FriendInvitation, error) {
	args := m.Called(ctx, invitationID)
	var inv models.FriendInvitation
	if val := args.Get(0); val != nil {
		inv = val.(models.FriendInvitation)
	}
	return inv, args.Error(1)
}

func (m *FriendRepositoryMock) FindInvitation(ctx context.Context, senderID int, receiverID int) (models.FriendInvitation, error) {
	args := m.Called(ctx, senderID, receiverID)
	var inv models.FriendInvitation
	if val := args.Get(0); val != nil {
		inv = val.(models.FriendInvitation)
	}
	return inv, args.Error(1)
}

func (m *FriendRepositoryMock) DeleteInvitation(ctx context.Context, invitationID int) error {
	args := m.Called(ctx, invitationID)
	return args.Error(0)
}

func (m *FriendRepositoryMock) ListInvitationsForReceiver(ctx context.Context, receiverID int) ([]models.FriendInvitation, error) {
	args := m.Called(ctx, receiverID)
	var invs []models.FriendInvitation
	if val := args.Get(0); val != nil {
		invs = val.([]models.FriendInvitation)
	}
	return invs, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUsers(ctx context.Context, userIDs []int) (map[int]models.User, error) {
	args := m.Called(ctx, userIDs)
	var users map[int]models.User
	if val := args.Get(0); val != nil {
		users = val.(map[int]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) UpdateUser(ctx context.Context, user models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepositoryMock) DeleteUser(ctx context.Context, userID int) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type SessionRepositoryMock struct {
	mock.Mock
}

func (m *SessionRepositoryMock) Create(ctx context.Context, userID int) (models.Session, error) {
	args := m.Called(ctx, userID)
	var session models.Session
	if val := args.Get(0); val != nil {
		session = val.(models.Session)
	}
	return session, args.Error(1)
}

func (m *SessionRepositoryMock) GetByKey(ctx context.Context, key string) (models.Session, error) {
	args := m.Called(ctx, key)
	var session models.Session
	if val := args.Get(0); val != nil {
		session = val.(models.Session)
	}
	return session, args.Error(1)
}

func (m *SessionRepositoryMock) Rotate(ctx context.Context, oldKey string) (models.Session, error) {
	args := m.Called(ctx, oldKey)
	var session models.Session
	if val := args.Get(0); val != nil {
		session = val.(models.Session)
	}
	return session, args.Error(1)
}

func (m *SessionRepositoryMock) DeleteByKey(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *SessionRepositoryMock) DeleteAllForUser(ctx context.Context, userID int) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

var _ repositories.ChatRepository = (*ChatRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.FriendRepository = (*FriendRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.SessionRepository = (*SessionRepositoryMock)(nil)
