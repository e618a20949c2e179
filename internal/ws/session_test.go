package ws

import (
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/mocks"
	"chat-backend/internal/models"
	"chat-backend/internal/notify"
	"chat-backend/internal/repositories"
	"chat-backend/internal/topics"
)

type wsFixture struct {
	server     *httptest.Server
	registry   *topics.Registry
	dispatcher *notify.Dispatcher

	sessions *mocks.SessionRepositoryMock
	chats    *mocks.ChatRepositoryMock
	messages *mocks.MessageRepositoryMock
	users    *mocks.UserRepositoryMock
}

func newWSFixture(t *testing.T) *wsFixture {
	gin.SetMode(gin.TestMode)

	f := &wsFixture{
		registry: topics.NewRegistry(),
		sessions: new(mocks.SessionRepositoryMock),
		chats:    new(mocks.ChatRepositoryMock),
		messages: new(mocks.MessageRepositoryMock),
		users:    new(mocks.UserRepositoryMock),
	}
	f.dispatcher = notify.NewDispatcher(f.registry)

	handler := NewSessionHandler(f.registry, f.dispatcher, f.sessions, f.chats, f.messages, f.users)
	router := gin.New()
	router.GET("/ws", handler.Handle)

	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

// authAs wires up a valid session for the given user with no group chats.
func (f *wsFixture) authAs(userID int, key string) {
	f.sessions.On("GetByKey", mock.Anything, key).Return(models.Session{Key: key, UserID: userID}, nil)
	f.chats.On("ListGroupChatIDsForUser", mock.Anything, userID).Return([]int{}, nil)
}

func (f *wsFixture) dial(t *testing.T, token string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func sendRaw(t *testing.T, conn *websocket.Conn, payload string) {
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func TestAnonymousConnectionRejected(t *testing.T) {
	f := newWSFixture(t)

	conn := f.dial(t, "")
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["action"])
	assert.Equal(t, float64(403), frame["code"])
	assert.Equal(t, "User is not authenticated", frame["error"])

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection must be closed after the 403 frame")
}

func TestUnknownTokenRejected(t *testing.T) {
	f := newWSFixture(t)
	f.sessions.On("GetByKey", mock.Anything, "bogus").Return(nil, repositories.ErrSessionNotFound)

	conn := f.dial(t, "bogus")
	frame := readFrame(t, conn)
	assert.Equal(t, float64(403), frame["code"])
}

func TestPingEchoesRequestID(t *testing.T) {
	f := newWSFixture(t)
	f.authAs(1, "tok")

	conn := f.dial(t, "tok")
	sendRaw(t, conn, `{"action":"ping","request_id":114514}`)

	frame := readFrame(t, conn)
	assert.Equal(t, "pong", frame["action"])
	assert.Equal(t, true, frame["ok"])
	assert.Nil(t, frame["data"])
	assert.Equal(t, float64(114514), frame["request_id"])
}

func TestProtocolErrorsKeepConnectionOpen(t *testing.T) {
	f := newWSFixture(t)
	f.authAs(1, "tok")

	conn := f.dial(t, "tok")

	tests := []struct {
		raw           string
		wantError     string
		wantRequestID float64
	}{
		{`{"action":`, "Malformed JSON content", 0},
		{`[1,2]`, "Invalid JSON content", 0},
		{`{"action":"ping","request_id":"x"}`, "Invalid request_id", 0},
		{`{"request_id":7}`, "No action specified", 0},
		{`{"action":7,"request_id":9}`, "Invalid action type", 9},
		{`{"action":"dance","request_id":3}`, "Unknown action: dance", 3},
	}
	for _, tt := range tests {
		sendRaw(t, conn, tt.raw)
		frame := readFrame(t, conn)
		assert.Equal(t, "error", frame["action"], tt.raw)
		assert.Equal(t, false, frame["ok"], tt.raw)
		assert.Equal(t, float64(400), frame["code"], tt.raw)
		assert.Equal(t, tt.wantError, frame["error"], tt.raw)
		assert.Equal(t, tt.wantRequestID, frame["request_id"], tt.raw)
	}

	// The session survives all of the rejections above.
	sendRaw(t, conn, `{"action":"ping","request_id":1}`)
	assert.Equal(t, "pong", readFrame(t, conn)["action"])
}

func TestSendMessageUnknownChat(t *testing.T) {
	f := newWSFixture(t)
	f.authAs(1, "tok")
	f.chats.On("GetChat", mock.Anything, 999).Return(nil, repositories.ErrChatNotFound)

	conn := f.dial(t, "tok")
	sendRaw(t, conn, `{"action":"send_message","request_id":5,"data":{"chat_id":999,"content":"hi"}}`)

	frame := readFrame(t, conn)
	assert.Equal(t, float64(400), frame["code"])
	assert.Equal(t, "Invalid chat_id", frame["error"])
	assert.Equal(t, float64(5), frame["request_id"])
}

func TestSendMessageNonMember(t *testing.T) {
	f := newWSFixture(t)
	f.authAs(1, "tok")
	f.chats.On("GetChat", mock.Anything, 10).Return(models.Chat{ID: 10, Name: "g", OwnerID: 2, Members: []int{2, 3}}, nil)

	conn := f.dial(t, "tok")
	sendRaw(t, conn, `{"action":"send_message","data":{"chat_id":10,"content":"hi"}}`)

	frame := readFrame(t, conn)
	assert.Equal(t, "User is not a member of the chat", frame["error"])
}

func TestSendMessageEmptyContent(t *testing.T) {
	f := newWSFixture(t)
	f.authAs(1, "tok")
	f.chats.On("GetChat", mock.Anything, 10).Return(models.Chat{ID: 10, OwnerID: 1, Members: []int{1, 2}}, nil)

	conn := f.dial(t, "tok")
	sendRaw(t, conn, `{"action":"send_message","data":{"chat_id":10,"content":""}}`)

	frame := readFrame(t, conn)
	assert.Equal(t, "Message cannot be empty", frame["error"])
}

func TestSendMessageDeliversAndMarksRead(t *testing.T) {
	f := newWSFixture(t)
	f.authAs(1, "tok")

	chat := models.Chat{ID: 10, Name: "", OwnerID: 1, Members: []int{1, 2}}
	msg := models.Message{
		ID:       50,
		ChatID:   10,
		SenderID: sql.NullInt64{Int64: 1, Valid: true},
		Content:  "hi",
		SentAt:   time.Now(),
	}
	f.chats.On("GetChat", mock.Anything, 10).Return(chat, nil)
	f.messages.On("CreateMessage", mock.Anything, 10, mock.Anything, models.UserKindNormal, "hi", mock.Anything).Return(msg, nil)
	f.users.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, UserName: "alice"}, nil)
	f.messages.On("MarkChatRead", mock.Anything, 10, 1).Return(nil)

	conn := f.dial(t, "tok")
	sendRaw(t, conn, `{"action":"send_message","data":{"chat_id":10,"content":"hi"}}`)

	// The sender's own session subscribes private-chat:1, so the new
	// message comes back, followed by the implicit read-cursor sync.
	first := readFrame(t, conn)
	require.Equal(t, "new_message", first["action"])
	data := first["data"].(map[string]interface{})
	message := data["message"].(map[string]interface{})
	assert.Equal(t, float64(50), message["message_id"])
	assert.Equal(t, "hi", message["content"])
	assert.Equal(t, "alice", message["sender"].(map[string]interface{})["user_name"])

	second := readFrame(t, conn)
	assert.Equal(t, "messages_read", second["action"])

	f.messages.AssertCalled(t, "MarkChatRead", mock.Anything, 10, 1)
}

func TestSendMessageReplyToOtherChatRejected(t *testing.T) {
	f := newWSFixture(t)
	f.authAs(1, "tok")
	f.chats.On("GetChat", mock.Anything, 10).Return(models.Chat{ID: 10, OwnerID: 1, Members: []int{1, 2}}, nil)
	f.messages.On("GetMessage", mock.Anything, 77).Return(models.Message{ID: 77, ChatID: 11}, nil)

	conn := f.dial(t, "tok")
	sendRaw(t, conn, `{"action":"send_message","data":{"chat_id":10,"content":"hi","reply_to":77}}`)

	frame := readFrame(t, conn)
	assert.Equal(t, "Invalid reply_to", frame["error"])
}

func TestRecallRequiresSender(t *testing.T) {
	f := newWSFixture(t)
	f.authAs(1, "tok")
	f.messages.On("GetMessage", mock.Anything, 50).Return(models.Message{
		ID:       50,
		ChatID:   10,
		SenderID: sql.NullInt64{Int64: 2, Valid: true},
	}, nil)

	conn := f.dial(t, "tok")
	sendRaw(t, conn, `{"action":"recall_message","request_id":8,"data":{"message_id":50}}`)

	frame := readFrame(t, conn)
	assert.Equal(t, float64(400), frame["code"])
	assert.Equal(t, "You are not the sender of the message", frame["error"])
	assert.Equal(t, float64(8), frame["request_id"])
}

func TestRecallOfRecalledMessageRejected(t *testing.T) {
	f := newWSFixture(t)
	f.authAs(1, "tok")
	// A recalled message has no sender anymore, so even the original
	// author fails the sender check.
	f.messages.On("GetMessage", mock.Anything, 50).Return(models.Message{
		ID:       50,
		ChatID:   10,
		Recalled: true,
		Content:  models.RecalledPlaceholder,
	}, nil)

	conn := f.dial(t, "tok")
	sendRaw(t, conn, `{"action":"recall_message","data":{"message_id":50}}`)

	frame := readFrame(t, conn)
	assert.Equal(t, "You are not the sender of the message", frame["error"])
}

func TestRecallDeleteFlagOnlyAffectsCaller(t *testing.T) {
	f := newWSFixture(t)
	f.authAs(1, "tok")
	f.messages.On("GetMessage", mock.Anything, 50).Return(models.Message{
		ID:       50,
		ChatID:   10,
		SenderID: sql.NullInt64{Int64: 2, Valid: true},
	}, nil)
	f.messages.On("DeleteForViewer", mock.Anything, 50, 1).Return(nil)

	conn := f.dial(t, "tok")
	sendRaw(t, conn, `{"action":"recall_message","data":{"message_id":50,"delete":true}}`)

	frame := readFrame(t, conn)
	assert.Equal(t, "message_deleted", frame["action"])
	data := frame["data"].(map[string]interface{})
	assert.Equal(t, float64(50), data["message_id"])

	f.messages.AssertCalled(t, "DeleteForViewer", mock.Anything, 50, 1)
	f.messages.AssertNotCalled(t, "RecallMessage", mock.Anything, 50)
}

func TestMessagesReadRequiresMembership(t *testing.T) {
	f := newWSFixture(t)
	f.authAs(1, "tok")
	f.chats.On("GetChat", mock.Anything, 10).Return(models.Chat{ID: 10, OwnerID: 2, Members: []int{2, 3}}, nil)

	conn := f.dial(t, "tok")
	sendRaw(t, conn, `{"action":"messages_read","data":{"chat_id":10}}`)

	frame := readFrame(t, conn)
	assert.Equal(t, "User is not a member of the chat", frame["error"])
}

func TestNewGroupChatEventSubscribesChatTopic(t *testing.T) {
	f := newWSFixture(t)
	f.authAs(1, "tok")

	conn := f.dial(t, "tok")
	require.Eventually(t, func() bool {
		return f.registry.SubscriberCount(topics.UserTopic(1)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	chat := models.Chat{ID: 20, Name: "g", OwnerID: 1, Members: []int{1, 2}}
	f.dispatcher.NewChat(chat)

	frame := readFrame(t, conn)
	assert.Equal(t, "new_group_chat", frame["action"])

	// The session joined the chat topic before the event was written out.
	assert.Equal(t, 1, f.registry.SubscriberCount(topics.ChatTopic(20)))
}

func TestChatDeletedEventUnsubscribes(t *testing.T) {
	f := newWSFixture(t)
	f.sessions.On("GetByKey", mock.Anything, "tok").Return(models.Session{Key: "tok", UserID: 1}, nil)
	f.chats.On("ListGroupChatIDsForUser", mock.Anything, 1).Return([]int{20}, nil)

	conn := f.dial(t, "tok")
	require.Eventually(t, func() bool {
		return f.registry.SubscriberCount(topics.ChatTopic(20)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	chat := models.Chat{ID: 20, Name: "g", OwnerID: 2, Members: []int{1, 2}}
	f.dispatcher.ChatToBeDeleted(chat)

	frame := readFrame(t, conn)
	assert.Equal(t, "chat_deleted", frame["action"])

	require.Eventually(t, func() bool {
		return f.registry.SubscriberCount(topics.ChatTopic(20)) == 0
	}, 2*time.Second, 10*time.Millisecond, "chat topic must be dropped after delivery")
}

func TestMemberDeletedOnlyUnsubscribesRemovedUser(t *testing.T) {
	f := newWSFixture(t)
	f.sessions.On("GetByKey", mock.Anything, "tok").Return(models.Session{Key: "tok", UserID: 1}, nil)
	f.chats.On("ListGroupChatIDsForUser", mock.Anything, 1).Return([]int{20}, nil)

	conn := f.dial(t, "tok")
	require.Eventually(t, func() bool {
		return f.registry.SubscriberCount(topics.ChatTopic(20)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	chat := models.Chat{ID: 20, Name: "g", OwnerID: 1, Members: []int{1, 2}}

	// Someone else is removed: the event is delivered but this session
	// stays on the topic.
	f.dispatcher.ChatMemberToBeRemoved(chat, 2)
	frame := readFrame(t, conn)
	assert.Equal(t, "member_deleted", frame["action"])
	assert.Equal(t, 1, f.registry.SubscriberCount(topics.ChatTopic(20)))

	// Now this user is removed: delivered first, then unsubscribed.
	f.dispatcher.ChatMemberToBeRemoved(chat, 1)
	frame = readFrame(t, conn)
	assert.Equal(t, "member_deleted", frame["action"])
	require.Eventually(t, func() bool {
		return f.registry.SubscriberCount(topics.ChatTopic(20)) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLogoutEventClosesConnection(t *testing.T) {
	f := newWSFixture(t)
	f.authAs(1, "tok")

	conn := f.dial(t, "tok")
	require.Eventually(t, func() bool {
		return f.registry.SubscriberCount(topics.SessionTopic("tok")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.dispatcher.Logout("tok")

	frame := readFrame(t, conn)
	assert.Equal(t, "logout", frame["action"])

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server must close after delivering logout")

	// Every subscription is released on teardown.
	require.Eventually(t, func() bool {
		return f.registry.SubscriberCount(topics.UserTopic(1)) == 0 &&
			f.registry.SubscriberCount(topics.SessionTopic("tok")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProfileChangeSwapsSessionTopic(t *testing.T) {
	f := newWSFixture(t)
	f.authAs(1, "old-key")

	conn := f.dial(t, "old-key")
	require.Eventually(t, func() bool {
		return f.registry.SubscriberCount(topics.SessionTopic("old-key")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.dispatcher.ProfileChange(1, "new-key")

	frame := readFrame(t, conn)
	assert.Equal(t, "profile_change", frame["action"])

	assert.Equal(t, 1, f.registry.SubscriberCount(topics.SessionTopic("new-key")))
	assert.Equal(t, 0, f.registry.SubscriberCount(topics.SessionTopic("old-key")))

	// Only the rotated key can force a logout now.
	f.dispatcher.Logout("old-key")
	sendRaw(t, conn, `{"action":"ping","request_id":2}`)
	assert.Equal(t, "pong", readFrame(t, conn)["action"])
}

func TestDisconnectReleasesAllSubscriptions(t *testing.T) {
	f := newWSFixture(t)
	f.sessions.On("GetByKey", mock.Anything, "tok").Return(models.Session{Key: "tok", UserID: 1}, nil)
	f.chats.On("ListGroupChatIDsForUser", mock.Anything, 1).Return([]int{20, 21}, nil)

	conn := f.dial(t, "tok")
	require.Eventually(t, func() bool {
		return f.registry.SubscriberCount(topics.ChatTopic(21)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return f.registry.SubscriberCount(topics.UserTopic(1)) == 0 &&
			f.registry.SubscriberCount(topics.PrivateChatTopic(1)) == 0 &&
			f.registry.SubscriberCount(topics.SessionTopic("tok")) == 0 &&
			f.registry.SubscriberCount(topics.ChatTopic(20)) == 0 &&
			f.registry.SubscriberCount(topics.ChatTopic(21)) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDeliverDropsEventWhenQueueFull(t *testing.T) {
	s := &Session{
		out:        make(chan outbound, outboundQueueSize),
		done:       make(chan struct{}),
		subscribed: make(map[string]struct{}),
		info:       ConnInfo{ConnID: "conn-full"},
	}
	for i := 0; i < outboundQueueSize; i++ {
		s.out <- outbound{frame: []byte(`{}`)}
	}

	delivered := make(chan struct{})
	go func() {
		s.Deliver(topics.UserTopic(1), topics.Event{Action: "new_message"})
		close(delivered)
	}()

	select {
	case <-delivered:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Deliver blocked on a full outbound queue")
	}
	assert.Equal(t, outboundQueueSize, len(s.out))
}
