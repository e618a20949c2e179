package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"chat-backend/internal/notify"
	"chat-backend/internal/observability"
	"chat-backend/internal/repositories"
	"chat-backend/internal/topics"
)

// outboundQueueSize bounds the per-session event queue. Publishers never
// block: when a queue is full the event is dropped and counted.
const outboundQueueSize = 64

// outbound is one item of the writer queue: either a pre-marshaled reply
// frame or a topic event that still needs subscription handling.
type outbound struct {
	frame []byte
	event *topics.Event
}

// Session owns one authenticated websocket connection. A single reader
// goroutine processes inbound frames one at a time and a single writer
// goroutine drains the outbound queue, so no two writes ever interleave.
// Subscription changes triggered by an event run on the writer goroutine,
// ordered around the delivery of the event that caused them.
type Session struct {
	conn       *websocket.Conn
	registry   *topics.Registry
	dispatcher *notify.Dispatcher

	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository

	userID int
	info   ConnInfo

	out  chan outbound
	done chan struct{}

	mu         sync.Mutex
	sessionKey string
	subscribed map[string]struct{}
	closed     bool
}

func newSession(conn *websocket.Conn, h *SessionHandler, userID int, sessionKey string, info ConnInfo) *Session {
	return &Session{
		conn:        conn,
		registry:    h.registry,
		dispatcher:  h.dispatcher,
		chatRepo:    h.chatRepo,
		messageRepo: h.messageRepo,
		userRepo:    h.userRepo,
		userID:      userID,
		sessionKey:  sessionKey,
		info:        info,
		out:         make(chan outbound, outboundQueueSize),
		done:        make(chan struct{}),
		subscribed:  make(map[string]struct{}),
	}
}

// subscribeInitial binds the session to its user, private-chat aggregate, and
// session topics plus one topic per group chat the user currently belongs to.
func (s *Session) subscribeInitial(ctx context.Context) error {
	chatIDs, err := s.chatRepo.ListGroupChatIDsForUser(ctx, s.userID)
	if err != nil {
		return err
	}

	s.subscribe(topics.UserTopic(s.userID))
	s.subscribe(topics.PrivateChatTopic(s.userID))
	s.subscribe(topics.SessionTopic(s.sessionKey))
	for _, chatID := range chatIDs {
		s.subscribe(topics.ChatTopic(chatID))
	}
	return nil
}

func (s *Session) subscribe(topic string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, ok := s.subscribed[topic]; ok {
		s.mu.Unlock()
		return
	}
	s.subscribed[topic] = struct{}{}
	s.mu.Unlock()

	s.registry.Subscribe(topic, s)
	observability.IncTopicSubscription("subscribe")
}

func (s *Session) unsubscribe(topic string) {
	s.mu.Lock()
	if _, ok := s.subscribed[topic]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.subscribed, topic)
	s.mu.Unlock()

	s.registry.Unsubscribe(topic, s)
	observability.IncTopicSubscription("unsubscribe")
}

// Deliver implements topics.Subscriber. It never blocks: a full queue drops
// the event and increments a counter instead.
func (s *Session) Deliver(topic string, ev topics.Event) {
	select {
	case s.out <- outbound{event: &ev}:
	default:
		observability.IncWSDroppedEvent()
		log.Printf("ws: conn %s dropped %s event, queue full", s.info.ConnID, ev.Action)
	}
}

// send queues a reply frame for the writer. It gives up when the session is
// shutting down rather than blocking the reader forever.
func (s *Session) send(frame []byte) {
	select {
	case s.out <- outbound{frame: frame}:
	case <-s.done:
	}
}

func (s *Session) sendResult(action string, data interface{}, requestID int) {
	payload, err := json.Marshal(resultFrame{Action: action, OK: true, Data: data, RequestID: requestID})
	if err != nil {
		log.Printf("ws: marshal %s result: %v", action, err)
		return
	}
	s.send(payload)
}

func (s *Session) sendError(message string, requestID int, code int) {
	payload, err := json.Marshal(errorFrame{Action: "error", OK: false, Code: code, Error: message, RequestID: requestID})
	if err != nil {
		log.Printf("ws: marshal error frame: %v", err)
		return
	}
	s.send(payload)
}

func (s *Session) readLoop() {
	defer s.teardown()
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleFrame(raw)
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case o := <-s.out:
			if o.event != nil {
				s.relayEvent(*o.event)
			} else {
				s.write(o.frame)
			}
		}
	}
}

func (s *Session) write(frame []byte) {
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Printf("ws: write to conn %s: %v", s.info.ConnID, err)
	}
}

// relayEvent pushes one topic event to the client and applies the
// subscription changes it implies. Changes that widen the set happen before
// the write so nothing published in between is missed; changes that narrow
// it happen after, so the triggering event is still delivered.
func (s *Session) relayEvent(ev topics.Event) {
	switch ev.Action {
	case "new_group_chat":
		s.subscribe(topics.ChatTopic(ev.ChatID))
	case "profile_change":
		if ev.SessionKey != "" {
			s.swapSessionKey(ev.SessionKey)
		}
	}

	payload, err := json.Marshal(resultFrame{Action: ev.Action, OK: true, Data: ev.Data, RequestID: 0})
	if err != nil {
		log.Printf("ws: marshal %s event: %v", ev.Action, err)
	} else {
		s.write(payload)
	}
	observability.IncWSEvent(ev.Action)

	switch ev.Action {
	case "member_deleted":
		if ev.UserID == s.userID {
			s.unsubscribe(topics.ChatTopic(ev.ChatID))
		}
	case "chat_deleted":
		s.unsubscribe(topics.ChatTopic(ev.ChatID))
	case "logout":
		s.conn.Close()
	}
}

// swapSessionKey rebinds the session topic after a key rotation. The new
// topic is joined before the old one is left so no event can fall between.
func (s *Session) swapSessionKey(newKey string) {
	s.mu.Lock()
	oldKey := s.sessionKey
	s.sessionKey = newKey
	s.mu.Unlock()

	if oldKey == newKey {
		return
	}
	s.subscribe(topics.SessionTopic(newKey))
	s.unsubscribe(topics.SessionTopic(oldKey))
}

// teardown releases every live subscription and stops the writer. It runs
// exactly once, when the reader exits.
func (s *Session) teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subscribed := make([]string, 0, len(s.subscribed))
	for topic := range s.subscribed {
		subscribed = append(subscribed, topic)
	}
	s.subscribed = nil
	s.mu.Unlock()

	for _, topic := range subscribed {
		s.registry.Unsubscribe(topic, s)
		observability.IncTopicSubscription("unsubscribe")
	}
	close(s.done)
	s.conn.Close()
}
