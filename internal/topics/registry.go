package topics

import (
	"fmt"
	"sync"
)

// Event is a topic-addressed payload delivered to subscribed connections.
// Action and Data form the client-visible frame. The remaining fields are
// routing metadata consumed by a session's own subscription reactions and are
// never serialized to the client.
type Event struct {
	Action string
	Data   any

	ChatID     int
	UserID     int
	SessionKey string
}

// Subscriber receives events published to topics it subscribed to.
// Deliver must not block the publisher; implementations queue or drop.
type Subscriber interface {
	Deliver(topic string, ev Event)
}

// Registry maps topic names to the set of currently subscribed connections.
// Delivery is at-most-once and best-effort: publishing to a topic with no
// subscribers is a silent no-op.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]map[Subscriber]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{topics: make(map[string]map[Subscriber]struct{})}
}

// Subscribe adds the subscriber to the topic, creating the topic on first use.
func (r *Registry) Subscribe(topic string, s Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.topics[topic]
	if !ok {
		subs = make(map[Subscriber]struct{})
		r.topics[topic] = subs
	}
	subs[s] = struct{}{}
}

// Unsubscribe removes the subscriber from the topic, dropping the topic once
// its subscriber set is empty.
func (r *Registry) Unsubscribe(topic string, s Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subs, ok := r.topics[topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(r.topics, topic)
		}
	}
}

// Publish delivers the event to every subscriber of the topic. The subscriber
// snapshot is taken under the lock; delivery happens outside it so a slow
// subscriber cannot stall concurrent subscribe/unsubscribe calls.
func (r *Registry) Publish(topic string, ev Event) {
	r.mu.RLock()
	snapshot := make([]Subscriber, 0, len(r.topics[topic]))
	for s := range r.topics[topic] {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	for _, s := range snapshot {
		s.Deliver(topic, ev)
	}
}

// SubscriberCount reports the current number of subscribers on a topic.
func (r *Registry) SubscriberCount(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

// Topic name constructors. Every subscription and publish goes through these
// so the key format lives in one place.

func UserTopic(userID int) string {
	return fmt.Sprintf("user:%d", userID)
}

func SessionTopic(sessionKey string) string {
	return fmt.Sprintf("session:%s", sessionKey)
}

func PrivateChatTopic(userID int) string {
	return fmt.Sprintf("private-chat:%d", userID)
}

func ChatTopic(chatID int) string {
	return fmt.Sprintf("chat:%d", chatID)
}
