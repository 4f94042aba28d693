// Package bus is the in-process pub/sub backbone feeding the overlay and
// any other passive observers. Delivery is best-effort: slow consumers
// miss events rather than stalling an agent.
package bus

import (
	"strings"
	"sync"
)

const defaultBufferSize = 100

// Event is a message published on the bus.
type Event struct {
	Topic   string
	Payload any
}

// Overlay event topics.
const (
	TopicAgentThought  = "agent.thought"
	TopicAgentAction   = "agent.action"
	TopicSkillProgress = "skill.progress"
	TopicChatMessage   = "chat.message"
	TopicAgentVitals   = "agent.vitals"
)

// ThoughtEvent is published when a handler produces a new thought.
type ThoughtEvent struct {
	Agent   string
	Thought string
}

// ActionEvent is published after every dispatched action.
type ActionEvent struct {
	Agent   string
	Action  string
	Result  string
	Success bool
}

// VitalsEvent is published on health or food changes.
type VitalsEvent struct {
	Agent  string
	Health int
	Food   int
}

// ChatEvent is published for chat lines in either direction.
type ChatEvent struct {
	Agent    string
	From     string
	Text     string
	Outgoing bool
}

// Subscription is an active subscription.
type Subscription struct {
	id     int
	prefix string
	ch     chan Event
}

// Ch returns the channel to receive events on.
func (s *Subscription) Ch() <-chan Event { return s.ch }

// Bus is a topic-prefix pub/sub bus.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*Subscription
	nextID int
}

func New() *Bus {
	return &Bus{subs: make(map[int]*Subscription)}
}

// Subscribe creates a subscription matching the given topic prefix. An
// empty prefix matches everything. The channel is buffered; full buffers
// drop events.
func (b *Bus) Subscribe(topicPrefix string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		prefix: topicPrefix,
		ch:     make(chan Event, defaultBufferSize),
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
}

// Publish sends an event to all matching subscribers without blocking.
func (b *Bus) Publish(topic string, payload any) {
	event := Event{Topic: topic, Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.prefix == "" || strings.HasPrefix(topic, sub.prefix) {
			select {
			case sub.ch <- event:
			default:
				// Buffer full; the overlay can afford to miss frames.
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
