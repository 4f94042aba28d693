package brain

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/basket/voxmind/internal/game"
)

// Kind classifies an event and selects its handler.
type Kind string

const (
	KindStrategic Kind = "strategic"
	KindReactive  Kind = "reactive"
	KindCritic    Kind = "critic"
	KindChat      Kind = "chat"
)

// Event priorities. Smaller numbers are more urgent.
const (
	PriorityVitals   = 0 // critical health, damage taken
	PriorityHostiles = 1
	PriorityPaidChat = 1
	PriorityHunger   = 2
	PriorityCritic   = 3
	PriorityChat     = 4
	PriorityIdle     = 5
)

// Event is one unit of scheduler work.
type Event struct {
	Kind     Kind
	Priority int
	Payload  any
	At       time.Time
	ID       string // uuid, for audit correlation

	seq uint64
}

// ChatPayload is a viewer or teammate message awaiting a reply.
type ChatPayload struct {
	From string
	Text string
	Paid bool
}

// ThreatPayload carries the hostile snapshot from the scanner.
type ThreatPayload struct {
	Hostiles []game.Entity
}

// VitalsPayload carries the observation that tripped the vitals or damage
// watcher.
type VitalsPayload struct {
	Health int
	Food   int
	Cause  string // "low_health", "low_food", "took_damage"
}

// CriticPayload is the action under post-hoc review.
type CriticPayload struct {
	Action  string
	Result  string
	Success bool
}

// DirectivePayload carries a scheduled operator directive into the
// strategic prompt.
type DirectivePayload struct {
	Text string
}

// queue holds pending events with per-kind deduplication: at most one
// pending event of each kind, and a push replaces the pending one only
// when strictly more urgent. Safe for concurrent use.
type queue struct {
	mu    sync.Mutex
	items []Event
	seq   uint64
}

func newQueue() *queue { return &queue{} }

// Push enqueues an event, applying the dedup rule. Reports whether the
// event was accepted.
func (q *queue) Push(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	e.seq = q.seq
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	for i, cur := range q.items {
		if cur.Kind != e.Kind {
			continue
		}
		if e.Priority < cur.Priority {
			q.items[i] = e
			return true
		}
		return false
	}
	q.items = append(q.items, e)
	return true
}

// Pop removes and returns the most urgent event, FIFO among equal
// priorities.
func (q *queue) Pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Event{}, false
	}
	best := 0
	for i := 1; i < len(q.items); i++ {
		if q.items[i].Priority < q.items[best].Priority ||
			(q.items[i].Priority == q.items[best].Priority && q.items[i].seq < q.items[best].seq) {
			best = i
		}
	}
	e := q.items[best]
	q.items = append(q.items[:best], q.items[best+1:]...)
	return e, true
}

// Len returns the number of pending events.
func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
