package brain

import "testing"

func TestQueue_PopsMostUrgentFirst(t *testing.T) {
	q := newQueue()
	q.Push(Event{Kind: KindStrategic, Priority: PriorityIdle})
	q.Push(Event{Kind: KindChat, Priority: PriorityChat})
	q.Push(Event{Kind: KindReactive, Priority: PriorityHostiles})

	order := []Kind{KindReactive, KindChat, KindStrategic}
	for _, want := range order {
		e, ok := q.Pop()
		if !ok {
			t.Fatalf("queue empty, want %s", want)
		}
		if e.Kind != want {
			t.Fatalf("popped %s, want %s", e.Kind, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("queue should be empty")
	}
}

func TestQueue_FIFOAmongEqualPriorities(t *testing.T) {
	q := newQueue()
	q.Push(Event{Kind: KindChat, Priority: 4})
	q.Push(Event{Kind: KindCritic, Priority: 4})

	first, _ := q.Pop()
	second, _ := q.Pop()
	if first.Kind != KindChat || second.Kind != KindCritic {
		t.Fatalf("order = %s, %s; want chat, critic", first.Kind, second.Kind)
	}
}

func TestQueue_DedupKeepsOnePerKind(t *testing.T) {
	q := newQueue()
	if !q.Push(Event{Kind: KindStrategic, Priority: PriorityIdle}) {
		t.Fatal("first push rejected")
	}
	if q.Push(Event{Kind: KindStrategic, Priority: PriorityIdle}) {
		t.Fatal("duplicate at equal priority accepted")
	}
	if q.Len() != 1 {
		t.Fatalf("len = %d, want 1", q.Len())
	}
}

func TestQueue_ReplacementOnlyWhenMoreUrgent(t *testing.T) {
	q := newQueue()
	q.Push(Event{Kind: KindStrategic, Priority: PriorityIdle})

	// Less urgent: dropped.
	if q.Push(Event{Kind: KindStrategic, Priority: PriorityIdle + 1}) {
		t.Fatal("less urgent replacement accepted")
	}
	// Strictly more urgent: replaces in place.
	if !q.Push(Event{Kind: KindStrategic, Priority: PriorityPaidChat, Payload: "paid"}) {
		t.Fatal("more urgent replacement rejected")
	}
	if q.Len() != 1 {
		t.Fatalf("len = %d, want 1", q.Len())
	}
	e, _ := q.Pop()
	if e.Priority != PriorityPaidChat || e.Payload != "paid" {
		t.Fatalf("popped %+v, want the replacement", e)
	}
}

func TestQueue_AssignsIDs(t *testing.T) {
	q := newQueue()
	q.Push(Event{Kind: KindChat, Priority: PriorityChat})
	e, _ := q.Pop()
	if e.ID == "" {
		t.Fatal("event ID not assigned")
	}
	if e.At.IsZero() {
		t.Fatal("event timestamp not assigned")
	}
}
