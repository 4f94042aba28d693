package bus

import (
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe(TopicAgentAction)
	defer b.Unsubscribe(sub)

	b.Publish(TopicAgentAction, ActionEvent{Agent: "miner", Action: "gather_wood", Success: true})

	select {
	case event := <-sub.Ch():
		if event.Topic != TopicAgentAction {
			t.Fatalf("topic = %q", event.Topic)
		}
		ae, ok := event.Payload.(ActionEvent)
		if !ok || ae.Action != "gather_wood" {
			t.Fatalf("payload = %v", event.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_PrefixMatching(t *testing.T) {
	b := New()
	agentSub := b.Subscribe("agent.")
	defer b.Unsubscribe(agentSub)
	allSub := b.Subscribe("")
	defer b.Unsubscribe(allSub)

	b.Publish(TopicAgentThought, ThoughtEvent{Agent: "miner", Thought: "wood"})
	b.Publish(TopicSkillProgress, nil)

	select {
	case event := <-agentSub.Ch():
		if event.Topic != TopicAgentThought {
			t.Fatalf("topic = %q", event.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
	select {
	case event := <-agentSub.Ch():
		t.Fatalf("unexpected event on agent prefix: %v", event.Topic)
	case <-time.After(50 * time.Millisecond):
	}

	received := 0
	for i := 0; i < 2; i++ {
		select {
		case <-allSub.Ch():
			received++
		case <-time.After(time.Second):
			t.Fatal("timeout on all-sub")
		}
	}
	if received != 2 {
		t.Fatalf("allSub received %d, want 2", received)
	}
}

func TestBus_NonBlockingWhenFull(t *testing.T) {
	b := New()
	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)

	// Overflow the buffer; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBufferSize*2; i++ {
			b.Publish(TopicAgentVitals, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on full buffer")
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := New()
	sub := b.Subscribe("")
	b.Unsubscribe(sub)
	if _, ok := <-sub.Ch(); ok {
		t.Fatal("channel not closed")
	}
	// Double unsubscribe is a no-op.
	b.Unsubscribe(sub)
	if b.SubscriberCount() != 0 {
		t.Fatalf("subscriber count = %d", b.SubscriberCount())
	}
}
