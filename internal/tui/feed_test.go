package tui

import (
	"testing"

	"github.com/basket/voxmind/internal/bus"
	"github.com/basket/voxmind/internal/skills"
)

func TestFeed_AccumulatesAgentState(t *testing.T) {
	f := NewFeed()
	f.apply(bus.Event{Topic: bus.TopicAgentThought, Payload: bus.ThoughtEvent{Agent: "miner", Thought: "need wood"}})
	f.apply(bus.Event{Topic: bus.TopicAgentAction, Payload: bus.ActionEvent{Agent: "miner", Action: "gather_wood", Result: "Gathered 5 logs", Success: true}})
	f.apply(bus.Event{Topic: bus.TopicAgentVitals, Payload: bus.VitalsEvent{Agent: "miner", Health: 14, Food: 9}})
	f.apply(bus.Event{Topic: bus.TopicSkillProgress, Payload: skills.Progress{Agent: "miner", Skill: "build_farm", Progress: 0.4, Message: "tilling", Active: true}})

	snap := f.Snapshot()
	if len(snap.Agents) != 1 {
		t.Fatalf("agents = %d, want 1", len(snap.Agents))
	}
	a := snap.Agents[0]
	if a.Name != "miner" || a.Thought != "need wood" || a.Action != "gather_wood" || !a.Success {
		t.Fatalf("agent state = %+v", a)
	}
	if a.Health != 14 || a.Food != 9 {
		t.Fatalf("vitals = %d/%d", a.Health, a.Food)
	}
	if a.Skill != "build_farm" || !a.SkillActive || a.SkillFrac != 0.4 {
		t.Fatalf("skill state = %+v", a)
	}
}

func TestFeed_AgentsSortedByName(t *testing.T) {
	f := NewFeed()
	f.apply(bus.Event{Topic: bus.TopicAgentThought, Payload: bus.ThoughtEvent{Agent: "scout", Thought: "b"}})
	f.apply(bus.Event{Topic: bus.TopicAgentThought, Payload: bus.ThoughtEvent{Agent: "miner", Thought: "a"}})

	snap := f.Snapshot()
	if len(snap.Agents) != 2 || snap.Agents[0].Name != "miner" || snap.Agents[1].Name != "scout" {
		t.Fatalf("order = %+v", snap.Agents)
	}
}

func TestFeed_ChatTailCapped(t *testing.T) {
	f := NewFeed()
	for i := 0; i < chatTail+4; i++ {
		f.apply(bus.Event{Topic: bus.TopicChatMessage, Payload: bus.ChatEvent{From: "bob", Text: "hi"}})
	}
	f.apply(bus.Event{Topic: bus.TopicChatMessage, Payload: bus.ChatEvent{Agent: "miner", Text: "on it", Outgoing: true}})

	snap := f.Snapshot()
	if len(snap.Chat) != chatTail {
		t.Fatalf("chat tail = %d, want %d", len(snap.Chat), chatTail)
	}
	if last := snap.Chat[len(snap.Chat)-1]; last != "[miner] on it" {
		t.Fatalf("outgoing line = %q", last)
	}
}
