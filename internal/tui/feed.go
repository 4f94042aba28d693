// Package tui renders the local overlay: one panel per agent with its
// latest thought, action, vitals, and skill progress, plus a shared
// chat tail. All data arrives over the bus; the overlay never touches
// agent internals.
package tui

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/basket/voxmind/internal/bus"
	"github.com/basket/voxmind/internal/skills"
)

const chatTail = 8

// AgentStatus is one agent's panel state.
type AgentStatus struct {
	Name        string
	Thought     string
	Action      string
	Result      string
	Success     bool
	Health      int
	Food        int
	Skill       string
	SkillMsg    string
	SkillFrac   float64
	SkillActive bool
}

// Snapshot is everything the overlay draws.
type Snapshot struct {
	Agents []AgentStatus
	Chat   []string
}

// Feed accumulates bus events into drawable state.
type Feed struct {
	mu     sync.Mutex
	agents map[string]*AgentStatus
	chat   []string
}

func NewFeed() *Feed {
	return &Feed{agents: make(map[string]*AgentStatus)}
}

// Listen subscribes to all overlay topics and applies events until the
// context is cancelled.
func (f *Feed) Listen(ctx context.Context, b *bus.Bus) {
	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Ch():
			if !ok {
				return
			}
			f.apply(ev)
		}
	}
}

func (f *Feed) apply(ev bus.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch p := ev.Payload.(type) {
	case bus.ThoughtEvent:
		f.agent(p.Agent).Thought = p.Thought
	case bus.ActionEvent:
		a := f.agent(p.Agent)
		a.Action, a.Result, a.Success = p.Action, p.Result, p.Success
	case bus.VitalsEvent:
		a := f.agent(p.Agent)
		a.Health, a.Food = p.Health, p.Food
	case skills.Progress:
		a := f.agent(p.Agent)
		a.Skill, a.SkillMsg, a.SkillFrac, a.SkillActive = p.Skill, p.Message, p.Progress, p.Active
	case bus.ChatEvent:
		line := fmt.Sprintf("%s: %s", p.From, p.Text)
		if p.Outgoing {
			line = fmt.Sprintf("[%s] %s", p.Agent, p.Text)
		}
		f.chat = append(f.chat, line)
		if len(f.chat) > chatTail {
			f.chat = f.chat[len(f.chat)-chatTail:]
		}
	}
}

func (f *Feed) agent(name string) *AgentStatus {
	a, ok := f.agents[name]
	if !ok {
		a = &AgentStatus{Name: name, Health: 20, Food: 20}
		f.agents[name] = a
	}
	return a
}

// Snapshot returns a stable-order copy for rendering.
func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := Snapshot{Chat: append([]string(nil), f.chat...)}
	for _, a := range f.agents {
		out.Agents = append(out.Agents, *a)
	}
	sort.Slice(out.Agents, func(i, j int) bool { return out.Agents[i].Name < out.Agents[j].Name })
	return out
}
