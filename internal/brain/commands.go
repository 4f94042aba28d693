package brain

import (
	"context"
	"fmt"
	"strings"
)

// handleCommand intercepts operator chat commands before chat ingestion.
// Returns true when the line was a command and must not reach the chat
// handler.
func (b *Brain) handleCommand(ctx context.Context, from, text string) bool {
	line := strings.TrimSpace(text)
	switch {
	case line == "/eval":
		b.Client.SendChat("Usage: /eval <skill> or /eval all [filter]")
		return true
	case strings.HasPrefix(line, "/eval all"):
		filter := strings.TrimSpace(strings.TrimPrefix(line, "/eval all"))
		b.evalAll(ctx, filter)
		return true
	case strings.HasPrefix(line, "/eval "):
		name := strings.TrimSpace(strings.TrimPrefix(line, "/eval "))
		b.evalSkill(ctx, name)
		return true
	case line == "!goal" || strings.HasPrefix(line, "!goal "):
		b.goalCommand(strings.TrimSpace(strings.TrimPrefix(line, "!goal")))
		return true
	}
	return false
}

// evalSkill runs one skill directly, bypassing the model. Test tooling
// for skill authors; results go to game chat.
func (b *Brain) evalSkill(ctx context.Context, name string) {
	if b.Registry == nil || b.Executor == nil {
		return
	}
	skill, ok := b.Registry.Get(name)
	if !ok {
		b.Client.SendChat("Unknown skill: " + name)
		return
	}
	b.Client.SendChat("Running " + name)
	b.logger().Info("eval skill", "agent", b.Agent, "skill", name)
	started := b.now()
	res := b.Executor.Run(ctx, skill, map[string]any{})
	b.Client.SendChat(fmt.Sprintf("%s: %s (%.1fs)", name, res.Message, b.now().Sub(started).Seconds()))
}

func (b *Brain) evalAll(ctx context.Context, filter string) {
	if b.Registry == nil {
		return
	}
	ran := 0
	for _, name := range b.Registry.Names() {
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}
		b.evalSkill(ctx, name)
		ran++
	}
	if ran == 0 {
		msg := "No skills registered"
		if filter != "" {
			msg = "No skills match " + filter
		}
		b.Client.SendChat(msg)
	}
}

func (b *Brain) goalCommand(rest string) {
	if b.Mem == nil {
		return
	}
	switch {
	case strings.HasPrefix(rest, "set "):
		goal := strings.TrimSpace(strings.TrimPrefix(rest, "set "))
		if err := b.Mem.SetSeasonGoal(goal); err != nil {
			b.logger().Warn("set season goal", "agent", b.Agent, "error", err)
			b.Client.SendChat("Could not save the goal")
			return
		}
		b.Client.SendChat("Season goal set: " + goal)
		b.TriggerReplan()
	case rest == "clear":
		if err := b.Mem.SetSeasonGoal(""); err != nil {
			b.logger().Warn("clear season goal", "agent", b.Agent, "error", err)
			return
		}
		b.Client.SendChat("Season goal cleared")
	case rest == "show" || rest == "":
		if goal := b.Mem.SeasonGoal(); goal != "" {
			b.Client.SendChat("Season goal: " + goal)
		} else {
			b.Client.SendChat("No season goal set")
		}
	default:
		b.Client.SendChat("Usage: !goal set <text> | !goal clear | !goal show")
	}
}
