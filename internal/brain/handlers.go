package brain

import (
	"context"
	"fmt"
	"strings"

	"github.com/basket/voxmind/internal/bus"
	"github.com/basket/voxmind/internal/decision"
	"github.com/basket/voxmind/internal/game"
	"github.com/basket/voxmind/internal/llm"
	"github.com/basket/voxmind/internal/safety"
	"github.com/basket/voxmind/internal/world"
)

// Generation tuning per handler.
const (
	strategicTemperature = 0.7
	reactiveTemperature  = 0.2
	criticTemperature    = 0.1
	chatTemperature      = 0.8

	reactiveMaxTokens = 128
	criticMaxTokens   = 256
	chatMaxTokens     = 80

	// recentLessons caps how many remembered lessons reach the prompt.
	recentLessons = 5
)

// chatModel routes every model call through the duration histogram.
func (b *Brain) chatModel(ctx context.Context, model string, messages []llm.Message, opts llm.Options) (string, error) {
	started := b.now()
	raw, err := b.LLM.Chat(ctx, model, messages, opts)
	if b.Metrics != nil {
		b.Metrics.LLMCallDuration.Record(context.Background(), b.now().Sub(started).Seconds())
	}
	return raw, err
}

// handleStrategic runs the safety overrides, then asks the strong model
// for the next move with the full world picture.
func (b *Brain) handleStrategic(ctx context.Context, e Event) {
	if b.safetyOverride(ctx) {
		return
	}

	messages := []llm.Message{
		{Role: "system", Content: b.strategicSystemPrompt()},
		{Role: "user", Content: b.strategicUserPrompt(e)},
	}
	raw, err := b.chatModel(ctx, b.LLM.StrongModel(), messages, llm.Options{Temperature: strategicTemperature})

	var dec decision.Decision
	if err != nil {
		b.logger().Warn("strategic model call failed", "agent", b.Agent, "error", err)
		dec = decision.SafeIdle()
	} else {
		dec = decision.Parse(raw)
	}

	if dec.Goal != "" {
		b.mu.Lock()
		b.goal = dec.Goal
		b.goalSteps = dec.GoalSteps
		if b.goalSteps <= 0 {
			b.goalSteps = defaultGoalSteps
		}
		b.mu.Unlock()
		b.logger().Info("new goal", "agent", b.Agent, "goal", dec.Goal, "steps", b.goalSteps)
	}

	b.publishThought(dec.Thought)
	b.dispatch(ctx, dec)
}

func (b *Brain) strategicSystemPrompt() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, an autonomous agent on a shared voxel-world server.\n", b.Agent)
	if b.Role.Personality != "" {
		fmt.Fprintf(&sb, "Personality: %s\n", b.Role.Personality)
	}
	if len(b.Role.Priorities) > 0 {
		sb.WriteString("Your priorities, in order:\n")
		for _, p := range b.Role.Priorities {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}
	sb.WriteString("\nReply with ONE JSON object: {\"thought\": \"...\", \"action\": \"...\", \"params\": {...}}.\n")
	sb.WriteString("Include \"goal\" and \"goal_steps\" only when adopting a new goal.\n")
	fmt.Fprintf(&sb, "\nAllowed actions: %s\n", strings.Join(b.Role.AllowedActions, ", "))
	if b.Registry != nil && len(b.Role.AllowedSkills) > 0 {
		sb.WriteString("Allowed skills (use the skill name as the action):\n")
		sb.WriteString(b.Registry.Describe(b.Role.AllowedSkills))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Brain) strategicUserPrompt(e Event) string {
	var sections []string

	sections = append(sections, world.Describe(b.Client, b.Mem))

	if b.Board != nil {
		sections = append(sections, "Teammates:\n"+b.Board.FormatFor(b.Agent))
	}
	if b.Tracker != nil {
		if block := b.Tracker.Format(); block != "" {
			sections = append(sections, block)
		}
	}
	if b.Dispatcher != nil {
		if hist := b.Dispatcher.History(); hist != "" {
			sections = append(sections, hist)
		}
		if last := b.Dispatcher.LastResult(); last != "" {
			sections = append(sections, "Last result: "+last)
		}
	}

	b.mu.Lock()
	goal, steps := b.goal, b.goalSteps
	b.mu.Unlock()
	if goal != "" {
		sections = append(sections, fmt.Sprintf("Current goal: %s (%d steps left)", goal, steps))
	}
	if b.Mem != nil {
		if season := b.Mem.SeasonGoal(); season != "" {
			sections = append(sections, "Season goal: "+season)
		}
		if lessons := b.Mem.Lessons(); len(lessons) > 0 {
			if len(lessons) > recentLessons {
				lessons = lessons[len(lessons)-recentLessons:]
			}
			sections = append(sections, "Lessons learned:\n- "+strings.Join(lessons, "\n- "))
		}
	}

	if chats := b.takePendingChats(); len(chats) > 0 {
		var sb strings.Builder
		sb.WriteString("Chat messages waiting:\n")
		for _, c := range chats {
			tier := ""
			if c.Paid {
				tier = " [paid]"
			}
			fmt.Fprintf(&sb, "- %s%s: %s\n", c.From, tier, c.Text)
		}
		sections = append(sections, strings.TrimRight(sb.String(), "\n"))
	}

	if d, ok := e.Payload.(DirectivePayload); ok && d.Text != "" {
		sections = append(sections, "Operator directive: "+d.Text)
	}

	if b.Role.Home != nil && b.Role.LeashRadius > 0 {
		home := b.Role.Home.Vec3()
		dist := b.Client.Position().HorizontalDistanceTo(home)
		if dist >= b.Role.LeashRadius*leashWarnFactor {
			sections = append(sections, fmt.Sprintf(
				"Warning: you are %d blocks from home %s, leash is %d. Head back soon.",
				int(dist), home, int(b.Role.LeashRadius)))
		}
	}
	if b.Role.Stash != nil {
		sections = append(sections, fmt.Sprintf("Your stash chest is at %s.", b.Role.Stash.Vec3()))
	}

	sections = append(sections, "What do you do next?")
	return strings.Join(sections, "\n\n")
}

// handleReactive asks the fast model for an emergency move from a small
// action subset. Anything outside the subset degrades to idle.
func (b *Brain) handleReactive(ctx context.Context, e Event) {
	allowed := []string{"attack", "flee", "eat", "idle"}
	if b.Neural.Available() {
		allowed = append(allowed, "neural_combat")
	}

	messages := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(
			"You are %s reacting to an emergency in a voxel world. Reply with ONE JSON object "+
				"{\"thought\": \"...\", \"action\": \"...\"}. The action MUST be one of: %s.",
			b.Agent, strings.Join(allowed, ", "))},
		{Role: "user", Content: b.situationLine(e)},
	}
	raw, err := b.chatModel(ctx, b.LLM.FastModel(), messages,
		llm.Options{Temperature: reactiveTemperature, NumPredict: reactiveMaxTokens})

	var dec decision.Decision
	if err != nil {
		b.logger().Warn("reactive model call failed", "agent", b.Agent, "error", err)
		dec = decision.SafeIdle()
	} else {
		dec = decision.Parse(raw)
	}
	if !containsString(allowed, dec.Action) {
		dec.Action = "idle"
	}

	b.publishThought(dec.Thought)
	b.dispatch(ctx, dec)
}

// situationLine compresses the emergency into one prompt line.
func (b *Brain) situationLine(e Event) string {
	var sb strings.Builder
	switch p := e.Payload.(type) {
	case ThreatPayload:
		if len(p.Hostiles) > 0 {
			h := p.Hostiles[0]
			fmt.Fprintf(&sb, "A %s is %d blocks away. ", h.Name, int(h.Pos.DistanceTo(b.Client.Position())))
			if len(p.Hostiles) > 1 {
				fmt.Fprintf(&sb, "%d more hostiles nearby. ", len(p.Hostiles)-1)
			}
		}
	case VitalsPayload:
		switch p.Cause {
		case "low_health":
			sb.WriteString("Your health is critically low. ")
		case "low_food":
			sb.WriteString("You are starving. ")
		case "took_damage":
			sb.WriteString("You just took damage from something. ")
		}
	}
	fmt.Fprintf(&sb, "Health %d/20, food %d/20.", b.Client.Health(), b.Client.Food())
	if gear := equipmentSummary(b.Client.Inventory()); gear != "" {
		sb.WriteString(" Carrying: " + gear + ".")
	}
	if food := foodSummary(b.Client.Inventory()); food != "" {
		sb.WriteString(" Food on hand: " + food + ".")
	}
	return sb.String()
}

func equipmentSummary(inv []game.Item) string {
	var parts []string
	for _, it := range inv {
		name := strings.ToLower(it.Name)
		if strings.HasSuffix(name, "_sword") || strings.HasSuffix(name, "_axe") ||
			name == "shield" || name == "bow" {
			parts = append(parts, it.Name)
		}
	}
	return strings.Join(parts, ", ")
}

// reactiveFoods mirrors the eat primitive's whitelist closely enough for
// a one-line summary.
var reactiveFoods = map[string]bool{
	"bread": true, "apple": true, "cooked_beef": true, "cooked_porkchop": true,
	"cooked_chicken": true, "cooked_mutton": true, "cooked_cod": true,
	"cooked_salmon": true, "baked_potato": true, "carrot": true,
	"golden_apple": true, "cookie": true, "melon_slice": true,
}

func foodSummary(inv []game.Item) string {
	var parts []string
	for _, it := range inv {
		if reactiveFoods[strings.ToLower(it.Name)] {
			parts = append(parts, fmt.Sprintf("%s×%d", it.Name, it.Count))
		}
	}
	return strings.Join(parts, ", ")
}

// handleCritic reviews the last action with the fast model and applies
// the chaining post-conditions.
func (b *Brain) handleCritic(ctx context.Context, e Event) {
	p, ok := e.Payload.(CriticPayload)
	if !ok {
		return
	}
	b.mu.Lock()
	goal, steps := b.goal, b.goalSteps
	b.mu.Unlock()

	var user strings.Builder
	fmt.Fprintf(&user, "Action: %s\nResult: %s\n", p.Action, p.Result)
	if goal != "" {
		fmt.Fprintf(&user, "Goal: %s (%d steps left)\n", goal, steps)
	} else {
		user.WriteString("Goal: none\n")
	}
	fmt.Fprintf(&user, "Health %d/20, food %d/20\n", b.Client.Health(), b.Client.Food())
	fmt.Fprintf(&user, "Inventory: %s", inventoryLine(b.Client.Inventory()))

	messages := []llm.Message{
		{Role: "system", Content: "You judge whether an agent's last action moved its goal forward. " +
			"Reply with ONE JSON object: {\"success\": true|false, \"thought\": \"...\", " +
			"\"next_action\": \"...\", \"next_params\": {...}, \"goal_complete\": true|false}. " +
			"Omit next_action unless one obvious step follows."},
		{Role: "user", Content: user.String()},
	}
	raw, err := b.chatModel(ctx, b.LLM.FastModel(), messages,
		llm.Options{Temperature: criticTemperature, NumPredict: criticMaxTokens})
	if err != nil {
		b.logger().Warn("critic model call failed", "agent", b.Agent, "error", err)
		return
	}
	obj, ok := decision.ExtractObject(raw)
	if !ok {
		b.logger().Warn("critic reply unparsable", "agent", b.Agent)
		return
	}

	success, _ := obj["success"].(bool)
	goalComplete, _ := obj["goal_complete"].(bool)
	if thought, ok := obj["thought"].(string); ok {
		b.publishThought(thought)
	}

	// Failed verdicts carry the critic's diagnosis; keep it as a lesson
	// for future strategic prompts.
	if !success && !goalComplete && b.Mem != nil {
		if thought, ok := obj["thought"].(string); ok && thought != "" {
			if err := b.Mem.RecordLesson(fmt.Sprintf("%s: %s", p.Action, thought)); err != nil {
				b.logger().Warn("record lesson", "agent", b.Agent, "error", err)
			}
		}
	}

	if goalComplete {
		b.mu.Lock()
		b.goal = ""
		b.goalSteps = 0
		b.mu.Unlock()
		b.logger().Info("goal complete", "agent", b.Agent, "goal", goal)
		b.pushAfter(goalCompleteReplanDelay, Event{Kind: KindStrategic, Priority: PriorityIdle})
		return
	}
	if success {
		next, _ := obj["next_action"].(string)
		if next == "" {
			return
		}
		params, _ := obj["next_params"].(map[string]any)
		if params == nil {
			params = map[string]any{}
		}
		thought, _ := obj["thought"].(string)
		b.dispatch(ctx, decision.Decision{Thought: thought, Action: next, Params: params})
		return
	}
	b.pushAfter(gatedReplanDelay, Event{Kind: KindStrategic, Priority: PriorityIdle})
}

func inventoryLine(inv []game.Item) string {
	if len(inv) == 0 {
		return "empty"
	}
	parts := make([]string, 0, len(inv))
	for _, it := range inv {
		parts = append(parts, fmt.Sprintf("%s×%d", it.Name, it.Count))
	}
	return strings.Join(parts, ", ")
}

// handleChat produces a raw in-character utterance, filters it, and
// speaks it to game chat.
func (b *Brain) handleChat(ctx context.Context, e Event) {
	p, ok := e.Payload.(ChatPayload)
	if !ok {
		return
	}
	activity := "just hanging around"
	if b.Dispatcher != nil {
		if last := b.Dispatcher.LastResult(); last != "" {
			activity = last
		}
	}

	system := fmt.Sprintf("You are %s, a player on a shared voxel-world server.", b.Agent)
	if b.Role.Personality != "" {
		system += " Personality: " + b.Role.Personality
	}
	system += " Reply with one short chat line, plain text, no JSON, no quotes."

	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: fmt.Sprintf("%s says: %q\nYou are currently: %s", p.From, p.Text, activity)},
	}
	raw, err := b.chatModel(ctx, b.LLM.FastModel(), messages,
		llm.Options{Temperature: chatTemperature, NumPredict: chatMaxTokens})
	if err != nil {
		b.logger().Warn("chat model call failed", "agent", b.Agent, "error", err)
		return
	}

	line := firstLine(raw)
	if line == "" {
		return
	}
	res := safety.FilterChatMessage(line)
	if res.Cleaned == "" {
		return
	}
	b.Client.SendChat(res.Cleaned)
	if b.Bus != nil {
		b.Bus.Publish(bus.TopicChatMessage, bus.ChatEvent{
			Agent: b.Agent, From: b.Agent, Text: res.Cleaned, Outgoing: true,
		})
	}
}

// firstLine trims a model reply down to one speakable chat line.
func firstLine(raw string) string {
	line := strings.TrimSpace(raw)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	line = strings.Trim(line, `"`)
	return line
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
