package brain

import (
	"context"
	"strings"
	"testing"

	"github.com/basket/voxmind/internal/game/gametest"
	"github.com/basket/voxmind/internal/skills"
)

func TestHandleCommand_GoalLifecycle(t *testing.T) {
	fake := gametest.New()
	b := newBrain(t, fake, scriptedLLM(t, nil))
	ctx := context.Background()

	if !b.handleCommand(ctx, "op", "!goal set beat the dragon") {
		t.Fatal("set not intercepted")
	}
	if got := b.Mem.SeasonGoal(); got != "beat the dragon" {
		t.Fatalf("season goal = %q", got)
	}
	// Setting a goal forces a re-plan.
	if e, ok := b.queue.Pop(); !ok || e.Kind != KindStrategic {
		t.Fatalf("expected strategic replan, got %+v ok=%v", e, ok)
	}

	b.handleCommand(ctx, "op", "!goal show")
	if last := fake.ChatLog[len(fake.ChatLog)-1]; !strings.Contains(last, "beat the dragon") {
		t.Fatalf("show reply = %q", last)
	}

	b.handleCommand(ctx, "op", "!goal clear")
	if got := b.Mem.SeasonGoal(); got != "" {
		t.Fatalf("season goal after clear = %q", got)
	}

	b.handleCommand(ctx, "op", "!goal")
	if last := fake.ChatLog[len(fake.ChatLog)-1]; last != "No season goal set" {
		t.Fatalf("bare !goal reply = %q", last)
	}
}

func TestHandleCommand_EvalSkill(t *testing.T) {
	fake := gametest.New()
	b := newBrain(t, fake, scriptedLLM(t, nil))
	if err := b.Registry.Register(&stubSkill{
		name: "pillar", result: skills.Result{Success: true, Message: "Built a pillar"},
	}); err != nil {
		t.Fatal(err)
	}

	if !b.handleCommand(context.Background(), "op", "/eval pillar") {
		t.Fatal("eval not intercepted")
	}
	joined := strings.Join(fake.ChatLog, "\n")
	if !strings.Contains(joined, "Running pillar") || !strings.Contains(joined, "pillar: Built a pillar") {
		t.Fatalf("chat log = %v", fake.ChatLog)
	}

	b.handleCommand(context.Background(), "op", "/eval nope")
	if last := fake.ChatLog[len(fake.ChatLog)-1]; last != "Unknown skill: nope" {
		t.Fatalf("unknown skill reply = %q", last)
	}
}

func TestHandleCommand_EvalAllWithFilter(t *testing.T) {
	fake := gametest.New()
	b := newBrain(t, fake, scriptedLLM(t, nil))
	for _, name := range []string{"build_hut", "build_wall", "fish_trip"} {
		if err := b.Registry.Register(&stubSkill{
			name: name, result: skills.Result{Success: true, Message: "Completed " + name},
		}); err != nil {
			t.Fatal(err)
		}
	}

	b.handleCommand(context.Background(), "op", "/eval all build")

	joined := strings.Join(fake.ChatLog, "\n")
	if !strings.Contains(joined, "build_hut") || !strings.Contains(joined, "build_wall") {
		t.Fatalf("chat log = %v", fake.ChatLog)
	}
	if strings.Contains(joined, "fish_trip") {
		t.Fatalf("filter leaked: %v", fake.ChatLog)
	}

	b.handleCommand(context.Background(), "op", "/eval all xyzzy")
	if last := fake.ChatLog[len(fake.ChatLog)-1]; last != "No skills match xyzzy" {
		t.Fatalf("empty match reply = %q", last)
	}
}

func TestHandleCommand_UsageAndPassthrough(t *testing.T) {
	fake := gametest.New()
	b := newBrain(t, fake, scriptedLLM(t, nil))
	ctx := context.Background()

	if !b.handleCommand(ctx, "op", "/eval") {
		t.Fatal("bare /eval not intercepted")
	}
	if last := fake.ChatLog[len(fake.ChatLog)-1]; !strings.HasPrefix(last, "Usage:") {
		t.Fatalf("usage reply = %q", last)
	}

	if b.handleCommand(ctx, "bob", "hello there") {
		t.Fatal("plain chat treated as command")
	}
}
