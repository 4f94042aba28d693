package actions

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/basket/voxmind/internal/bulletin"
	"github.com/basket/voxmind/internal/config"
	"github.com/basket/voxmind/internal/decision"
	"github.com/basket/voxmind/internal/failure"
	"github.com/basket/voxmind/internal/game"
	"github.com/basket/voxmind/internal/game/gametest"
	"github.com/basket/voxmind/internal/memory"
	"github.com/basket/voxmind/internal/skills"
)

type stubSkill struct {
	name      string
	result    skills.Result
	gotParams map[string]any
}

func (s *stubSkill) Name() string                { return s.name }
func (s *stubSkill) Description() string         { return "stub" }
func (s *stubSkill) ParamSchema() map[string]any { return nil }

func (s *stubSkill) EstimateMaterials(game.Client, map[string]any) map[string]int { return nil }

func (s *stubSkill) Execute(_ context.Context, _ *skills.Runtime, params map[string]any) skills.Result {
	s.gotParams = params
	return s.result
}

func newDispatcher(t *testing.T, fake *gametest.Fake) *Dispatcher {
	t.Helper()
	mem, err := memory.Load(filepath.Join(t.TempDir(), "mem.json"))
	if err != nil {
		t.Fatal(err)
	}
	reg := skills.NewRegistry()
	return &Dispatcher{
		Agent:    "miner",
		Role:     config.Role{Name: "miner", AllowedActions: []string{"go_to", "mine_block", "craft", "gather_wood", "explore", "sleep", "place_block", "build_shelter", "neural_combat", "deposit_stash"}, AllowedSkills: []string{"build_farm", "slow_job"}},
		Client:   fake,
		Registry: reg,
		Executor: &skills.Executor{Agent: "miner", Client: fake},
		Tracker:  failure.NewTracker(nil),
		Mem:      mem,
		Board:    bulletin.NewBoard(),
	}
}

func TestDispatch_GatesDisallowedAction(t *testing.T) {
	d := newDispatcher(t, gametest.New())
	out := d.Dispatch(context.Background(), decision.Decision{Action: "generate_skill", Params: map[string]any{"skill": "x"}})
	_ = out
	// generate_skill is reachable because the role has skills; a truly
	// unknown verb is the gated case.
	out = d.Dispatch(context.Background(), decision.Decision{Action: "launch_rockets"})
	if !out.Gated {
		t.Fatalf("expected gate, got %+v", out)
	}
	if !strings.Contains(out.Result, "not allowed") || !strings.Contains(out.Result, "mine_block") {
		t.Fatalf("gate message = %q", out.Result)
	}
	if got := d.HistoryLen(); got != 1 {
		// Only the generate_skill attempt lands in history.
		t.Fatalf("history len = %d, want 1", got)
	}
}

func TestDispatch_UnknownActionBlacklistsImmediately(t *testing.T) {
	d := newDispatcher(t, gametest.New())
	d.Role.AllowedActions = append(d.Role.AllowedActions, "dance")
	out := d.Dispatch(context.Background(), decision.Decision{Action: "dance"})
	if out.Success || out.Result != "Unknown action: dance" {
		t.Fatalf("outcome = %+v", out)
	}
	if _, blocked := d.Tracker.Blacklisted("dance"); !blocked {
		t.Fatal("unknown action not blacklisted immediately")
	}
}

func TestDispatch_BlacklistBlocksBeforeExecution(t *testing.T) {
	fake := gametest.New()
	d := newDispatcher(t, fake)
	d.Tracker.Prepopulate("mine_block", "keeps failing")

	out := d.Dispatch(context.Background(), decision.Decision{Action: "mine_block", Params: map[string]any{"blockType": "stone"}})
	if !out.Gated || !strings.Contains(out.Result, "keeps failing") {
		t.Fatalf("outcome = %+v", out)
	}
	if len(fake.DigLog) != 0 {
		t.Fatal("blacklisted action still executed")
	}
}

func TestDispatch_BuildFarmWaterReprieve(t *testing.T) {
	fake := gametest.New()
	d := newDispatcher(t, fake)
	farm := &stubSkill{name: "build_farm", result: skills.Result{Success: true, Message: "Planted a farm with 9 crops"}}
	d.Registry.Register(farm)
	d.Tracker.Prepopulate("skill:build_farm", "No water found within 96 blocks - explore then retry")

	// Still no water: stays blocked.
	out := d.Dispatch(context.Background(), decision.Decision{Action: "invoke_skill", Params: map[string]any{"skill": "build_farm"}})
	if !out.Gated {
		t.Fatalf("expected gate without water, got %+v", out)
	}

	// Water within range: reprieved at dispatch, entry cleared, skill runs.
	fake.SetBlock(game.Block{Name: "water", Pos: game.Vec3{X: 40, Y: 64, Z: 0}})
	out = d.Dispatch(context.Background(), decision.Decision{Action: "invoke_skill", Params: map[string]any{"skill": "build_farm"}})
	if out.Gated || !out.Success {
		t.Fatalf("expected reprieved run, got %+v", out)
	}
	if _, blocked := d.Tracker.Blacklisted("skill:build_farm"); blocked {
		t.Fatal("entry not cleared by reprieve")
	}
}

func TestDispatch_BrokenSkillBlocked(t *testing.T) {
	d := newDispatcher(t, gametest.New())
	d.Registry.Register(&stubSkill{name: "build_farm"})
	d.Mem.AddBrokenSkill("build_farm")

	out := d.Dispatch(context.Background(), decision.Decision{Action: "invoke_skill", Params: map[string]any{"skill": "build_farm"}})
	if !out.Gated || !strings.Contains(out.Result, "broken") {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestDispatch_ConcurrentSkillRefusalNotCounted(t *testing.T) {
	fake := gametest.New()
	d := newDispatcher(t, fake)
	started := make(chan struct{})
	release := make(chan struct{})
	slow := &stubSkillBlocking{name: "slow_job", started: started, release: release}
	d.Registry.Register(slow)

	go d.Executor.Run(context.Background(), slow, nil)
	<-started
	defer close(release)

	out := d.Dispatch(context.Background(), decision.Decision{Action: "invoke_skill", Params: map[string]any{"skill": "slow_job"}})
	if out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if !strings.Contains(out.Result, "Already running skill slow_job") {
		t.Fatalf("result = %q", out.Result)
	}
	if n := d.Tracker.FailureCount("skill:slow_job"); n != 0 {
		t.Fatalf("refusal counted as failure: %d", n)
	}
}

type stubSkillBlocking struct {
	name    string
	started chan struct{}
	release chan struct{}
	once    bool
}

func (s *stubSkillBlocking) Name() string                { return s.name }
func (s *stubSkillBlocking) Description() string         { return "blocks" }
func (s *stubSkillBlocking) ParamSchema() map[string]any { return nil }

func (s *stubSkillBlocking) EstimateMaterials(game.Client, map[string]any) map[string]int {
	return nil
}

func (s *stubSkillBlocking) Execute(context.Context, *skills.Runtime, map[string]any) skills.Result {
	if !s.once {
		s.once = true
		close(s.started)
	}
	<-s.release
	return skills.Result{Success: true, Message: s.name + " completed"}
}

func TestDispatch_StashParamInjection(t *testing.T) {
	d := newDispatcher(t, gametest.New())
	d.Role.Stash = &config.Anchor{X: 10, Y: 64, Z: -3}
	d.Role.KeepItems = []config.KeepItem{{Pattern: "pickaxe", Min: 1}}
	stash := &stubSkill{name: "deposit_stash", result: skills.Result{Success: true, Message: "Deposited and completed"}}
	d.Registry.Register(stash)

	out := d.Dispatch(context.Background(), decision.Decision{Action: "deposit_stash"})
	if out.Gated || !out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if stash.gotParams["x"] != 10.0 || stash.gotParams["z"] != -3.0 {
		t.Fatalf("stash pos not injected: %v", stash.gotParams)
	}
	if _, ok := stash.gotParams["keep"]; !ok {
		t.Fatal("keep list not injected")
	}
}

func TestDispatch_TwoFailuresHardBlacklist(t *testing.T) {
	fake := gametest.New()
	d := newDispatcher(t, fake)
	// go_to to the same spot from the same spot yields "Already here!".
	dec := decision.Decision{Action: "go_to", Params: map[string]any{"x": 0.0, "z": 0.0}}

	out := d.Dispatch(context.Background(), dec)
	if out.Success || out.Result != "Already here!" {
		t.Fatalf("first outcome = %+v", out)
	}
	if _, blocked := d.Tracker.Blacklisted("go_to:0,0"); blocked {
		t.Fatal("blacklisted after a single failure")
	}
	d.Dispatch(context.Background(), dec)
	if _, blocked := d.Tracker.Blacklisted("go_to:0,0"); !blocked {
		t.Fatal("not blacklisted after two consecutive failures")
	}
}

func TestDispatch_SuccessUpdatesHistoryAndBulletin(t *testing.T) {
	fake := gametest.New()
	fake.Pos = game.Vec3{X: 0, Y: 64, Z: 0}
	fake.SetBlock(game.Block{Name: "stone", Diggable: true, Pos: game.Vec3{X: 2, Y: 64, Z: 0}})
	d := newDispatcher(t, fake)

	out := d.Dispatch(context.Background(), decision.Decision{
		Action:  "mine_block",
		Params:  map[string]any{"blockType": "stone"},
		Thought: "need cobble",
	})
	if !out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if !strings.Contains(d.History(), "mine_block: Mined 1 stone") {
		t.Fatalf("history = %q", d.History())
	}
	rows := d.Board.Snapshot()
	if len(rows) != 1 || rows[0].Action != "mine_block" || rows[0].Thought != "need cobble" {
		t.Fatalf("bulletin rows = %+v", rows)
	}
}

func TestDispatch_HistoryTrimsOnOverflow(t *testing.T) {
	d := newDispatcher(t, gametest.New())
	d.Role.AllowedActions = append(d.Role.AllowedActions, "dance")
	for i := 0; i < 13; i++ {
		d.Dispatch(context.Background(), decision.Decision{Action: "dance"})
		d.Tracker.Clear("dance") // keep the gate open for the next round
	}
	if got := d.HistoryLen(); got != 8 {
		t.Fatalf("history len = %d, want 8 after overflow trim", got)
	}
}

func TestDispatch_ChatIsNeutral(t *testing.T) {
	fake := gametest.New()
	d := newDispatcher(t, fake)
	out := d.Dispatch(context.Background(), decision.Decision{Action: "chat", Params: map[string]any{"message": "hello world"}})
	if out.Gated {
		t.Fatalf("outcome = %+v", out)
	}
	if len(fake.ChatLog) != 1 || fake.ChatLog[0] != "hello world" {
		t.Fatalf("chat log = %v", fake.ChatLog)
	}
	if n := d.Tracker.FailureCount("chat"); n != 0 {
		t.Fatalf("chat counted toward failures: %d", n)
	}
}

func TestDispatch_NeuralFallbackCombat(t *testing.T) {
	fake := gametest.New()
	fake.Pos = game.Vec3{X: 0, Y: 64, Z: 0}
	fake.Ents = []game.Entity{{ID: 1, Name: "zombie", Kind: "mob", Pos: game.Vec3{X: 4, Y: 64, Z: 0}}}
	d := newDispatcher(t, fake) // no coprocessor configured

	out := d.Dispatch(context.Background(), decision.Decision{Action: "neural_combat"})
	if !out.Success || !strings.Contains(out.Result, "killed zombie") {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestDispatch_EatFromWhitelist(t *testing.T) {
	fake := gametest.New()
	fake.FoodVal = 10
	fake.Give("rotten_flesh", 5)
	fake.Give("bread", 2)
	d := newDispatcher(t, fake)

	out := d.Dispatch(context.Background(), decision.Decision{Action: "eat"})
	if !out.Success || out.Result != "Ate bread" {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestDispatch_SleepAtDaytime(t *testing.T) {
	fake := gametest.New()
	fake.Time = 6000 // midday
	d := newDispatcher(t, fake)
	out := d.Dispatch(context.Background(), decision.Decision{Action: "sleep"})
	// Mistimed sleep reads as non-failing.
	if !out.Success || !strings.Contains(out.Result, "Not nighttime") {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestDispatch_GoToTooFar(t *testing.T) {
	d := newDispatcher(t, gametest.New())
	out := d.Dispatch(context.Background(), decision.Decision{Action: "go_to", Params: map[string]any{"x": 500.0, "z": 0.0}})
	if out.Success || !strings.Contains(out.Result, "Too far away") {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestDispatch_GoToDistanceBoundary(t *testing.T) {
	// 200 blocks exactly is out of range; just under is walked.
	d := newDispatcher(t, gametest.New())
	out := d.Dispatch(context.Background(), decision.Decision{Action: "go_to", Params: map[string]any{"x": 200.0, "z": 0.0}})
	if out.Success || !strings.Contains(out.Result, "Too far away") {
		t.Fatalf("outcome at 200.0 = %+v", out)
	}

	d = newDispatcher(t, gametest.New())
	out = d.Dispatch(context.Background(), decision.Decision{Action: "go_to", Params: map[string]any{"x": 199.9, "z": 0.0}})
	if !out.Success || !strings.Contains(out.Result, "Arrived at") {
		t.Fatalf("outcome at 199.9 = %+v", out)
	}
}
