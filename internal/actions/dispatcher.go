// Package actions maps decoded decisions onto game primitives and
// skills, applying the gate chain and post-execution bookkeeping.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/basket/voxmind/internal/bulletin"
	"github.com/basket/voxmind/internal/bus"
	"github.com/basket/voxmind/internal/config"
	"github.com/basket/voxmind/internal/decision"
	"github.com/basket/voxmind/internal/failure"
	"github.com/basket/voxmind/internal/game"
	"github.com/basket/voxmind/internal/memory"
	"github.com/basket/voxmind/internal/neural"
	"github.com/basket/voxmind/internal/otel"
	"github.com/basket/voxmind/internal/persistence"
	"github.com/basket/voxmind/internal/skills"
)

// successRe classifies result strings. Neutral actions skip this.
var successRe = regexp.MustCompile(`(?i)complet|harvest|built|planted|smelted|crafted|arriv|gather|mined|caught|lit|bridg|chop|killed|ate|explored|placed|fished|sleep|zzz`)

// Actions any role may take regardless of its allow-list.
var universalActions = map[string]bool{
	"idle": true, "chat": true, "respond_to_chat": true,
	"eat": true, "attack": true, "flee": true,
}

// Results for these actions never touch the failure memory.
var neutralActions = map[string]bool{
	"idle": true, "chat": true, "respond_to_chat": true,
}

const (
	historyCap  = 12
	historyTrim = 8
)

// SourceProvider produces skill source for generate_skill. Backed by
// the strong model in production.
type SourceProvider interface {
	Generate(ctx context.Context, name, task string) (string, error)
}

// HistoryEntry is one line of the recent-action buffer fed to prompts.
type HistoryEntry struct {
	Action string
	Result string
}

// Outcome is what the brain gets back from a dispatch.
type Outcome struct {
	Action  string
	Result  string
	Success bool
	// Gated outcomes were rejected before execution and must not enter
	// the model-visible history.
	Gated bool
}

// Dispatcher executes decisions for one agent. Not safe for concurrent
// use; the owning brain serialises all calls.
type Dispatcher struct {
	Agent    string
	Role     config.Role
	Client   game.Client
	Registry *skills.Registry
	Executor *skills.Executor
	Tracker  *failure.Tracker
	Mem      *memory.Memory
	Board    *bulletin.Board
	Neural   *neural.Client
	Loader   *skills.Loader
	Sources  SourceProvider
	Store    *persistence.Store
	Metrics  *otel.Metrics
	Log      *slog.Logger
	Bus      *bus.Bus

	history    []HistoryEntry
	lastResult string
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

// Dispatch runs the gate chain, executes, and records the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, dec decision.Decision) Outcome {
	action := dec.Action
	params := dec.Params
	if params == nil {
		params = map[string]any{}
	}

	if !d.allowed(action) {
		return Outcome{
			Action: action,
			Result: fmt.Sprintf("Action %s is not allowed for this role. Allowed: %s", action, d.allowedList()),
			Gated:  true,
		}
	}

	isSkill := func(name string) bool {
		_, ok := d.Registry.Get(name)
		return ok
	}
	key := failure.CanonicalKey(action, params, isSkill)

	if d.Metrics != nil {
		before := d.Tracker.Len()
		defer func() {
			if delta := d.Tracker.Len() - before; delta != 0 {
				d.Metrics.BlacklistSize.Add(context.Background(), int64(delta))
			}
		}()
	}

	if reason, blocked := d.Tracker.Blacklisted(key); blocked {
		if d.reprieveBuildFarm(key, reason) {
			d.Tracker.Clear(key)
			d.logger().Info("blacklist reprieve, water found", "key", key)
		} else {
			return Outcome{
				Action: action,
				Result: fmt.Sprintf("Not retrying %s: %s", action, reason),
				Gated:  true,
			}
		}
	}

	if target := d.skillTarget(action, params); target != "" && d.isBroken(target) {
		return Outcome{
			Action: action,
			Result: fmt.Sprintf("Skill %s is broken and disabled. Try a primitive action or a different skill instead", target),
			Gated:  true,
		}
	}

	d.injectStashParams(action, params)

	started := time.Now()
	result := d.execute(ctx, action, params)
	elapsed := time.Since(started)

	neutral := neutralActions[action]
	success := !neutral && successRe.MatchString(result)

	if !neutral {
		if success {
			d.Tracker.RecordSuccess(key)
		} else {
			d.Tracker.RecordFailure(action, key, result)
		}
		d.Tracker.RefreshPreconditions(d.Client.Inventory())
	}

	d.record(action, result, success, elapsed, dec.Thought, params)
	return Outcome{Action: action, Result: result, Success: success}
}

func (d *Dispatcher) execute(ctx context.Context, action string, params map[string]any) string {
	switch action {
	case "idle":
		return "Idling"
	case "gather_wood":
		return d.gatherWood(ctx, params)
	case "mine_block":
		return d.mineBlock(ctx, params)
	case "go_to":
		return d.goTo(ctx, params)
	case "explore":
		return d.explore(ctx, params)
	case "craft":
		return d.craft(ctx, params)
	case "eat":
		return d.eat(ctx)
	case "attack":
		return d.attack(ctx)
	case "flee":
		return d.flee(ctx)
	case "build_shelter":
		return d.buildShelter(ctx)
	case "place_block":
		return d.placeBlock(ctx, params)
	case "sleep":
		return d.sleep(ctx)
	case "chat", "respond_to_chat":
		return d.chat(params)
	case "neural_combat":
		return d.neuralCombat(ctx, params)
	case "invoke_skill":
		return d.invokeSkill(ctx, stringParam(params, "skill"), params)
	case "generate_skill":
		return d.generateSkill(ctx, params)
	}
	// Direct dispatch by skill name.
	if _, ok := d.Registry.Get(action); ok {
		return d.invokeSkill(ctx, action, params)
	}
	return "Unknown action: " + action
}

func (d *Dispatcher) invokeSkill(ctx context.Context, name string, params map[string]any) string {
	if name == "" {
		return "Which skill? Specify skill"
	}
	skill, ok := d.Registry.Get(name)
	if !ok {
		return fmt.Sprintf("Unknown skill: %s. Known: %s", name, strings.Join(d.Registry.Names(), ", "))
	}
	if err := d.Registry.ValidateParams(name, skillParams(params)); err != nil {
		return fmt.Sprintf("Bad parameters for %s: %v", name, err)
	}
	res := d.Executor.Run(ctx, skill, skillParams(params))
	return res.Message
}

func (d *Dispatcher) generateSkill(ctx context.Context, params map[string]any) string {
	name := stringParam(params, "skill")
	if name == "" {
		name = stringParam(params, "task")
		name = strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
		if len(name) > 32 {
			name = name[:32]
		}
	}
	if name == "" {
		return "Which skill? Provide skill and task"
	}
	if _, exists := d.Registry.Get(name); exists {
		return d.invokeSkill(ctx, name, params)
	}
	if d.Sources == nil || d.Loader == nil {
		return "Skill synthesis is unavailable - pick an existing skill"
	}
	task := stringParam(params, "task")
	if task == "" {
		task = "implement the skill " + name
	}
	source, err := d.Sources.Generate(ctx, name, task)
	if err != nil {
		return fmt.Sprintf("Skill synthesis failed: %v", err)
	}
	if err := d.Loader.Write(name, source); err != nil {
		return fmt.Sprintf("New skill %s does not load: %v", name, err)
	}
	return d.invokeSkill(ctx, name, params)
}

// --- gates ---

func (d *Dispatcher) allowed(action string) bool {
	if universalActions[action] {
		return true
	}
	for _, a := range d.Role.AllowedActions {
		if a == action {
			return true
		}
	}
	for _, s := range d.Role.AllowedSkills {
		if s == action {
			return true
		}
	}
	// invoke/generate are usable by any role whose skill list is non-empty.
	if (action == "invoke_skill" || action == "generate_skill") && len(d.Role.AllowedSkills) > 0 {
		return true
	}
	return false
}

func (d *Dispatcher) allowedList() string {
	set := make(map[string]bool)
	for a := range universalActions {
		set[a] = true
	}
	for _, a := range d.Role.AllowedActions {
		set[a] = true
	}
	for _, s := range d.Role.AllowedSkills {
		set[s] = true
	}
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

// reprieveBuildFarm re-checks the water precondition against the world
// at dispatch time.
func (d *Dispatcher) reprieveBuildFarm(key, reason string) bool {
	if !strings.Contains(key, "build_farm") {
		return false
	}
	if !strings.Contains(strings.ToLower(reason), "no water") {
		return false
	}
	water := d.Client.FindNearestBlock(func(b game.Block) bool {
		return b.Name == "water"
	}, 96)
	return water != nil
}

func (d *Dispatcher) skillTarget(action string, params map[string]any) string {
	switch action {
	case "invoke_skill", "generate_skill":
		return stringParam(params, "skill")
	}
	if _, ok := d.Registry.Get(action); ok {
		return action
	}
	return ""
}

func (d *Dispatcher) isBroken(name string) bool {
	if d.Mem == nil {
		return false
	}
	for _, b := range d.Mem.BrokenSkills() {
		if b == name {
			return true
		}
	}
	return false
}

// injectStashParams fills in the role's stash anchor and keep-list for
// the stash skills; the model never supplies those.
func (d *Dispatcher) injectStashParams(action string, params map[string]any) {
	if action != "deposit_stash" && action != "withdraw_stash" {
		return
	}
	if d.Role.Stash != nil {
		pos := d.Role.Stash.Vec3()
		params["x"], params["y"], params["z"] = pos.X, pos.Y, pos.Z
	}
	if len(d.Role.KeepItems) > 0 {
		keep := make([]any, 0, len(d.Role.KeepItems))
		for _, k := range d.Role.KeepItems {
			keep = append(keep, map[string]any{"pattern": k.Pattern, "min": k.Min})
		}
		params["keep"] = keep
	}
}

// skillParams strips routing fields so schemas see only skill inputs.
func skillParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if k == "skill" || k == "task" {
			continue
		}
		out[k] = v
	}
	return out
}

// --- bookkeeping ---

func (d *Dispatcher) record(action, result string, success bool, elapsed time.Duration, thought string, params map[string]any) {
	d.lastResult = result
	d.history = append(d.history, HistoryEntry{Action: action, Result: result})
	if len(d.history) > historyCap {
		d.history = d.history[len(d.history)-historyTrim:]
	}

	if d.Board != nil {
		d.Board.Post(bulletin.Entry{
			Agent:   d.Agent,
			Action:  action,
			Pos:     d.Client.Position(),
			Thought: thought,
			Health:  d.Client.Health(),
			Food:    d.Client.Food(),
		})
	}
	if d.Bus != nil {
		d.Bus.Publish(bus.TopicAgentAction, bus.ActionEvent{
			Agent:   d.Agent,
			Action:  action,
			Result:  result,
			Success: success,
		})
	}
	if d.Metrics != nil {
		d.Metrics.ActionsTotal.Add(context.Background(), 1)
		if !success && !neutralActions[action] {
			d.Metrics.ActionFailures.Add(context.Background(), 1)
		}
	}
	if d.Store != nil {
		err := d.Store.RecordAction(context.Background(), persistence.ActionRecord{
			Agent:      d.Agent,
			Action:     action,
			Params:     params,
			Success:    success,
			Message:    result,
			DurationMS: elapsed.Milliseconds(),
		})
		if err != nil {
			d.logger().Warn("audit write failed", "error", err)
		}
	}
}

// History renders the recent-action buffer for the strategic prompt.
func (d *Dispatcher) History() string {
	if len(d.history) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Recent actions:\n")
	for _, h := range d.history {
		fmt.Fprintf(&sb, "- %s: %s\n", h.Action, h.Result)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// LastResult returns the most recent result string, or "".
func (d *Dispatcher) LastResult() string { return d.lastResult }

// HistoryLen is exposed for tests and the TUI.
func (d *Dispatcher) HistoryLen() int { return len(d.history) }
