// Package brain is the per-agent cooperative scheduler. One goroutine
// owns the event queue and every timer; it is the only code path that
// calls the language model or dispatches actions, which is what keeps
// the one-skill-at-a-time invariant cheap to hold.
package brain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/basket/voxmind/internal/actions"
	"github.com/basket/voxmind/internal/bulletin"
	"github.com/basket/voxmind/internal/bus"
	"github.com/basket/voxmind/internal/config"
	"github.com/basket/voxmind/internal/decision"
	"github.com/basket/voxmind/internal/failure"
	"github.com/basket/voxmind/internal/game"
	"github.com/basket/voxmind/internal/llm"
	"github.com/basket/voxmind/internal/memory"
	"github.com/basket/voxmind/internal/neural"
	"github.com/basket/voxmind/internal/otel"
	"github.com/basket/voxmind/internal/safety"
	"github.com/basket/voxmind/internal/skills"
	"github.com/basket/voxmind/internal/world"
)

const (
	defaultIdleInterval = 10 * time.Second
	hostileScanInterval = 2 * time.Second
	fingerprintWindow   = 10 * time.Second

	reactiveCooldown  = 3 * time.Second
	strategicCooldown = 8 * time.Second

	// A strategic event popped while a skill runs is retried after this.
	strategicDeferDelay = 3 * time.Second
	// A gated dispatch or a critic verdict of failure re-plans after these.
	gatedReplanDelay        = 500 * time.Millisecond
	goalCompleteReplanDelay = time.Second

	lowHealthThreshold = 6
	lowFoodThreshold   = 6

	waterEscapeWait = 3 * time.Second
	popUpWait       = 2 * time.Second
	popUpBelowY     = 55
	popUpY          = 80

	leashHardFactor = 1.5
	leashWarnFactor = 0.8

	defaultGoalSteps = 5
	maxPendingChats  = 5
)

// Results for these actions never warrant a critic pass.
var trivialActions = map[string]bool{
	"idle": true, "chat": true, "respond_to_chat": true,
}

// Brain schedules and handles events for one agent. Populate the exported
// fields, then call Run from the agent's goroutine. QueueChat,
// QueueDirective, TriggerReplan, and Stop are safe from other goroutines.
type Brain struct {
	Agent      string
	Role       config.Role
	Client     game.Client
	LLM        *llm.Client
	Dispatcher *actions.Dispatcher
	Executor   *skills.Executor
	Registry   *skills.Registry
	Tracker    *failure.Tracker
	Mem        *memory.Memory
	Board      *bulletin.Board
	Neural     *neural.Client
	Bus        *bus.Bus
	Metrics    *otel.Metrics
	Tracer     trace.Tracer
	Log        *slog.Logger

	// IdleInterval overrides the strategic idle timer; zero means default.
	IdleInterval time.Duration

	initOnce sync.Once
	queue    *queue
	wake     chan struct{}
	stopCh   chan struct{}

	mu              sync.Mutex
	stopped         bool
	timers          []*time.Timer
	pendingChats    []ChatPayload
	goal            string
	goalSteps       int
	lastReactive    time.Time
	lastStrategic   time.Time
	lastFingerprint string
	fingerprintAt   time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func (b *Brain) init() {
	b.initOnce.Do(func() {
		b.queue = newQueue()
		b.wake = make(chan struct{}, 1)
		b.stopCh = make(chan struct{})
		if b.now == nil {
			b.now = time.Now
		}
		if b.sleep == nil {
			b.sleep = sleepCtx
		}
	})
}

func (b *Brain) logger() *slog.Logger {
	if b.Log != nil {
		return b.Log
	}
	return slog.Default()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Run drives the dispatch loop until the context is cancelled, Stop is
// called, or the game client disconnects.
func (b *Brain) Run(ctx context.Context) error {
	b.init()
	log := b.logger()

	idleEvery := b.IdleInterval
	if idleEvery <= 0 {
		idleEvery = defaultIdleInterval
	}
	idle := time.NewTicker(idleEvery)
	defer idle.Stop()
	scan := time.NewTicker(hostileScanInterval)
	defer scan.Stop()

	events := b.Client.Events()
	log.Info("brain started", "agent", b.Agent)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stopCh:
			return nil
		case <-idle.C:
			b.push(Event{Kind: KindStrategic, Priority: PriorityIdle})
		case <-scan.C:
			b.scanHostiles()
		case ev, ok := <-events:
			if !ok {
				log.Info("game client disconnected", "agent", b.Agent)
				return nil
			}
			if stop := b.handleGameEvent(ctx, ev); stop {
				return nil
			}
		case <-b.wake:
		}

		for {
			e, ok := b.queue.Pop()
			if !ok {
				break
			}
			b.process(ctx, e)
			idle.Reset(idleEvery)
		}
	}
}

// Stop cancels timers, aborts any running skill, and breaks the loop.
func (b *Brain) Stop() {
	b.init()
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	timers := b.timers
	b.timers = nil
	b.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	if b.Executor != nil {
		b.Executor.Abort()
	}
	close(b.stopCh)
}

// QueueChat ingests an external chat message. Paid-tier messages are
// reclassified as strategic to force a re-plan around them.
func (b *Brain) QueueChat(from, text string, paid bool) {
	b.init()
	res := safety.FilterViewerMessage(text)
	if !res.Safe {
		b.logger().Info("viewer message scrubbed",
			"agent", b.Agent, "from", from, "reason", res.Reason)
	}
	msg := ChatPayload{From: from, Text: res.Cleaned, Paid: paid}

	b.mu.Lock()
	b.pendingChats = append(b.pendingChats, msg)
	if len(b.pendingChats) > maxPendingChats {
		b.pendingChats = b.pendingChats[len(b.pendingChats)-maxPendingChats:]
	}
	b.mu.Unlock()

	if b.Metrics != nil {
		b.Metrics.ChatMessages.Add(context.Background(), 1)
	}
	if paid {
		b.push(Event{Kind: KindStrategic, Priority: PriorityPaidChat, Payload: msg})
		return
	}
	b.push(Event{Kind: KindChat, Priority: PriorityChat, Payload: msg})
}

// TriggerReplan enqueues a strategic event at idle priority.
func (b *Brain) TriggerReplan() {
	b.init()
	b.push(Event{Kind: KindStrategic, Priority: PriorityIdle})
}

// QueueDirective enqueues a scheduled operator directive as a strategic
// event; the text is injected into that cycle's prompt.
func (b *Brain) QueueDirective(text string) {
	b.init()
	b.push(Event{Kind: KindStrategic, Priority: PriorityIdle, Payload: DirectivePayload{Text: text}})
}

// Goal returns the current session goal and steps remaining.
func (b *Brain) Goal() (string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.goal, b.goalSteps
}

// QueueLen is exposed for tests and the TUI.
func (b *Brain) QueueLen() int {
	b.init()
	return b.queue.Len()
}

func (b *Brain) push(e Event) {
	b.init()
	b.mu.Lock()
	stopped := b.stopped
	b.mu.Unlock()
	if stopped {
		return
	}
	if b.queue.Push(e) {
		select {
		case b.wake <- struct{}{}:
		default:
		}
	}
}

func (b *Brain) pushAfter(d time.Duration, e Event) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	t := time.AfterFunc(d, func() { b.push(e) })
	b.timers = append(b.timers, t)
	b.mu.Unlock()
}

// handleGameEvent maps game-side occurrences to scheduler events.
// Returns true when the brain should stop.
func (b *Brain) handleGameEvent(ctx context.Context, ev game.Event) bool {
	switch ev.Kind {
	case game.EventHealth:
		if b.Bus != nil {
			b.Bus.Publish(bus.TopicAgentVitals, bus.VitalsEvent{Agent: b.Agent, Health: ev.Health, Food: ev.Food})
		}
		if ev.Health <= lowHealthThreshold {
			b.push(Event{Kind: KindReactive, Priority: PriorityVitals,
				Payload: VitalsPayload{Health: ev.Health, Food: ev.Food, Cause: "low_health"}})
		} else if ev.Food <= lowFoodThreshold {
			b.push(Event{Kind: KindReactive, Priority: PriorityHunger,
				Payload: VitalsPayload{Health: ev.Health, Food: ev.Food, Cause: "low_food"}})
		}
	case game.EventDamage:
		b.push(Event{Kind: KindReactive, Priority: PriorityVitals,
			Payload: VitalsPayload{Health: b.Client.Health(), Food: b.Client.Food(), Cause: "took_damage"}})
	case game.EventChat:
		if b.handleCommand(ctx, ev.From, ev.Text) {
			return false
		}
		if b.Bus != nil {
			b.Bus.Publish(bus.TopicChatMessage, bus.ChatEvent{
				Agent: b.Agent, From: ev.From, Text: ev.Text,
			})
		}
		b.QueueChat(ev.From, ev.Text, false)
	case game.EventDeath:
		b.onDeath()
	case game.EventKicked:
		b.logger().Warn("kicked from server", "agent", b.Agent, "reason", ev.Reason)
		return true
	case game.EventSpawn:
		b.logger().Info("spawned", "agent", b.Agent, "pos", b.Client.Position())
	}
	return false
}

func (b *Brain) onDeath() {
	if b.Executor != nil {
		b.Executor.Abort()
	}
	pos := b.Client.Position().Floored()
	if b.Mem != nil {
		err := b.Mem.RecordDeath(memory.Death{
			Location: pos.String(),
			X:        int(pos.X), Y: int(pos.Y), Z: int(pos.Z),
			Cause: "died",
		})
		if err != nil {
			b.logger().Warn("record death", "agent", b.Agent, "error", err)
		}
	}
	b.logger().Warn("agent died", "agent", b.Agent, "pos", pos)
	b.push(Event{Kind: KindStrategic, Priority: PriorityIdle})
}

// scanHostiles runs on the 2 s ticker. Identical threat fingerprints
// within the suppression window are ignored so one creeper does not spam
// reactive cycles.
func (b *Brain) scanHostiles() {
	if b.Executor != nil && b.Executor.Running() {
		return
	}
	hostiles := world.Hostiles(b.Client)
	if len(hostiles) == 0 {
		return
	}
	fp := threatFingerprint(hostiles)

	b.mu.Lock()
	if fp == b.lastFingerprint && b.now().Sub(b.fingerprintAt) < fingerprintWindow {
		b.mu.Unlock()
		return
	}
	b.lastFingerprint = fp
	b.fingerprintAt = b.now()
	b.mu.Unlock()

	b.push(Event{Kind: KindReactive, Priority: PriorityHostiles, Payload: ThreatPayload{Hostiles: hostiles}})
}

func threatFingerprint(hostiles []game.Entity) string {
	parts := make([]string, 0, len(hostiles))
	for _, h := range hostiles {
		parts = append(parts, fmt.Sprintf("%s#%d", h.Name, h.ID))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// process runs one popped event through deferral, cooldown, and its
// handler. Handler panics are contained; the loop keeps running.
func (b *Brain) process(ctx context.Context, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger().Error("handler panicked",
				"agent", b.Agent, "kind", string(e.Kind), "panic", fmt.Sprint(r))
		}
	}()

	// Deferral: a running skill owns the agent. Strategic events retry
	// shortly after; reactive ones run now; the rest are dropped.
	if b.Executor != nil && b.Executor.Running() && e.Kind != KindReactive {
		if e.Kind == KindStrategic {
			b.pushAfter(strategicDeferDelay, e)
		}
		return
	}

	now := b.now()
	switch e.Kind {
	case KindReactive:
		b.mu.Lock()
		if wait := reactiveCooldown - now.Sub(b.lastReactive); wait > 0 {
			b.mu.Unlock()
			b.pushAfter(wait, e)
			return
		}
		b.lastReactive = now
		b.mu.Unlock()
	case KindStrategic:
		b.mu.Lock()
		if wait := strategicCooldown - now.Sub(b.lastStrategic); wait > 0 {
			b.mu.Unlock()
			b.pushAfter(wait, e)
			return
		}
		b.lastStrategic = now
		b.mu.Unlock()
	}

	hctx := ctx
	if b.Tracer != nil {
		var span trace.Span
		hctx, span = b.Tracer.Start(ctx, "brain."+string(e.Kind),
			trace.WithAttributes(
				attribute.String("agent", b.Agent),
				attribute.String("event.id", e.ID),
			))
		defer span.End()
	}

	started := b.now()
	switch e.Kind {
	case KindStrategic:
		b.handleStrategic(hctx, e)
	case KindReactive:
		b.handleReactive(hctx, e)
	case KindCritic:
		b.handleCritic(hctx, e)
	case KindChat:
		b.handleChat(hctx, e)
	}
	if b.Metrics != nil {
		b.Metrics.DecisionDuration.Record(context.Background(), b.now().Sub(started).Seconds())
	}
}

// safetyOverride handles the three hazards that bypass the model
// entirely. Returns true when the strategic cycle was consumed.
func (b *Brain) safetyOverride(ctx context.Context) bool {
	if world.InWater(b.Client) {
		// Give the pathfinder a moment to climb out on its own first.
		b.sleep(ctx, waterEscapeWait)
		if world.InWater(b.Client) && b.Role.SafeSpawn != nil {
			p := b.Role.SafeSpawn.Vec3()
			b.Client.SendChat(fmt.Sprintf("/tp %s %d %d %d", b.Role.Username, int(p.X), int(p.Y), int(p.Z)))
			b.logger().Warn("water escape teleport", "agent", b.Agent)
			return true
		}
	}

	pos := b.Client.Position()
	if pos.Y < popUpBelowY {
		feet := b.Client.BlockAt(pos.Floored())
		if feet != nil && feet.Diggable && feet.Name != "air" && !strings.Contains(feet.Name, "water") {
			b.Client.SendChat(fmt.Sprintf("/tp %s %d %d %d", b.Role.Username, int(pos.X), popUpY, int(pos.Z)))
			b.logger().Warn("suffocation escape teleport", "agent", b.Agent, "y", int(pos.Y))
			b.sleep(ctx, popUpWait)
			return true
		}
	}

	if b.Role.Home != nil && b.Role.LeashRadius > 0 {
		home := b.Role.Home.Vec3()
		if pos.HorizontalDistanceTo(home) > b.Role.LeashRadius*leashHardFactor {
			b.logger().Info("hard leash triggered", "agent", b.Agent,
				"distance", int(pos.HorizontalDistanceTo(home)))
			b.dispatch(ctx, decision.Decision{
				Thought: "Too far from home, heading back",
				Action:  "go_to",
				Params:  map[string]any{"x": home.X, "y": home.Y, "z": home.Z},
			})
			return true
		}
	}
	return false
}

// dispatch routes a decision through the dispatcher and applies the
// shared post-conditions: replan on gated rejections, goal-step
// decrement on success, critic enqueue for non-trivial actions.
func (b *Brain) dispatch(ctx context.Context, dec decision.Decision) actions.Outcome {
	out := b.Dispatcher.Dispatch(ctx, dec)
	if out.Gated {
		b.logger().Info("dispatch gated", "agent", b.Agent, "action", out.Action, "result", out.Result)
		b.pushAfter(gatedReplanDelay, Event{Kind: KindStrategic, Priority: PriorityIdle})
		return out
	}
	if out.Success {
		b.mu.Lock()
		if b.goalSteps > 0 {
			b.goalSteps--
		}
		b.mu.Unlock()
	}
	if !trivialActions[out.Action] {
		b.push(Event{Kind: KindCritic, Priority: PriorityCritic,
			Payload: CriticPayload{Action: out.Action, Result: out.Result, Success: out.Success}})
	}
	return out
}

func (b *Brain) publishThought(thought string) {
	if thought == "" {
		return
	}
	res := safety.FilterContent(thought)
	if !res.Safe {
		b.logger().Info("thought scrubbed", "agent", b.Agent, "reason", res.Reason)
	}
	if b.Bus != nil {
		b.Bus.Publish(bus.TopicAgentThought, bus.ThoughtEvent{Agent: b.Agent, Thought: res.Cleaned})
	}
}

// takePendingChats consumes the pending chat buffer.
func (b *Brain) takePendingChats() []ChatPayload {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pendingChats
	b.pendingChats = nil
	return out
}
