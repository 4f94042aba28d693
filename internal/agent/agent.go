// Package agent wires one running agent per configured role: memory,
// failure tracker, executor, dispatcher, and brain are assembled here,
// and a dropped game session is rebuilt with backoff.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/basket/voxmind/internal/actions"
	"github.com/basket/voxmind/internal/brain"
	"github.com/basket/voxmind/internal/bulletin"
	"github.com/basket/voxmind/internal/bus"
	"github.com/basket/voxmind/internal/config"
	"github.com/basket/voxmind/internal/failure"
	"github.com/basket/voxmind/internal/game"
	"github.com/basket/voxmind/internal/llm"
	"github.com/basket/voxmind/internal/memory"
	"github.com/basket/voxmind/internal/neural"
	"github.com/basket/voxmind/internal/otel"
	"github.com/basket/voxmind/internal/persistence"
	"github.com/basket/voxmind/internal/skills"
)

const maxReconnectBackoff = 60 * time.Second

// Deps are the process-wide singletons shared by every agent.
type Deps struct {
	Config   config.Config
	LLM      *llm.Client
	Registry *skills.Registry
	Loader   *skills.Loader
	Board    *bulletin.Board
	Bus      *bus.Bus
	Neural   *neural.Client
	Store    *persistence.Store
	Metrics  *otel.Metrics
	Tracer   trace.Tracer
	Log      *slog.Logger
}

// Agent is one configured role with its durable state. The brain and
// game connection are rebuilt per session; memory and the failure
// tracker survive reconnects.
type Agent struct {
	Role config.Role

	deps    Deps
	mem     *memory.Memory
	tracker *failure.Tracker
	log     *slog.Logger

	mu    sync.RWMutex
	brain *brain.Brain
}

// Registry builds and supervises all configured agents.
type Registry struct {
	deps   Deps
	agents map[string]*Agent
	wg     sync.WaitGroup
}

// NewRegistry constructs one agent per configured role.
func NewRegistry(deps Deps) (*Registry, error) {
	r := &Registry{deps: deps, agents: make(map[string]*Agent)}
	for _, role := range deps.Config.Roles {
		a, err := newAgent(role, deps)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", role.Name, err)
		}
		r.agents[role.Name] = a
	}
	return r, nil
}

// Start launches every agent's session loop. Wait blocks until they all
// exit after the context is cancelled.
func (r *Registry) Start(ctx context.Context) {
	for _, a := range r.agents {
		r.wg.Add(1)
		go func(a *Agent) {
			defer r.wg.Done()
			a.run(ctx)
		}(a)
	}
}

func (r *Registry) Wait() {
	r.wg.Wait()
}

// Agent returns a configured agent by role name.
func (r *Registry) Agent(name string) (*Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Agents returns all configured agents keyed by role name.
func (r *Registry) Agents() map[string]*Agent {
	out := make(map[string]*Agent, len(r.agents))
	for name, a := range r.agents {
		out[name] = a
	}
	return out
}

func newAgent(role config.Role, deps Deps) (*Agent, error) {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("agent", role.Name)

	memDir := filepath.Join(deps.Config.HomeDir, "memory")
	if err := os.MkdirAll(memDir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	mem, err := memory.Load(filepath.Join(memDir, role.Name+".json"))
	if err != nil {
		return nil, fmt.Errorf("load memory: %w", err)
	}

	// Static skill source ships with the binary and may have been fixed
	// since the ledger was written.
	healed := failure.HealStatic(mem.BrokenSkills(), deps.Registry.StaticNames())
	if err := mem.SetBrokenSkills(healed); err != nil {
		return nil, fmt.Errorf("heal broken skills: %w", err)
	}

	tracker := failure.NewTracker(log)
	for key, msg := range failure.CarryForward(mem.SkillHistory()) {
		tracker.Prepopulate(key, msg)
		log.Info("carried forward precondition failure", "key", key, "reason", msg)
	}

	return &Agent{Role: role, deps: deps, mem: mem, tracker: tracker, log: log}, nil
}

// run keeps the agent connected: dial, run the brain until the session
// ends, rebuild, repeat. Connect failures back off exponentially.
func (a *Agent) run(ctx context.Context) {
	base := time.Duration(a.deps.Config.Game.ReconnectSeconds) * time.Second
	if base <= 0 {
		base = 5 * time.Second
	}
	backoff := base

	for {
		if ctx.Err() != nil {
			return
		}
		client := game.NewWSClient(a.deps.Config.Game.BridgeURL, a.log)
		if err := client.Connect(ctx); err != nil {
			a.log.Warn("bridge connect failed, retrying", "error", err, "backoff", backoff)
			sleepCtx(ctx, backoff)
			backoff *= 2
			if backoff > maxReconnectBackoff {
				backoff = maxReconnectBackoff
			}
			continue
		}
		backoff = base

		b := a.buildBrain(client)
		a.setBrain(b)
		err := b.Run(ctx)
		a.setBrain(nil)
		b.Stop()
		client.Close()

		if ctx.Err() != nil {
			return
		}
		if err != nil {
			a.log.Warn("brain exited", "error", err)
		}
		a.log.Info("game session ended, reconnecting", "backoff", backoff)
		sleepCtx(ctx, backoff)
	}
}

// buildBrain assembles the per-session components around a fresh game
// connection.
func (a *Agent) buildBrain(client game.Client) *brain.Brain {
	executor := &skills.Executor{
		Agent:   a.Role.Name,
		Client:  client,
		Log:     a.log,
		Bus:     a.deps.Bus,
		Rec:     &promotingRecorder{mem: a.mem, log: a.log},
		Metrics: a.deps.Metrics,
	}
	dispatcher := &actions.Dispatcher{
		Agent:    a.Role.Name,
		Role:     a.Role,
		Client:   client,
		Registry: a.deps.Registry,
		Executor: executor,
		Tracker:  a.tracker,
		Mem:      a.mem,
		Board:    a.deps.Board,
		Neural:   a.deps.Neural,
		Loader:   a.deps.Loader,
		Sources:  &skillGenerator{llm: a.deps.LLM, log: a.log},
		Store:    a.deps.Store,
		Metrics:  a.deps.Metrics,
		Log:      a.log,
		Bus:      a.deps.Bus,
	}
	return &brain.Brain{
		Agent:      a.Role.Name,
		Role:       a.Role,
		Client:     client,
		LLM:        a.deps.LLM,
		Dispatcher: dispatcher,
		Executor:   executor,
		Registry:   a.deps.Registry,
		Tracker:    a.tracker,
		Mem:        a.mem,
		Board:      a.deps.Board,
		Neural:     a.deps.Neural,
		Bus:        a.deps.Bus,
		Metrics:    a.deps.Metrics,
		Tracer:     a.deps.Tracer,
		Log:        a.log,
	}
}

func (a *Agent) setBrain(b *brain.Brain) {
	a.mu.Lock()
	a.brain = b
	a.mu.Unlock()
}

func (a *Agent) current() *brain.Brain {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.brain
}

// QueueChat forwards an external chat message to the live brain, if any.
// Messages arriving between sessions are dropped.
func (a *Agent) QueueChat(from, text string, paid bool) {
	if b := a.current(); b != nil {
		b.QueueChat(from, text, paid)
	}
}

// QueueDirective forwards a scheduled directive to the live brain.
func (a *Agent) QueueDirective(text string) {
	if b := a.current(); b != nil {
		b.QueueDirective(text)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// promotingRecorder writes skill attempts to memory and applies the
// persistent-broken promotion rule after each failure.
type promotingRecorder struct {
	mem *memory.Memory
	log *slog.Logger
}

func (r *promotingRecorder) RecordSkillAttempt(att memory.SkillAttempt) error {
	if err := r.mem.RecordSkillAttempt(att); err != nil {
		return err
	}
	if att.Success {
		return nil
	}
	if failure.ShouldPromoteBroken(r.mem.SkillHistory(), att.Skill) {
		if err := r.mem.AddBrokenSkill(att.Skill); err != nil {
			r.log.Warn("promote broken skill", "skill", att.Skill, "error", err)
			return nil
		}
		r.log.Warn("skill promoted to broken", "skill", att.Skill)
	}
	return nil
}

func (r *promotingRecorder) RecordStructure(s memory.Structure) error {
	return r.mem.RecordStructure(s)
}
