package skills

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/basket/voxmind/internal/bus"
	"github.com/basket/voxmind/internal/game"
	"github.com/basket/voxmind/internal/memory"
	"github.com/basket/voxmind/internal/otel"
)

// DefaultSkillTimeout bounds a single skill run end to end.
const DefaultSkillTimeout = 5 * time.Minute

const (
	gatherShare = 0.3 // share of overall progress spent gathering materials
)

// Recorder receives the attempt record after every run, and the built
// structure when a run reports one. Implemented by the memory file; a
// nil recorder is allowed in tests.
type Recorder interface {
	RecordSkillAttempt(a memory.SkillAttempt) error
	RecordStructure(s memory.Structure) error
}

// Executor runs at most one skill at a time for one agent.
type Executor struct {
	Agent   string
	Client  game.Client
	Log     *slog.Logger
	Bus     *bus.Bus
	Rec     Recorder
	Metrics *otel.Metrics
	Timeout time.Duration

	mu     sync.Mutex
	active string
	cancel context.CancelFunc
}

// Running reports whether a skill is currently active.
func (e *Executor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != ""
}

// ActiveName returns the running skill's name, or "".
func (e *Executor) ActiveName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Abort cancels the running skill, if any. The run returns an
// interrupted result through its own call path.
func (e *Executor) Abort() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run executes the skill through its phases. The refusal result for a
// concurrent start names the skill already running, not the requested
// one, so the dispatcher can exclude it from failure counting.
func (e *Executor) Run(ctx context.Context, skill Skill, params map[string]any) Result {
	e.mu.Lock()
	if e.active != "" {
		name := e.active
		e.mu.Unlock()
		return Result{Success: false, Message: "Already running skill " + name}
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultSkillTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	e.active = skill.Name()
	e.cancel = cancel
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.active = ""
		e.cancel = nil
		e.mu.Unlock()
	}()

	runID := uuid.NewString()
	started := time.Now()
	name := skill.Name()
	log := e.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("skill started", "agent", e.Agent, "skill", name, "run_id", runID)

	publish := func(phase string, frac float64, msg string, active bool) {
		if e.Bus == nil {
			return
		}
		e.Bus.Publish(bus.TopicSkillProgress, Progress{
			Agent: e.Agent, Skill: name, RunID: runID, Phase: phase,
			Progress: clamp01(frac), Message: msg, Active: active,
		})
	}
	publish("start", 0, "Starting "+name, true)

	rt := &Runtime{Client: e.Client, Log: log}

	result := func() Result {
		needs := skill.EstimateMaterials(e.Client, params)
		deficits := make(map[string]int)
		for item, want := range needs {
			if have := InventoryCount(e.Client, item); have < want {
				deficits[item] = want
			}
		}
		if len(deficits) > 0 {
			err := Gather(runCtx, rt, deficits, func(frac float64, msg string) {
				publish("gather", frac*gatherShare, msg, true)
			})
			if err != nil {
				if runCtx.Err() != nil {
					return Result{Success: false, Message: name + " was interrupted"}
				}
				return Result{Success: false, Message: fmt.Sprintf("Could not gather materials: %v", err)}
			}
		}
		publish("execute", gatherShare, "Executing "+name, true)
		rt.report = func(frac float64, msg string) {
			publish("execute", gatherShare+clamp01(frac)*(1-gatherShare), msg, true)
		}
		res := skill.Execute(runCtx, rt, params)
		if runCtx.Err() != nil && !res.Success {
			res.Message = name + " was interrupted"
		}
		return res
	}()

	elapsed := time.Since(started).Seconds()
	if e.Metrics != nil {
		e.Metrics.SkillDuration.Record(context.Background(), elapsed)
	}
	if e.Rec != nil {
		if err := e.Rec.RecordSkillAttempt(memory.SkillAttempt{
			Skill:           name,
			Success:         result.Success,
			DurationSeconds: elapsed,
			Notes:           result.Message,
			Timestamp:       time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			log.Warn("record skill attempt", "skill", name, "error", err)
		}
		if result.Success {
			if s, ok := structureFromResult(name, result); ok {
				if err := e.Rec.RecordStructure(s); err != nil {
					log.Warn("record structure", "skill", name, "error", err)
				}
			}
		}
	}
	publish("done", 1, result.Message, false)
	log.Info("skill finished", "agent", e.Agent, "skill", name,
		"run_id", runID, "success", result.Success, "duration_s", elapsed)
	return result
}

// structureFromResult extracts a build location from the result stats.
// Skills that leave something standing report x/y/z there.
func structureFromResult(name string, res Result) (memory.Structure, bool) {
	x, okX := statInt(res.Stats, "x")
	y, okY := statInt(res.Stats, "y")
	z, okZ := statInt(res.Stats, "z")
	if !okX || !okY || !okZ {
		return memory.Structure{}, false
	}
	return memory.Structure{Type: name, X: x, Y: y, Z: z, Notes: res.Message}, true
}

func statInt(stats map[string]any, key string) (int, bool) {
	switch v := stats[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
