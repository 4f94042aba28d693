// Package skills holds the skill contract, the registry, and the
// single-slot executor that runs skills with material gathering,
// progress reporting, and cancellation.
package skills

import (
	"context"
	"log/slog"

	"github.com/basket/voxmind/internal/game"
)

// Result is the outcome of one skill run.
type Result struct {
	Success bool
	Message string
	Stats   map[string]any
}

// Progress is a snapshot published to the overlay while a skill runs.
// It never reaches the language model.
type Progress struct {
	Agent    string  `json:"agent"`
	Skill    string  `json:"skill"`
	RunID    string  `json:"runId"`
	Phase    string  `json:"phase"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
	Active   bool    `json:"active"`
}

// Runtime is what the executor hands to a running skill.
type Runtime struct {
	Client game.Client
	Log    *slog.Logger
	report func(frac float64, msg string)
}

// Report emits a progress snapshot. frac is the skill's own notion of
// progress in [0, 1]; the executor remaps it into the overall run.
func (rt *Runtime) Report(frac float64, msg string) {
	if rt.report != nil {
		rt.report(frac, msg)
	}
}

// Skill is a cancellable multi-phase procedure. Execute must check ctx
// at every loop iteration and between blocking calls.
type Skill interface {
	Name() string
	Description() string
	// ParamSchema returns a JSON Schema document for the params map,
	// or nil when the skill takes no parameters.
	ParamSchema() map[string]any
	// EstimateMaterials returns item deficits the executor should
	// gather before Execute runs. Nil or empty skips the gather phase.
	EstimateMaterials(c game.Client, params map[string]any) map[string]int
	Execute(ctx context.Context, rt *Runtime, params map[string]any) Result
}

// InventoryCount sums the count of matching items across stacks.
func InventoryCount(c game.Client, name string) int {
	total := 0
	for _, it := range c.Inventory() {
		if it.Name == name {
			total += it.Count
		}
	}
	return total
}
