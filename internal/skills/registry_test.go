package skills

import (
	"context"
	"strings"
	"testing"

	"github.com/basket/voxmind/internal/game"
)

type stubSkill struct {
	name   string
	desc   string
	schema map[string]any
	run    func(ctx context.Context, rt *Runtime, params map[string]any) Result
	needs  map[string]int
}

func (s *stubSkill) Name() string                { return s.name }
func (s *stubSkill) Description() string         { return s.desc }
func (s *stubSkill) ParamSchema() map[string]any { return s.schema }

func (s *stubSkill) EstimateMaterials(game.Client, map[string]any) map[string]int { return s.needs }

func (s *stubSkill) Execute(ctx context.Context, rt *Runtime, params map[string]any) Result {
	if s.run != nil {
		return s.run(ctx, rt, params)
	}
	return Result{Success: true, Message: s.name + " completed"}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterStatic(&stubSkill{name: "dig_down", desc: "digs"}); err != nil {
		t.Fatalf("RegisterStatic: %v", err)
	}
	if err := r.Register(&stubSkill{name: "gen_tower", desc: "generated"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, ok := r.Get("dig_down"); !ok {
		t.Fatal("dig_down not found")
	}
	if names := r.Names(); len(names) != 2 || names[0] != "dig_down" || names[1] != "gen_tower" {
		t.Fatalf("Names = %v", names)
	}
	static := r.StaticNames()
	if !static["dig_down"] || static["gen_tower"] {
		t.Fatalf("static set = %v", static)
	}
}

func TestRegistry_EmptyNameRejected(t *testing.T) {
	if err := NewRegistry().Register(&stubSkill{}); err == nil {
		t.Fatal("expected error for empty skill name")
	}
}

func TestRegistry_ValidateParams(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&stubSkill{
		name: "tower",
		schema: map[string]any{
			"type":     "object",
			"required": []any{"height"},
			"properties": map[string]any{
				"height": map[string]any{"type": "integer", "minimum": 1},
			},
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := r.ValidateParams("tower", map[string]any{"height": 5}); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}
	if err := r.ValidateParams("tower", map[string]any{"height": "tall"}); err == nil {
		t.Fatal("string height should fail validation")
	}
	if err := r.ValidateParams("tower", nil); err == nil {
		t.Fatal("missing required field should fail validation")
	}
	// No schema registered means anything goes.
	r.Register(&stubSkill{name: "freeform"})
	if err := r.ValidateParams("freeform", map[string]any{"whatever": true}); err != nil {
		t.Fatalf("schemaless skill rejected params: %v", err)
	}
}

func TestRegistry_Describe(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubSkill{name: "a_skill", desc: "does a"})
	r.Register(&stubSkill{name: "b_skill", desc: "does b"})

	all := r.Describe(nil)
	if !strings.Contains(all, "a_skill: does a") || !strings.Contains(all, "b_skill: does b") {
		t.Fatalf("Describe(nil) = %q", all)
	}
	only := r.Describe([]string{"b_skill"})
	if strings.Contains(only, "a_skill") || !strings.Contains(only, "b_skill") {
		t.Fatalf("Describe(allowed) = %q", only)
	}
}

func TestRegistry_ReplaceKeepsLatest(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubSkill{name: "tower", desc: "v1"})
	r.Register(&stubSkill{name: "tower", desc: "v2"})
	s, _ := r.Get("tower")
	if s.Description() != "v2" {
		t.Fatalf("Description = %q, want v2", s.Description())
	}
}
