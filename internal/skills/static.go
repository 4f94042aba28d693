package skills

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/basket/voxmind/internal/game"
)

// RegisterBuiltins registers the skills shipped as source.
func RegisterBuiltins(r *Registry) error {
	builtins := []Skill{
		&BuildHouse{},
		&BuildFarm{},
		&CraftBed{},
		&LightArea{},
		&StripMine{},
		&Fishing{},
	}
	for _, s := range builtins {
		if err := r.RegisterStatic(s); err != nil {
			return err
		}
	}
	return nil
}

// countSchema is shared by skills taking an optional count.
func countSchema(desc string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count": map[string]any{"type": "integer", "minimum": 1, "description": desc},
		},
	}
}

func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

// BuildHouse erects a small plank shelter around the agent.
type BuildHouse struct{}

func (*BuildHouse) Name() string        { return "build_house" }
func (*BuildHouse) Description() string { return "Build a small plank house at the current position" }
func (*BuildHouse) ParamSchema() map[string]any { return nil }

func (*BuildHouse) EstimateMaterials(c game.Client, _ map[string]any) map[string]int {
	return map[string]int{"oak_planks": 20}
}

func (*BuildHouse) Execute(ctx context.Context, rt *Runtime, _ map[string]any) Result {
	origin := rt.Client.Position().Floored()
	placed := 0
	// Walls only; the roof is left open so the agent can path out.
	offsets := houseWallOffsets()
	for i, off := range offsets {
		if err := ctx.Err(); err != nil {
			return Result{Success: false, Message: "build_house was interrupted"}
		}
		target := origin.Offset(off.X, off.Y, off.Z)
		ref := rt.Client.BlockAt(target.Offset(0, -1, 0))
		if ref == nil {
			continue
		}
		if err := rt.Client.PlaceBlock(ctx, *ref, game.Vec3{Y: 1}, "oak_planks"); err != nil {
			continue
		}
		placed++
		rt.Report(float64(i+1)/float64(len(offsets)), fmt.Sprintf("Placed %d blocks", placed))
	}
	if placed == 0 {
		return Result{Success: false, Message: "Could not place any blocks for the house"}
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Built a house at %s with %d blocks", origin, placed),
		Stats:   map[string]any{"blocks": placed, "x": origin.X, "y": origin.Y, "z": origin.Z},
	}
}

func houseWallOffsets() []game.Vec3 {
	var out []game.Vec3
	for _, y := range []float64{0, 1} {
		for dx := -2.0; dx <= 2; dx++ {
			for dz := -2.0; dz <= 2; dz++ {
				onEdge := dx == -2 || dx == 2 || dz == -2 || dz == 2
				doorway := y == 0 && dx == 0 && dz == -2
				if onEdge && !doorway {
					out = append(out, game.Vec3{X: dx, Y: y, Z: dz})
				}
			}
		}
	}
	return out
}

// BuildFarm tills a plot near water and plants seeds.
type BuildFarm struct{}

const farmWaterRange = 96.0

func (*BuildFarm) Name() string        { return "build_farm" }
func (*BuildFarm) Description() string { return "Plant a small crop farm next to water" }
func (*BuildFarm) ParamSchema() map[string]any { return nil }

func (*BuildFarm) EstimateMaterials(game.Client, map[string]any) map[string]int { return nil }

func (*BuildFarm) Execute(ctx context.Context, rt *Runtime, _ map[string]any) Result {
	water := rt.Client.FindNearestBlock(func(b game.Block) bool {
		return b.Name == "water"
	}, farmWaterRange)
	if water == nil {
		return Result{Success: false, Message: "No water found within 96 blocks - explore then retry"}
	}
	if InventoryCount(rt.Client, "wheat_seeds") == 0 {
		return Result{Success: false, Message: "No seeds to plant - break tall grass first"}
	}
	if water.Pos.DistanceTo(rt.Client.Position()) > 4 {
		if err := rt.Client.GoTo(ctx, water.Pos.Offset(1, 0, 0), game.DefaultNavTimeout); err != nil {
			return Result{Success: false, Message: fmt.Sprintf("Could not reach water: %v", err)}
		}
	}
	planted := 0
	base := rt.Client.Position().Floored()
	for dx := -1.0; dx <= 1; dx++ {
		for dz := -1.0; dz <= 1; dz++ {
			if err := ctx.Err(); err != nil {
				return Result{Success: false, Message: "build_farm was interrupted"}
			}
			ground := rt.Client.BlockAt(base.Offset(dx, -1, dz))
			if ground == nil || !ground.Diggable {
				continue
			}
			if err := rt.Client.PlaceBlock(ctx, *ground, game.Vec3{Y: 1}, "wheat_seeds"); err != nil {
				continue
			}
			planted++
			rt.Report(float64(planted)/9, fmt.Sprintf("Planted %d seeds", planted))
		}
	}
	if planted == 0 {
		return Result{Success: false, Message: "No tillable dirt next to the water"}
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Planted a farm with %d crops near %s", planted, water.Pos),
		Stats:   map[string]any{"planted": planted, "x": base.X, "y": base.Y, "z": base.Z},
	}
}

// CraftBed crafts a bed from matching wool and planks.
type CraftBed struct{}

func (*CraftBed) Name() string        { return "craftBed" }
func (*CraftBed) Description() string { return "Craft a bed from 3 matching wool and 3 planks" }
func (*CraftBed) ParamSchema() map[string]any { return nil }

func (*CraftBed) EstimateMaterials(game.Client, map[string]any) map[string]int { return nil }

func (*CraftBed) Execute(ctx context.Context, rt *Runtime, _ map[string]any) Result {
	colour := woolColourWithCount(rt.Client, 3)
	if colour == "" {
		return Result{Success: false, Message: "No wool - need 3 wool of the same color, kill sheep"}
	}
	if err := Gather(ctx, rt, map[string]int{"oak_planks": 3}, nil); err != nil {
		if ctx.Err() != nil {
			return Result{Success: false, Message: "craftBed was interrupted"}
		}
		return Result{Success: false, Message: fmt.Sprintf("Could not get planks: %v", err)}
	}
	bed := colour + "_bed"
	if err := rt.Client.Craft(ctx, bed, 1, nil); err != nil {
		return Result{Success: false, Message: fmt.Sprintf("Could not craft %s: %v", bed, err)}
	}
	return Result{Success: true, Message: "Crafted a " + bed, Stats: map[string]any{"bed": bed}}
}

func woolColourWithCount(c game.Client, want int) string {
	counts := make(map[string]int)
	for _, it := range c.Inventory() {
		if strings.HasSuffix(it.Name, "_wool") {
			colour := strings.TrimSuffix(it.Name, "_wool")
			counts[colour] += it.Count
		}
	}
	for colour, n := range counts {
		if n >= want {
			return colour
		}
	}
	return ""
}

// LightArea places torches in a ring around the agent.
type LightArea struct{}

func (*LightArea) Name() string        { return "light_area" }
func (*LightArea) Description() string { return "Place torches around the current position" }
func (*LightArea) ParamSchema() map[string]any {
	return countSchema("number of torches to place")
}

func (*LightArea) EstimateMaterials(game.Client, map[string]any) map[string]int { return nil }

func (*LightArea) Execute(ctx context.Context, rt *Runtime, params map[string]any) Result {
	want := intParam(params, "count", 4)
	have := InventoryCount(rt.Client, "torch")
	if have == 0 {
		return Result{Success: false, Message: "No torches - mine coal and craft torches first"}
	}
	if want > have {
		want = have
	}
	origin := rt.Client.Position().Floored()
	ring := []game.Vec3{{X: 3}, {X: -3}, {Z: 3}, {Z: -3}, {X: 3, Z: 3}, {X: -3, Z: -3}}
	placed := 0
	for _, off := range ring {
		if placed >= want {
			break
		}
		if err := ctx.Err(); err != nil {
			return Result{Success: false, Message: "light_area was interrupted"}
		}
		ground := rt.Client.BlockAt(origin.Offset(off.X, -1, off.Z))
		if ground == nil {
			continue
		}
		if err := rt.Client.PlaceBlock(ctx, *ground, game.Vec3{Y: 1}, "torch"); err != nil {
			continue
		}
		placed++
		rt.Report(float64(placed)/float64(want), fmt.Sprintf("Placed %d torches", placed))
	}
	if placed == 0 {
		return Result{Success: false, Message: "Could not place any torches here"}
	}
	return Result{Success: true, Message: fmt.Sprintf("Lit the area with %d torches", placed)}
}

// StripMine digs a straight corridor at the current depth.
type StripMine struct{}

func (*StripMine) Name() string        { return "strip_mine" }
func (*StripMine) Description() string { return "Dig a straight mining corridor, lighting as it goes" }
func (*StripMine) ParamSchema() map[string]any {
	return countSchema("corridor length in blocks")
}

func (*StripMine) EstimateMaterials(c game.Client, _ map[string]any) map[string]int {
	needs := map[string]int{"torch": 4}
	if InventoryCount(c, "stone_pickaxe") == 0 && InventoryCount(c, "iron_pickaxe") == 0 {
		needs["stone_pickaxe"] = 1
	}
	return needs
}

func (*StripMine) Execute(ctx context.Context, rt *Runtime, params map[string]any) Result {
	length := intParam(params, "count", 16)
	pick := "stone_pickaxe"
	if InventoryCount(rt.Client, "iron_pickaxe") > 0 {
		pick = "iron_pickaxe"
	}
	if err := rt.Client.Equip(ctx, pick); err != nil {
		return Result{Success: false, Message: fmt.Sprintf("Need pickaxe equipped: %v", err)}
	}
	mined := 0
	ores := 0
	pos := rt.Client.Position().Floored()
	for i := 0; i < length; i++ {
		if err := ctx.Err(); err != nil {
			return Result{Success: false, Message: "strip_mine was interrupted"}
		}
		head := pos.Offset(float64(i+1), 1, 0)
		feet := pos.Offset(float64(i+1), 0, 0)
		for _, target := range []game.Vec3{head, feet} {
			b := rt.Client.BlockAt(target)
			if b == nil || !b.Diggable || b.Name == "air" {
				continue
			}
			if strings.Contains(b.Name, "_ore") {
				ores++
			}
			if err := rt.Client.Dig(ctx, *b); err != nil {
				return Result{Success: false, Message: fmt.Sprintf("Mined %d blocks, then dig failed: %v", mined, err)}
			}
			mined++
		}
		if i > 0 && i%6 == 0 && InventoryCount(rt.Client, "torch") > 0 {
			if ground := rt.Client.BlockAt(feet.Offset(0, -1, 0)); ground != nil {
				_ = rt.Client.PlaceBlock(ctx, *ground, game.Vec3{Y: 1}, "torch")
			}
		}
		rt.Report(float64(i+1)/float64(length), fmt.Sprintf("Mined %d blocks", mined))
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Mined a %d-block corridor, broke %d blocks, found %d ores", length, mined, ores),
		Stats:   map[string]any{"mined": mined, "ores": ores},
	}
}

// Fishing casts a rod into nearby water until the timer or count is up.
type Fishing struct{}

func (*Fishing) Name() string        { return "fishing" }
func (*Fishing) Description() string { return "Fish in nearby water" }
func (*Fishing) ParamSchema() map[string]any {
	return countSchema("number of casts")
}

func (*Fishing) EstimateMaterials(game.Client, map[string]any) map[string]int { return nil }

func (*Fishing) Execute(ctx context.Context, rt *Runtime, params map[string]any) Result {
	if InventoryCount(rt.Client, "fishing_rod") == 0 {
		return Result{Success: false, Message: "Cannot fish, missing: fishing_rod"}
	}
	water := rt.Client.FindNearestBlock(func(b game.Block) bool {
		return b.Name == "water"
	}, 32)
	if water == nil {
		return Result{Success: false, Message: "No water found nearby to fish in"}
	}
	if water.Pos.DistanceTo(rt.Client.Position()) > 3 {
		if err := rt.Client.GoTo(ctx, water.Pos.Offset(1, 1, 0), game.DefaultNavTimeout); err != nil {
			return Result{Success: false, Message: fmt.Sprintf("Could not reach water: %v", err)}
		}
	}
	if err := rt.Client.Equip(ctx, "fishing_rod"); err != nil {
		return Result{Success: false, Message: fmt.Sprintf("Could not equip rod: %v", err)}
	}
	casts := intParam(params, "count", 3)
	caught := 0
	for i := 0; i < casts; i++ {
		if err := rt.Client.UseItem(ctx); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			return Result{Success: false, Message: "fishing was interrupted"}
		case <-time.After(2 * time.Second):
		}
		if err := rt.Client.UseItem(ctx); err != nil {
			break
		}
		caught++
		rt.Report(float64(i+1)/float64(casts), fmt.Sprintf("Caught %d fish", caught))
	}
	if caught == 0 {
		return Result{Success: false, Message: "Nothing was biting"}
	}
	return Result{Success: true, Message: fmt.Sprintf("Caught %d fish", caught), Stats: map[string]any{"caught": caught}}
}
