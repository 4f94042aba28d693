package skills

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/basket/voxmind/internal/game"
)

// recipe is one node of the crafting tree the gather phase decomposes
// against. yields is items produced per craft.
type recipe struct {
	ingredients map[string]int
	yields      int
	needsTable  bool
}

var craftTree = map[string]recipe{
	"oak_planks":     {ingredients: map[string]int{"oak_log": 1}, yields: 4},
	"stick":          {ingredients: map[string]int{"oak_planks": 2}, yields: 4},
	"crafting_table": {ingredients: map[string]int{"oak_planks": 4}, yields: 1},
	"wooden_pickaxe": {ingredients: map[string]int{"oak_planks": 3, "stick": 2}, yields: 1, needsTable: true},
	"wooden_axe":     {ingredients: map[string]int{"oak_planks": 3, "stick": 2}, yields: 1, needsTable: true},
	"stone_pickaxe":  {ingredients: map[string]int{"cobblestone": 3, "stick": 2}, yields: 1, needsTable: true},
	"stone_axe":      {ingredients: map[string]int{"cobblestone": 3, "stick": 2}, yields: 1, needsTable: true},
	"torch":          {ingredients: map[string]int{"coal": 1, "stick": 1}, yields: 4},
	"furnace":        {ingredients: map[string]int{"cobblestone": 8}, yields: 1, needsTable: true},
	"chest":          {ingredients: map[string]int{"oak_planks": 8}, yields: 1, needsTable: true},
}

// mineSource maps a raw item to the block names that drop it.
var mineSource = map[string][]string{
	"oak_log":     {"oak_log", "birch_log", "spruce_log"},
	"cobblestone": {"stone", "cobblestone"},
	"coal":        {"coal_ore", "deepslate_coal_ore"},
}

// sourceMissing phrases line up with the precondition matcher.
var sourceMissing = map[string]string{
	"oak_log":     "no trees found nearby",
	"cobblestone": "no stone found nearby",
	"coal":        "cannot find coal nearby",
}

const (
	gatherReach = 32.0

	// maxNavCandidates bounds how many source blocks are tried when the
	// pathfinder cannot reach the nearest one.
	maxNavCandidates = 4
)

// Gather satisfies the material deficits, crafting recursively and
// mining raw items. report receives fractions in [0, 1] over the whole
// gather phase.
func Gather(ctx context.Context, rt *Runtime, needs map[string]int, report func(frac float64, msg string)) error {
	if len(needs) == 0 {
		return nil
	}
	if report == nil {
		report = func(float64, string) {}
	}
	keys := make([]string, 0, len(needs))
	for item := range needs {
		keys = append(keys, item)
	}
	for i, item := range keys {
		base := float64(i) / float64(len(keys))
		span := 1.0 / float64(len(keys))
		report(base, fmt.Sprintf("Gathering %s", item))
		if err := obtain(ctx, rt, item, needs[item], 0); err != nil {
			return err
		}
		report(base+span, fmt.Sprintf("Got %s", item))
	}
	return nil
}

const maxCraftDepth = 6

// obtain ensures the inventory holds at least want of item, recursing
// into the crafting tree or mining the raw source.
func obtain(ctx context.Context, rt *Runtime, item string, want, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth > maxCraftDepth {
		return fmt.Errorf("crafting chain for %s too deep", item)
	}
	have := InventoryCount(rt.Client, item)
	if have >= want {
		return nil
	}
	deficit := want - have

	rec, craftable := craftTree[item]
	if craftable {
		crafts := (deficit + rec.yields - 1) / rec.yields
		for ing, perCraft := range rec.ingredients {
			if err := obtain(ctx, rt, ing, perCraft*crafts, depth+1); err != nil {
				return err
			}
		}
		var table *game.Block
		if rec.needsTable {
			var err error
			table, err = ensureCraftingTable(ctx, rt)
			if err != nil {
				return err
			}
		}
		// Craft takes the desired item count; the bridge rounds up to
		// whole recipe batches itself.
		if err := rt.Client.Craft(ctx, item, deficit, table); err != nil {
			return fmt.Errorf("craft %s: %w", item, err)
		}
		return nil
	}

	sources, minable := mineSource[item]
	if !minable {
		return fmt.Errorf("missing: %s (no recipe and no known source)", item)
	}
	for InventoryCount(rt.Client, item) < want {
		if err := ctx.Err(); err != nil {
			return err
		}
		candidates := rt.Client.FindBlocks(func(b game.Block) bool {
			return b.Diggable && nameIn(b.Name, sources)
		}, maxNavCandidates, gatherReach)
		if len(candidates) == 0 {
			reason, ok := sourceMissing[item]
			if !ok {
				reason = fmt.Sprintf("cannot find %s nearby", strings.Join(sources, "/"))
			}
			return fmt.Errorf("missing: %s (%s)", item, reason)
		}
		if err := digFirstReachable(ctx, rt, candidates); err != nil {
			return err
		}
	}
	return nil
}

// digFirstReachable walks the candidates nearest first and digs the first
// one the pathfinder can actually reach. Stuck or timed-out navigation
// moves on to the next candidate; any other error aborts.
func digFirstReachable(ctx context.Context, rt *Runtime, candidates []game.Block) error {
	var navErr error
	for _, block := range candidates {
		if block.Pos.DistanceTo(rt.Client.Position()) > 4 {
			if err := rt.Client.GoTo(ctx, block.Pos, game.DefaultNavTimeout); err != nil {
				if errors.Is(err, game.ErrStuck) || errors.Is(err, game.ErrTimedOut) {
					navErr = err
					continue
				}
				return fmt.Errorf("reach %s: %w", block.Name, err)
			}
		}
		if err := rt.Client.Dig(ctx, block); err != nil {
			return fmt.Errorf("dig %s: %w", block.Name, err)
		}
		return nil
	}
	return fmt.Errorf("reach %s: %w", candidates[0].Name, navErr)
}

// ensureCraftingTable finds a nearby table, or places one from
// inventory, crafting it first when possible.
func ensureCraftingTable(ctx context.Context, rt *Runtime) (*game.Block, error) {
	if t := rt.Client.FindNearestBlock(func(b game.Block) bool {
		return b.Name == "crafting_table"
	}, gatherReach); t != nil {
		return t, nil
	}
	if InventoryCount(rt.Client, "crafting_table") == 0 {
		if err := obtain(ctx, rt, "crafting_table", 1, 0); err != nil {
			return nil, err
		}
	}
	ground := rt.Client.BlockAt(rt.Client.Position().Offset(1, -1, 0))
	if ground == nil {
		return nil, fmt.Errorf("no crafting table and nowhere to place one")
	}
	if err := rt.Client.PlaceBlock(ctx, *ground, game.Vec3{Y: 1}, "crafting_table"); err != nil {
		return nil, fmt.Errorf("place crafting table: %w", err)
	}
	t := rt.Client.FindNearestBlock(func(b game.Block) bool {
		return b.Name == "crafting_table"
	}, gatherReach)
	if t == nil {
		return nil, fmt.Errorf("placed crafting table but cannot find it")
	}
	return t, nil
}

// RecipeIngredients exposes the crafting tree to the craft primitive's
// missing-ingredient reporting.
func RecipeIngredients(item string) (map[string]int, bool) {
	rec, ok := craftTree[item]
	if !ok {
		return nil, false
	}
	out := make(map[string]int, len(rec.ingredients))
	for ing, n := range rec.ingredients {
		out[ing] = n
	}
	return out, ok
}

// NeedsTable reports whether crafting the item requires a crafting table.
func NeedsTable(item string) bool {
	return craftTree[item].needsTable
}

// EnsureCraftingTable finds or places a crafting table near the agent.
func EnsureCraftingTable(ctx context.Context, rt *Runtime) (*game.Block, error) {
	return ensureCraftingTable(ctx, rt)
}

func nameIn(name string, set []string) bool {
	for _, s := range set {
		if name == s {
			return true
		}
	}
	return false
}
