package actions

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/basket/voxmind/internal/game"
	"github.com/basket/voxmind/internal/neural"
	"github.com/basket/voxmind/internal/safety"
	"github.com/basket/voxmind/internal/skills"
	"github.com/basket/voxmind/internal/world"
)

const (
	maxGoToDistance = 200.0
	alreadyHereDist = 2.0
	attackRange     = 16.0
	fallbackRange   = 8.0
)

var craftAliases = map[string]string{
	"planks":         "oak_planks",
	"plank":          "oak_planks",
	"wood planks":    "oak_planks",
	"workbench":      "crafting_table",
	"crafting bench": "crafting_table",
	"table":          "crafting_table",
	"bed":            "red_bed",
	"sticks":         "stick",
	"torches":        "torch",
	"pickaxe":        "wooden_pickaxe",
	"axe":            "wooden_axe",
}

var foodWhitelist = []string{
	"bread", "apple", "golden_apple", "carrot", "baked_potato",
	"cooked_beef", "cooked_porkchop", "cooked_chicken", "cooked_mutton",
	"cooked_cod", "cooked_salmon", "cooked_rabbit", "melon_slice",
}

func (d *Dispatcher) gatherWood(ctx context.Context, params map[string]any) string {
	count := intParam(params, "count", 4)
	chopped := 0
	for chopped < count {
		if ctx.Err() != nil {
			break
		}
		log := d.Client.FindNearestBlock(func(b game.Block) bool {
			return b.Diggable && strings.HasSuffix(b.Name, "_log")
		}, 32)
		if log == nil {
			if chopped == 0 {
				return "No trees found nearby - explore then retry"
			}
			break
		}
		if log.Pos.DistanceTo(d.Client.Position()) > 4 {
			if err := d.Client.GoTo(ctx, log.Pos, game.DefaultNavTimeout); err != nil {
				return fmt.Sprintf("Chopped %d logs, then could not reach the next tree: %v", chopped, err)
			}
		}
		if err := d.Client.Dig(ctx, *log); err != nil {
			return fmt.Sprintf("Chopped %d logs, then dig failed: %v", chopped, err)
		}
		chopped++
	}
	return fmt.Sprintf("Chopped %d logs", chopped)
}

func (d *Dispatcher) mineBlock(ctx context.Context, params map[string]any) string {
	blockType := stringParam(params, "blockType")
	if blockType == "" {
		blockType = stringParam(params, "block")
	}
	if blockType == "" {
		return "Which block? Specify blockType"
	}
	want := strings.ToLower(strings.ReplaceAll(blockType, " ", "_"))
	count := intParam(params, "count", 1)
	mined := 0
	for mined < count {
		if ctx.Err() != nil {
			break
		}
		b := d.Client.FindNearestBlock(func(b game.Block) bool {
			return b.Diggable && strings.Contains(b.Name, want)
		}, 32)
		if b == nil {
			if mined == 0 {
				return fmt.Sprintf("Cannot find %s within 32 blocks", blockType)
			}
			break
		}
		if b.Pos.DistanceTo(d.Client.Position()) > 4 {
			if err := d.Client.GoTo(ctx, b.Pos, game.DefaultNavTimeout); err != nil {
				return fmt.Sprintf("Mined %d %s, then could not reach more: %v", mined, blockType, err)
			}
		}
		if err := d.Client.Dig(ctx, *b); err != nil {
			return fmt.Sprintf("Mined %d %s, then dig failed: %v", mined, blockType, err)
		}
		mined++
	}
	return fmt.Sprintf("Mined %d %s", mined, blockType)
}

func (d *Dispatcher) goTo(ctx context.Context, params map[string]any) string {
	x, okX := numParam(params, "x")
	z, okZ := numParam(params, "z")
	if !okX || !okZ {
		return "Where to? Specify x and z"
	}
	y, okY := numParam(params, "y")
	if !okY {
		y = d.Client.Position().Y
	}
	goal := game.Vec3{X: x, Y: y, Z: z}
	here := d.Client.Position()
	dist := here.HorizontalDistanceTo(goal)
	if dist < alreadyHereDist {
		return "Already here!"
	}
	if dist >= maxGoToDistance {
		return fmt.Sprintf("Too far away (%.0f blocks, max %.0f) - explore toward it instead", dist, maxGoToDistance)
	}
	if err := d.Client.GoTo(ctx, goal, 0); err != nil {
		return fmt.Sprintf("Could not get there: %v", err)
	}
	return fmt.Sprintf("Arrived at %s", d.Client.Position().Floored())
}

var cardinals = map[string]game.Vec3{
	"north": {Z: -1},
	"south": {Z: 1},
	"east":  {X: 1},
	"west":  {X: -1},
}

func (d *Dispatcher) explore(ctx context.Context, params map[string]any) string {
	dirName := strings.ToLower(stringParam(params, "direction"))
	dir, ok := cardinals[dirName]
	if !ok {
		names := []string{"north", "south", "east", "west"}
		dirName = names[rand.Intn(len(names))]
		dir = cardinals[dirName]
	}

	here := d.Client.Position()
	// Surface first when wet or underground, otherwise the hop just
	// grinds against a cave wall.
	if world.InWater(d.Client) || d.underground() {
		_ = d.Client.GoTo(ctx, here.Offset(0, 8, 0), game.DefaultNavTimeout)
		here = d.Client.Position()
	}

	hop := 20 + rand.Float64()*20
	jitter := rand.Float64()*8 - 4
	goal := here.Offset(dir.X*hop+jitter*dir.Z, 0, dir.Z*hop+jitter*dir.X)
	if err := d.Client.GoTo(ctx, goal, 0); err != nil {
		return fmt.Sprintf("Tried to head %s but got stuck: %v", dirName, err)
	}

	pos := d.Client.Position().Floored()
	notes := d.surroundingsNote()
	if notes != "" {
		return fmt.Sprintf("Explored %s to %s. %s", dirName, pos, notes)
	}
	return fmt.Sprintf("Explored %s to %s", dirName, pos)
}

func (d *Dispatcher) underground() bool {
	head := d.Client.Position().Offset(0, 2, 0)
	for dy := 0.0; dy < 12; dy++ {
		b := d.Client.BlockAt(head.Offset(0, dy, 0))
		if b == nil || b.Name == "air" {
			return false
		}
	}
	return true
}

func (d *Dispatcher) surroundingsNote() string {
	var notes []string
	if b := d.Client.FindNearestBlock(func(b game.Block) bool {
		return strings.HasSuffix(b.Name, "_log")
	}, 24); b != nil {
		notes = append(notes, "Trees nearby.")
	}
	if b := d.Client.FindNearestBlock(func(b game.Block) bool {
		return world.IsOre(b.Name)
	}, 24); b != nil {
		notes = append(notes, "Exposed "+b.Name+" nearby.")
	}
	if b := d.Client.FindNearestBlock(func(b game.Block) bool {
		return b.Name == "water"
	}, 24); b != nil {
		notes = append(notes, "Water nearby.")
	}
	return strings.Join(notes, " ")
}

func (d *Dispatcher) craft(ctx context.Context, params map[string]any) string {
	item := strings.ToLower(stringParam(params, "item"))
	if item == "" {
		return "Craft what? Specify item"
	}
	if alias, ok := craftAliases[item]; ok {
		item = alias
	}
	item = strings.ReplaceAll(item, " ", "_")
	count := intParam(params, "count", 1)

	rt := &skills.Runtime{Client: d.Client, Log: d.Log}
	var table *game.Block
	if skills.NeedsTable(item) {
		var err error
		table, err = skills.EnsureCraftingTable(ctx, rt)
		if err != nil {
			return fmt.Sprintf("Cannot craft %s: %v", item, err)
		}
	}

	err := d.Client.Craft(ctx, item, count, table)
	if err == nil {
		return fmt.Sprintf("Crafted %d %s", count, item)
	}

	// Log-to-plank fallback: most "missing planks" failures just mean
	// the logs have not been converted yet.
	if strings.Contains(strings.ToLower(err.Error()), "plank") && skills.InventoryCount(d.Client, "oak_log") > 0 {
		if perr := d.Client.Craft(ctx, "oak_planks", 4, nil); perr == nil {
			if err = d.Client.Craft(ctx, item, count, table); err == nil {
				return fmt.Sprintf("Crafted %d %s", count, item)
			}
		}
	}

	if ingredients, ok := skills.RecipeIngredients(item); ok {
		var missing []string
		for ing, n := range ingredients {
			if have := skills.InventoryCount(d.Client, ing); have < n*count {
				missing = append(missing, fmt.Sprintf("%s x%d", ing, n*count-have))
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return fmt.Sprintf("Cannot craft %s, missing: %s", item, strings.Join(missing, ", "))
		}
	}
	return fmt.Sprintf("Cannot craft %s: %v", item, err)
}

func (d *Dispatcher) eat(ctx context.Context) string {
	if d.Client.Food() >= 20 {
		return "Not hungry right now"
	}
	for _, food := range foodWhitelist {
		if skills.InventoryCount(d.Client, food) == 0 {
			continue
		}
		if err := d.Client.Equip(ctx, food); err != nil {
			continue
		}
		if err := d.Client.Consume(ctx); err != nil {
			continue
		}
		return fmt.Sprintf("Ate %s", food)
	}
	return "No food in inventory - hunt or farm first"
}

func (d *Dispatcher) attack(ctx context.Context) string {
	target := nearestEntity(d.Client, func(e game.Entity) bool {
		return world.IsHostile(e.Name)
	}, attackRange)
	if target == nil {
		target = nearestEntity(d.Client, func(e game.Entity) bool {
			return e.Kind == "mob" && !world.IsHostile(e.Name)
		}, fallbackRange)
	}
	if target == nil {
		return "No targets within range"
	}
	if err := d.Client.Attack(ctx, *target); err != nil {
		return fmt.Sprintf("Could not attack %s: %v", target.Name, err)
	}
	return fmt.Sprintf("Attacked and killed %s", target.Name)
}

func (d *Dispatcher) flee(ctx context.Context) string {
	threat := nearestEntity(d.Client, func(e game.Entity) bool {
		return world.IsHostile(e.Name)
	}, attackRange)
	here := d.Client.Position()
	goal := here
	if threat != nil {
		away := game.Vec3{X: here.X - threat.Pos.X, Z: here.Z - threat.Pos.Z}
		norm := away.DistanceTo(game.Vec3{})
		if norm < 0.01 {
			away, norm = game.Vec3{X: 1}, 1
		}
		goal = here.Offset(away.X/norm*16, 0, away.Z/norm*16)
	} else {
		goal = here.Offset(16, 0, 0)
	}
	if err := d.Client.GoTo(ctx, goal, game.DefaultNavTimeout); err != nil {
		return fmt.Sprintf("Tried to flee but got stuck: %v", err)
	}
	return fmt.Sprintf("Fled danger and arrived at %s", d.Client.Position().Floored())
}

func (d *Dispatcher) buildShelter(ctx context.Context) string {
	material := ""
	for _, candidate := range []string{"dirt", "cobblestone", "oak_planks"} {
		if skills.InventoryCount(d.Client, candidate) >= 8 {
			material = candidate
			break
		}
	}
	if material == "" {
		return "No blocks to build with - need 8 dirt, cobblestone or planks"
	}
	origin := d.Client.Position().Floored()
	placed := 0
	for _, off := range []game.Vec3{{X: 1}, {X: -1}, {Z: 1}, {Z: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}, {Z: 1, Y: 1}, {Z: -1, Y: 1}} {
		if ctx.Err() != nil {
			break
		}
		ref := d.Client.BlockAt(origin.Offset(off.X, off.Y-1, off.Z))
		if ref == nil {
			continue
		}
		if err := d.Client.PlaceBlock(ctx, *ref, game.Vec3{Y: 1}, material); err != nil {
			continue
		}
		placed++
	}
	if placed == 0 {
		return "Could not place shelter blocks here"
	}
	return fmt.Sprintf("Built a quick shelter with %d %s blocks", placed, material)
}

func (d *Dispatcher) placeBlock(ctx context.Context, params map[string]any) string {
	item := stringParam(params, "block")
	if item == "" {
		item = stringParam(params, "item")
	}
	if item == "" {
		return "Place what? Specify block"
	}
	if skills.InventoryCount(d.Client, item) == 0 {
		return fmt.Sprintf("No %s in inventory", item)
	}
	target := d.Client.Position().Floored().Offset(1, 0, 0)
	if x, ok := numParam(params, "x"); ok {
		z, _ := numParam(params, "z")
		y, okY := numParam(params, "y")
		if !okY {
			y = d.Client.Position().Y
		}
		target = game.Vec3{X: x, Y: y, Z: z}
	}
	ref := d.Client.BlockAt(target.Offset(0, -1, 0))
	if ref == nil {
		return fmt.Sprintf("Nothing to place %s against at %s", item, target)
	}
	if err := d.Client.PlaceBlock(ctx, *ref, game.Vec3{Y: 1}, item); err != nil {
		return fmt.Sprintf("Could not place %s: %v", item, err)
	}
	return fmt.Sprintf("Placed %s at %s", item, target)
}

func (d *Dispatcher) sleep(ctx context.Context) string {
	if d.Client.IsSleeping() {
		return "Already sleeping, zzz"
	}
	if world.IsDay(d.Client.TimeOfDay()) {
		// Not a failure: the model just mistimed it.
		return "Not nighttime yet, will sleep later - zzz"
	}
	bed := d.Client.FindNearestBlock(func(b game.Block) bool {
		return strings.HasSuffix(b.Name, "_bed")
	}, 16)
	if bed == nil {
		bedItem := ""
		for _, it := range d.Client.Inventory() {
			if strings.HasSuffix(it.Name, "_bed") {
				bedItem = it.Name
				break
			}
		}
		if bedItem == "" {
			return "No bed - craft one first"
		}
		ref := d.Client.BlockAt(d.Client.Position().Floored().Offset(1, -1, 0))
		if ref == nil {
			return "No bed and nowhere to place one"
		}
		if err := d.Client.PlaceBlock(ctx, *ref, game.Vec3{Y: 1}, bedItem); err != nil {
			return fmt.Sprintf("Could not place bed: %v", err)
		}
		bed = d.Client.FindNearestBlock(func(b game.Block) bool {
			return strings.HasSuffix(b.Name, "_bed")
		}, 16)
		if bed == nil {
			return "Put a bed down but cannot find it"
		}
	}
	if err := d.Client.Sleep(ctx, *bed); err != nil {
		return fmt.Sprintf("Could not get into bed: %v", err)
	}
	return "Sleeping now, zzz"
}

func (d *Dispatcher) chat(params map[string]any) string {
	msg := stringParam(params, "message")
	if msg == "" {
		msg = stringParam(params, "task")
	}
	if msg == "" {
		return "Nothing to say"
	}
	filtered := safety.FilterChatMessage(msg)
	d.Client.SendChat(filtered.Cleaned)
	return "Said: " + filtered.Cleaned
}

func (d *Dispatcher) neuralCombat(ctx context.Context, params map[string]any) string {
	threat := nearestEntity(d.Client, func(e game.Entity) bool {
		return world.IsHostile(e.Name)
	}, attackRange)
	if threat == nil {
		return "No hostiles nearby - combat over"
	}
	if d.Neural == nil || !d.Neural.Available() {
		return d.fallbackCombat(ctx, threat)
	}

	obs := d.buildObservation(threat)
	dec, err := d.Neural.Decide(ctx, obs)
	if err != nil {
		d.logger().Warn("combat coprocessor unavailable, using fallback", "error", err)
		return d.fallbackCombat(ctx, threat)
	}
	switch dec.Action {
	case neural.ActionAttack:
		if err := d.Client.Attack(ctx, *threat); err != nil {
			return fmt.Sprintf("Combat move failed: %v", err)
		}
		return fmt.Sprintf("Neural combat: attacked and killed %s", threat.Name)
	case neural.ActionStrafeLeft, neural.ActionStrafeRight:
		side := game.Vec3{X: 1}
		if dec.Action == neural.ActionStrafeLeft {
			side = game.Vec3{X: -1}
		}
		goal := d.Client.Position().Offset(side.X*3, 0, side.Z*3)
		_ = d.Client.GoTo(ctx, goal, game.DefaultNavTimeout)
		if err := d.Client.Attack(ctx, *threat); err == nil {
			return fmt.Sprintf("Neural combat: strafed and killed %s", threat.Name)
		}
		return "Neural combat: strafed away from " + threat.Name
	case neural.ActionFlee:
		return d.flee(ctx)
	case neural.ActionUseItem:
		if err := d.Client.UseItem(ctx); err != nil {
			return fmt.Sprintf("Combat item failed: %v", err)
		}
		return "Neural combat: used held item"
	default:
		return "Neural combat: holding position"
	}
}

func (d *Dispatcher) fallbackCombat(ctx context.Context, threat *game.Entity) string {
	for _, sword := range []string{"diamond_sword", "iron_sword", "stone_sword", "wooden_sword"} {
		if skills.InventoryCount(d.Client, sword) > 0 {
			_ = d.Client.Equip(ctx, sword)
			break
		}
	}
	if err := d.Client.Attack(ctx, *threat); err != nil {
		return fmt.Sprintf("Could not attack %s: %v", threat.Name, err)
	}
	return fmt.Sprintf("Attacked and killed %s", threat.Name)
}

func (d *Dispatcher) buildObservation(threat *game.Entity) neural.Observation {
	pos := d.Client.Position()
	var names []string
	for _, e := range d.Client.Entities() {
		if e.Pos.DistanceTo(pos) <= attackRange && e.Kind == "mob" {
			names = append(names, e.Name)
		}
	}
	hasAny := func(suffix string) bool {
		for _, it := range d.Client.Inventory() {
			if strings.HasSuffix(it.Name, suffix) {
				return true
			}
		}
		return false
	}
	return neural.Observation{
		Health: d.Client.Health(),
		Food:   d.Client.Food(),
		Pos:    [3]float64{pos.X, pos.Y, pos.Z},
		Hostile: &neural.Hostile{
			Name:          threat.Name,
			Distance:      threat.Pos.DistanceTo(pos),
			RelativeAngle: neural.RelativeAngle(pos, d.Client.Yaw(), threat.Pos),
		},
		Entities:  names,
		HasSword:  hasAny("_sword"),
		HasShield: hasAny("shield"),
		HasBow:    hasAny("bow"),
	}
}

func nearestEntity(c game.Client, pred func(game.Entity) bool, maxDist float64) *game.Entity {
	pos := c.Position()
	var best *game.Entity
	bestDist := maxDist
	for _, e := range c.Entities() {
		e := e
		if !pred(e) {
			continue
		}
		if dist := e.Pos.DistanceTo(pos); dist <= bestDist {
			best, bestDist = &e, dist
		}
	}
	return best
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
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

func numParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
