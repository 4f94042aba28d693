// Package world synthesises the observation block injected into the
// strategic prompt: one deterministic fact per line.
package world

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/basket/voxmind/internal/game"
	"github.com/basket/voxmind/internal/memory"
)

const (
	entityRadius  = 16.0
	scanHalfX     = 4
	scanHalfY     = 2
	scanHalfZ     = 4
	dayTickStart  = 13000
	dayTickEnd    = 23000
)

// hostileMobs is the closed set of mob type names treated as threats.
var hostileMobs = map[string]bool{
	"zombie": true, "skeleton": true, "creeper": true, "spider": true,
	"enderman": true, "witch": true, "drowned": true, "husk": true,
	"stray": true, "phantom": true, "pillager": true, "vindicator": true,
	"cave_spider": true, "zombie_villager": true, "slime": true,
	"silverfish": true, "blaze": true, "ghast": true, "piglin": true,
	"wither_skeleton": true,
}

// passiveMobs is the closed set of animals worth reporting.
var passiveMobs = map[string]bool{
	"cow": true, "pig": true, "sheep": true, "chicken": true,
	"horse": true, "rabbit": true, "wolf": true, "cat": true,
	"fox": true, "bee": true, "donkey": true, "llama": true,
}

// notableBlocks are interesting finds within the scan box.
var notableBlocks = map[string]bool{
	"coal_ore": true, "iron_ore": true, "gold_ore": true, "diamond_ore": true,
	"redstone_ore": true, "lapis_ore": true, "emerald_ore": true, "copper_ore": true,
	"deepslate_coal_ore": true, "deepslate_iron_ore": true, "deepslate_gold_ore": true,
	"deepslate_diamond_ore": true, "deepslate_redstone_ore": true, "deepslate_lapis_ore": true,
	"deepslate_emerald_ore": true, "deepslate_copper_ore": true,
	"crafting_table": true, "furnace": true, "chest": true,
	"enchanting_table": true, "anvil": true, "spawner": true,
}

// IsHostile reports whether a mob type name is in the hostile set.
func IsHostile(name string) bool { return hostileMobs[strings.ToLower(name)] }

// IsPassive reports whether a mob type name is in the passive set.
func IsPassive(name string) bool { return passiveMobs[strings.ToLower(name)] }

// IsOre reports whether a block name is an ore variant.
func IsOre(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), "_ore")
}

// IsDay classifies a world tick.
func IsDay(tick int) bool {
	return tick < dayTickStart || tick > dayTickEnd
}

// Hostiles returns hostile entities within 16 blocks, nearest first.
func Hostiles(c game.Client) []game.Entity {
	return nearbyEntities(c, func(e game.Entity) bool {
		return e.Kind != "player" && IsHostile(e.Name)
	})
}

// InWater reports whether the agent's feet or head block is water.
func InWater(c game.Client) bool {
	pos := c.Position().Floored()
	for _, p := range []game.Vec3{pos, pos.Offset(0, 1, 0)} {
		if b := c.BlockAt(p); b != nil && strings.Contains(b.Name, "water") {
			return true
		}
	}
	return false
}

// Describe renders the full observation block. Ore sightings are recorded
// to the persistent memory as a side effect.
func Describe(c game.Client, mem *memory.Memory) string {
	var sb strings.Builder
	pos := c.Position()
	fmt.Fprintf(&sb, "Position: %s\n", pos)
	fmt.Fprintf(&sb, "Health: %d/20, Food: %d/20\n", c.Health(), c.Food())

	tick := c.TimeOfDay()
	if IsDay(tick) {
		sb.WriteString("Time: day\n")
	} else {
		sb.WriteString("Time: night\n")
	}

	sb.WriteString("Inventory: " + formatInventory(c.Inventory()) + "\n")

	if hostiles := Hostiles(c); len(hostiles) > 0 {
		sb.WriteString("Hostile mobs nearby: " + formatEntities(hostiles, pos) + "\n")
	}
	players := nearbyEntities(c, func(e game.Entity) bool { return e.Kind == "player" })
	if len(players) > 0 {
		sb.WriteString("Players nearby: " + formatEntities(players, pos) + "\n")
	}
	passives := nearbyEntities(c, func(e game.Entity) bool {
		return e.Kind != "player" && IsPassive(e.Name)
	})
	if len(passives) > 0 {
		sb.WriteString("Animals nearby: " + formatEntities(passives, pos) + "\n")
	}

	if notable := scanNotable(c, mem); len(notable) > 0 {
		sb.WriteString("Notable blocks: " + strings.Join(notable, ", ") + "\n")
	}

	if !IsDay(tick) {
		sb.WriteString("Warning: it is night, hostile mobs spawn in the dark.\n")
	}
	if InWater(c) {
		sb.WriteString("You are in water.\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

func formatInventory(items []game.Item) string {
	if len(items) == 0 {
		return "empty"
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%s×%d", it.Name, it.Count))
	}
	return strings.Join(parts, ", ")
}

func formatEntities(ents []game.Entity, origin game.Vec3) string {
	parts := make([]string, 0, len(ents))
	for _, e := range ents {
		parts = append(parts, fmt.Sprintf("%s (%.0f blocks)", e.Name, e.Pos.DistanceTo(origin)))
	}
	return strings.Join(parts, ", ")
}

func nearbyEntities(c game.Client, pred func(game.Entity) bool) []game.Entity {
	origin := c.Position()
	var out []game.Entity
	for _, e := range c.Entities() {
		if e.Pos.DistanceTo(origin) <= entityRadius && pred(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Pos.DistanceTo(origin) < out[j].Pos.DistanceTo(origin)
	})
	return out
}

// scanNotable walks the 8×4×8 box around the agent and reports notable
// blocks, recording ores to memory.
func scanNotable(c game.Client, mem *memory.Memory) []string {
	origin := c.Position().Floored()
	seen := make(map[string]int)
	for dx := -scanHalfX; dx < scanHalfX; dx++ {
		for dy := -scanHalfY; dy < scanHalfY; dy++ {
			for dz := -scanHalfZ; dz < scanHalfZ; dz++ {
				p := origin.Offset(float64(dx), float64(dy), float64(dz))
				b := c.BlockAt(p)
				if b == nil || !notableBlocks[b.Name] {
					continue
				}
				seen[b.Name]++
				if IsOre(b.Name) && mem != nil {
					_ = mem.RecordOre(memory.OreDiscovery{
						Type: b.Name,
						X:    int(math.Floor(b.Pos.X)),
						Y:    int(math.Floor(b.Pos.Y)),
						Z:    int(math.Floor(b.Pos.Z)),
					})
				}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		if n := seen[name]; n > 1 {
			out = append(out, fmt.Sprintf("%s×%d", name, n))
		} else {
			out = append(out, name)
		}
	}
	return out
}
