package game

import (
	"fmt"
	"math"
)

// Vec3 is a position in the world. Block positions use whole coordinates.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceTo returns the euclidean distance to other.
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// HorizontalDistanceTo ignores the Y axis. Leash checks use this so that
// deep mining under the home anchor does not count as wandering off.
func (v Vec3) HorizontalDistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dz := v.Z - other.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// Floored returns the block coordinate containing v.
func (v Vec3) Floored() Vec3 {
	return Vec3{X: math.Floor(v.X), Y: math.Floor(v.Y), Z: math.Floor(v.Z)}
}

// Offset returns v translated by (dx, dy, dz).
func (v Vec3) Offset(dx, dy, dz float64) Vec3 {
	return Vec3{X: v.X + dx, Y: v.Y + dy, Z: v.Z + dz}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%d, %d, %d)", int(math.Floor(v.X)), int(math.Floor(v.Y)), int(math.Floor(v.Z)))
}

// Block is a world block snapshot.
type Block struct {
	Name     string `json:"name"`
	Pos      Vec3   `json:"pos"`
	Diggable bool   `json:"diggable"`
}

// Entity is a mob or player snapshot.
type Entity struct {
	ID   int    `json:"id"`
	Name string `json:"name"` // mob type name, or username for players
	Kind string `json:"kind"` // "mob", "player", "object"
	Pos  Vec3   `json:"pos"`
}

// Item is an inventory stack.
type Item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// EventKind identifies a game event delivered on the client's event channel.
type EventKind string

const (
	EventSpawn  EventKind = "spawn"
	EventDeath  EventKind = "death"
	EventKicked EventKind = "kicked"
	EventHealth EventKind = "health"
	EventDamage EventKind = "damage"
	EventChat   EventKind = "chat"
)

// Event is a game-side occurrence: spawn, death, kick, vitals change,
// damage taken, or an incoming chat line.
type Event struct {
	Kind   EventKind
	Health int    // EventHealth
	Food   int    // EventHealth
	From   string // EventChat
	Text   string // EventChat
	Reason string // EventKicked
}
