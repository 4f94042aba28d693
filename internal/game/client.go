// Package game defines the capability surface the decision core consumes
// from the game-protocol client, plus a websocket adapter that speaks to a
// bot bridge process. Core packages depend only on the Client interface.
package game

import (
	"context"
	"errors"
	"time"
)

// Navigation errors. Skills retry with a different candidate on these.
var (
	ErrStuck    = errors.New("pathfinder stuck")
	ErrTimedOut = errors.New("pathfinder timed out")
)

// DefaultNavTimeout bounds a single go-to call unless overridden.
const DefaultNavTimeout = 15 * time.Second

// Client is the game-protocol capability set. One instance per agent.
// All blocking calls honour their context.
type Client interface {
	// Snapshot accessors.
	Position() Vec3
	Yaw() float64
	Health() int
	Food() int
	Inventory() []Item
	HeldItem() *Item
	TimeOfDay() int
	IsSleeping() bool

	// World queries.
	BlockAt(pos Vec3) *Block
	FindNearestBlock(pred func(Block) bool, maxDist float64) *Block
	FindBlocks(pred func(Block) bool, maxCount int, maxDist float64) []Block
	Entities() []Entity

	// Actions. GoTo resolves on arrival, or fails with ErrTimedOut /
	// ErrStuck once the total timeout or the stall detector trips.
	GoTo(ctx context.Context, goal Vec3, timeout time.Duration) error
	Dig(ctx context.Context, block Block) error
	PlaceBlock(ctx context.Context, ref Block, face Vec3, item string) error
	Craft(ctx context.Context, item string, count int, table *Block) error
	Equip(ctx context.Context, item string) error
	Consume(ctx context.Context) error
	Attack(ctx context.Context, target Entity) error
	UseItem(ctx context.Context) error
	Sleep(ctx context.Context, bed Block) error
	Wake(ctx context.Context) error
	SendChat(text string)

	// Events delivers spawn/death/kick/vitals/damage/chat events until the
	// client disconnects, at which point the channel is closed.
	Events() <-chan Event
}
