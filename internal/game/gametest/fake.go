// Package gametest provides an in-memory game.Client used by package tests
// across the decision core.
package gametest

import (
	"context"
	"sync"
	"time"

	"github.com/basket/voxmind/internal/game"
)

// Fake is a controllable in-memory world. Zero value is not usable; call New.
type Fake struct {
	mu sync.Mutex

	Pos      game.Vec3
	YawVal   float64
	HP       int
	FoodVal  int
	Time     int
	Sleeping bool
	Held     *game.Item
	Items    []game.Item
	Blocks   map[[3]int]game.Block
	Ents     []game.Entity

	// GoToErr, when set, is returned by every GoTo call.
	GoToErr error
	// GoToFunc, when set, is consulted per goal before the bot moves;
	// a non-nil return fails that call and leaves the position alone.
	GoToFunc func(goal game.Vec3) error
	// CraftErr, when set, is returned by every Craft call.
	CraftErr error

	ChatLog  []string
	DigLog   []game.Block
	CraftLog []string

	events chan game.Event
}

func New() *Fake {
	return &Fake{
		HP:      20,
		FoodVal: 20,
		Time:    1000,
		Blocks:  make(map[[3]int]game.Block),
		events:  make(chan game.Event, 64),
	}
}

// SetBlock places a block in the fake world.
func (f *Fake) SetBlock(b game.Block) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := b.Pos.Floored()
	f.Blocks[[3]int{int(p.X), int(p.Y), int(p.Z)}] = b
}

// Give adds an item stack to the inventory.
func (f *Fake) Give(name string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.Items {
		if f.Items[i].Name == name {
			f.Items[i].Count += count
			return
		}
	}
	f.Items = append(f.Items, game.Item{Name: name, Count: count})
}

// Take removes up to count items; returns how many were removed.
func (f *Fake) Take(name string, count int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.Items {
		if f.Items[i].Name == name {
			n := count
			if f.Items[i].Count < n {
				n = f.Items[i].Count
			}
			f.Items[i].Count -= n
			return n
		}
	}
	return 0
}

// Emit pushes a game event to the client's event channel.
func (f *Fake) Emit(ev game.Event) { f.events <- ev }

// CloseEvents closes the event channel, simulating disconnect.
func (f *Fake) CloseEvents() { close(f.events) }

func (f *Fake) Position() game.Vec3 { f.mu.Lock(); defer f.mu.Unlock(); return f.Pos }
func (f *Fake) Yaw() float64        { f.mu.Lock(); defer f.mu.Unlock(); return f.YawVal }
func (f *Fake) Health() int         { f.mu.Lock(); defer f.mu.Unlock(); return f.HP }
func (f *Fake) Food() int           { f.mu.Lock(); defer f.mu.Unlock(); return f.FoodVal }
func (f *Fake) TimeOfDay() int      { f.mu.Lock(); defer f.mu.Unlock(); return f.Time }
func (f *Fake) IsSleeping() bool    { f.mu.Lock(); defer f.mu.Unlock(); return f.Sleeping }

func (f *Fake) Inventory() []game.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []game.Item
	for _, it := range f.Items {
		if it.Count > 0 {
			out = append(out, it)
		}
	}
	return out
}

func (f *Fake) HeldItem() *game.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Held == nil {
		return nil
	}
	h := *f.Held
	return &h
}

func (f *Fake) BlockAt(pos game.Vec3) *game.Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := pos.Floored()
	if b, ok := f.Blocks[[3]int{int(p.X), int(p.Y), int(p.Z)}]; ok {
		return &b
	}
	return nil
}

func (f *Fake) FindNearestBlock(pred func(game.Block) bool, maxDist float64) *game.Block {
	blocks := f.FindBlocks(pred, 1, maxDist)
	if len(blocks) == 0 {
		return nil
	}
	return &blocks[0]
}

func (f *Fake) FindBlocks(pred func(game.Block) bool, maxCount int, maxDist float64) []game.Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []game.Block
	for _, b := range f.Blocks {
		if b.Pos.DistanceTo(f.Pos) <= maxDist && pred(b) {
			out = append(out, b)
		}
	}
	// nearest-first
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Pos.DistanceTo(f.Pos) < out[j-1].Pos.DistanceTo(f.Pos); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if maxCount > 0 && len(out) > maxCount {
		out = out[:maxCount]
	}
	return out
}

func (f *Fake) Entities() []game.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()
	ents := make([]game.Entity, len(f.Ents))
	copy(ents, f.Ents)
	return ents
}

func (f *Fake) GoTo(ctx context.Context, goal game.Vec3, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GoToErr != nil {
		return f.GoToErr
	}
	if f.GoToFunc != nil {
		if err := f.GoToFunc(goal); err != nil {
			return err
		}
	}
	f.Pos = goal
	return nil
}

// digDrops maps dug blocks to the item picked up.
var digDrops = map[string]string{
	"stone":              "cobblestone",
	"coal_ore":           "coal",
	"deepslate_coal_ore": "coal",
	"grass_block":        "dirt",
}

func (f *Fake) Dig(ctx context.Context, block game.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	p := block.Pos.Floored()
	delete(f.Blocks, [3]int{int(p.X), int(p.Y), int(p.Z)})
	f.DigLog = append(f.DigLog, block)
	f.mu.Unlock()

	drop := block.Name
	if mapped, ok := digDrops[block.Name]; ok {
		drop = mapped
	}
	f.Give(drop, 1)
	return nil
}

func (f *Fake) PlaceBlock(ctx context.Context, ref game.Block, face game.Vec3, item string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pos := ref.Pos.Offset(face.X, face.Y, face.Z)
	f.SetBlock(game.Block{Name: item, Pos: pos, Diggable: true})
	return nil
}

func (f *Fake) Craft(ctx context.Context, item string, count int, table *game.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	if f.CraftErr != nil {
		f.mu.Unlock()
		return f.CraftErr
	}
	f.CraftLog = append(f.CraftLog, item)
	f.mu.Unlock()
	f.Give(item, count)
	return nil
}

func (f *Fake) Equip(ctx context.Context, item string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Held = &game.Item{Name: item, Count: 1}
	return nil
}

func (f *Fake) Consume(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Held == nil {
		return context.Canceled
	}
	if f.FoodVal < 20 {
		f.FoodVal += 5
		if f.FoodVal > 20 {
			f.FoodVal = 20
		}
	}
	return nil
}

func (f *Fake) Attack(ctx context.Context, target game.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.Ents {
		if e.ID == target.ID {
			f.Ents = append(f.Ents[:i], f.Ents[i+1:]...)
			break
		}
	}
	return nil
}

func (f *Fake) UseItem(ctx context.Context) error { return nil }

func (f *Fake) Sleep(ctx context.Context, bed game.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sleeping = true
	return nil
}

func (f *Fake) Wake(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sleeping = false
	return nil
}

func (f *Fake) SendChat(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ChatLog = append(f.ChatLog, text)
}

func (f *Fake) Events() <-chan game.Event { return f.events }
