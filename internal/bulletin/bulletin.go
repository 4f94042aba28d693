// Package bulletin holds the process-wide status board agents use to see
// what their teammates are doing. One row per agent; last writer wins.
package bulletin

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/basket/voxmind/internal/game"
)

// StaleAfter marks entries older than this as stale when formatted.
const StaleAfter = 30 * time.Second

// Entry is one agent's row on the board.
type Entry struct {
	Agent     string
	Action    string
	Pos       game.Vec3
	Thought   string
	Health    int
	Food      int
	UpdatedAt time.Time
}

// Board is the shared status board. Safe for concurrent use; readers get
// snapshots, never live references.
type Board struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

func NewBoard() *Board {
	return &Board{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// Post replaces the caller's row. The timestamp is set here, not by the
// caller, so staleness is measured on one clock.
func (b *Board) Post(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e.UpdatedAt = b.now()
	b.entries[e.Agent] = e
}

// Snapshot returns a copy of all rows, sorted by agent name.
func (b *Board) Snapshot() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out
}

// FormatFor renders the board for the named agent's strategic prompt.
// The agent's own row is omitted. Stale rows are flagged.
func (b *Board) FormatFor(self string) string {
	entries := b.Snapshot()
	now := b.clock()

	var sb strings.Builder
	for _, e := range entries {
		if e.Agent == self {
			continue
		}
		age := now.Sub(e.UpdatedAt)
		line := fmt.Sprintf("- %s: %s at %s (hp %d/20, food %d/20)", e.Agent, e.Action, e.Pos, e.Health, e.Food)
		if e.Thought != "" {
			line += fmt.Sprintf(" - %q", e.Thought)
		}
		if age > StaleAfter {
			line += fmt.Sprintf(" [stale, %ds ago]", int(age.Seconds()))
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return "No teammates online."
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Board) clock() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.now()
}
