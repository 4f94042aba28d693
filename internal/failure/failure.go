// Package failure tracks repeatedly-failing actions. It keeps a short-term
// blacklist with precondition-aware re-enabling and implements the promotion
// rule for the persistent broken-skill ledger stored in the memory file.
package failure

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/basket/voxmind/internal/game"
)

// Hard-blacklist threshold: consecutive failures before a key is blocked.
const hardBlacklistAfter = 2

// Expiry threshold: successes anywhere before the oldest non-environmental
// entry is released.
const expireAfterSuccesses = 8

// Soft-entry messages. Environmental ones ("no water found", "need 3 wool")
// are exempt from success-count expiry; they clear only when the
// precondition is actually met.
const (
	msgNoTrees   = "No trees found - explore then retry"
	msgNoWater   = "No water found within 96 blocks - explore then retry"
	msgNoWool    = "Need 3 wool same color - kill sheep"
	msgNoTorches = "No torches - mine coal and craft first"
)

type entry struct {
	key    string
	reason string
}

// Tracker is the short-term blacklist plus failure counters for one agent.
// Not safe for concurrent use; it lives on the agent goroutine.
type Tracker struct {
	logger    *slog.Logger
	entries   []entry // insertion order, oldest first
	counters  map[string]int
	successes int // since last expiry
}

func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		logger:   logger,
		counters: make(map[string]int),
	}
}

// CanonicalKey maps an action and its params to the blacklist key.
// isSkill reports whether a bare action name is a registered skill.
func CanonicalKey(action string, params map[string]any, isSkill func(string) bool) string {
	switch action {
	case "invoke_skill", "generate_skill":
		if name := stringParam(params, "skill"); name != "" {
			return "skill:" + name
		}
		return action
	case "craft":
		if item := stringParam(params, "item"); item != "" {
			return "craft:" + item
		}
		return action
	case "go_to":
		x, okX := numParam(params, "x")
		z, okZ := numParam(params, "z")
		if okX && okZ {
			return fmt.Sprintf("go_to:%d,%d", int(x), int(z))
		}
		return action
	}
	if isSkill != nil && isSkill(action) {
		return "skill:" + action
	}
	return action
}

// Blacklisted reports whether key is currently blocked, and why.
func (t *Tracker) Blacklisted(key string) (string, bool) {
	for _, e := range t.entries {
		if e.key == key {
			return e.reason, true
		}
	}
	return "", false
}

// Clear removes key's entry and resets its counter.
func (t *Tracker) Clear(key string) {
	delete(t.counters, key)
	for i, e := range t.entries {
		if e.key == key {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// RecordSuccess resets key's counter, removes its entry, and advances the
// expiry counter; every eighth success anywhere releases the oldest entry
// that is not waiting on an environmental precondition.
func (t *Tracker) RecordSuccess(key string) {
	t.Clear(key)
	t.successes++
	if t.successes < expireAfterSuccesses {
		return
	}
	t.successes = 0
	for i, e := range t.entries {
		lower := strings.ToLower(e.reason)
		if strings.Contains(lower, "no water found") || strings.Contains(lower, "need 3 wool") {
			continue
		}
		t.logger.Info("blacklist entry expired after sustained successes", "key", e.key)
		delete(t.counters, e.key)
		t.entries = append(t.entries[:i], t.entries[i+1:]...)
		return
	}
}

// RecordFailure updates counters and the blacklist for a failed action.
// Precondition failures get an immediate soft entry with a hint; other
// failures are hard-blacklisted after two in a row. A concurrent-skill
// refusal is not a failure of the requested skill and is ignored.
func (t *Tracker) RecordFailure(action, key, result string) {
	if strings.Contains(result, "Already running skill") {
		return
	}

	if reason, ok := softEntry(action, result); ok {
		t.put(key, reason)
		return
	}
	if strings.HasPrefix(result, "Unknown action:") {
		t.put(key, result)
		return
	}

	t.counters[key]++
	if t.counters[key] >= hardBlacklistAfter {
		reason := result
		if reason == "" {
			reason = "repeated failures"
		}
		t.put(key, reason)
	}
}

// softEntry matches the precondition patterns that warrant an immediate
// single-failure entry.
func softEntry(action, result string) (string, bool) {
	lower := strings.ToLower(result)
	switch {
	case (strings.Contains(action, "build_house") || strings.Contains(action, "gather_wood")) &&
		strings.Contains(lower, "no trees"):
		return msgNoTrees, true
	case strings.Contains(action, "build_farm") && strings.Contains(lower, "no water"):
		return msgNoWater, true
	case strings.Contains(strings.ToLower(action), "craftbed") && strings.Contains(lower, "no wool"):
		return msgNoWool, true
	case strings.Contains(action, "light_area") && strings.Contains(lower, "no torch"):
		return msgNoTorches, true
	case action == "craft" && strings.Contains(lower, "missing:"):
		idx := strings.Index(lower, "missing:")
		tail := strings.TrimSpace(result[idx+len("missing:"):])
		return "Missing materials: " + tail, true
	}
	return "", false
}

func (t *Tracker) put(key, reason string) {
	for i, e := range t.entries {
		if e.key == key {
			t.entries[i].reason = reason
			return
		}
	}
	t.logger.Info("action blacklisted", "key", key, "reason", reason)
	t.entries = append(t.entries, entry{key: key, reason: reason})
}

// Prepopulate seeds a soft entry without touching counters. Used for the
// session precondition carry-forward at startup.
func (t *Tracker) Prepopulate(key, reason string) {
	t.put(key, reason)
}

// FailureCount returns the consecutive-failure counter for key.
func (t *Tracker) FailureCount(key string) int {
	return t.counters[key]
}

// Len returns the number of blacklist entries.
func (t *Tracker) Len() int { return len(t.entries) }

// Snapshot returns key -> reason for all entries.
func (t *Tracker) Snapshot() map[string]string {
	out := make(map[string]string, len(t.entries))
	for _, e := range t.entries {
		out[e.key] = e.reason
	}
	return out
}

// Format renders the blacklist as a "do not retry" block for the strategic
// prompt, or "" when empty.
func (t *Tracker) Format() string {
	if len(t.entries) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Do NOT retry these (they keep failing):\n")
	for _, e := range t.entries {
		fmt.Fprintf(&sb, "- %s: %s\n", e.key, e.reason)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// RefreshPreconditions clears entries whose missing resource is now in the
// inventory. The water precondition is intentionally absent here: it is
// only re-checked at dispatch time, against the world rather than the
// inventory.
func (t *Tracker) RefreshPreconditions(inv []game.Item) {
	var kept []entry
	for _, e := range t.entries {
		if preconditionMet(e.reason, inv) {
			t.logger.Info("blacklist entry cleared, precondition met", "key", e.key)
			delete(t.counters, e.key)
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
}

func preconditionMet(reason string, inv []game.Item) bool {
	lower := strings.ToLower(reason)

	if strings.Contains(lower, "need 3 wool") {
		return hasWoolSet(inv)
	}
	if !strings.Contains(lower, "missing") && !strings.Contains(lower, "no torch") {
		return false
	}
	type want struct {
		mention string
		match   func(name string) bool
	}
	wants := []want{
		{"coal", func(n string) bool { return strings.Contains(n, "coal") }},
		{"stick", func(n string) bool { return strings.Contains(n, "stick") }},
		{"torch", func(n string) bool { return strings.Contains(n, "torch") }},
	}
	for _, w := range wants {
		if strings.Contains(lower, w.mention) && hasItem(inv, w.match) {
			return true
		}
	}
	if strings.Contains(lower, "wood") || strings.Contains(lower, "log") || strings.Contains(lower, "plank") {
		if hasItem(inv, func(n string) bool {
			return strings.Contains(n, "log") || strings.Contains(n, "plank")
		}) {
			return true
		}
	}
	return false
}

func hasItem(inv []game.Item, match func(string) bool) bool {
	for _, it := range inv {
		if it.Count > 0 && match(strings.ToLower(it.Name)) {
			return true
		}
	}
	return false
}

// hasWoolSet reports whether the inventory holds at least 3 wool of a
// single colour.
func hasWoolSet(inv []game.Item) bool {
	for _, it := range inv {
		if strings.HasSuffix(strings.ToLower(it.Name), "wool") && it.Count >= 3 {
			return true
		}
	}
	return false
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	if s, ok := params[key].(string); ok {
		return s
	}
	return ""
}

func numParam(params map[string]any, key string) (float64, bool) {
	if params == nil {
		return 0, false
	}
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
