package failure

import (
	"strings"

	"github.com/basket/voxmind/internal/memory"
)

// Promotion rule: a skill with this many non-precondition failures and zero
// successes in the rolling attempt history is judged unrecoverably broken.
const brokenThreshold = 5

// preconditionKeywords identify failures caused by a missing resource or
// absent environment rather than broken skill code. "timed out" is
// deliberately not listed so combat losses are not masked.
var preconditionKeywords = []string{
	"no trees found",
	"need wood",
	"need pickaxe",
	"no torches",
	"no crafting table",
	"no furnace",
	"missing materials",
	"no water found",
	"no tillable dirt",
	"no seeds",
	"can't craft a hoe",
	"chunk may not be loaded",
	"cannot find",
	"could not find",
	"nothing to smelt",
}

// IsPreconditionFailure reports whether the failure notes describe a
// missing prerequisite rather than a real malfunction.
func IsPreconditionFailure(notes string) bool {
	lower := strings.ToLower(notes)
	for _, kw := range preconditionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ShouldPromoteBroken applies the persistent-broken rule to one skill's
// slice of the rolling attempt history.
func ShouldPromoteBroken(history []memory.SkillAttempt, skill string) bool {
	failures := 0
	for _, a := range history {
		if a.Skill != skill {
			continue
		}
		if a.Success {
			return false
		}
		if !IsPreconditionFailure(a.Notes) {
			failures++
		}
	}
	return failures >= brokenThreshold
}

// HealStatic removes statically-defined skill names from the broken set.
// Their source ships with the binary and may have been fixed since the
// ledger was written.
func HealStatic(broken []string, static map[string]bool) []string {
	var out []string
	for _, name := range broken {
		if static[name] {
			continue
		}
		out = append(out, name)
	}
	return out
}

// carrySubtype maps a stable precondition subtype to the blacklist message
// seeded at startup. "No trees" is absent: the agent may have relocated
// since the last session, so that one is re-tried fresh.
type carrySubtype struct {
	keyword string
	message string
}

var carrySubtypes = []carrySubtype{
	{"no water found", msgNoWater},
	{"no wool", msgNoWool},
	{"need 3 wool", msgNoWool},
	{"no torches", msgNoTorches},
}

// CarryForward inspects the attempt history and returns blacklist seeds
// (key -> message) for each skill whose last two or more attempts were all
// precondition failures of the same stable subtype.
func CarryForward(history []memory.SkillAttempt) map[string]string {
	// Collect attempts per skill, preserving order.
	bySkill := make(map[string][]memory.SkillAttempt)
	for _, a := range history {
		bySkill[a.Skill] = append(bySkill[a.Skill], a)
	}

	out := make(map[string]string)
	for skill, attempts := range bySkill {
		if len(attempts) < 2 {
			continue
		}
		last := attempts[len(attempts)-2:]
		for _, sub := range carrySubtypes {
			if matchesAll(last, sub.keyword) {
				out["skill:"+skill] = sub.message
				break
			}
		}
	}
	return out
}

func matchesAll(attempts []memory.SkillAttempt, keyword string) bool {
	for _, a := range attempts {
		if a.Success || !strings.Contains(strings.ToLower(a.Notes), keyword) {
			return false
		}
	}
	return true
}
