package failure

import (
	"strings"
	"testing"

	"github.com/basket/voxmind/internal/game"
)

func TestCanonicalKey(t *testing.T) {
	isSkill := func(name string) bool { return name == "buildHouse" }
	tests := []struct {
		action string
		params map[string]any
		want   string
	}{
		{"invoke_skill", map[string]any{"skill": "craftBed"}, "skill:craftBed"},
		{"generate_skill", map[string]any{"skill": "digMoat"}, "skill:digMoat"},
		{"craft", map[string]any{"item": "oak_planks"}, "craft:oak_planks"},
		{"go_to", map[string]any{"x": 100.0, "z": -40.0}, "go_to:100,-40"},
		{"go_to", nil, "go_to"},
		{"buildHouse", nil, "skill:buildHouse"},
		{"explore", nil, "explore"},
	}
	for _, tt := range tests {
		if got := CanonicalKey(tt.action, tt.params, isSkill); got != tt.want {
			t.Errorf("CanonicalKey(%s) = %q, want %q", tt.action, got, tt.want)
		}
	}
}

func TestTracker_HardBlacklistAfterTwoFailures(t *testing.T) {
	tr := NewTracker(nil)
	tr.RecordFailure("mine_block", "mine_block", "could not reach the block")
	if _, blocked := tr.Blacklisted("mine_block"); blocked {
		t.Fatal("blacklisted after one failure")
	}
	tr.RecordFailure("mine_block", "mine_block", "could not reach the block")
	if reason, blocked := tr.Blacklisted("mine_block"); !blocked {
		t.Fatal("not blacklisted after two failures")
	} else if reason == "" {
		t.Fatal("empty reason")
	}
}

func TestTracker_SuccessResetsCounter(t *testing.T) {
	tr := NewTracker(nil)
	tr.RecordFailure("mine_block", "mine_block", "fell in lava")
	tr.RecordSuccess("mine_block")
	if got := tr.FailureCount("mine_block"); got != 0 {
		t.Fatalf("counter = %d, want 0", got)
	}
	tr.RecordFailure("mine_block", "mine_block", "fell in lava")
	if _, blocked := tr.Blacklisted("mine_block"); blocked {
		t.Fatal("blacklisted after failure-success-failure")
	}
}

func TestTracker_SoftEntries(t *testing.T) {
	tests := []struct {
		action   string
		result   string
		wantPart string
	}{
		{"gather_wood", "no trees nearby", "No trees found"},
		{"build_house", "failed: no trees in range", "No trees found"},
		{"build_farm", "no water anywhere", "No water found within 96 blocks"},
		{"craftBed", "no wool in inventory", "Need 3 wool same color"},
		{"light_area", "no torches to place", "No torches"},
		{"craft", "cannot craft, missing: 4 oak_planks", "Missing materials: 4 oak_planks"},
	}
	for _, tt := range tests {
		tr := NewTracker(nil)
		key := CanonicalKey(tt.action, map[string]any{"item": "stone_pickaxe"}, nil)
		tr.RecordFailure(tt.action, key, tt.result)
		reason, blocked := tr.Blacklisted(key)
		if !blocked {
			t.Errorf("%s: no soft entry after single failure", tt.action)
			continue
		}
		if !strings.Contains(reason, tt.wantPart) {
			t.Errorf("%s: reason = %q, want containing %q", tt.action, reason, tt.wantPart)
		}
	}
}

func TestTracker_UnknownActionImmediate(t *testing.T) {
	tr := NewTracker(nil)
	tr.RecordFailure("dance", "dance", "Unknown action: dance")
	if _, blocked := tr.Blacklisted("dance"); !blocked {
		t.Fatal("unknown action not blacklisted immediately")
	}
}

func TestTracker_ConcurrentSkillRefusalNotCounted(t *testing.T) {
	tr := NewTracker(nil)
	tr.RecordFailure("invoke_skill", "skill:buildHouse", "Already running skill buildFarm")
	tr.RecordFailure("invoke_skill", "skill:buildHouse", "Already running skill buildFarm")
	if _, blocked := tr.Blacklisted("skill:buildHouse"); blocked {
		t.Fatal("refusal counted as failure")
	}
	if got := tr.FailureCount("skill:buildHouse"); got != 0 {
		t.Fatalf("counter = %d, want 0", got)
	}
}

func TestTracker_ExpiryAfterEightSuccesses(t *testing.T) {
	tr := NewTracker(nil)
	tr.Prepopulate("skill:foo", "keeps crashing")
	tr.Prepopulate("skill:bar", "no water found within 96 blocks")

	for i := 0; i < 8; i++ {
		tr.RecordSuccess("gather_wood")
	}
	if _, blocked := tr.Blacklisted("skill:foo"); blocked {
		t.Fatal("skill:foo should have expired")
	}
	if _, blocked := tr.Blacklisted("skill:bar"); !blocked {
		t.Fatal("environmental entry skill:bar should survive expiry")
	}
}

func TestTracker_ExpiryTakesOldestEligible(t *testing.T) {
	tr := NewTracker(nil)
	tr.Prepopulate("skill:old", "broken A")
	tr.Prepopulate("skill:new", "broken B")
	for i := 0; i < 8; i++ {
		tr.RecordSuccess("x")
	}
	if _, blocked := tr.Blacklisted("skill:old"); blocked {
		t.Fatal("oldest entry should expire first")
	}
	if _, blocked := tr.Blacklisted("skill:new"); !blocked {
		t.Fatal("newer entry should remain")
	}
}

func TestTracker_RefreshPreconditions(t *testing.T) {
	tr := NewTracker(nil)
	tr.Prepopulate("craft:torch", "Missing materials: 2 coal")
	tr.Prepopulate("skill:craftBed", msgNoWool)
	tr.Prepopulate("skill:buildFarm", msgNoWater)

	inv := []game.Item{{Name: "coal", Count: 3}, {Name: "white_wool", Count: 3}}
	tr.RefreshPreconditions(inv)

	if _, blocked := tr.Blacklisted("craft:torch"); blocked {
		t.Fatal("coal entry should clear once coal is held")
	}
	if _, blocked := tr.Blacklisted("skill:craftBed"); blocked {
		t.Fatal("wool entry should clear with 3 same-colour wool")
	}
	if _, blocked := tr.Blacklisted("skill:buildFarm"); !blocked {
		t.Fatal("water entry must not clear from inventory polling")
	}
}

func TestTracker_RefreshWoolNeedsSingleColour(t *testing.T) {
	tr := NewTracker(nil)
	tr.Prepopulate("skill:craftBed", msgNoWool)
	inv := []game.Item{
		{Name: "white_wool", Count: 2},
		{Name: "black_wool", Count: 2},
	}
	tr.RefreshPreconditions(inv)
	if _, blocked := tr.Blacklisted("skill:craftBed"); !blocked {
		t.Fatal("mixed colours must not satisfy the wool precondition")
	}
}

func TestTracker_Format(t *testing.T) {
	tr := NewTracker(nil)
	if tr.Format() != "" {
		t.Fatal("empty tracker should format to empty string")
	}
	tr.Prepopulate("skill:foo", "broken")
	out := tr.Format()
	if !strings.Contains(out, "skill:foo") || !strings.Contains(out, "Do NOT retry") {
		t.Fatalf("format = %q", out)
	}
}
