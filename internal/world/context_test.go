package world

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/basket/voxmind/internal/game"
	"github.com/basket/voxmind/internal/game/gametest"
	"github.com/basket/voxmind/internal/memory"
)

func testMemory(t *testing.T) *memory.Memory {
	t.Helper()
	m, err := memory.Load(filepath.Join(t.TempDir(), "mem.json"))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestIsDay(t *testing.T) {
	tests := []struct {
		tick int
		want bool
	}{
		{0, true}, {1000, true}, {12999, true},
		{13000, false}, {18000, false}, {23000, false},
		{23001, true},
	}
	for _, tt := range tests {
		if got := IsDay(tt.tick); got != tt.want {
			t.Errorf("IsDay(%d) = %v, want %v", tt.tick, got, tt.want)
		}
	}
}

func TestDescribe_BasicFacts(t *testing.T) {
	f := gametest.New()
	f.Pos = game.Vec3{X: 10, Y: 64, Z: -5}
	f.HP = 17
	f.FoodVal = 12
	f.Give("oak_log", 8)
	f.Give("stone_pickaxe", 1)

	out := Describe(f, testMemory(t))
	for _, want := range []string{
		"Position: (10, 64, -5)",
		"Health: 17/20, Food: 12/20",
		"Time: day",
		"oak_log×8",
		"stone_pickaxe×1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestDescribe_NightWarning(t *testing.T) {
	f := gametest.New()
	f.Time = 18000
	out := Describe(f, testMemory(t))
	if !strings.Contains(out, "Time: night") {
		t.Error("missing night classification")
	}
	if !strings.Contains(out, "Warning: it is night") {
		t.Error("missing nighttime warning")
	}
}

func TestDescribe_EntitiesClassified(t *testing.T) {
	f := gametest.New()
	f.Ents = []game.Entity{
		{ID: 1, Name: "zombie", Kind: "mob", Pos: game.Vec3{X: 5}},
		{ID: 2, Name: "cow", Kind: "mob", Pos: game.Vec3{X: 8}},
		{ID: 3, Name: "steve", Kind: "player", Pos: game.Vec3{X: 3}},
		{ID: 4, Name: "creeper", Kind: "mob", Pos: game.Vec3{X: 40}}, // out of range
	}
	out := Describe(f, testMemory(t))
	if !strings.Contains(out, "Hostile mobs nearby: zombie (5 blocks)") {
		t.Errorf("hostile line wrong:\n%s", out)
	}
	if !strings.Contains(out, "Players nearby: steve") {
		t.Errorf("player line wrong:\n%s", out)
	}
	if !strings.Contains(out, "Animals nearby: cow") {
		t.Errorf("animal line wrong:\n%s", out)
	}
	if strings.Contains(out, "creeper") {
		t.Errorf("out-of-range mob reported:\n%s", out)
	}
}

func TestDescribe_NotableBlocksAndOreRecording(t *testing.T) {
	f := gametest.New()
	f.SetBlock(game.Block{Name: "iron_ore", Pos: game.Vec3{X: 2, Y: 0, Z: 1}, Diggable: true})
	f.SetBlock(game.Block{Name: "crafting_table", Pos: game.Vec3{X: -1, Y: 0, Z: 0}, Diggable: true})
	mem := testMemory(t)

	out := Describe(f, mem)
	if !strings.Contains(out, "iron_ore") || !strings.Contains(out, "crafting_table") {
		t.Errorf("notable blocks missing:\n%s", out)
	}

	// Second pass must not duplicate the ore record.
	_ = Describe(f, mem)
}

func TestDescribe_ScanBoxExtents(t *testing.T) {
	f := gametest.New()
	// The scan box is 8 wide: x in [-4, 3] around the agent.
	f.SetBlock(game.Block{Name: "chest", Pos: game.Vec3{X: -4, Y: 0, Z: 0}})
	f.SetBlock(game.Block{Name: "furnace", Pos: game.Vec3{X: 4, Y: 0, Z: 0}})

	out := Describe(f, testMemory(t))
	if !strings.Contains(out, "chest") {
		t.Errorf("block inside the scan box missing:\n%s", out)
	}
	if strings.Contains(out, "furnace") {
		t.Errorf("block outside the scan box reported:\n%s", out)
	}
}

func TestInWater(t *testing.T) {
	f := gametest.New()
	f.Pos = game.Vec3{X: 0, Y: 62, Z: 0}
	if InWater(f) {
		t.Fatal("dry agent reported in water")
	}
	f.SetBlock(game.Block{Name: "water", Pos: game.Vec3{X: 0, Y: 63, Z: 0}})
	if !InWater(f) {
		t.Fatal("head in water not detected")
	}
	out := Describe(f, testMemory(t))
	if !strings.Contains(out, "You are in water.") {
		t.Error("missing in-water sentence")
	}
}

func TestHostiles_NearestFirst(t *testing.T) {
	f := gametest.New()
	f.Ents = []game.Entity{
		{ID: 1, Name: "skeleton", Kind: "mob", Pos: game.Vec3{X: 12}},
		{ID: 2, Name: "zombie", Kind: "mob", Pos: game.Vec3{X: 4}},
	}
	hostiles := Hostiles(f)
	if len(hostiles) != 2 || hostiles[0].Name != "zombie" {
		t.Fatalf("hostiles = %v", hostiles)
	}
}
