package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.LLM.BaseURL != "http://127.0.0.1:11434" {
		t.Fatalf("BaseURL = %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.TimeoutSeconds != 60 || cfg.Game.ReconnectSeconds != 5 {
		t.Fatalf("timeouts not defaulted: %+v", cfg)
	}
	if cfg.Skills.GeneratedDir == "" {
		t.Fatal("generated skills dir not defaulted")
	}
}

func TestLoadFrom_ParsesRoles(t *testing.T) {
	dir := writeConfig(t, `
roles:
  - name: miner
    personality: "gruff, loves deep caves"
    priorities: ["mine iron", "keep torches stocked"]
    allowed_actions: [mine_block, go_to, craft]
    allowed_skills: [strip_mine, light_area]
    home: {x: 100, y: 64, z: -40}
    leash_radius: 200
    stash: {x: 102, y: 64, z: -38}
    keep_items:
      - {pattern: pickaxe, min: 1}
      - {pattern: torch, min: 16}
  - name: farmer
llm:
  strong_model: llama3.1:70b
`)
	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	miner, ok := cfg.RoleByName("miner")
	if !ok {
		t.Fatal("miner role missing")
	}
	if miner.Home == nil || miner.Home.Vec3().X != 100 {
		t.Fatalf("home = %+v", miner.Home)
	}
	if miner.LeashRadius != 200 || len(miner.KeepItems) != 2 {
		t.Fatalf("miner = %+v", miner)
	}
	farmer, _ := cfg.RoleByName("farmer")
	if farmer.Username != "farmer" || farmer.LeashRadius != 128 {
		t.Fatalf("farmer defaults not applied: %+v", farmer)
	}
	if cfg.LLM.StrongModel != "llama3.1:70b" {
		t.Fatalf("StrongModel = %q", cfg.LLM.StrongModel)
	}
	// Partial llm block keeps defaulted fields.
	if cfg.LLM.FastModel != "qwen3:4b" {
		t.Fatalf("FastModel = %q", cfg.LLM.FastModel)
	}
}

func TestLoadFrom_DuplicateRole(t *testing.T) {
	dir := writeConfig(t, "roles:\n  - name: miner\n  - name: miner\n")
	if _, err := LoadFrom(dir); err == nil {
		t.Fatal("expected duplicate role error")
	}
}

func TestLoadFrom_BadDirective(t *testing.T) {
	dir := writeConfig(t, "directives:\n  - schedule: \"0 20 * * *\"\n")
	if _, err := LoadFrom(dir); err == nil {
		t.Fatal("expected directive validation error")
	}
}

func TestLoadFrom_TelegramNeedsToken(t *testing.T) {
	dir := writeConfig(t, "telegram:\n  enabled: true\n")
	if _, err := LoadFrom(dir); err == nil {
		t.Fatal("expected telegram token error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://gpu-box:11434")
	t.Setenv("VOXMIND_TELEGRAM_TOKEN", "tok123")
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.BaseURL != "http://gpu-box:11434" {
		t.Fatalf("BaseURL = %q", cfg.LLM.BaseURL)
	}
	if cfg.Telegram.Token != "tok123" {
		t.Fatalf("Token = %q", cfg.Telegram.Token)
	}
}
