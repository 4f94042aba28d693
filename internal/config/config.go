// Package config loads voxmind.yaml from the voxmind home directory and
// applies defaults and environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/basket/voxmind/internal/game"
	"github.com/basket/voxmind/internal/otel"
)

// Anchor is a named world position in the config file.
type Anchor struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

func (a *Anchor) Vec3() game.Vec3 {
	return game.Vec3{X: a.X, Y: a.Y, Z: a.Z}
}

// KeepItem protects matching inventory stacks from stash deposits.
type KeepItem struct {
	Pattern string `yaml:"pattern"`
	Min     int    `yaml:"min"`
}

// Role is a static agent configuration, bound at startup and never
// mutated afterwards.
type Role struct {
	Name           string     `yaml:"name"`
	Username       string     `yaml:"username"` // game-protocol login
	Personality    string     `yaml:"personality"`
	Priorities     []string   `yaml:"priorities"`
	AllowedActions []string   `yaml:"allowed_actions"`
	AllowedSkills  []string   `yaml:"allowed_skills"`
	Home           *Anchor    `yaml:"home"`
	LeashRadius    float64    `yaml:"leash_radius"`
	Stash          *Anchor    `yaml:"stash"`
	SafeSpawn      *Anchor    `yaml:"safe_spawn"`
	KeepItems      []KeepItem `yaml:"keep_items"`
}

// LLMConfig points at the Ollama endpoint serving both models.
type LLMConfig struct {
	BaseURL        string `yaml:"base_url"`
	StrongModel    string `yaml:"strong_model"`
	FastModel      string `yaml:"fast_model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// GameConfig points at the bot bridge websocket.
type GameConfig struct {
	BridgeURL        string `yaml:"bridge_url"`
	ReconnectSeconds int    `yaml:"reconnect_seconds"`
}

// NeuralConfig points at the optional combat coprocessor.
type NeuralConfig struct {
	Addr string `yaml:"addr"`
}

// TelegramConfig mirrors the stream-chat channel settings.
type TelegramConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Token       string   `yaml:"token"`
	AllowedIDs  []int64  `yaml:"allowed_ids"`
	PaidSenders []string `yaml:"paid_senders"`
}

// Directive is a scheduled strategic nudge ("focus on mining tonight").
type Directive struct {
	Schedule string `yaml:"schedule"` // cron expression
	Text     string `yaml:"text"`
	Agent    string `yaml:"agent"` // empty targets all agents
}

// SkillsConfig locates generated skill sources.
type SkillsConfig struct {
	GeneratedDir string `yaml:"generated_dir"`
}

// TUIConfig controls the local overlay.
type TUIConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	LogLevel string `yaml:"log_level"`
	Quiet    bool   `yaml:"quiet"`

	Roles      []Role         `yaml:"roles"`
	LLM        LLMConfig      `yaml:"llm"`
	Game       GameConfig     `yaml:"game"`
	Neural     NeuralConfig   `yaml:"neural"`
	Telegram   TelegramConfig `yaml:"telegram"`
	Directives []Directive    `yaml:"directives"`
	Skills     SkillsConfig   `yaml:"skills"`
	OTel       otel.Config    `yaml:"otel"`
	TUI        TUIConfig      `yaml:"tui"`
}

// HomeDir resolves the voxmind home directory.
func HomeDir() string {
	if dir := os.Getenv("VOXMIND_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".voxmind"
	}
	return filepath.Join(home, ".voxmind")
}

// Load reads config.yaml from the voxmind home, creating the directory
// if needed. A missing file yields pure defaults.
func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom reads config.yaml from the given directory.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create voxmind home: %w", err)
	}

	path := filepath.Join(homeDir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		LLM: LLMConfig{
			BaseURL:        "http://127.0.0.1:11434",
			StrongModel:    "qwen3:14b",
			FastModel:      "qwen3:4b",
			TimeoutSeconds: 60,
		},
		Game: GameConfig{
			BridgeURL:        "ws://127.0.0.1:3080",
			ReconnectSeconds: 5,
		},
		TUI: TUIConfig{Enabled: true},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("VOXMIND_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("VOXMIND_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func normalize(cfg *Config) {
	if cfg.LLM.TimeoutSeconds <= 0 {
		cfg.LLM.TimeoutSeconds = 60
	}
	if cfg.Game.ReconnectSeconds <= 0 {
		cfg.Game.ReconnectSeconds = 5
	}
	if cfg.Skills.GeneratedDir == "" {
		cfg.Skills.GeneratedDir = filepath.Join(cfg.HomeDir, "skills", "generated")
	}
	for i := range cfg.Roles {
		role := &cfg.Roles[i]
		if role.Username == "" {
			role.Username = role.Name
		}
		if role.LeashRadius <= 0 {
			role.LeashRadius = 128
		}
	}
}

func validate(cfg *Config) error {
	seen := make(map[string]bool)
	for _, role := range cfg.Roles {
		if role.Name == "" {
			return fmt.Errorf("role with empty name")
		}
		if seen[role.Name] {
			return fmt.Errorf("duplicate role name %q", role.Name)
		}
		seen[role.Name] = true
	}
	for _, d := range cfg.Directives {
		if strings.TrimSpace(d.Schedule) == "" || strings.TrimSpace(d.Text) == "" {
			return fmt.Errorf("directive needs both schedule and text")
		}
	}
	if cfg.Telegram.Enabled && cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram enabled but no token configured")
	}
	return nil
}

// RoleByName finds a configured role.
func (c *Config) RoleByName(name string) (Role, bool) {
	for _, r := range c.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}
