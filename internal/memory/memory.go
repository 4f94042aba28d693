// Package memory implements the per-agent persistent memory file: built
// structures, deaths, ore discoveries, skill attempt history, lessons, the
// broken-skill ledger, and the season goal. One JSON document per agent,
// owned exclusively by that agent's goroutine.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Retention caps. Oldest entries are trimmed on write.
const (
	MaxDeaths        = 50
	MaxSkillAttempts = 100
	MaxLessons       = 20
)

// Structure records something the agent built.
type Structure struct {
	Type    string `json:"type"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Z       int    `json:"z"`
	BuiltAt string `json:"builtAt"`
	Notes   string `json:"notes,omitempty"`
}

// Death records where and how the agent died.
type Death struct {
	Location  string `json:"location"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Z         int    `json:"z"`
	Cause     string `json:"cause"`
	Timestamp string `json:"timestamp"`
}

// OreDiscovery records an ore sighting from the world scanner.
type OreDiscovery struct {
	Type      string `json:"type"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Z         int    `json:"z"`
	Timestamp string `json:"timestamp"`
}

// SkillAttempt is one skill run, success or failure.
type SkillAttempt struct {
	Skill           string  `json:"skill"`
	Success         bool    `json:"success"`
	DurationSeconds float64 `json:"durationSeconds"`
	Notes           string  `json:"notes"`
	Timestamp       string  `json:"timestamp"`
}

type document struct {
	Structures       []Structure    `json:"structures"`
	Deaths           []Death        `json:"deaths"`
	OreDiscoveries   []OreDiscovery `json:"oreDiscoveries"`
	SkillHistory     []SkillAttempt `json:"skillHistory"`
	Lessons          []string       `json:"lessons"`
	BrokenSkillNames []string       `json:"brokenSkillNames"`
	SeasonGoal       *string        `json:"seasonGoal"`
	LastUpdated      string         `json:"lastUpdated"`
}

// Memory is the in-process view of one agent's memory file. Not safe for
// concurrent use; all access goes through the owning agent goroutine.
type Memory struct {
	path string
	doc  document
	now  func() time.Time
}

// Load reads the memory file at path, creating an empty document if the
// file does not exist.
func Load(path string) (*Memory, error) {
	m := &Memory{path: path, now: time.Now}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("read memory file: %w", err)
	}
	if err := json.Unmarshal(data, &m.doc); err != nil {
		return nil, fmt.Errorf("parse memory file (%s): %w", path, err)
	}
	return m, nil
}

// Save writes the document to disk, trimming to the retention caps first.
func (m *Memory) Save() error {
	m.trim()
	m.doc.LastUpdated = m.now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(&m.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create memory dir: %w", err)
		}
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write memory: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace memory: %w", err)
	}
	return nil
}

func (m *Memory) trim() {
	if n := len(m.doc.Deaths); n > MaxDeaths {
		m.doc.Deaths = m.doc.Deaths[n-MaxDeaths:]
	}
	if n := len(m.doc.SkillHistory); n > MaxSkillAttempts {
		m.doc.SkillHistory = m.doc.SkillHistory[n-MaxSkillAttempts:]
	}
	if n := len(m.doc.Lessons); n > MaxLessons {
		m.doc.Lessons = m.doc.Lessons[n-MaxLessons:]
	}
}

// RecordStructure appends a built structure and saves.
func (m *Memory) RecordStructure(s Structure) error {
	if s.BuiltAt == "" {
		s.BuiltAt = m.now().UTC().Format(time.RFC3339)
	}
	m.doc.Structures = append(m.doc.Structures, s)
	return m.Save()
}

// RecordDeath appends a death record and saves.
func (m *Memory) RecordDeath(d Death) error {
	if d.Timestamp == "" {
		d.Timestamp = m.now().UTC().Format(time.RFC3339)
	}
	m.doc.Deaths = append(m.doc.Deaths, d)
	return m.Save()
}

// RecordOre appends an ore discovery and saves. Duplicate sightings of the
// same block are collapsed.
func (m *Memory) RecordOre(o OreDiscovery) error {
	for _, seen := range m.doc.OreDiscoveries {
		if seen.Type == o.Type && seen.X == o.X && seen.Y == o.Y && seen.Z == o.Z {
			return nil
		}
	}
	if o.Timestamp == "" {
		o.Timestamp = m.now().UTC().Format(time.RFC3339)
	}
	m.doc.OreDiscoveries = append(m.doc.OreDiscoveries, o)
	return m.Save()
}

// RecordSkillAttempt appends a skill run and saves.
func (m *Memory) RecordSkillAttempt(a SkillAttempt) error {
	if a.Timestamp == "" {
		a.Timestamp = m.now().UTC().Format(time.RFC3339)
	}
	m.doc.SkillHistory = append(m.doc.SkillHistory, a)
	return m.Save()
}

// RecordLesson appends a free-form lesson and saves.
func (m *Memory) RecordLesson(lesson string) error {
	m.doc.Lessons = append(m.doc.Lessons, lesson)
	return m.Save()
}

// Lessons returns recorded lessons, oldest first.
func (m *Memory) Lessons() []string {
	out := make([]string, len(m.doc.Lessons))
	copy(out, m.doc.Lessons)
	return out
}

// SkillHistory returns the attempt history, oldest first.
func (m *Memory) SkillHistory() []SkillAttempt {
	out := make([]SkillAttempt, len(m.doc.SkillHistory))
	copy(out, m.doc.SkillHistory)
	return out
}

// Structures returns recorded structures.
func (m *Memory) Structures() []Structure {
	out := make([]Structure, len(m.doc.Structures))
	copy(out, m.doc.Structures)
	return out
}

// BrokenSkills returns the persistent broken-skill set.
func (m *Memory) BrokenSkills() []string {
	out := make([]string, len(m.doc.BrokenSkillNames))
	copy(out, m.doc.BrokenSkillNames)
	return out
}

// SetBrokenSkills replaces the broken-skill set and saves.
func (m *Memory) SetBrokenSkills(names []string) error {
	m.doc.BrokenSkillNames = append([]string(nil), names...)
	return m.Save()
}

// AddBrokenSkill adds a skill to the broken set if absent and saves.
func (m *Memory) AddBrokenSkill(name string) error {
	for _, n := range m.doc.BrokenSkillNames {
		if n == name {
			return nil
		}
	}
	m.doc.BrokenSkillNames = append(m.doc.BrokenSkillNames, name)
	return m.Save()
}

// SeasonGoal returns the persistent season goal, or "" when unset.
func (m *Memory) SeasonGoal() string {
	if m.doc.SeasonGoal == nil {
		return ""
	}
	return *m.doc.SeasonGoal
}

// SetSeasonGoal sets or clears (empty string) the season goal and saves.
func (m *Memory) SetSeasonGoal(goal string) error {
	if goal == "" {
		m.doc.SeasonGoal = nil
	} else {
		m.doc.SeasonGoal = &goal
	}
	return m.Save()
}
