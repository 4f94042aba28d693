// Package persistence keeps the action audit log in SQLite. Every
// dispatched action lands here with its outcome, so operator tooling can
// answer "what has this agent actually been doing" after the fact.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	schemaVersion  = 2
	schemaChecksum = "vm-v2-2026-07-03-chat-log"
)

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB
}

// ActionRecord is one row of the action audit log.
type ActionRecord struct {
	ID         int64
	Agent      string
	Action     string
	Params     map[string]any
	Success    bool
	Message    string
	DurationMS int64
	CreatedAt  time.Time
}

// ChatRecord is one inbound or outbound chat line.
type ChatRecord struct {
	ID        int64
	Agent     string
	Sender    string
	Direction string // "in" or "out"
	Message   string
	CreatedAt time.Time
}

// DefaultDBPath places the database under the voxmind home directory.
func DefaultDBPath(homeDir string) string {
	return filepath.Join(homeDir, "voxmind.db")
}

// Open opens (or creates) the database and runs schema migration.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	// Single writer. The agents funnel through one store, and sqlite3
	// handles concurrency poorly with multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS schema_meta (
			version INTEGER NOT NULL,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent TEXT NOT NULL,
			action TEXT NOT NULL,
			params TEXT NOT NULL DEFAULT '{}',
			success INTEGER NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_agent_time ON actions(agent, created_at);`,
		`CREATE TABLE IF NOT EXISTS chat_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent TEXT NOT NULL,
			sender TEXT NOT NULL,
			direction TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_agent_time ON chat_log(agent, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_meta;`).Scan(&count); err != nil {
		return fmt.Errorf("read schema meta: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO schema_meta (version, checksum) VALUES (?, ?);`,
			schemaVersion, schemaChecksum); err != nil {
			return fmt.Errorf("stamp schema: %w", err)
		}
	}
	return nil
}

// RecordAction appends one audit row.
func (s *Store) RecordAction(ctx context.Context, rec ActionRecord) error {
	params := rec.Params
	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO actions (agent, action, params, success, message, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?);
	`, rec.Agent, rec.Action, string(raw), boolToInt(rec.Success), rec.Message, rec.DurationMS)
	if err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	return nil
}

// RecentActions returns the newest rows for an agent, newest first.
func (s *Store) RecentActions(ctx context.Context, agent string, limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent, action, params, success, message, duration_ms, created_at
		FROM actions WHERE agent = ? ORDER BY id DESC LIMIT ?;
	`, agent, limit)
	if err != nil {
		return nil, fmt.Errorf("recent actions: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var rec ActionRecord
		var params string
		var success int
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.Agent, &rec.Action, &params, &success,
			&rec.Message, &rec.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		rec.Success = success != 0
		if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
			rec.Params = map[string]any{}
		}
		rec.CreatedAt = parseSQLiteTime(createdAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent actions: iterate: %w", err)
	}
	return out, nil
}

// ActionStats returns per-action success and failure counts for an agent.
func (s *Store) ActionStats(ctx context.Context, agent string) (map[string][2]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action, success, COUNT(*) FROM actions
		WHERE agent = ? GROUP BY action, success;
	`, agent)
	if err != nil {
		return nil, fmt.Errorf("action stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string][2]int)
	for rows.Next() {
		var action string
		var success, count int
		if err := rows.Scan(&action, &success, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		pair := stats[action]
		if success != 0 {
			pair[0] += count
		} else {
			pair[1] += count
		}
		stats[action] = pair
	}
	return stats, rows.Err()
}

// RecordChat appends one chat line to the log.
func (s *Store) RecordChat(ctx context.Context, rec ChatRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_log (agent, sender, direction, message)
		VALUES (?, ?, ?, ?);
	`, rec.Agent, rec.Sender, rec.Direction, rec.Message)
	if err != nil {
		return fmt.Errorf("record chat: %w", err)
	}
	return nil
}

// PruneActions deletes audit rows older than the cutoff. Returns rows removed.
func (s *Store) PruneActions(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM actions WHERE created_at < ?;`,
		olderThan.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, fmt.Errorf("prune actions: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
