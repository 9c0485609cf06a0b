// Package cachedb persists the last-known-good event partitions to an
// embedded SQLite database so the client can warm-start with cached
// state before its first fetch completes.
//
// Persistence is strictly best-effort: a missing or corrupt cache file
// never blocks startup, and the engine refreshes from the remote
// service regardless. Only event-source partitions are persisted; task
// partitions are cheap to refetch and carry virtualizer state that does
// not survive a round trip.
package cachedb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stormlight/almanac/internal/entity"
	"github.com/stormlight/almanac/internal/revision"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the embedded SQLite connection holding the snapshot.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens the snapshot database at path.
//
// The database is opened in embedded mode with WAL so a concurrently
// running status command can read while the daemon writes.
// The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	db := &DB{conn: conn, path: path}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	err := db.conn.Close()
	db.conn = nil
	return err
}

// InitSchema creates the snapshot tables if they do not exist.
func (db *DB) InitSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS partitions (
	source   TEXT NOT NULL,
	year     INTEGER NOT NULL,
	payload  TEXT NOT NULL,
	saved_at TIMESTAMP NOT NULL,
	PRIMARY KEY (source, year)
);

CREATE TABLE IF NOT EXISTS revisions (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	combined INTEGER NOT NULL,
	stream_a INTEGER NOT NULL,
	stream_b INTEGER NOT NULL
);
`
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the persisted partitions with the given merged
// entity list, grouped by year, along with the current revisions.
func (db *DB) SaveSnapshot(entities []*entity.Entity, revs revision.Revisions) error {
	byYear := make(map[int][]*entity.Entity)
	for _, e := range entities {
		if e.Source != entity.SourceEvent {
			continue
		}
		byYear[e.Start.Year()] = append(byYear[e.Start.Year()], e)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM partitions WHERE source = ?", string(entity.SourceEvent)); err != nil {
		return fmt.Errorf("failed to clear partitions: %w", err)
	}

	now := time.Now().UTC()
	for year, list := range byYear {
		payload, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("failed to encode partition %d: %w", year, err)
		}
		_, err = tx.Exec(
			"INSERT INTO partitions (source, year, payload, saved_at) VALUES (?, ?, ?, ?)",
			string(entity.SourceEvent), year, string(payload), now,
		)
		if err != nil {
			return fmt.Errorf("failed to write partition %d: %w", year, err)
		}
	}

	_, err = tx.Exec(`
INSERT INTO revisions (id, combined, stream_a, stream_b) VALUES (1, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET combined = excluded.combined,
	stream_a = excluded.stream_a, stream_b = excluded.stream_b`,
		revs.Combined, revs.StreamA, revs.StreamB,
	)
	if err != nil {
		return fmt.Errorf("failed to write revisions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads the persisted partitions and revisions.
// A fresh database yields an empty map and zero revisions.
func (db *DB) LoadSnapshot() (map[entity.PartitionKey][]*entity.Entity, revision.Revisions, error) {
	parts := make(map[entity.PartitionKey][]*entity.Entity)

	rows, err := db.conn.Query("SELECT source, year, payload FROM partitions")
	if err != nil {
		return nil, revision.Revisions{}, fmt.Errorf("failed to read partitions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var year int
		var payload string
		if err := rows.Scan(&source, &year, &payload); err != nil {
			return nil, revision.Revisions{}, fmt.Errorf("failed to scan partition: %w", err)
		}
		var list []*entity.Entity
		if err := json.Unmarshal([]byte(payload), &list); err != nil {
			return nil, revision.Revisions{}, fmt.Errorf("failed to decode partition %s:%d: %w", source, year, err)
		}
		parts[entity.PartitionKey{Source: entity.SourceTag(source), Year: year}] = list
	}
	if err := rows.Err(); err != nil {
		return nil, revision.Revisions{}, fmt.Errorf("failed reading partitions: %w", err)
	}

	var revs revision.Revisions
	err = db.conn.QueryRow("SELECT combined, stream_a, stream_b FROM revisions WHERE id = 1").
		Scan(&revs.Combined, &revs.StreamA, &revs.StreamB)
	if err != nil && err != sql.ErrNoRows {
		return nil, revision.Revisions{}, fmt.Errorf("failed to read revisions: %w", err)
	}

	return parts, revs, nil
}

// Stats summarizes the persisted snapshot for the status command.
type Stats struct {
	Partitions int
	Entities   int
	Revisions  revision.Revisions
	SavedAt    time.Time
}

// Stats reads summary counts without decoding entity payloads.
func (db *DB) Stats() (*Stats, error) {
	s := &Stats{}
	err := db.conn.QueryRow("SELECT COUNT(*), COALESCE(MAX(saved_at), '0001-01-01T00:00:00Z') FROM partitions").
		Scan(&s.Partitions, &s.SavedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to count partitions: %w", err)
	}

	parts, revs, err := db.LoadSnapshot()
	if err != nil {
		return nil, err
	}
	for _, list := range parts {
		s.Entities += len(list)
	}
	s.Revisions = revs
	return s, nil
}
