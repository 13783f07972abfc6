// Package webstore backs the Web Storage ops with SQLite. Each storage
// area (localStorage per origin-ish id, sessionStorage in memory) is its
// own database file, isolated from everything else.
package webstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// Pure-Go SQLite driver for database/sql.
	_ "github.com/glebarez/sqlite"

	"github.com/andromeda-rt/andromeda/internal/core"
)

// Area is one open storage area.
type Area struct {
	db         *sql.DB
	ID         string
	Persistent bool
}

// State is the per-extension storage: the table of open areas.
type State struct {
	Areas *core.ResourceTable[*Area]
	Dir   string
}

// NewState creates the area table rooted at dir.
func NewState(dir string) *State {
	return &State{Areas: core.NewResourceTable[*Area](), Dir: dir}
}

// ValidateAreaID rejects area ids that would escape the storage
// directory: empty, too long, traversal, separators, null bytes.
func ValidateAreaID(id string) error {
	if id == "" {
		return fmt.Errorf("storage area ID must not be empty")
	}
	if len(id) > 128 {
		return fmt.Errorf("storage area ID too long")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("storage area ID contains path traversal")
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("storage area ID contains path separator")
	}
	if strings.ContainsRune(id, 0) {
		return fmt.Errorf("storage area ID contains null byte")
	}
	return nil
}

// Open opens (or creates) an area. Persistent areas live at
// {dir}/storage/{id}.sqlite3 in WAL mode; session areas are in-memory.
func (s *State) Open(id string, persistent bool) (*Area, error) {
	if err := ValidateAreaID(id); err != nil {
		return nil, err
	}
	dsn := ":memory:"
	if persistent {
		storeDir := filepath.Join(s.Dir, "storage")
		if err := os.MkdirAll(storeDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
		dsn = filepath.Join(storeDir, id+".sqlite3")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening storage area %q: %w", id, err)
	}
	if persistent {
		_, _ = db.Exec("PRAGMA journal_mode=WAL")
	} else {
		// Each pooled connection gets its own :memory: database, so a
		// session area must stay on a single connection.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing storage area %q: %w", id, err)
	}
	return &Area{db: db, ID: id, Persistent: persistent}, nil
}

// Close closes the underlying database.
func (a *Area) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Length returns the number of stored keys.
func (a *Area) Length() (int, error) {
	var n int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n)
	return n, err
}

// Key returns the nth key in insertion-stable (rowid) order, or false
// when n is out of range.
func (a *Area) Key(n int) (string, bool, error) {
	var key string
	err := a.db.QueryRow(`SELECT key FROM kv ORDER BY rowid LIMIT 1 OFFSET ?`, n).Scan(&key)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return key, true, nil
}

// GetItem returns the value for key, or false when absent.
func (a *Area) GetItem(key string) (string, bool, error) {
	var value string
	err := a.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetItem inserts or replaces key.
func (a *Area) SetItem(key, value string) error {
	_, err := a.db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// RemoveItem deletes key; absent keys are a no-op.
func (a *Area) RemoveItem(key string) error {
	_, err := a.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

// Clear deletes every key.
func (a *Area) Clear() error {
	_, err := a.db.Exec(`DELETE FROM kv`)
	return err
}

// Keys returns all keys in insertion-stable order.
func (a *Area) Keys() ([]string, error) {
	rows, err := a.db.Query(`SELECT key FROM kv ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
