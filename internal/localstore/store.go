// Package localstore persists device-local records (named JSON values) in a
// small SQLite database under the tipbox config directory. It backs the
// anonymous favorites set and is the only code that touches that file.
package localstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	dbFile          = "local.db"
	lockTimeout     = 500 * time.Millisecond
	FavoritesRecord = "favorites"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
    name TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store wraps the local database connection.
type Store struct {
	conn   *sql.DB
	mu     sync.Mutex
	locker *writeLocker // nil for stores built with New
}

// Open opens (creating if needed) the local database in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create local store dir: %w", err)
	}

	conn, err := sql.Open("sqlite", filepath.Join(dir, dbFile))
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	// Matches the write lock timeout
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	s, err := New(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.locker = newWriteLocker(dir)
	return s, nil
}

// New wraps an already-open connection and creates the schema.
// Writes are serialized in-process only.
func New(conn *sql.DB) (*Store, error) {
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Read returns the raw value of a record. ok is false when the record does
// not exist.
func (s *Store) Read(name string) (value []byte, ok bool, err error) {
	var v string
	err = s.conn.QueryRow(`SELECT value FROM records WHERE name = ?`, name).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read record %s: %w", name, err)
	}
	return []byte(v), true, nil
}

// Write replaces the value of a record.
func (s *Store) Write(name string, value []byte) error {
	_, err := s.conn.Exec(
		`INSERT INTO records (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, string(value), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("write record %s: %w", name, err)
	}
	return nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *Store) Delete(name string) error {
	if _, err := s.conn.Exec(`DELETE FROM records WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete record %s: %w", name, err)
	}
	return nil
}

// withWriteLock runs fn while holding the in-process mutex and, for stores
// opened from disk, the cross-process file lock. Read-modify-write sequences
// go through here so two tipbox processes cannot lose each other's updates.
func (s *Store) withWriteLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locker != nil {
		if err := s.locker.acquire(lockTimeout); err != nil {
			return err
		}
		defer s.locker.release()
	}
	return fn()
}
