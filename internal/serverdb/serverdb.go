// Package serverdb is tipbox-server's SQLite persistence layer: accounts,
// API keys, device logins, the tip catalog and per-user favorites.
package serverdb

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// ServerDB wraps the server database connection
type ServerDB struct {
	conn *sql.DB
	path string
}

// Open opens the server database and runs any pending migrations.
// If the database file does not exist, it is created and initialized.
func Open(dbPath string) (*ServerDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer; also keeps ":memory:" databases on a single connection
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")
	conn.Exec("PRAGMA foreign_keys=ON")

	if _, err := conn.Exec(serverSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	db := &ServerDB{conn: conn, path: dbPath}

	if _, err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// Ping checks the database connection is alive.
func (db *ServerDB) Ping() error {
	return db.conn.Ping()
}

// Close checkpoints the WAL and closes the database connection.
func (db *ServerDB) Close() error {
	db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return db.conn.Close()
}

// RunMigrations runs any pending database migrations and returns how many ran.
func (db *ServerDB) RunMigrations() (int, error) {
	current := db.getSchemaVersion()
	if current >= ServerSchemaVersion {
		return 0, nil
	}

	ran := 0
	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}
		if _, err := db.conn.Exec(m.SQL); err != nil {
			return ran, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if err := db.setSchemaVersion(m.Version); err != nil {
			return ran, fmt.Errorf("set version %d: %w", m.Version, err)
		}
		ran++
	}

	if err := db.setSchemaVersion(ServerSchemaVersion); err != nil {
		return ran, err
	}
	return ran, nil
}

// SchemaVersion returns the recorded schema version.
func (db *ServerDB) SchemaVersion() int {
	return db.getSchemaVersion()
}

func (db *ServerDB) getSchemaVersion() int {
	var version string
	if err := db.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version); err != nil {
		return 0
	}
	v, _ := strconv.Atoi(version)
	return v
}

func (db *ServerDB) setSchemaVersion(version int) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		strconv.Itoa(version))
	return err
}

// generateID creates a prefixed ID with 16 random hex chars.
func generateID(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(b), nil
}
