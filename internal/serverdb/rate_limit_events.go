package serverdb

import (
	"database/sql"
	"fmt"
	"time"
)

// RateLimitEvent records one rejected request.
type RateLimitEvent struct {
	ID            int64
	KeyID         string // empty for IP-keyed limits
	IP            string
	EndpointClass string // auth, favorites, other
	CreatedAt     time.Time
}

// InsertRateLimitEvent records a rate limit violation. An empty keyID is
// stored as NULL.
func (db *ServerDB) InsertRateLimitEvent(keyID, ip, endpointClass string) error {
	var key any
	if keyID != "" {
		key = keyID
	}
	if _, err := db.conn.Exec(
		`INSERT INTO rate_limit_events (key_id, ip, endpoint_class, created_at) VALUES (?, ?, ?, ?)`,
		key, ip, endpointClass, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("insert rate limit event: %w", err)
	}
	return nil
}

// ListRateLimitEvents returns up to limit events, newest first.
func (db *ServerDB) ListRateLimitEvents(limit int) ([]RateLimitEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(
		`SELECT id, key_id, ip, endpoint_class, created_at FROM rate_limit_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list rate limit events: %w", err)
	}
	defer rows.Close()

	var events []RateLimitEvent
	for rows.Next() {
		var e RateLimitEvent
		var key sql.NullString
		if err := rows.Scan(&e.ID, &key, &e.IP, &e.EndpointClass, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rate limit event: %w", err)
		}
		e.KeyID = key.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// CleanupRateLimitEvents deletes events older than olderThan.
func (db *ServerDB) CleanupRateLimitEvents(olderThan time.Duration) (int64, error) {
	res, err := db.conn.Exec(`DELETE FROM rate_limit_events WHERE created_at < ?`, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup rate limit events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
