package serverdb

import (
	"fmt"
	"time"
)

// AuthEvent is one step of a device login, kept for auditing.
type AuthEvent struct {
	ID            int64
	AuthRequestID string
	Email         string
	EventType     string
	Metadata      string
	CreatedAt     time.Time
}

const (
	AuthEventStarted      = "started"
	AuthEventCodeVerified = "code_verified"
	AuthEventKeyIssued    = "key_issued"
	AuthEventExpired      = "expired"
	AuthEventFailed       = "failed"
)

// InsertAuthEvent records an auth event. metadata is a JSON object.
func (db *ServerDB) InsertAuthEvent(authRequestID, email, eventType, metadata string) error {
	if metadata == "" {
		metadata = "{}"
	}
	if _, err := db.conn.Exec(
		`INSERT INTO auth_events (auth_request_id, email, event_type, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		authRequestID, email, eventType, metadata, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("insert auth event: %w", err)
	}
	return nil
}

// ListAuthEvents returns up to limit events, newest first, optionally
// filtered by type.
func (db *ServerDB) ListAuthEvents(eventType string, limit int) ([]AuthEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, auth_request_id, email, event_type, metadata, created_at FROM auth_events`
	var args []any
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list auth events: %w", err)
	}
	defer rows.Close()

	var events []AuthEvent
	for rows.Next() {
		var e AuthEvent
		if err := rows.Scan(&e.ID, &e.AuthRequestID, &e.Email, &e.EventType, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan auth event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CleanupAuthEvents deletes events older than olderThan.
func (db *ServerDB) CleanupAuthEvents(olderThan time.Duration) (int64, error) {
	res, err := db.conn.Exec(`DELETE FROM auth_events WHERE created_at < ?`, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup auth events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
