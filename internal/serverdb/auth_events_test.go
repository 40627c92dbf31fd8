package serverdb

import (
	"encoding/json"
	"testing"
	"time"
)

func TestInsertAndListAuthEvents(t *testing.T) {
	db := newTestDB(t)
	if err := db.InsertAuthEvent("ar_1", "user@example.com", AuthEventStarted, `{"ip":"127.0.0.1"}`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.InsertAuthEvent("ar_1", "user@example.com", AuthEventCodeVerified, ""); err != nil {
		t.Fatalf("insert: %v", err)
	}

	events, err := db.ListAuthEvents("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	// Newest first
	if events[0].EventType != AuthEventCodeVerified {
		t.Errorf("expected newest first, got %s", events[0].EventType)
	}
	if events[0].Metadata != "{}" {
		t.Errorf("empty metadata should default to {}, got %q", events[0].Metadata)
	}

	var meta map[string]string
	if err := json.Unmarshal([]byte(events[1].Metadata), &meta); err != nil {
		t.Fatalf("metadata not JSON: %v", err)
	}
	if meta["ip"] != "127.0.0.1" {
		t.Errorf("metadata ip: %q", meta["ip"])
	}
}

func TestListAuthEventsByType(t *testing.T) {
	db := newTestDB(t)
	db.InsertAuthEvent("ar_1", "a@example.com", AuthEventStarted, "")
	db.InsertAuthEvent("ar_2", "b@example.com", AuthEventExpired, "")
	db.InsertAuthEvent("ar_3", "c@example.com", AuthEventStarted, "")

	events, err := db.ListAuthEvents(AuthEventStarted, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 started events, got %d", len(events))
	}
}

func TestCleanupAuthEvents(t *testing.T) {
	db := newTestDB(t)
	db.InsertAuthEvent("ar_old", "old@example.com", AuthEventStarted, "")
	db.conn.Exec(`UPDATE auth_events SET created_at = ? WHERE auth_request_id = 'ar_old'`,
		time.Now().UTC().Add(-48*time.Hour))
	db.InsertAuthEvent("ar_new", "new@example.com", AuthEventStarted, "")

	n, err := db.CleanupAuthEvents(24 * time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}
	events, _ := db.ListAuthEvents("", 10)
	if len(events) != 1 || events[0].AuthRequestID != "ar_new" {
		t.Fatalf("wrong survivor: %+v", events)
	}
}
