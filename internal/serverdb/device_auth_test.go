package serverdb

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestAuthRequestCodes(t *testing.T) {
	db := newTestDB(t)
	seen := map[string]bool{}
	for range 20 {
		ar, err := db.CreateAuthRequest("codes@example.com", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(ar.DeviceCode) != 40 || strings.Trim(ar.DeviceCode, "0123456789abcdef") != "" {
			t.Fatalf("device code %q is not 40 hex chars", ar.DeviceCode)
		}
		for _, c := range []byte(ar.UserCode) {
			if !bytes.ContainsRune(userCodeChars, rune(c)) {
				t.Fatalf("user code %q contains %q", ar.UserCode, c)
			}
		}
		if seen[ar.UserCode] {
			t.Fatalf("user code %q issued twice", ar.UserCode)
		}
		seen[ar.UserCode] = true
	}
}

func TestAuthRequestTTL(t *testing.T) {
	db := newTestDB(t)

	def, err := db.CreateAuthRequest(" Who@Example.com", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := def.ExpiresAt.Sub(def.CreatedAt); got != AuthRequestTTL {
		t.Errorf("default ttl = %v, want %v", got, AuthRequestTTL)
	}
	if def.Email != "who@example.com" || def.Status != AuthStatusPending {
		t.Errorf("new request: %+v", def)
	}

	short, _ := db.CreateAuthRequest("who@example.com", 2*time.Minute)
	if got := short.ExpiresAt.Sub(short.CreatedAt); got != 2*time.Minute {
		t.Errorf("custom ttl = %v", got)
	}
}

func TestUserCodeLookupOnlyFindsOpenRequests(t *testing.T) {
	db := newTestDB(t)
	u := mustUser(t, db, "open@example.com")
	open, _ := db.CreateAuthRequest("open@example.com", 0)
	overdue, _ := db.CreateAuthRequest("open@example.com", -time.Second)
	verified, _ := db.CreateAuthRequest("open@example.com", 0)
	if err := db.VerifyAuthRequest(verified.UserCode, u.ID); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		code string
		want string
	}{
		{"pending", open.UserCode, open.ID},
		{"overdue", overdue.UserCode, ""},
		{"already verified", verified.UserCode, ""},
		{"unknown", "ZZZZZZ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ar, err := db.GetAuthRequestByUserCode(tt.code)
			if err != nil {
				t.Fatal(err)
			}
			switch {
			case tt.want == "" && ar != nil:
				t.Fatalf("expected no match, got %s", ar.ID)
			case tt.want != "" && (ar == nil || ar.ID != tt.want):
				t.Fatalf("got %+v, want %s", ar, tt.want)
			}
		})
	}

	// Device code lookups see every state so the poller can report it
	if ar, _ := db.GetAuthRequestByDeviceCode(overdue.DeviceCode); ar == nil {
		t.Fatal("overdue request hidden from device code lookup")
	}
	if ar, _ := db.GetAuthRequestByDeviceCode("missing"); ar != nil {
		t.Fatalf("unknown device code matched %s", ar.ID)
	}
}

func TestDeviceLoginIssuesKeyOnce(t *testing.T) {
	db := newTestDB(t)
	u := mustUser(t, db, "once@example.com")
	ar, _ := db.CreateAuthRequest(u.Email, 0)

	if got, err := db.CompleteAuthRequest(ar.DeviceCode); err != nil || got != nil {
		t.Fatalf("complete before verify: %+v, %v", got, err)
	}

	if err := db.VerifyAuthRequest(ar.UserCode, u.ID); err != nil {
		t.Fatal(err)
	}
	if err := db.VerifyAuthRequest(ar.UserCode, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second verify: got %v, want ErrNotFound", err)
	}

	done, err := db.CompleteAuthRequest(ar.DeviceCode)
	if err != nil {
		t.Fatal(err)
	}
	if done == nil || done.Status != AuthStatusUsed || done.UserID == nil || *done.UserID != u.ID || done.VerifiedAt == nil {
		t.Fatalf("completed request: %+v", done)
	}
	if again, _ := db.CompleteAuthRequest(ar.DeviceCode); again != nil {
		t.Fatal("request completed twice")
	}

	_, ak, err := db.GenerateAPIKey(u.ID, "device-login", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SetAuthRequestAPIKey(done.ID, ak.ID); err != nil {
		t.Fatal(err)
	}
	final, _ := db.GetAuthRequestByDeviceCode(ar.DeviceCode)
	if final.APIKeyID == nil || *final.APIKeyID != ak.ID {
		t.Fatalf("issued key not recorded: %+v", final)
	}
}

func TestVerifyOverdueRequestFails(t *testing.T) {
	db := newTestDB(t)
	u := mustUser(t, db, "late@example.com")
	ar, _ := db.CreateAuthRequest(u.Email, -time.Minute)
	if err := db.VerifyAuthRequest(ar.UserCode, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestExpireAuthRequestsReturnsOnlyOverduePending(t *testing.T) {
	db := newTestDB(t)
	u := mustUser(t, db, "sweep@example.com")

	overdue, _ := db.CreateAuthRequest("a@example.com", -time.Minute)
	db.CreateAuthRequest("b@example.com", 0)
	// Verified before its deadline passed; the sweep must leave it for the poller
	verified, _ := db.CreateAuthRequest(u.Email, time.Second)
	if err := db.VerifyAuthRequest(verified.UserCode, u.ID); err != nil {
		t.Fatal(err)
	}
	db.conn.Exec(`UPDATE auth_requests SET expires_at = ? WHERE id = ?`, time.Now().UTC().Add(-time.Minute), verified.ID)

	expired, err := db.ExpireAuthRequests()
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 1 || expired[0].ID != overdue.ID {
		t.Fatalf("expired = %+v, want only %s", expired, overdue.ID)
	}
	// Returned rows carry the fields the caller logs
	if expired[0].Email != "a@example.com" || expired[0].Status != AuthStatusPending {
		t.Errorf("returned row: %+v", expired[0])
	}

	got, _ := db.GetAuthRequestByDeviceCode(overdue.DeviceCode)
	if got.Status != AuthStatusExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}
	got, _ = db.GetAuthRequestByDeviceCode(verified.DeviceCode)
	if got.Status != AuthStatusVerified {
		t.Errorf("verified request swept: %s", got.Status)
	}

	if again, err := db.ExpireAuthRequests(); err != nil || len(again) != 0 {
		t.Fatalf("second sweep: %+v, %v", again, err)
	}
}
