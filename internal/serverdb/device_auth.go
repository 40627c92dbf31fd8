package serverdb

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// AuthRequest is one device login: the CLI holds DeviceCode and polls while
// the user confirms UserCode in a browser.
type AuthRequest struct {
	ID         string
	Email      string
	DeviceCode string
	UserCode   string
	Status     string
	UserID     *string
	APIKeyID   *string
	ExpiresAt  time.Time
	VerifiedAt *time.Time
	CreatedAt  time.Time
}

const (
	AuthStatusPending  = "pending"
	AuthStatusVerified = "verified"
	AuthStatusExpired  = "expired"
	AuthStatusUsed     = "used"
	AuthRequestTTL     = 15 * time.Minute
	PollInterval       = 5
)

// userCodeChars excludes ambiguous characters (0, 1, I, L, O).
var userCodeChars = []byte("ABCDEFGHJKMNPQRSTUVWXYZ23456789")

const authRequestColumns = `id, email, device_code, user_code, status, user_id, api_key_id, expires_at, verified_at, created_at`

func scanAuthRequest(row interface{ Scan(...any) error }) (*AuthRequest, error) {
	ar := &AuthRequest{}
	err := row.Scan(&ar.ID, &ar.Email, &ar.DeviceCode, &ar.UserCode, &ar.Status,
		&ar.UserID, &ar.APIKeyID, &ar.ExpiresAt, &ar.VerifiedAt, &ar.CreatedAt)
	if err != nil {
		return nil, err
	}
	return ar, nil
}

func generateUserCode() (string, error) {
	code := make([]byte, 6)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(userCodeChars))))
		if err != nil {
			return "", err
		}
		code[i] = userCodeChars[n.Int64()]
	}
	return string(code), nil
}

func generateDeviceCode() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// CreateAuthRequest starts a device login for email that stays open for ttl.
// A zero ttl means AuthRequestTTL.
func (db *ServerDB) CreateAuthRequest(email string, ttl time.Duration) (*AuthRequest, error) {
	if ttl == 0 {
		ttl = AuthRequestTTL
	}
	id, err := generateID("ar_")
	if err != nil {
		return nil, fmt.Errorf("generate auth request id: %w", err)
	}
	deviceCode, err := generateDeviceCode()
	if err != nil {
		return nil, fmt.Errorf("generate device code: %w", err)
	}
	userCode, err := generateUserCode()
	if err != nil {
		return nil, fmt.Errorf("generate user code: %w", err)
	}

	email = normalizeEmail(email)
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	if _, err := db.conn.Exec(
		`INSERT INTO auth_requests (id, email, device_code, user_code, status, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, email, deviceCode, userCode, AuthStatusPending, expiresAt, now,
	); err != nil {
		return nil, fmt.Errorf("insert auth request: %w", err)
	}

	return &AuthRequest{
		ID:         id,
		Email:      email,
		DeviceCode: deviceCode,
		UserCode:   userCode,
		Status:     AuthStatusPending,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}, nil
}

// GetAuthRequestByDeviceCode returns the request for deviceCode, or nil.
func (db *ServerDB) GetAuthRequestByDeviceCode(deviceCode string) (*AuthRequest, error) {
	ar, err := scanAuthRequest(db.conn.QueryRow(
		`SELECT `+authRequestColumns+` FROM auth_requests WHERE device_code = ?`, deviceCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auth request by device code: %w", err)
	}
	return ar, nil
}

// GetAuthRequestByUserCode returns the pending, unexpired request for
// userCode, or nil.
func (db *ServerDB) GetAuthRequestByUserCode(userCode string) (*AuthRequest, error) {
	ar, err := scanAuthRequest(db.conn.QueryRow(
		`SELECT `+authRequestColumns+` FROM auth_requests WHERE user_code = ? AND status = ? AND expires_at > ?`,
		userCode, AuthStatusPending, time.Now().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auth request by user code: %w", err)
	}
	return ar, nil
}

// VerifyAuthRequest marks a pending request verified for userID.
func (db *ServerDB) VerifyAuthRequest(userCode, userID string) error {
	now := time.Now().UTC()
	res, err := db.conn.Exec(
		`UPDATE auth_requests SET status = ?, user_id = ?, verified_at = ?
		 WHERE user_code = ? AND status = ? AND expires_at > ?`,
		AuthStatusVerified, userID, now, userCode, AuthStatusPending, now,
	)
	if err != nil {
		return fmt.Errorf("verify auth request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pending auth request %s: %w", userCode, ErrNotFound)
	}
	return nil
}

// CompleteAuthRequest moves a verified request to used and returns it.
// It returns nil when the request is not verified, so a key is issued once.
func (db *ServerDB) CompleteAuthRequest(deviceCode string) (*AuthRequest, error) {
	res, err := db.conn.Exec(
		`UPDATE auth_requests SET status = ? WHERE device_code = ? AND status = ?`,
		AuthStatusUsed, deviceCode, AuthStatusVerified,
	)
	if err != nil {
		return nil, fmt.Errorf("complete auth request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return db.GetAuthRequestByDeviceCode(deviceCode)
}

// SetAuthRequestAPIKey records which key a completed request issued.
func (db *ServerDB) SetAuthRequestAPIKey(id, apiKeyID string) error {
	if _, err := db.conn.Exec(`UPDATE auth_requests SET api_key_id = ? WHERE id = ?`, apiKeyID, id); err != nil {
		return fmt.Errorf("set auth request api key: %w", err)
	}
	return nil
}

// ExpireAuthRequests marks overdue pending requests expired and returns them.
func (db *ServerDB) ExpireAuthRequests() ([]*AuthRequest, error) {
	now := time.Now().UTC()
	rows, err := db.conn.Query(
		`SELECT `+authRequestColumns+` FROM auth_requests WHERE status = ? AND expires_at <= ?`,
		AuthStatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("find expired auth requests: %w", err)
	}
	var expired []*AuthRequest
	for rows.Next() {
		ar, err := scanAuthRequest(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan auth request: %w", err)
		}
		expired = append(expired, ar)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired auth requests: %w", err)
	}

	if len(expired) == 0 {
		return nil, nil
	}
	if _, err := db.conn.Exec(
		`UPDATE auth_requests SET status = ? WHERE status = ? AND expires_at <= ?`,
		AuthStatusExpired, AuthStatusPending, now,
	); err != nil {
		return nil, fmt.Errorf("expire auth requests: %w", err)
	}
	return expired, nil
}
