package serverdb

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"
)

const (
	apiKeyPrefix = "tb_live_"
	keyLength    = 32
)

var base62Chars = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")

// APIKey is a stored API key. The plaintext secret is never stored.
type APIKey struct {
	ID         string
	UserID     string
	KeyPrefix  string
	Name       string
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

func hashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey issues a key for userID. The plaintext is returned once.
func (db *ServerDB) GenerateAPIKey(userID, name string, expiresAt *time.Time) (string, *APIKey, error) {
	u, err := db.GetUserByID(userID)
	if err != nil {
		return "", nil, err
	}
	if u == nil {
		return "", nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	id, err := generateID("ak_")
	if err != nil {
		return "", nil, fmt.Errorf("generate api key id: %w", err)
	}

	secret := make([]byte, keyLength)
	for i := range secret {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Chars))))
		if err != nil {
			return "", nil, fmt.Errorf("generate random key: %w", err)
		}
		secret[i] = base62Chars[n.Int64()]
	}
	plaintext := apiKeyPrefix + string(secret)
	prefix := string(secret[:8])

	now := time.Now().UTC()
	if _, err := db.conn.Exec(
		`INSERT INTO api_keys (id, user_id, key_hash, key_prefix, name, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, userID, hashKey(plaintext), prefix, name, expiresAt, now,
	); err != nil {
		return "", nil, fmt.Errorf("insert api key: %w", err)
	}

	return plaintext, &APIKey{
		ID:        id,
		UserID:    userID,
		KeyPrefix: prefix,
		Name:      name,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// VerifyAPIKey resolves a plaintext key to its record and owner. Unknown and
// expired keys return nil, nil, nil.
func (db *ServerDB) VerifyAPIKey(plaintext string) (*APIKey, *User, error) {
	keyHash := hashKey(plaintext)

	ak := &APIKey{}
	u := &User{}
	err := db.conn.QueryRow(`
		SELECT ak.id, ak.user_id, ak.key_prefix, ak.name, ak.expires_at, ak.last_used_at, ak.created_at,
		       u.id, u.email, u.email_verified_at, u.created_at, u.updated_at
		FROM api_keys ak
		JOIN users u ON u.id = ak.user_id
		WHERE ak.key_hash = ?
	`, keyHash).Scan(
		&ak.ID, &ak.UserID, &ak.KeyPrefix, &ak.Name, &ak.ExpiresAt, &ak.LastUsedAt, &ak.CreatedAt,
		&u.ID, &u.Email, &u.EmailVerifiedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("api key not found", "key_hash_prefix", keyHash[:8])
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("verify api key: %w", err)
	}

	now := time.Now().UTC()
	if ak.ExpiresAt != nil && ak.ExpiresAt.Before(now) {
		slog.Debug("api key expired", "key_id", ak.ID, "expires_at", ak.ExpiresAt)
		return nil, nil, nil
	}

	if _, err := db.conn.Exec(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, now, ak.ID); err != nil {
		slog.Warn("update last_used_at", "key_id", ak.ID, "err", err)
	}
	ak.LastUsedAt = &now
	return ak, u, nil
}

// RevokeAPIKey deletes a key owned by userID.
func (db *ServerDB) RevokeAPIKey(keyID, userID string) error {
	res, err := db.conn.Exec(`DELETE FROM api_keys WHERE id = ? AND user_id = ?`, keyID, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("api key %s: %w", keyID, ErrNotFound)
	}
	return nil
}

// ListAPIKeys returns userID's keys without secrets.
func (db *ServerDB) ListAPIKeys(userID string) ([]*APIKey, error) {
	rows, err := db.conn.Query(
		`SELECT id, user_id, key_prefix, name, expires_at, last_used_at, created_at FROM api_keys WHERE user_id = ? ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		ak := &APIKey{}
		if err := rows.Scan(&ak.ID, &ak.UserID, &ak.KeyPrefix, &ak.Name, &ak.ExpiresAt, &ak.LastUsedAt, &ak.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, ak)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list api keys: iterate: %w", err)
	}
	return keys, nil
}
