package serverdb

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// User is a registered account.
type User struct {
	ID              string
	Email           string
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const userColumns = `id, email, email_verified_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	u := &User{}
	if err := row.Scan(&u.ID, &u.Email, &u.EmailVerifiedAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser inserts a new user. The email is stored lowercased.
func (db *ServerDB) CreateUser(email string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	id, err := generateID("u_")
	if err != nil {
		return nil, fmt.Errorf("generate user id: %w", err)
	}

	now := time.Now().UTC()
	if _, err := db.conn.Exec(
		`INSERT INTO users (id, email, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, email, now, now,
	); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &User{ID: id, Email: email, CreatedAt: now, UpdatedAt: now}, nil
}

// GetUserByID returns the user, or nil if not found.
func (db *ServerDB) GetUserByID(id string) (*User, error) {
	u, err := scanUser(db.conn.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetUserByEmail looks a user up case-insensitively, or returns nil.
func (db *ServerDB) GetUserByEmail(email string) (*User, error) {
	u, err := scanUser(db.conn.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// ListUsers returns all users, oldest first.
func (db *ServerDB) ListUsers() ([]*User, error) {
	rows, err := db.conn.Query(`SELECT ` + userColumns + ` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: iterate: %w", err)
	}
	return users, nil
}

// SetEmailVerified marks the user's email as verified.
func (db *ServerDB) SetEmailVerified(userID string) error {
	now := time.Now().UTC()
	res, err := db.conn.Exec(
		`UPDATE users SET email_verified_at = ?, updated_at = ? WHERE id = ?`,
		now, now, userID,
	)
	if err != nil {
		return fmt.Errorf("set email verified: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}
