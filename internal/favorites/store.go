// Package favorites keeps a user's saved tips consistent across the
// device-local store (anonymous sessions) and the server (signed-in
// sessions). State owns the in-memory set and applies every mutation
// optimistically; Merger moves the local set to the server once per sign-in.
package favorites

import (
	"context"
	"time"
)

// DefaultLimit is the anonymous favorites cap used when none is configured.
const DefaultLimit = 10

// Mode is the authentication mode a mutation runs under.
type Mode int

const (
	Anonymous Mode = iota
	Authenticated
)

func (m Mode) String() string {
	if m == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// ModeOf derives the mode from an identity token.
func ModeOf(token string) Mode {
	if token == "" {
		return Anonymous
	}
	return Authenticated
}

// LocalStore is the device-local favorites record used while anonymous.
// Add returns an error matching ErrLimitExceeded when the record is full and
// id is not already present. Get never fails; unreadable data reads as empty.
type LocalStore interface {
	Get() []string
	Add(id string) error
	Remove(id string) error
	Clear() error
}

// Remote is the server-backed favorites store. Implementations wrap
// ErrUnauthorized when the token is missing or rejected and ErrNetworkFailure
// when the server could not be reached. Add and Remove are idempotent.
type Remote interface {
	Add(ctx context.Context, id, token string) error
	Remove(ctx context.Context, id, token string) error
	List(ctx context.Context, token string) ([]Item, error)
}

// Item is a favorited tip as listed by the server.
type Item struct {
	ID          string
	Title       string
	Category    string
	FavoritedAt time.Time
}

// Identity supplies the current session token; empty means anonymous.
type Identity interface {
	Token() string
}

// IdentityFunc adapts a function to Identity.
type IdentityFunc func() string

func (f IdentityFunc) Token() string { return f() }

// StaticIdentity is a fixed token, mostly useful for tests and one-shot commands.
type StaticIdentity string

func (s StaticIdentity) Token() string { return string(s) }
