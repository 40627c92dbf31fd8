package favorites

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a favorites failure for the caller.
type Kind int

const (
	KindUnknown Kind = iota
	KindLimitExceeded
	KindNetworkFailure
	KindAuthExpired
)

func (k Kind) String() string {
	switch k {
	case KindLimitExceeded:
		return "limit_exceeded"
	case KindNetworkFailure:
		return "network_failure"
	case KindAuthExpired:
		return "auth_expired"
	default:
		return "unknown"
	}
}

// Sentinel errors. Remote implementations return (or wrap) ErrUnauthorized
// and ErrNetworkFailure; everything surfaced by State is an *Error that
// matches exactly one of ErrLimitExceeded, ErrNetworkFailure, ErrAuthExpired
// or ErrUnknown via errors.Is.
var (
	ErrLimitExceeded  = errors.New("favorites limit reached")
	ErrNetworkFailure = errors.New("network failure")
	ErrAuthExpired    = errors.New("session expired, sign in again")
	ErrUnknown        = errors.New("favorites operation failed")

	ErrUnauthorized = errors.New("unauthorized")
	ErrClosed       = errors.New("favorites state closed")
	ErrEmptyID      = errors.New("item id is required")
)

// Error is the typed error returned by State, Merger and the local store.
type Error struct {
	Kind  Kind
	Op    string // add, remove, refresh, merge
	ID    string
	Limit int // set for KindLimitExceeded
	Err   error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindLimitExceeded:
		msg = fmt.Sprintf("favorites limit of %d reached, sign in to save more", e.Limit)
	case KindNetworkFailure:
		msg = ErrNetworkFailure.Error()
	case KindAuthExpired:
		msg = ErrAuthExpired.Error()
	default:
		msg = ErrUnknown.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil && e.Kind != KindLimitExceeded {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels so callers can use errors.Is(err, ErrAuthExpired).
func (e *Error) Is(target error) bool {
	switch target {
	case ErrLimitExceeded:
		return e.Kind == KindLimitExceeded
	case ErrNetworkFailure:
		return e.Kind == KindNetworkFailure
	case ErrAuthExpired:
		return e.Kind == KindAuthExpired
	case ErrUnknown:
		return e.Kind == KindUnknown
	}
	return false
}

// LimitExceeded returns the error raised when an anonymous add hits the cap.
func LimitExceeded(limit int) *Error {
	return &Error{Kind: KindLimitExceeded, Limit: limit}
}

// KindOf reports the Kind of err. Errors that were never classified are
// reported as KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return classifyKind(err)
}

// classify wraps err into an *Error for op/id, keeping an existing
// classification when err already is one.
func classify(op, id string, err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		out := *fe
		if out.Op == "" {
			out.Op = op
		}
		if out.ID == "" {
			out.ID = id
		}
		return &out
	}
	return &Error{Kind: classifyKind(err), Op: op, ID: id, Err: err}
}

func classifyKind(err error) Kind {
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrAuthExpired):
		return KindAuthExpired
	case errors.Is(err, ErrNetworkFailure), errors.Is(err, context.DeadlineExceeded):
		return KindNetworkFailure
	case errors.Is(err, ErrLimitExceeded):
		return KindLimitExceeded
	default:
		return KindUnknown
	}
}
