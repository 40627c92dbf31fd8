package favorites

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{LimitExceeded(10), "favorites limit of 10 reached, sign in to save more"},
		{&Error{Kind: KindNetworkFailure, Op: "add", Err: errors.New("dial tcp")}, "add: network failure: dial tcp"},
		{&Error{Kind: KindAuthExpired, Op: "refresh"}, "refresh: session expired, sign in again"},
		{&Error{Kind: KindUnknown}, "favorites operation failed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestErrorIsMatchesExactlyOneKind(t *testing.T) {
	sentinels := map[Kind]error{
		KindUnknown:        ErrUnknown,
		KindLimitExceeded:  ErrLimitExceeded,
		KindNetworkFailure: ErrNetworkFailure,
		KindAuthExpired:    ErrAuthExpired,
	}
	for kind := range sentinels {
		err := error(&Error{Kind: kind})
		for other, sentinel := range sentinels {
			assert.Equal(t, kind == other, errors.Is(err, sentinel), "%s vs %s", kind, other)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"typed", fmt.Errorf("wrap: %w", LimitExceeded(3)), KindLimitExceeded},
		{"unauthorized", fmt.Errorf("%w: 401", ErrUnauthorized), KindAuthExpired},
		{"network", ErrNetworkFailure, KindNetworkFailure},
		{"deadline", context.DeadlineExceeded, KindNetworkFailure},
		{"canceled", context.Canceled, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestClassifyKeepsExistingError(t *testing.T) {
	orig := LimitExceeded(4)
	got := classify("add", "t1", orig)
	assert.Equal(t, KindLimitExceeded, got.Kind)
	assert.Equal(t, 4, got.Limit)
	assert.Equal(t, "add", got.Op)
	assert.Equal(t, "t1", got.ID)
	assert.Empty(t, orig.Op, "classify must not modify its input")
	assert.Nil(t, classify("add", "t1", nil))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "limit_exceeded", KindLimitExceeded.String())
	assert.Equal(t, "network_failure", KindNetworkFailure.String())
	assert.Equal(t, "auth_expired", KindAuthExpired.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
