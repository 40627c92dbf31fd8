package favorites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// MergeResult reports what a merge pushed to the server.
type MergeResult struct {
	Merged []string
	Failed []string
}

// Merger moves the device-local favorites into the server-backed store when
// a session signs in. The refresh callback is invoked after every merge so
// the owning State reflects the server's set.
type Merger struct {
	local   LocalStore
	remote  Remote
	refresh func(context.Context) error
	log     *slog.Logger

	mu        sync.Mutex
	lastToken string
	observed  bool
}

// NewMerger creates a Merger. refresh is usually State.Refresh.
func NewMerger(local LocalStore, remote Remote, refresh func(context.Context) error, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{local: local, remote: remote, refresh: refresh, log: logger}
}

// Observe records the session's identity token and runs a merge when it
// changed from empty to non-empty since the previous call. The first call
// only sets the baseline, so a session that starts signed in never merges.
// Signing out (an empty token) re-arms it. It reports whether a merge ran.
func (m *Merger) Observe(ctx context.Context, token string) (MergeResult, bool, error) {
	m.mu.Lock()
	prev, seen := m.lastToken, m.observed
	m.lastToken, m.observed = token, true
	m.mu.Unlock()

	if !seen || prev != "" || token == "" {
		return MergeResult{}, false, nil
	}
	res, err := m.Merge(ctx, token)
	return res, true, err
}

// Merge pushes every local favorite to the server, clears the local record
// and refreshes. A favorite that fails to push is logged and reported in
// MergeResult.Failed but does not stop the merge, and the local record is
// cleared regardless. The returned error is non-nil only when the local
// record could not be cleared or the refresh failed.
func (m *Merger) Merge(ctx context.Context, token string) (MergeResult, error) {
	if token == "" {
		return MergeResult{}, classify("merge", "", ErrUnauthorized)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var res MergeResult
	for _, id := range m.local.Get() {
		if err := m.remote.Add(ctx, id, token); err != nil {
			ferr := classify("merge", id, err)
			m.log.Warn("merge favorite", "id", id, "kind", ferr.Kind.String(), "err", err)
			res.Failed = append(res.Failed, id)
			continue
		}
		res.Merged = append(res.Merged, id)
	}

	if err := m.local.Clear(); err != nil {
		return res, classify("merge", "", fmt.Errorf("clear local favorites: %w", err))
	}
	if len(res.Merged) > 0 || len(res.Failed) > 0 {
		m.log.Info("merged local favorites", "merged", len(res.Merged), "failed", len(res.Failed))
	}

	if m.refresh != nil {
		if err := m.refresh(ctx); err != nil {
			var fe *Error
			if errors.As(err, &fe) {
				return res, err
			}
			return res, classify("merge", "", err)
		}
	}
	return res, nil
}
