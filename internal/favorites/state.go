package favorites

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Snapshot is a point-in-time view of State handed to subscribers.
type Snapshot struct {
	IDs     []string // sorted
	Mode    Mode
	Loading bool
	Pending int // mutations applied speculatively but not yet confirmed
	Err     error
	Version uint64
}

// Has reports whether id is in the snapshot.
func (s Snapshot) Has(id string) bool {
	i := sort.SearchStrings(s.IDs, id)
	return i < len(s.IDs) && s.IDs[i] == id
}

// Count returns the number of favorites in the snapshot.
func (s Snapshot) Count() int { return len(s.IDs) }

// Config wires State to its stores.
type Config struct {
	Local    LocalStore
	Remote   Remote
	Identity Identity
	Limit    int // anonymous cap; DefaultLimit when <= 0
	Logger   *slog.Logger
}

// State is the in-memory favorites model shared by every consumer of a
// session. It is safe for concurrent use. Mutations go through Add and Remove
// only; readers get copies.
type State struct {
	local    LocalStore
	remote   Remote
	identity Identity
	limit    int
	log      *slog.Logger

	mu         sync.Mutex
	set        map[string]struct{}
	loading    int
	pending    int
	lastErr    error
	closed     bool
	version    uint64
	refreshGen uint64
	inflight   map[string]chan struct{}

	notifyMu  sync.Mutex
	delivered uint64
	subs      map[int]func(Snapshot)
	nextSub   int
}

// New creates an empty State. Call Refresh to load the authoritative set.
func New(cfg Config) *State {
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	identity := cfg.Identity
	if identity == nil {
		identity = StaticIdentity("")
	}
	return &State{
		local:    cfg.Local,
		remote:   cfg.Remote,
		identity: identity,
		limit:    limit,
		log:      logger,
		set:      make(map[string]struct{}),
		inflight: make(map[string]chan struct{}),
		subs:     make(map[int]func(Snapshot)),
	}
}

// IsFavorite reports whether id is in the current set, including
// speculative changes from in-flight mutations.
func (s *State) IsFavorite(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[id]
	return ok
}

// Count returns the size of the current set.
func (s *State) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set)
}

// IDs returns the current set, sorted.
func (s *State) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedIDs(s.set)
}

// Loading reports whether a refresh is in flight.
func (s *State) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading > 0
}

// Err returns the last error recorded by a mutation or refresh.
func (s *State) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Mode returns the mode derived from the current identity.
func (s *State) Mode() Mode {
	return ModeOf(s.identity.Token())
}

// Limit returns the anonymous favorites cap.
func (s *State) Limit() int { return s.limit }

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to be called after every state transition. fn runs
// on the goroutine that caused the transition, must not block for long and
// must not call Subscribe or the returned unsubscribe func.
func (s *State) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.notifyMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.notifyMu.Lock()
			delete(s.subs, id)
			s.notifyMu.Unlock()
		})
	}
}

// Refresh reloads the full set from the store for the current mode and
// replaces the in-memory set, including any speculative changes. On failure
// the previous set is kept and the typed error is returned.
func (s *State) Refresh(ctx context.Context) error {
	token := s.identity.Token()
	mode := ModeOf(token)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return classify("refresh", "", ErrClosed)
	}
	s.loading++
	snap := s.commitLocked()
	s.mu.Unlock()
	s.notify(snap)

	ids, err := s.load(ctx, mode, token)

	s.mu.Lock()
	s.loading--
	if s.closed {
		s.mu.Unlock()
		if err != nil {
			return classify("refresh", "", err)
		}
		return nil
	}
	var ferr *Error
	if err != nil {
		ferr = classify("refresh", "", err)
		s.lastErr = ferr
		s.log.Warn("favorites refresh failed", "mode", mode, "err", err)
	} else {
		s.set = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if id != "" {
				s.set[id] = struct{}{}
			}
		}
		s.refreshGen++
		s.lastErr = nil
	}
	snap = s.commitLocked()
	s.mu.Unlock()
	s.notify(snap)

	if ferr != nil {
		return ferr
	}
	return nil
}

func (s *State) load(ctx context.Context, mode Mode, token string) ([]string, error) {
	if mode == Anonymous {
		if s.local == nil {
			return nil, nil
		}
		return s.local.Get(), nil
	}
	if s.remote == nil {
		return nil, ErrNetworkFailure
	}
	items, err := s.remote.List(ctx, token)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids, nil
}

// Close detaches the state. Mutations that resolve afterwards neither
// confirm nor roll back, and subscribers are dropped.
func (s *State) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.notifyMu.Lock()
	s.subs = make(map[int]func(Snapshot))
	s.notifyMu.Unlock()
}

// commitLocked bumps the version and returns the snapshot to publish.
// Callers hold s.mu.
func (s *State) commitLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		IDs:     sortedIDs(s.set),
		Mode:    ModeOf(s.identity.Token()),
		Loading: s.loading > 0,
		Pending: s.pending,
		Err:     s.lastErr,
		Version: s.version,
	}
}

// notify delivers snap to subscribers unless a newer snapshot already went
// out, so subscribers never observe state going backwards.
func (s *State) notify(snap Snapshot) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if snap.Version <= s.delivered {
		return
	}
	s.delivered = snap.Version
	for _, fn := range s.subs {
		fn(snap)
	}
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
