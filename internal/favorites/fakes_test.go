// Tests in this package assert with testify require/assert; the fakes below
// stand in for the device record and the favorites API. Every other package
// in the module tests with bare testing and table-driven cases.
package favorites

import (
	"context"
	"slices"
	"sync"
)

type memLocal struct {
	mu       sync.Mutex
	ids      []string
	limit    int
	addErr   error
	clearErr error
}

func newMemLocal(limit int, ids ...string) *memLocal {
	return &memLocal{ids: ids, limit: limit}
}

func (m *memLocal) Get() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.ids)
}

func (m *memLocal) Add(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	if slices.Contains(m.ids, id) {
		return nil
	}
	if len(m.ids) >= m.limit {
		return LimitExceeded(m.limit)
	}
	m.ids = append(m.ids, id)
	return nil
}

func (m *memLocal) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = slices.DeleteFunc(m.ids, func(s string) bool { return s == id })
	return nil
}

func (m *memLocal) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clearErr != nil {
		return m.clearErr
	}
	m.ids = nil
	return nil
}

// fakeRemote is an in-memory server. failIDs make Add fail for specific
// IDs; gate, when set, blocks every Add/Remove until it is closed or
// receives a value.
type fakeRemote struct {
	mu       sync.Mutex
	set      map[string]bool
	token    string
	err      error
	listErr  error
	failIDs  map[string]error
	gate     chan struct{}
	calls    []string
	active   map[string]int
	maxPerID int
}

func newFakeRemote(token string, ids ...string) *fakeRemote {
	r := &fakeRemote{set: map[string]bool{}, token: token, failIDs: map[string]error{}, active: map[string]int{}}
	for _, id := range ids {
		r.set[id] = true
	}
	return r
}

func (r *fakeRemote) enter(op, id, token string) error {
	r.mu.Lock()
	r.calls = append(r.calls, op+":"+id)
	r.active[id]++
	r.maxPerID = max(r.maxPerID, r.active[id])
	gate := r.gate
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[id]--
	if token != r.token {
		return ErrUnauthorized
	}
	if r.err != nil {
		return r.err
	}
	return r.failIDs[id]
}

func (r *fakeRemote) Add(ctx context.Context, id, token string) error {
	if err := r.enter("add", id, token); err != nil {
		return err
	}
	r.mu.Lock()
	r.set[id] = true
	r.mu.Unlock()
	return nil
}

func (r *fakeRemote) Remove(ctx context.Context, id, token string) error {
	if err := r.enter("remove", id, token); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.set, id)
	r.mu.Unlock()
	return nil
}

func (r *fakeRemote) List(ctx context.Context, token string) ([]Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token != r.token {
		return nil, ErrUnauthorized
	}
	if r.listErr != nil {
		return nil, r.listErr
	}
	items := make([]Item, 0, len(r.set))
	for id := range r.set {
		items = append(items, Item{ID: id})
	}
	return items, nil
}

func (r *fakeRemote) has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set[id]
}

func (r *fakeRemote) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// switchableIdentity lets a test sign in and out mid-session.
type switchableIdentity struct {
	mu    sync.Mutex
	token string
}

func (s *switchableIdentity) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *switchableIdentity) set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// recorder collects every snapshot delivered to a subscriber.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) record(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.snaps)
}

func (r *fakeRemote) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}
