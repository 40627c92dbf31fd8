package favcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marcus/tipbox/internal/serverdb"
)

// memBackend is an in-memory Backend that can be told to fail. beforeSet,
// when set, runs once inside SetIfVersion ahead of the version check.
type memBackend struct {
	mu        sync.Mutex
	data      map[string][]byte
	versions  map[string]int64
	ttls      map[string]time.Duration
	fail      error
	beforeSet func()
}

func newMemBackend() *memBackend {
	return &memBackend{data: map[string][]byte{}, versions: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, false, m.fail
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memBackend) Version(_ context.Context, verKey string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return 0, m.fail
	}
	return m.versions[verKey], nil
}

func (m *memBackend) SetIfVersion(_ context.Context, key, verKey string, version int64, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	hook := m.beforeSet
	m.beforeSet = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return false, m.fail
	}
	if m.versions[verKey] != version {
		return false, nil
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return true, nil
}

func (m *memBackend) Bump(_ context.Context, key, verKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.versions[verKey]++
	delete(m.data, key)
	return nil
}

func store(c *Cache, userID string, favs []serverdb.Favorite) {
	ctx := context.Background()
	c.Store(ctx, c.BeginFill(ctx, userID), favs)
}

func TestStoreThenHit(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	c := New(b, time.Minute, nil)

	if _, ok := c.Favorites(ctx, "u1"); ok {
		t.Fatal("expected miss on empty cache")
	}

	favs := []serverdb.Favorite{{TipID: "t1", Title: "One", CategorySlug: "git", CreatedAt: time.Now().UTC().Truncate(time.Second)}}
	store(c, "u1", favs)
	if b.ttls[Key("u1")] != time.Minute {
		t.Errorf("ttl: got %v", b.ttls[Key("u1")])
	}

	got, ok := c.Favorites(ctx, "u1")
	if !ok {
		t.Fatal("expected hit")
	}
	if len(got) != 1 || got[0].TipID != "t1" || !got[0].CreatedAt.Equal(favs[0].CreatedAt) {
		t.Fatalf("cached value: %+v", got)
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Errors != 0 {
		t.Fatalf("stats: %+v", s)
	}
}

func TestEmptyListIsAHit(t *testing.T) {
	ctx := context.Background()
	c := New(newMemBackend(), 0, nil)
	store(c, "u1", []serverdb.Favorite{})
	got, ok := c.Favorites(ctx, "u1")
	if !ok || got == nil || len(got) != 0 {
		t.Fatalf("expected cached empty list, got %#v ok=%v", got, ok)
	}
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	c := New(newMemBackend(), 0, nil)
	store(c, "u1", []serverdb.Favorite{{TipID: "t1"}})
	store(c, "u2", []serverdb.Favorite{{TipID: "t2"}})
	c.Invalidate(ctx, "u1")

	if _, ok := c.Favorites(ctx, "u1"); ok {
		t.Fatal("u1 should be invalidated")
	}
	if _, ok := c.Favorites(ctx, "u2"); !ok {
		t.Fatal("u2 should be untouched")
	}
}

func TestBackendFailureIsAMiss(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	b.fail = errors.New("connection refused")
	c := New(b, 0, nil)

	fill := c.BeginFill(ctx, "u1")
	c.Store(ctx, fill, []serverdb.Favorite{{TipID: "t1"}})
	if _, ok := c.Favorites(ctx, "u1"); ok {
		t.Fatal("failing backend must not hit")
	}
	c.Invalidate(ctx, "u1")
	// BeginFill, Favorites and Invalidate fail; Store is skipped for a failed fill
	if got := c.Stats().Errors; got != 3 {
		t.Fatalf("errors: got %d, want 3", got)
	}
}

func TestWriteDuringFillDropsTheFill(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	c := New(b, time.Minute, nil)

	// A list read from the database before a write committed
	fill := c.BeginFill(ctx, "u1")
	old := []serverdb.Favorite{{TipID: "t1"}}
	c.Invalidate(ctx, "u1")
	c.Store(ctx, fill, old)

	if _, ok := c.Favorites(ctx, "u1"); ok {
		t.Fatal("a fill that raced a write must not be cached")
	}
	if st := c.Stats(); st.Stale != 1 || st.Errors != 0 {
		t.Fatalf("stats: %+v", st)
	}

	// A fill taken after the write lands normally
	store(c, "u1", []serverdb.Favorite{{TipID: "t1"}, {TipID: "t2"}})
	if got, ok := c.Favorites(ctx, "u1"); !ok || len(got) != 2 {
		t.Fatalf("got %v ok=%v", got, ok)
	}
}

func TestWriteBetweenCheckAndSet(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	c := New(b, time.Minute, nil)

	fill := c.BeginFill(ctx, "u1")
	b.beforeSet = func() { c.Invalidate(ctx, "u1") }
	c.Store(ctx, fill, []serverdb.Favorite{{TipID: "t1"}})

	if _, ok := c.Favorites(ctx, "u1"); ok {
		t.Fatal("invalidate landing before the set must win")
	}
	if got := c.Stats().Stale; got != 1 {
		t.Fatalf("stale: got %d, want 1", got)
	}
}

func TestCorruptValueIsAMiss(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	b.data[Key("u1")] = []byte("not json")
	c := New(b, 0, nil)
	if _, ok := c.Favorites(ctx, "u1"); ok {
		t.Fatal("corrupt value must not hit")
	}
}

func TestNilCache(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	c.Store(ctx, c.BeginFill(ctx, "u1"), nil)
	c.Invalidate(ctx, "u1")
	if _, ok := c.Favorites(ctx, "u1"); ok {
		t.Fatal("nil cache never hits")
	}
	if c.Stats() != (Stats{}) {
		t.Fatal("nil cache stats should be zero")
	}
}
