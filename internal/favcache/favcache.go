// Package favcache caches each user's favorites list in Redis so repeated
// GET /v1/favorites calls skip the database. The cache is best-effort: any
// backend failure is logged and treated as a miss.
package favcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/marcus/tipbox/internal/serverdb"
)

const DefaultTTL = 5 * time.Minute

// Backend is the minimal key/value surface the cache needs. Every cached
// list has a version counter next to it: writers bump the counter while
// dropping the list, and a fill only lands if the counter has not moved since
// the filler read it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Version returns the counter at verKey, 0 when unset.
	Version(ctx context.Context, verKey string) (int64, error)
	// SetIfVersion writes value at key only while verKey still holds
	// version. It reports whether the value was written.
	SetIfVersion(ctx context.Context, key, verKey string, version int64, value []byte, ttl time.Duration) (bool, error)
	// Bump increments verKey and deletes key atomically.
	Bump(ctx context.Context, key, verKey string) error
}

// GoRedisBackend implements Backend on github.com/redis/go-redis/v9.
type GoRedisBackend struct{ c *redis.Client }

// NewGoRedisBackend connects lazily to addr, e.g. "127.0.0.1:6379".
func NewGoRedisBackend(addr string) *GoRedisBackend {
	return &GoRedisBackend{c: redis.NewClient(&redis.Options{Addr: addr})}
}

func (g *GoRedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := g.c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (g *GoRedisBackend) Version(ctx context.Context, verKey string) (int64, error) {
	v, err := g.c.Get(ctx, verKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

var errVersionMoved = errors.New("favcache: version moved")

// SetIfVersion watches verKey so a Bump landing between the check and the
// write aborts the transaction.
func (g *GoRedisBackend) SetIfVersion(ctx context.Context, key, verKey string, version int64, value []byte, ttl time.Duration) (bool, error) {
	err := g.c.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, verKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != version {
			return errVersionMoved
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, value, ttl)
			return nil
		})
		return err
	}, verKey)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errVersionMoved), errors.Is(err, redis.TxFailedErr):
		return false, nil
	}
	return false, err
}

func (g *GoRedisBackend) Bump(ctx context.Context, key, verKey string) error {
	_, err := g.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, verKey)
		p.Del(ctx, key)
		return nil
	})
	return err
}

// Ping checks the connection.
func (g *GoRedisBackend) Ping(ctx context.Context) error {
	return g.c.Ping(ctx).Err()
}

// Close releases the connection pool.
func (g *GoRedisBackend) Close() error {
	return g.c.Close()
}

// Stats counts cache outcomes since start.
type Stats struct {
	Hits   int64
	Misses int64
	Errors int64
	Stale  int64 // fills dropped because a write raced them
}

// Cache stores favorites lists keyed by user. A nil *Cache is valid and
// never hits.
type Cache struct {
	backend Backend
	ttl     time.Duration
	log     *slog.Logger

	hits, misses, errs, stale atomic.Int64
}

// New creates a cache over backend. ttl <= 0 selects DefaultTTL.
func New(backend Backend, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{backend: backend, ttl: ttl, log: logger}
}

// Key returns the cache key for a user's favorites.
func Key(userID string) string { return "favorites:" + userID }

// VersionKey returns the key of the version counter guarding Key(userID).
func VersionKey(userID string) string { return "favorites-ver:" + userID }

// Fill is a pending cache fill: take it before reading the database and pass
// the result to Store.
type Fill struct {
	userID  string
	version int64
	ok      bool
}

// Favorites returns the cached list for userID, if any.
func (c *Cache) Favorites(ctx context.Context, userID string) ([]serverdb.Favorite, bool) {
	if c == nil {
		return nil, false
	}
	raw, ok, err := c.backend.Get(ctx, Key(userID))
	if err != nil {
		c.errs.Add(1)
		c.log.Warn("favcache get", "user_id", userID, "err", err)
		return nil, false
	}
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	var favs []serverdb.Favorite
	if err := json.Unmarshal(raw, &favs); err != nil {
		c.errs.Add(1)
		c.log.Warn("favcache decode", "user_id", userID, "err", err)
		return nil, false
	}
	c.hits.Add(1)
	if favs == nil {
		favs = []serverdb.Favorite{}
	}
	return favs, true
}

// BeginFill records userID's current version ahead of a database read.
func (c *Cache) BeginFill(ctx context.Context, userID string) Fill {
	if c == nil {
		return Fill{}
	}
	v, err := c.backend.Version(ctx, VersionKey(userID))
	if err != nil {
		c.errs.Add(1)
		c.log.Warn("favcache version", "user_id", userID, "err", err)
		return Fill{}
	}
	return Fill{userID: userID, version: v, ok: true}
}

// Store caches favs, read after f was taken, unless a write invalidated the
// user's list since then.
func (c *Cache) Store(ctx context.Context, f Fill, favs []serverdb.Favorite) {
	if c == nil || !f.ok {
		return
	}
	raw, err := json.Marshal(favs)
	if err != nil {
		return
	}
	stored, err := c.backend.SetIfVersion(ctx, Key(f.userID), VersionKey(f.userID), f.version, raw, c.ttl)
	if err != nil {
		c.errs.Add(1)
		c.log.Warn("favcache set", "user_id", f.userID, "err", err)
		return
	}
	if !stored {
		c.stale.Add(1)
		c.log.Debug("favcache fill dropped", "user_id", f.userID)
	}
}

// Invalidate drops userID's cached list and voids fills in progress. Call
// it after every write.
func (c *Cache) Invalidate(ctx context.Context, userID string) {
	if c == nil {
		return
	}
	if err := c.backend.Bump(ctx, Key(userID), VersionKey(userID)); err != nil {
		c.errs.Add(1)
		c.log.Warn("favcache invalidate", "user_id", userID, "err", err)
	}
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errs.Load(), Stale: c.stale.Load()}
}
