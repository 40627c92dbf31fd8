package localstore

import (
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/marcus/tipbox/internal/favorites"
)

// Favorites is the anonymous favorites set: one record holding a JSON array
// of tip IDs, capped at limit entries. It implements favorites.LocalStore.
type Favorites struct {
	store *Store
	name  string
	limit int
}

// Favorites returns the favorites record of s capped at limit.
func (s *Store) Favorites(limit int) *Favorites {
	if limit <= 0 {
		limit = favorites.DefaultLimit
	}
	return &Favorites{store: s, name: FavoritesRecord, limit: limit}
}

// Limit returns the cap.
func (f *Favorites) Limit() int { return f.limit }

// Get returns the saved IDs in insertion order. Missing, unreadable or
// corrupt data reads as an empty list.
func (f *Favorites) Get() []string {
	ids, err := f.read()
	if err != nil {
		slog.Debug("local favorites unreadable, treating as empty", "err", err)
		return []string{}
	}
	return ids
}

// Add appends id. Adding an ID that is already present is a no-op; adding
// to a full record fails with favorites.ErrLimitExceeded.
func (f *Favorites) Add(id string) error {
	if id == "" {
		return favorites.ErrEmptyID
	}
	return f.store.withWriteLock(func() error {
		ids := f.Get()
		if slices.Contains(ids, id) {
			return nil
		}
		if len(ids) >= f.limit {
			return favorites.LimitExceeded(f.limit)
		}
		return f.write(append(ids, id))
	})
}

// Remove drops id. Removing an absent ID is a no-op.
func (f *Favorites) Remove(id string) error {
	return f.store.withWriteLock(func() error {
		ids := f.Get()
		i := slices.Index(ids, id)
		if i < 0 {
			return nil
		}
		return f.write(slices.Delete(ids, i, i+1))
	})
}

// Clear empties the record.
func (f *Favorites) Clear() error {
	return f.store.withWriteLock(func() error {
		return f.store.Delete(f.name)
	})
}

func (f *Favorites) read() ([]string, error) {
	raw, ok, err := f.store.Read(f.name)
	if err != nil || !ok {
		return []string{}, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return []string{}, err
	}
	// Drop empties and duplicates a hand-edited record may contain
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out, nil
}

// write stores ids; an empty list removes the record so a device that added
// and removed the same ID is left as it started.
func (f *Favorites) write(ids []string) error {
	if len(ids) == 0 {
		return f.store.Delete(f.name)
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return f.store.Write(f.name, data)
}
