package version

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marcus/tipbox/internal/clientconfig"
)

const (
	cacheFile = "version_check.json"
	cacheTTL  = 24 * time.Hour
)

// CacheEntry is the last successful release check.
type CacheEntry struct {
	LatestVersion  string    `json:"latest_version"`
	CurrentVersion string    `json:"current_version"`
	CheckedAt      time.Time `json:"checked_at"`
	HasUpdate      bool      `json:"has_update"`
}

func cachePath() (string, error) {
	dir, err := clientconfig.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, cacheFile), nil
}

// LoadCache reads the cached check.
func LoadCache() (*CacheEntry, error) {
	path, err := cachePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parse %s: %w", cacheFile, err)
	}
	return &entry, nil
}

// SaveCache writes entry to the config dir.
func SaveCache(entry *CacheEntry) error {
	path, err := cachePath()
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// IsCacheValid reports whether entry answers a check for current: same
// running version and checked within the last day.
func IsCacheValid(entry *CacheEntry, current string) bool {
	if entry == nil || entry.CurrentVersion != current {
		return false
	}
	return time.Since(entry.CheckedAt) < cacheTTL
}
