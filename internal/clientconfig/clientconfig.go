// Package clientconfig reads and writes the tipbox CLI's on-disk settings:
// config.toml for preferences, auth.json for credentials and device_id for
// the stable device identifier.
package clientconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
)

// Config is the user config stored at <config dir>/config.toml.
type Config struct {
	ServerURL      string          `toml:"server_url,omitempty"`
	FavoritesLimit int             `toml:"favorites_limit,omitempty"`
	LogLevel       string          `toml:"log_level,omitempty"`
	Features       map[string]bool `toml:"features,omitempty"`
}

// AuthCredentials stores authentication state at <config dir>/auth.json.
type AuthCredentials struct {
	APIKey    string `json:"api_key"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	ServerURL string `json:"server_url"`
	ExpiresAt string `json:"expires_at"`
}

const (
	defaultServerURL      = "http://localhost:8080"
	defaultFavoritesLimit = 10

	configFile   = "config.toml"
	authFile     = "auth.json"
	deviceIDFile = "device_id"
)

// ConfigDir returns the tipbox config directory, creating it if necessary.
// TIPBOX_CONFIG_DIR overrides the default ~/.config/tipbox.
func ConfigDir() (string, error) {
	dir := os.Getenv("TIPBOX_CONFIG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		dir = filepath.Join(home, ".config", "tipbox")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// LoadConfig reads config.toml. A missing file yields the zero Config.
func LoadConfig() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configFile, err)
	}
	return &cfg, nil
}

// SaveConfig writes config.toml.
func SaveConfig(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, configFile), data, 0o644)
}

// LoadAuth reads auth.json. It returns nil, nil when signed out.
func LoadAuth() (*AuthCredentials, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, authFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var creds AuthCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// SaveAuth writes auth.json with 0600 permissions.
func SaveAuth(creds *AuthCredentials) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, authFile), data, 0o600)
}

// ClearAuth removes auth.json.
func ClearAuth() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, authFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// GetServerURL returns the tipbox-server base URL.
// Priority: TIPBOX_SERVER_URL env > config.toml > default.
func GetServerURL() string {
	if v := os.Getenv("TIPBOX_SERVER_URL"); v != "" {
		return strings.TrimRight(v, "/")
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.ServerURL != "" {
		return strings.TrimRight(cfg.ServerURL, "/")
	}
	return defaultServerURL
}

// GetFavoritesLimit returns the anonymous favorites cap.
// Priority: TIPBOX_FAVORITES_LIMIT env > config.toml > 10.
func GetFavoritesLimit() int {
	if v := os.Getenv("TIPBOX_FAVORITES_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.FavoritesLimit > 0 {
		return cfg.FavoritesLimit
	}
	return defaultFavoritesLimit
}

// GetLogLevel returns the configured log level name, or "" for the default.
func GetLogLevel() string {
	if v := os.Getenv("TIPBOX_LOG_LEVEL"); v != "" {
		return v
	}
	cfg, err := LoadConfig()
	if err == nil {
		return cfg.LogLevel
	}
	return ""
}

// GetAPIKey returns the API key.
// Priority: TIPBOX_AUTH_KEY env > auth.json.
func GetAPIKey() string {
	if v := os.Getenv("TIPBOX_AUTH_KEY"); v != "" {
		return v
	}
	creds, err := LoadAuth()
	if err == nil && creds != nil {
		return creds.APIKey
	}
	return ""
}

// IsAuthenticated returns true if an API key is available.
func IsAuthenticated() bool {
	return GetAPIKey() != ""
}

// GetDeviceID returns this installation's device ID, generating and
// persisting one on first use. Signing out keeps it.
func GetDeviceID() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, deviceIDFile)
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}
	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write device id: %w", err)
	}
	return id, nil
}

// Identity reports the current session token straight from disk, so a
// login or logout by another tipbox process is seen on the next call.
type Identity struct{}

// Token returns the API key, or "" when signed out.
func (Identity) Token() string { return GetAPIKey() }
