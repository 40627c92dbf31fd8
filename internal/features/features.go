package features

import (
	"os"
	"slices"
	"strings"
	"unicode"

	"github.com/marcus/tipbox/internal/clientconfig"
)

// Feature describes a named feature flag.
type Feature struct {
	Name        string
	Default     bool
	Description string
}

var (
	// UpdateCheck gates the release check in `version --check` and the
	// browse header.
	UpdateCheck = Feature{
		Name:        "update_check",
		Default:     true,
		Description: "Check for newer tipbox releases",
	}

	// MarkdownRender gates glamour rendering of tip bodies.
	MarkdownRender = Feature{
		Name:        "markdown_render",
		Default:     true,
		Description: "Render tip bodies as styled markdown",
	}
)

var allFeatures = []Feature{
	MarkdownRender,
	UpdateCheck,
}

var defaultValues = func() map[string]bool {
	m := make(map[string]bool, len(allFeatures))
	for _, f := range allFeatures {
		m[f.Name] = f.Default
	}
	return m
}()

// ListAll returns all known features sorted by name.
func ListAll() []Feature {
	return slices.SortedFunc(slices.Values(allFeatures), func(a, b Feature) int {
		return strings.Compare(a.Name, b.Name)
	})
}

// IsKnownFeature returns true when the feature exists in the registry.
func IsKnownFeature(name string) bool {
	_, ok := defaultValues[normalizeName(name)]
	return ok
}

// IsEnabled resolves a feature using env overrides, then config.toml, then
// defaults.
func IsEnabled(f Feature) bool {
	enabled, _ := Resolve(f.Name)
	return enabled
}

// Resolve returns the resolved feature state and the source ("env",
// "config", "default").
func Resolve(name string) (bool, string) {
	canonical := normalizeName(name)

	if enabled, ok := resolveEnvOverride(canonical); ok {
		return enabled, "env"
	}

	if cfg, err := clientconfig.LoadConfig(); err == nil && cfg.Features != nil {
		if enabled, ok := cfg.Features[canonical]; ok {
			return enabled, "config"
		}
	}

	return defaultValues[canonical], "default"
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// envKey maps a feature name to its TIPBOX_FEATURE_ variable.
func envKey(name string) string {
	return "TIPBOX_FEATURE_" + strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, strings.TrimSpace(name))
}

func resolveEnvOverride(name string) (enabled, ok bool) {
	if enabled, ok := envBool(envKey(name)); ok {
		return enabled, true
	}
	if listed(os.Getenv("TIPBOX_DISABLE_FEATURES"), name) {
		return false, true
	}
	if listed(os.Getenv("TIPBOX_ENABLE_FEATURES"), name) {
		return true, true
	}
	return false, false
}

func envBool(key string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "on", "yes":
		return true, true
	case "0", "false", "off", "no":
		return false, true
	}
	return false, false
}

// listed reports whether name appears in a comma-separated list.
func listed(list, name string) bool {
	for item := range strings.SplitSeq(list, ",") {
		if normalizeName(item) == name {
			return true
		}
	}
	return false
}
