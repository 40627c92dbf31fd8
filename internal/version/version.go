// Package version resolves the running build's version and checks GitHub
// releases for a newer one.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"runtime/debug"
	"strings"
	"time"
)

// ReleaseURL is the latest-release endpoint queried by Check.
var ReleaseURL = "https://api.github.com/repos/marcus/tipbox/releases/latest"

// Release is the subset of a GitHub release Check reads.
type Release struct {
	TagName     string    `json:"tag_name"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
}

// CheckResult holds the result of a version check.
type CheckResult struct {
	CurrentVersion string
	LatestVersion  string
	UpdateURL      string
	HasUpdate      bool
	Error          error
}

// Effective returns v when it was stamped at build time, otherwise the
// module version or a devel+<rev> string derived from the build info.
func Effective(v string) string {
	if v != "" && v != "dev" {
		return v
	}
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return v
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	var rev string
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return v
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	out := "devel+" + rev
	if dirty {
		out += "+dirty"
	}
	return out
}

// Check fetches the latest release and compares it with current.
// Development builds are never checked.
func Check(ctx context.Context, current string) CheckResult {
	result := CheckResult{CurrentVersion: current}
	if IsDevelopmentVersion(current) {
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ReleaseURL, nil)
	if err != nil {
		result.Error = err
		return result
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		result.Error = err
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Errorf("release check: %s", resp.Status)
		return result
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		result.Error = fmt.Errorf("decode release: %w", err)
		return result
	}

	result.LatestVersion = release.TagName
	result.UpdateURL = release.HTMLURL
	result.HasUpdate = isNewer(release.TagName, current)
	return result
}

// IsDevelopmentVersion reports whether v is a local or unstamped build.
func IsDevelopmentVersion(v string) bool {
	switch v {
	case "", "unknown", "dev", "devel":
		return true
	}
	return strings.HasPrefix(v, "devel+")
}

var releaseTag = regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[a-zA-Z0-9]+([.-][a-zA-Z0-9]+)*)?$`)

// UpdateCommand returns the go install line for version, or "" when version
// is not a release tag (it ends up in a shell command).
func UpdateCommand(version string) string {
	if !releaseTag.MatchString(version) {
		return ""
	}
	return fmt.Sprintf(`go install -ldflags "-X main.Version=%s" github.com/marcus/tipbox@%s`, version, version)
}
