package version

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// UpdateAvailableMsg is sent when a newer release exists.
type UpdateAvailableMsg struct {
	CurrentVersion string
	LatestVersion  string
	UpdateCommand  string
}

// CheckAsync returns a command that checks for a newer release in the
// background, answering from the cache when it is fresh. It yields nil when
// the build is current or the check fails.
func CheckAsync(current string) tea.Cmd {
	return func() tea.Msg {
		if IsDevelopmentVersion(current) {
			return nil
		}
		if cached, err := LoadCache(); err == nil && IsCacheValid(cached, current) {
			return updateMsg(current, cached.LatestVersion, cached.HasUpdate)
		}

		result := Check(context.Background(), current)
		if result.Error != nil {
			return nil
		}
		_ = SaveCache(&CacheEntry{
			LatestVersion:  result.LatestVersion,
			CurrentVersion: current,
			CheckedAt:      time.Now(),
			HasUpdate:      result.HasUpdate,
		})
		return updateMsg(current, result.LatestVersion, result.HasUpdate)
	}
}

func updateMsg(current, latest string, hasUpdate bool) tea.Msg {
	if !hasUpdate {
		return nil
	}
	return UpdateAvailableMsg{
		CurrentVersion: current,
		LatestVersion:  latest,
		UpdateCommand:  UpdateCommand(latest),
	}
}
