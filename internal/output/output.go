// Package output provides styled terminal output helpers (success, error,
// warning, tip and favorite formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/tipbox/internal/catalogclient"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	categoryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	favoriteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

// Favorite markers shown next to tips.
const (
	MarkerFavorite    = "★"
	MarkerNotFavorite = "☆"
)

// Success prints a success message
func Success(format string, args ...any) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...any) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// JSON outputs data as indented JSON
func JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeLimitExceeded = "limit_exceeded"
	ErrCodeNetwork       = "network_failure"
	ErrCodeAuthExpired   = "auth_expired"
	ErrCodeUnknown       = "unknown"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	JSONErrorWithDetails(code, message, nil)
}

// JSONErrorWithDetails outputs an error as JSON with additional context
func JSONErrorWithDetails(code, message string, details map[string]any) {
	errObj := map[string]any{"code": code, "message": message}
	if len(details) > 0 {
		errObj["details"] = details
	}
	data, _ := json.Marshal(map[string]any{"error": errObj})
	fmt.Println(string(data))
}

// FavoriteMarker returns the styled star for a tip.
func FavoriteMarker(fav bool) string {
	if fav {
		return favoriteStyle.Render(MarkerFavorite)
	}
	return subtleStyle.Render(MarkerNotFavorite)
}

// FormatTipShort formats a tip on one line:
// "★ t_abc  [git]  Amend the last commit"
func FormatTipShort(t catalogclient.TipResponse, fav bool) string {
	return strings.Join([]string{
		FavoriteMarker(fav),
		titleStyle.Render(t.ID),
		categoryStyle.Render("[" + t.Category + "]"),
		t.Title,
	}, "  ")
}

// FormatTipLong formats a tip with its body. body is the already-rendered
// markdown; when empty the raw tip body is used.
func FormatTipLong(t catalogclient.TipResponse, fav bool, body string) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s: %s", t.ID, t.Title)))
	sb.WriteString("  ")
	sb.WriteString(FavoriteMarker(fav))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Category: %s\n", categoryStyle.Render(t.Category)))
	if ts, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
		sb.WriteString(subtleStyle.Render("Added " + FormatTimeAgo(ts)))
		sb.WriteString("\n")
	}
	if body == "" {
		body = t.Body
	}
	if body != "" {
		sb.WriteString("\n")
		sb.WriteString(body)
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatCategory formats a category line: "git  Git  (12 tips)"
func FormatCategory(c catalogclient.CategoryResponse) string {
	noun := "tips"
	if c.TipCount == 1 {
		noun = "tip"
	}
	return fmt.Sprintf("%s  %s  %s",
		categoryStyle.Render(c.Slug), c.Name, subtleStyle.Render(fmt.Sprintf("(%d %s)", c.TipCount, noun)))
}

// FormatFavorite formats a server-side favorite summary.
func FormatFavorite(f catalogclient.FavoriteResponse) string {
	line := strings.Join([]string{
		FavoriteMarker(true),
		titleStyle.Render(f.ID),
		categoryStyle.Render("[" + f.Category + "]"),
		f.Title,
	}, "  ")
	if ts, err := time.Parse(time.RFC3339, f.FavoritedAt); err == nil {
		line += "  " + subtleStyle.Render(FormatTimeAgo(ts))
	}
	return line
}

// FormatCount describes how many favorites a session holds. A limit > 0 is
// shown as a cap ("3/10").
func FormatCount(n, limit int) string {
	if limit > 0 {
		return fmt.Sprintf("%d/%d favorites", n, limit)
	}
	if n == 1 {
		return "1 favorite"
	}
	return fmt.Sprintf("%d favorites", n)
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nFAVORITES:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}
