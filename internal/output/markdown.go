package output

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const (
	defaultMarkdownWidth = 80
	minMarkdownWidth     = 20
	maxMarkdownWidth     = 120
)

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// TerminalWidth returns the current terminal width, then $COLUMNS, then
// fallback.
func TerminalWidth(fallback int) int {
	if fallback <= 0 {
		fallback = defaultMarkdownWidth
	}
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if parsed, err := strconv.Atoi(cols); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// RenderTipBody renders a tip's markdown body for the current stdout:
// styled when it is a terminal, plain otherwise.
func RenderTipBody(body string) (string, error) {
	width := min(TerminalWidth(defaultMarkdownWidth), maxMarkdownWidth)
	return RenderMarkdown(body, width, IsTerminal())
}

// RenderMarkdown renders markdown with Glamour wrapped at width. styled
// selects the auto (dark/light) style; otherwise the no-color style is used.
func RenderMarkdown(text string, width int, styled bool) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	width = max(width, minMarkdownWidth)

	style := glamour.WithStandardStyle("notty")
	if styled {
		style = glamour.WithAutoStyle()
	}
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return "", err
	}
	rendered, err := renderer.Render(text)
	if err != nil {
		return "", err
	}
	return strings.Trim(rendered, "\n"), nil
}
