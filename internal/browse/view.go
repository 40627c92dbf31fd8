package browse

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/tipbox/internal/favorites"
	"github.com/marcus/tipbox/internal/output"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("237")).Bold(true)
	markerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	toastStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	toastErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	spinnerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
)

// chrome is the number of lines taken by header, status and help.
const chrome = 4

func (m Model) listHeight() int {
	h := m.height - chrome
	if m.help.ShowAll {
		h -= 3
	}
	return max(h, 1)
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	switch {
	case m.loading && len(m.tips) == 0:
		b.WriteString(m.spinner.View() + " Loading tips...")
		b.WriteString("\n")
	case m.loadErr != nil && len(m.tips) == 0:
		b.WriteString(toastErrStyle.Render("Could not load tips: " + m.loadErr.Error()))
		b.WriteString("\n")
	default:
		b.WriteString(m.renderList())
	}

	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderHeader() string {
	title := "tipbox"
	if m.category != "" {
		title += " / " + m.category
	}
	if m.favOnly {
		title += " / favorites"
	}
	count := output.FormatCount(m.snap.Count(), m.state.Limit())
	if m.snap.Mode == favorites.Authenticated {
		count = output.FormatCount(m.snap.Count(), 0)
	}
	right := dimStyle.Render(count + "  " + m.snap.Mode.String())
	if m.update != "" {
		right = toastStyle.Render(m.update+" available") + "  " + right
	}
	if m.snap.Loading || m.snap.Pending > 0 {
		right = m.spinner.View() + " " + right
	}

	left := headerStyle.Render(title)
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) renderList() string {
	rows := m.visibleTips()
	if len(rows) == 0 {
		if m.favOnly {
			return dimStyle.Render("No favorites yet. Press f on a tip to save it.") + "\n"
		}
		return dimStyle.Render("No tips.") + "\n"
	}

	var b strings.Builder
	end := min(m.offset+m.listHeight(), len(rows))
	for i := m.offset; i < end; i++ {
		t := rows[i]
		marker := output.MarkerNotFavorite
		if m.snap.Has(t.ID) {
			marker = markerStyle.Render(output.MarkerFavorite)
		}
		line := fmt.Sprintf("%s %s %s", marker, t.Title, dimStyle.Render("["+t.Category+"]"))
		line = ansi.Truncate(line, max(m.width-2, 10), "…")
		if i == m.cursor {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderStatus() string {
	if m.toast != "" {
		if m.toastIsErr {
			return toastErrStyle.Render(m.toast)
		}
		return toastStyle.Render(m.toast)
	}
	if rows := m.visibleTips(); len(rows) > 0 {
		return dimStyle.Render(fmt.Sprintf("%d/%d", m.cursor+1, len(rows)))
	}
	return ""
}
