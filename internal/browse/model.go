// Package browse is a terminal browser for the tip catalog. It renders the
// shared favorites State and re-renders on every State notification, so
// markers stay in step with changes made elsewhere in the session.
package browse

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/tipbox/internal/catalogclient"
	"github.com/marcus/tipbox/internal/favorites"
	"github.com/marcus/tipbox/internal/output"
	"github.com/marcus/tipbox/internal/version"
)

const (
	toastDuration = 3 * time.Second
	opTimeout     = 15 * time.Second
	pageSize      = 200
)

// TipSource lists catalog tips.
type TipSource interface {
	ListTips(ctx context.Context, q catalogclient.TipQuery) (*catalogclient.TipListResponse, error)
}

type tipsLoadedMsg struct {
	tips []catalogclient.TipResponse
	err  error
}

type snapshotMsg favorites.Snapshot

type toggleDoneMsg struct {
	id  string
	fav bool
	err error
}

type refreshDoneMsg struct{ err error }

type clearToastMsg struct{ seq int }

// Options configures a browser session.
type Options struct {
	Category string // only list this category when set
	Version  string // running version; enables the update check
}

// Model is the Bubble Tea model for the browser.
type Model struct {
	state    *favorites.State
	source   TipSource
	category string
	version  string
	updates  <-chan favorites.Snapshot

	tips    []catalogclient.TipResponse
	snap    favorites.Snapshot
	cursor  int
	offset  int
	favOnly bool
	loading bool
	loadErr error

	toast      string
	toastIsErr bool
	toastSeq   int
	update     string

	width, height int
	keys          keyMap
	help          help.Model
	spinner       spinner.Model
}

// New builds the model. updates delivers State snapshots; see Subscribe.
func New(state *favorites.State, source TipSource, opts Options, updates <-chan favorites.Snapshot) Model {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle))
	return Model{
		state:    state,
		source:   source,
		category: opts.Category,
		version:  opts.Version,
		updates:  updates,
		snap:     state.Snapshot(),
		loading:  true,
		keys:     defaultKeyMap(),
		help:     help.New(),
		spinner:  sp,
		width:    80,
		height:   24,
	}
}

// Subscribe registers a State subscriber that forwards snapshots to the
// returned channel. Only the newest undelivered snapshot is kept, so a slow
// UI never blocks a mutation.
func Subscribe(state *favorites.State) (<-chan favorites.Snapshot, func()) {
	ch := make(chan favorites.Snapshot, 1)
	unsubscribe := state.Subscribe(func(s favorites.Snapshot) {
		for {
			select {
			case ch <- s:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})
	return ch, unsubscribe
}

// Run starts the browser and blocks until the user quits.
func Run(ctx context.Context, state *favorites.State, source TipSource, opts Options) error {
	updates, unsubscribe := Subscribe(state)
	defer unsubscribe()

	p := tea.NewProgram(New(state, source, opts, updates), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadTips(), m.refresh(), m.waitForSnapshot(), m.spinner.Tick}
	if m.version != "" {
		cmds = append(cmds, version.CheckAsync(m.version))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.clampCursor()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tipsLoadedMsg:
		m.loading = false
		m.loadErr = msg.err
		if msg.err == nil {
			m.tips = msg.tips
		}
		m.clampCursor()
		return m, nil

	case snapshotMsg:
		// Snapshots arrive in version order; ignore stale ones all the same
		if msg.Version >= m.snap.Version {
			m.snap = favorites.Snapshot(msg)
			m.clampCursor()
		}
		return m, m.waitForSnapshot()

	case toggleDoneMsg:
		if msg.err != nil {
			return m.showToast(output.FavoriteErrorMessage(msg.err), true)
		}
		text := "Removed from favorites"
		if msg.fav {
			text = "Saved to favorites"
		}
		return m.showToast(text, false)

	case refreshDoneMsg:
		if msg.err != nil {
			return m.showToast(output.FavoriteErrorMessage(msg.err), true)
		}
		return m, nil

	case clearToastMsg:
		if msg.seq == m.toastSeq {
			m.toast = ""
		}
		return m, nil

	case version.UpdateAvailableMsg:
		m.update = msg.LatestVersion
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows := m.visibleTips()
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(rows)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Top):
		m.cursor = 0
	case key.Matches(msg, m.keys.Bottom):
		m.cursor = max(len(rows)-1, 0)
	case key.Matches(msg, m.keys.FavOnly):
		m.favOnly = !m.favOnly
		m.cursor, m.offset = 0, 0
	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		return m, tea.Batch(m.loadTips(), m.refresh())
	case key.Matches(msg, m.keys.Toggle):
		if m.cursor < len(rows) {
			return m, m.toggle(rows[m.cursor].ID)
		}
	}
	m.clampCursor()
	return m, nil
}

func (m Model) showToast(text string, isErr bool) (tea.Model, tea.Cmd) {
	m.toastSeq++
	m.toast, m.toastIsErr = text, isErr
	seq := m.toastSeq
	return m, tea.Tick(toastDuration, func(time.Time) tea.Msg { return clearToastMsg{seq: seq} })
}

// visibleTips is the catalog, or only favorites when filtering.
func (m Model) visibleTips() []catalogclient.TipResponse {
	if !m.favOnly {
		return m.tips
	}
	out := make([]catalogclient.TipResponse, 0, m.snap.Count())
	for _, t := range m.tips {
		if m.snap.Has(t.ID) {
			out = append(out, t)
		}
	}
	return out
}

func (m *Model) clampCursor() {
	n := len(m.visibleTips())
	m.cursor = max(min(m.cursor, n-1), 0)

	height := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+height {
		m.offset = m.cursor - height + 1
	}
	m.offset = max(m.offset, 0)
}

func (m Model) loadTips() tea.Cmd {
	source, category := m.source, m.category
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		resp, err := source.ListTips(ctx, catalogclient.TipQuery{Category: category, Limit: pageSize})
		if err != nil {
			return tipsLoadedMsg{err: err}
		}
		return tipsLoadedMsg{tips: resp.Tips}
	}
}

func (m Model) refresh() tea.Cmd {
	state := m.state
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return refreshDoneMsg{err: state.Refresh(ctx)}
	}
}

func (m Model) toggle(id string) tea.Cmd {
	state := m.state
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		fav, err := state.Toggle(ctx, id)
		return toggleDoneMsg{id: id, fav: fav, err: err}
	}
}

func (m Model) waitForSnapshot() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	updates := m.updates
	return func() tea.Msg {
		s, ok := <-updates
		if !ok {
			return nil
		}
		return snapshotMsg(s)
	}
}
