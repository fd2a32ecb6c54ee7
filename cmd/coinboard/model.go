package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"coinboard/internal/board"
	"coinboard/internal/domain"
	"coinboard/internal/prefs"
)

// Messages.
type tickMsg time.Time
type prefsMsg prefs.Event

// Model.
type model struct {
	board   *board.Board
	events  <-chan prefs.Event
	refresh time.Duration
	cancel  context.CancelFunc
	logger  *slog.Logger

	viewport      viewport.Model
	ready         bool
	width, height int
	now           time.Time
}

func initialModel(b *board.Board, events <-chan prefs.Event, refresh time.Duration, cancel context.CancelFunc, logger *slog.Logger) model {
	return model{
		board:   b,
		events:  events,
		refresh: refresh,
		cancel:  cancel,
		logger:  logger,
		now:     time.Now(),
	}
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitPrefs blocks until the preference store reports a change.
func waitPrefs(ch <-chan prefs.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return prefsMsg(e)
	}
}

// runJobs turns board jobs into commands; each one reports back as a
// board.Result message.
func runJobs(jobs []board.Job) tea.Cmd {
	if len(jobs) == 0 {
		return nil
	}
	cmds := make([]tea.Cmd, 0, len(jobs))
	for _, j := range jobs {
		if j == nil {
			continue
		}
		cmds = append(cmds, func() tea.Msg { return j() })
	}
	return tea.Batch(cmds...)
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		runJobs(m.board.Init()),
		waitPrefs(m.events),
		tickCmd(m.refresh),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		jobs, handled, quit := m.handleKey(msg.String())
		if quit {
			m.cancel()
			return m, tea.Quit
		}
		if !handled {
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		m.redraw()
		return m, runJobs(jobs)

	case tea.MouseMsg:
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - 2
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.redraw()
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		jobs := []board.Job{m.board.RefreshMarkets(false), m.board.CheckPing()}
		m.redraw()
		return m, tea.Batch(runJobs(jobs), tickCmd(m.refresh))

	case prefsMsg:
		jobs := m.board.HandlePrefsEvent(prefs.Event(msg))
		m.redraw()
		return m, tea.Batch(runJobs(jobs), waitPrefs(m.events))

	case board.Result:
		jobs := m.board.Apply(msg)
		m.redraw()
		return m, runJobs(jobs)
	}

	return m, nil
}

// handleKey maps a key press onto a board operation. handled is false for
// keys the viewport should see instead.
func (m *model) handleKey(key string) (jobs []board.Job, handled, quit bool) {
	b := m.board
	switch key {
	case "q", "ctrl+c":
		return nil, true, true
	case "up", "k":
		jobs = b.MoveSelection(-1)
		m.ensureVisible()
	case "down", "j":
		jobs = b.MoveSelection(1)
		m.ensureVisible()
	case " ":
		jobs = b.ToggleWatch(b.EffectiveSelection())
	case "p":
		jobs = b.TogglePin(b.EffectiveSelection())
	case "w":
		jobs = b.ShowWatchlist()
	case "h", "home":
		jobs = b.ShowHome()
	case "1":
		jobs = b.SetDays(domain.Range1D)
	case "7":
		jobs = b.SetDays(domain.Range7D)
	case "3":
		jobs = b.SetDays(domain.Range30D)
	case "n":
		b.MoreNews()
	case "N":
		b.LessNews()
	case "l":
		if !b.Authenticated() {
			jobs = []board.Job{b.Login()}
		}
	case "L":
		if b.Authenticated() {
			jobs = b.Logout()
		}
	case "c":
		if b.CanClear() {
			jobs = b.ClearWatchlist()
		}
	case "s":
		jobs = []board.Job{b.SyncWatchlist()}
	case "r":
		jobs = []board.Job{b.RefreshMarkets(true), b.LoadChart(true), b.LoadNews(true)}
	case "g":
		jobs = []board.Job{b.CheckPing()}
	default:
		return nil, false, false
	}
	return jobs, true, false
}

func (m *model) redraw() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderContent())
}

// ensureVisible scrolls the viewport so the selected market row is on screen.
func (m *model) ensureVisible() {
	if !m.ready {
		return
	}
	line := m.selectedLine()
	if line < 0 {
		return
	}
	yOff := m.viewport.YOffset
	vpH := m.viewport.Height
	if line < yOff {
		m.viewport.SetYOffset(line)
	} else if line >= yOff+vpH {
		m.viewport.SetYOffset(line - vpH + 1)
	}
}

// selectedLine returns the content line of the selected market row, or -1.
func (m *model) selectedLine() int {
	sel := m.board.EffectiveSelection()
	for i, c := range m.board.Visible() {
		if c.ID == sel {
			return marketsHeaderLines + i
		}
	}
	return -1
}
