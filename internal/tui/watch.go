package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/campusconnect/internal/navigation"
	"github.com/felixgeelhaar/campusconnect/internal/session"
)

// maxRedirectLog is how many redirects the watch view remembers.
const maxRedirectLog = 6

// StateMsg carries a committed session state.
type StateMsg struct {
	State session.State
}

// RedirectMsg carries a redirect issued by the guard.
type RedirectMsg struct {
	To navigation.Screen
}

// LogoutDoneMsg reports the result of a logout started from the view.
type LogoutDoneMsg struct {
	Err error
}

type watchKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Navigate key.Binding
	Logout   key.Binding
	Quit     key.Binding
}

var watchKeys = watchKeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Navigate: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "go to screen"),
	),
	Logout: key.NewBinding(
		key.WithKeys("L"),
		key.WithHelp("L", "log out"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// WatchModel shows the live session state, the current screen and the
// guard's decision. Moving between screens goes through the guard.
type WatchModel struct {
	guard  *navigation.Guard
	events *Events
	logout func(context.Context) error

	state     session.State
	screens   []navigation.Screen
	cursor    int
	redirects []navigation.Screen
	lastError string

	width    int
	height   int
	quitting bool

	keys   watchKeyMap
	styles Styles
}

// NewWatchModel creates a watch view. logout may be nil to disable the key.
func NewWatchModel(guard *navigation.Guard, events *Events, logout func(context.Context) error) WatchModel {
	screens := append([]navigation.Screen(nil), navigation.Screens...)
	m := WatchModel{
		guard:   guard,
		events:  events,
		logout:  logout,
		state:   session.State{Resolving: true},
		screens: screens,
		keys:    watchKeys,
		styles:  DefaultStyles(),
	}
	for i, s := range screens {
		if s == guard.Current() {
			m.cursor = i
		}
	}
	return m
}

func (m WatchModel) waitForState() tea.Cmd {
	return func() tea.Msg { return StateMsg{State: <-m.events.states} }
}

func (m WatchModel) waitForRedirect() tea.Cmd {
	return func() tea.Msg { return RedirectMsg{To: <-m.events.redirects} }
}

// Init starts listening for session events.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.waitForState(), m.waitForRedirect())
}

// Update handles messages and updates the model state.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case StateMsg:
		m.state = msg.State
		return m, m.waitForState()

	case RedirectMsg:
		m.redirects = append(m.redirects, msg.To)
		if len(m.redirects) > maxRedirectLog {
			m.redirects = m.redirects[len(m.redirects)-maxRedirectLog:]
		}
		m.guard.Navigate(msg.To)
		return m, m.waitForRedirect()

	case LogoutDoneMsg:
		m.lastError = ""
		if msg.Err != nil {
			m.lastError = msg.Err.Error()
		}
		return m, nil
	}

	return m, nil
}

func (m WatchModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.screens)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Navigate):
		m.guard.Navigate(m.screens[m.cursor])

	case key.Matches(msg, m.keys.Logout):
		if m.logout == nil || !m.state.Authenticated() {
			return m, nil
		}
		logout := m.logout
		return m, func() tea.Msg {
			return LogoutDoneMsg{Err: logout(context.Background())}
		}
	}
	return m, nil
}

// State returns the last state the view received.
func (m WatchModel) State() session.State {
	return m.state
}
