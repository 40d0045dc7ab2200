package app

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/guest-services/internal/badge"
	"github.com/nhle/guest-services/internal/feed"
	"github.com/nhle/guest-services/internal/keys"
	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/realtime"
	"github.com/nhle/guest-services/internal/session"
	"github.com/nhle/guest-services/internal/theme"
	"github.com/nhle/guest-services/internal/ui"
	"github.com/nhle/guest-services/internal/ui/command"
	"github.com/nhle/guest-services/internal/ui/detail"
	"github.com/nhle/guest-services/internal/ui/feedlist"
	helpview "github.com/nhle/guest-services/internal/ui/help"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewHelp
	ViewCommand
)

// Model is the root Bubble Tea model that manages view routing,
// layout, and access to the viewer's session.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	session      *session.Session
	keys         *keys.KeyMap
	feedList     feedlist.Model
	detail       detail.Model
	helpView     helpview.Model
	commandView  command.Model
	updates      chan feed.Feed
	unsubscribe  func()
	counts       badge.Counts
	failures     []string
	message      string
	ready        bool
}

// New creates a root application model over s. Feeds published by the
// session are delivered to the UI as they arrive.
func New(s *session.Session) Model {
	k := keys.DefaultKeyMap()
	updates := make(chan feed.Feed, 1)

	unsubscribe := s.OnChange(func(f feed.Feed) {
		// Keep only the newest feed when the UI falls behind.
		for {
			select {
			case updates <- f:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})

	return Model{
		currentView: ViewList,
		session:     s,
		keys:        k,
		feedList:    feedlist.New(k, 80, 24),
		detail:      detail.New(k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
		updates:     updates,
		unsubscribe: unsubscribe,
	}
}

// Init loads the feed and starts listening for pushed updates.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadFeed(false),
		m.waitForUpdate(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.feedList.SetSize(contentWidth, contentHeight)
		m.detail.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.commandView.SetSize(contentWidth, contentHeight)
		return m, nil

	case feedUpdatedMsg:
		return m, tea.Batch(m.snapshot(msg.feed), m.waitForUpdate())

	case feedLoadedMsg:
		if msg.err != nil {
			m.message = msg.err.Error()
			return m, nil
		}
		m.counts = msg.counts
		m.failures = failedTypes(msg.state.Feed)
		if it, ok := m.detail.Item(); ok {
			if fresh, found := msg.state.Feed.Find(it.Key()); found {
				m.detail.Refresh(fresh)
			}
		}
		return m, m.feedList.SetState(msg.state)

	case feedlist.SelectedItemMsg:
		m.previousView = m.currentView
		m.currentView = ViewDetail
		m.detail.SetItem(msg.Item)
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewList
		return m, nil

	case detail.CancelRequestMsg:
		return m, m.cancelItem(msg.Item.Type, msg.Item.ID)

	case cancelResultMsg:
		m.message = describeCancel(msg.item, msg.err)
		if m.currentView == ViewDetail {
			m.detail.SetNotice(m.message)
		}
		return m, m.loadFeed(false)

	case seenResultMsg:
		if msg.err != nil {
			m.message = msg.err.Error()
		} else {
			m.message = msg.notice
		}
		return m, m.loadFeed(false)

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.execute(msg.Command)

	case tea.KeyMsg:
		// Global keys that work regardless of current view
		switch msg.String() {
		case "ctrl+c":
			return m, m.quit()

		case "q":
			if m.currentView == ViewList {
				return m, m.quit()
			}

		case "?":
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			if m.currentView != ViewCommand {
				m.previousView = m.currentView
				m.currentView = ViewHelp
				return m, nil
			}

		case ":":
			if m.currentView == ViewCommand {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewCommand
			return m, m.commandView.Focus()

		case "esc":
			if m.currentView == ViewHelp || m.currentView == ViewCommand {
				m.currentView = m.previousView
				return m, nil
			}
		}

		if m.currentView == ViewList {
			switch {
			case key.Matches(msg, m.keys.Refresh):
				m.message = "refreshing..."
				return m, m.loadFeed(true)

			case key.Matches(msg, m.keys.MarkSeen):
				section := m.feedList.Section()
				if section == "" {
					it, ok := m.feedList.SelectedItem()
					if !ok {
						return m, nil
					}
					section = it.SectionKey
				}
				return m, m.markSectionSeen(section)

			case key.Matches(msg, m.keys.MarkAllSeen):
				return m, m.markAllSeen()

			case key.Matches(msg, m.keys.Cancel):
				it, ok := m.feedList.SelectedItem()
				if !ok {
					return m, nil
				}
				m.previousView = m.currentView
				m.currentView = ViewDetail
				m.detail.SetItem(it)
				return m.updateActiveView(msg)
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.feedList, cmd = m.feedList.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "Guest Services · " + m.session.Viewer().ID()
	if m.counts.Total > 0 {
		title = fmt.Sprintf("%s [%s new]", title, m.session.Badge(m.counts.Total))
	}
	header := m.layout.RenderHeader(title, m.syncStatus())
	tabs := m.layout.RenderTabs(m.tabs(), m.feedList.Section(), m.session.Badge(m.counts.Total))
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, tabs, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.feedList.View()
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

func (m Model) tabs() []ui.Tab {
	sections := m.counts.Sorted()
	out := make([]ui.Tab, 0, len(sections))
	for _, s := range sections {
		out = append(out, ui.Tab{Section: s, Badge: m.session.Badge(m.counts.Sections[s])})
	}
	return out
}

// syncStatus summarizes push health and unreachable sources.
func (m Model) syncStatus() string {
	state := pushSummary(m.session.PushStates())
	status := theme.PushStateStyle(state).Render(state)
	if len(m.failures) > 0 {
		status += theme.ErrorStyle.Render(" ⚠ unreachable: " + strings.Join(m.failures, ", "))
	}
	return status
}

// pushSummary folds the per-topic states into one word. Any topic without a
// live subscription means some changes only arrive by polling.
func pushSummary(states map[string]realtime.State) string {
	if len(states) == 0 {
		return "polling"
	}
	summary := realtime.StateSubscribed
	for _, s := range states {
		switch s {
		case realtime.StateDisconnected, realtime.StateClosed:
			return realtime.StateDisconnected.String()
		case realtime.StateConnecting:
			summary = realtime.StateConnecting
		}
	}
	return summary.String()
}

func failedTypes(f feed.Feed) []string {
	out := make([]string, 0, len(f.Failures))
	for typ := range f.Failures {
		out = append(out, string(typ))
	}
	sort.Strings(out)
	return out
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return ": close command | enter execute | esc back"
	case ViewDetail:
		if m.detail.Confirming() {
			return "y confirm | any other key aborts"
		}
		return "esc back | x cancel | j/k scroll"
	default:
		if m.message != "" {
			return m.message
		}
		return "q quit | ? help | tab section | 0 all | s seen | S all seen | x cancel | r refresh"
	}
}

// quit detaches from the session and exits the program. The caller owns
// the session and closes it after the program returns.
func (m Model) quit() tea.Cmd {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return tea.Quit
}

// executeCommand parses and runs a command string.
func (m *Model) executeCommand(input string) tea.Cmd {
	cmd, err := command.Parse(input)
	if err != nil {
		m.message = err.Error()
		return nil
	}
	return m.execute(cmd)
}

// execute runs a command from the command palette.
func (m *Model) execute(cmd command.Command) tea.Cmd {
	switch cmd.Verb {
	case command.VerbRefresh:
		return m.loadFeed(true)
	case command.VerbQuit:
		return m.quit()
	case command.VerbSeen:
		if cmd.Section == "" {
			return m.markAllSeen()
		}
		return m.markSectionSeen(cmd.Section)
	case command.VerbSection:
		m.currentView = ViewList
		return m.feedList.SetSection(cmd.Section)
	case command.VerbCancel:
		return m.cancelItem(cmd.Type, cmd.ID)
	}
	return nil
}

// describeCancel renders the outcome of a cancel for the status bar.
func describeCancel(it model.NotificationItem, err error) string {
	if err == nil {
		return fmt.Sprintf("%s cancelled", it.Key())
	}
	return err.Error()
}
