package feedlist

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/guest-services/internal/feed"
	"github.com/nhle/guest-services/internal/keys"
	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/theme"
)

// SelectedItemMsg is sent when the user opens an item.
type SelectedItemMsg struct {
	Item model.NotificationItem
}

// State is everything the list renders: the feed, the watermark of each
// section and the keys of items with a cancel in flight.
type State struct {
	Feed    feed.Feed
	Marks   map[string]time.Time
	Pending map[model.ItemKey]bool
}

// Model is the feed list view.
type Model struct {
	list    list.Model
	keys    *keys.KeyMap
	state   State
	section string
	width   int
	height  int
}

// New creates a feed list model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// SetState replaces the rendered feed.
func (m *Model) SetState(s State) tea.Cmd {
	m.state = s
	if m.section != "" && !m.hasSection(m.section) {
		m.section = ""
	}
	return m.rebuild()
}

func (m Model) hasSection(section string) bool {
	for _, s := range m.state.Feed.Sections() {
		if s == section {
			return true
		}
	}
	return false
}

func (m *Model) rebuild() tea.Cmd {
	var items []list.Item
	for _, it := range m.state.Feed.Items {
		if m.section != "" && it.SectionKey != m.section {
			continue
		}
		items = append(items, Item{
			NotificationItem: it,
			Unread:           it.Time.After(m.state.Marks[it.SectionKey]),
			Pending:          m.state.Pending[it.Key()],
		})
	}
	return m.list.SetItems(items)
}

// Section returns the active section filter, "" for all sections.
func (m Model) Section() string {
	return m.section
}

// SetSection filters the list to section ("" shows everything).
func (m *Model) SetSection(section string) tea.Cmd {
	m.section = section
	return m.rebuild()
}

// NextSection cycles the filter through "" and every section in the feed.
func (m *Model) NextSection() tea.Cmd {
	sections := m.state.Feed.Sections()
	if len(sections) == 0 {
		return m.SetSection("")
	}
	next := sections[0]
	for i, s := range sections {
		if s == m.section {
			if i+1 < len(sections) {
				next = sections[i+1]
			} else {
				next = ""
			}
			break
		}
	}
	return m.SetSection(next)
}

// SelectedItem returns the focused item.
func (m Model) SelectedItem() (model.NotificationItem, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.NotificationItem{}, false
	}
	return it.NotificationItem, true
}

// Len returns the number of visible items.
func (m Model) Len() int {
	return len(m.list.Items())
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the feed list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Select):
			it, ok := m.SelectedItem()
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg { return SelectedItemMsg{Item: it} }

		case key.Matches(msg, m.keys.NextSection):
			return m, m.NextSection()

		case key.Matches(msg, m.keys.AllSections):
			return m, m.SetSection("")
		}
	}

	// Navigation keys go to the list.
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the list, or guidance when it is empty.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		style := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		if m.section != "" {
			return style.Render("Nothing in " + m.section + ".\nPress 0 to show every section.")
		}
		return style.Render("No notifications yet.")
	}
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
