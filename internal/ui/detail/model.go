package detail

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/guest-services/internal/keys"
	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/theme"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// CancelRequestMsg asks the parent to cancel the displayed item once the
// user has confirmed.
type CancelRequestMsg struct {
	Item model.NotificationItem
}

// Model is the item detail view component.
type Model struct {
	item       *model.NotificationItem
	viewport   viewport.Model
	keys       *keys.KeyMap
	width      int
	height     int
	confirming bool
	notice     string
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if m.confirming {
			m.confirming = false
			if key.Matches(msg, m.keys.Confirm) && m.item != nil {
				it := *m.item
				m.notice = "cancelling..."
				m.refresh()
				return m, func() tea.Msg { return CancelRequestMsg{Item: it} }
			}
			m.notice = ""
			m.refresh()
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg {
				return BackMsg{}
			}

		case key.Matches(msg, m.keys.Cancel):
			if m.item == nil {
				return m, nil
			}
			if !model.IsCancellable(m.item.Status) {
				m.notice = fmt.Sprintf("%s cannot be cancelled", m.item.Status)
			} else {
				m.confirming = true
				m.notice = "Cancel this " + strings.ReplaceAll(string(m.item.Type), "_", " ") + "? (y/n)"
			}
			m.refresh()
			return m, nil
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.item == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("No item selected")
	}

	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.item == nil {
		return ""
	}

	it := m.item
	var lines []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	lines = append(lines, titleStyle.Render(it.Title))

	sectionBadge := theme.SectionLabelStyle(it.SectionKey).Render(strings.ToUpper(it.SectionKey))
	statusBadge := theme.StatusStyle(it.Status).Render(it.Status)
	lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, sectionBadge, "  ", statusBadge))
	lines = append(lines, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) {
		lines = append(lines, fmt.Sprintf("%-10s %s", metaStyle.Render(label+":"), valStyle.Render(value)))
	}

	row("Type", string(it.Type))
	row("ID", it.ID)
	if !it.Time.IsZero() {
		row("Time", it.Time.Local().Format("2006-01-02 15:04"))
	}
	if it.Link != "" {
		row("Link", it.Link)
	}

	if it.Description != "" {
		lines = append(lines, "", it.Description)
	}

	if len(it.Data) > 0 {
		sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
		lines = append(lines, "", sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0))), "")

		// Map order is random; sort for a stable layout.
		names := make([]string, 0, len(it.Data))
		for k := range it.Data {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			if v := it.Data[k]; v != nil {
				row(k, fmt.Sprint(v))
			}
		}
	}

	if m.notice != "" {
		lines = append(lines, "", theme.ErrorStyle.Render(m.notice))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderContent())
}

// SetItem updates the item being displayed and re-renders the content.
func (m *Model) SetItem(it model.NotificationItem) {
	m.item = &it
	m.confirming = false
	m.notice = ""
	m.refresh()
	m.viewport.GotoTop()
}

// Item returns the displayed item.
func (m Model) Item() (model.NotificationItem, bool) {
	if m.item == nil {
		return model.NotificationItem{}, false
	}
	return *m.item, true
}

// Refresh replaces the displayed item with a newer version of the same item,
// keeping the scroll position.
func (m *Model) Refresh(it model.NotificationItem) {
	if m.item == nil || m.item.Key() != it.Key() {
		return
	}
	m.item = &it
	m.refresh()
}

// SetNotice shows a one-line message under the item, e.g. a cancel outcome.
func (m *Model) SetNotice(s string) {
	m.notice = s
	m.refresh()
}

// Confirming reports whether the view is waiting for a cancel confirmation.
func (m Model) Confirming() bool {
	return m.confirming
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
}
