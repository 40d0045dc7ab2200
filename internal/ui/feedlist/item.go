package feedlist

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/theme"
)

// Item wraps a NotificationItem so it can be used in a bubbles/list.
type Item struct {
	model.NotificationItem
	Unread  bool
	Pending bool
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Title }

// ItemDelegate implements list.ItemDelegate for rendering feed items.
type ItemDelegate struct {
	// Now is the reference time for relative timestamps.
	Now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single feed line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	now := time.Now()
	if d.Now != nil {
		now = d.Now()
	}
	fmt.Fprint(w, renderLine(it, index == m.Index(), now))
}

func renderLine(it Item, selected bool, now time.Time) string {
	marker := " "
	if it.Unread {
		marker = lipgloss.NewStyle().Foreground(theme.ColorRed).Render("●")
	}

	section := theme.SectionLabelStyle(it.SectionKey).Render(it.SectionKey)

	status := it.Status
	if it.Pending {
		status += "…"
	}
	statusBadge := theme.StatusStyle(it.Status).Render(status)

	when := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(it.Time, now))

	line := fmt.Sprintf("%s %s %s %s  %s",
		marker, section, statusBadge, it.Title, when)
	if it.Description != "" {
		line += theme.DimmedStyle.Render("  " + it.Description)
	}

	if model.IsTerminal(it.Status) {
		line = theme.DimmedStyle.Render(line)
	}
	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

// relativeTime returns a human-friendly time relative to now.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < 0:
		return t.Format("Jan 02 15:04")
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}
