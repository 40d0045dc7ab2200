package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/guest-services/internal/theme"
)

// Layout manages the terminal layout dimensions: a header, a row of
// section tabs, the content area and a status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	TabsHeight      int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		TabsHeight:      1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area.
func (l Layout) ContentHeight() int {
	h := l.Height - l.HeaderHeight - l.TabsHeight - l.StatusBarHeight
	if h < 0 {
		return 0
	}
	return h
}

// fill pads rendered to the full width with style's background.
func (l Layout) fill(style lipgloss.Style, parts ...string) string {
	used := 0
	for _, p := range parts {
		used += lipgloss.Width(p)
	}
	gap := l.Width - used
	if gap < 0 {
		gap = 0
	}

	filler := style.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(style.GetBackground()).
			Render(""),
	)
	if len(parts) == 1 {
		return lipgloss.JoinHorizontal(lipgloss.Top, parts[0], filler)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts[0], filler, strings.Join(parts[1:], ""))
}

// RenderHeader renders the top header bar with a title and the realtime
// status, right aligned.
func (l Layout) RenderHeader(title string, status string) string {
	titleRendered := theme.HeaderStyle.Render(title)
	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(status)
	return l.fill(theme.HeaderStyle, titleRendered, statusRendered)
}

// Tab is one section tab with its unread badge text.
type Tab struct {
	Section string
	Badge   string
}

// RenderTabs renders the section tabs, highlighting active. An empty
// active section highlights the leading "all" tab.
func (l Layout) RenderTabs(tabs []Tab, active string, allBadge string) string {
	render := func(label, badge string, selected bool) string {
		style := theme.TabStyle
		if selected {
			style = theme.ActiveTabStyle
		}
		out := style.Render(label)
		if badge != "" {
			out += theme.BadgeStyle.Render(badge)
		}
		return out
	}

	parts := []string{render("all", allBadge, active == "")}
	for _, t := range tabs {
		parts = append(parts, render(t.Section, t.Badge, t.Section == active))
	}
	return lipgloss.NewStyle().
		MaxWidth(l.Width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, parts...))
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	return l.fill(theme.StatusBarStyle, theme.StatusBarStyle.Render(hints))
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, tabs, content area, and status bar.
func (l Layout) RenderWithFrame(
	header string,
	tabs string,
	content string,
	statusBar string,
) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		tabs,
		content,
		statusBar,
	)
}
