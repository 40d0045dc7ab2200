package app

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/guest-services/internal/badge"
	"github.com/nhle/guest-services/internal/feed"
	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/ui/feedlist"
)

// requestTimeout bounds every session call made on behalf of a key press.
const requestTimeout = 15 * time.Second

// feedUpdatedMsg carries a feed published by the session.
type feedUpdatedMsg struct {
	feed feed.Feed
}

// feedLoadedMsg carries everything the list renders.
type feedLoadedMsg struct {
	state  feedlist.State
	counts badge.Counts
	err    error
}

type cancelResultMsg struct {
	item model.NotificationItem
	err  error
}

type seenResultMsg struct {
	notice string
	err    error
}

// waitForUpdate blocks until the session publishes a feed.
func (m Model) waitForUpdate() tea.Cmd {
	ch := m.updates
	return func() tea.Msg {
		f, ok := <-ch
		if !ok {
			return nil
		}
		return feedUpdatedMsg{feed: f}
	}
}

// loadFeed fetches the feed, refetching every source when refresh is set.
func (m Model) loadFeed(refresh bool) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		get := s.GetFeed
		if refresh {
			get = s.Refresh
		}
		f, err := get(ctx)
		if err != nil {
			return feedLoadedMsg{err: err}
		}
		return m.buildState(f)
	}
}

// snapshot builds list state for a feed that was already fetched.
func (m Model) snapshot(f feed.Feed) tea.Cmd {
	return func() tea.Msg {
		return m.buildState(f)
	}
}

func (m Model) buildState(f feed.Feed) feedLoadedMsg {
	s := m.session
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	counts, err := s.GetUnreadCounts(ctx)
	if err != nil {
		return feedLoadedMsg{err: err}
	}
	marks, err := s.Watermarks(counts.Sorted())
	if err != nil {
		return feedLoadedMsg{err: err}
	}
	pending := make(map[model.ItemKey]bool)
	for _, it := range f.Items {
		if s.Pending(it.Key()) {
			pending[it.Key()] = true
		}
	}
	return feedLoadedMsg{
		state:  feedlist.State{Feed: f, Marks: marks, Pending: pending},
		counts: counts,
	}
}

func (m Model) cancelItem(typ model.ItemType, id string) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		it, err := s.Cancel(ctx, typ, id)
		return cancelResultMsg{item: it, err: err}
	}
}

func (m Model) markSectionSeen(section string) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		if err := s.MarkSectionSeen(section); err != nil {
			return seenResultMsg{err: fmt.Errorf("marking %s seen: %w", section, err)}
		}
		return seenResultMsg{notice: section + " marked as seen"}
	}
}

func (m Model) markAllSeen() tea.Cmd {
	s := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if err := s.MarkAllSeen(ctx); err != nil {
			return seenResultMsg{err: fmt.Errorf("marking all seen: %w", err)}
		}
		return seenResultMsg{notice: "all sections marked as seen"}
	}
}
