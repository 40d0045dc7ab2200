package app

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/realtime"
	"github.com/nhle/guest-services/internal/session"
	"github.com/nhle/guest-services/internal/store"
	"github.com/nhle/guest-services/internal/ui/detail"
	"github.com/nhle/guest-services/internal/watermark"
	"github.com/nhle/guest-services/tests/testutil"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newModel(t *testing.T) Model {
	t.Helper()
	ctx := context.Background()

	st := testutil.NewTestStore(t)
	rows := []struct {
		table string
		row   store.Row
	}{
		{store.TableServiceRequests, store.Row{"id": "r1", "guest_id": "g1", "category": "housekeeping", "status": "pending", "created_at": t0.Format(time.RFC3339)}},
		{store.TableSpaBookings, store.Row{"id": "s1", "guest_id": "g1", "service_name": "Massage", "status": "completed", "created_at": t0.Add(time.Minute).Format(time.RFC3339)}},
	}
	for _, r := range rows {
		_, err := st.Insert(ctx, r.table, r.row)
		require.NoError(t, err)
	}

	s, err := session.New(session.Options{
		Viewer:  model.Viewer{GuestID: "g1", Role: model.RoleGuest},
		Backend: st,
		KV:      watermark.NewMemoryKV(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	m := New(s)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return next.(Model)
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	return next.(Model)
}

func TestLoadFeedShowsCountsAndItems(t *testing.T) {
	m := newModel(t)
	m = run(t, m, m.loadFeed(false))

	require.Equal(t, 2, m.counts.Total)
	require.Equal(t, 2, m.feedList.Len())

	view := m.View()
	require.Contains(t, view, "guest:g1 [2 new]")
	require.Contains(t, view, "Massage")
}

func TestMarkAllSeenClearsCounts(t *testing.T) {
	m := newModel(t)
	m = run(t, m, m.loadFeed(false))

	m = run(t, m, m.executeCommand("seen all"))
	require.Equal(t, "all sections marked as seen", m.message)

	m = run(t, m, m.loadFeed(false))
	require.Zero(t, m.counts.Total)
}

func TestMarkSectionSeenFromList(t *testing.T) {
	m := newModel(t)
	m = run(t, m, m.loadFeed(false))

	m = run(t, m, m.markSectionSeen(model.SectionSpa))
	m = run(t, m, m.loadFeed(false))
	require.Equal(t, 1, m.counts.Total)
	require.Zero(t, m.counts.Sections[model.SectionSpa])
}

func TestCancelFromDetail(t *testing.T) {
	m := newModel(t)
	m = run(t, m, m.loadFeed(false))

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	require.Equal(t, model.SectionRequests, m.feedList.Section())

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	m = next.(Model)
	require.Equal(t, ViewDetail, m.currentView)
	require.True(t, m.detail.Confirming())

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	m = next.(Model)
	require.NotNil(t, cmd)
	req := cmd()
	require.IsType(t, detail.CancelRequestMsg{}, req)

	next, cmd = m.Update(req)
	m = next.(Model)
	m = run(t, m, cmd)
	require.Equal(t, "request/r1 cancelled", m.message)
}

func TestCancelRejectedShowsReason(t *testing.T) {
	m := newModel(t)
	m = run(t, m, m.loadFeed(false))

	m = run(t, m, m.executeCommand("cancel spa_booking s1"))
	require.Contains(t, m.message, "not cancellable")
}

func TestUnknownCommand(t *testing.T) {
	m := newModel(t)
	require.Nil(t, m.executeCommand("launch rockets"))
	require.Contains(t, m.message, "unknown command")
}

func TestPushSummary(t *testing.T) {
	require.Equal(t, "polling", pushSummary(nil))
	require.Equal(t, "subscribed", pushSummary(map[string]realtime.State{
		"a": realtime.StateSubscribed, "b": realtime.StateSubscribed,
	}))
	require.Equal(t, "connecting", pushSummary(map[string]realtime.State{
		"a": realtime.StateSubscribed, "b": realtime.StateConnecting,
	}))
	require.Equal(t, "disconnected", pushSummary(map[string]realtime.State{
		"a": realtime.StateDisconnected, "b": realtime.StateConnecting,
	}))
}
