package detail

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/nhle/guest-services/internal/keys"
	"github.com/nhle/guest-services/internal/model"
)

func spaItem(status string) model.NotificationItem {
	return model.NotificationItem{
		ID:         "s1",
		Type:       model.ItemTypeSpaBooking,
		Title:      "Spa Booking",
		Status:     status,
		SectionKey: "spa",
		Time:       time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Data:       map[string]any{"service_name": "Massage", "therapist": nil},
	}
}

func press(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestCancelNeedsConfirmation(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)
	m.SetItem(spaItem(model.StatusPending))

	m, cmd := m.Update(press("x"))
	require.Nil(t, cmd)
	require.True(t, m.Confirming())

	m, cmd = m.Update(press("y"))
	require.False(t, m.Confirming())
	require.NotNil(t, cmd)
	msg, ok := cmd().(CancelRequestMsg)
	require.True(t, ok)
	require.Equal(t, "s1", msg.Item.ID)
}

func TestCancelDeclined(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)
	m.SetItem(spaItem(model.StatusPending))

	m, _ = m.Update(press("x"))
	m, cmd := m.Update(press("n"))
	require.Nil(t, cmd)
	require.False(t, m.Confirming())
}

func TestCancelTerminalItemIsRefused(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)
	m.SetItem(spaItem(model.StatusCompleted))

	m, cmd := m.Update(press("x"))
	require.Nil(t, cmd)
	require.False(t, m.Confirming())
	require.Contains(t, m.View(), "completed cannot be cancelled")
}

func TestRefreshOnlyAppliesToSameItem(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)
	m.SetItem(spaItem(model.StatusPending))

	other := spaItem(model.StatusCancelled)
	other.ID = "s2"
	m.Refresh(other)
	it, _ := m.Item()
	require.Equal(t, model.StatusPending, it.Status)

	m.Refresh(spaItem(model.StatusCancelled))
	it, _ = m.Item()
	require.Equal(t, model.StatusCancelled, it.Status)
	require.Contains(t, m.View(), "Massage")
}

func TestBack(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	require.IsType(t, BackMsg{}, cmd())
}
