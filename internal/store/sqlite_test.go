package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/guest-services/internal/store"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []store.Change
}

func (r *recordingNotifier) NotifyChange(_ context.Context, c store.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestInsertAndSelectScoped(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Insert(ctx, store.TableServiceRequests, store.Row{
		"id": "r1", "guest_id": "g1", "room_number": "101",
		"category": "housekeeping", "created_at": "2024-05-01T10:00:00Z",
	})
	require.NoError(t, err)
	_, err = s.Insert(ctx, store.TableServiceRequests, store.Row{
		"id": "r2", "guest_id": "g2", "room_number": "202",
		"created_at": "2024-05-01T11:00:00Z",
	})
	require.NoError(t, err)

	rows, err := s.Select(ctx, store.TableServiceRequests, store.Eq(store.ColumnGuestID, "g1"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "r1", rows[0].String("id"))
	require.Equal(t, "pending", rows[0].String("status"))
	require.Equal(t, "housekeeping", rows[0].String("category"))

	rows, err = s.Select(ctx, store.TableServiceRequests, store.Eq(store.ColumnGuestID, "nobody"))
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestSelectOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, r := range []store.Row{
		{"id": "a", "room_number": "101", "created_at": "2024-05-01T09:00:00Z"},
		{"id": "b", "room_number": "101", "created_at": "2024-05-01T12:00:00Z"},
	} {
		_, err := s.Insert(ctx, store.TableChatMessages, r)
		require.NoError(t, err)
	}

	rows, err := s.Select(ctx, store.TableChatMessages, store.Eq(store.ColumnRoomNumber, "101"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "b", rows[0].String("id"))
}

func TestConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Insert(ctx, store.TableSpaBookings, store.Row{
		"id": "s1", "guest_id": "g1", "service_name": "Massage",
	})
	require.NoError(t, err)

	n, err := s.Update(ctx, store.TableSpaBookings, "s1",
		store.Row{"status": "cancelled"},
		store.Eq(store.ColumnGuestID, "g1"),
		store.In(store.ColumnStatus, "pending", "confirmed"),
	)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	// Already terminal: the guard no longer matches.
	n, err = s.Update(ctx, store.TableSpaBookings, "s1",
		store.Row{"status": "cancelled"},
		store.Eq(store.ColumnGuestID, "g1"),
		store.In(store.ColumnStatus, "pending", "confirmed"),
	)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	// Not owned.
	n, err = s.Update(ctx, store.TableSpaBookings, "s1",
		store.Row{"status": "confirmed"},
		store.Eq(store.ColumnGuestID, "g2"),
	)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}

func TestUnknownTableAndColumn(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Select(ctx, "users")
	require.ErrorIs(t, err, store.ErrUnknownTable)

	_, err = s.Select(ctx, store.TableChatMessages, store.Eq("password", "x"))
	require.ErrorIs(t, err, store.ErrUnknownTable)

	_, err = s.Update(ctx, store.TableChatMessages, "m1", store.Row{"nope": 1})
	require.ErrorIs(t, err, store.ErrUnknownTable)
}

func TestNotifierReceivesWrites(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	rec := &recordingNotifier{}
	s.SetNotifier(rec)

	_, err := s.Insert(ctx, store.TableEventReservations, store.Row{
		"id": "e1", "guest_id": "g1", "event_title": "Gala",
	})
	require.NoError(t, err)
	_, err = s.Update(ctx, store.TableEventReservations, "e1", store.Row{"status": "confirmed"})
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.changes, 2)
	require.Equal(t, store.ChangeInsert, rec.changes[0].Kind)
	require.Equal(t, store.ChangeUpdate, rec.changes[1].Kind)
	require.Equal(t, "confirmed", rec.changes[1].Row.String("status"))
	require.Equal(t, store.TableEventReservations, rec.changes[1].Table)
}

func TestEmptyInMatchesNothing(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.Insert(ctx, store.TableServiceRequests, store.Row{"id": "r1", "guest_id": "g1"})
	require.NoError(t, err)

	rows, err := s.Select(ctx, store.TableServiceRequests, store.In(store.ColumnStatus))
	require.NoError(t, err)
	require.Empty(t, rows)
}
