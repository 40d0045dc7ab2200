package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mixer/clock"
	"github.com/stretchr/testify/require"

	"github.com/nhle/guest-services/internal/feed"
	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/realtime"
	"github.com/nhle/guest-services/internal/session"
	"github.com/nhle/guest-services/internal/source"
	"github.com/nhle/guest-services/internal/store"
	"github.com/nhle/guest-services/internal/watermark"
	"github.com/nhle/guest-services/tests/testutil"
)

var (
	T     = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	guest = model.Viewer{GuestID: "g1", RoomNumber: "204", Role: model.RoleGuest}
	stamp = func(ts time.Time) string { return ts.Format(time.RFC3339) }
)

type env struct {
	store *store.SQLiteStore
	hub   *realtime.Hub
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{store: testutil.NewTestStore(t), hub: realtime.NewHub()}
	e.store.SetNotifier(e.hub)
	return e
}

func (e *env) insert(t *testing.T, table string, row store.Row) store.Row {
	t.Helper()
	r, err := e.store.Insert(context.Background(), table, row)
	require.NoError(t, err)
	return r
}

func (e *env) session(t *testing.T, v model.Viewer, opts ...func(*session.Options)) *session.Session {
	t.Helper()
	o := session.Options{
		Viewer:        v,
		Backend:       e.store,
		KV:            watermark.NewMemoryKV(),
		Subscriber:    e.hub,
		RefreshPerSec: 1000,
	}
	for _, opt := range opts {
		opt(&o)
	}
	s, err := session.New(o)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func ids(f feed.Feed) []string {
	out := make([]string, len(f.Items))
	for i, it := range f.Items {
		out[i] = it.ID
	}
	return out
}

func TestFeedMergesSourcesNewestFirst(t *testing.T) {
	e := newEnv(t)
	e.insert(t, store.TableServiceRequests, store.Row{"id": "r1", "guest_id": "g1", "category": "housekeeping", "created_at": stamp(T)})
	e.insert(t, store.TableTableReservations, store.Row{"id": "v1", "guest_id": "g1", "restaurant_name": "The Terrace", "created_at": stamp(T.Add(5 * time.Second))})
	e.insert(t, store.TableServiceRequests, store.Row{"id": "other", "guest_id": "g2", "created_at": stamp(T)})

	s := e.session(t, guest)
	f, err := s.GetFeed(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"v1", "r1"}, ids(f))
	require.Empty(t, f.Failures)
	require.Equal(t, model.SectionDining, f.Items[0].SectionKey)
	require.Equal(t, "/dining/v1", f.Items[0].Link)
}

func TestUnreadCountsAndMarkSeen(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.insert(t, store.TableServiceRequests, store.Row{"id": "r1", "guest_id": "g1", "created_at": stamp(T)})
	e.insert(t, store.TableSpaBookings, store.Row{"id": "s1", "guest_id": "g1", "created_at": stamp(T)})
	e.insert(t, store.TableChatMessages, store.Row{"id": "c1", "guest_id": "g1", "sender_type": "staff", "content": "hi", "created_at": stamp(T)})

	s := e.session(t, guest)
	counts, err := s.GetUnreadCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, counts.Total)
	require.Equal(t, 1, counts.Sections[model.SectionSpa])
	require.Equal(t, 0, counts.Sections[model.SectionEvents])

	require.NoError(t, s.MarkSectionSeen(model.SectionSpa))
	counts, err = s.GetUnreadCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, counts.Total)
	require.Equal(t, 0, counts.Sections[model.SectionSpa])

	require.NoError(t, s.MarkAllSeen(ctx))
	counts, err = s.GetUnreadCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, counts.Total)
}

func TestWatermarksAreScopedPerViewer(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.insert(t, store.TableSpaBookings, store.Row{"id": "s1", "guest_id": "g1", "room_number": "204", "created_at": stamp(T)})

	kv := watermark.NewMemoryKV()
	shared := func(o *session.Options) { o.KV = kv }

	a := e.session(t, guest, shared)
	require.NoError(t, a.MarkAllSeen(ctx))

	b := e.session(t, model.Viewer{RoomNumber: "204"}, shared)
	counts, err := b.GetUnreadCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts.Total)
}

func TestCancelThroughSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.insert(t, store.TableServiceRequests, store.Row{"id": "r7", "guest_id": "g1", "status": "pending", "created_at": stamp(T)})

	s := e.session(t, guest)
	got, err := s.Cancel(ctx, model.ItemTypeRequest, "r7")
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, got.Status)

	f, err := s.GetFeed(ctx)
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, f.Items[0].Status)

	_, err = s.Cancel(ctx, model.ItemTypeRequest, "r7")
	require.True(t, source.IsCancelRejected(err))
}

func TestCancelRejectedByBackendRevertsToCurrentStatus(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.insert(t, store.TableEventReservations, store.Row{"id": "e1", "guest_id": "g1", "status": "confirmed", "created_at": stamp(T)})

	s := e.session(t, guest)
	f, err := s.GetFeed(ctx)
	require.NoError(t, err)
	require.Equal(t, "confirmed", f.Items[0].Status)

	// Completed behind the session's back; the cached feed is stale.
	n, err := e.store.Update(ctx, store.TableEventReservations, "e1", store.Row{"status": "completed"})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := s.Cancel(ctx, model.ItemTypeEventReservation, "e1")
	require.True(t, source.IsCancelRejected(err))
	require.Equal(t, "completed", got.Status)

	f, err = s.GetFeed(ctx)
	require.NoError(t, err)
	require.Equal(t, "completed", f.Items[0].Status)
}

func TestCancelUnknownItems(t *testing.T) {
	ctx := context.Background()
	s := newEnv(t).session(t, guest)

	_, err := s.Cancel(ctx, model.ItemType("minibar"), "m1")
	require.True(t, source.IsCancelRejected(err))

	_, err = s.Cancel(ctx, model.ItemTypeSpaBooking, "missing")
	require.True(t, source.IsCancelRejected(err))

	_, err = s.Cancel(ctx, model.ItemTypeChat, "c1")
	require.True(t, source.IsCancelRejected(err))
}

func TestPushUpdatesFeed(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s := e.session(t, guest, func(o *session.Options) {
		o.Clock = clock.NewMockClock()
	})

	updates := make(chan feed.Feed, 16)
	defer s.OnChange(func(f feed.Feed) { updates <- f })()

	require.NoError(t, s.Start(ctx))
	require.Eventually(t, func() bool {
		return s.PushStates()[store.TableChatMessages] == realtime.StateSubscribed
	}, 2*time.Second, 10*time.Millisecond)

	e.insert(t, store.TableChatMessages, store.Row{"id": "c9", "guest_id": "g1", "sender_type": "staff", "content": "Your room is ready", "created_at": stamp(T)})

	require.Eventually(t, func() bool {
		for {
			select {
			case f := <-updates:
				if len(f.Items) == 1 && f.Items[0].ID == "c9" {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPollingContinuesWhilePushIsDown(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.hub.SetOutage(errors.New("connection refused"))
	mock := clock.NewMockClock()
	s := e.session(t, guest, func(o *session.Options) {
		o.Clock = mock
		o.PollInterval = 5 * time.Second
	})

	updates := make(chan feed.Feed, 64)
	defer s.OnChange(func(f feed.Feed) { updates <- f })()
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool {
		return s.PushStates()[store.TableServiceRequests] == realtime.StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)

	e.insert(t, store.TableServiceRequests, store.Row{"id": "r1", "guest_id": "g1", "created_at": stamp(T)})

	require.Eventually(t, func() bool {
		mock.AddTime(5 * time.Second)
		for {
			select {
			case f := <-updates:
				if len(f.Items) == 1 {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStaffSessionGroupsRequestsByCategory(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.insert(t, store.TableServiceRequests, store.Row{"id": "r1", "room_number": "204", "category": "maintenance", "created_at": stamp(T)})
	e.insert(t, store.TableChatMessages, store.Row{"id": "c1", "room_number": "204", "sender_type": "guest", "content": "AC is broken", "created_at": stamp(T.Add(time.Second))})
	e.insert(t, store.TableChatMessages, store.Row{"id": "c2", "room_number": "204", "sender_type": "staff", "content": "On our way", "created_at": stamp(T.Add(2 * time.Second))})

	s := e.session(t, model.Viewer{RoomNumber: "204", Role: model.RoleStaff})
	f, err := s.GetFeed(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "r1"}, ids(f))
	require.Equal(t, "requests:maintenance", f.Items[1].SectionKey)

	counts, err := s.GetUnreadCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts.Sections["requests:maintenance"])
	require.NotContains(t, counts.Sections, model.SectionRequests)
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s := e.session(t, guest)

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx))
	require.Eventually(t, func() bool { return e.hub.Subscribers(store.TableSpaBookings) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	for _, table := range store.Tables() {
		require.Equal(t, 0, e.hub.Subscribers(table), table)
	}
	require.ErrorIs(t, s.Start(ctx), session.ErrClosed)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := session.New(session.Options{Viewer: model.Viewer{}, KV: watermark.NewMemoryKV()})
	require.ErrorIs(t, err, source.ErrEmptyScope)

	_, err = session.New(session.Options{Viewer: guest})
	require.Error(t, err)

	_, err = session.New(session.Options{Viewer: guest, KV: watermark.NewMemoryKV()})
	require.Error(t, err)
}

func TestSeededSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	rows, err := e.store.Seed(ctx, store.SeedOwner{GuestID: "g1", RoomNumber: "204"}, T)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	s := e.session(t, guest)
	f, err := s.GetFeed(ctx)
	require.NoError(t, err)
	require.Len(t, f.Items, 5)
	require.Equal(t, model.ItemTypeChat, f.Items[0].Type)
	require.Equal(t, model.ItemTypeRequest, f.Items[4].Type)
	require.Equal(t, "5", s.Badge(5))
	require.Equal(t, "9+", s.Badge(12))
}

func TestReadAfterCancelIsNotServedFromOlderFetch(t *testing.T) {
	ctx := context.Background()
	spa := testutil.NewFakeSource(model.ItemTypeSpaBooking, testutil.Rec("s1", model.StatusPending, T))
	s, err := session.New(session.Options{
		Viewer:  guest,
		KV:      watermark.NewMemoryKV(),
		Sources: []source.Source{spa},
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	_, err = s.GetFeed(ctx)
	require.NoError(t, err)

	spa.SetFetchLag(300 * time.Millisecond)
	spa.SetCancelDelay(100 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := s.Cancel(ctx, model.ItemTypeSpaBooking, "s1")
		done <- err
	}()
	// This refresh reads s1 before the cancel lands and answers after it.
	time.Sleep(20 * time.Millisecond)
	go func() { _, _ = s.Refresh(ctx) }()

	require.NoError(t, <-done)

	f, err := s.GetFeed(ctx)
	require.NoError(t, err)
	item, ok := f.Find(model.ItemKey{Type: model.ItemTypeSpaBooking, ID: "s1"})
	require.True(t, ok)
	require.Equal(t, model.StatusCancelled, item.Status)
}

func TestCloseReleasesWallClockTimers(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s, err := session.New(session.Options{
		Viewer:        guest,
		Backend:       e.store,
		KV:            watermark.NewMemoryKV(),
		Subscriber:    e.hub,
		PollInterval:  5 * time.Millisecond,
		RefreshPerSec: 1000,
	})
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx))
	require.Eventually(t, func() bool {
		return s.PushStates()[store.TableChatMessages] == realtime.StateSubscribed
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	require.Equal(t, 0, e.hub.Subscribers(store.TableChatMessages))
	require.Equal(t, realtime.StateClosed, s.PushStates()[store.TableChatMessages])
}
