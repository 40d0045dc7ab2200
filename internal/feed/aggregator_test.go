package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mixer/clock"
	"github.com/stretchr/testify/require"

	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/source"
	"github.com/nhle/guest-services/tests/testutil"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func ids(items []model.NotificationItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func newAggregator(t *testing.T, opts []Option, sources ...source.Source) *Aggregator {
	t.Helper()
	reg, err := source.NewRegistry(sources...)
	require.NoError(t, err)
	return New(reg, source.Scope{GuestID: "g1"}, opts...)
}

func TestAggregateSortsByTimeDescending(t *testing.T) {
	requests := testutil.NewFakeSource(model.ItemTypeRequest, testutil.Rec("r1", "pending", t0))
	reservations := testutil.NewFakeSource(model.ItemTypeReservation, testutil.Rec("v1", "confirmed", t0.Add(5*time.Second)))

	f := newAggregator(t, nil, requests, reservations).Aggregate(context.Background())
	require.Equal(t, []string{"v1", "r1"}, ids(f.Items))
	require.Empty(t, f.Failures)
}

func TestAggregateTiesKeepAdapterOrder(t *testing.T) {
	spa := testutil.NewFakeSource(model.ItemTypeSpaBooking,
		testutil.Rec("s1", "pending", t0), testutil.Rec("s2", "pending", t0))
	events := testutil.NewFakeSource(model.ItemTypeEventReservation, testutil.Rec("e1", "pending", t0))
	chat := testutil.NewFakeSource(model.ItemTypeChat, testutil.Rec("c1", "sent", t0.Add(time.Second)))

	a := newAggregator(t, nil, spa, events, chat)
	for i := 0; i < 20; i++ {
		f := a.Aggregate(context.Background())
		require.Equal(t, []string{"c1", "s1", "s2", "e1"}, ids(f.Items))
	}
}

func TestAggregateDedupLaterWins(t *testing.T) {
	older := testutil.Rec("r1", "pending", t0)
	older["title"] = "first"
	newer := testutil.Rec("r1", "in_progress", t0)
	newer["title"] = "retried"

	requests := testutil.NewFakeSource(model.ItemTypeRequest, older, testutil.Rec("r2", "pending", t0.Add(-time.Minute)), newer)
	f := newAggregator(t, nil, requests).Aggregate(context.Background())

	require.Equal(t, []string{"r1", "r2"}, ids(f.Items))
	require.Equal(t, "in_progress", f.Items[0].Status)
	require.Equal(t, "retried", f.Items[0].Title)
}

func TestAggregateSameIDDifferentTypeIsNotDuplicate(t *testing.T) {
	requests := testutil.NewFakeSource(model.ItemTypeRequest, testutil.Rec("x", "pending", t0))
	spa := testutil.NewFakeSource(model.ItemTypeSpaBooking, testutil.Rec("x", "pending", t0))

	f := newAggregator(t, nil, requests, spa).Aggregate(context.Background())
	require.Len(t, f.Items, 2)
}

func TestAggregatePartialFailure(t *testing.T) {
	requests := testutil.NewFakeSource(model.ItemTypeRequest, testutil.Rec("r1", "pending", t0))
	spa := testutil.NewFakeSource(model.ItemTypeSpaBooking, testutil.Rec("s1", "pending", t0))
	spa.SetFetchError(errors.New("503"))
	chat := testutil.NewFakeSource(model.ItemTypeChat, testutil.Rec("c1", "sent", t0.Add(time.Minute)))

	f := newAggregator(t, nil, requests, spa, chat).Aggregate(context.Background())
	require.Equal(t, []string{"c1", "r1"}, ids(f.Items))
	require.Len(t, f.Failures, 1)
	require.True(t, source.IsSourceUnavailable(f.Failures[model.ItemTypeSpaBooking]))
}

func TestAggregateFetchesConcurrently(t *testing.T) {
	var sources []source.Source
	for _, typ := range model.ItemTypes {
		s := testutil.NewFakeSource(typ, testutil.Rec("id", "pending", t0))
		s.SetDelay(100 * time.Millisecond)
		sources = append(sources, s)
	}

	start := time.Now()
	f := newAggregator(t, nil, sources...).Aggregate(context.Background())
	require.Len(t, f.Items, len(model.ItemTypes))
	require.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestAggregateFetchTimeoutIsPerSource(t *testing.T) {
	slow := testutil.NewFakeSource(model.ItemTypeRequest, testutil.Rec("r1", "pending", t0))
	slow.SetDelay(time.Second)
	fast := testutil.NewFakeSource(model.ItemTypeChat, testutil.Rec("c1", "sent", t0))

	f := newAggregator(t, []Option{WithFetchTimeout(20 * time.Millisecond)}, slow, fast).
		Aggregate(context.Background())
	require.Equal(t, []string{"c1"}, ids(f.Items))
	require.ErrorIs(t, f.Failures[model.ItemTypeRequest], context.DeadlineExceeded)
}

func TestDecorateFillsSectionAndLink(t *testing.T) {
	requests := testutil.NewFakeSource(model.ItemTypeRequest, testutil.Rec("r1", "pending", t0))
	mock := clock.NewMockClock()

	f := newAggregator(t, []Option{WithClock(mock)}, requests).Aggregate(context.Background())
	require.Equal(t, model.SectionRequests, f.Items[0].SectionKey)
	require.Equal(t, "/requests/r1", f.Items[0].Link)
	require.Equal(t, mock.Now(), f.FetchedAt)

	custom := newAggregator(t, []Option{
		WithSectioner(func(model.NotificationItem) string { return "all" }),
		WithLinks(func(it model.NotificationItem) string { return "app://" + it.ID }),
	}, requests).Aggregate(context.Background())
	require.Equal(t, "all", custom.Items[0].SectionKey)
	require.Equal(t, "app://r1", custom.Items[0].Link)
}

func TestSectionByCategory(t *testing.T) {
	it := model.NotificationItem{Type: model.ItemTypeRequest, Data: map[string]any{"category": "maintenance"}}
	require.Equal(t, "requests:maintenance", SectionByCategory(it))

	it = model.NotificationItem{Type: model.ItemTypeRequest}
	require.Equal(t, model.SectionRequests, SectionByCategory(it))

	it = model.NotificationItem{Type: model.ItemTypeSpaBooking}
	require.Equal(t, model.SectionSpa, SectionByCategory(it))
}

func TestFeedIsCachedUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	requests := testutil.NewFakeSource(model.ItemTypeRequest, testutil.Rec("r1", "pending", t0))
	a := newAggregator(t, nil, requests)

	_, ok := a.Cached()
	require.False(t, ok)

	f, err := a.Feed(ctx)
	require.NoError(t, err)
	require.Len(t, f.Items, 1)

	requests.SetRecords(testutil.Rec("r1", "pending", t0), testutil.Rec("r2", "pending", t0))
	f, err = a.Feed(ctx)
	require.NoError(t, err)
	require.Len(t, f.Items, 1)
	require.Equal(t, 1, requests.Fetches())

	a.Invalidate()
	_, fresh := a.Cached()
	require.False(t, fresh)

	f, err = a.Feed(ctx)
	require.NoError(t, err)
	require.Len(t, f.Items, 2)
	require.Equal(t, 2, requests.Fetches())
}

func TestRefreshRacingInvalidateStaysStale(t *testing.T) {
	ctx := context.Background()
	requests := testutil.NewFakeSource(model.ItemTypeRequest, testutil.Rec("r1", "pending", t0))
	requests.SetDelay(50 * time.Millisecond)
	a := newAggregator(t, nil, requests)

	done := make(chan error, 1)
	go func() {
		_, err := a.Refresh(ctx)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	a.Invalidate()
	require.NoError(t, <-done)

	_, fresh := a.Cached()
	require.False(t, fresh)
}

func TestFeedAfterInvalidateWaitsForNewerPass(t *testing.T) {
	ctx := context.Background()
	requests := testutil.NewFakeSource(model.ItemTypeRequest, testutil.Rec("r1", "pending", t0))
	requests.SetFetchLag(50 * time.Millisecond)
	a := newAggregator(t, nil, requests)

	go func() { _, _ = a.Refresh(ctx) }()
	require.Eventually(t, func() bool { return requests.Fetches() == 1 }, time.Second, time.Millisecond)

	// The running pass already read r1 as pending.
	requests.SetRecords(testutil.Rec("r1", "cancelled", t0))
	a.Invalidate()

	f, err := a.Feed(ctx)
	require.NoError(t, err)
	require.Len(t, f.Items, 1)
	require.Equal(t, "cancelled", f.Items[0].Status)
	require.Equal(t, 2, requests.Fetches())

	cached, fresh := a.Cached()
	require.True(t, fresh)
	require.Equal(t, "cancelled", cached.Items[0].Status)
}

func TestSharedPassOutlivesCallerThatGivesUp(t *testing.T) {
	requests := testutil.NewFakeSource(model.ItemTypeRequest, testutil.Rec("r1", "pending", t0))
	requests.SetFetchLag(50 * time.Millisecond)
	a := newAggregator(t, nil, requests)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := a.Refresh(ctx)
		first <- err
	}()
	require.Eventually(t, func() bool { return requests.Fetches() == 1 }, time.Second, time.Millisecond)

	type result struct {
		f   Feed
		err error
	}
	second := make(chan result, 1)
	go func() {
		f, err := a.Refresh(context.Background())
		second <- result{f, err}
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-first, context.Canceled)

	res := <-second
	require.NoError(t, res.err)
	require.Equal(t, []string{"r1"}, ids(res.f.Items))
	require.Empty(t, res.f.Failures)
	require.Equal(t, 1, requests.Fetches())
}

func TestConcurrentRefreshesShareOnePass(t *testing.T) {
	ctx := context.Background()
	requests := testutil.NewFakeSource(model.ItemTypeRequest, testutil.Rec("r1", "pending", t0))
	requests.SetDelay(50 * time.Millisecond)
	a := newAggregator(t, nil, requests)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Refresh(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, requests.Fetches())
}

func TestCancelledRefreshDoesNotPublish(t *testing.T) {
	requests := testutil.NewFakeSource(model.ItemTypeRequest, testutil.Rec("r1", "pending", t0))
	a := newAggregator(t, nil, requests)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Refresh(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, ok := a.Cached()
	require.False(t, ok)
}

func TestOnUpdateListeners(t *testing.T) {
	ctx := context.Background()
	requests := testutil.NewFakeSource(model.ItemTypeRequest, testutil.Rec("r1", "pending", t0))
	a := newAggregator(t, nil, requests)

	var got []int
	unregister := a.OnUpdate(func(f Feed) { got = append(got, len(f.Items)) })

	_, err := a.Refresh(ctx)
	require.NoError(t, err)
	unregister()
	_, err = a.Refresh(ctx)
	require.NoError(t, err)

	require.Equal(t, []int{1}, got)
}

func TestFeedHelpers(t *testing.T) {
	f := Feed{Items: []model.NotificationItem{
		{ID: "a", Type: model.ItemTypeChat, SectionKey: "chat"},
		{ID: "b", Type: model.ItemTypeSpaBooking, SectionKey: "spa"},
		{ID: "c", Type: model.ItemTypeChat, SectionKey: "chat"},
	}}
	require.Equal(t, []string{"chat", "spa"}, f.Sections())

	it, ok := f.Find(model.ItemKey{Type: model.ItemTypeSpaBooking, ID: "b"})
	require.True(t, ok)
	require.Equal(t, "b", it.ID)

	_, ok = f.Find(model.ItemKey{Type: model.ItemTypeChat, ID: "b"})
	require.False(t, ok)
}
