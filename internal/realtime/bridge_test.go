package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mixer/clock"
	"github.com/stretchr/testify/require"

	"github.com/nhle/guest-services/internal/feed"
)

type countingRefresher struct {
	mu            sync.Mutex
	invalidations int
	refreshes     int
}

func (c *countingRefresher) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations++
}

func (c *countingRefresher) Refresh(context.Context) (feed.Feed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	return feed.Feed{}, nil
}

func (c *countingRefresher) Refreshes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

type runningBridge struct {
	bridge *Bridge
	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

func startBridge(t *testing.T, b *Bridge) *runningBridge {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	rb := &runningBridge{bridge: b, cancel: cancel, done: make(chan error, 1)}
	go func() { rb.done <- b.Run(ctx) }()
	t.Cleanup(rb.stop)
	return rb
}

func (rb *runningBridge) stop() {
	rb.once.Do(func() {
		rb.cancel()
		<-rb.done
	})
}

func (rb *runningBridge) state(topic string) State {
	return rb.bridge.States()[topic]
}

var topics = []string{"service_requests", "spa_bookings"}

func TestBridgeInitialRefreshAndPush(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	target := &countingRefresher{}
	rb := startBridge(t, NewBridge(target, topics, Filter{Column: "guest_id", Value: "g1"},
		WithSubscriber(hub),
		WithRefreshRate(1000),
		WithBridgeClock(clock.NewMockClock()),
	))

	require.Eventually(t, func() bool { return target.Refreshes() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return rb.state("service_requests") == StateSubscribed && rb.state("spa_bookings") == StateSubscribed
	}, time.Second, 5*time.Millisecond)

	// Another viewer's write is filtered out.
	require.NoError(t, hub.Publish(ctx, Event{Topic: "spa_bookings", Payload: map[string]any{"guest_id": "g2"}}))
	require.NoError(t, hub.Publish(ctx, Event{Topic: "spa_bookings", Payload: map[string]any{"guest_id": "g1"}}))
	require.Eventually(t, func() bool { return target.Refreshes() == 2 }, time.Second, 5*time.Millisecond)
}

func TestBridgeCoalescesBursts(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	target := &countingRefresher{}
	rb := startBridge(t, NewBridge(target, topics, Filter{},
		WithSubscriber(hub),
		WithRefreshRate(5),
		WithBridgeClock(clock.NewMockClock()),
	))
	require.Eventually(t, func() bool { return rb.state("service_requests") == StateSubscribed }, time.Second, 5*time.Millisecond)

	for i := 0; i < 50; i++ {
		require.NoError(t, hub.Publish(ctx, Event{Topic: "service_requests"}))
	}
	time.Sleep(300 * time.Millisecond)
	require.LessOrEqual(t, target.Refreshes(), 4)
	require.GreaterOrEqual(t, target.Refreshes(), 2)
}

func TestBridgePollsWithoutPush(t *testing.T) {
	mock := clock.NewMockClock()
	target := &countingRefresher{}
	rb := startBridge(t, NewBridge(target, topics, Filter{},
		WithRefreshRate(1000),
		WithPollInterval(5*time.Second),
		WithBridgeClock(mock),
	))
	require.Empty(t, rb.bridge.States())

	require.Eventually(t, func() bool { return target.Refreshes() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		mock.AddTime(5 * time.Second)
		return target.Refreshes() >= 3
	}, time.Second, 10*time.Millisecond)
}

func TestBridgeResubscribesAfterDrop(t *testing.T) {
	mock := clock.NewMockClock()
	hub := NewHub()
	target := &countingRefresher{}

	var mu sync.Mutex
	var transitions []State
	rb := startBridge(t, NewBridge(target, []string{"chat_messages"}, Filter{},
		WithSubscriber(hub),
		WithRefreshRate(1000),
		WithPollInterval(time.Hour),
		WithBridgeClock(mock),
		WithStateHook(func(_ string, s State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, s)
		}),
	))
	require.Eventually(t, func() bool { return rb.state("chat_messages") == StateSubscribed }, time.Second, 5*time.Millisecond)
	before := target.Refreshes()

	hub.Disconnect("chat_messages")
	require.Eventually(t, func() bool { return rb.state("chat_messages") == StateDisconnected }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		mock.AddTime(DefaultBackoffMin)
		return rb.state("chat_messages") == StateSubscribed
	}, time.Second, 10*time.Millisecond)

	// Resubscribing refetches to cover the gap.
	require.Eventually(t, func() bool { return target.Refreshes() > before }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []State{StateConnecting, StateSubscribed, StateDisconnected, StateConnecting, StateSubscribed}, transitions)
}

func TestBridgeOutageKeepsPolling(t *testing.T) {
	mock := clock.NewMockClock()
	hub := NewHub()
	hub.SetOutage(errors.New("connection refused"))
	target := &countingRefresher{}
	rb := startBridge(t, NewBridge(target, topics, Filter{},
		WithSubscriber(hub),
		WithRefreshRate(1000),
		WithBridgeClock(mock),
	))

	require.Eventually(t, func() bool { return rb.state("service_requests") == StateDisconnected }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		mock.AddTime(DefaultPollInterval)
		return target.Refreshes() >= 3
	}, time.Second, 10*time.Millisecond)

	hub.SetOutage(nil)
	require.Eventually(t, func() bool {
		mock.AddTime(DefaultBackoffMax)
		return rb.state("service_requests") == StateSubscribed && rb.state("spa_bookings") == StateSubscribed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBridgeRunTearsDown(t *testing.T) {
	hub := NewHub()
	target := &countingRefresher{}
	b := NewBridge(target, topics, Filter{}, WithSubscriber(hub), WithBridgeClock(clock.NewMockClock()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		return hub.Subscribers("service_requests") == 1 && hub.Subscribers("spa_bookings") == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	require.Equal(t, 0, hub.Subscribers("service_requests"))
	require.Equal(t, 0, hub.Subscribers("spa_bookings"))
	for _, topic := range topics {
		require.Equal(t, StateClosed, b.States()[topic])
	}
}

func TestBridgeTearsDownOnWallClock(t *testing.T) {
	hub := NewHub()
	target := &countingRefresher{}
	b := NewBridge(target, topics, Filter{},
		WithSubscriber(hub),
		WithRefreshRate(1000),
		WithPollInterval(5*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return target.Refreshes() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return hub.Subscribers("spa_bookings") == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	require.Equal(t, 0, hub.Subscribers("service_requests"))
	require.Equal(t, 0, hub.Subscribers("spa_bookings"))
}

func TestBridgeOverWebsocket(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	target := &countingRefresher{}
	rb := startBridge(t, NewBridge(target, []string{"table_reservations"}, Filter{Column: "room_number", Value: "204"},
		WithSubscriber(NewWebsocketSubscriber(newRelay(t, hub))),
		WithRefreshRate(1000),
		WithBridgeClock(clock.NewMockClock()),
	))
	require.Eventually(t, func() bool { return rb.state("table_reservations") == StateSubscribed }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return target.Refreshes() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Publish(ctx, Event{Topic: "table_reservations", Kind: EventUpdate, Payload: map[string]any{"room_number": "204"}}))
	require.Eventually(t, func() bool { return target.Refreshes() == 2 }, time.Second, 5*time.Millisecond)
}
