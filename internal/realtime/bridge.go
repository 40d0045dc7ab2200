package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/mixer/clock"
	"golang.org/x/time/rate"

	"github.com/nhle/guest-services/internal/feed"
	"github.com/nhle/guest-services/internal/logging"
	"github.com/nhle/guest-services/internal/wallclock"
)

// State is the push state of one topic.
type State int

const (
	StateConnecting State = iota
	StateSubscribed
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Defaults for a Bridge.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultBackoffMin   = 500 * time.Millisecond
	DefaultBackoffMax   = 30 * time.Second
	DefaultRefreshRate  = 2.0
)

// Refresher is the feed owner a Bridge keeps fresh. *feed.Aggregator
// implements it.
type Refresher interface {
	Invalidate()
	Refresh(ctx context.Context) (feed.Feed, error)
}

// Bridge subscribes to every source topic and runs a polling backstop.
// Both paths invalidate the feed and schedule a refetch; a single worker
// performs refetches no faster than the refresh rate, so bursts coalesce.
type Bridge struct {
	target  Refresher
	sub     Subscriber
	topics  []string
	filter  Filter
	clock   clock.Clock
	logger  logging.Logger
	limiter *rate.Limiter

	pollInterval time.Duration
	backoffMin   time.Duration
	backoffMax   time.Duration

	kick chan struct{}

	mu      sync.Mutex
	states  map[string]State
	onState func(topic string, s State)
	running bool
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithSubscriber sets the push transport. Without one the Bridge only polls.
func WithSubscriber(s Subscriber) BridgeOption {
	return func(b *Bridge) { b.sub = s }
}

// WithPollInterval sets the polling period.
func WithPollInterval(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithBackoff sets the resubscribe delay bounds.
func WithBackoff(min, max time.Duration) BridgeOption {
	return func(b *Bridge) {
		if min > 0 && max >= min {
			b.backoffMin, b.backoffMax = min, max
		}
	}
}

// WithRefreshRate bounds refetches per second.
func WithRefreshRate(perSec float64) BridgeOption {
	return func(b *Bridge) {
		if perSec > 0 {
			b.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// WithBridgeClock sets the clock driving polls and backoff.
func WithBridgeClock(c clock.Clock) BridgeOption {
	return func(b *Bridge) { b.clock = c }
}

// WithBridgeLogger sets the logger.
func WithBridgeLogger(l logging.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = logging.OrNop(l) }
}

// WithStateHook calls fn on every topic state transition.
func WithStateHook(fn func(topic string, s State)) BridgeOption {
	return func(b *Bridge) { b.onState = fn }
}

// NewBridge creates a Bridge keeping target fresh for topics. filter scopes
// push subscriptions to the viewer.
func NewBridge(target Refresher, topics []string, filter Filter, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		target:       target,
		topics:       topics,
		filter:       filter,
		clock:        wallclock.New(),
		logger:       logging.Nop(),
		limiter:      rate.NewLimiter(rate.Limit(DefaultRefreshRate), 1),
		pollInterval: DefaultPollInterval,
		backoffMin:   DefaultBackoffMin,
		backoffMax:   DefaultBackoffMax,
		kick:         make(chan struct{}, 1),
		states:       make(map[string]State),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Invalidate marks the feed stale and schedules a refetch.
func (b *Bridge) Invalidate(reason string) {
	b.logger.Debug("feed invalidated", "reason", reason)
	b.target.Invalidate()
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// States returns the current push state per topic.
func (b *Bridge) States() map[string]State {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]State, len(b.states))
	for k, v := range b.states {
		out[k] = v
	}
	return out
}

func (b *Bridge) setState(topic string, s State) {
	b.mu.Lock()
	prev, seen := b.states[topic]
	b.states[topic] = s
	hook := b.onState
	b.mu.Unlock()

	if seen && prev == s {
		return
	}
	b.logger.Debug("push state", "topic", topic, "state", s.String())
	if hook != nil {
		hook(topic, s)
	}
}

// Run fetches the feed once, then keeps it fresh until ctx is done. It
// returns only after every subscription is released and every timer
// stopped. A Bridge runs at most once at a time.
func (b *Bridge) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = true
	b.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.refreshLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		b.pollLoop(ctx)
	}()
	if b.sub != nil {
		for _, topic := range b.topics {
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.maintain(ctx, topic)
			}()
		}
	}

	b.Invalidate("start")

	<-ctx.Done()
	wg.Wait()

	if b.sub != nil {
		for _, topic := range b.topics {
			b.setState(topic, StateClosed)
		}
	}
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
	return nil
}

func (b *Bridge) refreshLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.kick:
		}
		if err := b.limiter.Wait(ctx); err != nil {
			return
		}
		if _, err := b.target.Refresh(ctx); err != nil && ctx.Err() == nil {
			b.logger.Warn("refresh failed", "err", err)
		}
	}
}

func (b *Bridge) pollLoop(ctx context.Context) {
	ticker := b.clock.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			b.Invalidate("poll")
		}
	}
}

// maintain keeps one topic subscribed, resubscribing with backoff after
// failures and drops. Failures are logged and never surfaced.
func (b *Bridge) maintain(ctx context.Context, topic string) {
	delays := newBackoff(b.backoffMin, b.backoffMax)
	connected := false

	for {
		b.setState(topic, StateConnecting)
		sub, err := b.sub.Subscribe(ctx, topic, b.filter, func(Event) {
			b.Invalidate("push:" + topic)
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn("subscribe failed", "topic", topic, "err", err)
			b.setState(topic, StateDisconnected)
			if !b.sleep(ctx, delays.Next()) {
				return
			}
			continue
		}

		delays.Reset()
		b.setState(topic, StateSubscribed)
		if connected {
			// Events may have been missed while disconnected.
			b.Invalidate("resubscribed:" + topic)
		}
		connected = true

		select {
		case <-ctx.Done():
			if err := sub.Unsubscribe(); err != nil {
				b.logger.Warn("unsubscribe failed", "topic", topic, "err", err)
			}
			return
		case err := <-sub.Done():
			b.logger.Warn("subscription lost", "topic", topic, "err", err)
			_ = sub.Unsubscribe()
			b.setState(topic, StateDisconnected)
			if !b.sleep(ctx, delays.Next()) {
				return
			}
		}
	}
}

func (b *Bridge) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-b.clock.After(d):
		return true
	}
}
