package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nhle/guest-services/internal/store"
)

// Hub is an in-process Subscriber and Publisher. The local sqlite backend
// reports its writes to a Hub, and the websocket handler relays a Hub to
// remote clients.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[string]*hubSub
	outage error
}

var (
	_ Subscriber           = (*Hub)(nil)
	_ Publisher            = (*Hub)(nil)
	_ store.ChangeNotifier = (*Hub)(nil)
)

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[string]*hubSub)}
}

type hubSub struct {
	hub     *Hub
	id      string
	topic   string
	filter  Filter
	onEvent func(Event)
	done    chan error
	once    sync.Once
}

func (s *hubSub) Done() <-chan error { return s.done }

func (s *hubSub) Unsubscribe() error {
	s.hub.remove(s)
	return nil
}

// drop ends the subscription from the transport side.
func (s *hubSub) drop(err error) {
	s.once.Do(func() { s.done <- err })
}

// Subscribe registers onEvent for topic.
func (h *Hub) Subscribe(ctx context.Context, topic string, filter Filter, onEvent func(Event)) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.outage != nil {
		return nil, h.outage
	}

	s := &hubSub{
		hub:     h,
		id:      uuid.NewString(),
		topic:   topic,
		filter:  filter,
		onEvent: onEvent,
		done:    make(chan error, 1),
	}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[string]*hubSub)
	}
	h.subs[topic][s.id] = s
	return s, nil
}

func (h *Hub) remove(s *hubSub) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[s.topic], s.id)
	if len(h.subs[s.topic]) == 0 {
		delete(h.subs, s.topic)
	}
}

// Publish delivers ev to every matching subscriber on its topic.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.Lock()
	targets := make([]*hubSub, 0, len(h.subs[ev.Topic]))
	for _, s := range h.subs[ev.Topic] {
		if s.filter.Match(ev.Payload) {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.onEvent(ev)
	}
	return nil
}

// NotifyChange publishes a committed backend write.
func (h *Hub) NotifyChange(ctx context.Context, c store.Change) {
	_ = h.Publish(ctx, EventFromChange(c))
}

// Subscribers returns the number of live subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}

// Disconnect drops every subscription on topic with ErrSubscriptionLost.
func (h *Hub) Disconnect(topic string) {
	h.mu.Lock()
	dropped := h.subs[topic]
	delete(h.subs, topic)
	h.mu.Unlock()

	for _, s := range dropped {
		s.drop(ErrSubscriptionLost)
	}
}

// SetOutage makes the Hub behave like an unreachable server: while err is
// non-nil, every subscription is dropped and Subscribe fails with err.
func (h *Hub) SetOutage(err error) {
	h.mu.Lock()
	h.outage = err
	var dropped []*hubSub
	if err != nil {
		for _, subs := range h.subs {
			for _, s := range subs {
				dropped = append(dropped, s)
			}
		}
		h.subs = make(map[string]map[string]*hubSub)
	}
	h.mu.Unlock()

	for _, s := range dropped {
		s.drop(ErrSubscriptionLost)
	}
}
