// Package realtime keeps a viewer's feed fresh. Push subscriptions and a
// polling backstop both end in the same invalidation; event payloads are
// only a hint that something changed and are never applied locally.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nhle/guest-services/internal/store"
)

// ErrSubscriptionLost is reported on Subscription.Done when a transport
// drops an established subscription.
var ErrSubscriptionLost = errors.New("subscription lost")

// EventKind is the kind of change an Event reports.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// Event is a change notification on a topic. Topics are backing table names.
type Event struct {
	Topic   string         `json:"topic"`
	Kind    EventKind      `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Filter restricts a subscription to rows whose Column equals Value. The
// zero Filter matches everything.
type Filter struct {
	Column string
	Value  string
}

// FilterFor converts an owner condition into a subscription filter.
func FilterFor(c store.Cond) Filter {
	if len(c.Values) != 1 {
		return Filter{}
	}
	return Filter{Column: c.Column, Value: fmt.Sprint(c.Values[0])}
}

// Empty reports whether the filter matches everything.
func (f Filter) Empty() bool {
	return f.Column == ""
}

// Match reports whether payload passes the filter.
func (f Filter) Match(payload map[string]any) bool {
	if f.Empty() {
		return true
	}
	v, ok := payload[f.Column]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == f.Value
}

// String renders the filter as column=eq.value, the form sent to servers.
func (f Filter) String() string {
	if f.Empty() {
		return ""
	}
	return f.Column + "=eq." + f.Value
}

// ParseFilter parses the String form. An empty string is the zero Filter.
func ParseFilter(s string) (Filter, error) {
	if s == "" {
		return Filter{}, nil
	}
	col, val, ok := strings.Cut(s, "=eq.")
	if !ok || col == "" {
		return Filter{}, fmt.Errorf("invalid filter %q", s)
	}
	return Filter{Column: col, Value: val}, nil
}

// Subscription is an established push subscription.
type Subscription interface {
	// Done receives one error when the transport drops the subscription.
	// It is not signalled by Unsubscribe.
	Done() <-chan error

	// Unsubscribe releases the subscription. It is safe to call more than
	// once.
	Unsubscribe() error
}

// Subscriber opens push subscriptions. onEvent is called for every matching
// event and must not block.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, filter Filter, onEvent func(Event)) (Subscription, error)
}

// Publisher fans events out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// EventFromChange converts a committed backend write into an Event.
func EventFromChange(c store.Change) Event {
	return Event{Topic: c.Table, Kind: EventKind(c.Kind), Payload: c.Row}
}
