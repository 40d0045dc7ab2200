// Package dispatch routes cancel requests to the source that owns an item
// and keeps the feed optimistic while a cancel is in flight.
package dispatch

import (
	"context"
	"sync"

	"github.com/nhle/guest-services/internal/logging"
	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/source"
)

// Invalidator is told when a cancel resolved and the feed must be
// refetched. *feed.Aggregator implements it.
type Invalidator interface {
	Invalidate()
}

// Dispatcher cancels items through the registry. While a cancel is in
// flight, Apply reports the item as cancelled.
type Dispatcher struct {
	registry *source.Registry
	scope    source.Scope
	target   Invalidator
	logger   logging.Logger

	mu      sync.Mutex
	overlay map[model.ItemKey]string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = logging.OrNop(l) }
}

// New creates a Dispatcher acting for scope.
func New(registry *source.Registry, scope source.Scope, target Invalidator, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		scope:    scope,
		target:   target,
		logger:   logging.Nop(),
		overlay:  make(map[model.ItemKey]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Apply returns items with in-flight cancels shown as cancelled. The input
// slice is not modified.
func (d *Dispatcher) Apply(items []model.NotificationItem) []model.NotificationItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.overlay) == 0 {
		return items
	}

	out := make([]model.NotificationItem, len(items))
	copy(out, items)
	for i := range out {
		if status, ok := d.overlay[out[i].Key()]; ok {
			out[i].Status = status
		}
	}
	return out
}

// Pending reports whether a cancel for key is in flight.
func (d *Dispatcher) Pending(key model.ItemKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.overlay[key]
	return ok
}

// Cancel cancels item. Items whose status is not cancellable are rejected
// without a backend call. On success the returned item is cancelled; on
// failure it carries the backend-reported status when known, else its
// prior status, and the error is a *source.CancelError.
func (d *Dispatcher) Cancel(ctx context.Context, item model.NotificationItem) (model.NotificationItem, error) {
	key := item.Key()

	src, ok := d.registry.Lookup(item.Type)
	if !ok {
		return item, source.Rejected(key, "unsupported type", item.Status)
	}

	d.mu.Lock()
	if _, busy := d.overlay[key]; busy {
		d.mu.Unlock()
		return item, source.Rejected(key, "cancel already in progress", item.Status)
	}
	if !model.IsCancellable(item.Status) {
		d.mu.Unlock()
		return item, source.Rejected(key, "status "+item.Status+" is not cancellable", item.Status)
	}
	d.overlay[key] = model.StatusCancelled
	d.mu.Unlock()

	err := src.Cancel(ctx, d.scope, item.ID)

	// Invalidate first so no read between the two sees the overlay gone
	// and a feed fetched before the cancel.
	d.target.Invalidate()
	d.mu.Lock()
	delete(d.overlay, key)
	d.mu.Unlock()

	if err == nil {
		d.logger.Info("item cancelled", "item", key.String())
		item.Status = model.StatusCancelled
		return item, nil
	}

	ce, ok := source.AsCancelError(err)
	if !ok {
		ce = source.Failed(key, err)
	}
	if ce.Current != "" {
		item.Status = ce.Current
	}
	d.logger.Warn("cancel failed", "item", key.String(), "kind", string(ce.Kind), "err", err)
	return item, ce
}
