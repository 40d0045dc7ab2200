package feed

import (
	"context"
	"sync"
	"time"

	"github.com/mixer/clock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/nhle/guest-services/internal/logging"
	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/source"
	"github.com/nhle/guest-services/internal/wallclock"
)

// fetchTimeout is the maximum time allowed for a single source fetch.
const fetchTimeout = 30 * time.Second

// Aggregator owns a viewer's feed. Reads are served from the cached Feed
// until Invalidate is called; the next read then recomputes it.
type Aggregator struct {
	registry  *source.Registry
	scope     source.Scope
	sectioner Sectioner
	link      LinkFunc
	timeout   time.Duration
	clock     clock.Clock
	logger    logging.Logger

	group singleflight.Group

	mu        sync.Mutex
	cached    *Feed
	gen       uint64
	listeners map[int]func(Feed)
	nextID    int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithSectioner sets how items are grouped into sections.
func WithSectioner(s Sectioner) Option {
	return func(a *Aggregator) { a.sectioner = s }
}

// WithLinks sets how deep links are built.
func WithLinks(l LinkFunc) Option {
	return func(a *Aggregator) { a.link = l }
}

// WithFetchTimeout bounds each source fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.timeout = d }
}

// WithClock sets the clock stamping FetchedAt.
func WithClock(c clock.Clock) Option {
	return func(a *Aggregator) { a.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(a *Aggregator) { a.logger = logging.OrNop(l) }
}

// New creates an Aggregator over the registry's sources for scope.
func New(registry *source.Registry, scope source.Scope, opts ...Option) *Aggregator {
	a := &Aggregator{
		registry:  registry,
		scope:     scope,
		sectioner: SectionByType,
		link:      DefaultLink,
		timeout:   fetchTimeout,
		clock:     wallclock.New(),
		logger:    logging.Nop(),
		listeners: make(map[int]func(Feed)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate runs one pass: every source is fetched concurrently, records
// are transformed, merged, deduplicated and sorted. A failing source
// contributes no items and is reported in Failures. Aggregate does not
// touch the cache.
func (a *Aggregator) Aggregate(ctx context.Context) Feed {
	sources := a.registry.Sources()
	results := make([][]model.NotificationItem, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			recs, err := src.Fetch(fctx, a.scope)
			if err != nil {
				errs[i] = &source.SourceUnavailableError{Type: src.Type(), Err: err}
				a.logger.Warn("source unavailable", "source", string(src.Type()), "err", err)
				return nil
			}

			items := make([]model.NotificationItem, 0, len(recs))
			for _, rec := range recs {
				items = append(items, a.decorate(src.Transform(rec)))
			}
			results[i] = items
			return nil
		})
	}
	// Workers never return an error; failures are collected in errs.
	_ = g.Wait()

	f := Feed{
		Items:     Merge(results...),
		Failures:  make(map[model.ItemType]error),
		FetchedAt: a.clock.Now(),
	}
	for i, err := range errs {
		if err != nil {
			f.Failures[sources[i].Type()] = err
		}
	}
	return f
}

func (a *Aggregator) decorate(it model.NotificationItem) model.NotificationItem {
	if it.SectionKey == "" {
		it.SectionKey = a.sectioner(it)
	}
	if it.Link == "" {
		it.Link = a.link(it)
	}
	return it
}

// Feed returns the cached feed, recomputing it first when it is missing
// or invalidated.
func (a *Aggregator) Feed(ctx context.Context) (Feed, error) {
	a.mu.Lock()
	if a.cached != nil && a.cached.Generation == a.gen {
		f := *a.cached
		a.mu.Unlock()
		return f, nil
	}
	a.mu.Unlock()

	return a.Refresh(ctx)
}

// Cached returns the last published feed without fetching, and whether it
// is still current.
func (a *Aggregator) Cached() (Feed, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cached == nil {
		return Feed{}, false
	}
	return *a.cached, a.cached.Generation == a.gen
}

// Invalidate marks the cached feed stale. Push events, poll ticks and
// mutations all end here.
func (a *Aggregator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen++
}

// Refresh recomputes and publishes the feed. Concurrent calls share one
// pass, which runs detached from any caller so one caller giving up does
// not fail the others. A pass that started before the latest Invalidate
// is published but never returned: the caller waits for a newer one.
func (a *Aggregator) Refresh(ctx context.Context) (Feed, error) {
	if err := ctx.Err(); err != nil {
		return Feed{}, err
	}

	a.mu.Lock()
	want := a.gen
	a.mu.Unlock()

	pctx := context.WithoutCancel(ctx)
	for {
		ch := a.group.DoChan("refresh", func() (any, error) {
			return a.pass(pctx), nil
		})
		select {
		case <-ctx.Done():
			return Feed{}, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return Feed{}, res.Err
			}
			if f := res.Val.(Feed); f.Generation >= want {
				return f, nil
			}
		}
	}
}

// pass aggregates once and publishes the result. It stays stale when an
// Invalidate lands while it runs.
func (a *Aggregator) pass(ctx context.Context) Feed {
	a.mu.Lock()
	gen := a.gen
	a.mu.Unlock()

	f := a.Aggregate(ctx)
	f.Generation = gen

	a.mu.Lock()
	if a.cached == nil || a.cached.Generation <= gen {
		a.cached = &f
	}
	listeners := make([]func(Feed), 0, len(a.listeners))
	for _, l := range a.listeners {
		listeners = append(listeners, l)
	}
	a.mu.Unlock()

	a.logger.Debug("feed refreshed",
		"items", len(f.Items),
		"failures", len(f.Failures),
		"generation", gen,
	)
	for _, l := range listeners {
		l(f)
	}
	return f
}

// OnUpdate registers fn to receive every published feed. The returned
// function unregisters it.
func (a *Aggregator) OnUpdate(fn func(Feed)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
	}
}
