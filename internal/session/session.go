// Package session wires one viewer's engine: sources, aggregator,
// watermarks, badge counter, cancel dispatcher and realtime bridge. A
// Session is created at login and closed at logout; nothing is shared
// between sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mixer/clock"

	"github.com/nhle/guest-services/internal/badge"
	"github.com/nhle/guest-services/internal/dispatch"
	"github.com/nhle/guest-services/internal/feed"
	"github.com/nhle/guest-services/internal/logging"
	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/realtime"
	"github.com/nhle/guest-services/internal/source"
	"github.com/nhle/guest-services/internal/source/chat"
	"github.com/nhle/guest-services/internal/source/event"
	"github.com/nhle/guest-services/internal/source/request"
	"github.com/nhle/guest-services/internal/source/reservation"
	"github.com/nhle/guest-services/internal/source/spa"
	"github.com/nhle/guest-services/internal/store"
	"github.com/nhle/guest-services/internal/wallclock"
	"github.com/nhle/guest-services/internal/watermark"
)

// ErrClosed is returned by Start on a closed session.
var ErrClosed = errors.New("session closed")

// Options configures a Session. Viewer, KV and either Backend or Sources
// are required.
type Options struct {
	Viewer  model.Viewer
	Backend store.Backend
	KV      watermark.KV

	// Sources overrides the default adapters built over Backend.
	Sources []source.Source

	// Subscriber is the push transport. Nil means polling only.
	Subscriber realtime.Subscriber

	PollInterval  time.Duration
	BackoffMin    time.Duration
	BackoffMax    time.Duration
	RefreshPerSec float64
	BadgeCap      int

	Clock  clock.Clock
	Logger logging.Logger
}

// Session is one viewer's notification engine.
type Session struct {
	viewer     model.Viewer
	scope      source.Scope
	registry   *source.Registry
	aggregator *feed.Aggregator
	marks      *watermark.Store
	counter    *badge.Counter
	dispatcher *dispatch.Dispatcher
	bridge     *realtime.Bridge
	logger     logging.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// DefaultSources builds the five adapters over backend. Guests see chat
// messages from staff; staff see messages from guests.
func DefaultSources(backend store.Backend, role model.Role, opts ...source.TableOption) []source.Source {
	from := chat.SenderStaff
	if role == model.RoleStaff {
		from = chat.SenderGuest
	}
	return []source.Source{
		request.NewAdapter(backend, opts...),
		reservation.NewAdapter(backend, opts...),
		spa.NewAdapter(backend, opts...),
		event.NewAdapter(backend, opts...),
		chat.NewAdapter(backend, from, opts...),
	}
}

// knownSections are always reported by GetUnreadCounts.
func knownSections(role model.Role) []string {
	if role == model.RoleStaff {
		// Requests are split per category, which only the feed knows.
		return []string{model.SectionDining, model.SectionSpa, model.SectionEvents, model.SectionChat}
	}
	return []string{model.SectionRequests, model.SectionDining, model.SectionSpa, model.SectionEvents, model.SectionChat}
}

// New builds a Session. It performs no I/O; call Start to begin syncing.
func New(opts Options) (*Session, error) {
	if opts.Viewer.Empty() {
		return nil, source.ErrEmptyScope
	}
	if opts.KV == nil {
		return nil, errors.New("session: watermark KV is required")
	}
	if opts.Clock == nil {
		opts.Clock = wallclock.New()
	}
	logger := logging.OrNop(opts.Logger).With("viewer", opts.Viewer.ID())

	sources := opts.Sources
	if len(sources) == 0 {
		if opts.Backend == nil {
			return nil, errors.New("session: backend or sources required")
		}
		sources = DefaultSources(opts.Backend, opts.Viewer.Role,
			source.WithClock(opts.Clock),
			source.WithLogger(logger),
		)
	}
	registry, err := source.NewRegistry(sources...)
	if err != nil {
		return nil, fmt.Errorf("building registry: %w", err)
	}

	scope := source.ScopeFor(opts.Viewer)
	owner, err := scope.OwnerCond()
	if err != nil {
		return nil, err
	}

	sectioner := feed.SectionByType
	if opts.Viewer.Role == model.RoleStaff {
		sectioner = feed.SectionByCategory
	}
	aggregator := feed.New(registry, scope,
		feed.WithSectioner(sectioner),
		feed.WithClock(opts.Clock),
		feed.WithLogger(logger),
	)

	marks := watermark.New(opts.KV, opts.Viewer.ID())
	counter := badge.New(marks,
		badge.WithClock(opts.Clock),
		badge.WithSections(knownSections(opts.Viewer.Role)...),
		badge.WithCap(opts.BadgeCap),
	)

	bridgeOpts := []realtime.BridgeOption{
		realtime.WithBridgeClock(opts.Clock),
		realtime.WithBridgeLogger(logger),
		realtime.WithPollInterval(opts.PollInterval),
		realtime.WithBackoff(opts.BackoffMin, opts.BackoffMax),
		realtime.WithRefreshRate(opts.RefreshPerSec),
	}
	if opts.Subscriber != nil {
		bridgeOpts = append(bridgeOpts, realtime.WithSubscriber(opts.Subscriber))
	}

	return &Session{
		viewer:     opts.Viewer,
		scope:      scope,
		registry:   registry,
		aggregator: aggregator,
		marks:      marks,
		counter:    counter,
		dispatcher: dispatch.New(registry, scope, aggregator, dispatch.WithLogger(logger)),
		bridge:     realtime.NewBridge(aggregator, registry.Topics(), realtime.FilterFor(owner), bridgeOpts...),
		logger:     logger,
	}, nil
}

// Viewer returns the session's viewer.
func (s *Session) Viewer() model.Viewer {
	return s.viewer
}

// Start launches realtime sync in the background. Calling Start on a
// running session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}
	s.started = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.bridge.Run(ctx); err != nil {
			s.logger.Error("realtime bridge stopped", "err", err)
		}
	}()
	s.logger.Info("session started")
	return nil
}

// Close stops realtime sync and waits until every subscription and timer
// is released. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.logger.Info("session closed")
	return nil
}

// GetFeed returns the viewer's feed, fetching it when the cache is stale.
// In-flight cancels are shown as cancelled.
func (s *Session) GetFeed(ctx context.Context) (feed.Feed, error) {
	f, err := s.aggregator.Feed(ctx)
	if err != nil {
		return feed.Feed{}, err
	}
	f.Items = s.dispatcher.Apply(f.Items)
	return f, nil
}

// Refresh refetches the feed regardless of the cache.
func (s *Session) Refresh(ctx context.Context) (feed.Feed, error) {
	s.aggregator.Invalidate()
	return s.GetFeed(ctx)
}

// GetUnreadCounts returns unread counts per section and in total.
func (s *Session) GetUnreadCounts(ctx context.Context) (badge.Counts, error) {
	f, err := s.GetFeed(ctx)
	if err != nil {
		return badge.Counts{}, err
	}
	return s.counter.Counts(f.Items)
}

// MarkSectionSeen marks every current item of section as read.
func (s *Session) MarkSectionSeen(section string) error {
	return s.counter.MarkSectionSeen(section)
}

// MarkAllSeen marks every section as read.
func (s *Session) MarkAllSeen(ctx context.Context) error {
	f, err := s.GetFeed(ctx)
	if err != nil {
		return err
	}
	return s.counter.MarkAllSeen(f.Items)
}

// Cancel cancels the feed item identified by typ and id.
func (s *Session) Cancel(ctx context.Context, typ model.ItemType, id string) (model.NotificationItem, error) {
	key := model.ItemKey{Type: typ, ID: id}
	if _, ok := s.registry.Lookup(typ); !ok {
		return model.NotificationItem{ID: id, Type: typ}, source.Rejected(key, "unsupported type", "")
	}

	f, err := s.GetFeed(ctx)
	if err != nil {
		return model.NotificationItem{}, err
	}
	item, ok := f.Find(key)
	if !ok {
		return model.NotificationItem{ID: id, Type: typ}, source.Rejected(key, "not found", "")
	}
	return s.dispatcher.Cancel(ctx, item)
}

// OnChange calls fn with every newly published feed. The returned
// function unregisters fn.
func (s *Session) OnChange(fn func(feed.Feed)) func() {
	return s.aggregator.OnUpdate(func(f feed.Feed) {
		f.Items = s.dispatcher.Apply(f.Items)
		fn(f)
	})
}

// PushStates returns the realtime state per topic.
func (s *Session) PushStates() map[string]realtime.State {
	return s.bridge.States()
}

// Badge renders n with the session's badge cap.
func (s *Session) Badge(n int) string {
	return s.counter.Display(n)
}

// Watermarks returns the last-seen time of each section.
func (s *Session) Watermarks(sections []string) (map[string]time.Time, error) {
	return s.marks.Snapshot(sections)
}

// Pending reports whether a cancel of key is in flight.
func (s *Session) Pending(key model.ItemKey) bool {
	return s.dispatcher.Pending(key)
}
