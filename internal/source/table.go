package source

import (
	"context"
	"time"

	"github.com/mixer/clock"

	"github.com/nhle/guest-services/internal/logging"
	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/store"
	"github.com/nhle/guest-services/internal/wallclock"
)

// Table implements the fetch and cancel halves of Source for an
// owner-scoped backing table. Adapters embed it and add Transform.
type Table struct {
	backend  store.Backend
	name     string
	itemType model.ItemType
	filters  []store.Cond
	clock    clock.Clock
	logger   logging.Logger
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithFilter adds a fixed condition to every fetch.
func WithFilter(c store.Cond) TableOption {
	return func(t *Table) { t.filters = append(t.filters, c) }
}

// WithClock sets the clock used to substitute malformed timestamps.
func WithClock(c clock.Clock) TableOption {
	return func(t *Table) { t.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) TableOption {
	return func(t *Table) { t.logger = logging.OrNop(l) }
}

// NewTable returns a Table reading name on backend for items of type t.
func NewTable(backend store.Backend, name string, t model.ItemType, opts ...TableOption) *Table {
	tbl := &Table{
		backend:  backend,
		name:     name,
		itemType: t,
		clock:    wallclock.New(),
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(tbl)
	}
	tbl.logger = tbl.logger.With("source", string(t))
	return tbl
}

// Type returns the item type this table produces.
func (t *Table) Type() model.ItemType {
	return t.itemType
}

// Topic returns the backing table name.
func (t *Table) Topic() string {
	return t.name
}

// Fetch returns the scope's rows, newest first.
func (t *Table) Fetch(ctx context.Context, scope Scope) ([]Record, error) {
	owner, err := scope.OwnerCond()
	if err != nil {
		return nil, err
	}

	where := append([]store.Cond{owner}, t.filters...)
	rows, err := t.backend.Select(ctx, t.name, where...)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []Record{}
	}
	return rows, nil
}

// Cancel conditionally moves an owned, cancellable row to cancelled. When
// nothing changed it re-reads the row to explain why.
func (t *Table) Cancel(ctx context.Context, scope Scope, id string) error {
	key := model.ItemKey{Type: t.itemType, ID: id}

	owner, err := scope.OwnerCond()
	if err != nil {
		return Rejected(key, err.Error(), "")
	}

	n, err := t.backend.Update(ctx, t.name, id,
		store.Row{store.ColumnStatus: model.StatusCancelled},
		owner,
		store.In(store.ColumnStatus, model.CancellableStatuses()...),
	)
	if err != nil {
		return Failed(key, err)
	}
	if n > 0 {
		t.logger.Info("cancelled", "id", id)
		return nil
	}

	rows, err := t.backend.Select(ctx, t.name, store.Eq(store.ColumnID, id), owner)
	if err != nil {
		return Failed(key, err)
	}
	if len(rows) == 0 {
		return Rejected(key, "not found", "")
	}

	current := rows[0].String(store.ColumnStatus)
	if current == model.StatusCancelled {
		return Rejected(key, "already cancelled", current)
	}
	return Rejected(key, "status "+current+" is not cancellable", current)
}

// Time parses rec[column]. A missing or malformed value is logged and
// replaced with the current time.
func (t *Table) Time(rec Record, column string) time.Time {
	ts, err := ParseTime(rec[column])
	if err != nil {
		t.logger.Warn("malformed timestamp",
			"id", rec.String(store.ColumnID),
			"column", column,
			"err", err,
		)
		return t.clock.Now()
	}
	return ts
}

// Now returns the table clock's current time.
func (t *Table) Now() time.Time {
	return t.clock.Now()
}
