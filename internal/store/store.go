package store

import (
	"context"
	"errors"
)

// Backing tables, one per notification source.
const (
	TableServiceRequests   = "service_requests"
	TableTableReservations = "table_reservations"
	TableSpaBookings       = "spa_bookings"
	TableEventReservations = "event_reservations"
	TableChatMessages      = "chat_messages"
)

// Owner columns. Every query issued by a source is scoped by one of them.
const (
	ColumnID         = "id"
	ColumnGuestID    = "guest_id"
	ColumnRoomNumber = "room_number"
	ColumnStatus     = "status"
	ColumnCreatedAt  = "created_at"
	ColumnUpdatedAt  = "updated_at"
)

// ErrUnknownTable is returned for a table or column outside the schema.
var ErrUnknownTable = errors.New("unknown table or column")

// Row is a single backend record keyed by native column name.
type Row map[string]any

// String returns the column value as a string, or "" when absent.
func (r Row) String(column string) string {
	switch v := r[column].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return toString(v)
	}
}

// Cond restricts a query to rows whose column equals one of Values.
type Cond struct {
	Column string
	Values []any
}

// Eq returns a Cond matching a single value.
func Eq(column string, value any) Cond {
	return Cond{Column: column, Values: []any{value}}
}

// In returns a Cond matching any of the given values.
func In(column string, values ...string) Cond {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Cond{Column: column, Values: vs}
}

// Backend is the per-entity query/mutate primitive consumed by sources.
// Implementations only ever receive owner-scoped conditions.
type Backend interface {
	// Select returns rows of table matching every cond, newest first.
	Select(ctx context.Context, table string, where ...Cond) ([]Row, error)

	// Update applies patch to the row with the given id if it also matches
	// every cond, and returns the number of rows changed.
	Update(ctx context.Context, table, id string, patch Row, where ...Cond) (int64, error)
}

// ChangeKind is the kind of write reported to a ChangeNotifier.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
)

// Change describes a committed write to a backing table.
type Change struct {
	Table string
	Kind  ChangeKind
	Row   Row
}

// ChangeNotifier receives committed writes, typically to fan them out to
// realtime subscribers.
type ChangeNotifier interface {
	NotifyChange(ctx context.Context, c Change)
}
