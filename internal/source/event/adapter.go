// Package event adapts the event_reservations table.
package event

import (
	"strings"

	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/source"
	"github.com/nhle/guest-services/internal/store"
)

// Adapter implements source.Source for event reservations.
type Adapter struct {
	*source.Table
}

var _ source.Source = (*Adapter)(nil)

// NewAdapter creates an event reservation adapter over backend.
func NewAdapter(backend store.Backend, opts ...source.TableOption) *Adapter {
	return &Adapter{
		Table: source.NewTable(backend, store.TableEventReservations, model.ItemTypeEventReservation, opts...),
	}
}

// Transform maps an event_reservations row to a NotificationItem.
func (a *Adapter) Transform(rec source.Record) model.NotificationItem {
	title := strings.TrimSpace(rec.String("event_title"))
	if title == "" {
		title = "Hotel event"
	}
	description := title
	if date := rec.String("event_date"); date != "" {
		description += " on " + date
	}

	status := rec.String(store.ColumnStatus)
	if status == "" {
		status = model.StatusPending
	}

	return model.NotificationItem{
		ID:          rec.String(store.ColumnID),
		Type:        model.ItemTypeEventReservation,
		Title:       "Event Reservation",
		Description: description,
		Status:      status,
		Time:        a.Time(rec, store.ColumnCreatedAt),
		Data: map[string]any{
			"event_title": rec.String("event_title"),
			"event_date":  rec.String("event_date"),
			"guest_count": rec["guest_count"],
			"room_number": rec.String(store.ColumnRoomNumber),
		},
	}
}
