// Package reservation adapts the table_reservations table (restaurant
// bookings).
package reservation

import (
	"fmt"
	"strings"

	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/source"
	"github.com/nhle/guest-services/internal/store"
)

// Adapter implements source.Source for table reservations.
type Adapter struct {
	*source.Table
}

var _ source.Source = (*Adapter)(nil)

// NewAdapter creates a table reservation adapter over backend.
func NewAdapter(backend store.Backend, opts ...source.TableOption) *Adapter {
	return &Adapter{
		Table: source.NewTable(backend, store.TableTableReservations, model.ItemTypeReservation, opts...),
	}
}

// Transform maps a table_reservations row to a NotificationItem.
func (a *Adapter) Transform(rec source.Record) model.NotificationItem {
	restaurant := strings.TrimSpace(rec.String("restaurant_name"))
	if restaurant == "" {
		restaurant = "the restaurant"
	}
	guests := rec.String("guest_count")
	if guests == "" {
		guests = "1"
	}

	status := rec.String(store.ColumnStatus)
	if status == "" {
		status = model.StatusPending
	}

	return model.NotificationItem{
		ID:          rec.String(store.ColumnID),
		Type:        model.ItemTypeReservation,
		Title:       "Table Reservation",
		Description: fmt.Sprintf("Reservation at %s for %s guests", restaurant, guests),
		Status:      status,
		Time:        a.Time(rec, store.ColumnCreatedAt),
		Data: map[string]any{
			"restaurant_name":  rec.String("restaurant_name"),
			"reservation_date": rec.String("reservation_date"),
			"reservation_time": rec.String("reservation_time"),
			"guest_count":      rec["guest_count"],
			"special_requests": rec.String("special_requests"),
			"room_number":      rec.String(store.ColumnRoomNumber),
		},
	}
}
