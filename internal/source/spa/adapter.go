// Package spa adapts the spa_bookings table.
package spa

import (
	"strings"

	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/source"
	"github.com/nhle/guest-services/internal/store"
)

// Adapter implements source.Source for spa bookings.
type Adapter struct {
	*source.Table
}

var _ source.Source = (*Adapter)(nil)

// NewAdapter creates a spa booking adapter over backend.
func NewAdapter(backend store.Backend, opts ...source.TableOption) *Adapter {
	return &Adapter{
		Table: source.NewTable(backend, store.TableSpaBookings, model.ItemTypeSpaBooking, opts...),
	}
}

// Transform maps a spa_bookings row to a NotificationItem.
func (a *Adapter) Transform(rec source.Record) model.NotificationItem {
	service := strings.TrimSpace(rec.String("service_name"))
	if service == "" {
		service = "Spa treatment"
	}

	description := service
	if date := rec.String("booking_date"); date != "" {
		description += " on " + date
	}
	if at := rec.String("booking_time"); at != "" {
		description += " at " + at
	}

	status := rec.String(store.ColumnStatus)
	if status == "" {
		status = model.StatusPending
	}

	return model.NotificationItem{
		ID:          rec.String(store.ColumnID),
		Type:        model.ItemTypeSpaBooking,
		Title:       "Spa Booking",
		Description: description,
		Status:      status,
		Time:        a.Time(rec, store.ColumnCreatedAt),
		Data: map[string]any{
			"service_name": rec.String("service_name"),
			"booking_date": rec.String("booking_date"),
			"booking_time": rec.String("booking_time"),
			"room_number":  rec.String(store.ColumnRoomNumber),
		},
	}
}
