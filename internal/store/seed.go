package store

import (
	"context"
	"fmt"
	"time"
)

// SeedOwner identifies whose demo rows Seed inserts.
type SeedOwner struct {
	GuestID    string
	RoomNumber string
}

// Seed inserts one demo row per table for owner, stamped a few minutes
// apart ending at base. It returns the inserted rows in insertion order.
func (s *SQLiteStore) Seed(ctx context.Context, owner SeedOwner, base time.Time) ([]Row, error) {
	stamp := func(minutesAgo int) string {
		return base.Add(-time.Duration(minutesAgo) * time.Minute).UTC().Format(time.RFC3339Nano)
	}
	day := base.AddDate(0, 0, 1).Format("2006-01-02")

	demo := []struct {
		table string
		row   Row
	}{
		{TableServiceRequests, Row{
			"category":    "housekeeping",
			"description": "Extra towels, please",
			"created_at":  stamp(40),
		}},
		{TableTableReservations, Row{
			"restaurant_name":  "The Terrace",
			"reservation_date": day,
			"reservation_time": "19:30",
			"guest_count":      2,
			"status":           "confirmed",
			"created_at":       stamp(30),
		}},
		{TableSpaBookings, Row{
			"service_name": "Deep Tissue Massage",
			"booking_date": day,
			"booking_time": "10:00",
			"created_at":   stamp(20),
		}},
		{TableEventReservations, Row{
			"event_title": "Wine Tasting",
			"event_date":  day,
			"guest_count": 2,
			"created_at":  stamp(10),
		}},
		{TableChatMessages, Row{
			"sender_type": "staff",
			"content":     "Welcome! Let us know if you need anything during your stay.",
			"created_at":  stamp(0),
		}},
	}

	out := make([]Row, 0, len(demo))
	for _, d := range demo {
		d.row[ColumnGuestID] = owner.GuestID
		d.row[ColumnRoomNumber] = owner.RoomNumber
		row, err := s.Insert(ctx, d.table, d.row)
		if err != nil {
			return out, fmt.Errorf("seeding %s: %w", d.table, err)
		}
		out = append(out, row)
	}
	return out, nil
}
