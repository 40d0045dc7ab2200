package store

import (
	"fmt"
	"strconv"
)

// schema lists the columns of every table a Backend may touch.
var schema = map[string][]string{
	TableServiceRequests: {
		"id", "guest_id", "room_number", "category", "description",
		"status", "created_at", "updated_at",
	},
	TableTableReservations: {
		"id", "guest_id", "room_number", "restaurant_name",
		"reservation_date", "reservation_time", "guest_count",
		"special_requests", "status", "created_at", "updated_at",
	},
	TableSpaBookings: {
		"id", "guest_id", "room_number", "service_name",
		"booking_date", "booking_time", "status", "created_at", "updated_at",
	},
	TableEventReservations: {
		"id", "guest_id", "room_number", "event_title", "event_date",
		"guest_count", "status", "created_at", "updated_at",
	},
	TableChatMessages: {
		"id", "guest_id", "room_number", "sender_type", "content",
		"status", "created_at",
	},
}

// Tables returns the names of all backing tables.
func Tables() []string {
	return []string{
		TableServiceRequests,
		TableTableReservations,
		TableSpaBookings,
		TableEventReservations,
		TableChatMessages,
	}
}

// hasColumn reports whether table exists and has column.
func hasColumn(table, column string) bool {
	for _, c := range schema[table] {
		if c == column {
			return true
		}
	}
	return false
}

// checkColumns validates table and every referenced column against schema.
func checkColumns(table string, columns ...string) error {
	if _, ok := schema[table]; !ok {
		return fmt.Errorf("%w: table %q", ErrUnknownTable, table)
	}
	for _, c := range columns {
		if !hasColumn(table, c) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownTable, table, c)
		}
	}
	return nil
}

func toString(v any) string {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
