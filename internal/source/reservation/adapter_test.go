package reservation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/source"
)

func TestTransform(t *testing.T) {
	a := NewAdapter(nil)

	item := a.Transform(source.Record{
		"id":               "v1",
		"restaurant_name":  "Azure",
		"guest_count":      int64(4),
		"reservation_date": "2024-05-02",
		"status":           "confirmed",
		"created_at":       "2024-05-01T10:00:00Z",
	})

	require.Equal(t, model.ItemTypeReservation, item.Type)
	require.Equal(t, "Table Reservation", item.Title)
	require.Equal(t, "Reservation at Azure for 4 guests", item.Description)
	require.Equal(t, model.StatusConfirmed, item.Status)
	require.Equal(t, int64(4), item.Data["guest_count"])
	require.Equal(t, "2024-05-02", item.Data["reservation_date"])
}

func TestTransformDefaults(t *testing.T) {
	item := NewAdapter(nil).Transform(source.Record{"id": "v2", "created_at": "2024-05-01"})
	require.Equal(t, "Reservation at the restaurant for 1 guests", item.Description)
	require.Equal(t, model.StatusPending, item.Status)
}
