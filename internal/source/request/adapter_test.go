package request

import (
	"context"
	"testing"

	"github.com/mixer/clock"
	"github.com/stretchr/testify/require"

	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/source"
	"github.com/nhle/guest-services/internal/store"
	"github.com/nhle/guest-services/tests/testutil"
)

func TestTransformDefaults(t *testing.T) {
	mock := clock.NewMockClock()
	a := NewAdapter(nil, source.WithClock(mock))

	item := a.Transform(source.Record{
		"id":         "r1",
		"category":   "Room_Service",
		"created_at": "bad",
	})

	require.Equal(t, "r1", item.ID)
	require.Equal(t, model.ItemTypeRequest, item.Type)
	require.Equal(t, "Room Service Request", item.Title)
	require.Equal(t, "Room service order placed", item.Description)
	require.Equal(t, model.StatusPending, item.Status)
	require.Equal(t, mock.Now(), item.Time)
	require.Equal(t, CategoryRoomService, item.Data["category"])
}

func TestTransformKeepsDescriptionAndUnknownCategory(t *testing.T) {
	a := NewAdapter(nil)
	item := a.Transform(source.Record{
		"id":          "r2",
		"category":    "valet",
		"description": "Car at 8am",
		"status":      "in_progress",
		"created_at":  "2024-05-01T10:00:00Z",
	})

	require.Equal(t, "Other Request", item.Title)
	require.Equal(t, "Car at 8am", item.Description)
	require.Equal(t, model.StatusInProgress, item.Status)
	require.Equal(t, CategoryOther, Category(source.Record{"category": "valet"}))
}

func TestFetchAndCancelAgainstStore(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	a := NewAdapter(s)
	scope := source.Scope{RoomNumber: "101"}

	_, err := s.Insert(ctx, store.TableServiceRequests, store.Row{
		"id": "r1", "room_number": "101", "category": "laundry", "status": "in_progress",
	})
	require.NoError(t, err)

	recs, err := a.Fetch(ctx, scope)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "Laundry Request", a.Transform(recs[0]).Title)

	require.NoError(t, a.Cancel(ctx, scope, "r1"))
	require.True(t, source.IsCancelRejected(a.Cancel(ctx, scope, "r1")))
	require.Equal(t, store.TableServiceRequests, a.Topic())
}
