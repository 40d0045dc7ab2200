package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/source"
	"github.com/nhle/guest-services/internal/store"
	"github.com/nhle/guest-services/tests/testutil"
)

func TestFetchOnlyOtherParty(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	for _, r := range []store.Row{
		{"id": "m1", "guest_id": "g1", "sender_type": "staff", "content": "Welcome!"},
		{"id": "m2", "guest_id": "g1", "sender_type": "guest", "content": "Thanks"},
	} {
		_, err := s.Insert(ctx, store.TableChatMessages, r)
		require.NoError(t, err)
	}

	recs, err := NewAdapter(s, SenderStaff).Fetch(ctx, source.Scope{GuestID: "g1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "m1", recs[0].String("id"))

	recs, err = NewAdapter(s, SenderGuest).Fetch(ctx, source.Scope{GuestID: "g1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "m2", recs[0].String("id"))
}

func TestCancelAlwaysRejects(t *testing.T) {
	err := NewAdapter(nil, SenderStaff).Cancel(context.Background(), source.Scope{GuestID: "g1"}, "m1")
	require.True(t, source.IsCancelRejected(err))
}

func TestTransformPreview(t *testing.T) {
	a := NewAdapter(nil, SenderGuest)
	long := strings.Repeat("é", 100)

	item := a.Transform(source.Record{"id": "m1", "room_number": "101", "content": long})
	require.Equal(t, model.ItemTypeChat, item.Type)
	require.Equal(t, "New message from room 101", item.Title)
	require.Equal(t, model.StatusSent, item.Status)
	require.Len(t, []rune(item.Description), previewRunes)
	require.True(t, strings.HasSuffix(item.Description, "…"))

	require.Equal(t, "(no content)", preview("  "))
}
