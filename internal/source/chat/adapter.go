// Package chat adapts the chat_messages table. Only messages sent by the
// other party surface in a viewer's feed.
package chat

import (
	"context"
	"strings"

	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/source"
	"github.com/nhle/guest-services/internal/store"
)

// Sender types.
const (
	SenderGuest = "guest"
	SenderStaff = "staff"
)

// previewRunes is the longest message preview used as a description.
const previewRunes = 80

// Adapter implements source.Source for chat messages.
type Adapter struct {
	*source.Table
	from string
}

var _ source.Source = (*Adapter)(nil)

// NewAdapter creates a chat adapter showing messages sent by from
// ("staff" for guest viewers, "guest" for the staff console).
func NewAdapter(backend store.Backend, from string, opts ...source.TableOption) *Adapter {
	opts = append(opts, source.WithFilter(store.Eq("sender_type", from)))
	return &Adapter{
		Table: source.NewTable(backend, store.TableChatMessages, model.ItemTypeChat, opts...),
		from:  from,
	}
}

// Cancel always rejects: messages have no cancellable state.
func (a *Adapter) Cancel(_ context.Context, _ source.Scope, id string) error {
	return source.Rejected(model.ItemKey{Type: model.ItemTypeChat, ID: id}, "messages cannot be cancelled", "")
}

// Transform maps a chat_messages row to a NotificationItem.
func (a *Adapter) Transform(rec source.Record) model.NotificationItem {
	status := rec.String(store.ColumnStatus)
	if status == "" {
		status = model.StatusSent
	}

	title := "New message from staff"
	if a.from == SenderGuest {
		title = "New message from guest"
		if room := rec.String(store.ColumnRoomNumber); room != "" {
			title = "New message from room " + room
		}
	}

	return model.NotificationItem{
		ID:          rec.String(store.ColumnID),
		Type:        model.ItemTypeChat,
		Title:       title,
		Description: preview(rec.String("content")),
		Status:      status,
		Time:        a.Time(rec, store.ColumnCreatedAt),
		Data: map[string]any{
			"sender_type": rec.String("sender_type"),
			"content":     rec.String("content"),
			"room_number": rec.String(store.ColumnRoomNumber),
		},
	}
}

// preview trims content to previewRunes runes.
func preview(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return "(no content)"
	}
	r := []rune(content)
	if len(r) <= previewRunes {
		return content
	}
	return string(r[:previewRunes-1]) + "…"
}
