package model

import "time"

// ItemType is the discriminant of a NotificationItem. It selects both the
// transform applied to a raw record and the source used to cancel it.
type ItemType string

const (
	ItemTypeRequest          ItemType = "request"
	ItemTypeReservation      ItemType = "reservation"
	ItemTypeSpaBooking       ItemType = "spa_booking"
	ItemTypeEventReservation ItemType = "event_reservation"
	ItemTypeChat             ItemType = "chat"
)

// ItemTypes lists every known item type in default registration order.
var ItemTypes = []ItemType{
	ItemTypeRequest,
	ItemTypeReservation,
	ItemTypeSpaBooking,
	ItemTypeEventReservation,
	ItemTypeChat,
}

// ParseItemType converts a user-provided string into an ItemType.
func ParseItemType(s string) (ItemType, bool) {
	for _, t := range ItemTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Status values. Vocabularies differ per item type and are not normalized:
// requests use pending/in_progress/completed/cancelled, bookings use
// pending/confirmed/completed/cancelled and chat uses sent/read.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusConfirmed  = "confirmed"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusSent       = "sent"
	StatusRead       = "read"
)

// cancellable is the set of statuses from which a cancel may be attempted.
var cancellable = map[string]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusConfirmed:  true,
}

// CancellableStatuses returns the cancellable statuses in a stable order.
func CancellableStatuses() []string {
	return []string{StatusPending, StatusInProgress, StatusConfirmed}
}

// IsCancellable reports whether an item in the given status may be cancelled.
func IsCancellable(status string) bool {
	return cancellable[status]
}

// IsTerminal reports whether status is a final state.
func IsTerminal(status string) bool {
	return status == StatusCancelled || status == StatusCompleted
}

// ItemKey identifies an item across all sources.
type ItemKey struct {
	Type ItemType
	ID   string
}

func (k ItemKey) String() string {
	return string(k.Type) + "/" + k.ID
}

// NotificationItem is the canonical merged record shown in a viewer's feed.
// Items are derived on every aggregation pass and never persisted.
type NotificationItem struct {
	// ID is unique within its Type.
	ID string `json:"id"`

	// Type drives both transformation and cancel dispatch.
	Type ItemType `json:"type"`

	Title       string `json:"title"`
	Description string `json:"description"`

	// Status is the source-native status string.
	Status string `json:"status"`

	// Time is the creation or event time of the record.
	Time time.Time `json:"time"`

	// SectionKey groups items for watermark and badge lookups.
	SectionKey string `json:"section_key"`

	// Link is a deep link to the detail view. Opaque to the engine.
	Link string `json:"link"`

	// Data is the source-specific payload, passed through untouched.
	Data map[string]any `json:"data,omitempty"`
}

// Key returns the dedup/dispatch key of the item.
func (n NotificationItem) Key() ItemKey {
	return ItemKey{Type: n.Type, ID: n.ID}
}

// Section keys used when items are grouped by type.
const (
	SectionRequests = "requests"
	SectionDining   = "dining"
	SectionSpa      = "spa"
	SectionEvents   = "events"
	SectionChat     = "chat"
)

// TypeSection returns the default section for an item type.
func TypeSection(t ItemType) string {
	switch t {
	case ItemTypeRequest:
		return SectionRequests
	case ItemTypeReservation:
		return SectionDining
	case ItemTypeSpaBooking:
		return SectionSpa
	case ItemTypeEventReservation:
		return SectionEvents
	case ItemTypeChat:
		return SectionChat
	}
	return string(t)
}
