// Package request adapts the service_requests table: housekeeping,
// maintenance, room service and other guest requests.
package request

import (
	"strings"

	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/source"
	"github.com/nhle/guest-services/internal/store"
)

// Request categories as stored in the category column.
const (
	CategoryHousekeeping = "housekeeping"
	CategoryMaintenance  = "maintenance"
	CategoryRoomService  = "room_service"
	CategoryConcierge    = "concierge"
	CategoryLaundry      = "laundry"
	CategoryOther        = "other"
)

// defaultDescriptions are shown when a request has no description.
var defaultDescriptions = map[string]string{
	CategoryHousekeeping: "Housekeeping service requested",
	CategoryMaintenance:  "Maintenance issue reported",
	CategoryRoomService:  "Room service order placed",
	CategoryConcierge:    "Concierge assistance requested",
	CategoryLaundry:      "Laundry pickup requested",
	CategoryOther:        "Service request submitted",
}

// Adapter implements source.Source for service requests.
type Adapter struct {
	*source.Table
}

var _ source.Source = (*Adapter)(nil)

// NewAdapter creates a service request adapter over backend.
func NewAdapter(backend store.Backend, opts ...source.TableOption) *Adapter {
	return &Adapter{
		Table: source.NewTable(backend, store.TableServiceRequests, model.ItemTypeRequest, opts...),
	}
}

// Category returns the normalized category of a raw request record.
func Category(rec source.Record) string {
	c := strings.ToLower(strings.TrimSpace(rec.String("category")))
	if _, ok := defaultDescriptions[c]; ok {
		return c
	}
	return CategoryOther
}

// Transform maps a service_requests row to a NotificationItem.
func (a *Adapter) Transform(rec source.Record) model.NotificationItem {
	category := Category(rec)

	description := strings.TrimSpace(rec.String("description"))
	if description == "" {
		description = defaultDescriptions[category]
	}

	status := rec.String(store.ColumnStatus)
	if status == "" {
		status = model.StatusPending
	}

	return model.NotificationItem{
		ID:          rec.String(store.ColumnID),
		Type:        model.ItemTypeRequest,
		Title:       categoryLabel(category) + " Request",
		Description: description,
		Status:      status,
		Time:        a.Time(rec, store.ColumnCreatedAt),
		Data: map[string]any{
			"category":    category,
			"room_number": rec.String(store.ColumnRoomNumber),
		},
	}
}

// categoryLabel turns "room_service" into "Room Service".
func categoryLabel(category string) string {
	words := strings.Split(category, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
