// Package feed merges every source's records into one ordered,
// deduplicated notification feed per viewer, and caches the result until
// it is invalidated.
package feed

import (
	"fmt"
	"sort"
	"time"

	"github.com/nhle/guest-services/internal/model"
)

// Feed is one aggregation result. A Feed is never modified after it is
// published; a newer pass replaces it wholesale.
type Feed struct {
	// Items are sorted by Time descending.
	Items []model.NotificationItem

	// Failures holds a *source.SourceUnavailableError per failed source.
	Failures map[model.ItemType]error

	FetchedAt time.Time

	// Generation is the invalidation count the pass started from.
	Generation uint64
}

// Sections returns the distinct section keys present in the feed, in
// first-seen order.
func (f Feed) Sections() []string {
	seen := make(map[string]bool)
	var out []string
	for _, it := range f.Items {
		if !seen[it.SectionKey] {
			seen[it.SectionKey] = true
			out = append(out, it.SectionKey)
		}
	}
	return out
}

// Find returns the item with the given key.
func (f Feed) Find(key model.ItemKey) (model.NotificationItem, bool) {
	for _, it := range f.Items {
		if it.Key() == key {
			return it, true
		}
	}
	return model.NotificationItem{}, false
}

// Merge concatenates the per-source item lists in order, drops duplicate
// (type, id) pairs keeping the later record in the earlier position, and
// stable-sorts the result by Time descending.
func Merge(lists ...[]model.NotificationItem) []model.NotificationItem {
	total := 0
	for _, l := range lists {
		total += len(l)
	}

	out := make([]model.NotificationItem, 0, total)
	index := make(map[model.ItemKey]int, total)
	for _, l := range lists {
		for _, it := range l {
			if i, ok := index[it.Key()]; ok {
				out[i] = it
				continue
			}
			index[it.Key()] = len(out)
			out = append(out, it)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.After(out[j].Time)
	})
	return out
}

// Sectioner assigns an item to a section.
type Sectioner func(model.NotificationItem) string

// SectionByType groups items by their type (the guest view).
func SectionByType(it model.NotificationItem) string {
	return model.TypeSection(it.Type)
}

// SectionByCategory groups requests by service category and everything
// else by type (the staff console).
func SectionByCategory(it model.NotificationItem) string {
	if it.Type == model.ItemTypeRequest {
		if c, ok := it.Data["category"].(string); ok && c != "" {
			return model.SectionRequests + ":" + c
		}
	}
	return SectionByType(it)
}

// LinkFunc builds the deep link of an item.
type LinkFunc func(model.NotificationItem) string

// DefaultLink links to /<type section>/<id>.
func DefaultLink(it model.NotificationItem) string {
	return fmt.Sprintf("/%s/%s", model.TypeSection(it.Type), it.ID)
}
