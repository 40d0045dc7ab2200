// Package badge derives unread counts from a feed and the viewer's
// per-section watermarks.
package badge

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/mixer/clock"

	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/wallclock"
	"github.com/nhle/guest-services/internal/watermark"
)

// DefaultCap is the largest count displayed before "N+".
const DefaultCap = 9

// Counts is the unread count per section and their sum.
type Counts struct {
	Sections map[string]int `json:"sections"`
	Total    int            `json:"total"`
}

// Sorted returns the section keys in lexical order.
func (c Counts) Sorted() []string {
	keys := make([]string, 0, len(c.Sections))
	for k := range c.Sections {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Counter computes unread counts and advances watermarks.
type Counter struct {
	marks *watermark.Store
	clock clock.Clock
	known []string
	cap   int
}

// Option configures a Counter.
type Option func(*Counter)

// WithClock sets the clock used when marking sections seen.
func WithClock(c clock.Clock) Option {
	return func(b *Counter) { b.clock = c }
}

// WithSections registers sections that always appear in Counts, even
// when the feed has no items for them.
func WithSections(sections ...string) Option {
	return func(b *Counter) { b.known = append(b.known, sections...) }
}

// WithCap sets the display cap.
func WithCap(n int) Option {
	return func(b *Counter) {
		if n > 0 {
			b.cap = n
		}
	}
}

// New creates a Counter over marks.
func New(marks *watermark.Store, opts ...Option) *Counter {
	b := &Counter{
		marks: marks,
		clock: wallclock.New(),
		cap:   DefaultCap,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// sections returns the known sections followed by any others in items.
func (b *Counter) sections(items []model.NotificationItem) []string {
	seen := make(map[string]bool, len(b.known))
	out := make([]string, 0, len(b.known))
	for _, s := range b.known {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, it := range items {
		if !seen[it.SectionKey] {
			seen[it.SectionKey] = true
			out = append(out, it.SectionKey)
		}
	}
	return out
}

// Counts returns, per section, the number of items newer than the
// section's watermark.
func (b *Counter) Counts(items []model.NotificationItem) (Counts, error) {
	marks, err := b.marks.Snapshot(b.sections(items))
	if err != nil {
		return Counts{}, fmt.Errorf("reading watermarks: %w", err)
	}

	c := Counts{Sections: make(map[string]int, len(marks))}
	for section := range marks {
		c.Sections[section] = 0
	}
	for _, it := range items {
		if it.Time.After(marks[it.SectionKey]) {
			c.Sections[it.SectionKey]++
			c.Total++
		}
	}
	return c, nil
}

// MarkSectionSeen advances one section's watermark to now.
func (b *Counter) MarkSectionSeen(section string) error {
	if err := b.marks.Set(section, b.clock.Now()); err != nil {
		return fmt.Errorf("marking %s seen: %w", section, err)
	}
	return nil
}

// MarkAllSeen advances every section present in items, and every known
// section, to now in one write.
func (b *Counter) MarkAllSeen(items []model.NotificationItem) error {
	if err := b.marks.SetAll(b.sections(items), b.clock.Now()); err != nil {
		return fmt.Errorf("marking all seen: %w", err)
	}
	return nil
}

// Display renders n for a badge using the Counter's cap.
func (b *Counter) Display(n int) string {
	return Display(n, b.cap)
}

// Display renders n, or "<cap>+" when n exceeds cap. Zero renders as "".
func Display(n, cap int) string {
	switch {
	case n <= 0:
		return ""
	case cap > 0 && n > cap:
		return strconv.Itoa(cap) + "+"
	default:
		return strconv.Itoa(n)
	}
}
