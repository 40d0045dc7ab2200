package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/source"
	"github.com/nhle/guest-services/internal/store"
)

// FakeSource is a scriptable source.Source. Records carry "id", "status",
// "time" (time.Time) and optional "title" fields.
type FakeSource struct {
	ItemType model.ItemType

	mu        sync.Mutex
	records   []source.Record
	fetchErr  error
	cancelErr error
	delay     time.Duration
	lag       time.Duration
	cancelLag time.Duration
	fetches   int
	cancels   []string
}

var _ source.Source = (*FakeSource)(nil)

// NewFakeSource returns a fake for t serving recs.
func NewFakeSource(t model.ItemType, recs ...source.Record) *FakeSource {
	return &FakeSource{ItemType: t, records: recs}
}

// Rec builds a fake record.
func Rec(id, status string, ts time.Time) source.Record {
	return source.Record{"id": id, "status": status, "time": ts}
}

// SetRecords replaces the served records.
func (f *FakeSource) SetRecords(recs ...source.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = recs
}

// SetFetchError makes every fetch fail with err (nil clears it).
func (f *FakeSource) SetFetchError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

// SetCancelError makes every cancel fail with err (nil clears it).
func (f *FakeSource) SetCancelError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelErr = err
}

// SetDelay makes every fetch and cancel wait d or until ctx is done.
func (f *FakeSource) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// SetFetchLag makes every fetch read its records first and then wait d
// before returning them, like a slow response to an early read.
func (f *FakeSource) SetFetchLag(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lag = d
}

// SetCancelDelay makes every cancel wait d before it is applied.
func (f *FakeSource) SetCancelDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelLag = d
}

// Fetches returns how many fetches were served.
func (f *FakeSource) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// Cancels returns the ids passed to Cancel.
func (f *FakeSource) Cancels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancels...)
}

func (f *FakeSource) Type() model.ItemType { return f.ItemType }
func (f *FakeSource) Topic() string        { return "fake_" + string(f.ItemType) }

func (f *FakeSource) wait(ctx context.Context) error {
	f.mu.Lock()
	d := f.delay
	f.mu.Unlock()
	return sleep(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FakeSource) Fetch(ctx context.Context, _ source.Scope) ([]source.Record, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.fetches++
	if f.fetchErr != nil {
		err := f.fetchErr
		f.mu.Unlock()
		return nil, err
	}
	out := make([]source.Record, len(f.records))
	copy(out, f.records)
	lag := f.lag
	f.mu.Unlock()

	if err := sleep(ctx, lag); err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel applies the same rules as a backing table: only cancellable
// records move to cancelled.
func (f *FakeSource) Cancel(ctx context.Context, _ source.Scope, id string) error {
	key := model.ItemKey{Type: f.ItemType, ID: id}
	if err := f.wait(ctx); err != nil {
		return source.Failed(key, err)
	}
	f.mu.Lock()
	lag := f.cancelLag
	f.mu.Unlock()
	if err := sleep(ctx, lag); err != nil {
		return source.Failed(key, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, id)
	if f.cancelErr != nil {
		return f.cancelErr
	}
	for i, r := range f.records {
		if r.String(store.ColumnID) != id {
			continue
		}
		current := r.String(store.ColumnStatus)
		if !model.IsCancellable(current) {
			return source.Rejected(key, "status "+current+" is not cancellable", current)
		}
		updated := make(source.Record, len(r))
		for k, v := range r {
			updated[k] = v
		}
		updated[store.ColumnStatus] = model.StatusCancelled
		f.records[i] = updated
		return nil
	}
	return source.Rejected(key, "not found", "")
}

func (f *FakeSource) Transform(rec source.Record) model.NotificationItem {
	ts, _ := rec["time"].(time.Time)
	return model.NotificationItem{
		ID:     rec.String("id"),
		Type:   f.ItemType,
		Title:  rec.String("title"),
		Status: rec.String("status"),
		Time:   ts,
		Data:   map[string]any{"title": rec.String("title")},
	}
}
