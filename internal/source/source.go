package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/store"
)

// ErrEmptyScope is returned when a scope names neither a guest nor a room.
var ErrEmptyScope = errors.New("scope has neither guest id nor room number")

// Scope identifies whose records a source may read or mutate.
type Scope struct {
	GuestID    string
	RoomNumber string
}

// ScopeFor returns the scope of a viewer.
func ScopeFor(v model.Viewer) Scope {
	return Scope{GuestID: v.GuestID, RoomNumber: v.RoomNumber}
}

// OwnerCond returns the owner predicate for the scope: the guest id when
// known, otherwise the room number.
func (s Scope) OwnerCond() (store.Cond, error) {
	switch {
	case s.GuestID != "":
		return store.Eq(store.ColumnGuestID, s.GuestID), nil
	case s.RoomNumber != "":
		return store.Eq(store.ColumnRoomNumber, s.RoomNumber), nil
	default:
		return store.Cond{}, ErrEmptyScope
	}
}

// Record is one raw backend row, in the source's native field names.
type Record = store.Row

// CancelKind classifies a cancel failure.
type CancelKind string

const (
	// CancelRejected means the record is not cancellable or not owned.
	// Retrying will not help.
	CancelRejected CancelKind = "rejected"

	// CancelFailed means the backend could not be reached or errored.
	// The call may be retried.
	CancelFailed CancelKind = "failed"
)

// CancelError is returned by Source.Cancel and the dispatcher.
type CancelError struct {
	Kind   CancelKind
	Key    model.ItemKey
	Reason string

	// Current is the backend-reported status when the record was found in
	// a non-cancellable state.
	Current string

	Err error
}

func (e *CancelError) Error() string {
	msg := fmt.Sprintf("cancel %s %s", e.Key, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CancelError) Unwrap() error {
	return e.Err
}

// Retryable reports whether retrying the cancel may succeed.
func (e *CancelError) Retryable() bool {
	return e.Kind == CancelFailed
}

// Rejected builds a CancelRejected error.
func Rejected(key model.ItemKey, reason, current string) *CancelError {
	return &CancelError{Kind: CancelRejected, Key: key, Reason: reason, Current: current}
}

// Failed builds a CancelFailed error wrapping err.
func Failed(key model.ItemKey, err error) *CancelError {
	return &CancelError{Kind: CancelFailed, Key: key, Err: err}
}

// AsCancelError extracts a CancelError from err's chain.
func AsCancelError(err error) (*CancelError, bool) {
	var ce *CancelError
	ok := errors.As(err, &ce)
	return ce, ok
}

// IsCancelRejected reports whether err (or any error in its chain) is a
// rejected cancel.
func IsCancelRejected(err error) bool {
	ce, ok := AsCancelError(err)
	return ok && ce.Kind == CancelRejected
}

// IsCancelFailed reports whether err (or any error in its chain) is a
// retryable cancel failure.
func IsCancelFailed(err error) bool {
	ce, ok := AsCancelError(err)
	return ok && ce.Kind == CancelFailed
}

// SourceUnavailableError reports that one source's fetch failed during an
// aggregation pass.
type SourceUnavailableError struct {
	Type model.ItemType
	Err  error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Type, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// IsSourceUnavailable reports whether err (or any error in its chain) is a
// SourceUnavailableError.
func IsSourceUnavailable(err error) bool {
	var su *SourceUnavailableError
	return errors.As(err, &su)
}

// Source defines the contract every entity adapter implements.
type Source interface {
	// Type returns the item type this source produces.
	Type() model.ItemType

	// Topic returns the backing table or channel to watch for changes.
	Topic() string

	// Fetch returns the scope's records. Nothing found is an empty slice,
	// never an error.
	Fetch(ctx context.Context, scope Scope) ([]Record, error)

	// Cancel moves the record to its terminal cancelled state. It returns a
	// *CancelError when the record is not owned, not cancellable, or the
	// backend fails.
	Cancel(ctx context.Context, scope Scope, id string) error

	// Transform maps a raw record to a NotificationItem. SectionKey and
	// Link are left for the aggregator to fill.
	Transform(rec Record) model.NotificationItem
}
