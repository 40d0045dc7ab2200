// Package wallclock provides the real-time clock.Clock used outside tests.
//
// clock.DefaultClock embeds time.Ticker and time.Timer by value, and a
// copied runtime timer cannot be stopped safely. Clock hands out tickers
// and timers that keep the pointer returned by the time package.
package wallclock

import (
	"time"

	"github.com/mixer/clock"
)

// Clock is a clock.Clock backed by the time package.
type Clock struct {
	clock.DefaultClock
}

var _ clock.Clock = Clock{}

// New returns the wall clock.
func New() clock.Clock {
	return Clock{}
}

// NewTicker returns a ticker firing every d.
func (Clock) NewTicker(d time.Duration) clock.Ticker {
	return &ticker{t: time.NewTicker(d)}
}

// NewTimer returns a timer firing once after d.
func (Clock) NewTimer(d time.Duration) clock.Timer {
	return &timer{t: time.NewTimer(d)}
}

// AfterFunc calls f in its own goroutine after d. The returned timer has
// no channel.
func (Clock) AfterFunc(d time.Duration, f func()) clock.Timer {
	return &timer{t: time.AfterFunc(d, f)}
}

type ticker struct {
	t *time.Ticker
}

func (k *ticker) Chan() <-chan time.Time { return k.t.C }

func (k *ticker) Stop() { k.t.Stop() }

type timer struct {
	t *time.Timer
}

func (m *timer) Chan() <-chan time.Time { return m.t.C }

func (m *timer) Reset(d time.Duration) bool { return m.t.Reset(d) }

func (m *timer) Stop() bool { return m.t.Stop() }
