package realtime

import "time"

// backoff is a capped exponential duration counter: min, 2*min, 4*min, ...
// up to max.
type backoff struct {
	count    int
	min, max time.Duration
}

func newBackoff(min, max time.Duration) *backoff {
	return &backoff{min: min, max: max}
}

// Next increments the count and returns the next delay.
func (b *backoff) Next() time.Duration {
	d := b.min
	for i := 0; i < b.count; i++ {
		d *= 2
		if d >= b.max {
			break
		}
	}
	b.count++
	if d > b.max {
		return b.max
	}
	return d
}

// Reset resets the count to 0.
func (b *backoff) Reset() {
	b.count = 0
}
