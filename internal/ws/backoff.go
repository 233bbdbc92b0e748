package ws

import "time"

// Backoff yields the reconnect schedule: delays double from Base up to
// Max, and after Attempts tries Next reports false.
type Backoff struct {
	Base     time.Duration
	Max      time.Duration
	Attempts int

	tries int
}

// DefaultBackoff matches the client defaults: 1s doubling to a 30s cap,
// ten attempts before giving up.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: 30 * time.Second, Attempts: 10}
}

// Next returns the delay before the next attempt, or false when the
// attempt budget is spent.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.tries >= b.Attempts {
		return 0, false
	}
	d := b.Base << uint(b.tries)
	if d <= 0 || d > b.Max {
		d = b.Max
	}
	b.tries++
	return d, true
}

// Reset rearms the schedule after a successful connect.
func (b *Backoff) Reset() { b.tries = 0 }
