package stats

// This file contains helpers around daily rollover. It complements
// stats.go.

import "time"

// dateKey buckets a timestamp into its UTC date.
func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Reset clears every recorded day. Intended for tests and dev
// convenience.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.days {
		delete(t.days, k)
	}
}

// Prune drops days older than keep, so a long-lived server does not
// accumulate history it never serves.
func (t *Tracker) Prune(keep int) {
	if keep <= 0 {
		keep = 7
	}
	cutoff := dateKey(time.Now().AddDate(0, 0, -keep))
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.days {
		if k < cutoff {
			delete(t.days, k)
		}
	}
}
