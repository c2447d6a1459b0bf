// Package expiry answers date questions about card expiration.
//
// A card carries a full expiration date and is usable through the end of
// that day; it counts as expired only once the date is strictly in the
// past. Expiry is always derived from the date, never stored as status.
package expiry

import "time"

// IsExpired reports whether the expiration date lies strictly before the
// calendar day of now. A card expiring today is still usable.
func IsExpired(expiration, now time.Time) bool {
	return dateOf(expiration).Before(dateOf(now))
}

// InFuture reports whether the expiration date is strictly after the
// calendar day of now. Creation requires this.
func InFuture(expiration, now time.Time) bool {
	return dateOf(expiration).After(dateOf(now))
}

// ReissueDue reports whether now falls within windowDays before the
// expiration date, inclusive on both ends. Used by the reissue sweep.
func ReissueDue(expiration, now time.Time, windowDays int) bool {
	exp := dateOf(expiration)
	day := dateOf(now)
	start := exp.AddDate(0, 0, -windowDays)
	return !day.Before(start) && !day.After(exp)
}

// dateOf truncates t to its calendar day in t's own location.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
