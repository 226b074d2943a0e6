// Package clock provides the time source used for every expiry computation.
package clock

import "time"

// Clock returns the current instant.
type Clock func() time.Time

// System returns a Clock reading UTC wall-clock time.
func System() Clock {
	return func() time.Time { return time.Now().UTC() }
}

// Fixed returns a Clock that always reports t.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}

// Now calls c, falling back to the system clock when c is nil.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}
