// Package clock provides the time source shared by the recorder and the
// transport.
package clock

import "time"

// Clock tells the current time and waits for durations to pass.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Real is the wall clock.
type Real struct{}

// Now returns time.Now.
func (Real) Now() time.Time {
	return time.Now()
}

// After returns time.After.
func (Real) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Since returns seconds elapsed since t on c.
func Since(c Clock, t time.Time) float64 {
	return c.Now().Sub(t).Seconds()
}
