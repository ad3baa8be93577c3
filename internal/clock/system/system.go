// Package system provides a real clock implementation.
package system

import "time"

// Clock implements the Clock interfaces used by the store, the error log and
// the publisher. It also satisfies zapcore.Clock so structured log timestamps
// come from the same source.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// NewTicker returns a standard ticker.
func (Clock) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}
