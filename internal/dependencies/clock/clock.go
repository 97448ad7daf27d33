package clock

import "time"

// Clock provides time operations that can be mocked for testing
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock
type RealClock struct{}

// New creates a new RealClock
func New() *RealClock {
	return &RealClock{}
}

// Now returns the current time
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// Epoch converts a time to fractional seconds since the Unix epoch, the wire format for instants
func Epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
