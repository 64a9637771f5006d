package timing

import "time"

// Clock abstracts the current time so resolver behavior is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// FixedClock returns a Clock frozen at the given instant.
func FixedClock(at time.Time) Clock { return fixedClock{at: at} }

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }
