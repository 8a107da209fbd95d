package port

import "time"

// Clock injects the time source so expiration, delivery estimates and
// age calculations are deterministic in tests.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads the wall clock.
func SystemClock() Clock {
	return ClockFunc(time.Now)
}
