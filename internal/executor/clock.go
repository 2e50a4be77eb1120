package executor

import "time"

// Clock supplies monotonic time and blocking sleeps.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// realClock uses the runtime clock; time.Now carries a monotonic reading.
type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock returns the wall clock used outside tests.
func RealClock() Clock {
	return realClock{}
}
