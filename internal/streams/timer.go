package streams

import "time"

// TimeRounding is the number of decimal digits kept when reporting
// elapsed milliseconds.
const TimeRounding = 1

// TimeEpsilonMS is added to elapsed time before it's used as a divisor, so
// a request that lands at t==0 doesn't produce a division by zero when
// computing a launch rate.
const TimeEpsilonMS = 0.01

// Timer gives elapsed time in milliseconds since construction. It is the
// single shared clock the three instrumented streams stamp entries with.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer at the current instant.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Now returns milliseconds elapsed since the timer was created, rounded to
// TimeRounding digits.
func (t *Timer) Now() float64 {
	elapsed := time.Since(t.start).Seconds() * 1000.0

	return roundTo(elapsed, TimeRounding)
}

func roundTo(v float64, digits int) float64 {
	scale := 1.0
	for range digits {
		scale *= 10
	}

	return float64(int64(v*scale+0.5)) / scale
}
