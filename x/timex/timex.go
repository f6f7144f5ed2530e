package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Units scales a count of abstract time units to a duration.
// A non-positive unit is coerced to one second.
func Units(n float64, unit time.Duration) time.Duration {
	if unit <= 0 {
		unit = time.Second
	}
	return time.Duration(n * float64(unit))
}
