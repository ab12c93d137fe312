package winnt

import "time"

const (
	ticksPerDay    = 864000000000
	ticksPerHour   = 36000000000
	ticksPerMinute = 600000000
	ticksPerSecond = 10000000
)

var filetimeEpoch = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

// Filetime converts a Windows FILETIME value, a count of 100-nanosecond
// ticks since 1601-01-01 UTC, to a time.Time. A raw value of zero means
// "never" and yields the zero time.
//
// Whole days are applied through the calendar (AddDate) and only the
// intra-day remainder is added as a duration: the full tick count does
// not fit in a time.Duration, and naive duration arithmetic would not
// survive four centuries of leap days anyway.
func Filetime(ticks uint64) time.Time {
	if ticks == 0 {
		return time.Time{}
	}
	days := ticks / ticksPerDay
	rem := ticks % ticksPerDay
	hours := rem / ticksPerHour
	rem %= ticksPerHour
	minutes := rem / ticksPerMinute
	rem %= ticksPerMinute
	seconds := rem / ticksPerSecond
	rem %= ticksPerSecond
	micros := rem / 10

	t := filetimeEpoch.AddDate(0, 0, int(days))
	return t.Add(time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(micros)*time.Microsecond)
}
