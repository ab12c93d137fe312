package winnt

import (
	"testing"
	"time"
)

func TestFiletime(t *testing.T) {
	tests := []struct {
		name  string
		ticks uint64
		want  time.Time
	}{
		{"epoch plus one day", ticksPerDay, time.Date(1601, time.January, 2, 0, 0, 0, 0, time.UTC)},
		{"one microsecond", 10, time.Date(1601, time.January, 1, 0, 0, 0, 1000, time.UTC)},
		{"intra day remainder", ticksPerDay + 1*ticksPerHour + 2*ticksPerMinute + 3*ticksPerSecond + 40,
			time.Date(1601, time.January, 2, 1, 2, 3, 4000, time.UTC)},
		// 146097 days is exactly four hundred Gregorian years; a naive
		// 365.25-day year would land a day off.
		{"four hundred years of leap days", 146097 * ticksPerDay, time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)},
		// A value in the range real dumps carry (2004-ish).
		{"feb 29 2004", 147251 * ticksPerDay, time.Date(2004, time.February, 29, 0, 0, 0, 0, time.UTC)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := Filetime(test.ticks)
			if !got.Equal(test.want) {
				t.Errorf("Filetime(%d) = %v, want %v", test.ticks, got, test.want)
			}
		})
	}
}

func TestFiletimeZeroMeansNever(t *testing.T) {
	if got := Filetime(0); !got.IsZero() {
		t.Errorf("Filetime(0) = %v, want the zero time", got)
	}
}
