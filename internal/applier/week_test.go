package applier

import (
	"testing"
	"time"
)

func TestToday(t *testing.T) {
	ts := time.Date(2024, time.June, 1, 23, 59, 0, 0, time.UTC)
	if got := Today(ts); got != "2024-06-01" {
		t.Fatalf("Today() = %q", got)
	}
}

func TestWeekID(t *testing.T) {
	cases := []struct {
		name string
		in   time.Time
		want string
	}{
		{"Jan1Sunday", time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC), "2023-W01"},
		{"midJune", time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC), "2024-W22"},
		{"lastDayOfLeapYear", time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC), "2024-W53"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := WeekID(tc.in); got != tc.want {
				t.Fatalf("WeekID(%s) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
