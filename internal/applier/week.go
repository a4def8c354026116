// Package applier is the Leaderboard Applier (C5): the per-event
// pipeline that mutates player stats and every leaderboard scope an
// event participates in, adapted from the donor score manager's windowed
// aggregation but pushed down onto Redis sorted sets instead of an
// in-memory buffer.
package applier

import (
	"strconv"
	"time"
)

// Today formats the UTC calendar day an event belongs to, the key
// suffix for the daily leaderboard scope. Exported so the dispatcher's
// singleton pipeline path can derive the same key without duplicating
// the convention.
func Today(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// WeekID computes the ISO-week-style identifier used for the weekly
// leaderboard scope, using the Sunday-seed convention named in spec.md
// §4.5 rather than strict ISO-8601 week numbering: week = ceil((days
// since Jan 1 + weekday of Jan 1 + 1) / 7). Weeks here run Sunday to
// Saturday and ISO weeks run Monday to Sunday, so the two numberings
// disagree on at least one day of every week (2024-06-02, a Sunday, is
// 2024-W23 here and ISO week 22); this function is the single place that
// decides it, so every reader and writer agrees.
func WeekID(t time.Time) string {
	t = t.UTC()
	startOfYear := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	daysSinceJan1 := int(t.Sub(startOfYear).Hours() / 24)
	weekdayOfJan1 := int(startOfYear.Weekday())
	numerator := daysSinceJan1 + weekdayOfJan1 + 1
	week := (numerator + 6) / 7
	return formatWeekID(t.Year(), week)
}

func formatWeekID(year, week int) string {
	if week < 10 {
		return strconv.Itoa(year) + "-W0" + strconv.Itoa(week)
	}
	return strconv.Itoa(year) + "-W" + strconv.Itoa(week)
}
