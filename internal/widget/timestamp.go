package widget

import (
	"math"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

var agoUnits = []struct {
	d    time.Duration
	name string
}{
	{time.Minute, "minute"},
	{time.Hour, "hour"},
	{humanize.Day, "day"},
	{humanize.Week, "week"},
	{30 * humanize.Day, "month"},
	{365 * humanize.Day, "year"},
}

// TimeAgo renders t relative to now: "Just now" under a minute, then "2 minutes ago", "5 hours ago" and so
// on. The largest unit not exceeding the elapsed time is used and the count is rounded to the nearest
// whole unit, so 90 seconds reads "2 minutes ago". Clock skew that puts t slightly in the future still
// reads "Just now".
func TimeAgo(t, now time.Time) string {
	elapsed := now.Sub(t)
	if elapsed < time.Minute {
		return "Just now"
	}

	unit := agoUnits[0]
	for _, u := range agoUnits[1:] {
		if elapsed < u.d {
			break
		}
		unit = u
	}

	n := int64(math.Round(elapsed.Seconds() / unit.d.Seconds()))
	if n == 1 {
		return "1 " + unit.name + " ago"
	}
	return strconv.FormatInt(n, 10) + " " + unit.name + "s ago"
}

// FormatTimestamp renders the absolute time of a message: time of day when t falls on the same calendar
// day as now, month and day within the same year, and month, day and two digit year otherwise. Dates are
// compared in now's location.
func FormatTimestamp(t, now time.Time) string {
	t = t.In(now.Location())

	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	switch {
	case ty == ny && tm == nm && td == nd:
		return t.Format("3:04 PM")
	case ty == ny:
		return t.Format("Jan 2")
	default:
		return t.Format("Jan 2, 06")
	}
}
