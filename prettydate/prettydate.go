// Package prettydate renders a point in time as a short relative phrase,
// e.g. "2 months ago" instead of "Apr 10th, 2014".
package prettydate

import (
	"fmt"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// Format returns a human friendly phrase for how long before now t was:
// "just now", "an hour ago", "Yesterday", "3 months ago" and so on. The
// output is deterministic for a fixed now, which is also what makes it
// testable. A zero t is treated as now, a t in the future yields "".
func Format(now, t time.Time) string {
	if t.IsZero() {
		t = now
	}

	elapsed := int64(now.Sub(t).Seconds())
	if elapsed < 0 {
		return ""
	}

	// Whole-day and within-day buckets, split the way a timedelta splits
	// into days and leftover seconds.
	dayDiff := elapsed / secondsPerDay
	secondDiff := elapsed - dayDiff*secondsPerDay

	switch {
	case dayDiff == 0:
		switch {
		case secondDiff < 10:
			return "just now"
		case secondDiff < 60:
			return fmt.Sprintf("%d seconds ago", secondDiff)
		case secondDiff < 120:
			return "a minute ago"
		case secondDiff < 3600:
			return fmt.Sprintf("%d minutes ago", secondDiff/60)
		case secondDiff < 7200:
			return "an hour ago"
		default:
			return fmt.Sprintf("%d hours ago", secondDiff/3600)
		}
	case dayDiff == 1:
		return "Yesterday"
	case dayDiff < 7:
		return fmt.Sprintf("%d days ago", dayDiff)
	case dayDiff < 31:
		return fmt.Sprintf("%d weeks ago", dayDiff/7)
	case dayDiff < 365:
		return fmt.Sprintf("%d months ago", dayDiff/30)
	default:
		return fmt.Sprintf("%d years ago", dayDiff/365)
	}
}
