package lifecycle

import "time"

// Calendar answers whether the market is closed at an instant. Forex trades
// continuously except for the weekend window from Friday 21:00 UTC to
// Sunday 22:00 UTC, plus configured full-day holidays ("MM-DD", UTC).
type Calendar struct {
	holidays map[string]bool
}

// NewCalendar builds a calendar from "MM-DD" holiday dates.
func NewCalendar(holidays []string) *Calendar {
	m := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		m[h] = true
	}
	return &Calendar{holidays: m}
}

// IsClosed reports whether the market is closed at t.
func (c *Calendar) IsClosed(t time.Time) bool {
	return !c.closureEnd(t).IsZero()
}

// CoveredByClosure reports whether every instant in [from, to) falls inside
// market closures. A gap fully explained by closures needs no fetch; any
// open sliver inside the span makes it a genuine data gap.
func (c *Calendar) CoveredByClosure(from, to time.Time) bool {
	cur := from.UTC()
	for cur.Before(to) {
		end := c.closureEnd(cur)
		if end.IsZero() {
			return false
		}
		cur = end
	}
	return true
}

// closureEnd returns the end of the closure containing t, or the zero time
// when the market is open at t. Back-to-back closures are handled by the
// caller's walk.
func (c *Calendar) closureEnd(t time.Time) time.Time {
	u := t.UTC()

	switch wd := u.Weekday(); {
	case wd == time.Friday && u.Hour() >= 21:
		return time.Date(u.Year(), u.Month(), u.Day()+2, 22, 0, 0, 0, time.UTC)
	case wd == time.Saturday:
		return time.Date(u.Year(), u.Month(), u.Day()+1, 22, 0, 0, 0, time.UTC)
	case wd == time.Sunday && u.Hour() < 22:
		return time.Date(u.Year(), u.Month(), u.Day(), 22, 0, 0, 0, time.UTC)
	}

	if c.holidays[u.Format("01-02")] {
		return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}
