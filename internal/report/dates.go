package report

import (
	"fmt"
	"time"
)

// ParseBound parses a query bound given as YYYY-MM-DD or RFC 3339. A bare
// date used as an upper bound covers the whole day, so it becomes the
// following midnight (bounds are half-open). Empty input yields the zero time.
func ParseBound(s string, upper bool, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	if upper {
		d = d.AddDate(0, 0, 1)
	}
	return d, nil
}

// DayBounds returns the half-open [start, end) of the calendar day containing t in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
