package timeutil

import (
	"sync/atomic"
	"time"
)

// location is the business time zone. "Today" for due dates, paid dates and
// document-number years is evaluated here, not on the server clock's zone.
var location atomic.Pointer[time.Location]

func init() {
	location.Store(time.UTC)
}

// SetLocation switches the business time zone, e.g. "America/Chicago".
// Unknown names leave the current zone in place and return the error.
func SetLocation(name string) error {
	if name == "" {
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return err
	}
	location.Store(loc)
	return nil
}

// Location returns the business time zone
func Location() *time.Location {
	return location.Load()
}

// Now returns the current time in the business time zone
func Now() time.Time {
	return time.Now().In(Location())
}

// Today returns the start of the current day in the business time zone
func Today() time.Time {
	return StartOfDay(Now())
}

// StartOfDay returns 00:00:00 of t's day in the business time zone
func StartOfDay(t time.Time) time.Time {
	local := t.In(Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Location())
}

// Format formats t in the business time zone
func Format(t time.Time, layout string) string {
	return t.In(Location()).Format(layout)
}

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
	DisplayLayout  = "Jan 2, 2006"
)
