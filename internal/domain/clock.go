package domain

import (
	"time"
	_ "time/tzdata" // warehouses run on KST regardless of the host zone database

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze time via SetClock.
// Production code uses the real clock; tests inject a fake for deterministic output.
var clock = clockwork.NewRealClock()

// zone is the facility's local time zone. Calendar dates, slots and forecast
// offsets are all evaluated in this zone.
var zone = mustLoadZone("Asia/Seoul")

// DateLayout is the calendar-date format used for report keys and reading dates.
const DateLayout = "2006-01-02"

// ClockLayout is the wall-clock format stamped on readings and statuses.
const ClockLayout = "15:04:05"

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// SetZone changes the facility time zone. Pass nil to reset to Asia/Seoul.
func SetZone(loc *time.Location) {
	if loc == nil {
		zone = mustLoadZone("Asia/Seoul")
		return
	}
	zone = loc
}

// Zone returns the facility time zone.
func Zone() *time.Location { return zone }

// Now returns the current time in the facility zone.
func Now() time.Time { return clock.Now().In(zone) }

// Today returns the current facility calendar date formatted with DateLayout.
func Today() string { return Now().Format(DateLayout) }

// ParseDate parses a DateLayout string as midnight in the facility zone.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, zone)
	if err != nil {
		return time.Time{}, Validationf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

func mustLoadZone(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}
