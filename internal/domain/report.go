package domain

import (
	"strings"
	"time"
)

// Slot is a fixed daily inspection checkpoint.
type Slot string

const (
	SlotMorning   Slot = "07:00"
	SlotAfternoon Slot = "15:00"
)

// Slots lists the inspection checkpoints in chronological order.
var Slots = []Slot{SlotMorning, SlotAfternoon}

// ParseSlot accepts "07:00" or the path form "0700".
func ParseSlot(s string) (Slot, error) {
	switch strings.ReplaceAll(s, ":", "") {
	case "0700":
		return SlotMorning, nil
	case "1500":
		return SlotAfternoon, nil
	default:
		return "", Validationf("unknown slot %q (want 07:00 or 15:00)", s)
	}
}

// Key is the colon-free form used in storage paths.
func (s Slot) Key() string { return strings.ReplaceAll(string(s), ":", "") }

// SnapshotEntry is the frozen state of one location inside a report.
type SnapshotEntry struct {
	SteelTemp *float64 `json:"steel_temp"`
	DewPoint  *float64 `json:"dew_point"`
	RiskTier  RiskTier `json:"risk_tier"`

	GateOpen                    bool `json:"gate_open"`
	Packaged                    bool `json:"packaged"`
	ProductCondensationDetected bool `json:"product_condensation_detected"`

	Time string `json:"time"` // "-" when unmeasured
}

// Value returns the current value of flag f.
func (e SnapshotEntry) Value(f Flag) bool {
	switch f {
	case FlagGate:
		return e.GateOpen
	case FlagPack:
		return e.Packaged
	case FlagProduct:
		return e.ProductCondensationDetected
	}
	return false
}

// With returns a copy of e with flag f set to v.
func (e SnapshotEntry) With(f Flag, v bool) SnapshotEntry {
	switch f {
	case FlagGate:
		e.GateOpen = v
	case FlagPack:
		e.Packaged = v
	case FlagProduct:
		e.ProductCondensationDetected = v
	}
	return e
}

// UnmeasuredEntry is the snapshot placeholder for a location without data.
func UnmeasuredEntry() SnapshotEntry {
	return SnapshotEntry{RiskTier: RiskUnmeasured, Packaged: true, Time: "-"}
}

// InspectionReport is a point-in-time copy of all locations for one slot.
type InspectionReport struct {
	Date        string                   `json:"date"`
	Slot        Slot                     `json:"slot"`
	OutdoorTemp *float64                 `json:"outdoor_temp"`
	Snapshot    map[string]SnapshotEntry `json:"snapshot"`
	Reporter    string                   `json:"reporter"`
	SubmittedAt time.Time                `json:"submitted_at"`
}

// BuildSnapshot derives the per-location snapshot for date.
//
// readings must be newest-first. For each location the reading on date with
// the latest clock time wins; equal clock times resolve to the most recently
// recorded entry. Flags always come from the live status. A location without a
// reading falls back to its live status when date is today, otherwise to the
// unmeasured placeholder.
func BuildSnapshot(date, today string, readings []SensorReading, statuses map[string]LocationStatus) map[string]SnapshotEntry {
	latest := make(map[string]SensorReading, len(Locations))
	for _, r := range readings {
		if r.Date != date {
			continue
		}
		if cur, ok := latest[r.Location]; !ok || r.Time > cur.Time {
			latest[r.Location] = r
		}
	}

	snapshot := make(map[string]SnapshotEntry, len(Locations))
	for _, loc := range Locations {
		live, hasLive := statuses[loc]
		if !hasLive {
			live = UnmeasuredStatus(loc)
		}

		if r, ok := latest[loc]; ok {
			snapshot[loc] = SnapshotEntry{
				SteelTemp:                   Float(r.SteelTemp),
				DewPoint:                    Float(r.DewPoint),
				RiskTier:                    r.RiskTier,
				GateOpen:                    live.GateOpen,
				Packaged:                    live.Packaged,
				ProductCondensationDetected: live.ProductCondensationDetected,
				Time:                        r.Time,
			}
			continue
		}

		if date == today && hasLive {
			snapshot[loc] = entryFromStatus(live)
			continue
		}
		snapshot[loc] = UnmeasuredEntry()
	}
	return snapshot
}

func entryFromStatus(s LocationStatus) SnapshotEntry {
	t := s.LastUpdateTime
	if t == "" {
		t = "-"
	}
	return SnapshotEntry{
		SteelTemp:                   s.SteelTemp,
		DewPoint:                    s.DewPoint,
		RiskTier:                    s.RiskTier,
		GateOpen:                    s.GateOpen,
		Packaged:                    s.Packaged,
		ProductCondensationDetected: s.ProductCondensationDetected,
		Time:                        t,
	}
}

// SlotStatus reports whether a slot has a submitted report.
type SlotStatus struct {
	Slot      Slot `json:"slot"`
	Completed bool `json:"completed"`
}

// SlotStatuses marks each slot completed iff submitted contains it.
func SlotStatuses(submitted []Slot) []SlotStatus {
	out := make([]SlotStatus, 0, len(Slots))
	for _, s := range Slots {
		done := false
		for _, got := range submitted {
			if got == s {
				done = true
				break
			}
		}
		out = append(out, SlotStatus{Slot: s, Completed: done})
	}
	return out
}

// CalendarDay summarizes report existence for one date.
type CalendarDay struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
	Today bool   `json:"today"`
}

// BuildCalendar lays out every day of month with the slots found in submitted.
func BuildCalendar(year int, month time.Month, submitted map[string][]Slot, today string) []CalendarDay {
	first := time.Date(year, month, 1, 0, 0, 0, 0, zone)
	days := make([]CalendarDay, 0, 31)
	for d := first; d.Month() == month; d = d.AddDate(0, 0, 1) {
		date := d.Format(DateLayout)
		slots := submitted[date]
		if slots == nil {
			slots = []Slot{}
		}
		days = append(days, CalendarDay{Date: date, Slots: slots, Today: date == today})
	}
	return days
}

// CheckReportDate enforces who may submit for date: today is open to anyone,
// past dates need elevated access and future dates are rejected.
func CheckReportDate(date, today string, actor Actor) error {
	if _, err := ParseDate(date); err != nil {
		return err
	}
	switch {
	case date > today:
		return Validationf("cannot submit a report for future date %s", date)
	case date < today && !actor.Admin:
		return Forbiddenf("editing past reports requires administrator access")
	}
	return nil
}

// Actor is the caller of an operator action.
type Actor struct {
	Admin bool
}
