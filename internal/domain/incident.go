package domain

// DefaultIncidentWindow is the number of most recent confirmed incidents
// scanned when matching forecast conditions.
const DefaultIncidentWindow = 100

// matchTolerance widens the forecast range on both ends, in °C.
const matchTolerance = 1.0

// ConfirmedIncidents returns up to window manual readings from a newest-first
// log, preserving order. A window <= 0 means DefaultIncidentWindow.
func ConfirmedIncidents(readings []SensorReading, window int) []SensorReading {
	if window <= 0 {
		window = DefaultIncidentWindow
	}
	out := make([]SensorReading, 0, min(window, len(readings)))
	for _, r := range readings {
		if !r.Confirmed() {
			continue
		}
		out = append(out, r)
		if len(out) == window {
			break
		}
	}
	return out
}

// CountMatches counts incidents whose outdoor temperature lies within
// [minTemp-1, maxTemp+1]. Incidents without an outdoor temperature never match.
func CountMatches(incidents []SensorReading, minTemp, maxTemp float64) int {
	lo, hi := minTemp-matchTolerance, maxTemp+matchTolerance
	n := 0
	for _, inc := range incidents {
		if inc.OutdoorTemp == nil {
			continue
		}
		if t := *inc.OutdoorTemp; t >= lo && t <= hi {
			n++
		}
	}
	return n
}
