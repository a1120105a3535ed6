package domain

import "math"

// MagnusPreset holds the B/C coefficient pair of a Magnus dew-point approximation.
type MagnusPreset struct {
	Name string
	B    float64
	C    float64 // °C
}

var (
	// LivePreset is used for live measurements entered on the dashboard.
	LivePreset = MagnusPreset{Name: "live", B: 17.27, C: 237.7}

	// HistoryPreset is used when incidents are back-entered from paper records.
	// It is the Alduchov-Eskridge tuning and gives slightly lower dew points
	// below freezing; see DESIGN.md before unifying it with LivePreset.
	HistoryPreset = MagnusPreset{Name: "history", B: 17.62, C: 243.12}
)

var (
	ErrInvalidHumidity = &UserError{Kind: KindValidation, Message: "relative humidity must be greater than 0 and at most 100"}
	ErrNonFinite       = &UserError{Kind: KindValidation, Message: "temperature values must be finite numbers"}
)

// DewPoint returns the dew point in °C for air temperature t (°C) and relative
// humidity rh (%), rounded to one decimal.
func DewPoint(t, rh float64, p MagnusPreset) (float64, error) {
	if !finite(t) || !finite(rh) {
		return 0, ErrNonFinite
	}
	if rh <= 0 || rh > 100 {
		return 0, ErrInvalidHumidity
	}

	gamma := (p.B*t)/(p.C+t) + math.Log(rh/100)
	dp := (p.C * gamma) / (p.B - gamma)
	if !finite(dp) {
		return 0, ErrNonFinite
	}
	return round1(dp), nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
