package domain

import (
	"regexp"
	"time"
)

// Source distinguishes sensor/operator measurements from manually confirmed
// condensation incidents.
type Source string

const (
	SourceMeasured Source = "measured"
	SourceManual   Source = "manual"
)

// SensorReading is one immutable entry of the measurement log.
type SensorReading struct {
	ID          string    `json:"id"`
	Location    string    `json:"location"`
	Date        string    `json:"date"` // YYYY-MM-DD
	Time        string    `json:"time"` // HH:MM or HH:MM:SS
	SteelTemp   float64   `json:"steel_temp"`
	AirTemp     float64   `json:"air_temp"`
	Humidity    float64   `json:"humidity"`
	OutdoorTemp *float64  `json:"outdoor_temp"`
	DewPoint    float64   `json:"dew_point"`
	RiskTier    RiskTier  `json:"risk_tier"`
	Source      Source    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}

// Confirmed reports whether the reading is a manually confirmed incident.
func (r SensorReading) Confirmed() bool { return r.Source == SourceManual }

// Margin is the rounded steel-temperature minus dew-point difference.
func (r SensorReading) Margin() float64 { return round1(r.SteelTemp - r.DewPoint) }

// ReadingInput is an operator or sensor measurement before evaluation.
// Date and Time default to the current facility date and clock time.
type ReadingInput struct {
	Location  string     `json:"location"`
	SteelTemp float64    `json:"steel_temp"`
	AirTemp   float64    `json:"air_temp"`
	Humidity  float64    `json:"humidity"`
	Date      string     `json:"date,omitempty"`
	Time      string     `json:"time,omitempty"`
	Flags     FlagUpdate `json:"flags"`
}

// IncidentInput is a back-entered condensation occurrence with all fields
// supplied by the operator.
type IncidentInput struct {
	Location    string   `json:"location"`
	Date        string   `json:"date"`
	Time        string   `json:"time"`
	SteelTemp   float64  `json:"steel_temp"`
	AirTemp     float64  `json:"air_temp"`
	Humidity    float64  `json:"humidity"`
	OutdoorTemp *float64 `json:"outdoor_temp"`
}

var clockTimeRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d(:[0-5]\d)?$`)

// Evaluation is the dew point and risk derived from a measurement.
type Evaluation struct {
	DewPoint float64
	Assessment
}

// Evaluate computes dew point and risk for a measurement using preset p.
func Evaluate(steel, air, humidity float64, p MagnusPreset) (Evaluation, error) {
	if !finite(steel) {
		return Evaluation{}, ErrNonFinite
	}
	dp, err := DewPoint(air, humidity, p)
	if err != nil {
		return Evaluation{}, err
	}
	a, err := Classify(steel, dp)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{DewPoint: dp, Assessment: a}, nil
}

// NewReading validates in and builds a measured SensorReading stamped at now.
// The outdoor temperature is attached by the caller.
func NewReading(id string, in ReadingInput, now time.Time) (SensorReading, error) {
	if err := RequireLocation(in.Location); err != nil {
		return SensorReading{}, err
	}
	date, clockTime, err := resolveDateTime(in.Date, in.Time, now)
	if err != nil {
		return SensorReading{}, err
	}
	ev, err := Evaluate(in.SteelTemp, in.AirTemp, in.Humidity, LivePreset)
	if err != nil {
		return SensorReading{}, err
	}
	return SensorReading{
		ID:        id,
		Location:  in.Location,
		Date:      date,
		Time:      clockTime,
		SteelTemp: in.SteelTemp,
		AirTemp:   in.AirTemp,
		Humidity:  in.Humidity,
		DewPoint:  ev.DewPoint,
		RiskTier:  ev.Tier,
		Source:    SourceMeasured,
		Timestamp: now,
	}, nil
}

// NewIncident validates in and builds a manual SensorReading using the
// history dew-point preset.
func NewIncident(id string, in IncidentInput, now time.Time) (SensorReading, error) {
	if err := RequireLocation(in.Location); err != nil {
		return SensorReading{}, err
	}
	if in.Date == "" || in.Time == "" {
		return SensorReading{}, Validationf("incident date and time are required")
	}
	date, clockTime, err := resolveDateTime(in.Date, in.Time, now)
	if err != nil {
		return SensorReading{}, err
	}
	if in.OutdoorTemp != nil && !finite(*in.OutdoorTemp) {
		return SensorReading{}, ErrNonFinite
	}
	ev, err := Evaluate(in.SteelTemp, in.AirTemp, in.Humidity, HistoryPreset)
	if err != nil {
		return SensorReading{}, err
	}
	return SensorReading{
		ID:          id,
		Location:    in.Location,
		Date:        date,
		Time:        clockTime,
		SteelTemp:   in.SteelTemp,
		AirTemp:     in.AirTemp,
		Humidity:    in.Humidity,
		OutdoorTemp: in.OutdoorTemp,
		DewPoint:    ev.DewPoint,
		RiskTier:    ev.Tier,
		Source:      SourceManual,
		Timestamp:   now,
	}, nil
}

func resolveDateTime(date, clockTime string, now time.Time) (string, string, error) {
	if date == "" {
		date = now.Format(DateLayout)
	} else if _, err := ParseDate(date); err != nil {
		return "", "", err
	}
	if clockTime == "" {
		clockTime = now.Format(ClockLayout)
	} else if !clockTimeRe.MatchString(clockTime) {
		return "", "", Validationf("invalid time %q (want HH:MM)", clockTime)
	}
	return date, clockTime, nil
}
