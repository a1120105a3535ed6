package domain

import (
	"fmt"
	"math"
)

// PolicyInput is one forecast day as seen by an equipment policy. Nil
// temperatures mean the extremes are unknown.
type PolicyInput struct {
	MinTemp    *float64
	MaxTemp    *float64
	AMRainProb int
	PMRainProb int
}

// Recommendation is a policy decision for one day.
type Recommendation struct {
	Fan       bool     `json:"fan"`
	Heater    bool     `json:"heater"`
	RiskTier  RiskTier `json:"risk_tier"`
	Rationale string   `json:"rationale"`
	Matches   int      `json:"matches,omitempty"`
}

// Policy decides fan/heater operation for a forecast day. Implementations are
// deterministic and side-effect free.
type Policy interface {
	Name() string
	Recommend(in PolicyInput, incidents []SensorReading) Recommendation
}

// PolicyByName returns the registered policy for name. Empty selects strict.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", StrictPolicy{}.Name():
		return StrictPolicy{}, nil
	case LegacyPolicy{}.Name():
		return LegacyPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown equipment policy %q", name)
	}
}

var noData = Recommendation{RiskTier: RiskNoData, Rationale: "forecast temperature unavailable"}

// StrictPolicy is the canonical rule set. A matching confirmed incident
// overrides every other rule.
//
//	heater + DANGER   min <= -2, or diff >= 12 with rain >= 60
//	fan    + CAUTION  diff >= 8, or rain >= 40
//	none   + SAFE     otherwise
type StrictPolicy struct{}

func (StrictPolicy) Name() string { return "strict" }

func (StrictPolicy) Recommend(in PolicyInput, incidents []SensorReading) Recommendation {
	if in.MinTemp == nil || in.MaxTemp == nil {
		return noData
	}
	lo, hi := *in.MinTemp, *in.MaxTemp
	diff := hi - lo
	rain := max(in.AMRainProb, in.PMRainProb)

	if n := CountMatches(incidents, lo, hi); n > 0 {
		return Recommendation{
			Heater:    true,
			RiskTier:  RiskDanger,
			Rationale: fmt.Sprintf("%d past condensation incident(s) at similar outdoor temperature; run heater", n),
			Matches:   n,
		}
	}

	switch {
	case lo <= -2:
		return Recommendation{Heater: true, RiskTier: RiskDanger,
			Rationale: fmt.Sprintf("minimum %.1f°C at or below -2°C; steel supercooling risk, run heater", lo)}
	case diff >= 12 && rain >= 60:
		return Recommendation{Heater: true, RiskTier: RiskDanger,
			Rationale: fmt.Sprintf("daily swing %.1f°C with %d%% rain probability; run heater", diff, rain)}
	case diff >= 8:
		return Recommendation{Fan: true, RiskTier: RiskCaution,
			Rationale: fmt.Sprintf("daily swing %.1f°C; ventilate with fan", diff)}
	case rain >= 40:
		return Recommendation{Fan: true, RiskTier: RiskCaution,
			Rationale: fmt.Sprintf("rain probability %d%%; humidity rising, ventilate with fan", rain)}
	default:
		return Recommendation{RiskTier: RiskSafe, Rationale: "within normal range"}
	}
}

// LegacyPolicy is the earlier average-temperature rule set. It ignores
// incident history and never reports DANGER.
type LegacyPolicy struct{}

func (LegacyPolicy) Name() string { return "legacy" }

func (LegacyPolicy) Recommend(in PolicyInput, _ []SensorReading) Recommendation {
	if in.MinTemp == nil || in.MaxTemp == nil {
		return noData
	}
	avg := (*in.MinTemp + *in.MaxTemp) / 2
	rain := max(in.AMRainProb, in.PMRainProb)

	rec := Recommendation{RiskTier: RiskSafe, Rationale: "within normal range"}
	switch {
	case avg <= 5:
		rec.Heater = true
		rec.RiskTier = RiskCaution
		rec.Rationale = "low temperature condensation risk; heater recommended"
	case rain <= 30 && avg > 5 && avg <= 15:
		rec.Fan = true
		rec.Rationale = "ventilation recommended (low rain probability)"
	}
	if rain > 50 {
		rec.RiskTier = RiskCaution
		rec.Rationale = "high rain probability; watch for rising humidity"
	}
	return rec
}

// roundTemp rounds forecast temperatures to one decimal, mapping non-finite
// values to nil.
func roundTemp(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return Float(round1(*v))
}
