package domain

// RiskTier is the condensation risk classification of a surface or forecast day.
type RiskTier string

const (
	RiskSafe    RiskTier = "SAFE"
	RiskCaution RiskTier = "CAUTION"
	RiskDanger  RiskTier = "DANGER"

	// RiskUnmeasured marks a location with no reading for the requested date.
	RiskUnmeasured RiskTier = "UNMEASURED"
	// RiskNoData marks a forecast day whose temperature extremes are missing.
	RiskNoData RiskTier = "NO_DATA"
)

// Margin thresholds in °C between steel temperature and dew point.
const (
	safeMargin    = 5.0
	cautionMargin = 2.0
)

// Assessment is a classified risk with its operator-facing rationale.
type Assessment struct {
	Tier   RiskTier `json:"tier"`
	Reason string   `json:"reason"`
	Margin float64  `json:"margin"`
}

// Numeric reports whether the tier is one of SAFE, CAUTION or DANGER.
func (t RiskTier) Numeric() bool {
	return t == RiskSafe || t == RiskCaution || t == RiskDanger
}

// Severity orders tiers for metrics and sorting; non-numeric tiers are 0.
func (t RiskTier) Severity() int {
	switch t {
	case RiskSafe:
		return 1
	case RiskCaution:
		return 2
	case RiskDanger:
		return 3
	default:
		return 0
	}
}

// Classify assesses the margin between steel temperature and dew point. The
// margin is rounded to one decimal before comparison:
//   - margin > 5  SAFE
//   - margin > 2  CAUTION
//   - otherwise   DANGER
//
// Live readings and back-entered incidents share this partition.
func Classify(steelTemp, dewPoint float64) (Assessment, error) {
	if !finite(steelTemp) || !finite(dewPoint) {
		return Assessment{}, ErrNonFinite
	}
	return ClassifyMargin(round1(steelTemp - dewPoint)), nil
}

// ClassifyMargin maps an already computed margin onto a tier. NaN falls through
// to DANGER.
func ClassifyMargin(margin float64) Assessment {
	switch {
	case margin > safeMargin:
		return Assessment{Tier: RiskSafe, Margin: margin,
			Reason: "steel temperature exceeds dew point by more than 5°C"}
	case margin > cautionMargin:
		return Assessment{Tier: RiskCaution, Margin: margin,
			Reason: "margin narrowing; recommend ventilation and temperature control"}
	default:
		return Assessment{Tier: RiskDanger, Margin: margin,
			Reason: "dew point near steel temperature; immediate action required"}
	}
}
