package domain

import (
	"slices"
	"time"
)

// Locations are the fixed warehouse locations under monitoring, in display order.
var Locations = []string{
	"CGL 제품창고",
	"SSCL 제품창고",
	"1CCL 원자재동",
	"1CCL 제품창고",
	"2CCL 원자재동",
	"2CCL 제품창고",
	"3CCL 원자재동",
	"3CCL 제품창고",
}

// IsKnownLocation reports whether name is one of Locations.
func IsKnownLocation(name string) bool {
	return slices.Contains(Locations, name)
}

// RequireLocation returns a validation error for unknown locations.
func RequireLocation(name string) error {
	if !IsKnownLocation(name) {
		return Validationf("unknown location %q", name)
	}
	return nil
}

// LocationStatus is the live state of one warehouse location.
type LocationStatus struct {
	Location  string   `json:"location"`
	SteelTemp *float64 `json:"steel_temp"`
	DewPoint  *float64 `json:"dew_point"`
	RiskTier  RiskTier `json:"risk_tier"`

	GateOpen                    bool `json:"gate_open"`
	Packaged                    bool `json:"packaged"`
	ProductCondensationDetected bool `json:"product_condensation_detected"`

	LastUpdateTime string    `json:"last_update_time,omitempty"` // HH:MM:SS
	LastUpdateDate string    `json:"last_update_date,omitempty"` // YYYY-MM-DD
	UpdatedAt      time.Time `json:"updated_at"`
}

// UnmeasuredStatus is the placeholder shown for a location with no data:
// gate closed, packaged, product good.
func UnmeasuredStatus(location string) LocationStatus {
	return LocationStatus{
		Location: location,
		RiskTier: RiskUnmeasured,
		Packaged: true,
	}
}

// Flag names a toggleable boolean on LocationStatus.
type Flag string

const (
	FlagGate    Flag = "gate"
	FlagPack    Flag = "pack"
	FlagProduct Flag = "product"
)

// ParseFlag validates a flag name.
func ParseFlag(s string) (Flag, error) {
	switch f := Flag(s); f {
	case FlagGate, FlagPack, FlagProduct:
		return f, nil
	default:
		return "", Validationf("unknown flag %q (want gate, pack or product)", s)
	}
}

// Value returns the current value of flag f.
func (s LocationStatus) Value(f Flag) bool {
	switch f {
	case FlagGate:
		return s.GateOpen
	case FlagPack:
		return s.Packaged
	case FlagProduct:
		return s.ProductCondensationDetected
	}
	return false
}

// With returns a copy of s with flag f set to v.
func (s LocationStatus) With(f Flag, v bool) LocationStatus {
	switch f {
	case FlagGate:
		s.GateOpen = v
	case FlagPack:
		s.Packaged = v
	case FlagProduct:
		s.ProductCondensationDetected = v
	}
	return s
}

// FlagUpdate carries optional flag overrides for a status write. Nil fields
// keep the previous value.
type FlagUpdate struct {
	GateOpen            *bool `json:"gate_open,omitempty"`
	Packaged            *bool `json:"packaged,omitempty"`
	ProductCondensation *bool `json:"product_condensation,omitempty"`
}

// Apply merges u into prev.
func (u FlagUpdate) Apply(prev LocationStatus) LocationStatus {
	if u.GateOpen != nil {
		prev.GateOpen = *u.GateOpen
	}
	if u.Packaged != nil {
		prev.Packaged = *u.Packaged
	}
	if u.ProductCondensation != nil {
		prev.ProductCondensationDetected = *u.ProductCondensation
	}
	return prev
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
