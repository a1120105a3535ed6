// Package domain models condensation risk on stored steel coils.
//
// # Psychrometrics
//
// The dew point is computed with the Magnus approximation:
//
//	γ  = (B·T)/(C+T) + ln(RH/100)
//	dp = (C·γ)/(B−γ)
//
// with T in °C and RH in percent. Two coefficient presets exist and are kept
// separate: [LivePreset] (B=17.27, C=237.7) for dashboard measurements and
// [HistoryPreset] (B=17.62, C=243.12) for back-entered incidents. Results are
// rounded to one decimal.
//
// # Risk tiers
//
// Condensation forms when the steel surface is at or below the dew point. The
// margin Δ = steel − dew point, rounded to one decimal, is classified:
//
//	Δ > 5   SAFE
//	Δ > 2   CAUTION
//	else    DANGER
//
// UNMEASURED marks a location without readings and NO_DATA a forecast day
// without temperature extremes.
//
// # Forecast conventions
//
// Forecasts come from the Korea Meteorological Administration (KMA) open API.
//
// Short-range (getVilageFcst) samples are keyed by fcstDate "YYYYMMDD" and
// fcstTime "HHMM" and carry categories:
//
//	TMP  hourly temperature, °C
//	POP  precipitation probability, %
//	PTY  precipitation type: 0 none, 1 rain, 2 rain/snow, 3 snow, 4 shower
//	SKY  sky cover: 1 clear, 3 mostly cloudy, 4 overcast
//
// Mid-range products (getMidTa, getMidLandFcst) are addressed by offset from
// the issue date: taMin{n}/taMax{n}, rnSt{n}Am/rnSt{n}Pm (or rnSt{n} for later
// offsets) and wf{n}Am/wf{n} for n in 3..10.
//
// All calendar dates are evaluated in the facility zone (Asia/Seoul by default).
package domain
