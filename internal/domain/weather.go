package domain

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"
)

// ErrMissingCredential is returned by weather providers with no API key configured.
var ErrMissingCredential = errors.New("weather api credential not configured")

// Short-range forecast categories.
const (
	CategoryTemperature   = "TMP"
	CategoryRainProb      = "POP"
	CategoryPrecipitation = "PTY"
	CategorySky           = "SKY"
)

// ShortRangeSample is one forecast field of the short-range (3-hourly) product.
type ShortRangeSample struct {
	Date     string // YYYYMMDD
	Time     int    // HHMM
	Category string
	Value    float64
}

// MidRangeDay is the mid-range forecast for today+Offset. Offsets 3..10 exist.
type MidRangeDay struct {
	Offset     int
	MinTemp    *float64
	MaxTemp    *float64
	AMRainProb int
	PMRainProb int
	Summary    string // e.g. "구름많고 비"
}

// WeatherProvider supplies observations and forecasts for the facility grid.
type WeatherProvider interface {
	// CurrentTemperature returns the latest completed hourly observation in °C.
	CurrentTemperature(ctx context.Context) (float64, error)

	// ShortRange returns short-range forecast samples covering roughly D..D+3.
	ShortRange(ctx context.Context) ([]ShortRangeSample, error)

	// MidRange returns per-day forecasts for offsets 3..10.
	MidRange(ctx context.Context) ([]MidRangeDay, error)
}

// WeatherCategory is a display icon class for a forecast day.
type WeatherCategory string

const (
	WeatherSunny       WeatherCategory = "sunny"
	WeatherCloudy      WeatherCategory = "cloudy"
	WeatherCloudyHeavy WeatherCategory = "cloudy-heavy"
	WeatherRain        WeatherCategory = "rain-light"
	WeatherSnow        WeatherCategory = "snow"
)

// CategorizeShortRange maps a day's PTY and SKY codes to a category.
// Precipitation beats sky cover and snow (3) beats rain (1, 2, 4). Sky is read
// at the middle sample of the day: 1 sunny, 3 cloudy, anything else heavy.
func CategorizeShortRange(sky, pty []int) WeatherCategory {
	for _, p := range pty {
		if p == 3 {
			return WeatherSnow
		}
	}
	for _, p := range pty {
		if p == 1 || p == 2 || p == 4 {
			return WeatherRain
		}
	}
	if len(sky) == 0 {
		return WeatherSunny
	}
	switch sky[len(sky)/2] {
	case 0, 1:
		return WeatherSunny
	case 3:
		return WeatherCloudy
	default:
		return WeatherCloudyHeavy
	}
}

// CategorizeMidRange maps a mid-range summary text to a category, keeping the
// same snow-over-rain precedence as the short-range mapping.
func CategorizeMidRange(summary string) WeatherCategory {
	switch {
	case summary == "":
		return WeatherSunny
	case strings.Contains(summary, "눈"):
		return WeatherSnow
	case strings.Contains(summary, "비"):
		return WeatherRain
	case strings.Contains(summary, "흐림"):
		return WeatherCloudyHeavy
	case strings.Contains(summary, "구름많음"):
		return WeatherCloudy
	default:
		return WeatherSunny
	}
}

// SyntheticOutdoorTemperature is the placeholder diurnal curve used when no
// weather credential is configured: 5°C mean, 5°C amplitude, peak at 14:00.
func SyntheticOutdoorTemperature(t time.Time) float64 {
	h := float64(t.Hour())
	return round1(5 + math.Cos((h-14)*math.Pi/12)*5)
}

// ResolveOutdoorTemperature fetches the current outdoor temperature.
// A nil provider or missing credential yields the synthetic curve; any other
// failure yields nil so the caller can continue without it.
func ResolveOutdoorTemperature(ctx context.Context, provider WeatherProvider, logger *slog.Logger) *float64 {
	if provider == nil {
		return Float(SyntheticOutdoorTemperature(Now()))
	}
	t, err := provider.CurrentTemperature(ctx)
	if errors.Is(err, ErrMissingCredential) {
		return Float(SyntheticOutdoorTemperature(Now()))
	}
	if err != nil {
		logger.Warn("outdoor temperature unavailable", "error", err)
		return nil
	}
	if !finite(t) {
		logger.Warn("outdoor temperature not finite", "value", t)
		return nil
	}
	return Float(round1(t))
}
