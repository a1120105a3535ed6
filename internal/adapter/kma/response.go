package kma

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
)

// KMA open API response types.

type envelope struct {
	Response struct {
		Header struct {
			ResultCode string `json:"resultCode"`
			ResultMsg  string `json:"resultMsg"`
		} `json:"header"`
		Body struct {
			Items struct {
				Item json.RawMessage `json:"item"`
			} `json:"items"`
		} `json:"body"`
	} `json:"response"`
}

type observation struct {
	Category string    `json:"category"`
	Value    flexFloat `json:"obsrValue"`
}

type forecastItem struct {
	Date     string    `json:"fcstDate"`
	Time     string    `json:"fcstTime"`
	Category string    `json:"category"`
	Value    flexFloat `json:"fcstValue"`
}

// flexFloat accepts numbers encoded either as JSON numbers or strings.
// Non-numeric strings such as "강수없음" decode as NaN.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = flexFloat(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = flexFloat(math.NaN())
		return nil //nolint:nilerr // non-numeric values are dropped downstream
	}
	*f = flexFloat(v)
	return nil
}

var wantedShort = map[string]bool{
	domain.CategoryTemperature:   true,
	domain.CategoryRainProb:      true,
	domain.CategoryPrecipitation: true,
	domain.CategorySky:           true,
}

func decodeShortRange(raw json.RawMessage) ([]domain.ShortRangeSample, error) {
	var items []forecastItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode short-range items: %w", err)
	}
	out := make([]domain.ShortRangeSample, 0, len(items))
	for _, it := range items {
		if !wantedShort[it.Category] {
			continue
		}
		hhmm, err := strconv.Atoi(it.Time)
		if err != nil {
			continue
		}
		out = append(out, domain.ShortRangeSample{
			Date:     it.Date,
			Time:     hhmm,
			Category: it.Category,
			Value:    float64(it.Value),
		})
	}
	return out, nil
}

// decodeMidRange joins the temperature and land products. Offsets in the
// payload are relative to the run date; shift rebases them onto today.
func decodeMidRange(tempRaw, landRaw json.RawMessage, shift int) ([]domain.MidRangeDay, error) {
	temp, err := firstItem(tempRaw)
	if err != nil {
		return nil, fmt.Errorf("decode mid-range temperature: %w", err)
	}
	land, err := firstItem(landRaw)
	if err != nil {
		return nil, fmt.Errorf("decode mid-range land: %w", err)
	}

	var out []domain.MidRangeDay
	for i := 3; i <= 10; i++ {
		lo, okLo := number(temp, fmt.Sprintf("taMin%d", i))
		hi, okHi := number(temp, fmt.Sprintf("taMax%d", i))
		am, okAm := numberOr(land, fmt.Sprintf("rnSt%dAm", i), fmt.Sprintf("rnSt%d", i))
		pm, okPm := numberOr(land, fmt.Sprintf("rnSt%dPm", i), fmt.Sprintf("rnSt%d", i))
		if !okLo && !okHi && !okAm && !okPm {
			continue
		}
		day := domain.MidRangeDay{
			Offset:     i - shift,
			AMRainProb: int(am),
			PMRainProb: int(pm),
			Summary:    textOr(land, fmt.Sprintf("wf%dAm", i), fmt.Sprintf("wf%d", i)),
		}
		if okLo {
			day.MinTemp = domain.Float(lo)
		}
		if okHi {
			day.MaxTemp = domain.Float(hi)
		}
		out = append(out, day)
	}
	return out, nil
}

func firstItem(raw json.RawMessage) (map[string]any, error) {
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("empty item list")
	}
	return items[0], nil
}

func number(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func numberOr(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := number(m, k); ok {
			return v, true
		}
	}
	return 0, false
}

func textOr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
