package domain

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"
)

// ForecastDays is the length of the weekly outlook, starting tomorrow.
const ForecastDays = 7

// shortRangeDays caps how many days the short-range product contributes.
const shortRangeDays = 3

// Mid-range offsets published by the forecast service.
const (
	minMidOffset = 3
	maxMidOffset = 10
)

// Synthetic day parameters.
const (
	syntheticMinSpan  = 5 // min drawn from [0, 5)
	syntheticSwing    = 7
	syntheticRainProb = 20
)

// ForecastSource records which product supplied a forecast day.
type ForecastSource string

const (
	SourceShortRange ForecastSource = "short"
	SourceMidRange   ForecastSource = "mid"
	SourceSynthetic  ForecastSource = "synthetic"
)

// ForecastDay is one reconciled day of the weekly outlook with its equipment
// recommendation.
type ForecastDay struct {
	Date       string          `json:"date"`     // YYYY-MM-DD
	DateStr    string          `json:"date_str"` // YYYYMMDD
	MinTemp    *float64        `json:"min_temp"`
	MaxTemp    *float64        `json:"max_temp"`
	AMRainProb int             `json:"am_rain_prob"`
	PMRainProb int             `json:"pm_rain_prob"`
	Weather    WeatherCategory `json:"weather"`
	Source     ForecastSource  `json:"source"`
	Synthetic  bool            `json:"synthetic"`
	Recommendation
}

// WeeklyForecast is the cached unit: seven days computed on Date.
type WeeklyForecast struct {
	Date        string        `json:"date"`
	GeneratedAt time.Time     `json:"generated_at"`
	Policy      string        `json:"policy"`
	Days        []ForecastDay `json:"days"`
	Guide       string        `json:"guide"`
}

// SyntheticDays reports how many days are placeholders.
func (w WeeklyForecast) SyntheticDays() int {
	n := 0
	for _, d := range w.Days {
		if d.Synthetic {
			n++
		}
	}
	return n
}

// ReconcileInput bundles the sources merged into a weekly outlook.
type ReconcileInput struct {
	Today     time.Time
	Short     []ShortRangeSample
	Mid       []MidRangeDay
	Incidents []SensorReading
	Policy    Policy
	Rand      *rand.Rand // nil uses the global source
}

type shortDay struct {
	temps, pops []float64
	popTimes    []int
	sky, pty    []int
}

// Reconcile merges short-range and mid-range forecasts into exactly
// ForecastDays entries for D+1..D+7.
//
// The first three dates with temperature samples come from the short-range
// product. Remaining dates take the mid-range day at the same offset from
// today. Anything still uncovered is synthetic and flagged as such.
func Reconcile(in ReconcileInput) []ForecastDay {
	policy := in.Policy
	if policy == nil {
		policy = StrictPolicy{}
	}
	today := time.Date(in.Today.Year(), in.Today.Month(), in.Today.Day(), 0, 0, 0, 0, in.Today.Location())

	targets := make([]time.Time, ForecastDays)
	index := make(map[string]int, ForecastDays)
	for i := range targets {
		targets[i] = today.AddDate(0, 0, i+1)
		index[targets[i].Format("20060102")] = i
	}

	days := make([]*ForecastDay, ForecastDays)

	// Short range.
	grouped := groupShortRange(in.Short, index)
	covered := make([]string, 0, len(grouped))
	for k, g := range grouped {
		if len(g.temps) > 0 {
			covered = append(covered, k)
		}
	}
	slices.Sort(covered)
	if len(covered) > shortRangeDays {
		covered = covered[:shortRangeDays]
	}
	for _, k := range covered {
		g := grouped[k]
		lo, hi := slices.Min(g.temps), slices.Max(g.temps)
		days[index[k]] = &ForecastDay{
			MinTemp:    Float(round1(lo)),
			MaxTemp:    Float(round1(hi)),
			AMRainProb: maxPOP(g, 600, 1200),
			PMRainProb: maxPOP(g, 1200, 2400),
			Weather:    CategorizeShortRange(g.sky, g.pty),
			Source:     SourceShortRange,
		}
	}

	// Mid range, addressed by offset from today.
	mid := make(map[int]MidRangeDay, len(in.Mid))
	for _, m := range in.Mid {
		if m.Offset >= minMidOffset && m.Offset <= maxMidOffset {
			mid[m.Offset] = m
		}
	}
	for i := range days {
		if days[i] != nil {
			continue
		}
		m, ok := mid[i+1]
		if !ok {
			continue
		}
		days[i] = &ForecastDay{
			MinTemp:    roundTemp(m.MinTemp),
			MaxTemp:    roundTemp(m.MaxTemp),
			AMRainProb: clampProb(m.AMRainProb),
			PMRainProb: clampProb(m.PMRainProb),
			Weather:    CategorizeMidRange(m.Summary),
			Source:     SourceMidRange,
		}
	}

	out := make([]ForecastDay, ForecastDays)
	for i, d := range days {
		if d == nil {
			d = syntheticDay(in.Rand)
		}
		d.Date = targets[i].Format(DateLayout)
		d.DateStr = targets[i].Format("20060102")
		d.Recommendation = policy.Recommend(PolicyInput{
			MinTemp:    d.MinTemp,
			MaxTemp:    d.MaxTemp,
			AMRainProb: d.AMRainProb,
			PMRainProb: d.PMRainProb,
		}, in.Incidents)
		out[i] = *d
	}
	return out
}

func groupShortRange(samples []ShortRangeSample, index map[string]int) map[string]*shortDay {
	grouped := make(map[string]*shortDay)
	for _, s := range samples {
		if _, ok := index[s.Date]; !ok {
			continue
		}
		if !finite(s.Value) {
			continue
		}
		g := grouped[s.Date]
		if g == nil {
			g = &shortDay{}
			grouped[s.Date] = g
		}
		switch s.Category {
		case CategoryTemperature:
			g.temps = append(g.temps, s.Value)
		case CategoryRainProb:
			g.pops = append(g.pops, s.Value)
			g.popTimes = append(g.popTimes, s.Time)
		case CategorySky:
			g.sky = append(g.sky, int(s.Value))
		case CategoryPrecipitation:
			g.pty = append(g.pty, int(s.Value))
		}
	}
	return grouped
}

// maxPOP returns the highest rain probability with from <= time < to, or 0.
func maxPOP(g *shortDay, from, to int) int {
	best := 0.0
	for i, t := range g.popTimes {
		if t >= from && t < to && g.pops[i] > best {
			best = g.pops[i]
		}
	}
	return clampProb(int(best))
}

func clampProb(p int) int {
	return min(max(p, 0), 100)
}

func syntheticDay(r *rand.Rand) *ForecastDay {
	var lo int
	if r != nil {
		lo = r.IntN(syntheticMinSpan)
	} else {
		lo = rand.IntN(syntheticMinSpan)
	}
	return &ForecastDay{
		MinTemp:    Float(float64(lo)),
		MaxTemp:    Float(float64(lo + syntheticSwing)),
		AMRainProb: syntheticRainProb,
		PMRainProb: syntheticRainProb,
		Weather:    WeatherSunny,
		Source:     SourceSynthetic,
		Synthetic:  true,
	}
}

// ManagementGuide summarizes the outlook for operators.
func ManagementGuide(days []ForecastDay) string {
	caution, danger := 0, 0
	for _, d := range days {
		switch d.RiskTier {
		case RiskCaution:
			caution++
		case RiskDanger:
			danger++
		}
	}
	switch {
	case danger > 0:
		return fmt.Sprintf("%d high-risk and %d caution day(s) expected in the next %d days; prepare heaters and ventilation.",
			danger, caution, len(days))
	case caution > 0:
		return fmt.Sprintf("%d caution day(s) expected in the next %d days; prepare equipment.", caution, len(days))
	default:
		return fmt.Sprintf("Low condensation risk for the next %d days; keep routine inspections.", len(days))
	}
}
