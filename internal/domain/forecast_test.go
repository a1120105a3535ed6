package domain

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var forecastToday = time.Date(2026, time.October, 19, 10, 30, 0, 0, Zone())

func shortDaySamples(date string, temps []float64, pops map[int]float64) []ShortRangeSample {
	var out []ShortRangeSample
	for i, v := range temps {
		out = append(out, ShortRangeSample{Date: date, Time: i * 300, Category: CategoryTemperature, Value: v})
	}
	for hhmm, v := range pops {
		out = append(out, ShortRangeSample{Date: date, Time: hhmm, Category: CategoryRainProb, Value: v})
	}
	return out
}

func fullMidRange() []MidRangeDay {
	var mid []MidRangeDay
	for i := 3; i <= 10; i++ {
		mid = append(mid, MidRangeDay{
			Offset:     i,
			MinTemp:    Float(float64(i)),
			MaxTemp:    Float(float64(i + 4)),
			AMRainProb: 10,
			PMRainProb: 20,
			Summary:    "맑음",
		})
	}
	return mid
}

func assertCalendar(t *testing.T, days []ForecastDay) {
	t.Helper()
	require.Len(t, days, ForecastDays)
	seen := map[string]bool{}
	for i, d := range days {
		want := forecastToday.AddDate(0, 0, i+1)
		assert.Equal(t, want.Format("20060102"), d.DateStr)
		assert.Equal(t, want.Format(DateLayout), d.Date)
		assert.False(t, seen[d.DateStr], "duplicate %s", d.DateStr)
		seen[d.DateStr] = true
	}
}

func TestReconcile_ShortThenMid(t *testing.T) {
	var short []ShortRangeSample
	short = append(short, shortDaySamples("20261019", []float64{-20, 40}, nil)...)
	short = append(short, shortDaySamples("20261020", []float64{3, 8, 11}, map[int]float64{300: 90, 600: 30, 1100: 50, 1200: 70})...)
	short = append(short, shortDaySamples("20261021", []float64{4, 9}, nil)...)
	short = append(short, shortDaySamples("20261022", []float64{5, 10}, nil)...)
	short = append(short, shortDaySamples("20261023", []float64{6, 12}, nil)...)

	days := Reconcile(ReconcileInput{Today: forecastToday, Short: short, Mid: fullMidRange()})
	assertCalendar(t, days)

	sources := make([]ForecastSource, len(days))
	for i, d := range days {
		sources[i] = d.Source
		assert.False(t, d.Synthetic)
	}
	assert.Equal(t, []ForecastSource{
		SourceShortRange, SourceShortRange, SourceShortRange,
		SourceMidRange, SourceMidRange, SourceMidRange, SourceMidRange,
	}, sources)

	first := days[0]
	assert.Equal(t, 3.0, *first.MinTemp)
	assert.Equal(t, 11.0, *first.MaxTemp)
	assert.Equal(t, 50, first.AMRainProb)
	assert.Equal(t, 70, first.PMRainProb)

	// D+4 comes from mid-range offset 4.
	assert.Equal(t, 4.0, *days[3].MinTemp)
	assert.Equal(t, 8.0, *days[3].MaxTemp)
}

func TestReconcile_DateWithoutTemperatureIsNotCovered(t *testing.T) {
	short := []ShortRangeSample{
		{Date: "20261020", Time: 900, Category: CategoryRainProb, Value: 80},
	}
	days := Reconcile(ReconcileInput{Today: forecastToday, Short: short, Rand: rand.New(rand.NewPCG(1, 2))})
	assertCalendar(t, days)
	assert.Equal(t, SourceSynthetic, days[0].Source)
	assert.Equal(t, syntheticRainProb, days[0].AMRainProb)
}

func TestReconcile_AllSynthetic(t *testing.T) {
	days := Reconcile(ReconcileInput{Today: forecastToday, Rand: rand.New(rand.NewPCG(7, 7))})
	assertCalendar(t, days)
	for _, d := range days {
		assert.True(t, d.Synthetic)
		assert.Equal(t, SourceSynthetic, d.Source)
		require.NotNil(t, d.MinTemp)
		assert.GreaterOrEqual(t, *d.MinTemp, 0.0)
		assert.Less(t, *d.MinTemp, 5.0)
		assert.Equal(t, *d.MinTemp+7, *d.MaxTemp)
		assert.Equal(t, 20, d.AMRainProb)
		assert.Equal(t, 20, d.PMRainProb)
		assert.Equal(t, WeatherSunny, d.Weather)
		assert.Equal(t, RiskSafe, d.RiskTier)
	}
}

func TestReconcile_MidGapFallsBackToSynthetic(t *testing.T) {
	mid := fullMidRange()[:2] // offsets 3 and 4 only
	days := Reconcile(ReconcileInput{Today: forecastToday, Mid: mid})
	assertCalendar(t, days)

	assert.Equal(t, SourceSynthetic, days[0].Source)
	assert.Equal(t, SourceSynthetic, days[1].Source)
	assert.Equal(t, SourceMidRange, days[2].Source)
	assert.Equal(t, SourceMidRange, days[3].Source)
	for _, d := range days[4:] {
		assert.True(t, d.Synthetic)
	}
}

func TestReconcile_MissingExtremesIsNoData(t *testing.T) {
	mid := []MidRangeDay{{Offset: 3, MaxTemp: Float(9), AMRainProb: 70, PMRainProb: 70}}
	days := Reconcile(ReconcileInput{Today: forecastToday, Mid: mid})
	d := days[2]
	assert.Equal(t, SourceMidRange, d.Source)
	assert.Nil(t, d.MinTemp)
	assert.Equal(t, RiskNoData, d.RiskTier)
	assert.False(t, d.Fan)
	assert.False(t, d.Heater)
}

func TestReconcile_IncidentsReachPolicy(t *testing.T) {
	days := Reconcile(ReconcileInput{
		Today:     forecastToday,
		Mid:       fullMidRange(),
		Incidents: []SensorReading{incidentAt(5.5)},
		Rand:      rand.New(rand.NewPCG(3, 4)),
	})
	// Offset 3 spans [3, 7] and offset 4 spans [4, 8].
	assert.Equal(t, RiskDanger, days[2].RiskTier)
	assert.True(t, days[2].Heater)
	assert.Equal(t, RiskDanger, days[3].RiskTier)
	// Offset 7 spans [7, 11]; widened lower edge is 6.
	assert.Equal(t, RiskSafe, days[6].RiskTier)
}

func TestReconcile_LegacyPolicy(t *testing.T) {
	days := Reconcile(ReconcileInput{Today: forecastToday, Mid: fullMidRange(), Policy: LegacyPolicy{}, Incidents: []SensorReading{incidentAt(5)}})
	// Offset 3 averages 5°C.
	assert.True(t, days[2].Heater)
	assert.Equal(t, RiskCaution, days[2].RiskTier)
}

func TestCategorizeShortRange(t *testing.T) {
	tests := []struct {
		name string
		sky  []int
		pty  []int
		want WeatherCategory
	}{
		{"no data", nil, nil, WeatherSunny},
		{"snow beats rain", []int{4}, []int{0, 1, 3}, WeatherSnow},
		{"shower is rain", []int{1}, []int{0, 4}, WeatherRain},
		{"rain beats sky", []int{4, 4, 4}, []int{2}, WeatherRain},
		{"middle sky clear", []int{4, 1, 4}, []int{0, 0}, WeatherSunny},
		{"middle sky cloudy", []int{1, 3, 1}, nil, WeatherCloudy},
		{"middle sky overcast", []int{1, 4}, nil, WeatherCloudyHeavy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeShortRange(tt.sky, tt.pty))
		})
	}
}

func TestCategorizeMidRange(t *testing.T) {
	tests := map[string]WeatherCategory{
		"":        WeatherSunny,
		"맑음":      WeatherSunny,
		"구름많음":    WeatherCloudy,
		"흐림":      WeatherCloudyHeavy,
		"흐리고 비":   WeatherRain,
		"구름많고 눈":  WeatherSnow,
		"흐리고 비/눈": WeatherSnow,
	}
	for in, want := range tests {
		assert.Equal(t, want, CategorizeMidRange(in), in)
	}
}

func TestManagementGuide(t *testing.T) {
	safe := ForecastDay{Recommendation: Recommendation{RiskTier: RiskSafe}}
	caution := ForecastDay{Recommendation: Recommendation{RiskTier: RiskCaution}}
	danger := ForecastDay{Recommendation: Recommendation{RiskTier: RiskDanger}}

	assert.Contains(t, ManagementGuide([]ForecastDay{safe, safe}), "Low condensation risk")
	assert.Contains(t, ManagementGuide([]ForecastDay{safe, caution, caution}), "2 caution day(s)")
	assert.Contains(t, ManagementGuide([]ForecastDay{danger, caution}), "1 high-risk and 1 caution")
}

func TestSyntheticOutdoorTemperature(t *testing.T) {
	peak := time.Date(2026, 10, 19, 14, 0, 0, 0, Zone())
	trough := time.Date(2026, 10, 19, 2, 0, 0, 0, Zone())
	assert.Equal(t, 10.0, SyntheticOutdoorTemperature(peak))
	assert.Equal(t, 0.0, SyntheticOutdoorTemperature(trough))
}
