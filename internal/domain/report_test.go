package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToday     = "2026-10-19"
	testYesterday = "2026-10-18"
	testWarehouse = "1CCL 제품창고"
)

func reading(loc, date, clock string, steel, dp float64, tier RiskTier) SensorReading {
	return SensorReading{Location: loc, Date: date, Time: clock, SteelTemp: steel, DewPoint: dp, RiskTier: tier, Source: SourceMeasured}
}

func TestParseSlot(t *testing.T) {
	for _, in := range []string{"07:00", "0700"} {
		s, err := ParseSlot(in)
		require.NoError(t, err)
		assert.Equal(t, SlotMorning, s)
	}
	s, err := ParseSlot("1500")
	require.NoError(t, err)
	assert.Equal(t, "1500", s.Key())

	_, err = ParseSlot("12:00")
	assert.True(t, IsKind(err, KindValidation))
}

func TestBuildSnapshot_NewestReadingWins(t *testing.T) {
	// Newest-first: the 11:00 reading was recorded after the 09:00 one.
	readings := []SensorReading{
		reading(testWarehouse, testToday, "11:00", 12, 6, RiskSafe),
		reading(testWarehouse, testToday, "09:00", 8, 6, RiskDanger),
	}
	statuses := map[string]LocationStatus{
		testWarehouse: {Location: testWarehouse, GateOpen: true, Packaged: false},
	}

	snap := BuildSnapshot(testToday, testToday, readings, statuses)
	got := snap[testWarehouse]
	require.NotNil(t, got.SteelTemp)
	assert.Equal(t, 12.0, *got.SteelTemp)
	assert.Equal(t, "11:00", got.Time)
	assert.Equal(t, RiskSafe, got.RiskTier)
	assert.True(t, got.GateOpen, "flags come from live status")
	assert.False(t, got.Packaged)
}

func TestBuildSnapshot_LaterClockTimeBeatsInsertionOrder(t *testing.T) {
	// 09:00 was back-entered after 11:00; the later clock time still wins.
	readings := []SensorReading{
		reading(testWarehouse, testToday, "09:00", 8, 6, RiskDanger),
		reading(testWarehouse, testToday, "11:00", 12, 6, RiskSafe),
	}
	snap := BuildSnapshot(testToday, testToday, readings, nil)
	assert.Equal(t, "11:00", snap[testWarehouse].Time)
}

func TestBuildSnapshot_EqualTimesPreferMostRecentlyRecorded(t *testing.T) {
	readings := []SensorReading{
		reading(testWarehouse, testToday, "07:00", 15, 6, RiskSafe),
		reading(testWarehouse, testToday, "07:00", 9, 6, RiskCaution),
	}
	snap := BuildSnapshot(testToday, testToday, readings, nil)
	assert.Equal(t, 15.0, *snap[testWarehouse].SteelTemp)
}

func TestBuildSnapshot_Fallbacks(t *testing.T) {
	live := LocationStatus{
		Location:       testWarehouse,
		SteelTemp:      Float(14),
		DewPoint:       Float(7),
		RiskTier:       RiskSafe,
		GateOpen:       true,
		LastUpdateTime: "06:40:00",
	}
	statuses := map[string]LocationStatus{testWarehouse: live}
	other := reading(testWarehouse, testYesterday, "15:00", 3, 2, RiskDanger)

	t.Run("today uses live status", func(t *testing.T) {
		snap := BuildSnapshot(testToday, testToday, []SensorReading{other}, statuses)
		require.Len(t, snap, len(Locations))
		got := snap[testWarehouse]
		assert.Equal(t, 14.0, *got.SteelTemp)
		assert.Equal(t, "06:40:00", got.Time)
		assert.True(t, got.GateOpen)

		assert.Equal(t, UnmeasuredEntry(), snap["CGL 제품창고"])
	})

	t.Run("past date uses placeholder", func(t *testing.T) {
		snap := BuildSnapshot("2026-10-17", testToday, []SensorReading{other}, statuses)
		got := snap[testWarehouse]
		assert.Equal(t, RiskUnmeasured, got.RiskTier)
		assert.Nil(t, got.SteelTemp)
		assert.False(t, got.GateOpen)
		assert.True(t, got.Packaged)
		assert.False(t, got.ProductCondensationDetected)
		assert.Equal(t, "-", got.Time)
	})
}

func TestBuildSnapshot_Idempotent(t *testing.T) {
	readings := []SensorReading{
		reading(testWarehouse, testToday, "11:00", 12, 6, RiskSafe),
		reading("SSCL 제품창고", testToday, "10:00", 4, 3, RiskDanger),
	}
	statuses := map[string]LocationStatus{testWarehouse: {Location: testWarehouse, Packaged: true}}

	first, err := json.Marshal(BuildSnapshot(testToday, testToday, readings, statuses))
	require.NoError(t, err)
	second, err := json.Marshal(BuildSnapshot(testToday, testToday, readings, statuses))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSlotStatuses(t *testing.T) {
	got := SlotStatuses([]Slot{SlotAfternoon})
	want := []SlotStatus{{Slot: SlotMorning}, {Slot: SlotAfternoon, Completed: true}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SlotStatuses mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildCalendar(t *testing.T) {
	days := BuildCalendar(2026, time.October, map[string][]Slot{
		"2026-10-05": {SlotMorning, SlotAfternoon},
	}, testToday)

	require.Len(t, days, 31)
	assert.Equal(t, "2026-10-01", days[0].Date)
	assert.Equal(t, "2026-10-31", days[30].Date)
	assert.Len(t, days[4].Slots, 2)
	assert.Empty(t, days[5].Slots)
	assert.True(t, days[18].Today)
	assert.False(t, days[17].Today)

	feb := BuildCalendar(2028, time.February, nil, testToday)
	assert.Len(t, feb, 29)
}

func TestCheckReportDate(t *testing.T) {
	assert.NoError(t, CheckReportDate(testToday, testToday, Actor{}))
	assert.True(t, IsKind(CheckReportDate(testYesterday, testToday, Actor{}), KindForbidden))
	assert.NoError(t, CheckReportDate(testYesterday, testToday, Actor{Admin: true}))
	assert.True(t, IsKind(CheckReportDate("2026-10-20", testToday, Actor{Admin: true}), KindValidation))
	assert.True(t, IsKind(CheckReportDate("19/10/2026", testToday, Actor{}), KindValidation))
}

func TestSnapshotEntry_Flags(t *testing.T) {
	e := UnmeasuredEntry()
	for _, f := range []Flag{FlagGate, FlagPack, FlagProduct} {
		flipped := e.With(f, !e.Value(f))
		assert.NotEqual(t, e.Value(f), flipped.Value(f), f)
	}
}
