package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
	"github.com/couchcryptid/coil-condensation-monitor/internal/observability"
	"github.com/couchcryptid/coil-condensation-monitor/internal/store"
)

const (
	testToday     = "2026-10-19"
	testYesterday = "2026-10-18"
	testTomorrow  = "2026-10-20"
	testWarehouse = "1CCL 제품창고"
	testPasscode  = "s3cret"
)

var admin = domain.Actor{Admin: true}

// --- fakes ---

type fakeWeather struct {
	mu           sync.Mutex
	temp         float64
	err          error
	short        []domain.ShortRangeSample
	mid          []domain.MidRangeDay
	forecastErr  error
	currentCalls int
	shortCalls   int
	purged       bool
}

func (w *fakeWeather) CurrentTemperature(context.Context) (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.currentCalls++
	return w.temp, w.err
}

func (w *fakeWeather) ShortRange(context.Context) ([]domain.ShortRangeSample, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shortCalls++
	return w.short, w.forecastErr
}

func (w *fakeWeather) MidRange(context.Context) ([]domain.MidRangeDay, error) {
	return w.mid, w.forecastErr
}

func (w *fakeWeather) Purge() { w.purged = true }

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, events ...domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) types() []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freezeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	clk := clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 10, 30, 0, 0, domain.Zone()))
	domain.SetClock(clk)
	t.Cleanup(func() { domain.SetClock(nil) })
	return clk
}

type fixture struct {
	svc     *Service
	store   *store.Memory
	weather *fakeWeather
	sink    *recordingSink
	clock   *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   store.NewMemory(),
		weather: &fakeWeather{temp: 4.2},
		sink:    &recordingSink{},
		clock:   freezeClock(t),
	}
	f.svc = New(f.store, f.weather, Options{
		IncidentWindow: 100,
		Passcode:       testPasscode,
		SessionTTL:     time.Hour,
	}, observability.NewMetricsForTesting(), discardLogger())
	f.svc.AddSink("test", f.sink)
	return f
}

// safeInput yields dew point 4.8 and margin 7.7 (SAFE).
func safeInput(loc string) domain.ReadingInput {
	return domain.ReadingInput{Location: loc, SteelTemp: 12.5, AirTemp: 10, Humidity: 70}
}

// dangerInput yields dew point 11.6 and margin -3.6 (DANGER).
func dangerInput(loc string) domain.ReadingInput {
	return domain.ReadingInput{Location: loc, SteelTemp: 8, AirTemp: 15, Humidity: 80}
}

// --- RecordReading ---

func TestRecordReading(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reading, status, err := f.svc.RecordReading(ctx, safeInput(testWarehouse))
	require.NoError(t, err)

	assert.NotEmpty(t, reading.ID)
	assert.Equal(t, 4.8, reading.DewPoint)
	assert.Equal(t, domain.RiskSafe, reading.RiskTier)
	assert.Equal(t, domain.SourceMeasured, reading.Source)
	require.NotNil(t, reading.OutdoorTemp)
	assert.Equal(t, 4.2, *reading.OutdoorTemp)
	assert.Equal(t, testToday, reading.Date)
	assert.Equal(t, "10:30:00", reading.Time)

	assert.Equal(t, 12.5, *status.SteelTemp)
	assert.Equal(t, 4.8, *status.DewPoint)
	assert.Equal(t, domain.RiskSafe, status.RiskTier)
	assert.True(t, status.Packaged, "placeholder flags carry over")
	assert.False(t, status.GateOpen)
	assert.Equal(t, "10:30:00", status.LastUpdateTime)
	assert.Equal(t, testToday, status.LastUpdateDate)

	logged, err := f.svc.Readings(ctx, 5)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, reading.ID, logged[0].ID)

	assert.Equal(t, []domain.EventType{domain.EventReadingRecorded, domain.EventStatusChanged}, f.sink.types())
}

func TestRecordReading_PreservesUnsuppliedFlags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.RecordReading(ctx, safeInput(testWarehouse))
	require.NoError(t, err)
	_, err = f.svc.ToggleFlag(ctx, testWarehouse, domain.FlagGate, nil)
	require.NoError(t, err)

	_, status, err := f.svc.RecordReading(ctx, dangerInput(testWarehouse))
	require.NoError(t, err)
	assert.True(t, status.GateOpen)
	assert.Equal(t, domain.RiskDanger, status.RiskTier)

	in := safeInput(testWarehouse)
	in.Flags = domain.FlagUpdate{Packaged: domain.Bool(false)}
	_, status, err = f.svc.RecordReading(ctx, in)
	require.NoError(t, err)
	assert.True(t, status.GateOpen)
	assert.False(t, status.Packaged)
}

func TestRecordReading_RejectsBeforeAnyMutation(t *testing.T) {
	tests := []struct {
		name string
		in   domain.ReadingInput
		kind domain.ErrorKind
	}{
		{"humidity zero", domain.ReadingInput{Location: testWarehouse, SteelTemp: 10, AirTemp: 10, Humidity: 0}, domain.KindValidation},
		{"humidity above 100", domain.ReadingInput{Location: testWarehouse, SteelTemp: 10, AirTemp: 10, Humidity: 100.1}, domain.KindValidation},
		{"unknown location", safeInput("Warehouse 9"), domain.KindValidation},
		{"bad time", domain.ReadingInput{Location: testWarehouse, SteelTemp: 10, AirTemp: 10, Humidity: 50, Time: "25:00"}, domain.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, _, err := f.svc.RecordReading(context.Background(), tt.in)
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, tt.kind), "got %v", err)

			logged, err := f.store.Readings(context.Background(), 0)
			require.NoError(t, err)
			assert.Empty(t, logged)
			assert.Zero(t, f.weather.currentCalls)
			assert.Empty(t, f.sink.types())
		})
	}
}

func TestRecordReading_WeatherFailureLeavesOutdoorEmpty(t *testing.T) {
	f := newFixture(t)
	f.weather.err = errors.New("gateway timeout")

	reading, _, err := f.svc.RecordReading(context.Background(), safeInput(testWarehouse))
	require.NoError(t, err)
	assert.Nil(t, reading.OutdoorTemp)
}

func TestRecordReading_MissingCredentialUsesSyntheticTemperature(t *testing.T) {
	f := newFixture(t)
	f.weather.err = domain.ErrMissingCredential

	reading, _, err := f.svc.RecordReading(context.Background(), safeInput(testWarehouse))
	require.NoError(t, err)
	require.NotNil(t, reading.OutdoorTemp)
	assert.Equal(t, domain.SyntheticOutdoorTemperature(domain.Now()), *reading.OutdoorTemp)
}

func TestRecordReading_SinkFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("broker down")

	_, _, err := f.svc.RecordReading(context.Background(), safeInput(testWarehouse))
	require.NoError(t, err)
}

// --- Locations / ToggleFlag ---

func TestLocations_PlaceholdersForMissingRows(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.RecordReading(context.Background(), dangerInput(testWarehouse))
	require.NoError(t, err)

	all, err := f.svc.Locations(context.Background())
	require.NoError(t, err)
	require.Len(t, all, len(domain.Locations))
	for i, st := range all {
		assert.Equal(t, domain.Locations[i], st.Location)
		if st.Location == testWarehouse {
			assert.Equal(t, domain.RiskDanger, st.RiskTier)
			continue
		}
		assert.Equal(t, domain.RiskUnmeasured, st.RiskTier)
		assert.True(t, st.Packaged)
		assert.Nil(t, st.SteelTemp)
	}
}

func TestToggleFlag_RequiresReading(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ToggleFlag(context.Background(), testWarehouse, domain.FlagGate, nil)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindPrecondition))
}

func TestToggleFlag_Live(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.RecordReading(ctx, safeInput(testWarehouse))
	require.NoError(t, err)

	st, err := f.svc.ToggleFlag(ctx, testWarehouse, domain.FlagProduct, nil)
	require.NoError(t, err)
	assert.True(t, st.ProductCondensationDetected)

	st, err = f.svc.ToggleFlag(ctx, testWarehouse, domain.FlagProduct, nil)
	require.NoError(t, err)
	assert.False(t, st.ProductCondensationDetected)
	assert.Equal(t, domain.RiskSafe, st.RiskTier, "toggle keeps the measurement")
}

func TestToggleFlag_RestampsUpdateTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, before, err := f.svc.RecordReading(ctx, safeInput(testWarehouse))
	require.NoError(t, err)
	require.Equal(t, "10:30:00", before.LastUpdateTime)

	f.clock.Advance(2 * time.Hour)
	st, err := f.svc.ToggleFlag(ctx, testWarehouse, domain.FlagGate, nil)
	require.NoError(t, err)
	assert.Equal(t, testToday, st.LastUpdateDate)
	assert.Equal(t, "12:30:00", st.LastUpdateTime)
	assert.Equal(t, before.SteelTemp, st.SteelTemp, "toggle keeps the measurement")

	locs, err := f.svc.Locations(ctx)
	require.NoError(t, err)
	for _, l := range locs {
		if l.Location == testWarehouse {
			assert.Equal(t, "12:30:00", l.LastUpdateTime)
		}
	}
}

func TestToggleFlag_DisplayedSnapshotDualWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.RecordReading(ctx, safeInput(testWarehouse))
	require.NoError(t, err)
	_, err = f.svc.SubmitReport(ctx, SubmitRequest{Date: testToday, Slot: domain.SlotMorning}, domain.Actor{})
	require.NoError(t, err)

	// Live gate opens after the snapshot was taken.
	_, err = f.svc.ToggleFlag(ctx, testWarehouse, domain.FlagGate, nil)
	require.NoError(t, err)

	// Toggling from the snapshot view flips the snapshot's closed gate.
	st, err := f.svc.ToggleFlag(ctx, testWarehouse, domain.FlagGate, &SnapshotRef{Date: testToday, Slot: domain.SlotMorning})
	require.NoError(t, err)
	assert.True(t, st.GateOpen)

	reports, err := f.svc.Report(ctx, testToday)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Snapshot[testWarehouse].GateOpen)
}

func TestToggleFlag_DisplayedSnapshotMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.RecordReading(ctx, safeInput(testWarehouse))
	require.NoError(t, err)

	_, err = f.svc.ToggleFlag(ctx, testWarehouse, domain.FlagPack, &SnapshotRef{Date: testToday, Slot: domain.SlotAfternoon})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	st, err := f.store.Statuses(ctx)
	require.NoError(t, err)
	assert.True(t, st[testWarehouse].Packaged, "status untouched")
}

// --- Reports ---

func TestSubmitReport_LatestClockTimeWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	late := safeInput(testWarehouse)
	late.Time = "11:00"
	_, _, err := f.svc.RecordReading(ctx, late)
	require.NoError(t, err)
	early := dangerInput(testWarehouse)
	early.Time = "09:00"
	_, _, err = f.svc.RecordReading(ctx, early)
	require.NoError(t, err)

	report, err := f.svc.SubmitReport(ctx, SubmitRequest{Date: testToday, Slot: domain.SlotMorning, Reporter: "kim"}, domain.Actor{})
	require.NoError(t, err)

	entry := report.Snapshot[testWarehouse]
	assert.Equal(t, "11:00", entry.Time)
	assert.Equal(t, domain.RiskSafe, entry.RiskTier)
	assert.Equal(t, "kim", report.Reporter)
	require.NotNil(t, report.OutdoorTemp)
	assert.Equal(t, 4.2, *report.OutdoorTemp)
	assert.Len(t, report.Snapshot, len(domain.Locations))
	assert.Equal(t, domain.RiskUnmeasured, report.Snapshot["CGL 제품창고"].RiskTier)
	assert.Contains(t, f.sink.types(), domain.EventReportSubmitted)
}

func TestSubmitReport_ResubmitNeedsConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := SubmitRequest{Date: testToday, Slot: domain.SlotAfternoon}

	_, err := f.svc.SubmitReport(ctx, req, domain.Actor{})
	require.NoError(t, err)

	_, err = f.svc.SubmitReport(ctx, req, domain.Actor{})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConflict))

	_, _, err = f.svc.RecordReading(ctx, dangerInput(testWarehouse))
	require.NoError(t, err)

	req.Confirm = true
	report, err := f.svc.SubmitReport(ctx, req, domain.Actor{})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskDanger, report.Snapshot[testWarehouse].RiskTier)

	reports, err := f.svc.Report(ctx, testToday)
	require.NoError(t, err)
	assert.Len(t, reports, 1, "replaced wholesale")
}

func TestSubmitReport_DateRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitReport(ctx, SubmitRequest{Date: testTomorrow, Slot: domain.SlotMorning}, admin)
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	_, err = f.svc.SubmitReport(ctx, SubmitRequest{Date: testYesterday, Slot: domain.SlotMorning}, domain.Actor{})
	assert.True(t, domain.IsKind(err, domain.KindForbidden))

	_, _, err = f.svc.RecordReading(ctx, safeInput(testWarehouse))
	require.NoError(t, err)
	report, err := f.svc.SubmitReport(ctx, SubmitRequest{Date: testYesterday, Slot: domain.SlotMorning}, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskUnmeasured, report.Snapshot[testWarehouse].RiskTier, "past date ignores live status")
	assert.Equal(t, "-", report.Snapshot[testWarehouse].Time)
}

func TestReport_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Report(context.Background(), testYesterday)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	_, err = f.svc.Report(context.Background(), "19-10-2026")
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestSlotStatusesAndCalendar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SubmitReport(ctx, SubmitRequest{Date: testToday, Slot: domain.SlotAfternoon}, domain.Actor{})
	require.NoError(t, err)

	slots, err := f.svc.SlotStatuses(ctx, testToday)
	require.NoError(t, err)
	assert.Equal(t, []domain.SlotStatus{
		{Slot: domain.SlotMorning, Completed: false},
		{Slot: domain.SlotAfternoon, Completed: true},
	}, slots)

	days, err := f.svc.Calendar(ctx, 2026, time.October)
	require.NoError(t, err)
	require.Len(t, days, 31)
	today := days[18]
	assert.Equal(t, testToday, today.Date)
	assert.True(t, today.Today)
	assert.Equal(t, []domain.Slot{domain.SlotAfternoon}, today.Slots)
	assert.Empty(t, days[0].Slots)

	_, err = f.svc.Calendar(ctx, 2026, 13)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

// --- Elevated operations ---

func TestClearReadings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.RecordReading(ctx, safeInput(testWarehouse))
	require.NoError(t, err)

	err = f.svc.ClearReadings(ctx, domain.Actor{})
	assert.True(t, domain.IsKind(err, domain.KindForbidden))

	require.NoError(t, f.svc.ClearReadings(ctx, admin))
	logged, err := f.svc.Readings(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, logged)
}

func TestLogIncident(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := domain.IncidentInput{
		Location:    testWarehouse,
		Date:        testYesterday,
		Time:        "06:40",
		SteelTemp:   5,
		AirTemp:     8,
		Humidity:    90,
		OutdoorTemp: domain.Float(2.5),
	}

	_, err := f.svc.LogIncident(ctx, in, domain.Actor{})
	assert.True(t, domain.IsKind(err, domain.KindForbidden))

	incident, err := f.svc.LogIncident(ctx, in, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceManual, incident.Source)
	assert.True(t, incident.Confirmed())
	assert.Equal(t, 6.5, incident.DewPoint)
	assert.Equal(t, domain.RiskDanger, incident.RiskTier)

	statuses, err := f.store.Statuses(ctx)
	require.NoError(t, err)
	assert.Empty(t, statuses, "incidents do not touch live status")

	in.Time = ""
	_, err = f.svc.LogIncident(ctx, in, admin)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Authenticate("wrong")
	assert.True(t, domain.IsKind(err, domain.KindForbidden))

	sess, err := f.svc.Authenticate(testPasscode)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.True(t, f.svc.Actor(sess.Token).Admin)
	assert.False(t, f.svc.Actor("forged").Admin)

	f.clock.Advance(time.Hour)
	assert.False(t, f.svc.Actor(sess.Token).Admin, "expired")
}

func TestAuthenticate_Unconfigured(t *testing.T) {
	freezeClock(t)
	a := NewAuthorizer("", time.Hour)
	_, err := a.Login("")
	assert.True(t, domain.IsKind(err, domain.KindForbidden))
}

func TestAuthorizer_Logout(t *testing.T) {
	freezeClock(t)
	a := NewAuthorizer(testPasscode, time.Hour)
	sess, err := a.Login(testPasscode)
	require.NoError(t, err)
	a.Logout(sess.Token)
	assert.False(t, a.Actor(sess.Token).Admin)
}

func TestSetForecastKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.SetForecastKeys(ctx, "short", "", domain.Actor{})
	assert.True(t, domain.IsKind(err, domain.KindForbidden))

	err = f.svc.SetForecastKeys(ctx, "", "", admin)
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	require.NoError(t, f.svc.SetForecastKeys(ctx, "short", "", admin))
	v, ok, err := f.store.Setting(ctx, store.SettingShortForecastKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "short", v)
	_, ok, err = f.store.Setting(ctx, store.SettingMidForecastKey)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, f.weather.purged)
}

func TestRollover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	done, err := f.svc.Rollover(ctx)
	require.NoError(t, err)
	assert.True(t, done)
	calls := f.weather.shortCalls

	done, err = f.svc.Rollover(ctx)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, calls, f.weather.shortCalls)

	f.clock.Advance(24 * time.Hour)
	done, err = f.svc.Rollover(ctx)
	require.NoError(t, err)
	assert.True(t, done)
	last, _, err := f.store.Setting(ctx, store.SettingLastResetDate)
	require.NoError(t, err)
	assert.Equal(t, testTomorrow, last)
}

func TestReady(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.CheckReadiness(context.Background()))
	require.NoError(t, f.store.Close())
	assert.ErrorIs(t, f.svc.CheckReadiness(context.Background()), store.ErrClosed)
}
