// Package monitor implements the operator actions of the condensation monitor
// on top of a storage backend: recording readings, toggling location flags,
// submitting inspection reports, logging incidents and serving the weekly
// equipment outlook.
//
// All mutations are serialized by one mutex. Outdoor temperature is fetched
// before the lock is taken and always completes before anything is persisted.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
	"github.com/couchcryptid/coil-condensation-monitor/internal/observability"
	"github.com/couchcryptid/coil-condensation-monitor/internal/store"
)

// Options tunes the service.
type Options struct {
	IncidentWindow int
	Passcode       string
	SessionTTL     time.Duration
	Policy         domain.Policy
}

// Service is the monitor's application layer.
type Service struct {
	mu sync.Mutex

	store    store.Backend
	weather  domain.WeatherProvider
	auth     *Authorizer
	forecast *ForecastService
	sinks    []namedSink
	metrics  *observability.Metrics
	logger   *slog.Logger
}

type namedSink struct {
	name string
	sink domain.EventSink
}

// New creates a Service. weather may be nil.
func New(backend store.Backend, weather domain.WeatherProvider, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:    backend,
		weather:  weather,
		auth:     NewAuthorizer(opts.Passcode, opts.SessionTTL),
		forecast: NewForecastService(backend, weather, opts.Policy, opts.IncidentWindow, metrics, logger),
		metrics:  metrics,
		logger:   logger,
	}
}

// AddSink registers an event sink. Must be called before serving.
func (s *Service) AddSink(name string, sink domain.EventSink) {
	s.sinks = append(s.sinks, namedSink{name: name, sink: sink})
}

// Actor resolves a session token to the caller's capabilities.
func (s *Service) Actor(token string) domain.Actor { return s.auth.Actor(token) }

// CheckReadiness reports whether the storage backend is reachable.
func (s *Service) CheckReadiness(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// WeeklyForecast returns today's equipment outlook; force recomputes it.
func (s *Service) WeeklyForecast(ctx context.Context, force bool) (domain.WeeklyForecast, error) {
	return s.forecast.Weekly(ctx, force)
}

// Locations returns the status of every known location in display order.
// Locations without a reading are reported as unmeasured.
func (s *Service) Locations(ctx context.Context) ([]domain.LocationStatus, error) {
	statuses, err := s.store.Statuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("load statuses: %w", err)
	}
	out := make([]domain.LocationStatus, 0, len(domain.Locations))
	for _, loc := range domain.Locations {
		st, ok := statuses[loc]
		if !ok {
			st = domain.UnmeasuredStatus(loc)
		}
		out = append(out, st)
	}
	return out, nil
}

// RecordReading validates and evaluates a measurement, appends it to the log
// and overwrites the location's live status. Flags not supplied keep their
// previous values.
func (s *Service) RecordReading(ctx context.Context, in domain.ReadingInput) (domain.SensorReading, domain.LocationStatus, error) {
	reading, err := domain.NewReading(uuid.NewString(), in, domain.Now())
	if err != nil {
		return domain.SensorReading{}, domain.LocationStatus{}, s.userError(err)
	}
	reading.OutdoorTemp = domain.ResolveOutdoorTemperature(ctx, s.weather, s.logger)

	s.mu.Lock()
	status, err := s.recordLocked(ctx, reading, in.Flags)
	s.mu.Unlock()
	if err != nil {
		return domain.SensorReading{}, domain.LocationStatus{}, err
	}

	s.metrics.ReadingsRecorded.WithLabelValues(string(reading.Source), string(reading.RiskTier)).Inc()
	s.metrics.LocationRisk.WithLabelValues(reading.Location).Set(float64(reading.RiskTier.Severity()))
	s.logger.Info("reading recorded",
		"location", reading.Location,
		"dew_point", reading.DewPoint,
		"risk_tier", reading.RiskTier,
	)
	s.publish(ctx, domain.ReadingEvent(reading), domain.StatusEvent(status))
	return reading, status, nil
}

func (s *Service) recordLocked(ctx context.Context, r domain.SensorReading, flags domain.FlagUpdate) (domain.LocationStatus, error) {
	statuses, err := s.store.Statuses(ctx)
	if err != nil {
		return domain.LocationStatus{}, fmt.Errorf("load statuses: %w", err)
	}
	prev, ok := statuses[r.Location]
	if !ok {
		prev = domain.UnmeasuredStatus(r.Location)
	}

	status := flags.Apply(prev)
	status.SteelTemp = domain.Float(r.SteelTemp)
	status.DewPoint = domain.Float(r.DewPoint)
	status.RiskTier = r.RiskTier
	status.LastUpdateTime = r.Time
	status.LastUpdateDate = r.Date
	status.UpdatedAt = r.Timestamp

	if err := s.store.AppendReading(ctx, r); err != nil {
		return domain.LocationStatus{}, fmt.Errorf("append reading: %w", err)
	}
	if err := s.store.SaveStatus(ctx, status); err != nil {
		return domain.LocationStatus{}, fmt.Errorf("save status: %w", err)
	}
	return status, nil
}

// SnapshotRef identifies a submitted report whose snapshot is on screen.
type SnapshotRef struct {
	Date string
	Slot domain.Slot
}

// ToggleFlag flips one flag of a location. When displayed is set the new
// value is derived from that report's snapshot entry, and the snapshot is
// patched together with the live status.
func (s *Service) ToggleFlag(ctx context.Context, location string, flag domain.Flag, displayed *SnapshotRef) (domain.LocationStatus, error) {
	if err := domain.RequireLocation(location); err != nil {
		return domain.LocationStatus{}, s.userError(err)
	}

	s.mu.Lock()
	status, target, err := s.toggleLocked(ctx, location, flag, displayed)
	s.mu.Unlock()
	if err != nil {
		return domain.LocationStatus{}, s.userError(err)
	}

	s.metrics.FlagToggles.WithLabelValues(string(flag), target).Inc()
	s.logger.Info("flag toggled", "location", location, "flag", flag, "value", status.Value(flag), "target", target)
	s.publish(ctx, domain.StatusEvent(status))
	return status, nil
}

func (s *Service) toggleLocked(ctx context.Context, location string, flag domain.Flag, displayed *SnapshotRef) (domain.LocationStatus, string, error) {
	statuses, err := s.store.Statuses(ctx)
	if err != nil {
		return domain.LocationStatus{}, "", fmt.Errorf("load statuses: %w", err)
	}
	status, ok := statuses[location]
	if !ok {
		return domain.LocationStatus{}, "", domain.Preconditionf("no reading for %s yet; enter a reading first", location)
	}

	target := "live"
	next := !status.Value(flag)
	if displayed != nil {
		report, err := s.findReport(ctx, displayed.Date, displayed.Slot)
		if err != nil {
			return domain.LocationStatus{}, "", err
		}
		entry, ok := report.Snapshot[location]
		if !ok {
			entry = domain.UnmeasuredEntry()
		}
		next = !entry.Value(flag)
		report.Snapshot[location] = entry.With(flag, next)
		if err := s.store.SaveReport(ctx, report); err != nil {
			return domain.LocationStatus{}, "", fmt.Errorf("patch snapshot: %w", err)
		}
		target = "snapshot"
	}

	now := domain.Now()
	status = status.With(flag, next)
	status.LastUpdateDate = now.Format(domain.DateLayout)
	status.LastUpdateTime = now.Format(domain.ClockLayout)
	status.UpdatedAt = now
	if err := s.store.SaveStatus(ctx, status); err != nil {
		return domain.LocationStatus{}, "", fmt.Errorf("save status: %w", err)
	}
	return status, target, nil
}

func (s *Service) findReport(ctx context.Context, date string, slot domain.Slot) (domain.InspectionReport, error) {
	reports, err := s.store.Reports(ctx, date)
	if err != nil {
		return domain.InspectionReport{}, fmt.Errorf("load reports: %w", err)
	}
	for _, r := range reports {
		if r.Slot == slot {
			if r.Snapshot == nil {
				r.Snapshot = make(map[string]domain.SnapshotEntry)
			}
			return r, nil
		}
	}
	return domain.InspectionReport{}, domain.NotFoundf("no %s report for %s", slot, date)
}

// SubmitRequest asks for a snapshot of every location for (Date, Slot).
type SubmitRequest struct {
	Date     string
	Slot     domain.Slot
	Reporter string
	// Confirm must be set to replace an existing report.
	Confirm bool
}

// SubmitReport captures and stores an inspection snapshot. Today's slots are
// open to everyone; past dates need elevated access.
func (s *Service) SubmitReport(ctx context.Context, req SubmitRequest, actor domain.Actor) (domain.InspectionReport, error) {
	if err := domain.CheckReportDate(req.Date, domain.Today(), actor); err != nil {
		return domain.InspectionReport{}, s.userError(err)
	}
	outdoor := domain.ResolveOutdoorTemperature(ctx, s.weather, s.logger)

	s.mu.Lock()
	report, replaced, err := s.submitLocked(ctx, req, outdoor)
	s.mu.Unlock()
	if err != nil {
		return domain.InspectionReport{}, s.userError(err)
	}

	mode := "new"
	if replaced {
		mode = "replace"
	}
	s.metrics.ReportsSubmitted.WithLabelValues(string(req.Slot), mode).Inc()
	s.logger.Info("report submitted", "date", report.Date, "slot", report.Slot, "mode", mode)
	s.publish(ctx, domain.ReportEvent(report))
	return report, nil
}

func (s *Service) submitLocked(ctx context.Context, req SubmitRequest, outdoor *float64) (domain.InspectionReport, bool, error) {
	existing, err := s.store.Reports(ctx, req.Date)
	if err != nil {
		return domain.InspectionReport{}, false, fmt.Errorf("load reports: %w", err)
	}
	replaced := false
	for _, r := range existing {
		if r.Slot == req.Slot {
			replaced = true
		}
	}
	if replaced && !req.Confirm {
		return domain.InspectionReport{}, false, domain.Conflictf("a %s report for %s already exists; confirm to replace it", req.Slot, req.Date)
	}

	readings, err := s.store.Readings(ctx, 0)
	if err != nil {
		return domain.InspectionReport{}, false, fmt.Errorf("load readings: %w", err)
	}
	statuses, err := s.store.Statuses(ctx)
	if err != nil {
		return domain.InspectionReport{}, false, fmt.Errorf("load statuses: %w", err)
	}

	reporter := req.Reporter
	if reporter == "" {
		reporter = "operator"
	}
	report := domain.InspectionReport{
		Date:        req.Date,
		Slot:        req.Slot,
		OutdoorTemp: outdoor,
		Snapshot:    domain.BuildSnapshot(req.Date, domain.Today(), readings, statuses),
		Reporter:    reporter,
		SubmittedAt: domain.Now(),
	}
	if err := s.store.SaveReport(ctx, report); err != nil {
		return domain.InspectionReport{}, false, fmt.Errorf("save report: %w", err)
	}
	return report, replaced, nil
}

// Report returns every submitted slot of date.
func (s *Service) Report(ctx context.Context, date string) ([]domain.InspectionReport, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, s.userError(err)
	}
	reports, err := s.store.Reports(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load reports: %w", err)
	}
	if len(reports) == 0 {
		return nil, s.userError(domain.NotFoundf("no records for %s", date))
	}
	return reports, nil
}

// SlotStatuses reports which slots of date have been submitted.
func (s *Service) SlotStatuses(ctx context.Context, date string) ([]domain.SlotStatus, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, s.userError(err)
	}
	slots, err := s.store.ReportSlots(ctx, date, date)
	if err != nil {
		return nil, fmt.Errorf("load report slots: %w", err)
	}
	return domain.SlotStatuses(slots[date]), nil
}

// Calendar lists every day of the month with its submitted slots.
func (s *Service) Calendar(ctx context.Context, year int, month time.Month) ([]domain.CalendarDay, error) {
	if month < time.January || month > time.December {
		return nil, s.userError(domain.Validationf("invalid month %d", month))
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, domain.Zone())
	last := first.AddDate(0, 1, -1)
	slots, err := s.store.ReportSlots(ctx, first.Format(domain.DateLayout), last.Format(domain.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("load report slots: %w", err)
	}
	return domain.BuildCalendar(year, month, slots, domain.Today()), nil
}

// Readings returns up to limit log entries newest-first; limit <= 0 returns all.
func (s *Service) Readings(ctx context.Context, limit int) ([]domain.SensorReading, error) {
	readings, err := s.store.Readings(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load readings: %w", err)
	}
	return readings, nil
}

// ClearReadings empties the reading log. Elevated.
func (s *Service) ClearReadings(ctx context.Context, actor domain.Actor) error {
	if err := requireAdmin(actor, "clearing the log"); err != nil {
		return s.userError(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.ClearReadings(ctx); err != nil {
		return fmt.Errorf("clear readings: %w", err)
	}
	s.logger.Warn("reading log cleared")
	return nil
}

// LogIncident back-enters a confirmed condensation occurrence. Elevated.
// Incidents feed the forecast history but do not change live status.
func (s *Service) LogIncident(ctx context.Context, in domain.IncidentInput, actor domain.Actor) (domain.SensorReading, error) {
	if err := requireAdmin(actor, "logging incidents"); err != nil {
		return domain.SensorReading{}, s.userError(err)
	}
	incident, err := domain.NewIncident(uuid.NewString(), in, domain.Now())
	if err != nil {
		return domain.SensorReading{}, s.userError(err)
	}

	s.mu.Lock()
	err = s.store.AppendReading(ctx, incident)
	s.mu.Unlock()
	if err != nil {
		return domain.SensorReading{}, fmt.Errorf("append incident: %w", err)
	}

	s.metrics.ReadingsRecorded.WithLabelValues(string(incident.Source), string(incident.RiskTier)).Inc()
	s.logger.Info("incident logged", "location", incident.Location, "date", incident.Date, "outdoor_temp", incident.OutdoorTemp)
	s.forecast.Invalidate()
	s.publish(ctx, domain.ReadingEvent(incident))
	return incident, nil
}

// Authenticate exchanges the shared passcode for a session.
func (s *Service) Authenticate(passcode string) (Session, error) {
	sess, err := s.auth.Login(passcode)
	if err != nil {
		s.logger.Warn("authentication failed")
		return Session{}, s.userError(err)
	}
	return sess, nil
}

// Logout revokes a session token. Unknown tokens are ignored.
func (s *Service) Logout(token string) { s.auth.Logout(token) }

// SetForecastKeys stores the forecast service keys. Empty values are left
// unchanged. Elevated.
func (s *Service) SetForecastKeys(ctx context.Context, short, mid string, actor domain.Actor) error {
	if err := requireAdmin(actor, "changing forecast keys"); err != nil {
		return s.userError(err)
	}
	if short == "" && mid == "" {
		return s.userError(domain.Validationf("at least one forecast key is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if short != "" {
		if err := s.store.SetSetting(ctx, store.SettingShortForecastKey, short); err != nil {
			return fmt.Errorf("save short forecast key: %w", err)
		}
	}
	if mid != "" {
		if err := s.store.SetSetting(ctx, store.SettingMidForecastKey, mid); err != nil {
			return fmt.Errorf("save mid forecast key: %w", err)
		}
	}
	if p, ok := s.weather.(interface{ Purge() }); ok {
		p.Purge()
	}
	s.forecast.Invalidate()
	s.logger.Info("forecast keys updated", "short", short != "", "mid", mid != "")
	return nil
}

// Rollover runs once per facility day: it refreshes the weekly outlook and
// records the day in settings. It reports whether anything was done.
func (s *Service) Rollover(ctx context.Context) (bool, error) {
	today := domain.Today()
	last, ok, err := s.store.Setting(ctx, store.SettingLastResetDate)
	if err != nil {
		return false, fmt.Errorf("load last reset date: %w", err)
	}
	if ok && last == today {
		return false, nil
	}
	if _, err := s.forecast.Weekly(ctx, true); err != nil {
		return false, fmt.Errorf("refresh forecast: %w", err)
	}
	if err := s.store.SetSetting(ctx, store.SettingLastResetDate, today); err != nil {
		return false, fmt.Errorf("save last reset date: %w", err)
	}
	s.logger.Info("daily rollover", "date", today, "previous", last)
	return true, nil
}

func (s *Service) publish(ctx context.Context, events ...domain.Event) {
	for _, ns := range s.sinks {
		if err := ns.sink.Publish(ctx, events...); err != nil {
			s.metrics.EventsPublished.WithLabelValues(ns.name, "error").Add(float64(len(events)))
			s.logger.Warn("publish events", "sink", ns.name, "error", err)
			continue
		}
		s.metrics.EventsPublished.WithLabelValues(ns.name, "success").Add(float64(len(events)))
	}
}

// userError counts operator-correctable failures and passes err through.
func (s *Service) userError(err error) error {
	var ue *domain.UserError
	if errors.As(err, &ue) {
		s.metrics.UserErrors.WithLabelValues(string(ue.Kind)).Inc()
	}
	return err
}
