package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
)

// Mirrored reads from and writes to primary, then repeats each write on
// secondary. Secondary failures are logged and reported through onFailure but
// never returned.
type Mirrored struct {
	primary   Backend
	secondary Backend
	logger    *slog.Logger
	onFailure func(op string)
}

// NewMirrored builds a write-through mirror. onFailure may be nil.
func NewMirrored(primary, secondary Backend, logger *slog.Logger, onFailure func(op string)) *Mirrored {
	if onFailure == nil {
		onFailure = func(string) {}
	}
	return &Mirrored{primary: primary, secondary: secondary, logger: logger, onFailure: onFailure}
}

func (m *Mirrored) mirror(op string, write func(Backend) error) error {
	if err := write(m.primary); err != nil {
		return err
	}
	if err := write(m.secondary); err != nil {
		m.logger.Warn("mirror write failed", "op", op, "error", err)
		m.onFailure(op)
	}
	return nil
}

func (m *Mirrored) AppendReading(ctx context.Context, r domain.SensorReading) error {
	return m.mirror("append_reading", func(b Backend) error { return b.AppendReading(ctx, r) })
}

func (m *Mirrored) Readings(ctx context.Context, limit int) ([]domain.SensorReading, error) {
	return m.primary.Readings(ctx, limit)
}

func (m *Mirrored) ClearReadings(ctx context.Context) error {
	return m.mirror("clear_readings", func(b Backend) error { return b.ClearReadings(ctx) })
}

func (m *Mirrored) SaveStatus(ctx context.Context, s domain.LocationStatus) error {
	return m.mirror("save_status", func(b Backend) error { return b.SaveStatus(ctx, s) })
}

func (m *Mirrored) Statuses(ctx context.Context) (map[string]domain.LocationStatus, error) {
	return m.primary.Statuses(ctx)
}

func (m *Mirrored) SaveReport(ctx context.Context, r domain.InspectionReport) error {
	return m.mirror("save_report", func(b Backend) error { return b.SaveReport(ctx, r) })
}

func (m *Mirrored) Reports(ctx context.Context, date string) ([]domain.InspectionReport, error) {
	return m.primary.Reports(ctx, date)
}

func (m *Mirrored) ReportSlots(ctx context.Context, from, to string) (map[string][]domain.Slot, error) {
	return m.primary.ReportSlots(ctx, from, to)
}

func (m *Mirrored) Setting(ctx context.Context, key string) (string, bool, error) {
	return m.primary.Setting(ctx, key)
}

func (m *Mirrored) SetSetting(ctx context.Context, key, value string) error {
	return m.mirror("set_setting", func(b Backend) error { return b.SetSetting(ctx, key, value) })
}

func (m *Mirrored) CachedForecast(ctx context.Context) (*domain.WeeklyForecast, error) {
	return m.primary.CachedForecast(ctx)
}

func (m *Mirrored) SaveCachedForecast(ctx context.Context, f domain.WeeklyForecast) error {
	return m.mirror("save_cached_forecast", func(b Backend) error { return b.SaveCachedForecast(ctx, f) })
}

// Ping checks only the primary; an unreachable mirror does not make the
// service unready.
func (m *Mirrored) Ping(ctx context.Context) error {
	return m.primary.Ping(ctx)
}

func (m *Mirrored) Close() error {
	return errors.Join(m.primary.Close(), m.secondary.Close())
}
