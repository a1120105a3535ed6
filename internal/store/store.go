// Package store persists readings, live location status, inspection reports,
// settings and the daily forecast cache behind one Backend contract.
//
// Logical collections:
//
//	logs            append-only readings, read newest-first
//	locationStatus  one row per location, last write wins
//	reports         keyed by (date, slot), replaced wholesale on resubmit
//	settings        forecast API keys and the last rollover date
//	cachedForecast  the weekly outlook computed today
package store

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
)

// Setting keys.
const (
	SettingShortForecastKey = "shortForecastKey"
	SettingMidForecastKey   = "midForecastKey"
	SettingLastResetDate    = "lastResetDate"
)

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("store closed")

// Backend is the persistence contract shared by every storage implementation.
type Backend interface {
	// AppendReading adds r to the head of the log.
	AppendReading(ctx context.Context, r domain.SensorReading) error
	// Readings returns up to limit readings newest-first; limit <= 0 returns all.
	Readings(ctx context.Context, limit int) ([]domain.SensorReading, error)
	// ClearReadings empties the log.
	ClearReadings(ctx context.Context) error

	SaveStatus(ctx context.Context, s domain.LocationStatus) error
	Statuses(ctx context.Context) (map[string]domain.LocationStatus, error)

	// SaveReport stores r under (r.Date, r.Slot), replacing any previous report.
	SaveReport(ctx context.Context, r domain.InspectionReport) error
	// Reports returns the reports of date in slot order.
	Reports(ctx context.Context, date string) ([]domain.InspectionReport, error)
	// ReportSlots maps each date in [from, to] that has reports to its slots.
	ReportSlots(ctx context.Context, from, to string) (map[string][]domain.Slot, error)

	// Setting returns the value of key and whether it is set.
	Setting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error

	// CachedForecast returns the cached outlook, or nil when none is stored.
	CachedForecast(ctx context.Context) (*domain.WeeklyForecast, error)
	SaveCachedForecast(ctx context.Context, f domain.WeeklyForecast) error

	Ping(ctx context.Context) error
	Close() error
}

func sortReports(reports []domain.InspectionReport) {
	slices.SortFunc(reports, func(a, b domain.InspectionReport) int {
		return strings.Compare(string(a.Slot), string(b.Slot))
	})
}

func sortSlots(slots []domain.Slot) {
	slices.Sort(slots)
}
