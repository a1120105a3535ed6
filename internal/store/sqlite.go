package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
)

// SQLite is the local Backend. Status, reports and the forecast cache are
// stored as JSON documents; readings are columnar so the log can be ordered
// and filtered in SQL.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// One writer avoids "database is locked" under concurrent handlers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if err := migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

func buildDSN(path string) (string, error) {
	params := []string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

const (
	insertReadingSQL = `INSERT INTO readings
		(id, location, date, time, steel_temp, air_temp, humidity, outdoor_temp, dew_point, risk_tier, source, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	selectReadingsSQL = `SELECT id, location, date, time, steel_temp, air_temp, humidity, outdoor_temp,
		dew_point, risk_tier, source, recorded_at FROM readings ORDER BY seq DESC`
	upsertStatusSQL = `INSERT INTO location_status (location, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(location) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
	upsertReportSQL = `INSERT INTO reports (date, slot, body, submitted_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(date, slot) DO UPDATE SET body = excluded.body, submitted_at = excluded.submitted_at`
	upsertSettingSQL = `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	upsertForecastSQL = `INSERT INTO cached_forecast (id, date, body) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET date = excluded.date, body = excluded.body`
)

func (s *SQLite) AppendReading(ctx context.Context, r domain.SensorReading) error {
	var outdoor any
	if r.OutdoorTemp != nil {
		outdoor = *r.OutdoorTemp
	}
	_, err := s.db.ExecContext(ctx, insertReadingSQL,
		r.ID, r.Location, r.Date, r.Time, r.SteelTemp, r.AirTemp, r.Humidity, outdoor,
		r.DewPoint, string(r.RiskTier), string(r.Source), r.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (s *SQLite) Readings(ctx context.Context, limit int) ([]domain.SensorReading, error) {
	query := selectReadingsSQL
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []domain.SensorReading
	for rows.Next() {
		var (
			r         domain.SensorReading
			outdoor   sql.NullFloat64
			tier, src string
			ts        string
		)
		if err := rows.Scan(&r.ID, &r.Location, &r.Date, &r.Time, &r.SteelTemp, &r.AirTemp, &r.Humidity,
			&outdoor, &r.DewPoint, &tier, &src, &ts); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		if outdoor.Valid {
			r.OutdoorTemp = domain.Float(outdoor.Float64)
		}
		r.RiskTier = domain.RiskTier(tier)
		r.Source = domain.Source(src)
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse recorded_at %q: %w", ts, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) ClearReadings(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM readings"); err != nil {
		return fmt.Errorf("clear readings: %w", err)
	}
	return nil
}

func (s *SQLite) SaveStatus(ctx context.Context, st domain.LocationStatus) error {
	body, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, upsertStatusSQL, st.Location, string(body),
		st.UpdatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("upsert status %s: %w", st.Location, err)
	}
	return nil
}

func (s *SQLite) Statuses(ctx context.Context) (map[string]domain.LocationStatus, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT location, body FROM location_status")
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	out := make(map[string]domain.LocationStatus)
	for rows.Next() {
		var loc, body string
		if err := rows.Scan(&loc, &body); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		var st domain.LocationStatus
		if err := json.Unmarshal([]byte(body), &st); err != nil {
			return nil, fmt.Errorf("unmarshal status %s: %w", loc, err)
		}
		out[loc] = st
	}
	return out, rows.Err()
}

func (s *SQLite) SaveReport(ctx context.Context, r domain.InspectionReport) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, upsertReportSQL, r.Date, r.Slot.Key(), string(body),
		r.SubmittedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("upsert report %s %s: %w", r.Date, r.Slot, err)
	}
	return nil
}

func (s *SQLite) Reports(ctx context.Context, date string) ([]domain.InspectionReport, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT body FROM reports WHERE date = ? ORDER BY slot", date)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []domain.InspectionReport
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		var r domain.InspectionReport
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) ReportSlots(ctx context.Context, from, to string) (map[string][]domain.Slot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT date, slot FROM reports WHERE date BETWEEN ? AND ? ORDER BY date, slot", from, to)
	if err != nil {
		return nil, fmt.Errorf("query report slots: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	out := make(map[string][]domain.Slot)
	for rows.Next() {
		var date, key string
		if err := rows.Scan(&date, &key); err != nil {
			return nil, fmt.Errorf("scan report slot: %w", err)
		}
		slot, err := domain.ParseSlot(key)
		if err != nil {
			return nil, fmt.Errorf("stored slot %q: %w", key, err)
		}
		out[date] = append(out[date], slot)
	}
	return out, rows.Err()
}

func (s *SQLite) Setting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query setting %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLite) SetSetting(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, upsertSettingSQL, key, value); err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) CachedForecast(ctx context.Context) (*domain.WeeklyForecast, error) {
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM cached_forecast WHERE id = 1").Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cached forecast: %w", err)
	}
	var f domain.WeeklyForecast
	if err := json.Unmarshal([]byte(body), &f); err != nil {
		return nil, fmt.Errorf("unmarshal cached forecast: %w", err)
	}
	return &f, nil
}

func (s *SQLite) SaveCachedForecast(ctx context.Context, f domain.WeeklyForecast) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal forecast: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, upsertForecastSQL, f.Date, string(body)); err != nil {
		return fmt.Errorf("upsert cached forecast: %w", err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite close: %w", err)
	}
	return nil
}
