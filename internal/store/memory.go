package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
)

// Memory is an ephemeral Backend used in tests and demos.
type Memory struct {
	mu       sync.RWMutex
	logs     []domain.SensorReading // oldest first
	statuses map[string]domain.LocationStatus
	reports  map[string]map[domain.Slot][]byte
	settings map[string]string
	forecast []byte
	closed   bool
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		statuses: make(map[string]domain.LocationStatus),
		reports:  make(map[string]map[domain.Slot][]byte),
		settings: make(map[string]string),
	}
}

func (m *Memory) AppendReading(_ context.Context, r domain.SensorReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.logs = append(m.logs, r)
	return nil
}

func (m *Memory) Readings(_ context.Context, limit int) ([]domain.SensorReading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	n := len(m.logs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.SensorReading, 0, n)
	for i := len(m.logs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.logs[i])
	}
	return out, nil
}

func (m *Memory) ClearReadings(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.logs = nil
	return nil
}

func (m *Memory) SaveStatus(_ context.Context, s domain.LocationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.statuses[s.Location] = s
	return nil
}

func (m *Memory) Statuses(_ context.Context) (map[string]domain.LocationStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make(map[string]domain.LocationStatus, len(m.statuses))
	for k, v := range m.statuses {
		out[k] = v
	}
	return out, nil
}

// Reports are held serialized so callers cannot mutate stored snapshots.
func (m *Memory) SaveReport(_ context.Context, r domain.InspectionReport) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.reports[r.Date] == nil {
		m.reports[r.Date] = make(map[domain.Slot][]byte)
	}
	m.reports[r.Date][r.Slot] = body
	return nil
}

func (m *Memory) Reports(_ context.Context, date string) ([]domain.InspectionReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []domain.InspectionReport
	for _, body := range m.reports[date] {
		var r domain.InspectionReport
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
		out = append(out, r)
	}
	sortReports(out)
	return out, nil
}

func (m *Memory) ReportSlots(_ context.Context, from, to string) (map[string][]domain.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make(map[string][]domain.Slot)
	for date, slots := range m.reports {
		if date < from || date > to || len(slots) == 0 {
			continue
		}
		for s := range slots {
			out[date] = append(out[date], s)
		}
		sortSlots(out[date])
	}
	return out, nil
}

func (m *Memory) Setting(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.settings[key]
	return v, ok, nil
}

func (m *Memory) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.settings[key] = value
	return nil
}

func (m *Memory) CachedForecast(_ context.Context) (*domain.WeeklyForecast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.forecast == nil {
		return nil, nil
	}
	var f domain.WeeklyForecast
	if err := json.Unmarshal(m.forecast, &f); err != nil {
		return nil, fmt.Errorf("unmarshal forecast: %w", err)
	}
	return &f, nil
}

func (m *Memory) SaveCachedForecast(_ context.Context, f domain.WeeklyForecast) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal forecast: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.forecast = body
	return nil
}

func (m *Memory) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
