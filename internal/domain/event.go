package domain

import (
	"context"
	"time"
)

// EventType names a state change published to event sinks.
type EventType string

const (
	EventReadingRecorded EventType = "reading.recorded"
	EventStatusChanged   EventType = "status.changed"
	EventReportSubmitted EventType = "report.submitted"
)

// Event is a state change fanned out after persistence. Exactly one of the
// payload fields is set, matching Type.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Location   string    `json:"location,omitempty"`

	Reading *SensorReading    `json:"reading,omitempty"`
	Status  *LocationStatus   `json:"status,omitempty"`
	Report  *InspectionReport `json:"report,omitempty"`
}

// Key is the partitioning key: the location, or the report date.
func (e Event) Key() string {
	if e.Location != "" {
		return e.Location
	}
	if e.Report != nil {
		return e.Report.Date
	}
	return string(e.Type)
}

// EventSink receives published events. Delivery is best-effort.
type EventSink interface {
	Publish(ctx context.Context, events ...Event) error
}

// ReadingEvent wraps a logged reading.
func ReadingEvent(r SensorReading) Event {
	return Event{Type: EventReadingRecorded, OccurredAt: r.Timestamp, Location: r.Location, Reading: &r}
}

// StatusEvent wraps an updated location status.
func StatusEvent(s LocationStatus) Event {
	return Event{Type: EventStatusChanged, OccurredAt: s.UpdatedAt, Location: s.Location, Status: &s}
}

// ReportEvent wraps a submitted report.
func ReportEvent(r InspectionReport) Event {
	return Event{Type: EventReportSubmitted, OccurredAt: r.SubmittedAt, Report: &r}
}
