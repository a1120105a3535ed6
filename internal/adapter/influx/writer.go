// Package influx records monitor events as InfluxDB time series so dew-point
// margins and flag changes can be charted per location.
package influx

import (
	"context"
	"fmt"
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/couchcryptid/coil-condensation-monitor/internal/config"
	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
)

const (
	measurementCondition = "coil_condition"
	measurementStatus    = "coil_status"
)

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Writer is a domain.EventSink backed by a blocking InfluxDB write API.
type Writer struct {
	client influxdb2.Client
	write  pointWriter
	logger *slog.Logger
}

// NewWriter connects to the configured InfluxDB org and bucket.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	return &Writer{
		client: client,
		write:  client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		logger: logger,
	}
}

// Publish writes one point per reading or status event. Report events carry
// no time series and are skipped.
func (w *Writer) Publish(ctx context.Context, events ...domain.Event) error {
	points := make([]*write.Point, 0, len(events))
	for _, e := range events {
		if p := toPoint(e); p != nil {
			points = append(points, p)
		}
	}
	if len(points) == 0 {
		return nil
	}
	if err := w.write.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write %d points to influxdb: %w", len(points), err)
	}
	w.logger.Debug("points written", "count", len(points))
	return nil
}

// Close releases the client's HTTP resources.
func (w *Writer) Close() error {
	w.client.Close()
	return nil
}

func toPoint(e domain.Event) *write.Point {
	switch {
	case e.Reading != nil:
		r := e.Reading
		fields := map[string]any{
			"steel_temp": r.SteelTemp,
			"air_temp":   r.AirTemp,
			"humidity":   r.Humidity,
			"dew_point":  r.DewPoint,
			"margin":     r.Margin(),
		}
		if r.OutdoorTemp != nil {
			fields["outdoor_temp"] = *r.OutdoorTemp
		}
		return influxdb2.NewPoint(measurementCondition, map[string]string{
			"location":  r.Location,
			"risk_tier": string(r.RiskTier),
			"source":    string(r.Source),
		}, fields, r.Timestamp)
	case e.Status != nil:
		s := e.Status
		return influxdb2.NewPoint(measurementStatus, map[string]string{
			"location": s.Location,
		}, map[string]any{
			"gate_open":            s.GateOpen,
			"packaged":             s.Packaged,
			"product_condensation": s.ProductCondensationDetected,
			"risk_severity":        s.RiskTier.Severity(),
		}, e.OccurredAt)
	default:
		return nil
	}
}
