// Command importincidents back-fills confirmed condensation incidents from a
// CSV export into the configured store so the forecast policy can match
// against them.
//
// The CSV needs a header row with the columns
//
//	location,date,time,steel_temp,air_temp,humidity,outdoor_temp
//
// in any order. Rows are validated exactly as the incident endpoint validates
// them; the import stops at the first invalid row unless -skip-invalid is set.
//
// Usage:
//
//	go run ./cmd/importincidents -csv data/incidents.csv
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/coil-condensation-monitor/internal/config"
	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
	"github.com/couchcryptid/coil-condensation-monitor/internal/monitor"
	"github.com/couchcryptid/coil-condensation-monitor/internal/observability"
	"github.com/couchcryptid/coil-condensation-monitor/internal/store"
)

var columns = []string{"location", "date", "time", "steel_temp", "air_temp", "humidity", "outdoor_temp"}

func main() {
	if err := run(); err != nil {
		slog.Error("import failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	csvPath := flag.String("csv", "", "path to the incident CSV export")
	dryRun := flag.Bool("dry-run", false, "parse and validate without writing")
	skipInvalid := flag.Bool("skip-invalid", false, "log and skip rows that fail validation")
	flag.Parse()

	if *csvPath == "" {
		flag.Usage()
		return errors.New("missing required flag: -csv")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg)

	f, err := os.Open(*csvPath)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // read-only

	rows, err := parseIncidents(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", *csvPath, err)
	}
	logger.Info("incidents parsed", "rows", len(rows))
	if *dryRun {
		for i, in := range rows {
			if _, err := domain.NewIncident("dry-run", in, domain.Now()); err != nil {
				logger.Warn("invalid row", "row", i+2, "error", err)
			}
		}
		return nil
	}

	ctx := context.Background()
	backend, err := store.Open(ctx, cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close() //nolint:errcheck // best-effort on exit

	svc := monitor.New(backend, nil, monitor.Options{IncidentWindow: cfg.IncidentWindow},
		observability.NewMetricsForTesting(), logger)
	imported, skipped, err := importAll(ctx, svc, rows, *skipInvalid, logger)
	logger.Info("import finished", "imported", imported, "skipped", skipped)
	return err
}

// IncidentLogger stores one incident.
type IncidentLogger interface {
	LogIncident(ctx context.Context, in domain.IncidentInput, actor domain.Actor) (domain.SensorReading, error)
}

// importAll logs every row as an operator with elevated access.
func importAll(ctx context.Context, svc IncidentLogger, rows []domain.IncidentInput, skipInvalid bool, logger *slog.Logger) (int, int, error) {
	operator := domain.Actor{Admin: true}
	imported, skipped := 0, 0
	for i, in := range rows {
		_, err := svc.LogIncident(ctx, in, operator)
		if err == nil {
			imported++
			continue
		}
		if _, ok := domain.AsUserError(err); ok && skipInvalid {
			logger.Warn("skipping invalid row", "row", i+2, "error", err)
			skipped++
			continue
		}
		return imported, skipped, fmt.Errorf("row %d: %w", i+2, err)
	}
	return imported, skipped, nil
}

// parseIncidents reads the CSV into incident inputs. Numeric cells must
// parse; range checks are left to incident validation.
func parseIncidents(r io.Reader) ([]domain.IncidentInput, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range columns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	var out []domain.IncidentInput //nolint:prealloc // size depends on CSV contents
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		in, err := toIncident(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, in)
	}
}

func toIncident(rec []string, idx map[string]int) (domain.IncidentInput, error) {
	cell := func(name string) string { return strings.TrimSpace(rec[idx[name]]) }
	num := func(name string) (float64, error) {
		v, err := strconv.ParseFloat(cell(name), 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", name, cell(name))
		}
		return v, nil
	}

	in := domain.IncidentInput{
		Location: cell("location"),
		Date:     cell("date"),
		Time:     cell("time"),
	}
	var err error
	if in.SteelTemp, err = num("steel_temp"); err != nil {
		return in, err
	}
	if in.AirTemp, err = num("air_temp"); err != nil {
		return in, err
	}
	if in.Humidity, err = num("humidity"); err != nil {
		return in, err
	}
	if cell("outdoor_temp") != "" {
		v, err := num("outdoor_temp")
		if err != nil {
			return in, err
		}
		in.OutdoorTemp = &v
	}
	return in, nil
}
