// Package scheduler runs the monitor's periodic jobs: the daily rollover at
// facility midnight and the forecast refreshes after each forecast issue.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/coil-condensation-monitor/internal/config"
	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
	"github.com/couchcryptid/coil-condensation-monitor/internal/observability"
)

const (
	JobRollover        = "rollover"
	JobForecastRefresh = "forecast_refresh"

	jobTimeout = 2 * time.Minute
)

// Jobs is the work the scheduler triggers.
type Jobs interface {
	Rollover(ctx context.Context) (bool, error)
	WeeklyForecast(ctx context.Context, force bool) (domain.WeeklyForecast, error)
}

// Scheduler wraps a cron runner evaluated in the facility time zone.
type Scheduler struct {
	cron    *cron.Cron
	jobs    Jobs
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New registers the rollover and forecast-refresh jobs from cfg.
func New(cfg *config.Config, jobs Jobs, metrics *observability.Metrics, logger *slog.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(domain.Zone()),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:    jobs,
		metrics: metrics,
		logger:  logger,
	}

	if err := s.add(JobRollover, cfg.RolloverCron, s.RunRollover); err != nil {
		return nil, err
	}
	if err := s.add(JobForecastRefresh, cfg.ForecastRefreshCron, s.RefreshForecast); err != nil {
		return nil, err
	}
	return s, nil
}

// add registers run under spec. An empty spec disables the job.
func (s *Scheduler) add(job, spec string, run func(context.Context)) error {
	if spec == "" {
		s.logger.Info("job disabled", "job", job)
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { run(context.Background()) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job, spec, err)
	}
	return nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info("job scheduled", "next", e.Next)
	}
}

// Stop prevents new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunRollover performs the daily rollover if it has not run today.
func (s *Scheduler) RunRollover(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	done, err := s.jobs.Rollover(ctx)
	switch {
	case err != nil:
		s.record(JobRollover, "error")
		s.logger.Error("rollover failed", "error", err)
	case !done:
		s.record(JobRollover, "skipped")
	default:
		s.record(JobRollover, "success")
	}
}

// RefreshForecast recomputes the weekly outlook.
func (s *Scheduler) RefreshForecast(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	w, err := s.jobs.WeeklyForecast(ctx, true)
	if err != nil {
		s.record(JobForecastRefresh, "error")
		s.logger.Error("forecast refresh failed", "error", err)
		return
	}
	s.record(JobForecastRefresh, "success")
	s.logger.Info("forecast refreshed", "date", w.Date, "synthetic_days", w.SyntheticDays())
}

func (s *Scheduler) record(job, outcome string) {
	s.metrics.SchedulerRuns.WithLabelValues(job, outcome).Inc()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
