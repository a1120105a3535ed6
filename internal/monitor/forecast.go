package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
	"github.com/couchcryptid/coil-condensation-monitor/internal/observability"
	"github.com/couchcryptid/coil-condensation-monitor/internal/store"
)

// ForecastService computes the weekly equipment outlook once per facility
// day. The result is held in process and mirrored to the backend so a
// restart on the same day serves the same outlook.
type ForecastService struct {
	store   store.Backend
	weather domain.WeatherProvider
	policy  domain.Policy
	window  int
	rand    *rand.Rand
	metrics *observability.Metrics
	logger  *slog.Logger

	mu        sync.Mutex
	cached    *domain.WeeklyForecast
	forceNext bool
}

// NewForecastService creates a ForecastService. weather may be nil, in which
// case every day is synthetic.
func NewForecastService(backend store.Backend, weather domain.WeatherProvider, policy domain.Policy, window int, metrics *observability.Metrics, logger *slog.Logger) *ForecastService {
	if policy == nil {
		policy = domain.StrictPolicy{}
	}
	return &ForecastService{
		store:   backend,
		weather: weather,
		policy:  policy,
		window:  window,
		metrics: metrics,
		logger:  logger,
	}
}

// Weekly returns today's outlook, computing it on the first call of the day
// or when force is set. Concurrent refreshes are not coalesced; the last one
// to finish is cached.
func (f *ForecastService) Weekly(ctx context.Context, force bool) (domain.WeeklyForecast, error) {
	today := domain.Today()

	f.mu.Lock()
	force = force || f.forceNext
	cached := f.cached
	f.mu.Unlock()

	if !force {
		if cached != nil && f.fresh(*cached, today) {
			f.metrics.ForecastCache.WithLabelValues("hit").Inc()
			return *cached, nil
		}
		stored, err := f.store.CachedForecast(ctx)
		if err != nil {
			f.logger.Warn("load cached forecast", "error", err)
		} else if stored != nil && f.fresh(*stored, today) {
			f.metrics.ForecastCache.WithLabelValues("hit").Inc()
			f.remember(stored)
			return *stored, nil
		}
	}
	f.metrics.ForecastCache.WithLabelValues("miss").Inc()

	w, err := f.compute(ctx, today)
	if err != nil {
		return domain.WeeklyForecast{}, err
	}
	f.remember(&w)
	if err := f.store.SaveCachedForecast(ctx, w); err != nil {
		f.logger.Warn("save cached forecast", "error", err)
	}
	return w, nil
}

// Invalidate makes the next Weekly call recompute regardless of the cache.
func (f *ForecastService) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cached = nil
	f.forceNext = true
}

func (f *ForecastService) fresh(w domain.WeeklyForecast, today string) bool {
	return w.Date == today && w.Policy == f.policy.Name() && len(w.Days) == domain.ForecastDays
}

func (f *ForecastService) remember(w *domain.WeeklyForecast) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cached = w
	f.forceNext = false
}

func (f *ForecastService) compute(ctx context.Context, today string) (domain.WeeklyForecast, error) {
	short, mid := f.fetch(ctx)

	readings, err := f.store.Readings(ctx, 0)
	if err != nil {
		return domain.WeeklyForecast{}, fmt.Errorf("load incident history: %w", err)
	}

	now := domain.Now()
	days := domain.Reconcile(domain.ReconcileInput{
		Today:     now,
		Short:     short,
		Mid:       mid,
		Incidents: domain.ConfirmedIncidents(readings, f.window),
		Policy:    f.policy,
		Rand:      f.rand,
	})
	w := domain.WeeklyForecast{
		Date:        today,
		GeneratedAt: now,
		Policy:      f.policy.Name(),
		Days:        days,
		Guide:       domain.ManagementGuide(days),
	}

	synthetic := w.SyntheticDays()
	outcome := "live"
	switch {
	case synthetic == len(days):
		outcome = "synthetic"
	case synthetic > 0:
		outcome = "degraded"
	}
	f.metrics.ForecastRefreshes.WithLabelValues(outcome).Inc()
	f.metrics.ForecastSyntheticDays.Set(float64(synthetic))
	f.logger.Info("weekly forecast computed", "date", today, "outcome", outcome, "synthetic_days", synthetic)
	return w, nil
}

// fetch collects both forecast products. Failures degrade to no data.
func (f *ForecastService) fetch(ctx context.Context) ([]domain.ShortRangeSample, []domain.MidRangeDay) {
	if f.weather == nil {
		return nil, nil
	}
	short, err := f.weather.ShortRange(ctx)
	if err != nil {
		f.warnWeather("short-range", err)
		short = nil
	}
	mid, err := f.weather.MidRange(ctx)
	if err != nil {
		f.warnWeather("mid-range", err)
		mid = nil
	}
	return short, mid
}

func (f *ForecastService) warnWeather(product string, err error) {
	if errors.Is(err, domain.ErrMissingCredential) {
		f.logger.Debug("forecast key not configured, using synthetic days", "product", product)
		return
	}
	f.logger.Warn("forecast unavailable", "product", product, "error", err)
}
