package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "condensation"

// Metrics holds the Prometheus counters, histograms, and gauges for the monitor.
type Metrics struct {
	ServiceRunning prometheus.Gauge

	// Operator actions.
	ReadingsRecorded *prometheus.CounterVec // labels: source={measured,manual}, risk_tier
	FlagToggles      *prometheus.CounterVec // labels: flag={gate,pack,product}, target={live,snapshot}
	ReportsSubmitted *prometheus.CounterVec // labels: slot, mode={new,replace}
	UserErrors       *prometheus.CounterVec // labels: kind
	LocationRisk     *prometheus.GaugeVec   // labels: location; value is tier severity 0-3

	// Weather provider.
	WeatherRequests    *prometheus.CounterVec   // labels: endpoint, outcome={success,error,retry}
	WeatherCache       *prometheus.CounterVec   // labels: result={hit,miss}
	WeatherAPIDuration *prometheus.HistogramVec // labels: endpoint

	// Weekly forecast.
	ForecastRefreshes     *prometheus.CounterVec // labels: outcome={live,degraded,synthetic}
	ForecastCache         *prometheus.CounterVec // labels: result={hit,miss}
	ForecastSyntheticDays prometheus.Gauge

	// Supporting infrastructure.
	EventsPublished *prometheus.CounterVec // labels: sink, outcome={success,error}
	MirrorFailures  *prometheus.CounterVec // labels: op
	IngestMessages  *prometheus.CounterVec // labels: outcome={recorded,malformed,rejected,failed}
	SchedulerRuns   *prometheus.CounterVec // labels: job, outcome={success,skipped,error}
}

// NewMetrics creates and registers all monitor metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ServiceRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_running",
			Help:      "1 while the monitor is serving, 0 after shutdown.",
		}),
		ReadingsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_recorded_total",
			Help:      "Readings appended to the log by source and risk tier.",
		}, []string{"source", "risk_tier"}),
		FlagToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flag_toggles_total",
			Help:      "Gate/pack/product toggles by flag and whether a snapshot was patched.",
		}, []string{"flag", "target"}),
		ReportsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_submitted_total",
			Help:      "Inspection reports stored by slot and whether they replaced an earlier one.",
		}, []string{"slot", "mode"}),
		UserErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_errors_total",
			Help:      "Operator-correctable failures by kind.",
		}, []string{"kind"}),
		LocationRisk: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "location_risk_severity",
			Help:      "Current risk per location: 0 unmeasured, 1 safe, 2 caution, 3 danger.",
		}, []string{"location"}),
		WeatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_requests_total",
			Help:      "Weather API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_cache_total",
			Help:      "Weather response cache lookups by result.",
		}, []string{"result"}),
		WeatherAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_api_duration_seconds",
			Help:      "Weather API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		ForecastRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_refreshes_total",
			Help:      "Weekly forecast computations by data quality.",
		}, []string{"outcome"}),
		ForecastCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_cache_total",
			Help:      "Weekly forecast cache lookups by result.",
		}, []string{"result"}),
		ForecastSyntheticDays: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "forecast_synthetic_days",
			Help:      "Placeholder days in the current weekly forecast.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events delivered to sinks by sink and outcome.",
		}, []string{"sink", "outcome"}),
		MirrorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_write_failures_total",
			Help:      "Failed writes to the mirror backend by operation.",
		}, []string{"op"}),
		IngestMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_messages_total",
			Help:      "Sensor messages received over MQTT by outcome.",
		}, []string{"outcome"}),
		SchedulerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_runs_total",
			Help:      "Scheduled job executions by job and outcome.",
		}, []string{"job", "outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ServiceRunning,
		m.ReadingsRecorded,
		m.FlagToggles,
		m.ReportsSubmitted,
		m.UserErrors,
		m.LocationRisk,
		m.WeatherRequests,
		m.WeatherCache,
		m.WeatherAPIDuration,
		m.ForecastRefreshes,
		m.ForecastCache,
		m.ForecastSyntheticDays,
		m.EventsPublished,
		m.MirrorFailures,
		m.IngestMessages,
		m.SchedulerRuns,
	}
}
