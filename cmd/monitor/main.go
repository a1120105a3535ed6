package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/coil-condensation-monitor/internal/adapter/http"
	"github.com/couchcryptid/coil-condensation-monitor/internal/adapter/influx"
	kafkaadapter "github.com/couchcryptid/coil-condensation-monitor/internal/adapter/kafka"
	"github.com/couchcryptid/coil-condensation-monitor/internal/adapter/kma"
	mqttadapter "github.com/couchcryptid/coil-condensation-monitor/internal/adapter/mqtt"
	"github.com/couchcryptid/coil-condensation-monitor/internal/config"
	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
	"github.com/couchcryptid/coil-condensation-monitor/internal/monitor"
	"github.com/couchcryptid/coil-condensation-monitor/internal/observability"
	"github.com/couchcryptid/coil-condensation-monitor/internal/scheduler"
	"github.com/couchcryptid/coil-condensation-monitor/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	zone, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}
	domain.SetZone(zone)

	policy, err := domain.PolicyByName(cfg.Policy)
	if err != nil {
		logger.Error("invalid risk policy", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(ctx, cfg, logger, func(op string) {
		metrics.MirrorFailures.WithLabelValues(op).Inc()
	})
	if err != nil {
		logger.Error("failed to open store", "backend", cfg.StorageBackend, "error", err)
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}

	// Keys saved through the settings endpoint take precedence over the env.
	keys := kma.NewStoredKeys(backend, kma.Keys{Short: cfg.KMAShortKey, Mid: cfg.KMAMidKey})
	client := kma.NewClient(kma.Options{
		BaseURL:       cfg.KMABaseURL,
		Timeout:       cfg.KMATimeout,
		GridX:         cfg.KMAGridX,
		GridY:         cfg.KMAGridY,
		MidTempRegion: cfg.KMAMidTempRegion,
		MidLandRegion: cfg.KMAMidLandRegion,
	}, keys, metrics, logger)
	weather := kma.NewCachedProvider(client, cfg.KMACacheSize, metrics)

	svc := monitor.New(backend, weather, monitor.Options{
		IncidentWindow: cfg.IncidentWindow,
		Passcode:       cfg.AdminPasscode,
		SessionTTL:     cfg.SessionTTL,
		Policy:         policy,
	}, metrics, logger)
	if cfg.AdminPasscode == "" {
		logger.Warn("ADMIN_PASSCODE not set; elevated operations are disabled")
	}

	closers := addSinks(cfg, svc, logger)

	sched, err := scheduler.New(cfg, svc, metrics, logger)
	if err != nil {
		logger.Error("failed to configure scheduler", "error", err)
		_ = backend.Close()
		stop()
		os.Exit(1) //nolint:gocritic // resources released above
	}
	// Catch up on a rollover missed while the service was down.
	sched.RunRollover(ctx)
	sched.Start()

	var sub *mqttadapter.Subscriber
	if cfg.MQTTEnabled() {
		sub = mqttadapter.NewSubscriber(cfg, svc, metrics, logger)
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := sub.Connect(connectCtx); err != nil {
			logger.Warn("mqtt not connected yet, retrying in background", "broker", cfg.MQTTBroker, "error", err)
		}
		cancel()
	} else {
		logger.Info("mqtt ingest disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, cfg.CORSOrigins, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()
	metrics.ServiceRunning.Set(1)

	<-ctx.Done()
	logger.Info("shutting down")
	metrics.ServiceRunning.Set(0)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if sub != nil {
		sub.Disconnect()
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler stop error", "error", err)
	}
	for name, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error("sink close error", "sink", name, "error", err)
		}
	}
	if err := backend.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// addSinks registers the enabled event sinks and returns them for shutdown.
func addSinks(cfg *config.Config, svc *monitor.Service, logger *slog.Logger) map[string]io.Closer {
	closers := map[string]io.Closer{}
	if cfg.KafkaEnabled() {
		w := kafkaadapter.NewWriter(cfg, logger)
		svc.AddSink("kafka", w)
		closers["kafka"] = w
		logger.Info("kafka events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	if cfg.InfluxEnabled() {
		w := influx.NewWriter(cfg, logger)
		svc.AddSink("influx", w)
		closers["influx"] = w
		logger.Info("influxdb export enabled", "url", cfg.InfluxURL, "bucket", cfg.InfluxBucket)
	}
	return closers
}
