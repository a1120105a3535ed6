// Package mqtt ingests live sensor readings from an MQTT broker and records
// them through the monitor service.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/couchcryptid/coil-condensation-monitor/internal/config"
	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
	"github.com/couchcryptid/coil-condensation-monitor/internal/observability"
)

const (
	qos           = byte(1)
	recordTimeout = 15 * time.Second
)

// Recorder stores one evaluated reading.
type Recorder interface {
	RecordReading(ctx context.Context, in domain.ReadingInput) (domain.SensorReading, domain.LocationStatus, error)
}

// Message is the JSON payload published by the warehouse sensors. Flags are
// optional and keep their previous value when absent.
type Message struct {
	Location            string   `json:"location"`
	SteelTemp           *float64 `json:"steel_temp"`
	AirTemp             *float64 `json:"air_temp"`
	Humidity            *float64 `json:"humidity"`
	GateOpen            *bool    `json:"gate_open,omitempty"`
	Packaged            *bool    `json:"packaged,omitempty"`
	ProductCondensation *bool    `json:"product_condensation,omitempty"`
}

// Input converts the payload into a reading input stamped with the current
// facility time.
func (m Message) Input() (domain.ReadingInput, error) {
	if m.Location == "" {
		return domain.ReadingInput{}, errors.New("location is required")
	}
	if m.SteelTemp == nil || m.AirTemp == nil || m.Humidity == nil {
		return domain.ReadingInput{}, errors.New("steel_temp, air_temp and humidity are required")
	}
	return domain.ReadingInput{
		Location:  m.Location,
		SteelTemp: *m.SteelTemp,
		AirTemp:   *m.AirTemp,
		Humidity:  *m.Humidity,
		Flags: domain.FlagUpdate{
			GateOpen:            m.GateOpen,
			Packaged:            m.Packaged,
			ProductCondensation: m.ProductCondensation,
		},
	}, nil
}

// Subscriber consumes sensor readings from one topic.
type Subscriber struct {
	client   mqtt.Client
	topic    string
	broker   string
	recorder Recorder
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu        sync.RWMutex
	connected bool

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewSubscriber creates a subscriber for cfg.MQTTBroker. It does not connect.
func NewSubscriber(cfg *config.Config, recorder Recorder, metrics *observability.Metrics, logger *slog.Logger) *Subscriber {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscriber{
		topic:    cfg.MQTTTopic,
		broker:   cfg.MQTTBroker,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Subscriptions are dropped with a clean session, so resubscribe on
	// every (re)connect.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", s.broker)
		token := c.Subscribe(s.topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
			s.handleMessage(msg.Topic(), msg.Payload())
		})
		if !token.WaitTimeout(5 * time.Second) {
			logger.Error("mqtt subscribe timed out", "topic", s.topic)
			return
		}
		if err := token.Error(); err != nil {
			logger.Error("mqtt subscribe failed", "topic", s.topic, "error", err)
			return
		}
		logger.Info("subscribed to mqtt topic", "topic", s.topic, "qos", qos)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Connect starts the connection and waits until the first attempt completes
// or ctx is done. With connect retry enabled the client keeps trying in the
// background after ctx expires.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.ctx.Done():
		return errors.New("subscriber stopped")
	default:
	}

	token := s.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsConnected reports whether the broker session is up.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect unsubscribes and closes the connection. Safe to call twice.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.IsConnected() {
			s.client.Unsubscribe(s.topic).WaitTimeout(2 * time.Second)
		}
		s.client.Disconnect(250)
		s.setConnected(false)
		s.logger.Info("mqtt subscriber disconnected")
	})
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.metrics.IngestMessages.WithLabelValues("malformed").Inc()
		s.logger.Warn("failed to parse reading message", "topic", topic, "error", err)
		return
	}
	in, err := msg.Input()
	if err != nil {
		s.metrics.IngestMessages.WithLabelValues("malformed").Inc()
		s.logger.Warn("invalid reading message", "topic", topic, "location", msg.Location, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, recordTimeout)
	defer cancel()

	reading, _, err := s.recorder.RecordReading(ctx, in)
	if err != nil {
		if _, ok := domain.AsUserError(err); ok {
			s.metrics.IngestMessages.WithLabelValues("rejected").Inc()
			s.logger.Warn("reading rejected", "topic", topic, "location", msg.Location, "error", err)
			return
		}
		s.metrics.IngestMessages.WithLabelValues("failed").Inc()
		s.logger.Error("record reading failed", "topic", topic, "location", msg.Location, "error", err)
		return
	}
	s.metrics.IngestMessages.WithLabelValues("recorded").Inc()
	s.logger.Debug("sensor reading ingested", "location", reading.Location, "risk_tier", reading.RiskTier)
}
