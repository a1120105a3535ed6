package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends selectable through STORAGE_BACKEND.
const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	Timezone        string
	CORSOrigins     []string

	// Storage.
	StorageBackend string
	SQLitePath     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string
	RedisMirror    bool

	// Operator authorization.
	AdminPasscode string
	SessionTTL    time.Duration

	// Risk policy.
	Policy         string
	IncidentWindow int

	// KMA open API.
	KMABaseURL       string
	KMAShortKey      string
	KMAMidKey        string
	KMATimeout       time.Duration
	KMACacheSize     int
	KMAGridX         int
	KMAGridY         int
	KMAMidTempRegion string
	KMAMidLandRegion string

	// Scheduler; empty specs disable the job.
	ForecastRefreshCron string
	RolloverCron        string

	// Event sinks, each enabled when its address is set.
	KafkaBrokers []string
	KafkaTopic   string
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// Live sensor ingest, enabled when MQTT_BROKER is set.
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string
}

// KafkaEnabled reports whether readings and reports are published to Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// InfluxEnabled reports whether readings are written to InfluxDB.
func (c *Config) InfluxEnabled() bool { return c.InfluxURL != "" }

// MQTTEnabled reports whether the sensor subscription is started.
func (c *Config) MQTTEnabled() bool { return c.MQTTBroker != "" }

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	durationVar := func(key, def string) time.Duration {
		d, err := parseDuration(key, def)
		errs = append(errs, err)
		return d
	}
	intVar := func(key string, def, lo int) int {
		n, err := parseInt(key, def, lo)
		errs = append(errs, err)
		return n
	}
	boolVar := func(key string, def bool) bool {
		b, err := parseBool(key, def)
		errs = append(errs, err)
		return b
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: durationVar("SHUTDOWN_TIMEOUT", "10s"),
		Timezone:        envOrDefault("TIMEZONE", "Asia/Seoul"),
		CORSOrigins:     parseList(envOrDefault("CORS_ORIGINS", "*")),

		StorageBackend: strings.ToLower(envOrDefault("STORAGE_BACKEND", StorageSQLite)),
		SQLitePath:     envOrDefault("SQLITE_PATH", "data/monitor.db"),
		RedisAddr:      envOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        intVar("REDIS_DB", 0, 0),
		RedisPrefix:    envOrDefault("REDIS_PREFIX", "condensation:"),
		RedisMirror:    boolVar("REDIS_MIRROR", false),

		AdminPasscode: os.Getenv("ADMIN_PASSCODE"),
		SessionTTL:    durationVar("SESSION_TTL", "12h"),

		Policy:         strings.ToLower(envOrDefault("RISK_POLICY", "strict")),
		IncidentWindow: intVar("INCIDENT_WINDOW", 100, 1),

		KMABaseURL:       envOrDefault("KMA_BASE_URL", "http://apis.data.go.kr/1360000"),
		KMAShortKey:      os.Getenv("KMA_SHORT_KEY"),
		KMAMidKey:        os.Getenv("KMA_MID_KEY"),
		KMATimeout:       durationVar("KMA_TIMEOUT", "10s"),
		KMACacheSize:     intVar("KMA_CACHE_SIZE", 64, 1),
		KMAGridX:         intVar("KMA_GRID_NX", 56, 1),
		KMAGridY:         intVar("KMA_GRID_NY", 127, 1),
		KMAMidTempRegion: envOrDefault("KMA_MID_TEMP_REGION", "11F20503"),
		KMAMidLandRegion: envOrDefault("KMA_MID_LAND_REGION", "11F20000"),

		ForecastRefreshCron: envOrDefault("FORECAST_REFRESH_CRON", "5 6,18 * * *"),
		RolloverCron:        envOrDefault("ROLLOVER_CRON", "1 0 * * *"),

		KafkaBrokers: parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "coil-condition-events"),
		InfluxURL:    os.Getenv("INFLUX_URL"),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    envOrDefault("INFLUX_ORG", "plant"),
		InfluxBucket: envOrDefault("INFLUX_BUCKET", "condensation"),

		MQTTBroker:   os.Getenv("MQTT_BROKER"),
		MQTTTopic:    envOrDefault("MQTT_TOPIC", "condensation/readings"),
		MQTTClientID: envOrDefault("MQTT_CLIENT_ID", "coil-condensation-monitor"),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	switch cfg.StorageBackend {
	case StorageSQLite, StorageRedis, StorageMemory:
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND must be sqlite, redis or memory, got %q", cfg.StorageBackend)
	}
	if cfg.RedisMirror && cfg.StorageBackend == StorageRedis {
		return nil, errors.New("REDIS_MIRROR requires a local STORAGE_BACKEND")
	}
	if cfg.Policy != "strict" && cfg.Policy != "legacy" {
		return nil, fmt.Errorf("RISK_POLICY must be strict or legacy, got %q", cfg.Policy)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	if cfg.KafkaEnabled() && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if cfg.InfluxEnabled() && cfg.InfluxToken == "" {
		return nil, errors.New("INFLUX_URL is set but INFLUX_TOKEN is not")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseInt(key string, def, lo int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo {
		return 0, fmt.Errorf("invalid %s: must be an integer >= %d", key, lo)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", key)
	}
	return b, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
