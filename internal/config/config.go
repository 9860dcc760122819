package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig relational store settings
type DatabaseConfig struct {
	Driver   string // "postgres" or "sqlite3"
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Path     string // sqlite file
	MaxConns int
	MaxIdle  int
}

// DSN connection string for the configured driver
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "sqlite3" {
		return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", c.Path)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis connection
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config service configuration
type Config struct {
	HTTP struct {
		Addr        string
		CORSOrigins []string
	}

	Database DatabaseConfig
	Redis    RedisConfig

	// where records come from
	Source struct {
		Kind        string // "sql" or "http"
		UpstreamURL string
		Timeout     time.Duration
		Retries     int
	}

	// optional time-series store for raw consumption samples
	Influx struct {
		Enabled bool
		URL     string
		Org     string
		Token   string
		Bucket  string
	}

	Cache struct {
		Enabled   bool
		TTL       time.Duration
		KeyPrefix string
	}

	Notify struct {
		Transport     string // none|redis|mqtt|kafka
		Stream        string
		ConsumerGroup string
		ConsumerName  string

		MQTTBroker   string
		MQTTClientID string
		MQTTTopic    string

		KafkaBrokers []string
		KafkaTopic   string
	}

	Analytics struct {
		SessionLimit     int
		ConsumptionLimit int
		SessionOverlap   string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8000")
	cfg.HTTP.CORSOrigins = splitList(getEnv("CORS_ORIGINS", "http://localhost:3000"))

	cfg.Database.Driver = getEnv("DB_DRIVER", "postgres")
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "charging_stations")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.Path = getEnv("DB_PATH", "charging_stations.db")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Source.Kind = getEnv("RECORD_SOURCE", "sql")
	cfg.Source.UpstreamURL = getEnv("UPSTREAM_URL", "http://localhost:8000")
	cfg.Source.Timeout = time.Duration(getEnvInt("UPSTREAM_TIMEOUT", 10)) * time.Second
	cfg.Source.Retries = getEnvInt("UPSTREAM_RETRIES", 3)

	cfg.Influx.Enabled = getEnvBool("INFLUX_ENABLED", false)
	cfg.Influx.URL = getEnv("INFLUXDB_URL", "http://localhost:8086")
	cfg.Influx.Org = getEnv("INFLUXDB_ORG", "charging")
	cfg.Influx.Token = getEnv("INFLUX_TOKEN", "")
	cfg.Influx.Bucket = getEnv("INFLUXDB_BUCKET", "station_consumption")

	cfg.Cache.Enabled = getEnvBool("CACHE_ENABLED", false)
	cfg.Cache.TTL = time.Duration(getEnvInt("CACHE_TTL", 300)) * time.Second
	cfg.Cache.KeyPrefix = getEnv("CACHE_KEY_PREFIX", "charging-stations")

	cfg.Notify.Transport = getEnv("NOTIFY_TRANSPORT", "none")
	cfg.Notify.Stream = getEnv("NOTIFY_STREAM", "charging:losses:events")
	cfg.Notify.ConsumerGroup = getEnv("NOTIFY_CONSUMER_GROUP", "charging-stations-group")
	cfg.Notify.ConsumerName = getEnv("NOTIFY_CONSUMER_NAME", defaultConsumerName())
	cfg.Notify.MQTTBroker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.Notify.MQTTClientID = getEnv("MQTT_CLIENT_ID", "charging-stations")
	cfg.Notify.MQTTTopic = getEnv("MQTT_TOPIC", "charging/losses/recalculated")
	cfg.Notify.KafkaBrokers = splitList(getEnv("KAFKA_BROKERS", "localhost:9092"))
	cfg.Notify.KafkaTopic = getEnv("KAFKA_TOPIC", "charging.losses")

	cfg.Analytics.SessionLimit = getEnvInt("SESSION_LIMIT", 1000)
	cfg.Analytics.ConsumptionLimit = getEnvInt("CONSUMPTION_LIMIT", 1000)
	cfg.Analytics.SessionOverlap = getEnv("SESSION_OVERLAP", "finished")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Source.Kind {
	case "sql", "http":
	default:
		return fmt.Errorf("unsupported RECORD_SOURCE %q", c.Source.Kind)
	}
	switch c.Notify.Transport {
	case "none", "redis", "mqtt", "kafka":
	default:
		return fmt.Errorf("unsupported NOTIFY_TRANSPORT %q", c.Notify.Transport)
	}
	switch c.Analytics.SessionOverlap {
	case "finished", "started", "overlapping":
	default:
		return fmt.Errorf("unsupported SESSION_OVERLAP %q", c.Analytics.SessionOverlap)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v >= 0 {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultConsumerName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return "charging-stations-" + host
	}
	return "charging-stations-1"
}
