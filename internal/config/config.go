package config

import (
	"os"
	"strconv"
	"time"

	commoncfg "chata-intake/common/config"
)

// Draft store backends
const (
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config chata-intake service configuration
type Config struct {
	HTTP struct {
		Addr string
	}
	Store     StoreConfig
	DBEnabled bool
	Database  commoncfg.DatabaseConfig
	Redis     commoncfg.RedisConfig
	Events    EventsConfig
	MQTT      MQTTConfig
	Sheety    SheetyConfig
	Log       struct {
		Level  string
		Format string
	}
	// CatalogFile optional YAML override of the embedded catalog
	CatalogFile string
}

// StoreConfig where drafts live and how long they are kept
type StoreConfig struct {
	Backend    string
	SQLitePath string
	DraftTTL   time.Duration
	Debounce   time.Duration
}

// EventsConfig Redis stream settings for lifecycle events
type EventsConfig struct {
	Enabled      bool
	Stream       string
	StreamMaxLen int64
}

// MQTTConfig optional broker for submission notifications
type MQTTConfig struct {
	Enabled     bool
	TopicPrefix string
	commoncfg.MQTTConfig
}

// SheetyConfig spreadsheet endpoint and delivery policy
type SheetyConfig struct {
	BaseURL        string
	Project        string
	Sheet          string
	Token          string
	Timeout        time.Duration
	Retry          commoncfg.RetryConfig
	RateLimit      float64
	Burst          int
	MaxFieldLength int
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Store.Backend = getEnv("STORE_BACKEND", StoreRedis)
	cfg.Store.SQLitePath = getEnv("SQLITE_PATH", "chata-drafts.db")
	cfg.Store.DraftTTL = parseDuration(getEnv("DRAFT_TTL", "720h"), 30*24*time.Hour)
	cfg.Store.Debounce = parseDuration(getEnv("DRAFT_DEBOUNCE", "2s"), 2*time.Second)

	// if the database is unreachable the archive falls back to memory
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database = commoncfg.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "chata",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = commoncfg.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.Events.Enabled = getEnv("EVENTS_ENABLED", "true") == "true"
	cfg.Events.Stream = getEnv("EVENTS_STREAM", "chata:events")
	cfg.Events.StreamMaxLen = int64(parseInt(getEnv("EVENTS_STREAM_MAXLEN", "10000"), 10000))

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "chata/assessments")
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "chata-intake"
	cfg.MQTT.QoS = 1
	cfg.MQTT.MQTTConfig.LoadFromEnv("MQTT")

	cfg.Sheety.BaseURL = getEnv("SHEETY_BASE_URL", "https://api.sheety.co")
	cfg.Sheety.Project = getEnv("SHEETY_PROJECT", "")
	cfg.Sheety.Sheet = getEnv("SHEETY_SHEET", "assessment")
	cfg.Sheety.Token = getEnv("SHEETY_TOKEN", "")
	cfg.Sheety.Timeout = parseDuration(getEnv("SHEETY_TIMEOUT", "30s"), 30*time.Second)
	cfg.Sheety.Retry = commoncfg.RetryConfig{
		MaxAttempts: 3,
		WaitTime:    time.Second,
		MaxWaitTime: 8 * time.Second,
	}
	cfg.Sheety.Retry.LoadFromEnv("SHEETY_RETRY")
	cfg.Sheety.RateLimit = parseFloat(getEnv("SHEETY_RATE_LIMIT", "2"), 2)
	cfg.Sheety.Burst = parseInt(getEnv("SHEETY_BURST", "2"), 2)
	cfg.Sheety.MaxFieldLength = parseInt(getEnv("SHEETY_MAX_FIELD_LENGTH", "45000"), 45000)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")
	cfg.CatalogFile = getEnv("CATALOG_FILE", "")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
