package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Live active-storm feed.
	FeedURL             string
	FeedTimeout         time.Duration
	FeedInsecureRetry   bool
	FeedBreakerFailures uint32
	FeedBreakerCooldown time.Duration

	// Advisory archive downloads. Zero means no timeout.
	ArchiveTimeout time.Duration

	// Artifact store layout.
	DataDir         string
	ScratchDir      string
	NameTableFile   string
	StaticURLPrefix string

	// Scheduled ingestion in serve mode. Zero disables the scheduler.
	IngestInterval time.Duration

	DatabasePath string

	CORSAllowedOrigins []string
	RateLimitPerMinute int

	// Advisory event publishing.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// Mapbox geocoding for shelter import.
	MapboxToken   string
	MapboxEnabled bool
	MapboxTimeout time.Duration
}

// NameTablePath returns the location of the storm-name table.
func (c *Config) NameTablePath() string {
	if filepath.IsAbs(c.NameTableFile) {
		return c.NameTableFile
	}
	return filepath.Join(c.DataDir, c.NameTableFile)
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	feedTimeout, err := parsePositiveDuration("FEED_TIMEOUT", "6s")
	if err != nil {
		return nil, err
	}
	breakerCooldown, err := parsePositiveDuration("FEED_BREAKER_COOLDOWN", "1m")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	archiveTimeout, err := parseNonNegativeDuration("ARCHIVE_TIMEOUT", "0")
	if err != nil {
		return nil, err
	}
	ingestInterval, err := parseNonNegativeDuration("INGEST_INTERVAL", "0")
	if err != nil {
		return nil, err
	}

	breakerFailures, err := parsePositiveInt("FEED_BREAKER_FAILURES", "3")
	if err != nil {
		return nil, err
	}
	rateLimit, err := parsePositiveInt("RATE_LIMIT_PER_MINUTE", "120")
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FeedURL:             sharedcfg.EnvOrDefault("NHC_FEED_URL", "https://www.nhc.noaa.gov/CurrentStorms.json"),
		FeedTimeout:         feedTimeout,
		FeedInsecureRetry:   os.Getenv("FEED_INSECURE_RETRY") == "true",
		FeedBreakerFailures: uint32(breakerFailures),
		FeedBreakerCooldown: breakerCooldown,

		ArchiveTimeout: archiveTimeout,

		DataDir:         sharedcfg.EnvOrDefault("DATA_DIR", filepath.Join("static", "tracker", "data")),
		ScratchDir:      sharedcfg.EnvOrDefault("SCRATCH_DIR", "tmp_download"),
		NameTableFile:   sharedcfg.EnvOrDefault("NAME_TABLE_FILE", "storm_names.json"),
		StaticURLPrefix: sharedcfg.EnvOrDefault("STATIC_URL_PREFIX", "/static/tracker/data/"),

		IngestInterval: ingestInterval,

		DatabasePath: sharedcfg.EnvOrDefault("DATABASE_PATH", "shelters.db"),

		CORSAllowedOrigins: parseList(sharedcfg.EnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		RateLimitPerMinute: rateLimit,

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "storm-advisories"),

		MapboxToken:   mapboxToken,
		MapboxEnabled: mapboxEnabled,
		MapboxTimeout: mapboxTimeout,
	}

	if cfg.FeedURL == "" {
		return nil, errors.New("NHC_FEED_URL is required")
	}
	if cfg.DataDir == cfg.ScratchDir {
		return nil, errors.New("SCRATCH_DIR must differ from DATA_DIR")
	}
	if !strings.HasSuffix(cfg.StaticURLPrefix, "/") {
		cfg.StaticURLPrefix += "/"
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key + ": must be a positive duration")
	}
	return d, nil
}

func parseNonNegativeDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d < 0 {
		return 0, errors.New("invalid " + key + ": must be a duration >= 0")
	}
	return d, nil
}

func parsePositiveInt(key, fallback string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || n < 1 {
		return 0, errors.New("invalid " + key + ": must be a positive integer")
	}
	return n, nil
}

// parseList splits a comma-separated value, dropping blanks.
func parseList(value string) []string {
	return sharedcfg.ParseBrokers(value)
}
