package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string
	PostgresDSN string

	// Default channel endpoint and credentials, used when a property has no
	// endpoint or credential override of its own.
	EndpointURL string
	Username    string
	Password    string

	SchemaCacheEnabled bool
	SchemaCacheTTL     time.Duration
	StrictValidation   bool
	DBValidation       bool

	// QueueConcurrency overrides the built-in per-queue worker counts,
	// keyed by queue name.
	QueueConcurrency map[string]int

	PropertyOverridesPath string
	LogChannel            string
}

// Queue names accepted in MERIDIAN_QUEUE_CONCURRENCY_<QUEUE> overrides.
var queueNames = []string{"high", "outbound", "inbound-work", "low"}

func Load() (Config, error) {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "meridian"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	concurrency := make(map[string]int)
	for _, queue := range queueNames {
		suffix := strings.ToUpper(strings.ReplaceAll(queue, "-", "_"))
		if v := envInt("MERIDIAN_QUEUE_CONCURRENCY_"+suffix, 0); v > 0 {
			concurrency[queue] = v
		}
	}

	return Config{
		ServiceName: service,
		HTTPPort:    port,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		EndpointURL: os.Getenv("MERIDIAN_ENDPOINT_URL"),
		Username:    os.Getenv("MERIDIAN_USERNAME"),
		Password:    os.Getenv("MERIDIAN_PASSWORD"),

		SchemaCacheEnabled: envBool("MERIDIAN_SCHEMA_CACHE", true),
		SchemaCacheTTL:     envDuration("MERIDIAN_SCHEMA_CACHE_TTL", time.Hour),
		StrictValidation:   envBool("MERIDIAN_STRICT_VALIDATION", true),
		DBValidation:       envBool("MERIDIAN_DB_VALIDATION", true),

		QueueConcurrency: concurrency,

		PropertyOverridesPath: os.Getenv("MERIDIAN_PROPERTY_OVERRIDES"),
		LogChannel:            strings.ToLower(os.Getenv("MERIDIAN_LOG_CHANNEL")),
	}, nil
}

// Logger builds the process logger. LogChannel "text" selects the
// human-readable handler; everything else logs JSON.
func (c Config) Logger() *slog.Logger {
	var handler slog.Handler
	if c.LogChannel == "text" {
		handler = slog.NewTextHandler(os.Stdout, nil)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	}
	return slog.New(handler).With("service", c.ServiceName)
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envDuration accepts either a Go duration string or a bare second count.
func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
