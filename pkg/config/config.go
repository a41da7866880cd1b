// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the complete service configuration.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"assetlimits.db"`
	DatabaseWAL  bool   `env:"DATABASE_WAL" envDefault:"true"`

	// NATSURL empty starts an embedded server.
	NATSURL             string `env:"NATS_URL"`
	NATSStoreDir        string `env:"NATS_STORE_DIR"`
	NATSCredentialsURL  string `env:"NATS_CREDENTIALS_URL"`
	NATSCredentialsFile string `env:"NATS_CREDENTIALS_FILE"`
	NATSUser            string `env:"NATS_USER"`
	NATSPassword        string `env:"NATS_PASSWORD"`

	LimitChangesStream  string `env:"LIMIT_CHANGES_STREAM" envDefault:"LIMIT_CHANGES"`
	LimitChangesSubject string `env:"LIMIT_CHANGES_SUBJECT" envDefault:"limit-changes"`
	LimitChangesDurable string `env:"LIMIT_CHANGES_DURABLE" envDefault:"assetlimits"`
	EventsStream        string `env:"EVENTS_STREAM" envDefault:"SUSPICIOUS_EVENTS"`
	EventsSubjectPrefix string `env:"EVENTS_SUBJECT_PREFIX" envDefault:"limiting.suspicious"`

	ConflictRetries int           `env:"CONFLICT_RETRIES" envDefault:"3"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName    string   `env:"SERVICE_NAME" envDefault:"assetlimits"`
	Environment    string   `env:"ENVIRONMENT" envDefault:"dev"`
	OTLPEndpoint   string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceSample    float64  `env:"TRACE_SAMPLE_RATE" envDefault:"1.0"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads the optional dotenv files, then parses the environment.
// Variables already set in the environment win over dotenv values.
func Load(dotenvFiles ...string) (*Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, file := range dotenvFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.ConflictRetries < 0 {
		errs = append(errs, errors.New("CONFLICT_RETRIES must not be negative"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, errors.New("TRACE_SAMPLE_RATE must be between 0 and 1"))
	}
	for name, value := range map[string]string{
		"LIMIT_CHANGES_STREAM":  c.LimitChangesStream,
		"LIMIT_CHANGES_SUBJECT": c.LimitChangesSubject,
		"LIMIT_CHANGES_DURABLE": c.LimitChangesDurable,
		"EVENTS_STREAM":         c.EventsStream,
		"EVENTS_SUBJECT_PREFIX": c.EventsSubjectPrefix,
		"DATABASE_PATH":         c.DatabasePath,
	} {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", name))
		}
	}
	if (c.NATSCredentialsURL == "") != (c.NATSCredentialsFile == "") {
		errs = append(errs, errors.New("NATS_CREDENTIALS_URL and NATS_CREDENTIALS_FILE must be set together"))
	}
	if (c.NATSUser == "") != (c.NATSPassword == "") {
		errs = append(errs, errors.New("NATS_USER and NATS_PASSWORD must be set together"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// EmbeddedNATS reports whether the service runs its own NATS server.
func (c *Config) EmbeddedNATS() bool {
	return c.NATSURL == ""
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: unknown level %q", s)
	}
	return level, nil
}
