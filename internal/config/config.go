// Package config loads the driver configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Environment variable names
const (
	EnvOperation         = "OUTCOME_OPERATION"
	EnvLogLevel          = "OUTCOME_LOG_LEVEL"
	EnvLogFormat         = "OUTCOME_LOG_FORMAT"
	EnvNATSURL           = "OUTCOME_NATS_URL"
	EnvNATSSubject       = "OUTCOME_NATS_SUBJECT"
	EnvPublishMaxRetries = "OUTCOME_PUBLISH_MAX_RETRIES"
	EnvPublishRetryDelay = "OUTCOME_PUBLISH_RETRY_DELAY"
	EnvBlobConnection    = "OUTCOME_BLOB_CONNECTION_STRING"
	EnvBlobContainer     = "OUTCOME_BLOB_CONTAINER"
	EnvSentryDSN         = "OUTCOME_SENTRY_DSN"
	EnvEnvironment       = "OUTCOME_ENVIRONMENT"
	EnvOTLPEndpoint      = "OUTCOME_OTLP_ENDPOINT"
	EnvTraceSampleRatio  = "OUTCOME_TRACE_SAMPLE_RATIO"
	EnvScriptTimeout     = "OUTCOME_SCRIPT_TIMEOUT"
)

// Log formats
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config holds everything the driver needs. Empty NATSURL, BlobConnectionString,
// SentryDSN or OTLPEndpoint disables that integration.
type Config struct {
	Operation string

	LogLevel  string
	LogFormat string

	NATSURL           string
	NATSSubject       string
	PublishMaxRetries int
	PublishRetryDelay time.Duration

	BlobConnectionString string
	BlobContainer        string

	SentryDSN   string
	Environment string

	OTLPEndpoint     string
	TraceSampleRatio float64

	ScriptTimeout time.Duration
}

// Default returns the configuration used when no variables are set
func Default() *Config {
	return &Config{
		Operation:         "ProcessarDados",
		LogLevel:          "info",
		LogFormat:         FormatJSON,
		NATSSubject:       "result",
		PublishMaxRetries: 3,
		PublishRetryDelay: time.Second,
		BlobContainer:     "results",
		Environment:       "development",
		TraceSampleRatio:  1.0,
		ScriptTimeout:     5 * time.Second,
	}
}

// Load reads the configuration from the environment and validates it
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the configuration through lookup. Unparseable numbers and
// durations are errors rather than silent fallbacks.
func LoadFrom(lookup func(string) (string, bool)) (*Config, error) {
	d := Default()
	env := &reader{lookup: lookup}

	config := &Config{
		Operation:            env.getEnv(EnvOperation, d.Operation),
		LogLevel:             strings.ToLower(env.getEnv(EnvLogLevel, d.LogLevel)),
		LogFormat:            strings.ToLower(env.getEnv(EnvLogFormat, d.LogFormat)),
		NATSURL:              env.getEnv(EnvNATSURL, d.NATSURL),
		NATSSubject:          env.getEnv(EnvNATSSubject, d.NATSSubject),
		PublishMaxRetries:    env.getEnvInt(EnvPublishMaxRetries, d.PublishMaxRetries),
		PublishRetryDelay:    env.getEnvDuration(EnvPublishRetryDelay, d.PublishRetryDelay),
		BlobConnectionString: env.getEnv(EnvBlobConnection, d.BlobConnectionString),
		BlobContainer:        env.getEnv(EnvBlobContainer, d.BlobContainer),
		SentryDSN:            env.getEnv(EnvSentryDSN, d.SentryDSN),
		Environment:          env.getEnv(EnvEnvironment, d.Environment),
		OTLPEndpoint:         env.getEnv(EnvOTLPEndpoint, d.OTLPEndpoint),
		TraceSampleRatio:     env.getEnvFloat(EnvTraceSampleRatio, d.TraceSampleRatio),
		ScriptTimeout:        env.getEnvDuration(EnvScriptTimeout, d.ScriptTimeout),
	}

	if env.err != nil {
		return nil, env.err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	if c.Operation == "" {
		return fmt.Errorf("%s cannot be empty", EnvOperation)
	}
	if c.LogFormat != FormatJSON && c.LogFormat != FormatConsole {
		return fmt.Errorf("%s must be %q or %q, got %q", EnvLogFormat, FormatJSON, FormatConsole, c.LogFormat)
	}
	if c.NATSURL != "" && c.NATSSubject == "" {
		return fmt.Errorf("%s cannot be empty when %s is set", EnvNATSSubject, EnvNATSURL)
	}
	if c.PublishMaxRetries < 0 {
		return fmt.Errorf("%s cannot be negative, got %d", EnvPublishMaxRetries, c.PublishMaxRetries)
	}
	if c.PublishRetryDelay < 0 {
		return fmt.Errorf("%s cannot be negative, got %s", EnvPublishRetryDelay, c.PublishRetryDelay)
	}
	if c.BlobConnectionString != "" && c.BlobContainer == "" {
		return fmt.Errorf("%s cannot be empty when %s is set", EnvBlobContainer, EnvBlobConnection)
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("%s must be within [0, 1], got %v", EnvTraceSampleRatio, c.TraceSampleRatio)
	}
	if c.ScriptTimeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", EnvScriptTimeout, c.ScriptTimeout)
	}
	return nil
}

// Fields renders the configuration for a startup log line. Secrets are reported
// only as present or absent.
func (c *Config) Fields() []zap.Field {
	return []zap.Field{
		zap.String("operation", c.Operation),
		zap.String("log_level", c.LogLevel),
		zap.String("environment", c.Environment),
		zap.Bool("nats_enabled", c.NATSURL != ""),
		zap.String("nats_subject", c.NATSSubject),
		zap.Bool("blob_enabled", c.BlobConnectionString != ""),
		zap.String("blob_container", c.BlobContainer),
		zap.Bool("sentry_enabled", c.SentryDSN != ""),
		zap.Bool("tracing_enabled", c.OTLPEndpoint != ""),
		zap.Duration("script_timeout", c.ScriptTimeout),
	}
}

// reader keeps the first parse error
type reader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *reader) getEnv(key, defaultValue string) string {
	if value, ok := r.lookup(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func (r *reader) getEnvInt(key string, defaultValue int) int {
	value := r.getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		r.fail(key, value, err)
		return defaultValue
	}
	return parsed
}

func (r *reader) getEnvFloat(key string, defaultValue float64) float64 {
	value := r.getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.fail(key, value, err)
		return defaultValue
	}
	return parsed
}

func (r *reader) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := r.getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		r.fail(key, value, err)
		return defaultValue
	}
	return parsed
}

func (r *reader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}
