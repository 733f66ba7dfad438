// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis (rate limiting)
	RedisURL string `koanf:"redis_url"`

	// JWT Authentication (token issuance is external; we only validate)
	JWTSecret string `koanf:"jwt_secret"`

	// Twilio (SMS and voice channels)
	TwilioAccountSID string `koanf:"twilio_account_sid"`
	TwilioAuthToken  string `koanf:"twilio_auth_token"`
	TwilioFromNumber string `koanf:"twilio_from_number"`

	// SMTP (email channel)
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUsername string `koanf:"smtp_username"`
	SMTPPassword string `koanf:"smtp_password"`
	SMTPFrom     string `koanf:"smtp_from"`

	// Firebase (push channel)
	FirebaseCredentialsFile string `koanf:"firebase_credentials_file"`

	// Dispatch tuning
	DispatchWorkers        int `koanf:"dispatch_workers"`         // concurrent delivery attempts per dispatch
	DeliveryTimeoutSeconds int `koanf:"delivery_timeout_seconds"` // per-attempt timeout

	// Tracing
	TracingEnabled      bool    `koanf:"tracing_enabled"`
	OTLPEndpoint        string  `koanf:"otlp_endpoint"`
	TracingSamplingRate float64 `koanf:"tracing_sampling_rate"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret   = errors.New("JWT_SECRET is required")
	ErrInvalidPort        = errors.New("PORT must be a valid integer")
	ErrIncompleteTwilio   = errors.New("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER must be set together")
	ErrIncompleteSMTP     = errors.New("SMTP_HOST and SMTP_FROM must be set together")
)

// Default values for non-secret configuration.
const (
	DefaultPort                   = 8080
	DefaultEnv                    = "development"
	DefaultSMTPPort               = 587
	DefaultDispatchWorkers        = 8
	DefaultDeliveryTimeoutSeconds = 10
	DefaultTracingSamplingRate    = 0.1
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, portErr := getEnvIntOrDefaultMulti([]string{"SENTRA_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	smtpPort, smtpPortErr := getEnvIntOrDefault("SMTP_PORT", k.Int("smtp_port"), DefaultSMTPPort)
	if smtpPortErr != nil {
		loadErrs = append(loadErrs, smtpPortErr)
	}

	dispatchWorkers, workersErr := getEnvIntOrDefault("DISPATCH_WORKERS", k.Int("dispatch_workers"), DefaultDispatchWorkers)
	if workersErr != nil {
		loadErrs = append(loadErrs, workersErr)
	}

	deliveryTimeout, timeoutErr := getEnvIntOrDefault("DELIVERY_TIMEOUT_SECONDS", k.Int("delivery_timeout_seconds"), DefaultDeliveryTimeoutSeconds)
	if timeoutErr != nil {
		loadErrs = append(loadErrs, timeoutErr)
	}

	tracingEnabled := k.Bool("tracing_enabled")
	if val := os.Getenv("TRACING_ENABLED"); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			tracingEnabled = true
		case "false", "0", "no", "off":
			tracingEnabled = false
		}
	}

	samplingRate, samplingErr := getEnvFloatOrDefault("TRACING_SAMPLING_RATE", k.Float64("tracing_sampling_rate"), DefaultTracingSamplingRate)
	if samplingErr != nil {
		loadErrs = append(loadErrs, samplingErr)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                    port,
		Env:                     getEnvOrDefaultMulti([]string{"SENTRA_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:             getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:                getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:               getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		TwilioAccountSID:        getEnvOrKoanf("TWILIO_ACCOUNT_SID", k, "twilio_account_sid"),
		TwilioAuthToken:         getEnvOrKoanf("TWILIO_AUTH_TOKEN", k, "twilio_auth_token"),
		TwilioFromNumber:        getEnvOrKoanf("TWILIO_FROM_NUMBER", k, "twilio_from_number"),
		SMTPHost:                getEnvOrKoanf("SMTP_HOST", k, "smtp_host"),
		SMTPPort:                smtpPort,
		SMTPUsername:            getEnvOrKoanf("SMTP_USERNAME", k, "smtp_username"),
		SMTPPassword:            getEnvOrKoanf("SMTP_PASSWORD", k, "smtp_password"),
		SMTPFrom:                getEnvOrKoanf("SMTP_FROM", k, "smtp_from"),
		FirebaseCredentialsFile: getEnvOrKoanf("FIREBASE_CREDENTIALS_FILE", k, "firebase_credentials_file"),
		DispatchWorkers:         dispatchWorkers,
		DeliveryTimeoutSeconds:  deliveryTimeout,
		TracingEnabled:          tracingEnabled,
		OTLPEndpoint:            getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
		TracingSamplingRate:     samplingRate,
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// Validate checks that required configuration values are present and that
// optional provider credentials are either fully configured or fully absent.
// A missing provider disables its channel; a half-configured one is an error.
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}

	twilioSet := 0
	for _, v := range []string{c.TwilioAccountSID, c.TwilioAuthToken, c.TwilioFromNumber} {
		if v != "" {
			twilioSet++
		}
	}
	if twilioSet != 0 && twilioSet != 3 {
		errs = append(errs, ErrIncompleteTwilio)
	}

	if (c.SMTPHost == "") != (c.SMTPFrom == "") {
		errs = append(errs, ErrIncompleteSMTP)
	}

	return errs
}

// TwilioEnabled reports whether the SMS/voice channels can be constructed.
func (c *Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

// SMTPEnabled reports whether the email channel can be constructed.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// PushEnabled reports whether the push channel can be constructed.
func (c *Config) PushEnabled() bool {
	return c.FirebaseCredentialsFile != ""
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer", envKey)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set,
// otherwise the koanf value, or default.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid number", envKey)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}
