// Package config provides environment-based configuration loading for the
// SDK's ambient concerns (credentials, endpoints, delivery resilience).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the SDK's environment-derived configuration. No field here is
// read from the INI store; the one setting taken from the INI store, the
// delivery strategy ([tracker].delivery_manager), has no environment variable.
type Config struct {
	// APIKey authenticates outbound requests. Required unless supplied
	// programmatically to New(...).
	APIKey string `envconfig:"AICM_API_KEY"`
	// APIBase is the scheme+host of the ingestion service.
	APIBase string `envconfig:"AICM_API_BASE" default:"https://aicostmanager.com"`
	// APIURL is the path prefix appended to APIBase for all endpoints.
	APIURL string `envconfig:"AICM_API_URL" default:"/api/v1"`
	// INIPath is the location of the shared cross-process INI store.
	INIPath string `envconfig:"AICM_INI_PATH"`
	// DeliveryLogBodies enables redacted request/response body logging on
	// the HTTP dispatcher when true.
	DeliveryLogBodies bool `envconfig:"AICM_DELIVERY_LOG_BODIES" default:"false"`

	// Resilience - Circuit Breaker
	CBMaxRequests      int           `envconfig:"AICM_CB_MAX_REQUESTS" default:"3"`
	CBInterval         time.Duration `envconfig:"AICM_CB_INTERVAL" default:"10s"`
	CBTimeout          time.Duration `envconfig:"AICM_CB_TIMEOUT" default:"30s"`
	CBFailureThreshold int           `envconfig:"AICM_CB_FAILURE_THRESHOLD" default:"5"`

	// Resilience - Retry
	RetryMaxAttempts  int           `envconfig:"AICM_RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialDelay time.Duration `envconfig:"AICM_RETRY_INITIAL_DELAY" default:"100ms"`
	RetryMaxDelay     time.Duration `envconfig:"AICM_RETRY_MAX_DELAY" default:"5s"`
	RetryMultiplier   float64       `envconfig:"AICM_RETRY_MULTIPLIER" default:"2.0"`

	// Resilience - Timeout
	TimeoutDefault     time.Duration `envconfig:"AICM_TIMEOUT_DEFAULT" default:"30s"`
	TimeoutExternalAPI time.Duration `envconfig:"AICM_TIMEOUT_EXTERNAL_API" default:"10s"`

	// Resilience - Graceful shutdown of the delivery worker
	ShutdownDrainPeriod time.Duration `envconfig:"AICM_SHUTDOWN_DRAIN_PERIOD" default:"30s"`
	ShutdownGracePeriod time.Duration `envconfig:"AICM_SHUTDOWN_GRACE_PERIOD" default:"5s"`
}

// Redacted returns a safe string representation of the Config for logging.
func (c *Config) Redacted() string {
	safe := *c
	if safe.APIKey != "" {
		safe.APIKey = "[REDACTED]"
	}
	return fmt.Sprintf("%+v", safe)
}

// Load reads configuration from AICM_* environment variables and fills in
// the default INI path if AICM_INI_PATH is unset.
func Load() (*Config, error) {
	const op = "config.Load"

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.INIPath == "" {
		path, err := defaultINIPath()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		cfg.INIPath = path
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

func defaultINIPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "aicostmanager", "AICM.INI"), nil
}

// Validate checks that the resilience knobs are sane. APIKey is
// intentionally NOT validated here, since callers may supply it
// programmatically after Load(); aicostmanager.New and httpdispatcher.New
// return MissingConfiguration at construction if it is still empty.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBase) == "" {
		return fmt.Errorf("AICM_API_BASE must not be empty")
	}
	if strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("AICM_API_URL must not be empty")
	}
	if strings.TrimSpace(c.INIPath) == "" {
		return fmt.Errorf("AICM_INI_PATH must not be empty")
	}

	if c.CBMaxRequests < 1 {
		return fmt.Errorf("AICM_CB_MAX_REQUESTS must be greater than 0, got %d", c.CBMaxRequests)
	}
	if c.CBInterval <= 0 {
		return fmt.Errorf("AICM_CB_INTERVAL must be greater than 0, got %s", c.CBInterval)
	}
	if c.CBTimeout <= 0 {
		return fmt.Errorf("AICM_CB_TIMEOUT must be greater than 0, got %s", c.CBTimeout)
	}
	if c.CBFailureThreshold < 1 {
		return fmt.Errorf("AICM_CB_FAILURE_THRESHOLD must be greater than 0, got %d", c.CBFailureThreshold)
	}

	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("AICM_RETRY_MAX_ATTEMPTS must be greater than 0, got %d", c.RetryMaxAttempts)
	}
	if c.RetryInitialDelay <= 0 {
		return fmt.Errorf("AICM_RETRY_INITIAL_DELAY must be greater than 0, got %s", c.RetryInitialDelay)
	}
	if c.RetryMaxDelay < c.RetryInitialDelay {
		return fmt.Errorf("AICM_RETRY_MAX_DELAY must be >= AICM_RETRY_INITIAL_DELAY, got max=%s, initial=%s", c.RetryMaxDelay, c.RetryInitialDelay)
	}
	if c.RetryMultiplier < 1.0 {
		return fmt.Errorf("AICM_RETRY_MULTIPLIER must be >= 1.0, got %v", c.RetryMultiplier)
	}

	if c.TimeoutDefault <= 0 {
		return fmt.Errorf("AICM_TIMEOUT_DEFAULT must be greater than 0, got %s", c.TimeoutDefault)
	}
	if c.TimeoutExternalAPI <= 0 {
		return fmt.Errorf("AICM_TIMEOUT_EXTERNAL_API must be greater than 0, got %s", c.TimeoutExternalAPI)
	}

	if c.ShutdownDrainPeriod <= 0 {
		return fmt.Errorf("AICM_SHUTDOWN_DRAIN_PERIOD must be greater than 0, got %s", c.ShutdownDrainPeriod)
	}
	if c.ShutdownGracePeriod < 0 {
		return fmt.Errorf("AICM_SHUTDOWN_GRACE_PERIOD must be non-negative, got %s", c.ShutdownGracePeriod)
	}

	return nil
}

// BaseURL joins APIBase and APIURL into the full endpoint prefix, e.g.
// "https://aicostmanager.com/api/v1".
func (c *Config) BaseURL() string {
	return strings.TrimRight(c.APIBase, "/") + "/" + strings.TrimLeft(c.APIURL, "/")
}
