package swiftchain

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/liviudnicoara/swiftchain/middlewares"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// LoggingConfig holds request logging settings.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level,omitempty"` // debug, info, warn or error
}

// PerformanceConfig holds slow request reporting settings.
type PerformanceConfig struct {
	Threshold string `yaml:"threshold,omitempty"` // e.g., "500ms"
}

// RetryConfig holds retry settings.
type RetryConfig struct {
	Count    int    `yaml:"count"`
	Strategy string `yaml:"strategy,omitempty"` // "exponential" or "linear"
	MinWait  string `yaml:"min_wait,omitempty"`
	MaxWait  string `yaml:"max_wait,omitempty"`
}

// CacheConfig holds GET response caching settings.
type CacheConfig struct {
	TTL string `yaml:"ttl,omitempty"`
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Threshold int    `yaml:"threshold"`
	Timeout   string `yaml:"timeout,omitempty"`
}

// RequestIDConfig holds request id settings.
type RequestIDConfig struct {
	Enabled bool   `yaml:"enabled"`
	Header  string `yaml:"header,omitempty"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace,omitempty"`
}

// Config is the top-level configuration for a Client.
type Config struct {
	Timeout        string               `yaml:"timeout,omitempty"` // e.g., "30s"
	MaxBodyBytes   int64                `yaml:"max_body_bytes,omitempty"`
	Headers        map[string]string    `yaml:"headers,omitempty"`
	Logging        LoggingConfig        `yaml:"logging,omitempty"`
	Performance    PerformanceConfig    `yaml:"performance,omitempty"`
	Retry          RetryConfig          `yaml:"retry,omitempty"`
	Cache          CacheConfig          `yaml:"cache,omitempty"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker,omitempty"`
	RequestID      RequestIDConfig      `yaml:"request_id,omitempty"`
	Metrics        MetricsConfig        `yaml:"metrics,omitempty"`
}

// LoadConfig reads a YAML config file and parses it into a Config struct.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, configError("failed to read config file "+filename, err)
	}

	return ParseConfig(data)
}

// ParseConfig parses and validates YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, configError("failed to parse config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports the first invalid setting as an ErrConfig error.
func (cfg *Config) Validate() error {
	durations := map[string]string{
		"timeout":                 cfg.Timeout,
		"performance.threshold":   cfg.Performance.Threshold,
		"retry.min_wait":          cfg.Retry.MinWait,
		"retry.max_wait":          cfg.Retry.MaxWait,
		"cache.ttl":               cfg.Cache.TTL,
		"circuit_breaker.timeout": cfg.CircuitBreaker.Timeout,
	}
	for name, value := range durations {
		if _, err := parseDuration(value); err != nil {
			return configError(fmt.Sprintf("invalid %s %q", name, value), err)
		}
	}

	if ttl, _ := parseDuration(cfg.Cache.TTL); cfg.Cache.TTL != "" && ttl == 0 {
		return configError("cache.ttl must be positive", nil)
	}
	if d, _ := parseDuration(cfg.CircuitBreaker.Timeout); cfg.CircuitBreaker.Timeout != "" && d == 0 {
		return configError("circuit_breaker.timeout must be positive", nil)
	}

	if cfg.MaxBodyBytes < 0 {
		return configError("max_body_bytes must not be negative", nil)
	}
	if cfg.Retry.Count < 0 {
		return configError("retry.count must not be negative", nil)
	}
	if cfg.CircuitBreaker.Threshold < 0 {
		return configError("circuit_breaker.threshold must not be negative", nil)
	}

	switch strings.ToLower(cfg.Retry.Strategy) {
	case "", "exponential", "linear":
	default:
		return configError("unknown retry strategy "+cfg.Retry.Strategy, nil)
	}

	if _, err := parseLevel(cfg.Logging.Level); err != nil {
		return err
	}

	return nil
}

// NewClientFromConfig builds a Client with an *http.Client transport and the middlewares cfg enables,
// in this order: request id, default headers, logging, metrics, performance, circuit breaker, retry, cache.
// Metrics are registered with reg, or prometheus.DefaultRegisterer when reg is nil.
func NewClientFromConfig(cfg *Config, logger *slog.Logger, reg prometheus.Registerer) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := defaultTimeout
	if cfg.Timeout != "" {
		timeout, _ = parseDuration(cfg.Timeout)
	}

	c := NewClient(&http.Client{Timeout: timeout}).WithLogger(logger)
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodyBytes = cfg.MaxBodyBytes
	}

	if cfg.RequestID.Enabled {
		c.AddRequestID(cfg.RequestID.Header)
	}

	if len(cfg.Headers) > 0 {
		c.WithMiddleware(middlewares.DefaultHeaders(cfg.Headers))
	}

	if cfg.Logging.Enabled {
		level, _ := parseLevel(cfg.Logging.Level)
		c.WithMiddleware(middlewares.LevelLoggerMiddleware(c.Logger, level))
	}

	if cfg.Metrics.Enabled {
		if err := c.addMetrics(reg, cfg.Metrics.Namespace); err != nil {
			return nil, err
		}
	}

	if cfg.Performance.Threshold != "" {
		threshold, _ := parseDuration(cfg.Performance.Threshold)
		c.AddPerformanceMonitor(threshold, c.Logger)
	}

	if cfg.CircuitBreaker.Threshold > 0 {
		timeout, _ := parseDuration(cfg.CircuitBreaker.Timeout)
		c.AddCircuitBreaker(cfg.CircuitBreaker.Threshold, timeout)
	}

	if cfg.Retry.Count > 0 {
		if cfg.Retry.MinWait != "" {
			c.MinWaitRetry, _ = parseDuration(cfg.Retry.MinWait)
		}
		if cfg.Retry.MaxWait != "" {
			c.MaxWaitRetry, _ = parseDuration(cfg.Retry.MaxWait)
		}

		if strings.EqualFold(cfg.Retry.Strategy, "linear") {
			c.WithLinearRetry(cfg.Retry.Count)
		} else {
			c.WithExponentialRetry(cfg.Retry.Count)
		}
	}

	if cfg.Cache.TTL != "" {
		ttl, _ := parseDuration(cfg.Cache.TTL)
		c.AddCaching(ttl)
	}

	return c, nil
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", value)
	}
	return d, nil
}

func parseLevel(value string) (slog.Level, error) {
	if value == "" {
		return slog.LevelInfo, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return 0, configError("invalid logging.level "+value, err)
	}
	return level, nil
}
