// Package config loads and validates the PAK.sh web console configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the PAKWEB_ prefix (e.g., PAKWEB_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments.
//
// When a config file is in use, the logging section can be reloaded at runtime:
// see (*Config).WatchLogging.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Webhooks  WebhooksConfig  `mapstructure:"webhooks"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Pak       PakConfig       `mapstructure:"pak"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	v *viper.Viper
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the optional Redis connection used for distributed rate
// limiting. When URL is empty the server falls back to an in-memory limiter.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// AuthConfig holds authentication and account-security configuration
type AuthConfig struct {
	JWT           JWTConfig           `mapstructure:"jwt"`
	Session       SessionConfig       `mapstructure:"session"`
	Lockout       LockoutConfig       `mapstructure:"lockout"`
	PasswordReset PasswordResetConfig `mapstructure:"password_reset"`
	// PasswordMinLength is the minimum accepted password length for
	// registration, reset, and change flows.
	PasswordMinLength int `mapstructure:"password_min_length"`
	// APIKeyPrefix is prepended to generated user API keys so leaked keys are
	// recognisable in logs and secret scanners.
	APIKeyPrefix string `mapstructure:"api_key_prefix"`
}

// JWTConfig holds token lifetimes for the REST API token pair
type JWTConfig struct {
	Issuer          string        `mapstructure:"issuer"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// SessionConfig holds browser session lifetimes
type SessionConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	RememberTTL time.Duration `mapstructure:"remember_ttl"`
}

// LockoutConfig holds the failed-login lockout policy
type LockoutConfig struct {
	// MaxAttempts is the number of consecutive failed logins that triggers a lock.
	MaxAttempts int `mapstructure:"max_attempts"`
	// Duration is how long the account stays locked once triggered.
	Duration time.Duration `mapstructure:"duration"`
}

// PasswordResetConfig holds password reset token policy
type PasswordResetConfig struct {
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// WebhooksConfig holds delivery engine defaults and maintenance job settings
type WebhooksConfig struct {
	// DefaultTimeout applies to webhooks that do not set a per-webhook timeout.
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	// MaxRetries caps how many times a transport-failed delivery is retried.
	MaxRetries int `mapstructure:"max_retries"`
	UserAgent  string `mapstructure:"user_agent"`
	// RetryInterval is how often the background maintenance job re-attempts
	// transport-failed deliveries.
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	// CleanupDays is the delivery-row retention window.
	CleanupDays     int           `mapstructure:"cleanup_days"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// AnalyticsConfig holds reporting query parameters
type AnalyticsConfig struct {
	// TrendDays is the window of the daily deployment trend series.
	TrendDays int `mapstructure:"trend_days"`
	// RecentLimit is how many recent deployments/deliveries reports include.
	RecentLimit int `mapstructure:"recent_limit"`
}

// PakConfig holds settings for the external pak CLI bridge
type PakConfig struct {
	// Bin is the pak executable path or name resolved via PATH.
	Bin string `mapstructure:"bin"`
	// RootDir is the working directory pak commands run in.
	RootDir string `mapstructure:"root_dir"`
	// Timeout bounds every pak invocation.
	Timeout time.Duration `mapstructure:"timeout"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration. Auth endpoints get a
// stricter dedicated limit to slow brute-force attempts.
type RateLimitingConfig struct {
	Enabled               bool `mapstructure:"enabled"`
	RequestsPerMinute     int  `mapstructure:"requests_per_minute"`
	Burst                 int  `mapstructure:"burst"`
	AuthRequestsPerMinute int  `mapstructure:"auth_requests_per_minute"`
	AuthBurst             int  `mapstructure:"auth_burst"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled     bool            `mapstructure:"enabled"`
	ServiceName string          `mapstructure:"service_name"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Profiling   ProfilingConfig `mapstructure:"profiling"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ProfilingConfig holds pprof configuration
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs
// during Unmarshal. viper.BindEnv only errors when called with zero keys; since
// every key here is a non-empty hardcoded string, any error indicates a
// programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Redis
		"redis.url",

		// Auth
		"auth.jwt.issuer",
		"auth.jwt.access_token_ttl",
		"auth.jwt.refresh_token_ttl",
		"auth.session.ttl",
		"auth.session.remember_ttl",
		"auth.lockout.max_attempts",
		"auth.lockout.duration",
		"auth.password_reset.token_ttl",
		"auth.password_min_length",
		"auth.api_key_prefix",

		// Webhooks
		"webhooks.default_timeout",
		"webhooks.max_retries",
		"webhooks.user_agent",
		"webhooks.retry_interval",
		"webhooks.cleanup_days",
		"webhooks.cleanup_interval",

		// Analytics
		"analytics.trend_days",
		"analytics.recent_limit",

		// Pak
		"pak.bin",
		"pak.root_dir",
		"pak.timeout",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.auth_requests_per_minute",
		"security.rate_limiting.auth_burst",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
		"telemetry.profiling.enabled",
		"telemetry.profiling.port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config.yaml in common locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/pakweb")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("PAKWEB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)
	cfg.Redis.URL = os.ExpandEnv(cfg.Redis.URL)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.v = v
	return &cfg, nil
}

// WatchLogging re-reads the logging section whenever the config file changes on
// disk and invokes onChange with the new values. It is a no-op when no config
// file is in use (pure env/default configuration cannot change at runtime).
func (c *Config) WatchLogging(onChange func(LoggingConfig)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(_ fsnotify.Event) {
		lc := LoggingConfig{
			Level:  c.v.GetString("logging.level"),
			Format: c.v.GetString("logging.format"),
		}
		if lc.Level != c.Logging.Level || lc.Format != c.Logging.Format {
			c.Logging = lc
			onChange(lc)
		}
	})
	c.v.WatchConfig()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "pakweb")
	v.SetDefault("database.user", "pakweb")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Redis defaults (disabled unless a URL is supplied)
	v.SetDefault("redis.url", "")

	// Auth defaults
	v.SetDefault("auth.jwt.issuer", "pakweb")
	v.SetDefault("auth.jwt.access_token_ttl", "1h")
	v.SetDefault("auth.jwt.refresh_token_ttl", "720h") // 30 days
	v.SetDefault("auth.session.ttl", "24h")
	v.SetDefault("auth.session.remember_ttl", "168h") // 7 days
	v.SetDefault("auth.lockout.max_attempts", 5)
	v.SetDefault("auth.lockout.duration", "30m")
	v.SetDefault("auth.password_reset.token_ttl", "24h")
	v.SetDefault("auth.password_min_length", 8)
	v.SetDefault("auth.api_key_prefix", "pak")

	// Webhook defaults
	v.SetDefault("webhooks.default_timeout", "30s")
	v.SetDefault("webhooks.max_retries", 3)
	v.SetDefault("webhooks.user_agent", "PAK.sh-Webhook/1.0")
	v.SetDefault("webhooks.retry_interval", "5m")
	v.SetDefault("webhooks.cleanup_days", 90)
	v.SetDefault("webhooks.cleanup_interval", "24h")

	// Analytics defaults
	v.SetDefault("analytics.trend_days", 30)
	v.SetDefault("analytics.recent_limit", 10)

	// Pak defaults
	v.SetDefault("pak.bin", "pak")
	v.SetDefault("pak.root_dir", "")
	v.SetDefault("pak.timeout", "300s")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 200)
	v.SetDefault("security.rate_limiting.burst", 50)
	v.SetDefault("security.rate_limiting.auth_requests_per_minute", 5)
	v.SetDefault("security.rate_limiting.auth_burst", 3)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "pakweb")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.Auth.Lockout.MaxAttempts < 1 {
		return fmt.Errorf("auth.lockout.max_attempts must be at least 1, got %d", c.Auth.Lockout.MaxAttempts)
	}
	if c.Auth.Lockout.Duration <= 0 {
		return fmt.Errorf("auth.lockout.duration must be positive")
	}
	if c.Auth.PasswordMinLength < 1 {
		return fmt.Errorf("auth.password_min_length must be at least 1, got %d", c.Auth.PasswordMinLength)
	}

	if c.Webhooks.DefaultTimeout <= 0 {
		return fmt.Errorf("webhooks.default_timeout must be positive")
	}
	if c.Webhooks.MaxRetries < 0 {
		return fmt.Errorf("webhooks.max_retries must not be negative, got %d", c.Webhooks.MaxRetries)
	}
	if c.Webhooks.CleanupDays < 1 {
		return fmt.Errorf("webhooks.cleanup_days must be at least 1, got %d", c.Webhooks.CleanupDays)
	}

	if c.Pak.Bin == "" {
		return fmt.Errorf("pak.bin is required")
	}
	if c.Pak.Timeout <= 0 {
		return fmt.Errorf("pak.timeout must be positive")
	}

	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
