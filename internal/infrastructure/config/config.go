package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	HTTP      HTTPConfig
	RateLimit RateLimitConfig
	Delivery  DeliveryConfig
	Secrets   SecretsConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds management-API token settings
type JWTConfig struct {
	Secret                string
	AccessTokenExpiration time.Duration
	Issuer                string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxWebhookBody    int64 // webhook payload size cap
	IPRateLimitEnable bool  // secondary IP-based limiting on webhook endpoints
	IPRateLimitCount  int
	IPRateLimitWindow time.Duration
	TrustedProxies    []string
}

// RateLimitConfig holds tenant+system admission control settings
type RateLimitConfig struct {
	DefaultPerMinute int64
	DefaultPerDay    int64
}

// DeliveryConfig holds outbound delivery pipeline settings
type DeliveryConfig struct {
	Workers          int
	BatchSize        int
	PollInterval     time.Duration
	ClaimTimeout     time.Duration // PROCESSING claims older than this are requeued
	RequestTimeout   time.Duration
	MaxAttempts      int
	BackoffFactor    float64
	BaseDelay        time.Duration
	EndpointRate     float64 // per-endpoint outbound requests per second
	EndpointBurst    int
	DeactivateAfter  int64 // dead deliveries before a subscription is deactivated
	DeactivateWindow time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
	UserAgent        string
}

// SecretsConfig maps system IDs to webhook verification secrets. Production
// deployments point the hub at an external secret manager; this section
// backs development and tests.
type SecretsConfig struct {
	Static map[string]string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string
	Insecure          bool // Use insecure (non-TLS) connection (development only)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with HUB_ prefix (e.g., HUB_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("HUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
			Issuer:                v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxWebhookBody:    v.GetInt64("http.max_webhook_body"),
			IPRateLimitEnable: v.GetBool("http.ip_rate_limit_enabled"),
			IPRateLimitCount:  v.GetInt("http.ip_rate_limit_count"),
			IPRateLimitWindow: v.GetDuration("http.ip_rate_limit_window"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		RateLimit: RateLimitConfig{
			DefaultPerMinute: v.GetInt64("rate_limit.default_per_minute"),
			DefaultPerDay:    v.GetInt64("rate_limit.default_per_day"),
		},
		Delivery: DeliveryConfig{
			Workers:          v.GetInt("delivery.workers"),
			BatchSize:        v.GetInt("delivery.batch_size"),
			PollInterval:     v.GetDuration("delivery.poll_interval"),
			ClaimTimeout:     v.GetDuration("delivery.claim_timeout"),
			RequestTimeout:   v.GetDuration("delivery.request_timeout"),
			MaxAttempts:      v.GetInt("delivery.max_attempts"),
			BackoffFactor:    v.GetFloat64("delivery.backoff_factor"),
			BaseDelay:        v.GetDuration("delivery.base_delay"),
			EndpointRate:     v.GetFloat64("delivery.endpoint_rate"),
			EndpointBurst:    v.GetInt("delivery.endpoint_burst"),
			DeactivateAfter:  v.GetInt64("delivery.deactivate_after"),
			DeactivateWindow: v.GetDuration("delivery.deactivate_window"),
			CleanupEnabled:   v.GetBool("delivery.cleanup_enabled"),
			CleanupRetention: v.GetDuration("delivery.cleanup_retention"),
			CleanupInterval:  v.GetDuration("delivery.cleanup_interval"),
			UserAgent:        v.GetString("delivery.user_agent"),
		},
		Secrets: SecretsConfig{
			Static: v.GetStringMapString("secrets.static"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "integration-hub"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "hub"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = 15 * time.Minute
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "integration-hub"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxWebhookBody == 0 {
		cfg.HTTP.MaxWebhookBody = 64 << 10 // 64KB
	}
	if cfg.HTTP.IPRateLimitCount == 0 {
		cfg.HTTP.IPRateLimitCount = 300
	}
	if cfg.HTTP.IPRateLimitWindow == 0 {
		cfg.HTTP.IPRateLimitWindow = time.Minute
	}
	if cfg.RateLimit.DefaultPerMinute == 0 {
		cfg.RateLimit.DefaultPerMinute = 60
	}
	if cfg.RateLimit.DefaultPerDay == 0 {
		cfg.RateLimit.DefaultPerDay = 10000
	}
	if cfg.Delivery.Workers == 0 {
		cfg.Delivery.Workers = 8
	}
	if cfg.Delivery.BatchSize == 0 {
		cfg.Delivery.BatchSize = 100
	}
	if cfg.Delivery.PollInterval == 0 {
		cfg.Delivery.PollInterval = 5 * time.Second
	}
	if cfg.Delivery.ClaimTimeout == 0 {
		cfg.Delivery.ClaimTimeout = 5 * time.Minute
	}
	if cfg.Delivery.RequestTimeout == 0 {
		cfg.Delivery.RequestTimeout = 30 * time.Second
	}
	if cfg.Delivery.MaxAttempts == 0 {
		cfg.Delivery.MaxAttempts = 5
	}
	if cfg.Delivery.BackoffFactor == 0 {
		cfg.Delivery.BackoffFactor = 2.0
	}
	if cfg.Delivery.BaseDelay == 0 {
		cfg.Delivery.BaseDelay = time.Second
	}
	if cfg.Delivery.EndpointRate == 0 {
		cfg.Delivery.EndpointRate = 10
	}
	if cfg.Delivery.EndpointBurst == 0 {
		cfg.Delivery.EndpointBurst = 20
	}
	if cfg.Delivery.DeactivateAfter == 0 {
		cfg.Delivery.DeactivateAfter = 1
	}
	if cfg.Delivery.DeactivateWindow == 0 {
		cfg.Delivery.DeactivateWindow = 24 * time.Hour
	}
	if cfg.Delivery.CleanupRetention == 0 {
		cfg.Delivery.CleanupRetention = 168 * time.Hour
	}
	if cfg.Delivery.CleanupInterval == 0 {
		cfg.Delivery.CleanupInterval = time.Hour
	}
	if cfg.Delivery.UserAgent == "" {
		cfg.Delivery.UserAgent = "IntegrationHub-Webhooks/1.0"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "integration-hub"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Delivery.BackoffFactor < 1.0 {
		return fmt.Errorf("delivery.backoff_factor must be >= 1.0, got %f", c.Delivery.BackoffFactor)
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if len(c.Secrets.Static) > 0 {
			return fmt.Errorf("secrets.static must not be used in production; configure an external secret store")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
