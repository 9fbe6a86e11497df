package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cassiomorais/checkout/internal/checkout"
	"github.com/cassiomorais/checkout/internal/gateway"
	"github.com/cassiomorais/checkout/pkg/retry"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Checkout      CheckoutConfig      `mapstructure:"checkout"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Auth          AuthConfig          `mapstructure:"auth"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration   `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig      `mapstructure:"cors"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// RateLimitConfig bounds payment submissions per client IP.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// GatewayConfig holds the merchant credentials and gateway behaviour.
type GatewayConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	TestMode         bool          `mapstructure:"test_mode"`
	APIKey           string        `mapstructure:"api_key"`
	BearerToken      string        `mapstructure:"bearer_token"`
	SigningKey       string        `mapstructure:"signing_key"`
	TokenizingKey    string        `mapstructure:"tokenizing_key"`
	Host             string        `mapstructure:"host"`
	TestHost         string        `mapstructure:"test_host"`
	RenderPostalCode bool          `mapstructure:"render_postal_code"`
	Timeout          time.Duration `mapstructure:"timeout"`

	ReversalRetries    uint          `mapstructure:"reversal_retries"`
	ReversalRetryDelay time.Duration `mapstructure:"reversal_retry_delay"`

	// CompensationTimeout bounds a reversal started after the checkout request ended.
	CompensationTimeout time.Duration `mapstructure:"compensation_timeout"`

	BreakerMaxRequests  uint32        `mapstructure:"breaker_max_requests"`
	BreakerInterval     time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout"`
	BreakerMinRequests  uint32        `mapstructure:"breaker_min_requests"`
	BreakerFailureRatio float64       `mapstructure:"breaker_failure_ratio"`
}

type CheckoutConfig struct {
	// ReturnURL is where the page goes after a successful payment; {order_id} is substituted.
	ReturnURL string `mapstructure:"return_url"`
}

type WorkerConfig struct {
	BatchSize      int64         `mapstructure:"batch_size"`
	BlockDuration  time.Duration `mapstructure:"block_duration"`
	ConsumerGroup  string        `mapstructure:"consumer_group"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	RefundTimeout  time.Duration `mapstructure:"refund_timeout"`
	CleanupEvery   time.Duration `mapstructure:"cleanup_every"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults. Every key needs one so AutomaticEnv can override it.
	setDefaults(v)

	// Read from environment variables, e.g. CHECKOUT_GATEWAY_API_KEY
	v.SetEnvPrefix("CHECKOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/checkout")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}
	if c.Worker.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("worker.lock_ttl must be positive"))
	}
	if c.Checkout.ReturnURL == "" {
		errs = append(errs, fmt.Errorf("checkout.return_url is required"))
	}

	if c.Gateway.Enabled {
		if c.Gateway.APIKey == "" {
			errs = append(errs, fmt.Errorf("gateway.api_key is required when the gateway is enabled"))
		}
		if c.Gateway.BearerToken == "" {
			errs = append(errs, fmt.Errorf("gateway.bearer_token is required when the gateway is enabled"))
		}
		if c.Gateway.TokenizingKey == "" {
			errs = append(errs, fmt.Errorf("gateway.tokenizing_key is required when the gateway is enabled"))
		}
		if _, err := hex.DecodeString(c.Gateway.SigningKey); err != nil || c.Gateway.SigningKey == "" {
			errs = append(errs, fmt.Errorf("gateway.signing_key must be a non-empty hex string"))
		}
	}
	if c.Gateway.BreakerFailureRatio < 0 || c.Gateway.BreakerFailureRatio > 1 {
		errs = append(errs, fmt.Errorf("gateway.breaker_failure_ratio must be between 0 and 1"))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("auth.jwt_secret required in production"))
		}
		if c.Gateway.TestMode {
			errs = append(errs, fmt.Errorf("gateway.test_mode must be off in production"))
		}
	}

	// JWT secret length validation
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "45s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.rate_limit.requests", 20)
	v.SetDefault("server.rate_limit.window", "1m")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "checkout")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "checkout")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Gateway defaults
	v.SetDefault("gateway.enabled", true)
	v.SetDefault("gateway.test_mode", false)
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.bearer_token", "")
	v.SetDefault("gateway.signing_key", "")
	v.SetDefault("gateway.tokenizing_key", "")
	v.SetDefault("gateway.host", gateway.DefaultGatewayHost)
	v.SetDefault("gateway.test_host", gateway.DefaultTestGatewayHost)
	v.SetDefault("gateway.render_postal_code", false)
	v.SetDefault("gateway.timeout", "30s")
	v.SetDefault("gateway.reversal_retries", 3)
	v.SetDefault("gateway.reversal_retry_delay", "500ms")
	v.SetDefault("gateway.compensation_timeout", "90s")
	v.SetDefault("gateway.breaker_max_requests", 10)
	v.SetDefault("gateway.breaker_interval", "60s")
	v.SetDefault("gateway.breaker_timeout", "30s")
	v.SetDefault("gateway.breaker_min_requests", 10)
	v.SetDefault("gateway.breaker_failure_ratio", 0.6)

	// Checkout defaults
	v.SetDefault("checkout.return_url", "http://localhost:8080/checkout/order-received/{order_id}")

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.consumer_group", "refund-processors")
	v.SetDefault("worker.lock_ttl", "60s")
	v.SetDefault("worker.refund_timeout", "45s")
	v.SetDefault("worker.cleanup_every", "1h")
	v.SetDefault("worker.idempotency_ttl", "24h")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_expiry", "24h")

	// Instance ID
	v.SetDefault("instance_id", "checkout-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MigrationURL is the DSN in URL form for golang-migrate.
func (c *DatabaseConfig) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ClientSettings builds the immutable gateway client configuration.
func (g *GatewayConfig) ClientSettings() gateway.Settings {
	return gateway.Settings{
		Credentials: gateway.Credentials{
			APIKey:      g.APIKey,
			BearerToken: g.BearerToken,
			SigningKey:  g.SigningKey,
		},
		GatewayHost:     g.Host,
		TestGatewayHost: g.TestHost,
		Timeout:         g.Timeout,
	}
}

func (g *GatewayConfig) BreakerSettings() gateway.BreakerSettings {
	return gateway.BreakerSettings{
		MaxRequests:  g.BreakerMaxRequests,
		Interval:     g.BreakerInterval,
		Timeout:      g.BreakerTimeout,
		MinRequests:  g.BreakerMinRequests,
		FailureRatio: g.BreakerFailureRatio,
	}
}

func (g *GatewayConfig) ReversalRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  g.ReversalRetries,
		InitialDelay: g.ReversalRetryDelay,
		MaxDelay:     10 * g.ReversalRetryDelay,
	}
}

// FieldSettings is what the payment-fields renderer needs.
func (g *GatewayConfig) FieldSettings() checkout.Settings {
	return checkout.Settings{
		Enabled:          g.Enabled,
		TestMode:         g.TestMode,
		TokenizingKey:    g.TokenizingKey,
		GatewayHost:      g.Host,
		TestGatewayHost:  g.TestHost,
		RenderPostalCode: g.RenderPostalCode,
	}
}
