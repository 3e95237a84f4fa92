package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
	Plans    []PlanConfig   `mapstructure:"plans"`
	Client   ClientConfig   `mapstructure:"client"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// RateLimit and RateWindow bound authenticated profile requests per user.
	RateLimit   int           `mapstructure:"rate_limit"`
	RateWindow  time.Duration `mapstructure:"rate_window"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// StatusTTL bounds how long a subscription status stays cached server side.
	StatusTTL time.Duration `mapstructure:"status_ttl"`
}

// AuthConfig holds bearer token validation settings.
type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	Issuer            string        `mapstructure:"issuer"`
	AccessTokenExpiry time.Duration `mapstructure:"access_token_expiry"`
}

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	SuccessURL    string `mapstructure:"success_url"`
	CancelURL     string `mapstructure:"cancel_url"`
}

// CheckoutConfig holds checkout endpoint limits.
type CheckoutConfig struct {
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

// PlanConfig is one entry of the plan catalog.
type PlanConfig struct {
	Name          string  `mapstructure:"name"`
	Amount        float64 `mapstructure:"amount"`
	Currency      string  `mapstructure:"currency"`
	Interval      string  `mapstructure:"interval"`
	StripePriceID string  `mapstructure:"stripe_price_id"`
}

// ClientConfig holds settings for the profile client.
type ClientConfig struct {
	BaseURL             string        `mapstructure:"base_url"`
	Token               string        `mapstructure:"token"`
	StaleTime           time.Duration `mapstructure:"stale_time"`
	ConfirmationTTL     time.Duration `mapstructure:"confirmation_ttl"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	BreakerFailures     uint32        `mapstructure:"breaker_failures"`
	BreakerOpenTimeout  time.Duration `mapstructure:"breaker_open_timeout"`
	BreakerHalfOpenReqs uint32        `mapstructure:"breaker_half_open_requests"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds Prometheus configuration.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
	Enabled   bool   `mapstructure:"enabled"`
}

// Load loads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/planpage")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("PLANPAGE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Plans) == 0 {
		cfg.Plans = DefaultPlans()
	}

	// Secrets are only ever taken from the environment when set there.
	if secret := os.Getenv("PLANPAGE_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if password := os.Getenv("PLANPAGE_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("PLANPAGE_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if key := os.Getenv("PLANPAGE_STRIPE_SECRET_KEY"); key != "" {
		cfg.Stripe.SecretKey = key
	}
	if secret := os.Getenv("PLANPAGE_STRIPE_WEBHOOK_SECRET"); secret != "" {
		cfg.Stripe.WebhookSecret = secret
	}
	if token := os.Getenv("PLANPAGE_TOKEN"); token != "" {
		cfg.Client.Token = token
	}

	return &cfg, nil
}

// DefaultPlans returns the built-in plan catalog.
func DefaultPlans() []PlanConfig {
	return []PlanConfig{
		{Name: "Weekly Plan", Amount: 9.99, Currency: "USD", Interval: "weekly"},
		{Name: "Monthly Plan", Amount: 39.99, Currency: "USD", Interval: "monthly"},
		{Name: "Yearly Plan", Amount: 299.99, Currency: "USD", Interval: "yearly"},
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.rate_window", time.Minute)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "planpage")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.status_ttl", 5*time.Minute)

	// Auth defaults
	v.SetDefault("auth.issuer", "planpage")
	v.SetDefault("auth.access_token_expiry", 15*time.Minute)

	// Stripe defaults
	v.SetDefault("stripe.success_url", "http://localhost:3000/profile?checkout=success")
	v.SetDefault("stripe.cancel_url", "http://localhost:3000/subscribe")

	// Checkout defaults
	v.SetDefault("checkout.rate_limit", 10)
	v.SetDefault("checkout.rate_window", time.Minute)

	// Client defaults
	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.stale_time", 5*time.Minute)
	v.SetDefault("client.confirmation_ttl", 2*time.Minute)
	v.SetDefault("client.request_timeout", 30*time.Second)
	v.SetDefault("client.dial_timeout", 10*time.Second)
	v.SetDefault("client.max_idle_conns", 10)
	v.SetDefault("client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("client.breaker_failures", 5)
	v.SetDefault("client.breaker_open_timeout", 30*time.Second)
	v.SetDefault("client.breaker_half_open_requests", 1)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Metrics defaults
	v.SetDefault("metrics.namespace", "planpage")
	v.SetDefault("metrics.enabled", true)
}
