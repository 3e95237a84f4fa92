package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/wire"
	redisadapter "github.com/planpage/server/internal/adapter/outbound/redis"
	"github.com/planpage/server/internal/module/auth"
	"github.com/planpage/server/internal/module/billing"
	"github.com/planpage/server/internal/module/billing/provider"
	"github.com/planpage/server/internal/module/checkout"
	"github.com/planpage/server/internal/module/profile"
	"github.com/planpage/server/internal/port/outbound"
	"github.com/planpage/server/internal/shared/cache"
	"github.com/planpage/server/internal/shared/config"
	"github.com/planpage/server/internal/shared/database"
	"github.com/planpage/server/internal/shared/logger"
	"github.com/planpage/server/internal/shared/metrics"
	"github.com/planpage/server/internal/shared/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ===== Infrastructure Providers =====

// InfraSet provides infrastructure dependencies.
var InfraSet = wire.NewSet(
	ProvideLogger,
	ProvideZapLogger,
	ProvideDatabase,
	ProvideRedisClient,
	ProvideRateLimiter,
	ProvideStatusCache,
	ProvideRegistry,
	ProvideMetrics,
	ProvideTokenValidator,
)

// ProvideLogger creates the HTTP layer logger.
func ProvideLogger(cfg *config.Config) *logger.Logger {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// ProvideZapLogger creates a zap logger instance.
func ProvideZapLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	log, err := logger.NewZapLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init zap logger: %w", err)
	}
	return log, func() { _ = log.Sync() }, nil
}

// ProvideDatabase opens the database and migrates the subscription table
// when enabled.
func ProvideDatabase(cfg *config.Config, zapLog *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.Open(context.Background(), &cfg.Database, &billing.Subscription{})
	if err != nil {
		return nil, nil, fmt.Errorf("init database: %w", err)
	}
	cleanup := func() {
		if err := database.Close(db); err != nil {
			zapLog.Warn("close database", zap.Error(err))
		}
	}
	return db, cleanup, nil
}

// ProvideRedisClient creates a Redis client. Redis is optional: nil is
// returned when it is not configured or unreachable.
func ProvideRedisClient(cfg *config.Config, zapLog *zap.Logger) (*goredis.Client, func()) {
	if cfg.Redis.Address == "" {
		return nil, func() {}
	}
	client, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		zapLog.Warn("Redis connection failed, continuing without cache", zap.Error(err))
		return nil, func() {}
	}
	return client, func() { _ = cache.Close(client) }
}

// ProvideRateLimiter creates a rate limiter, or nil without Redis.
func ProvideRateLimiter(client *goredis.Client) outbound.RateLimiterPort {
	if client == nil {
		return nil
	}
	return redisadapter.NewRateLimiter(client, "planpage:ratelimit:")
}

// ProvideStatusCache creates the subscription status cache.
func ProvideStatusCache(cfg *config.Config, client *goredis.Client) billing.StatusCache {
	var port outbound.CachePort
	if client != nil {
		port = redisadapter.NewCache(client, "planpage:")
	}
	return billing.NewStatusCache(port, cfg.Redis.StatusTTL)
}

// ProvideRegistry creates the Prometheus registry served at /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates the application metrics.
func ProvideMetrics(cfg *config.Config, reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(cfg.Metrics.Namespace, reg)
}

// ProvideTokenValidator creates the bearer token validator.
func ProvideTokenValidator(cfg *config.Config) middleware.TokenValidator {
	jwtConfig := auth.DefaultJWTConfig()
	jwtConfig.Secret = cfg.Auth.JWTSecret
	if cfg.Auth.Issuer != "" {
		jwtConfig.Issuer = cfg.Auth.Issuer
	}
	if cfg.Auth.AccessTokenExpiry > 0 {
		jwtConfig.AccessTokenExpiry = cfg.Auth.AccessTokenExpiry
	}
	return auth.NewJWTManager(jwtConfig)
}

// ===== Module Providers =====

// BillingSet provides the billing module.
var BillingSet = wire.NewSet(
	ProvideCatalog,
	ProvidePaymentProvider,
	billing.NewRepository,
	billing.NewService,
	wire.Bind(new(billing.ServiceInterface), new(*billing.Service)),
	wire.Bind(new(profile.SubscriptionService), new(*billing.Service)),
	wire.Bind(new(checkout.PlanFinder), new(*billing.Service)),
	billing.NewHandler,
)

// ProvideCatalog builds the plan catalog from configuration.
func ProvideCatalog(cfg *config.Config) *billing.Catalog {
	return billing.NewCatalog(cfg.Plans)
}

// ProvidePaymentProvider creates the Stripe provider.
func ProvidePaymentProvider(cfg *config.Config) billing.Provider {
	return provider.NewStripeProvider(&provider.StripeConfig{
		APIKey:        cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		SuccessURL:    cfg.Stripe.SuccessURL,
		CancelURL:     cfg.Stripe.CancelURL,
	})
}

// CheckoutSet provides the checkout module.
var CheckoutSet = wire.NewSet(
	checkout.NewSessionCreator,
	ProvideCheckoutRateLimit,
	checkout.NewHandler,
)

// ProvideCheckoutRateLimit reads the checkout limits from configuration.
func ProvideCheckoutRateLimit(cfg *config.Config) checkout.RateLimit {
	window := cfg.Checkout.RateWindow
	if window <= 0 {
		window = time.Minute
	}
	return checkout.RateLimit{Limit: cfg.Checkout.RateLimit, Window: window}
}

// ProfileSet provides the profile module.
var ProfileSet = wire.NewSet(
	profile.NewHandler,
)

// AppSet combines all provider sets.
var AppSet = wire.NewSet(
	InfraSet,
	BillingSet,
	CheckoutSet,
	ProfileSet,
	wire.Struct(new(Handlers), "*"),
	NewApp,
)
