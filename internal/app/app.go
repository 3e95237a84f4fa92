package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	_ "github.com/planpage/server/cmd/server/docs" // swagger docs
	"github.com/planpage/server/internal/module/billing"
	"github.com/planpage/server/internal/module/checkout"
	"github.com/planpage/server/internal/module/profile"
	"github.com/planpage/server/internal/port/outbound"
	"github.com/planpage/server/internal/shared/config"
	"github.com/planpage/server/internal/shared/logger"
	"github.com/planpage/server/internal/shared/metrics"
	"github.com/planpage/server/internal/shared/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// App represents the application.
type App struct {
	config    *config.Config
	router    *gin.Engine
	logger    *logger.Logger
	zapLogger *zap.Logger
	metrics   *metrics.Metrics
	registry  *prometheus.Registry
	limiter   outbound.RateLimiterPort
	validator middleware.TokenValidator

	// Handlers
	billingHandler  *billing.Handler
	checkoutHandler *checkout.Handler
	profileHandler  *profile.Handler
}

// Handlers groups the module handlers mounted under /api.
type Handlers struct {
	Billing  *billing.Handler
	Checkout *checkout.Handler
	Profile  *profile.Handler
}

// NewApp assembles the application and its router.
func NewApp(
	cfg *config.Config,
	log *logger.Logger,
	zapLog *zap.Logger,
	m *metrics.Metrics,
	registry *prometheus.Registry,
	limiter outbound.RateLimiterPort,
	validator middleware.TokenValidator,
	handlers *Handlers,
) *App {
	a := &App{
		config:          cfg,
		logger:          log,
		zapLogger:       zapLog,
		metrics:         m,
		registry:        registry,
		limiter:         limiter,
		validator:       validator,
		billingHandler:  handlers.Billing,
		checkoutHandler: handlers.Checkout,
		profileHandler:  handlers.Profile,
	}
	a.router = a.setupRouter()
	a.registerRoutes()
	return a
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID(a.logger))
	r.Use(middleware.Logging(a.logger))
	if a.metrics != nil {
		r.Use(middleware.Metrics(a.metrics))
	}
	r.Use(middleware.CORS(a.config.Server.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if a.config.Metrics.Enabled && a.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	return r
}

// registerRoutes registers routes for all modules.
func (a *App) registerRoutes() {
	api := a.router.Group("/api")

	// Public routes
	a.billingHandler.RegisterRoutes(api)
	a.checkoutHandler.RegisterRoutes(api)

	// Protected routes
	protected := api.Group("")
	protected.Use(middleware.RequireAuth(a.validator))
	if a.limiter != nil && a.config.Server.RateLimit > 0 {
		protected.Use(middleware.RateLimitByUser(a.limiter, a.config.Server.RateLimit, a.config.Server.RateWindow))
	}
	a.profileHandler.RegisterRoutes(protected)
}

// Logger returns the application's zap logger.
func (a *App) Logger() *zap.Logger {
	return a.zapLogger
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}
