package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/planpage/server/internal/module/auth"
	"github.com/planpage/server/internal/port/outbound"
	"github.com/planpage/server/internal/shared/logger"
	"github.com/planpage/server/internal/shared/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger(buf *bytes.Buffer, level string) *logger.Logger {
	return logger.New(&logger.Config{Level: level, Format: "json", Output: buf})
}

func TestRequestID(t *testing.T) {
	t.Run("generates new request ID when not provided", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID(nil))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, GetRequestID(c))
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		headerID := w.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, headerID)
		assert.Equal(t, headerID, w.Body.String())
	})

	t.Run("uses existing request ID from header", func(t *testing.T) {
		buf := &bytes.Buffer{}
		router := gin.New()
		router.Use(RequestID(testLogger(buf, "info")))
		router.GET("/test", func(c *gin.Context) {
			logger.FromContext(c.Request.Context()).Info("inside handler")
			c.String(http.StatusOK, GetRequestID(c))
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(RequestIDHeader, "existing-request-id-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "existing-request-id-123", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "existing-request-id-123", w.Body.String())
		assert.Contains(t, buf.String(), `"request_id":"existing-request-id-123"`)
	})
}

func TestLogging(t *testing.T) {
	t.Run("logs successful requests", func(t *testing.T) {
		buf := &bytes.Buffer{}
		router := gin.New()
		router.Use(RequestID(nil), Logging(testLogger(buf, "info")))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		out := buf.String()
		assert.Contains(t, out, "request completed")
		assert.Contains(t, out, `"method":"GET"`)
		assert.Contains(t, out, `"route":"/test"`)
		assert.Contains(t, out, `"status":200`)
		assert.Contains(t, out, `"request_id"`)
	})

	t.Run("logs 4xx requests as warnings", func(t *testing.T) {
		buf := &bytes.Buffer{}
		router := gin.New()
		router.Use(Logging(testLogger(buf, "warn")))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusBadRequest, "bad")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Contains(t, buf.String(), `"level":"WARN"`)
	})
}

func TestLogging_ServerErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	router := gin.New()
	router.Use(Logging(testLogger(buf, "error")))
	router.GET("/plans/:id", func(c *gin.Context) {
		c.Status(http.StatusBadGateway)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plans/42", nil))

	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), `"route":"/plans/:id"`)
}

func TestCORS(t *testing.T) {
	preflight := func(router *gin.Engine, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/plans", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}
	newRouter := func(origins []string) *gin.Engine {
		router := gin.New()
		router.Use(CORS(origins))
		router.POST("/api/plans", func(c *gin.Context) { c.Status(http.StatusOK) })
		return router
	}

	t.Run("wildcard allows any origin", func(t *testing.T) {
		w := preflight(newRouter([]string{"*"}), "https://anywhere.example")
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("listed origin gets credentials", func(t *testing.T) {
		w := preflight(newRouter([]string{"https://app.example"}), "https://app.example")
		assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("other origins are refused", func(t *testing.T) {
		w := preflight(newRouter([]string{"https://app.example"}), "https://evil.example")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	router := gin.New()
	router.Use(Recovery(testLogger(buf, "info")))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
	assert.Contains(t, buf.String(), "Panic recovered")
}

func TestRequireAuth(t *testing.T) {
	manager := auth.NewJWTManager(&auth.JWTConfig{
		Secret:            "middleware-test-secret",
		AccessTokenExpiry: time.Minute,
		Issuer:            "test",
	})
	token, _, err := manager.GenerateAccessToken(&auth.Identity{UserID: "user_1", Email: "a@example.com"})
	require.NoError(t, err)

	newRouter := func() *gin.Engine {
		router := gin.New()
		router.Use(RequireAuth(manager))
		router.GET("/me", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"user": GetUserID(c), "email": GetEmail(c)})
		})
		return router
	}

	t.Run("accepts valid bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(AuthorizationHeader, BearerPrefix+token)
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"user":"user_1","email":"a@example.com"}`, w.Body.String())
	})

	t.Run("rejects missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"Authorization header required"}`, w.Body.String())
	})

	t.Run("rejects invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(AuthorizationHeader, BearerPrefix+"garbage")
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"Invalid or expired token"}`, w.Body.String())
	})
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Take(ctx context.Context, key string, limit int, window time.Duration) (outbound.RateDecision, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Get(0).(outbound.RateDecision), args.Error(1)
}

func TestRateLimitByUser(t *testing.T) {
	newRouter := func(limiter *mockLimiter) *gin.Engine {
		router := gin.New()
		router.Use(func(c *gin.Context) {
			c.Set(UserIDKey, "user_1")
			c.Next()
		})
		router.Use(RateLimitByUser(limiter, 2, time.Minute))
		router.GET("/limited", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
		return router
	}

	t.Run("allows under limit", func(t *testing.T) {
		limiter := &mockLimiter{}
		limiter.On("Take", mock.Anything, "user:user_1", 2, time.Minute).Return(outbound.RateDecision{Allowed: true, Remaining: 1}, nil)

		w := httptest.NewRecorder()
		newRouter(limiter).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "1", w.Header().Get(RateLimitRemaining))
		limiter.AssertExpectations(t)
	})

	t.Run("rejects over limit", func(t *testing.T) {
		limiter := &mockLimiter{}
		limiter.On("Take", mock.Anything, "user:user_1", 2, time.Minute).Return(outbound.RateDecision{}, nil)

		w := httptest.NewRecorder()
		newRouter(limiter).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "60", w.Header().Get(RetryAfter))
	})

	t.Run("fails open on limiter error", func(t *testing.T) {
		limiter := &mockLimiter{}
		limiter.On("Take", mock.Anything, "user:user_1", 2, time.Minute).Return(outbound.RateDecision{}, errors.New("redis down"))

		w := httptest.NewRecorder()
		newRouter(limiter).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get(RateLimitRemaining))
	})
}

func TestMetrics(t *testing.T) {
	m := metrics.New("test", prometheus.NewRegistry())
	router := gin.New()
	router.Use(Metrics(m))
	router.GET("/items/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/42", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/items/:id", "2xx")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.HTTPRequestsInFlight))
}
