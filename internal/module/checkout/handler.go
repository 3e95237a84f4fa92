package checkout

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/planpage/server/internal/port/outbound"
	"github.com/planpage/server/internal/shared/metrics"
	"github.com/planpage/server/internal/shared/response"
	"go.uber.org/zap"
)

// RateLimit bounds checkout attempts per user id. A zero Limit disables it.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

// Handler validates checkout requests and hands them to a SessionCreator.
type Handler struct {
	creator SessionCreator
	limiter outbound.RateLimiterPort
	limit   RateLimit
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewHandler creates a new checkout handler. limiter and m may be nil.
func NewHandler(creator SessionCreator, limiter outbound.RateLimiterPort, limit RateLimit, m *metrics.Metrics, logger *zap.Logger) *Handler {
	return &Handler{
		creator: creator,
		limiter: limiter,
		limit:   limit,
		metrics: m,
		logger:  logger,
	}
}

// RegisterRoutes registers the checkout route.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/checkout", h.Checkout)
}

// Checkout validates the request and creates a checkout session.
//
//	@Summary		Create checkout session
//	@Description	Validate a plan purchase and start a hosted checkout
//	@Tags			Checkout
//	@Accept			json
//	@Produce		json
//	@Param			request	body		Request	true	"Checkout request"
//	@Success		200		{object}	Response
//	@Failure		400		{object}	response.ErrorResponse
//	@Failure		429		{object}	response.ErrorResponse
//	@Failure		500		{object}	response.ErrorResponse
//	@Router			/checkout [post]
func (h *Handler) Checkout(c *gin.Context) {
	var req Request
	// A body that does not decode counts as missing every field.
	if err := c.ShouldBindJSON(&req); err != nil {
		req = Request{}
	}

	if !req.complete() {
		h.record("invalid")
		response.BadRequest(c, msgMissingFields)
		return
	}

	if !h.allow(c, req.UserID) {
		h.record("rate_limited")
		response.Error(c, http.StatusTooManyRequests, msgRateLimited)
		return
	}

	result, err := h.creator.CreateSession(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrInvalidPlanType) {
			h.record("rejected")
			response.BadRequest(c, msgInvalidPlan)
			return
		}
		h.record("failed")
		h.logger.Error("failed to create checkout session",
			zap.String("user_id", req.UserID),
			zap.String("plan_type", req.PlanType),
			zap.Error(err),
		)
		response.InternalError(c, msgSessionFailed)
		return
	}

	h.record("created")
	c.JSON(http.StatusOK, result)
}

// allow fails open when the limiter is unavailable.
func (h *Handler) allow(c *gin.Context, userID string) bool {
	if h.limiter == nil || h.limit.Limit <= 0 {
		return true
	}

	d, err := h.limiter.Take(c.Request.Context(), "checkout:"+userID, h.limit.Limit, h.limit.Window)
	if err != nil {
		h.logger.Warn("checkout rate limiter unavailable", zap.Error(err))
		return true
	}
	if !d.Allowed {
		c.Header("Retry-After", strconv.Itoa(int(h.limit.Window.Seconds())))
	}
	return d.Allowed
}

func (h *Handler) record(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordCheckout(outcome)
	}
}
