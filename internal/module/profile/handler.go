package profile

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/planpage/server/internal/module/billing"
	"github.com/planpage/server/internal/shared/middleware"
	"github.com/planpage/server/internal/shared/response"
	"go.uber.org/zap"
)

// SubscriptionService is the part of the billing service the profile
// endpoints use.
type SubscriptionService interface {
	GetStatus(ctx context.Context, userID string) (*billing.Subscription, error)
	ChangePlan(ctx context.Context, userID, newPlan string) (*billing.Subscription, error)
	Unsubscribe(ctx context.Context, userID string) (*billing.Subscription, error)
}

var errorMappings = []response.ErrorMapping{
	{Err: billing.ErrInvalidPlan, Status: http.StatusBadRequest, Code: "INVALID_PLAN", Message: "Invalid plan."},
	{Err: billing.ErrSubscriptionNotFound, Status: http.StatusNotFound, Code: "SUBSCRIPTION_NOT_FOUND", Message: "No active subscription."},
	{Err: billing.ErrSubscriptionCanceled, Status: http.StatusConflict, Code: "SUBSCRIPTION_CANCELED", Message: "Subscription is already canceled."},
}

// Handler serves the signed-in user's subscription endpoints.
type Handler struct {
	service SubscriptionService
	logger  *zap.Logger
}

// NewHandler creates a new profile handler.
func NewHandler(service SubscriptionService, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers the profile routes. The group must already
// require authentication.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	profile := r.Group("/profile")
	{
		profile.GET("/subscription-status", h.GetSubscriptionStatus)
		profile.POST("/change-plan", h.ChangePlan)
		profile.POST("/unsubscribe", h.Unsubscribe)
	}
}

// GetSubscriptionStatus returns the user's subscription, or null.
//
//	@Summary		Get subscription status
//	@Description	Get the signed-in user's current subscription
//	@Tags			Profile
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	billing.SubscriptionEnvelope
//	@Failure		401	{object}	response.ErrorResponse
//	@Router			/profile/subscription-status [get]
func (h *Handler) GetSubscriptionStatus(c *gin.Context) {
	userID := middleware.GetUserID(c)

	sub, err := h.service.GetStatus(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			c.JSON(http.StatusOK, billing.SubscriptionEnvelope{})
			return
		}
		h.fail(c, "get subscription status", userID, err)
		return
	}

	c.JSON(http.StatusOK, billing.SubscriptionEnvelope{Subscription: sub.ToResponse()})
}

// ChangePlan moves the user to another catalog plan.
//
//	@Summary		Change plan
//	@Description	Switch the signed-in user's subscription to another plan interval
//	@Tags			Profile
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		billing.ChangePlanRequest	true	"New plan"
//	@Success		200		{object}	billing.SubscriptionEnvelope
//	@Failure		400		{object}	response.ErrorResponse
//	@Failure		404		{object}	response.ErrorResponse
//	@Failure		409		{object}	response.ErrorResponse
//	@Router			/profile/change-plan [post]
func (h *Handler) ChangePlan(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req billing.ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.NewPlan == "" {
		response.BadRequest(c, "New plan is required.")
		return
	}

	sub, err := h.service.ChangePlan(c.Request.Context(), userID, req.NewPlan)
	if err != nil {
		h.fail(c, "change plan", userID, err)
		return
	}

	c.JSON(http.StatusOK, billing.SubscriptionEnvelope{Subscription: sub.ToResponse()})
}

// Unsubscribe cancels the user's subscription.
//
//	@Summary		Unsubscribe
//	@Description	Cancel the signed-in user's subscription immediately
//	@Tags			Profile
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	billing.SubscriptionEnvelope
//	@Failure		404	{object}	response.ErrorResponse
//	@Failure		409	{object}	response.ErrorResponse
//	@Router			/profile/unsubscribe [post]
func (h *Handler) Unsubscribe(c *gin.Context) {
	userID := middleware.GetUserID(c)

	sub, err := h.service.Unsubscribe(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "unsubscribe", userID, err)
		return
	}

	c.JSON(http.StatusOK, billing.SubscriptionEnvelope{Subscription: sub.ToResponse()})
}

func (h *Handler) fail(c *gin.Context, op, userID string, err error) {
	if response.HandleError(c, err, errorMappings) {
		return
	}
	h.logger.Error(op+" failed", zap.String("user_id", userID), zap.Error(err))
	response.InternalError(c, "")
}
