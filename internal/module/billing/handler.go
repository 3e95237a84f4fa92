package billing

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/planpage/server/internal/shared/response"
	"go.uber.org/zap"
)

// maxWebhookBody bounds the webhook payload read into memory.
const maxWebhookBody = 64 << 10

// Handler serves the plan catalog and the payment provider webhook.
type Handler struct {
	service  ServiceInterface
	provider Provider
	logger   *zap.Logger
}

// NewHandler creates a new billing handler.
func NewHandler(service ServiceInterface, provider Provider, logger *zap.Logger) *Handler {
	return &Handler{service: service, provider: provider, logger: logger}
}

// RegisterRoutes registers the billing routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/plans", h.ListPlans)
	r.POST("/webhook", h.Webhook)
}

// ListPlans returns the plan catalog.
//
//	@Summary		List plans
//	@Description	Get the static plan catalog
//	@Tags			Billing
//	@Produce		json
//	@Success		200	{object}	PlansResponse
//	@Router			/plans [get]
func (h *Handler) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, PlansResponse{Plans: h.service.Plans()})
}

// Webhook receives Stripe events.
//
//	@Summary		Stripe webhook
//	@Description	Verify and apply a Stripe event
//	@Tags			Billing
//	@Accept			json
//	@Produce		json
//	@Param			Stripe-Signature	header		string	true	"Stripe signature"
//	@Success		200					{object}	map[string]bool
//	@Failure		400					{object}	response.ErrorResponse
//	@Failure		500					{object}	response.ErrorResponse
//	@Router			/webhook [post]
func (h *Handler) Webhook(c *gin.Context) {
	if h.provider == nil {
		response.Error(c, http.StatusServiceUnavailable, "payments are not configured")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}

	event, err := h.provider.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("rejected webhook", zap.Error(err))
		response.BadRequest(c, "invalid webhook")
		return
	}

	if err := h.service.HandleWebhookEvent(c.Request.Context(), event); err != nil {
		if errors.Is(err, ErrInvalidWebhook) {
			h.logger.Warn("unusable webhook event", zap.String("type", event.Type), zap.Error(err))
			response.BadRequest(c, err.Error())
			return
		}
		h.logger.Error("failed to apply webhook event", zap.String("type", event.Type), zap.String("id", event.ID), zap.Error(err))
		response.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
