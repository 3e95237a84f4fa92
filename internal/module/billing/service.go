package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/planpage/server/internal/shared/metrics"
	"go.uber.org/zap"
)

// ServiceInterface defines the billing service interface.
type ServiceInterface interface {
	Plans() []Plan
	FindPlan(planType string) (*Plan, error)

	// GetStatus returns the user's live subscription or ErrSubscriptionNotFound.
	GetStatus(ctx context.Context, userID string) (*Subscription, error)
	ChangePlan(ctx context.Context, userID, newPlan string) (*Subscription, error)
	Unsubscribe(ctx context.Context, userID string) (*Subscription, error)

	HandleWebhookEvent(ctx context.Context, event *WebhookEvent) error
}

// Service implements billing operations.
type Service struct {
	repo     Repository
	catalog  *Catalog
	provider Provider
	cache    StatusCache
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewService creates a new billing service. provider and m may be nil.
func NewService(repo Repository, catalog *Catalog, provider Provider, cache StatusCache, m *metrics.Metrics, logger *zap.Logger) *Service {
	if cache == nil {
		cache = noopStatusCache{}
	}
	return &Service{
		repo:     repo,
		catalog:  catalog,
		provider: provider,
		cache:    cache,
		metrics:  m,
		logger:   logger,
	}
}

// Plans returns the catalog.
func (s *Service) Plans() []Plan {
	return s.catalog.Plans()
}

// FindPlan resolves a plan type (an interval) against the catalog.
func (s *Service) FindPlan(planType string) (*Plan, error) {
	plan, ok := s.catalog.Find(Interval(planType))
	if !ok {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

// GetStatus returns the user's subscription. Canceled subscriptions are
// reported as not found.
func (s *Service) GetStatus(ctx context.Context, userID string) (*Subscription, error) {
	if sub, ok := s.cache.Get(ctx, userID); ok {
		s.recordCache(true)
		return liveOrNotFound(sub)
	}
	s.recordCache(false)

	sub, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, sub)
	return liveOrNotFound(sub)
}

func liveOrNotFound(sub *Subscription) (*Subscription, error) {
	if sub.IsCanceled() {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

// ChangePlan moves the user's subscription to the plan with the given interval.
func (s *Service) ChangePlan(ctx context.Context, userID, newPlan string) (sub *Subscription, err error) {
	defer func() { s.recordMutation("change_plan", err) }()

	plan, ok := s.catalog.Find(Interval(newPlan))
	if !ok {
		return nil, ErrInvalidPlan
	}

	sub, err = s.repo.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.IsCanceled() {
		return nil, ErrSubscriptionCanceled
	}
	if sub.Tier == plan.Interval {
		return sub, nil
	}

	providerChanged := false
	if sub.HasStripe() && s.provider != nil {
		if plan.StripePriceID == "" {
			s.logger.Error("plan has no stripe price, provider keeps billing the previous price",
				zap.String("user_id", userID),
				zap.String("stripe_subscription_id", sub.StripeSubscriptionID),
				zap.String("to", string(plan.Interval)),
			)
		}
		if err := s.provider.ChangeSubscriptionPlan(ctx, sub.StripeSubscriptionID, plan); err != nil {
			return nil, fmt.Errorf("change provider plan: %w", err)
		}
		providerChanged = true
	}

	previous := sub.Tier
	sub.Tier = plan.Interval
	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		if providerChanged {
			s.logger.Error("provider plan changed but local update failed",
				zap.String("user_id", userID),
				zap.String("stripe_subscription_id", sub.StripeSubscriptionID),
				zap.String("to", string(plan.Interval)),
				zap.Error(err),
			)
		}
		return nil, err
	}
	s.dropCache(ctx, userID)

	s.logger.Info("subscription plan changed",
		zap.String("user_id", userID),
		zap.String("from", string(previous)),
		zap.String("to", string(plan.Interval)),
	)
	return sub, nil
}

// Unsubscribe cancels the user's subscription immediately.
func (s *Service) Unsubscribe(ctx context.Context, userID string) (sub *Subscription, err error) {
	defer func() { s.recordMutation("unsubscribe", err) }()

	sub, err = s.repo.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.IsCanceled() {
		return nil, ErrSubscriptionCanceled
	}

	if sub.HasStripe() && s.provider != nil {
		if err := s.provider.CancelSubscription(ctx, sub.StripeSubscriptionID); err != nil {
			return nil, fmt.Errorf("cancel provider subscription: %w", err)
		}
	}

	now := time.Now()
	sub.Status = SubscriptionStatusCanceled
	sub.CancelAtPeriodEnd = false
	sub.CanceledAt = &now
	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	s.dropCache(ctx, userID)

	s.logger.Info("subscription canceled", zap.String("user_id", userID))
	return sub, nil
}

// HandleWebhookEvent applies a verified provider event. Unknown event types
// are ignored.
func (s *Service) HandleWebhookEvent(ctx context.Context, event *WebhookEvent) (err error) {
	switch event.Type {
	case EventCheckoutCompleted:
		defer func() { s.recordMutation("webhook_checkout", err) }()
		return s.activate(ctx, event)
	case EventSubscriptionUpdated:
		defer func() { s.recordMutation("webhook_update", err) }()
		return s.syncFromProvider(ctx, event)
	case EventSubscriptionDeleted:
		defer func() { s.recordMutation("webhook_delete", err) }()
		return s.cancelFromProvider(ctx, event)
	default:
		s.logger.Debug("ignoring webhook event", zap.String("type", event.Type), zap.String("id", event.ID))
		return nil
	}
}

func (s *Service) activate(ctx context.Context, event *WebhookEvent) error {
	if event.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidWebhook)
	}
	if _, ok := s.catalog.Find(Interval(event.PlanType)); !ok {
		return fmt.Errorf("%w: unknown plan %q", ErrInvalidWebhook, event.PlanType)
	}

	sub := &Subscription{
		ID:                   uuid.New(),
		UserID:               event.UserID,
		Email:                event.Email,
		Tier:                 Interval(event.PlanType),
		Status:               SubscriptionStatusActive,
		StripeCustomerID:     event.StripeCustomerID,
		StripeSubscriptionID: event.StripeSubscriptionID,
		CurrentPeriodEnd:     event.CurrentPeriodEnd,
	}
	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		return err
	}
	s.dropCache(ctx, event.UserID)

	s.logger.Info("subscription activated",
		zap.String("user_id", event.UserID),
		zap.String("tier", event.PlanType),
	)
	return nil
}

func (s *Service) syncFromProvider(ctx context.Context, event *WebhookEvent) error {
	sub, err := s.repo.GetSubscriptionByStripeID(ctx, event.StripeSubscriptionID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			s.logger.Warn("webhook for unknown subscription", zap.String("stripe_subscription_id", event.StripeSubscriptionID))
			return nil
		}
		return err
	}

	sub.CancelAtPeriodEnd = event.CancelAtPeriodEnd
	if event.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = event.CurrentPeriodEnd
	}
	switch event.Status {
	case "active", "trialing":
		sub.Status = SubscriptionStatusActive
	case "past_due", "unpaid":
		sub.Status = SubscriptionStatusPastDue
	case "canceled", "incomplete_expired":
		sub.Status = SubscriptionStatusCanceled
	}
	if tier, ok := s.tierForPrice(sub.Tier, event.PriceID); ok {
		sub.Tier = tier
	}

	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return err
	}
	s.dropCache(ctx, sub.UserID)
	return nil
}

// tierForPrice maps the billed Stripe price back to a catalog interval. A
// stored tier whose plan has no price id is never billed by a catalog price,
// so it is left alone.
func (s *Service) tierForPrice(current Interval, priceID string) (Interval, bool) {
	plan, ok := s.catalog.FindByPriceID(priceID)
	if !ok {
		return "", false
	}
	if cur, ok := s.catalog.Find(current); ok && cur.StripePriceID == "" {
		return "", false
	}
	return plan.Interval, true
}

func (s *Service) cancelFromProvider(ctx context.Context, event *WebhookEvent) error {
	sub, err := s.repo.GetSubscriptionByStripeID(ctx, event.StripeSubscriptionID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			s.logger.Warn("webhook for unknown subscription", zap.String("stripe_subscription_id", event.StripeSubscriptionID))
			return nil
		}
		return err
	}
	if sub.IsCanceled() {
		return nil
	}

	now := time.Now()
	sub.Status = SubscriptionStatusCanceled
	sub.CanceledAt = &now
	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return err
	}
	s.dropCache(ctx, sub.UserID)
	return nil
}

func (s *Service) dropCache(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("failed to drop cached status", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Service) recordMutation(op string, err error) {
	if s.metrics != nil {
		s.metrics.RecordMutation(op, err)
	}
}

func (s *Service) recordCache(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.RecordCacheHit(statusCacheName)
	} else {
		s.metrics.RecordCacheMiss(statusCacheName)
	}
}

// Compile-time check
var _ ServiceInterface = (*Service)(nil)
