// Package provider holds the payment provider implementations behind
// billing.Provider.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/planpage/server/internal/module/billing"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Metadata keys written on checkout sessions and read back from webhooks.
const (
	MetadataUserID   = "userId"
	MetadataPlanType = "planType"
)

// StripeConfig holds Stripe provider configuration.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	// Backends overrides the API backends; nil uses the Stripe API.
	Backends *stripe.Backends
}

// StripeProvider implements billing.Provider using Stripe.
type StripeProvider struct {
	api    *client.API
	config *StripeConfig
}

// NewStripeProvider creates a new Stripe provider.
func NewStripeProvider(config *StripeConfig) *StripeProvider {
	return &StripeProvider{
		api:    client.New(config.APIKey, config.Backends),
		config: config,
	}
}

// Name returns the provider name.
func (p *StripeProvider) Name() string {
	return "stripe"
}

// CreateCheckoutSession creates a subscription-mode hosted checkout page.
// Plans without a Stripe price id are priced inline from the catalog.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req *billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	metadata := map[string]string{
		MetadataUserID:   req.UserID,
		MetadataPlanType: string(req.Plan.Interval),
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(p.config.SuccessURL),
		CancelURL:         stripe.String(p.config.CancelURL),
		CustomerEmail:     stripe.String(req.Email),
		ClientReferenceID: stripe.String(req.UserID),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{lineItem(req.Plan)},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	params.Context = ctx
	params.Metadata = metadata

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return &billing.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func lineItem(plan *billing.Plan) *stripe.CheckoutSessionLineItemParams {
	if plan.StripePriceID != "" {
		return &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(plan.StripePriceID),
			Quantity: stripe.Int64(1),
		}
	}
	return &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(1),
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(strings.ToLower(plan.Currency)),
			UnitAmount: stripe.Int64(toMinorUnits(plan.Amount)),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(plan.Name),
			},
			Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
				Interval: stripe.String(stripeInterval(plan.Interval)),
			},
		},
	}
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func stripeInterval(i billing.Interval) string {
	switch i {
	case billing.IntervalWeekly:
		return string(stripe.PriceRecurringIntervalWeek)
	case billing.IntervalYearly:
		return string(stripe.PriceRecurringIntervalYear)
	default:
		return string(stripe.PriceRecurringIntervalMonth)
	}
}

// ChangeSubscriptionPlan writes the plan type into the subscription metadata
// and, when the plan has a price id, swaps the price of the first item.
func (p *StripeProvider) ChangeSubscriptionPlan(ctx context.Context, subscriptionID string, plan *billing.Plan) error {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddMetadata(MetadataPlanType, string(plan.Interval))

	if plan.StripePriceID != "" {
		getParams := &stripe.SubscriptionParams{}
		getParams.Context = ctx
		sub, err := p.api.Subscriptions.Get(subscriptionID, getParams)
		if err != nil {
			return fmt.Errorf("get subscription: %w", err)
		}
		if sub.Items == nil || len(sub.Items.Data) == 0 {
			return fmt.Errorf("subscription %s has no items", subscriptionID)
		}
		params.Items = []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(sub.Items.Data[0].ID), Price: stripe.String(plan.StripePriceID)},
		}
		params.ProrationBehavior = stripe.String("create_prorations")
	}

	if _, err := p.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// CancelSubscription cancels the subscription immediately.
func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := p.api.Subscriptions.Cancel(subscriptionID, params); err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
// Unhandled event types come back with only ID and Type set.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*billing.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrInvalidWebhook, err)
	}

	out := &billing.WebhookEvent{ID: event.ID, Type: string(event.Type)}

	switch out.Type {
	case billing.EventCheckoutCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", billing.ErrInvalidWebhook, err)
		}
		out.UserID = s.Metadata[MetadataUserID]
		if out.UserID == "" {
			out.UserID = s.ClientReferenceID
		}
		out.PlanType = s.Metadata[MetadataPlanType]
		out.Email = s.CustomerEmail
		if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
			out.Email = s.CustomerDetails.Email
		}
		if s.Customer != nil {
			out.StripeCustomerID = s.Customer.ID
		}
		if s.Subscription != nil {
			out.StripeSubscriptionID = s.Subscription.ID
		}

	case billing.EventSubscriptionUpdated, billing.EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: %v", billing.ErrInvalidWebhook, err)
		}
		out.StripeSubscriptionID = sub.ID
		out.Status = string(sub.Status)
		out.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		out.UserID = sub.Metadata[MetadataUserID]
		out.PlanType = sub.Metadata[MetadataPlanType]
		if sub.Customer != nil {
			out.StripeCustomerID = sub.Customer.ID
		}
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			out.PriceID = sub.Items.Data[0].Price.ID
		}
		if sub.CurrentPeriodEnd > 0 {
			end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			out.CurrentPeriodEnd = &end
		}
	}

	return out, nil
}

// Compile-time check
var _ billing.Provider = (*StripeProvider)(nil)
