package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/planpage/server/internal/module/billing"
)

// SessionCreator turns a validated checkout request into a hosted checkout session.
type SessionCreator interface {
	CreateSession(ctx context.Context, req *Request) (*Response, error)
}

// PlanFinder resolves plan types against the catalog.
type PlanFinder interface {
	FindPlan(planType string) (*billing.Plan, error)
}

type providerSessionCreator struct {
	plans    PlanFinder
	provider billing.Provider
}

// NewSessionCreator creates a SessionCreator backed by the payment provider.
func NewSessionCreator(plans PlanFinder, provider billing.Provider) SessionCreator {
	return &providerSessionCreator{plans: plans, provider: provider}
}

func (c *providerSessionCreator) CreateSession(ctx context.Context, req *Request) (*Response, error) {
	plan, err := c.plans.FindPlan(req.PlanType)
	if err != nil {
		if errors.Is(err, billing.ErrPlanNotFound) {
			return nil, ErrInvalidPlanType
		}
		return nil, err
	}

	session, err := c.provider.CreateCheckoutSession(ctx, &billing.CheckoutRequest{
		UserID: req.UserID,
		Email:  req.Email,
		Plan:   plan,
	})
	if err != nil {
		return nil, fmt.Errorf("create session for %s: %w", req.PlanType, err)
	}

	return &Response{URL: session.URL, SessionID: session.ID}, nil
}
