// Package api is a typed HTTP client for the plan page endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/planpage/server/internal/shared/config"
	"github.com/planpage/server/internal/shared/httpclient"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const maxErrorBody = 64 << 10

// TokenSource returns the bearer token for a request.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// Client calls the server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	breaker    *gobreaker.CircuitBreaker[any]
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource sets how bearer tokens are obtained.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

// NewClient creates a new API client.
func NewClient(cfg config.ClientConfig, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	openTimeout := cfg.BreakerOpenTimeout
	if openTimeout == 0 {
		openTimeout = 30 * time.Second
	}
	halfOpen := cfg.BreakerHalfOpenReqs
	if halfOpen == 0 {
		halfOpen = 1
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpclient.New(cfg),
		token:      StaticToken(cfg.Token),
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "planpage-api",
		MaxRequests: halfOpen,
		Interval:    60 * time.Second,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListPlans returns the plan catalog.
func (c *Client) ListPlans(ctx context.Context) ([]Plan, error) {
	var resp plansResponse
	if err := c.do(ctx, http.MethodGet, "/api/plans", nil, false, &resp); err != nil {
		return nil, err
	}
	return resp.Plans, nil
}

// GetSubscriptionStatus returns the signed-in user's subscription.
func (c *Client) GetSubscriptionStatus(ctx context.Context) (*SubscriptionStatus, error) {
	var resp SubscriptionStatus
	if err := c.do(ctx, http.MethodGet, "/api/profile/subscription-status", nil, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChangePlan switches the signed-in user to newPlan.
func (c *Client) ChangePlan(ctx context.Context, newPlan string) (*SubscriptionStatus, error) {
	var resp SubscriptionStatus
	if err := c.do(ctx, http.MethodPost, "/api/profile/change-plan", changePlanRequest{NewPlan: newPlan}, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Unsubscribe cancels the signed-in user's subscription.
func (c *Client) Unsubscribe(ctx context.Context) (*SubscriptionStatus, error) {
	var resp SubscriptionStatus
	if err := c.do(ctx, http.MethodPost, "/api/profile/unsubscribe", nil, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Checkout starts a checkout session.
func (c *Client) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	var resp CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/api/checkout", req, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, authenticated bool, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, path, body, authenticated, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s %s: %w", method, path, ErrUnavailable)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any, authenticated bool, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		token, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("get token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeError(resp)
		c.logger.Debug("api request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("error", apiErr.Message),
		)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) *Error {
	apiErr := &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var body errorResponse
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Code = body.Code
	}
	return apiErr
}
