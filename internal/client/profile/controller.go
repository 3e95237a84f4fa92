// Package profile implements the subscription page view-model: it fetches
// the signed-in user's subscription, derives the current plan from the
// catalog and runs the change-plan and unsubscribe flows.
package profile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/planpage/server/internal/client/api"
	"github.com/planpage/server/internal/client/query"
	"go.uber.org/zap"
)

const (
	// StatusKey is the query key of the subscription status.
	StatusKey = "subscription"
	// SubscribePath is where the user is sent after unsubscribing.
	SubscribePath = "/subscribe"

	// DefaultConfirmationTTL bounds how long an unsubscribe confirmation is valid.
	DefaultConfirmationTTL = 2 * time.Minute

	UnsubscribePrompt  = "Are you sure you want to unsubscribe? You will lose access to premium features."
	PlanUpdatedMessage = "Subscription plan updated successfully!"
	PlanUpdateFailed   = "Error updating plan."
	UnsubscribeFailed  = "Error unsubscribing."
)

// Client is the subset of the API the controller calls.
type Client interface {
	GetSubscriptionStatus(ctx context.Context) (*api.SubscriptionStatus, error)
	ChangePlan(ctx context.Context, newPlan string) (*api.SubscriptionStatus, error)
	Unsubscribe(ctx context.Context) (*api.SubscriptionStatus, error)
}

// Options configures a Controller.
type Options struct {
	// Cache is shared between controllers of the same session. A private
	// cache is created when nil.
	Cache           *query.Cache[*api.SubscriptionStatus]
	StaleTime       time.Duration
	ConfirmationTTL time.Duration
	Notifier        Notifier
	Navigator       Navigator
	Logger          *zap.Logger
}

// MutationPhase is the lifecycle of one mutation.
type MutationPhase int

const (
	MutationIdle MutationPhase = iota
	MutationPending
	MutationSucceeded
	MutationFailed
)

// MutationState records the latest run of a mutation.
type MutationState struct {
	Phase      MutationPhase
	LastResult *api.SubscriptionStatus
	LastError  error
}

// Pending reports whether the mutation is in flight.
func (m MutationState) Pending() bool {
	return m.Phase == MutationPending
}

// MutationResult is delivered when a submitted mutation resolves.
type MutationResult struct {
	Status *api.SubscriptionStatus
	Err    error
}

// Confirmation is a pending unsubscribe awaiting the user's answer.
type Confirmation struct {
	Token     string
	Prompt    string
	ExpiresAt time.Time
}

// Controller is the subscription page view-model. It is safe for
// concurrent use: View may be called while mutations are in flight.
type Controller struct {
	client        Client
	catalog       []api.Plan
	cache         *query.Cache[*api.SubscriptionStatus]
	confirmations *gocache.Cache
	confirmTTL    time.Duration
	notifier      Notifier
	navigator     Navigator
	logger        *zap.Logger

	mu           sync.Mutex
	auth         AuthState
	unmounted    bool
	fetching     int
	fetchErr     error
	selectedPlan string
	changePlan   MutationState
	unsubscribe  MutationState

	wg sync.WaitGroup
}

// New creates a controller for the given auth state and plan catalog.
func New(auth AuthState, client Client, catalog []api.Plan, opts Options) (*Controller, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Navigator == nil {
		opts.Navigator = nopNavigator{}
	}
	if opts.ConfirmationTTL <= 0 {
		opts.ConfirmationTTL = DefaultConfirmationTTL
	}

	cache := opts.Cache
	if cache == nil {
		logger := opts.Logger
		var err error
		cache, err = query.New[*api.SubscriptionStatus](query.Options{
			StaleTime: opts.StaleTime,
			OnBackgroundError: func(key string, err error) {
				logger.Warn("background refresh failed", zap.String("key", key), zap.Error(err))
			},
		})
		if err != nil {
			return nil, fmt.Errorf("create status cache: %w", err)
		}
	}

	return &Controller{
		client:        client,
		catalog:       append([]api.Plan(nil), catalog...),
		cache:         cache,
		confirmations: gocache.New(opts.ConfirmationTTL, 2*opts.ConfirmationTTL),
		confirmTTL:    opts.ConfirmationTTL,
		notifier:      opts.Notifier,
		navigator:     opts.Navigator,
		logger:        opts.Logger,
		auth:          auth,
	}, nil
}

// Mount loads the subscription status if the user is signed in.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	c.unmounted = false
	c.mu.Unlock()
	return c.fetch(ctx)
}

// SetAuth replaces the auth state and fetches the status once the user
// becomes signed in. Signing out or switching users drops the cached
// status and any page state of the previous user.
func (c *Controller) SetAuth(ctx context.Context, auth AuthState) error {
	c.mu.Lock()
	wasReady := c.auth.canFetch()
	switched := wasReady && (!auth.canFetch() || auth.userID() != c.auth.userID())
	c.auth = auth
	if switched {
		c.cache.Reset(StatusKey)
		c.selectedPlan = ""
		c.changePlan = MutationState{}
		c.unsubscribe = MutationState{}
		c.confirmations.Flush()
	}
	if switched || !auth.canFetch() {
		c.fetchErr = nil
	}
	c.mu.Unlock()

	if auth.canFetch() && (!wasReady || switched) {
		return c.fetch(ctx)
	}
	return nil
}

// Refetch reads the status again, going to the server if the cached value
// is missing or invalidated.
func (c *Controller) Refetch(ctx context.Context) error {
	return c.fetch(ctx)
}

// Unmount detaches the controller. Results arriving afterwards are
// discarded.
func (c *Controller) Unmount() {
	c.mu.Lock()
	c.unmounted = true
	c.mu.Unlock()
}

// Wait blocks until submitted mutations and background refreshes finish.
func (c *Controller) Wait() {
	c.wg.Wait()
	c.cache.Wait()
}

func (c *Controller) fetch(ctx context.Context) error {
	c.mu.Lock()
	if !c.auth.canFetch() {
		c.mu.Unlock()
		return nil
	}
	userID := c.auth.userID()
	c.fetching++
	c.mu.Unlock()

	_, err := c.cache.GetOrFetch(ctx, StatusKey, c.client.GetSubscriptionStatus)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetching--
	if c.unmounted {
		return err
	}
	if err != nil {
		c.fetchErr = err
		c.logger.Warn("fetch subscription status failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	c.fetchErr = nil
	return nil
}

// SelectPlan sets the plan chosen in the selector.
func (c *Controller) SelectPlan(plan string) {
	c.mu.Lock()
	c.selectedPlan = plan
	c.mu.Unlock()
}

// SelectedPlan returns the plan chosen in the selector.
func (c *Controller) SelectedPlan() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedPlan
}

// SubmitPlanChange clears the selection and starts changing to the
// previously selected plan. The selection is already cleared when it
// returns; the channel yields the result once the call resolves. It
// reports false and makes no call when nothing was selected.
func (c *Controller) SubmitPlanChange(ctx context.Context) (<-chan MutationResult, bool) {
	c.mu.Lock()
	plan := c.selectedPlan
	c.selectedPlan = ""
	c.mu.Unlock()

	if strings.TrimSpace(plan) == "" {
		return nil, false
	}

	done := make(chan MutationResult, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		status, err := c.ChangePlan(ctx, plan)
		done <- MutationResult{Status: status, Err: err}
		close(done)
	}()
	return done, true
}

// ChangePlan switches the subscription to newPlan. On success the cached
// status is invalidated and fetched again.
func (c *Controller) ChangePlan(ctx context.Context, newPlan string) (*api.SubscriptionStatus, error) {
	if strings.TrimSpace(newPlan) == "" {
		return nil, ErrNoPlanSelected
	}

	c.mu.Lock()
	c.changePlan = MutationState{Phase: MutationPending}
	userID := c.auth.userID()
	c.mu.Unlock()

	status, err := c.client.ChangePlan(ctx, newPlan)
	if err != nil {
		c.logger.Error("change plan failed",
			zap.String("user_id", userID),
			zap.String("plan", newPlan),
			zap.Error(err),
		)
		if c.settle(&c.changePlan, MutationState{Phase: MutationFailed, LastError: err}) {
			c.notifier.Notify(Toast{Kind: ToastError, Message: PlanUpdateFailed})
		}
		return nil, err
	}

	mounted := c.settle(&c.changePlan, MutationState{Phase: MutationSucceeded, LastResult: status})
	c.cache.Invalidate(StatusKey)
	c.logger.Info("plan changed", zap.String("user_id", userID), zap.String("plan", newPlan))
	if !mounted {
		return status, nil
	}

	c.notifier.Notify(Toast{Kind: ToastSuccess, Message: PlanUpdatedMessage})
	// The refetch error is reflected in the view; the mutation itself succeeded.
	_ = c.fetch(ctx)
	return status, nil
}

// RequestUnsubscribe starts the unsubscribe flow. Nothing happens until
// the returned confirmation is confirmed.
func (c *Controller) RequestUnsubscribe() Confirmation {
	token := uuid.NewString()
	c.confirmations.Set(token, struct{}{}, gocache.DefaultExpiration)
	return Confirmation{
		Token:     token,
		Prompt:    UnsubscribePrompt,
		ExpiresAt: time.Now().Add(c.confirmTTL),
	}
}

// DeclineUnsubscribe drops a pending confirmation.
func (c *Controller) DeclineUnsubscribe(token string) {
	c.confirmations.Delete(token)
}

// ConfirmUnsubscribe cancels the subscription. On success the cached
// status is invalidated and the user is sent to the subscribe page.
func (c *Controller) ConfirmUnsubscribe(ctx context.Context, token string) (*api.SubscriptionStatus, error) {
	if !c.takeConfirmation(token) {
		return nil, ErrConfirmationNotFound
	}

	c.mu.Lock()
	c.unsubscribe = MutationState{Phase: MutationPending}
	userID := c.auth.userID()
	c.mu.Unlock()

	status, err := c.client.Unsubscribe(ctx)
	if err != nil {
		c.logger.Error("unsubscribe failed", zap.String("user_id", userID), zap.Error(err))
		if c.settle(&c.unsubscribe, MutationState{Phase: MutationFailed, LastError: err}) {
			c.notifier.Notify(Toast{Kind: ToastError, Message: UnsubscribeFailed})
		}
		return nil, err
	}

	mounted := c.settle(&c.unsubscribe, MutationState{Phase: MutationSucceeded, LastResult: status})
	c.cache.Invalidate(StatusKey)
	c.logger.Info("unsubscribed", zap.String("user_id", userID))
	if mounted {
		c.navigator.Navigate(SubscribePath)
	}
	return status, nil
}

// ChangePlanState returns the change-plan mutation state.
func (c *Controller) ChangePlanState() MutationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changePlan
}

// UnsubscribeState returns the unsubscribe mutation state.
func (c *Controller) UnsubscribeState() MutationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsubscribe
}

// takeConfirmation removes token and reports whether it was pending.
func (c *Controller) takeConfirmation(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.confirmations.Get(token); !ok {
		return false
	}
	c.confirmations.Delete(token)
	return true
}

// settle records a mutation outcome unless the controller was unmounted.
func (c *Controller) settle(m *MutationState, state MutationState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return false
	}
	*m = state
	return true
}
