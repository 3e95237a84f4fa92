package profile

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/planpage/server/internal/client/api"
	"github.com/planpage/server/internal/client/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) GetSubscriptionStatus(ctx context.Context) (*api.SubscriptionStatus, error) {
	args := m.Called(ctx)
	status, _ := args.Get(0).(*api.SubscriptionStatus)
	return status, args.Error(1)
}

func (m *mockClient) ChangePlan(ctx context.Context, newPlan string) (*api.SubscriptionStatus, error) {
	args := m.Called(ctx, newPlan)
	status, _ := args.Get(0).(*api.SubscriptionStatus)
	return status, args.Error(1)
}

func (m *mockClient) Unsubscribe(ctx context.Context) (*api.SubscriptionStatus, error) {
	args := m.Called(ctx)
	status, _ := args.Get(0).(*api.SubscriptionStatus)
	return status, args.Error(1)
}

type recorder struct {
	mu     sync.Mutex
	toasts []Toast
	paths  []string
}

func (r *recorder) Notify(t Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

func (r *recorder) Navigate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Toast(nil), r.toasts...)
}

func (r *recorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

var testUser = User{ID: "user_1", Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace"}

type fixture struct {
	client     *mockClient
	recorder   *recorder
	controller *Controller
}

func setup(t *testing.T, auth AuthState, opts Options) *fixture {
	t.Helper()
	f := &fixture{client: &mockClient{}, recorder: &recorder{}}
	opts.Notifier = f.recorder
	opts.Navigator = f.recorder

	c, err := New(auth, f.client, testCatalog, opts)
	require.NoError(t, err)
	f.controller = c
	return f
}

// mounted returns a fixture whose status fetch already returned status.
func mounted(t *testing.T, status *api.SubscriptionStatus) *fixture {
	t.Helper()
	f := setup(t, SignedInAs(testUser), Options{})
	f.client.On("GetSubscriptionStatus", mock.Anything).Return(status, nil).Once()
	require.NoError(t, f.controller.Mount(context.Background()))
	return f
}

func TestController_View(t *testing.T) {
	ctx := context.Background()

	t.Run("auth not loaded", func(t *testing.T) {
		f := setup(t, AuthState{}, Options{})
		require.NoError(t, f.controller.Mount(ctx))

		v := f.controller.View()
		assert.Equal(t, KindAuthLoading, v.Kind)
		assert.True(t, v.Loading)
		assert.Equal(t, "Loading...", v.Message)
		f.client.AssertNotCalled(t, "GetSubscriptionStatus", mock.Anything)
	})

	t.Run("signed out", func(t *testing.T) {
		f := setup(t, SignedOut(), Options{})
		require.NoError(t, f.controller.Mount(ctx))

		v := f.controller.View()
		assert.Equal(t, KindSignedOut, v.Kind)
		assert.Equal(t, "Please sign in to view your profile.", v.Message)
		f.client.AssertNotCalled(t, "GetSubscriptionStatus", mock.Anything)
	})

	t.Run("status fetch in flight", func(t *testing.T) {
		f := setup(t, SignedInAs(testUser), Options{})
		started := make(chan struct{})
		release := make(chan struct{})
		f.client.On("GetSubscriptionStatus", mock.Anything).
			Run(func(mock.Arguments) {
				close(started)
				<-release
			}).
			Return(statusWithTier("monthly"), nil).Once()

		done := make(chan error)
		go func() { done <- f.controller.Mount(ctx) }()
		<-started

		v := f.controller.View()
		assert.Equal(t, KindStatusLoading, v.Kind)
		assert.True(t, v.Loading)
		assert.Equal(t, "Loading subscription details...", v.Message)

		close(release)
		require.NoError(t, <-done)
		assert.Equal(t, KindPlan, f.controller.View().Kind)
	})

	t.Run("status fetch failed", func(t *testing.T) {
		f := setup(t, SignedInAs(testUser), Options{})
		f.client.On("GetSubscriptionStatus", mock.Anything).
			Return(nil, &api.Error{StatusCode: http.StatusUnauthorized, Message: "Invalid or expired token"}).Once()

		require.Error(t, f.controller.Mount(ctx))

		v := f.controller.View()
		assert.Equal(t, KindStatusError, v.Kind)
		assert.Equal(t, "Invalid or expired token", v.Message)
	})

	t.Run("matching plan", func(t *testing.T) {
		f := mounted(t, statusWithTier("monthly"))

		v := f.controller.View()
		require.Equal(t, KindPlan, v.Kind)
		assert.Equal(t, "Monthly", v.Plan.Name)
		assert.Equal(t, "10USD", v.Plan.Amount)
		assert.Equal(t, "ACTIVE", v.Plan.Status)
		assert.Equal(t, "Select a New Plan", v.Selector.Placeholder)
		assert.Equal(t, Option{Value: "monthly", Label: "Monthly - $10 / monthly"}, v.Selector.Options[0])
		assert.Equal(t, "Unsubscribe", v.Unsubscribe.Label)
		assert.Equal(t, &testUser, v.User)
		assert.Contains(t, v.String(), "Ada Lovelace <ada@example.com>")
		assert.Contains(t, v.String(), "Amount: 10USD")
	})

	t.Run("no matching plan", func(t *testing.T) {
		f := mounted(t, statusWithTier("weekly"))

		v := f.controller.View()
		assert.Equal(t, KindPlanNotFound, v.Kind)
		assert.Equal(t, "Current Plan not Found.", v.Message)
		assert.Nil(t, v.Plan)
	})

	t.Run("no subscription", func(t *testing.T) {
		f := mounted(t, &api.SubscriptionStatus{})

		v := f.controller.View()
		assert.Equal(t, KindNotSubscribed, v.Kind)
		assert.Equal(t, "You are not subscribed to any plan.", v.Message)
	})
}

func TestController_SetAuth(t *testing.T) {
	ctx := context.Background()
	f := setup(t, AuthState{}, Options{})
	require.NoError(t, f.controller.Mount(ctx))
	f.client.AssertNotCalled(t, "GetSubscriptionStatus", mock.Anything)

	f.client.On("GetSubscriptionStatus", mock.Anything).Return(statusWithTier("yearly"), nil).Once()
	require.NoError(t, f.controller.SetAuth(ctx, SignedInAs(testUser)))

	assert.Equal(t, "Yearly", f.controller.View().Plan.Name)
	f.client.AssertExpectations(t)
}

func TestController_SetAuthSwitchingUsers(t *testing.T) {
	ctx := context.Background()
	bob := User{ID: "user_2", Email: "bob@example.com", FirstName: "Bob"}

	t.Run("sign out then sign in as another user refetches", func(t *testing.T) {
		f := mounted(t, statusWithTier("yearly"))
		require.Equal(t, "Yearly", f.controller.View().Plan.Name)

		require.NoError(t, f.controller.SetAuth(ctx, SignedOut()))
		assert.Equal(t, KindSignedOut, f.controller.View().Kind)

		f.client.On("GetSubscriptionStatus", mock.Anything).Return(&api.SubscriptionStatus{}, nil).Once()
		require.NoError(t, f.controller.SetAuth(ctx, SignedInAs(bob)))

		v := f.controller.View()
		assert.Equal(t, KindNotSubscribed, v.Kind)
		assert.Equal(t, &bob, v.User)
		f.client.AssertNumberOfCalls(t, "GetSubscriptionStatus", 2)
	})

	t.Run("direct switch drops previous user's state", func(t *testing.T) {
		f := mounted(t, statusWithTier("yearly"))
		f.controller.SelectPlan("monthly")

		f.client.On("GetSubscriptionStatus", mock.Anything).Return(statusWithTier("monthly"), nil).Once()
		require.NoError(t, f.controller.SetAuth(ctx, SignedInAs(bob)))

		assert.Equal(t, "Monthly", f.controller.View().Plan.Name)
		assert.Empty(t, f.controller.SelectedPlan())
		f.client.AssertNumberOfCalls(t, "GetSubscriptionStatus", 2)
	})

	t.Run("same user keeps the cached status", func(t *testing.T) {
		f := mounted(t, statusWithTier("yearly"))

		require.NoError(t, f.controller.SetAuth(ctx, SignedInAs(testUser)))

		assert.Equal(t, "Yearly", f.controller.View().Plan.Name)
		f.client.AssertNumberOfCalls(t, "GetSubscriptionStatus", 1)
	})
}

func TestController_ChangePlan(t *testing.T) {
	ctx := context.Background()

	t.Run("empty selection makes no call", func(t *testing.T) {
		f := mounted(t, statusWithTier("monthly"))

		_, submitted := f.controller.SubmitPlanChange(ctx)
		assert.False(t, submitted)

		_, err := f.controller.ChangePlan(ctx, "")
		assert.ErrorIs(t, err, ErrNoPlanSelected)

		f.client.AssertNotCalled(t, "ChangePlan", mock.Anything, mock.Anything)
		assert.Equal(t, MutationIdle, f.controller.ChangePlanState().Phase)
	})

	t.Run("clears selection before the call resolves", func(t *testing.T) {
		f := mounted(t, statusWithTier("monthly"))
		release := make(chan struct{})
		f.client.On("ChangePlan", mock.Anything, "yearly").
			Run(func(mock.Arguments) { <-release }).
			Return(statusWithTier("yearly"), nil).Once()
		f.client.On("GetSubscriptionStatus", mock.Anything).Return(statusWithTier("yearly"), nil).Once()

		f.controller.SelectPlan("yearly")
		done, submitted := f.controller.SubmitPlanChange(ctx)
		require.True(t, submitted)
		assert.Empty(t, f.controller.SelectedPlan())

		_, again := f.controller.SubmitPlanChange(ctx)
		assert.False(t, again)

		assert.Eventually(t, func() bool { return f.controller.ChangePlanState().Pending() }, time.Second, time.Millisecond)
		v := f.controller.View()
		assert.Equal(t, "Updating Plan...", v.Selector.Submit.Label)
		assert.True(t, v.Selector.Disabled)

		close(release)
		result := <-done
		require.NoError(t, result.Err)
		assert.Equal(t, "yearly", result.Status.Subscription.SubscriptionTier)
		f.client.AssertNumberOfCalls(t, "ChangePlan", 1)
	})

	t.Run("success refetches the status", func(t *testing.T) {
		f := mounted(t, statusWithTier("monthly"))
		f.client.On("ChangePlan", mock.Anything, "yearly").Return(statusWithTier("yearly"), nil).Once()
		f.client.On("GetSubscriptionStatus", mock.Anything).Return(statusWithTier("yearly"), nil).Once()

		_, err := f.controller.ChangePlan(ctx, "yearly")
		require.NoError(t, err)

		v := f.controller.View()
		require.Equal(t, KindPlan, v.Kind)
		assert.Equal(t, "Yearly", v.Plan.Name)
		assert.Equal(t, []Toast{{Kind: ToastSuccess, Message: "Subscription plan updated successfully!"}}, f.recorder.Toasts())
		assert.Equal(t, MutationSucceeded, f.controller.ChangePlanState().Phase)
		f.client.AssertNumberOfCalls(t, "GetSubscriptionStatus", 2)
	})

	t.Run("failure keeps the cached status", func(t *testing.T) {
		f := mounted(t, statusWithTier("monthly"))
		f.client.On("ChangePlan", mock.Anything, "yearly").Return(nil, errors.New("connection refused")).Once()

		before := f.controller.View()
		_, err := f.controller.ChangePlan(ctx, "yearly")
		require.Error(t, err)

		assert.Equal(t, before, f.controller.View())
		assert.Equal(t, []Toast{{Kind: ToastError, Message: "Error updating plan."}}, f.recorder.Toasts())
		state := f.controller.ChangePlanState()
		assert.Equal(t, MutationFailed, state.Phase)
		assert.EqualError(t, state.LastError, "connection refused")
		f.client.AssertNumberOfCalls(t, "GetSubscriptionStatus", 1)
	})
}

func TestController_Unsubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("declining is a no-op", func(t *testing.T) {
		f := mounted(t, statusWithTier("monthly"))
		cachedBefore, stateBefore := f.controller.cache.Get(StatusKey)
		viewBefore := f.controller.View()

		confirmation := f.controller.RequestUnsubscribe()
		assert.Equal(t, "Are you sure you want to unsubscribe? You will lose access to premium features.", confirmation.Prompt)
		f.controller.DeclineUnsubscribe(confirmation.Token)

		cachedAfter, stateAfter := f.controller.cache.Get(StatusKey)
		assert.Same(t, cachedBefore, cachedAfter)
		assert.Equal(t, stateBefore, stateAfter)
		assert.Equal(t, viewBefore, f.controller.View())
		assert.Equal(t, MutationIdle, f.controller.UnsubscribeState().Phase)

		_, err := f.controller.ConfirmUnsubscribe(ctx, confirmation.Token)
		assert.ErrorIs(t, err, ErrConfirmationNotFound)
		f.client.AssertNotCalled(t, "Unsubscribe", mock.Anything)
		assert.Empty(t, f.recorder.Toasts())
	})

	t.Run("confirming navigates away without refetching", func(t *testing.T) {
		f := mounted(t, statusWithTier("monthly"))
		f.client.On("Unsubscribe", mock.Anything).Return(&api.SubscriptionStatus{Subscription: &api.Subscription{SubscriptionTier: "monthly", Status: "canceled"}}, nil).Once()

		confirmation := f.controller.RequestUnsubscribe()
		_, err := f.controller.ConfirmUnsubscribe(ctx, confirmation.Token)
		require.NoError(t, err)

		assert.Equal(t, []string{"/subscribe"}, f.recorder.Paths())
		_, state := f.controller.cache.Get(StatusKey)
		assert.Equal(t, query.StateInvalidated, state)
		assert.Equal(t, MutationSucceeded, f.controller.UnsubscribeState().Phase)
		f.client.AssertNumberOfCalls(t, "GetSubscriptionStatus", 1)

		_, err = f.controller.ConfirmUnsubscribe(ctx, confirmation.Token)
		assert.ErrorIs(t, err, ErrConfirmationNotFound)
		f.client.AssertNumberOfCalls(t, "Unsubscribe", 1)
	})

	t.Run("failure stays on the page", func(t *testing.T) {
		f := mounted(t, statusWithTier("monthly"))
		f.client.On("Unsubscribe", mock.Anything).Return(nil, &api.Error{StatusCode: http.StatusInternalServerError, Message: "internal error"}).Once()

		before := f.controller.View()
		confirmation := f.controller.RequestUnsubscribe()
		_, err := f.controller.ConfirmUnsubscribe(ctx, confirmation.Token)
		require.Error(t, err)

		assert.Equal(t, before, f.controller.View())
		assert.Empty(t, f.recorder.Paths())
		assert.Equal(t, []Toast{{Kind: ToastError, Message: "Error unsubscribing."}}, f.recorder.Toasts())
	})

	t.Run("pending unsubscribe disables the button", func(t *testing.T) {
		f := mounted(t, statusWithTier("monthly"))
		started := make(chan struct{})
		release := make(chan struct{})
		f.client.On("Unsubscribe", mock.Anything).
			Run(func(mock.Arguments) {
				close(started)
				<-release
			}).
			Return(&api.SubscriptionStatus{}, nil).Once()

		confirmation := f.controller.RequestUnsubscribe()
		done := make(chan error)
		go func() {
			_, err := f.controller.ConfirmUnsubscribe(ctx, confirmation.Token)
			done <- err
		}()
		<-started

		v := f.controller.View()
		assert.Equal(t, "Unsubscribing...", v.Unsubscribe.Label)
		assert.True(t, v.Unsubscribe.Disabled)

		close(release)
		require.NoError(t, <-done)
	})

	t.Run("confirmation expires", func(t *testing.T) {
		f := setup(t, SignedInAs(testUser), Options{ConfirmationTTL: 10 * time.Millisecond})

		confirmation := f.controller.RequestUnsubscribe()
		time.Sleep(30 * time.Millisecond)

		_, err := f.controller.ConfirmUnsubscribe(ctx, confirmation.Token)
		assert.ErrorIs(t, err, ErrConfirmationNotFound)
		f.client.AssertNotCalled(t, "Unsubscribe", mock.Anything)
	})
}

func TestController_Unmount(t *testing.T) {
	ctx := context.Background()
	f := setup(t, SignedInAs(testUser), Options{})
	started := make(chan struct{})
	release := make(chan struct{})
	f.client.On("GetSubscriptionStatus", mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(nil, errors.New("late failure")).Once()

	done := make(chan error)
	go func() { done <- f.controller.Mount(ctx) }()
	<-started
	f.controller.Unmount()
	close(release)
	require.Error(t, <-done)

	assert.Equal(t, KindStatusLoading, f.controller.View().Kind)
}

func TestController_SharedCache(t *testing.T) {
	ctx := context.Background()
	cache, err := query.New[*api.SubscriptionStatus](query.Options{})
	require.NoError(t, err)

	first := setup(t, SignedInAs(testUser), Options{Cache: cache})
	first.client.On("GetSubscriptionStatus", mock.Anything).Return(statusWithTier("monthly"), nil).Once()
	require.NoError(t, first.controller.Mount(ctx))

	second := setup(t, SignedInAs(testUser), Options{Cache: cache})
	require.NoError(t, second.controller.Mount(ctx))

	assert.Equal(t, "Monthly", second.controller.View().Plan.Name)
	second.client.AssertNotCalled(t, "GetSubscriptionStatus", mock.Anything)
}
