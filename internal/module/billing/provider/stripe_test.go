package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/planpage/server/internal/module/billing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_test"

func newTestProvider(t *testing.T, handler http.HandlerFunc) *StripeProvider {
	t.Helper()

	cfg := &StripeConfig{
		APIKey:        "sk_test_123",
		WebhookSecret: testWebhookSecret,
		SuccessURL:    "https://app.example/profile",
		CancelURL:     "https://app.example/subscribe",
	}
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)

		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(srv.URL),
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		})
		cfg.Backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}
	return NewStripeProvider(cfg)
}

func TestStripeProvider_CreateCheckoutSession(t *testing.T) {
	t.Run("uses configured price id", func(t *testing.T) {
		var form map[string]string
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
			form = map[string]string{
				"mode":       r.PostForm.Get("mode"),
				"price":      r.PostForm.Get("line_items[0][price]"),
				"email":      r.PostForm.Get("customer_email"),
				"userId":     r.PostForm.Get("metadata[userId]"),
				"planType":   r.PostForm.Get("metadata[planType]"),
				"subUserId":  r.PostForm.Get("subscription_data[metadata][userId]"),
				"successURL": r.PostForm.Get("success_url"),
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.example/cs_test_1"}`))
		})

		session, err := p.CreateCheckoutSession(context.Background(), &billing.CheckoutRequest{
			UserID: "user_1",
			Email:  "a@example.com",
			Plan:   &billing.Plan{Name: "Monthly", Amount: 10, Currency: "USD", Interval: billing.IntervalMonthly, StripePriceID: "price_monthly"},
		})
		require.NoError(t, err)
		assert.Equal(t, "cs_test_1", session.ID)
		assert.Equal(t, "https://checkout.example/cs_test_1", session.URL)
		assert.Equal(t, map[string]string{
			"mode":       "subscription",
			"price":      "price_monthly",
			"email":      "a@example.com",
			"userId":     "user_1",
			"planType":   "monthly",
			"subUserId":  "user_1",
			"successURL": "https://app.example/profile",
		}, form)
	})

	t.Run("prices inline without price id", func(t *testing.T) {
		var amount, interval, currency string
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			amount = r.PostForm.Get("line_items[0][price_data][unit_amount]")
			interval = r.PostForm.Get("line_items[0][price_data][recurring][interval]")
			currency = r.PostForm.Get("line_items[0][price_data][currency]")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"cs_test_2","object":"checkout.session","url":"https://checkout.example/cs_test_2"}`))
		})

		_, err := p.CreateCheckoutSession(context.Background(), &billing.CheckoutRequest{
			UserID: "user_1",
			Email:  "a@example.com",
			Plan:   &billing.Plan{Name: "Weekly", Amount: 9.99, Currency: "USD", Interval: billing.IntervalWeekly},
		})
		require.NoError(t, err)
		assert.Equal(t, "999", amount)
		assert.Equal(t, "week", interval)
		assert.Equal(t, "usd", currency)
	})

	t.Run("wraps api errors", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such price"}}`))
		})

		_, err := p.CreateCheckoutSession(context.Background(), &billing.CheckoutRequest{
			UserID: "user_1",
			Email:  "a@example.com",
			Plan:   &billing.Plan{Interval: billing.IntervalMonthly, StripePriceID: "price_missing"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "create checkout session")
	})
}

func TestStripeProvider_CancelSubscription(t *testing.T) {
	var method, path string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"sub_123","object":"subscription","status":"canceled"}`))
	})

	require.NoError(t, p.CancelSubscription(context.Background(), "sub_123"))
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/v1/subscriptions/sub_123", path)
}

func TestStripeProvider_ChangeSubscriptionPlan(t *testing.T) {
	t.Run("swaps price and records plan type", func(t *testing.T) {
		var updatedItem, updatedPrice, planType string
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if r.Method == http.MethodGet {
				_, _ = w.Write([]byte(`{"id":"sub_123","object":"subscription","items":{"object":"list","data":[{"id":"si_1","object":"subscription_item"}]}}`))
				return
			}
			require.NoError(t, r.ParseForm())
			updatedItem = r.PostForm.Get("items[0][id]")
			updatedPrice = r.PostForm.Get("items[0][price]")
			planType = r.PostForm.Get("metadata[planType]")
			_, _ = w.Write([]byte(`{"id":"sub_123","object":"subscription"}`))
		})

		plan := &billing.Plan{Name: "Yearly", Interval: billing.IntervalYearly, StripePriceID: "price_yearly"}
		require.NoError(t, p.ChangeSubscriptionPlan(context.Background(), "sub_123", plan))
		assert.Equal(t, "si_1", updatedItem)
		assert.Equal(t, "price_yearly", updatedPrice)
		assert.Equal(t, "yearly", planType)
	})

	t.Run("records plan type only when plan has no price", func(t *testing.T) {
		var methods []string
		var planType, price string
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			methods = append(methods, r.Method)
			require.NoError(t, r.ParseForm())
			planType = r.PostForm.Get("metadata[planType]")
			price = r.PostForm.Get("items[0][price]")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"sub_123","object":"subscription"}`))
		})

		plan := &billing.Plan{Name: "Weekly", Interval: billing.IntervalWeekly}
		require.NoError(t, p.ChangeSubscriptionPlan(context.Background(), "sub_123", plan))
		assert.Equal(t, []string{http.MethodPost}, methods)
		assert.Equal(t, "weekly", planType)
		assert.Empty(t, price)
	})
}

func signed(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return sp.Header, sp.Payload
}

func TestStripeProvider_ParseWebhook(t *testing.T) {
	p := newTestProvider(t, nil)

	t.Run("checkout session completed", func(t *testing.T) {
		header, body := signed(t, `{
			"id":"evt_1","object":"event","type":"checkout.session.completed","api_version":"2020-08-27",
			"data":{"object":{
				"id":"cs_1","object":"checkout.session",
				"client_reference_id":"user_1",
				"customer":"cus_1","subscription":"sub_1",
				"customer_details":{"email":"paid@example.com"},
				"metadata":{"userId":"user_1","planType":"monthly"}
			}}
		}`)

		event, err := p.ParseWebhook(body, header)
		require.NoError(t, err)
		assert.Equal(t, &billing.WebhookEvent{
			ID:                   "evt_1",
			Type:                 billing.EventCheckoutCompleted,
			UserID:               "user_1",
			Email:                "paid@example.com",
			PlanType:             "monthly",
			StripeCustomerID:     "cus_1",
			StripeSubscriptionID: "sub_1",
		}, event)
	})

	t.Run("subscription deleted", func(t *testing.T) {
		header, body := signed(t, `{
			"id":"evt_2","object":"event","type":"customer.subscription.deleted",
			"data":{"object":{
				"id":"sub_1","object":"subscription","status":"canceled",
				"customer":"cus_1","current_period_end":1767225600,
				"metadata":{"userId":"user_1","planType":"yearly"}
			}}
		}`)

		event, err := p.ParseWebhook(body, header)
		require.NoError(t, err)
		assert.Equal(t, billing.EventSubscriptionDeleted, event.Type)
		assert.Equal(t, "sub_1", event.StripeSubscriptionID)
		assert.Equal(t, "canceled", event.Status)
		assert.Equal(t, "user_1", event.UserID)
		require.NotNil(t, event.CurrentPeriodEnd)
		assert.Equal(t, int64(1767225600), event.CurrentPeriodEnd.Unix())
	})

	t.Run("subscription updated carries item price", func(t *testing.T) {
		header, body := signed(t, `{
			"id":"evt_4","object":"event","type":"customer.subscription.updated",
			"data":{"object":{
				"id":"sub_1","object":"subscription","status":"active",
				"items":{"object":"list","data":[{"id":"si_1","object":"subscription_item","price":{"id":"price_monthly","object":"price"}}]},
				"metadata":{"userId":"user_1","planType":"yearly"}
			}}
		}`)

		event, err := p.ParseWebhook(body, header)
		require.NoError(t, err)
		assert.Equal(t, billing.EventSubscriptionUpdated, event.Type)
		assert.Equal(t, "price_monthly", event.PriceID)
		assert.Equal(t, "yearly", event.PlanType)
	})

	t.Run("rejects bad signature", func(t *testing.T) {
		_, body := signed(t, `{"id":"evt_3","object":"event","type":"invoice.paid","data":{"object":{}}}`)

		_, err := p.ParseWebhook(body, "t=1,v1=deadbeef")
		assert.ErrorIs(t, err, billing.ErrInvalidWebhook)
	})
}
