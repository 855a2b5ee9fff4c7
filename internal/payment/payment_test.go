package payment_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/billing"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/billing/memory"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/identity"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/payment"
)

const testSecret = "whsec_test_secret"

func sign(payload string) ([]byte, string) {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func eventJSON(id, typ, object string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","api_version":"2025-03-31.basil","type":%q,"data":{"object":%s}}`, id, typ, object)
}

func TestVerify_CheckoutCompleted(t *testing.T) {
	v := payment.NewStripeVerifier(testSecret)
	payload, header := sign(eventJSON("evt_1", payment.EventCheckoutCompleted,
		`{"id":"cs_1","object":"checkout.session","customer":"cus_1","subscription":"sub_1","metadata":{"userId":"user-1"}}`))

	ev, err := v.Verify(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, billing.KindCheckoutCompleted, ev.Kind)
	assert.Equal(t, "user-1", ev.UserID)
	assert.Equal(t, "cus_1", ev.CustomerID)
	assert.Equal(t, "sub_1", ev.SubscriptionID)
}

func TestVerify_InvoiceFallsBackToSubscriptionDetails(t *testing.T) {
	v := payment.NewStripeVerifier(testSecret)

	payload, header := sign(eventJSON("evt_2", payment.EventInvoicePaid,
		`{"id":"in_1","object":"invoice","customer":"cus_1","billing_reason":"subscription_cycle","subscription_details":{"metadata":{"userId":"user-2"}},"subscription":"sub_2"}`))
	ev, err := v.Verify(payload, header)
	require.NoError(t, err)
	assert.Equal(t, billing.KindInvoicePaid, ev.Kind)
	assert.Equal(t, "user-2", ev.UserID)
	assert.Equal(t, "sub_2", ev.SubscriptionID)

	payload, header = sign(eventJSON("evt_3", payment.EventInvoicePaid,
		`{"id":"in_2","object":"invoice","customer":"cus_1","billing_reason":"subscription_cycle","parent":{"subscription_details":{"subscription":"sub_3","metadata":{"userId":"user-3"}}}}`))
	ev, err = v.Verify(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "user-3", ev.UserID)
	assert.Equal(t, "sub_3", ev.SubscriptionID)
}

func TestVerify_FirstInvoiceDoesNotGrant(t *testing.T) {
	v := payment.NewStripeVerifier(testSecret)
	payload, header := sign(eventJSON("evt_4", payment.EventInvoicePaid,
		`{"id":"in_3","object":"invoice","billing_reason":"subscription_create","metadata":{"userId":"user-1"}}`))
	ev, err := v.Verify(payload, header)
	require.NoError(t, err)
	assert.Equal(t, billing.KindOther, ev.Kind)
	assert.False(t, ev.Kind.Grants())
}

func TestVerify_UnknownTypeIsOther(t *testing.T) {
	v := payment.NewStripeVerifier(testSecret)
	payload, header := sign(eventJSON("evt_5", "customer.subscription.deleted", `{"id":"sub_1","object":"subscription"}`))
	ev, err := v.Verify(payload, header)
	require.NoError(t, err)
	assert.Equal(t, billing.KindOther, ev.Kind)
	assert.Equal(t, "customer.subscription.deleted", ev.Type)
}

func TestVerify_RejectsBadSignature(t *testing.T) {
	payload, header := sign(eventJSON("evt_6", payment.EventCheckoutCompleted, `{"metadata":{"userId":"user-1"}}`))

	_, err := payment.NewStripeVerifier("whsec_other").Verify(payload, header)
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)

	_, err = payment.NewStripeVerifier(testSecret).Verify(payload, "")
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)

	_, err = payment.NewStripeVerifier("").Verify(payload, header)
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)
}

func TestWebhookEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	proc := billing.NewPaymentProcessor(payment.NewStripeVerifier(testSecret), store, clock, nil)

	payload, header := sign(eventJSON("evt_10", payment.EventCheckoutCompleted,
		`{"id":"cs_10","object":"checkout.session","customer":"cus_10","subscription":"sub_10","metadata":{"userId":"user-10"}}`))

	ack, err := proc.HandleEvent(ctx, payload, header)
	require.NoError(t, err)
	assert.True(t, ack.Granted)

	ack, err = proc.HandleEvent(ctx, payload, header)
	require.NoError(t, err)
	assert.True(t, ack.Duplicate)

	bal, err := store.GetBalance(ctx, "user-10")
	require.NoError(t, err)
	assert.Equal(t, billing.MonthlyAllotment, bal.Balance)

	sub, err := store.GetActiveSubscription(ctx, "user-10")
	require.NoError(t, err)
	assert.True(t, sub.Active())
	assert.Equal(t, "cus_10", sub.StripeCustomerID)

	_, err = proc.HandleEvent(ctx, payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)
}

func TestVerify_DecodeFailureKeepsSignatureValid(t *testing.T) {
	payload, header := sign(eventJSON("evt_7", payment.EventCheckoutCompleted,
		`{"id":"cs_7","object":"checkout.session","metadata":{"userId":42}}`))

	_, err := payment.NewStripeVerifier(testSecret).Verify(payload, header)
	require.Error(t, err)
	assert.NotErrorIs(t, err, billing.ErrInvalidSignature)

	proc := billing.NewPaymentProcessor(payment.NewStripeVerifier(testSecret), memory.New(), nil, nil)
	_, err = proc.HandleEvent(context.Background(), payload, header)
	require.Error(t, err)
	assert.Equal(t, "internal_error", billing.Classify(err))
}

func TestWebhookHandler_LargeSignedEvent(t *testing.T) {
	store := memory.New()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	proc := billing.NewPaymentProcessor(payment.NewStripeVerifier(testSecret), store, clock, nil)
	h := billing.NewHandler(billing.NewService(store, nil, clock, nil), proc, identity.UserID, nil, false)

	// a long custom text pushes the event past 64 KiB
	object := fmt.Sprintf(`{"id":"cs_big","object":"checkout.session","customer":"cus_1","metadata":{"userId":"user-1"},"custom_text":{"submit":{"message":%q}}}`,
		strings.Repeat("a", 70<<10))
	payload, header := sign(eventJSON("evt_big", payment.EventCheckoutCompleted, object))
	require.Greater(t, len(payload), 64<<10)

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bal, err := store.GetBalance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, billing.MonthlyAllotment, bal.Balance)
}

func withClaims(r *http.Request, sub, email string) *http.Request {
	c := &identity.Claims{Email: email}
	c.Subject = sub
	return r.WithContext(identity.WithClaims(r.Context(), c))
}

func TestCreateCheckoutSession(t *testing.T) {
	cfg := payment.Config{SecretKey: "sk_test_x", PriceID: "price_1", PublicBaseURL: "https://thumbs.example"}
	var got *stripelib.CheckoutSessionParams
	checkout := payment.NewCheckout(cfg).WithSessionFunc(func(p *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error) {
		got = p
		return &stripelib.CheckoutSession{URL: "https://checkout.stripe.test/cs_1"}, nil
	})
	h := payment.NewHandler(checkout, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/create-checkout-session", nil)
	req.Header.Set("user-email", "fallback@example.com")
	rec := httptest.NewRecorder()
	h.CreateCheckoutSession(rec, withClaims(req, "user-1", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"url":"https://checkout.stripe.test/cs_1"}`, rec.Body.String())
	require.NotNil(t, got)
	assert.Equal(t, string(stripelib.CheckoutSessionModeSubscription), *got.Mode)
	assert.Equal(t, "https://thumbs.example/success?session_id={CHECKOUT_SESSION_ID}", *got.SuccessURL)
	assert.Equal(t, "https://thumbs.example/cancel", *got.CancelURL)
	require.Len(t, got.LineItems, 1)
	assert.Equal(t, "price_1", *got.LineItems[0].Price)
	assert.Equal(t, int64(1), *got.LineItems[0].Quantity)
	assert.Equal(t, "user-1", got.Metadata[payment.MetadataUserID])
	assert.Equal(t, "user-1", got.SubscriptionData.Metadata[payment.MetadataUserID])
	assert.Equal(t, "fallback@example.com", *got.CustomerEmail)
}

func TestCreateCheckoutSession_Failures(t *testing.T) {
	h := payment.NewHandler(payment.NewCheckout(payment.Config{}), nil)

	rec := httptest.NewRecorder()
	h.CreateCheckoutSession(rec, httptest.NewRequest(http.MethodPost, "/api/stripe/create-checkout-session", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.CreateCheckoutSession(rec, withClaims(httptest.NewRequest(http.MethodPost, "/", nil), "user-1", "a@example.com"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	cfg := payment.Config{SecretKey: "sk_test_x", PriceID: "price_1", PublicBaseURL: "https://thumbs.example"}
	failing := payment.NewCheckout(cfg).WithSessionFunc(func(*stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error) {
		return nil, errors.New("stripe down")
	})
	rec = httptest.NewRecorder()
	payment.NewHandler(failing, nil).CreateCheckoutSession(rec, withClaims(httptest.NewRequest(http.MethodPost, "/", nil), "user-1", ""))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to create checkout session"}`, rec.Body.String())
}
