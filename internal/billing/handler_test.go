package billing_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/billing"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/generation"
)

func headerUser(r *http.Request) (string, bool) {
	uid := r.Header.Get("X-Test-User")
	return uid, uid != ""
}

func newTestHandler(h *harness, production bool) *billing.Handler {
	return billing.NewHandler(h.svc, newProcessor(h), headerUser, nil, production)
}

func do(t *testing.T, fn http.HandlerFunc, method, body, user string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	fn(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHandler_GenerateStatusMapping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		user    string
		body    string
		balance int64
		sub     bool
		genErr  error
		status  int
		message string
	}{
		{"ok", "u1", `{"prompt":"robot chef"}`, 100, true, nil, http.StatusOK, ""},
		{"no session", "", `{"prompt":"robot chef"}`, 100, true, nil, http.StatusUnauthorized, "Unauthorized"},
		{"bad json", "u1", `{`, 100, true, nil, http.StatusBadRequest, "Missing or invalid prompt"},
		{"empty prompt", "u1", `{"prompt":"  "}`, 100, true, nil, http.StatusBadRequest, "Missing or invalid prompt"},
		{"no subscription", "u1", `{"prompt":"robot chef"}`, 100, false, nil, http.StatusPaymentRequired, "No active subscription"},
		{"insufficient", "u1", `{"prompt":"robot chef"}`, 10, true, nil, http.StatusPaymentRequired, "Insufficient credits"},
		{"timeout", "u1", `{"prompt":"robot chef"}`, 100, true, generation.ErrTimeoutOrFailure, http.StatusInternalServerError, "Thumbnail generation failed or timed out."},
		{"submission", "u1", `{"prompt":"robot chef"}`, 100, true,
			&generation.UpstreamError{Kind: generation.ErrSubmission, StatusCode: 401, Body: "invalid token"},
			http.StatusInternalServerError, "Failed to start prediction"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			h.gen.err = tc.genErr
			if tc.sub {
				h.subscribe("u1", epoch, tc.balance)
			} else {
				h.store.SetBalance("u1", tc.balance)
			}
			rec, out := do(t, newTestHandler(h, false).Generate, http.MethodPost, tc.body, tc.user)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tc.status == http.StatusOK {
				assert.Equal(t, "https://cdn/thumb.webp", out["imageUrl"])
				return
			}
			assert.Equal(t, tc.message, out["error"])
		})
	}
}

func TestHandler_DetailsHiddenInProduction(t *testing.T) {
	t.Parallel()
	upstream := &generation.UpstreamError{Kind: generation.ErrSubmission, StatusCode: 401, Body: "invalid token"}

	h := newHarness(t)
	h.gen.err = upstream
	h.subscribe("u1", epoch, 100)
	_, out := do(t, newTestHandler(h, false).Generate, http.MethodPost, `{"prompt":"x"}`, "u1")
	assert.Equal(t, "invalid token", out["details"])

	h = newHarness(t)
	h.gen.err = upstream
	h.subscribe("u1", epoch, 100)
	_, out = do(t, newTestHandler(h, true).Generate, http.MethodPost, `{"prompt":"x"}`, "u1")
	assert.NotContains(t, out, "details")
}

func TestHandler_Balance(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	handler := newTestHandler(h, false)

	rec, out := do(t, handler.Balance, http.MethodGet, "", "ghost")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, out["credits"])
	assert.Equal(t, false, out["subscriptionActive"])

	h.subscribe("u1", epoch, 750)
	rec, out = do(t, handler.Balance, http.MethodGet, "", "u1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 750, out["credits"])
	assert.Equal(t, true, out["subscriptionActive"])

	rec, _ = do(t, handler.Balance, http.MethodGet, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_Deduct(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.subscribe("u1", epoch, 60)
	handler := newTestHandler(h, false)

	rec, out := do(t, handler.Deduct, http.MethodPost, "", "u1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.EqualValues(t, 10, out["credits"])

	rec, out = do(t, handler.Deduct, http.MethodPost, "", "u1")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "Insufficient credits", out["error"])
}

func TestHandler_Webhook(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	handler := newTestHandler(h, false)
	payload := string(eventPayload(t, billing.PaymentEvent{
		ID: "evt_9", Type: "checkout.session.completed", Kind: billing.KindCheckoutCompleted, UserID: "u1",
	}))

	send := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(payload))
		if sig != "" {
			req.Header.Set("Stripe-Signature", sig)
		}
		rec := httptest.NewRecorder()
		handler.Webhook(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusBadRequest, send("").Code)
	assert.Equal(t, http.StatusBadRequest, send("forged").Code)

	rec := send("valid")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"received":true`)
	assert.Equal(t, billing.MonthlyAllotment, h.balance(t, "u1"))

	rec = send("valid")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"duplicate":true`)
	assert.Equal(t, billing.MonthlyAllotment, h.balance(t, "u1"))
}

func TestHandler_WebhookBodyLimits(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	handler := newTestHandler(h, false)

	event, err := json.Marshal(map[string]any{
		"ID": "evt_big", "Type": "checkout.session.completed", "Kind": billing.KindCheckoutCompleted, "UserID": "u1",
		"Padding": strings.Repeat("x", 80<<10),
	})
	require.NoError(t, err)
	require.Greater(t, len(event), 64<<10)

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(body))
		req.Header.Set("Stripe-Signature", "valid")
		rec := httptest.NewRecorder()
		handler.Webhook(rec, req)
		return rec
	}

	rec := send(string(event))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, billing.MonthlyAllotment, h.balance(t, "u1"))

	rec = send(strings.Repeat("x", (1<<20)+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = send("{not json")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to add credits")
}
