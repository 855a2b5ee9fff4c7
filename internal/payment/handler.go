package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/identity"
)

type Handler struct {
	checkout *Checkout
	logger   *zap.SugaredLogger
}

func NewHandler(checkout *Checkout, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{checkout: checkout, logger: logger}
}

type CheckoutResponse struct {
	URL string `json:"url"`
}

// CreateCheckoutSession handles POST /api/stripe/create-checkout-session.
func (h *Handler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := identity.ClaimsFrom(r.Context())
	if !ok || claims.Subject == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	email := claims.Email
	if email == "" {
		email = strings.TrimSpace(r.Header.Get("user-email"))
	}

	url, err := h.checkout.CreateSession(r.Context(), claims.Subject, email)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			h.logger.Errorw("checkout requested without stripe configuration", "user_id", claims.Subject)
		} else {
			h.logger.Errorw("create checkout session failed", "user_id", claims.Subject, "err", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create checkout session"})
		return
	}
	h.logger.Infow("checkout session created", "user_id", claims.Subject)
	writeJSON(w, http.StatusOK, CheckoutResponse{URL: url})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
