package billing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/generation"
)

const (
	maxBodyBytes = 64 << 10
	// webhookBodyLimit bounds payment notifications; invoices with many
	// line items exceed maxBodyBytes.
	webhookBodyLimit = 1 << 20
)

// UserIDFunc extracts the authenticated user id from a request.
type UserIDFunc func(r *http.Request) (string, bool)

// Handler exposes the metered endpoints and the payment webhook.
type Handler struct {
	svc        *Service
	payments   *PaymentProcessor
	userID     UserIDFunc
	logger     *zap.SugaredLogger
	production bool
}

func NewHandler(svc *Service, payments *PaymentProcessor, userID UserIDFunc, logger *zap.SugaredLogger, production bool) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, payments: payments, userID: userID, logger: logger, production: production}
}

type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

type GenerateResponse struct {
	ImageURL string `json:"imageUrl"`
}

type DeductResponse struct {
	Success bool  `json:"success"`
	Credits int64 `json:"credits"`
}

// Generate handles POST /api/generate-thumbnail.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req GenerateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Debugw("invalid generate payload", "user_id", uid, "err", err)
		h.writeError(w, http.StatusBadRequest, "Missing or invalid prompt", "")
		return
	}
	res, err := h.svc.Generate(r.Context(), uid, req.Prompt)
	if err != nil {
		h.fail(w, uid, err)
		return
	}
	h.writeJSON(w, http.StatusOK, GenerateResponse{ImageURL: res.ImageURL})
}

// Balance handles GET /api/user-credits.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	view, err := h.svc.Balance(r.Context(), uid)
	if err != nil {
		h.fail(w, uid, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// Deduct handles POST /api/deduct-credits.
func (h *Handler) Deduct(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	remaining, err := h.svc.Deduct(r.Context(), uid)
	if err != nil {
		h.fail(w, uid, err)
		return
	}
	h.writeJSON(w, http.StatusOK, DeductResponse{Success: true, Credits: remaining})
}

// Webhook handles POST /api/stripe/webhook. The body is read raw since the
// signature covers the exact bytes.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, webhookBodyLimit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warnw("webhook payload too large", "limit", tooLarge.Limit)
			h.writeError(w, http.StatusRequestEntityTooLarge, "Payload too large", "")
			return
		}
		h.writeError(w, http.StatusBadRequest, "Invalid payload", "")
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		h.writeError(w, http.StatusBadRequest, "Missing signature", "")
		return
	}
	ack, err := h.payments.HandleEvent(r.Context(), payload, sig)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSignature):
			h.logger.Warnw("webhook signature verification failed", "err", err)
			h.writeError(w, http.StatusBadRequest, "Webhook signature verification failed", "")
		case errors.Is(err, ErrMissingCorrelation):
			h.writeError(w, http.StatusBadRequest, "No userId found", "")
		default:
			h.logger.Errorw("webhook processing failed", "err", err)
			h.writeError(w, http.StatusInternalServerError, "Failed to add credits", "")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, ack)
}

// fail maps the error taxonomy onto HTTP responses.
func (h *Handler) fail(w http.ResponseWriter, uid string, err error) {
	kind := Classify(err)
	switch {
	case errors.Is(err, ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, "Missing or invalid prompt", "")
	case errors.Is(err, ErrUnauthorized):
		h.writeError(w, http.StatusUnauthorized, "Unauthorized", "")
	case errors.Is(err, ErrNoSubscription):
		h.writeError(w, http.StatusPaymentRequired, "No active subscription", "")
	case errors.Is(err, ErrInsufficientCredits):
		h.writeError(w, http.StatusPaymentRequired, "Insufficient credits", "")
	case errors.Is(err, generation.ErrSubmission):
		h.logger.Warnw("prediction submission failed", "user_id", uid, "kind", kind, "err", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to start prediction", generation.Details(err))
	case errors.Is(err, generation.ErrPoll):
		h.logger.Warnw("prediction poll failed", "user_id", uid, "kind", kind, "err", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to poll prediction", generation.Details(err))
	case errors.Is(err, generation.ErrTimeoutOrFailure):
		h.writeError(w, http.StatusInternalServerError, "Thumbnail generation failed or timed out.", "")
	default:
		h.logger.Errorw("request failed", "user_id", uid, "kind", kind, "err", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg, details string) {
	body := map[string]string{"error": msg}
	if details != "" && !h.production {
		body["details"] = details
	}
	h.writeJSON(w, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
