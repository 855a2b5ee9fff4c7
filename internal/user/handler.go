package user

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// Handler exposes the provisioning hook called by the identity provider.
type Handler struct {
	svc     *UserService
	hasher  KeyHasher
	keyHash string
	logger  *zap.SugaredLogger
}

func NewHandler(svc *UserService, cfg Config, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, hasher: BcryptHasher{}, keyHash: cfg.APIKeyHash, logger: logger}
}

// UserCreatedRequest request body for the provisioning hook.
type UserCreatedRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// UserCreatedResponse reports whether the call created the user.
type UserCreatedResponse struct {
	UserID  string `json:"userId"`
	Created bool   `json:"created"`
}

// UserCreated handles POST /api/user-created.
func (h *Handler) UserCreated(w http.ResponseWriter, r *http.Request) {
	if !h.hasher.Verify(h.keyHash, r.Header.Get("X-API-Key")) {
		h.logger.Warnw("provisioning rejected", "remote", r.RemoteAddr)
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	var req UserCreatedRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 16<<10)).Decode(&req); err != nil {
		h.logger.Debugw("invalid provisioning payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	created, err := h.svc.Provision(r.Context(), req.UserID, req.Email)
	if err != nil {
		if errors.Is(err, ErrInvalidUser) {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing userId"})
			return
		}
		h.logger.Errorw("provisioning failed", "user_id", req.UserID, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to initialize user"})
		return
	}
	h.writeJSON(w, http.StatusOK, UserCreatedResponse{UserID: req.UserID, Created: created})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
