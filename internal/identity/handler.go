package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type ctxKey struct{}

// WithClaims stores verified claims in ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// ClaimsFrom returns the verified claims stored by the middleware.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok && c != nil
}

// UserID returns the authenticated user id of the request.
func UserID(r *http.Request) (string, bool) {
	c, ok := ClaimsFrom(r.Context())
	if !ok {
		return "", false
	}
	return c.Subject, c.Subject != ""
}

// Handler carries the auth middleware and the session endpoint.
type Handler struct {
	verifier   *Verifier
	cookieName string
	logger     *zap.SugaredLogger
}

func NewHandler(cfg Config, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	name := cfg.CookieName
	if name == "" {
		name = DefaultCookieName
	}
	return &Handler{verifier: NewVerifier(cfg), cookieName: name, logger: logger}
}

func (h *Handler) Verifier() *Verifier { return h.verifier }

// Require rejects requests without a valid bearer token or session cookie.
func (h *Handler) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := h.verifier.Verify(h.extractToken(r))
		if err != nil {
			h.logger.Debugw("unauthenticated request", "path", r.URL.Path, "err", err)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// Me returns the subset of claims the client needs to render the session.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	c, ok := ClaimsFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	out := map[string]any{
		"userId": c.Subject,
		"email":  c.Email,
		"role":   c.Role,
	}
	if c.ExpiresAt != nil {
		out["exp"] = c.ExpiresAt.Unix()
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth != "" && strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	if ck, err := r.Cookie(h.cookieName); err == nil {
		return ck.Value
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
