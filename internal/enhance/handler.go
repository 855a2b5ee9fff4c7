package enhance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/billing"
)

// Enhancer is implemented by Client.
type Enhancer interface {
	Enhance(ctx context.Context, prompt string) (string, error)
}

type Handler struct {
	enhancer   Enhancer
	logger     *zap.SugaredLogger
	production bool
}

func NewHandler(enhancer Enhancer, logger *zap.SugaredLogger, production bool) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{enhancer: enhancer, logger: logger, production: production}
}

type Request struct {
	Prompt string `json:"prompt"`
}

type Response struct {
	EnhancedPrompt string `json:"enhancedPrompt"`
}

// EnhancePrompt handles POST /api/enhance-prompt.
func (h *Handler) EnhancePrompt(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing or invalid prompt"})
		return
	}
	prompt, err := billing.ValidatePrompt(req.Prompt)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing or invalid prompt"})
		return
	}

	out, err := h.enhancer.Enhance(r.Context(), prompt)
	if err != nil {
		body := map[string]string{"error": "Failed to enhance prompt"}
		var ue *UpstreamError
		switch {
		case errors.Is(err, ErrNotConfigured):
			body["error"] = "Missing OpenAI API key"
		case errors.As(err, &ue) && !h.production:
			body["details"] = ue.Body
		}
		h.logger.Warnw("prompt enhancement failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, body)
		return
	}
	writeJSON(w, http.StatusOK, Response{EnhancedPrompt: out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
