package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/billing"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/enhance"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/identity"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/payment"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/user"
)

const RequestIDHeader = "X-Request-ID"

// statusRecorder captures status and size for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.size += n
	return n, err
}

func (sr *statusRecorder) code() int {
	if sr.status == 0 {
		return http.StatusOK
	}
	return sr.status
}

// RequestIDMiddleware propagates X-Request-ID, minting a ksuid when absent.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 64 {
				id = ksuid.New().String()
				r.Header.Set(RequestIDHeader, id)
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs each request and records the HTTP metrics under the
// matched route pattern.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(sr, r)
			dur := time.Since(start)

			// set by ServeMux once the request is routed
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			status := sr.code()
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(route).Observe(dur.Seconds())

			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"remote", r.RemoteAddr,
				"request_id", r.Header.Get(RequestIDHeader),
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", sr.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Handlers groups the endpoint handlers mounted by RegisterRoutes.
type Handlers struct {
	Identity *identity.Handler
	Billing  *billing.Handler
	Payment  *payment.Handler
	Enhance  *enhance.Handler
	User     *user.Handler
	// Metrics overrides the /metrics handler; nil uses the default registry.
	Metrics http.Handler
}

// RegisterRoutes mounts HTTP handlers on an http.ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, h Handlers) http.Handler {
	mux := http.NewServeMux()
	auth := h.Identity.Require

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsHandler := h.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	mux.Handle("GET /metrics", metricsHandler)

	// session
	mux.Handle("GET /api/me", auth(http.HandlerFunc(h.Identity.Me)))

	// ledger
	mux.Handle("POST /api/generate-thumbnail", auth(http.HandlerFunc(h.Billing.Generate)))
	mux.Handle("GET /api/user-credits", auth(http.HandlerFunc(h.Billing.Balance)))
	mux.Handle("POST /api/deduct-credits", auth(http.HandlerFunc(h.Billing.Deduct)))
	mux.Handle("POST /api/enhance-prompt", auth(http.HandlerFunc(h.Enhance.EnhancePrompt)))

	// payments; the webhook authenticates by signature
	mux.Handle("POST /api/stripe/create-checkout-session", auth(http.HandlerFunc(h.Payment.CreateCheckoutSession)))
	mux.HandleFunc("POST /api/stripe/webhook", h.Billing.Webhook)

	// provisioning hook, key checked by the handler
	mux.HandleFunc("POST /api/user-created", h.User.UserCreated)

	return RequestIDMiddleware()(LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux)))
}
