package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// RouterConfig configures the HTTP router.
type RouterConfig struct {
	// Handler carries the extension-facing endpoints. Required.
	Handler *Handler

	// WebhookHandler is mounted at POST /webhook. Optional.
	WebhookHandler http.Handler

	// MetricsHandler is mounted at GET /metrics. Optional.
	MetricsHandler http.Handler

	// AllowedOrigins for CORS. Empty allows the extension's wildcard
	// origin set.
	AllowedOrigins []string

	// RequestLogger logs one line per request. Optional.
	RequestLogger *zerolog.Logger

	// RequestTimeout bounds in-flight requests. Default 60s.
	RequestTimeout time.Duration
}

// NewRouter builds the chi router with the full endpoint surface.
func NewRouter(config RouterConfig) chi.Router {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	origins := config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"chrome-extension://*", "moz-extension://*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	if config.RequestLogger != nil {
		r.Use(requestLogger(config.RequestLogger))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Stripe-Signature"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if config.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", config.MetricsHandler)
	}

	h := config.Handler
	r.Post("/create-checkout-session", h.CreateCheckoutSession)
	r.Get("/payment-success", h.PaymentSuccess)
	r.Get("/check-subscription/{uniqueUserId}", h.CheckSubscription)
	r.Post("/create-customer-portal-session", h.CreatePortalSession)
	r.Post("/auth/sign-in", h.SignIn)

	if config.WebhookHandler != nil {
		r.Method(http.MethodPost, "/webhook", config.WebhookHandler)
	}

	return r
}

// requestLogger emits one structured line per completed request.
func requestLogger(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request completed")
		})
	}
}
