package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/covenant/internal/rate"
)

// RouterOptions agrupa todo lo que el router necesita del main: el handler ya
// armado, el pinger de readiness, y los knobs de middleware.
type RouterOptions struct {
	Handler *Handler
	Pinger  interface {
		Ping(ctx context.Context) error
	}
	Registry       *prometheus.Registry
	AllowedOrigins []string
	Limiter        rate.Limiter
}

// NewRouter arma el árbol de rutas con el stack de middleware completo:
// request-id -> recover -> security headers -> CORS -> metrics -> logging ->
// rate limit.
func NewRouter(opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	h := opts.Handler

	r.Get("/healthz", h.Healthz)
	if opts.Pinger != nil {
		r.Get("/readyz", h.Readyz(opts.Pinger))
	}
	if opts.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1/vaults/{vault}/{domain}", func(r chi.Router) {
		r.Post("/actions", h.Propose)
		r.Get("/actions", h.List)
		r.Get("/actions/{fingerprint}", h.Get)
		r.Post("/actions/{fingerprint}/approvals", h.Approve)
		r.Post("/verify", h.Verify)
		r.Post("/execute", h.Execute)
	})

	var handler http.Handler = r
	handler = WithRateLimit(handler, opts.Limiter)
	handler = WithLogging(handler)
	handler = WithMetrics(handler)
	handler = WithCORS(handler, opts.AllowedOrigins)
	handler = WithSecurityHeaders(handler)
	handler = WithRecover(handler)
	handler = WithRequestID(handler)
	return handler
}
