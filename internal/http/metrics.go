package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "covenant_http_requests_total",
			Help: "Total de requests HTTP por ruta, método y status.",
		},
		[]string{"path", "method", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "covenant_http_request_duration_seconds",
			Help:    "Duración de requests HTTP.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "covenant_http_in_flight_requests",
			Help: "Requests HTTP en curso.",
		},
	)
)

// RegisterMetrics registra los collectors HTTP en el registry dado.
// Ignora AlreadyRegisteredError para que los tests puedan re-registrar.
func RegisterMetrics(reg prometheus.Registerer) {
	for _, c := range []prometheus.Collector{httpRequestsTotal, httpRequestDuration, httpInFlight} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}

func WithMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		path := normalizePath(r.URL.Path)
		status := http.StatusText(rec.status)
		if status == "" {
			status = "Unknown"
		}
		httpRequestsTotal.WithLabelValues(path, r.Method, status).Inc()
		httpRequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}

// normalizePath colapsa segmentos variables (vault, dominio, fingerprint)
// para mantener acotada la cardinalidad de labels.
func normalizePath(p string) string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	if len(segs) >= 2 && segs[0] == "v1" && segs[1] == "vaults" {
		if len(segs) >= 3 {
			segs[2] = "{vault}"
		}
		if len(segs) >= 4 {
			segs[3] = "{domain}"
		}
		if len(segs) >= 6 && segs[4] == "actions" {
			segs[5] = "{fingerprint}"
		}
	}
	return "/" + strings.Join(segs, "/")
}
