// Package adminhttp is the operator-facing admin surface: metrics and health only.
// It is not the subscriber-facing frontend described in spec.md §1, which is an
// external collaborator outside this repo's scope.
package adminhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hut8/soar/internal/monitoring"
)

// New builds the admin mux: /healthz always, /metrics when enabled.
func New(metricsEnabled bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(metricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metricsEnabled {
		r.Handle("/metrics", monitoring.PrometheusHandler())
	}
	return r
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.status = code
	rr.ResponseWriter.WriteHeader(code)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rr, r)

		dur := time.Since(start).Seconds()
		monitoring.HTTPDuration.WithLabelValues(r.Method, r.URL.Path).Observe(dur)
		monitoring.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, http.StatusText(rr.status)).Inc()
	})
}
