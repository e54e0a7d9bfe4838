package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/seatshare/pkg/logger"
)

// Check reports whether a dependency is usable.
type Check func(context.Context) error

const checkTimeout = 2 * time.Second

// HealthCheckHandler serves liveness when no checks are given and readiness otherwise.
// Liveness always answers 200 ALIVE. Readiness answers 200 READY when every
// check passes and 503 NOT_READY on the first failure.
func HealthCheckHandler(log *slog.Logger, checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(checks) == 0 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ALIVE"))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()
		for _, check := range checks {
			if err := check(ctx); err != nil {
				log.WarnContext(ctx, "readiness check failed", logger.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("NOT_READY"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}

// Handler mounts /metrics, /livez and /readyz on a chi router. Unknown paths
// and methods get chi's 404 and 405 responses.
func Handler(gatherer prometheus.Gatherer, log *slog.Logger, checks ...Check) chi.Router {
	if log == nil {
		log = slog.Default()
	}
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/livez", HealthCheckHandler(log))
	r.Get("/readyz", HealthCheckHandler(log, checks...))
	return r
}
