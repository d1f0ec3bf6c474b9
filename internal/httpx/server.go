package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ariefcatur/marketplace-checkout/internal/logging"
	metricsx "github.com/ariefcatur/marketplace-checkout/internal/metrics"
)

// Pinger is a dependency the health check asks before reporting ok.
type Pinger func(ctx context.Context) error

type RouterOptions struct {
	Log      *zap.Logger
	Metrics  *metricsx.ServerMetrics
	Gatherer prometheus.Gatherer
	Health   map[string]Pinger
}

func NewRouter(opts RouterOptions) *chi.Mux {
	log := logging.OrNop(opts.Log)
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(log), instrument(opts.Metrics), middleware.Recoverer)
	r.Use(middleware.Timeout(45 * time.Second))
	r.Use(traceIDs)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		failed := map[string]string{}
		for name, ping := range opts.Health {
			if err := ping(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failed": failed})
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metricsx.Handler(opts.Gatherer))
	}
	return r
}
