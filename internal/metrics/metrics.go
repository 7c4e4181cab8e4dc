package metrics

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts finished training runs by terminal status.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telemetry_trainer",
		Name:      "runs_total",
		Help:      "Training runs by terminal status.",
	}, []string{"status"})

	// KeysFetched counts partition keys handed to the trainer.
	KeysFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "telemetry_trainer",
		Name:      "keys_fetched_total",
		Help:      "Object keys fetched from partition listings.",
	})

	// ListRetries counts listing attempts beyond the first.
	ListRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "telemetry_trainer",
		Name:      "list_retries_total",
		Help:      "Partition listing retries.",
	})

	// RunDuration observes end-to-end run duration.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "telemetry_trainer",
		Name:      "run_duration_seconds",
		Help:      "End-to-end training run duration.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

// NewOpsServer returns the operational HTTP server exposing /metrics and
// /healthz on its own port, separate from the admin API.
func NewOpsServer(port string) *http.Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
