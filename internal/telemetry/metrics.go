package telemetry

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"adi/internal/logging"
)

// Metrics holds the engine's collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs         *prometheus.CounterVec
	chunks       prometheus.Counter
	writes       *prometheus.CounterVec
	bytesWritten *prometheus.CounterVec
	runDuration  prometheus.Histogram
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adi_runs_total",
			Help: "Transformation runs by final status.",
		}, []string{"status"}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adi_chunks_transformed_total",
			Help: "Parameter chunks passed through a transform function.",
		}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adi_storage_writes_total",
			Help: "Completed writes to storage by variant.",
		}, []string{"variant"}),
		bytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adi_storage_bytes_written_total",
			Help: "Encoded bytes handed to storage by variant.",
		}, []string{"variant"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "adi_run_duration_seconds",
			Help:    "Wall time of transformation runs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
	reg.MustRegister(m.runs, m.chunks, m.writes, m.bytesWritten, m.runDuration)
	return m
}

func (m *Metrics) RunFinished(err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) ChunkTransformed() {
	if m == nil {
		return
	}
	m.chunks.Inc()
}

func (m *Metrics) BytesWritten(variant string, n int) {
	if m == nil {
		return
	}
	m.bytesWritten.WithLabelValues(variant).Add(float64(n))
}

func (m *Metrics) WriteCompleted(variant string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(variant).Inc()
}

// Expose serves g on :port/metrics in the background. The returned server
// is shut down by the caller.
func Expose(port int, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("metrics: serve", "port", port, "err", err)
		}
	}()
	return srv
}
