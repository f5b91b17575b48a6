package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Run lifecycle metrics
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtest_runs_total",
			Help: "Total number of backtest runs by terminal status",
		},
		[]string{"strategy", "status"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backtest_run_duration_seconds",
			Help:    "Wall-clock duration of backtest runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	// Optimization metrics
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtest_optimizer_generations_total",
			Help: "Total number of completed optimizer generations",
		},
		[]string{"strategy"},
	)

	bestFitness = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backtest_optimizer_best_fitness",
			Help: "Best fitness seen so far in the current optimization",
		},
		[]string{"strategy"},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtest_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(runDuration)
	prometheus.MustRegister(generationsTotal)
	prometheus.MustRegister(bestFitness)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler exposes the Prometheus metrics endpoint.
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler.
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordRun records a finished run with its terminal status.
func RecordRun(strategy, status string, elapsed time.Duration) {
	runsTotal.WithLabelValues(strategy, status).Inc()
	runDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// RecordGeneration records one completed optimizer generation.
func RecordGeneration(strategy string, best float64) {
	generationsTotal.WithLabelValues(strategy).Inc()
	bestFitness.WithLabelValues(strategy).Set(best)
}

// RecordError records an error metric.
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}
