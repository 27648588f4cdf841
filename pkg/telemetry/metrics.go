package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Solve outcomes used as metric labels.
const (
	OutcomeConverged    = "converged"
	OutcomeNotConverged = "not_converged"
	OutcomeFailed       = "failed"
	OutcomeCancelled    = "cancelled"
)

// Metrics provides Prometheus metrics for parsing, solving and linting.
type Metrics struct {
	config MetricsConfig

	solves         *prometheus.CounterVec
	solveIters     *prometheus.HistogramVec
	solveDuration  *prometheus.HistogramVec
	residualNorm   *prometheus.HistogramVec
	parses         *prometheus.CounterVec
	entities       prometheus.Gauge
	lintViolations *prometheus.CounterVec
	storeOps       *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector. A disabled configuration
// yields a collector whose recording methods do nothing.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DurationBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		solves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "solves_total",
				Help:      "Total number of constraint resolutions",
			},
			[]string{"kind", "outcome"},
		),
		solveIters: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "solve_iterations",
				Help:      "Solver iterations per resolution",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"kind"},
		),
		solveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "solve_duration_seconds",
				Help:      "Duration of constraint resolution in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),
		residualNorm: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "residual_norm",
				Help:      "Final residual norm of each resolution",
				Buckets:   prometheus.ExponentialBuckets(1e-14, 100, 9),
			},
			[]string{"kind"},
		),
		parses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parse_total",
				Help:      "Total number of parsed sketch scripts",
			},
			[]string{"outcome"},
		),
		entities: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "entities",
				Help:      "Number of entities in the most recently processed sketch",
			},
		),
		lintViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lint_violations_total",
				Help:      "Total number of design-rule violations",
			},
			[]string{"severity"},
		),
		storeOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of revision store operations",
			},
			[]string{"operation", "status"},
		),
	}

	registry.MustRegister(
		m.solves,
		m.solveIters,
		m.solveDuration,
		m.residualNorm,
		m.parses,
		m.entities,
		m.lintViolations,
		m.storeOps,
	)

	return m, nil
}

// RecordSolve records one constraint resolution.
func (m *Metrics) RecordSolve(kind, outcome string, iterations int, residual float64, duration time.Duration) {
	if m.solves == nil {
		return
	}
	m.solves.WithLabelValues(kind, outcome).Inc()
	m.solveIters.WithLabelValues(kind).Observe(float64(iterations))
	m.solveDuration.WithLabelValues(kind).Observe(duration.Seconds())
	m.residualNorm.WithLabelValues(kind).Observe(residual)
}

// RecordParse records a parse attempt.
func (m *Metrics) RecordParse(err error) {
	if m.parses == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.parses.WithLabelValues(outcome).Inc()
}

// SetEntityCount sets the entity gauge.
func (m *Metrics) SetEntityCount(n int) {
	if m.entities == nil {
		return
	}
	m.entities.Set(float64(n))
}

// RecordLintViolation records a design-rule violation.
func (m *Metrics) RecordLintViolation(severity string) {
	if m.lintViolations == nil {
		return
	}
	m.lintViolations.WithLabelValues(severity).Inc()
}

// RecordStoreOperation records a revision store call.
func (m *Metrics) RecordStoreOperation(operation string, err error) {
	if m.storeOps == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.storeOps.WithLabelValues(operation, status).Inc()
}

// Registry returns the metrics registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer exposes the metrics on their own listener. It is used
// by long-running commands that do not start the HTTP service.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("addr", m.config.ListenAddress).Msg("Metrics server stopped")
		}
	}()

	return nil
}
