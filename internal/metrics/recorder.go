// Package metrics records solver and strategy activity as Prometheus metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aristath/aidalloc/internal/domain"
)

const namespace = "aidalloc"

// Recorder collects run metrics on its own registry. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	solves        *prometheus.CounterVec
	solveDuration prometheus.Histogram
	solveNodes    prometheus.Histogram
	lpSolves      prometheus.Counter

	strategyRuns      *prometheus.CounterVec
	strategyAllocated *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with every metric registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "solves_total",
			Help:      "Discrete optimization solves by final status.",
		}, []string{"status"}),
		solveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "solve_duration_seconds",
			Help:      "Wall time of one branch-and-bound solve.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 9),
		}),
		solveNodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "nodes",
			Help:      "Branch-and-bound nodes explored per solve.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 9),
		}),
		lpSolves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "lp_solves_total",
			Help:      "Simplex relaxations solved.",
		}),
		strategyRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "runs_total",
			Help:      "Continuous strategy runs by strategy and status.",
		}, []string{"strategy", "status"}),
		strategyAllocated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "allocated_dollars",
			Help:      "Amount allocated by the latest run of each strategy.",
		}, []string{"strategy"}),
	}
	r.registry.MustRegister(
		r.solves,
		r.solveDuration,
		r.solveNodes,
		r.lpSolves,
		r.strategyRuns,
		r.strategyAllocated,
	)
	return r
}

// Registry returns the registry holding the recorder's metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveSolve records one discrete solve.
func (r *Recorder) ObserveSolve(status domain.Status, nodes, lpSolves int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.solves.WithLabelValues(string(status)).Inc()
	r.solveDuration.Observe(elapsed.Seconds())
	r.solveNodes.Observe(float64(nodes))
	r.lpSolves.Add(float64(lpSolves))
}

// ObserveStrategy records one continuous strategy run.
func (r *Recorder) ObserveStrategy(strategy string, status domain.Status, allocated float64) {
	if r == nil {
		return
	}
	r.strategyRuns.WithLabelValues(strategy, string(status)).Inc()
	r.strategyAllocated.WithLabelValues(strategy).Set(allocated)
}

// WriteFile writes the current metrics in the Prometheus text format, for
// pickup by a node exporter textfile collector.
func (r *Recorder) WriteFile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
