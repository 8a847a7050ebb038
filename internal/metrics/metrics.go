// Package metrics collects Prometheus metrics for a run and can write them
// to a node-exporter textfile.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/perbu/promptrun/internal/llm"
)

// Task results
const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
	ResultInvalid   = "invalid"
)

// Recorder holds the collectors for one process
type Recorder struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	tasks           *prometheus.CounterVec
	inflight        prometheus.Gauge
	ledgerFlushes   *prometheus.CounterVec
	runDuration     prometheus.Gauge
	lastRun         prometheus.Gauge
}

// New creates a Recorder backed by its own registry
func New() *Recorder {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers the collectors on reg. Collectors that are
// already registered are reused.
func NewWithRegistry(reg *prometheus.Registry) *Recorder {
	r := &Recorder{registry: reg}

	r.attempts = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "promptrun_attempts_total", Help: "Service attempts by target and outcome."},
		[]string{"target", "outcome"},
	))
	r.attemptDuration = register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptrun_attempt_duration_seconds",
			Help:    "Duration of service attempts in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 900},
		},
		[]string{"target"},
	))
	r.tasks = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "promptrun_tasks_total", Help: "Tasks by final result."},
		[]string{"result"},
	))
	r.inflight = register(reg, prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "promptrun_tasks_in_flight", Help: "Tasks currently being processed by a worker."},
	))
	r.ledgerFlushes = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "promptrun_ledger_flushes_total", Help: "Ledger batch writes by status."},
		[]string{"status"},
	))
	r.runDuration = register(reg, prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "promptrun_run_duration_seconds", Help: "Duration of the last run in seconds."},
	))
	r.lastRun = register(reg, prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "promptrun_last_run_timestamp_seconds", Help: "Unix time the last run finished."},
	))

	return r
}

func register[C prometheus.Collector](reg *prometheus.Registry, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(fmt.Sprintf("failed to register collector: %v", err))
	}
	return c
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveAttempt records one service attempt
func (r *Recorder) ObserveAttempt(out llm.Outcome) {
	r.attempts.WithLabelValues(out.Target, out.Kind.String()).Inc()
	r.attemptDuration.WithLabelValues(out.Target).Observe(out.Elapsed.Seconds())
}

// TaskStarted and TaskDone track in-flight work
func (r *Recorder) TaskStarted() { r.inflight.Inc() }
func (r *Recorder) TaskDone()    { r.inflight.Dec() }

// TaskResult counts n tasks with the given result
func (r *Recorder) TaskResult(result string, n int) {
	r.tasks.WithLabelValues(result).Add(float64(n))
}

// ObserveFlush records a ledger batch write
func (r *Recorder) ObserveFlush(_ int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.ledgerFlushes.WithLabelValues(status).Inc()
}

// RunFinished records the duration and end time of a run
func (r *Recorder) RunFinished(seconds float64, endUnix int64) {
	r.runDuration.Set(seconds)
	r.lastRun.Set(float64(endUnix))
}

// WriteTextfile writes all metrics in text exposition format to path
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
