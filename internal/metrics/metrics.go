// Package metrics holds the Prometheus collectors of the pawject server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pawject"

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	turns           *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
	schedulerRuns   *prometheus.CounterVec
	agentsRunning   prometheus.Gauge
	agentRestarts   prometheus.Counter
	workerJobs      prometheus.Gauge
	workerPanics    prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpRequestTime *prometheus.HistogramVec
}

// MustNewMetrics registers every collector with reg (the default registerer
// when nil). Registering twice with the same registry panics, so tests pass a
// fresh prometheus.NewRegistry.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "turns_total",
			Help:      "Agent turns by mode and outcome.",
		}, []string{"mode", "outcome"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "turn_duration_seconds",
			Help:      "Wall time of agent turns.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"mode"}),
		schedulerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Scheduled turns by kind (periodic, progress).",
		}, []string{"kind"}),
		agentsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "project_agents_running",
			Help:      "Project agents currently in the registry.",
		}),
		agentRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "project_agent_restarts_total",
			Help:      "Project agents restarted after a heartbeat timeout or reap.",
		}),
		workerJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_active",
			Help:      "Background jobs currently running.",
		}),
		workerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "panics_total",
			Help:      "Background jobs that panicked.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpRequestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	collectors := []prometheus.Collector{
		m.turns, m.turnDuration, m.schedulerRuns, m.agentsRunning, m.agentRestarts,
		m.workerJobs, m.workerPanics, m.httpRequests, m.httpRequestTime,
	}
	for _, c := range collectors {
		reg.MustRegister(c)
	}
	return m
}

// ObserveTurn records one finished turn.
func (m *Metrics) ObserveTurn(mode string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.turns.WithLabelValues(mode, outcome).Inc()
	m.turnDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// IncSchedulerRun counts a scheduled turn of the given kind.
func (m *Metrics) IncSchedulerRun(kind string) {
	if m == nil {
		return
	}
	m.schedulerRuns.WithLabelValues(kind).Inc()
}

// SetAgentsRunning sets the number of live project agents.
func (m *Metrics) SetAgentsRunning(n int) {
	if m == nil {
		return
	}
	m.agentsRunning.Set(float64(n))
}

// IncAgentRestart counts an automatic project agent restart.
func (m *Metrics) IncAgentRestart() {
	if m == nil {
		return
	}
	m.agentRestarts.Inc()
}

// WorkerJobStarted and WorkerJobFinished track active background jobs.
func (m *Metrics) WorkerJobStarted() {
	if m == nil {
		return
	}
	m.workerJobs.Inc()
}

func (m *Metrics) WorkerJobFinished() {
	if m == nil {
		return
	}
	m.workerJobs.Dec()
}

// IncWorkerPanic counts a recovered panic in a background job.
func (m *Metrics) IncWorkerPanic() {
	if m == nil {
		return
	}
	m.workerPanics.Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, code).Inc()
	m.httpRequestTime.WithLabelValues(method, route).Observe(d.Seconds())
}
