package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики pipeline.
//
// Все методы безопасны для nil: компоненты без метрик
// (CLI, тесты) просто передают nil.
type Metrics struct {
	runsTotal    *prometheus.CounterVec
	jobsTotal    *prometheus.CounterVec
	stepsTotal   *prometheus.CounterVec
	stepDuration prometheus.Histogram
	activeJobs   prometheus.Gauge
	eventsTotal  *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg.
// Для глобального /metrics передаётся prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_runs_total",
			Help: "Finished runs by verdict",
		}, []string{"status"}),
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_jobs_total",
			Help: "Finished jobs by terminal status",
		}, []string{"status"}),
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_steps_total",
			Help: "Executed steps by status",
		}, []string{"status"}),
		stepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "conveyor_step_duration_seconds",
			Help:    "Step execution time",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
		activeJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "conveyor_active_jobs",
			Help: "Jobs currently executing",
		}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_events_total",
			Help: "Received events by kind and decision",
		}, []string{"kind", "accepted"}),
	}
}

// RunFinished учитывает завершённый run.
func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
}

// JobStarted увеличивает число активных jobs.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.activeJobs.Inc()
}

// JobFinished учитывает завершённый job.
func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.activeJobs.Dec()
	m.jobsTotal.WithLabelValues(status).Inc()
}

// JobSkipped учитывает job, который так и не стартовал.
func (m *Metrics) JobSkipped(status string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(status).Inc()
}

// StepFinished учитывает выполненный шаг.
func (m *Metrics) StepFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(status).Inc()
	m.stepDuration.Observe(d.Seconds())
}

// EventReceived учитывает входящее событие.
func (m *Metrics) EventReceived(kind string, accepted bool) {
	if m == nil {
		return
	}
	label := "false"
	if accepted {
		label = "true"
	}
	m.eventsTotal.WithLabelValues(kind, label).Inc()
}
