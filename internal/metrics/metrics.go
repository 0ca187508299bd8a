// Package metrics provides Prometheus metrics for the background services.
// All recording methods are safe on a nil *Metrics so services can be built
// without a registry in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	BackupsTotal        *prometheus.CounterVec
	BackupBytes         prometheus.Gauge
	BackupsDeleted      prometheus.Counter
	CleanupItemsTotal   *prometheus.CounterVec
	CleanupDuration     prometheus.Histogram
	PresenceTransitions *prometheus.CounterVec
	TicketsAllocated    *prometheus.CounterVec
	CycleErrorsTotal    *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		BackupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orvale_backups_total",
				Help: "Backups attempted by type and result.",
			},
			[]string{"type", "result"},
		),
		BackupBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orvale_backup_last_size_bytes",
				Help: "Size of the most recent successful backup.",
			},
		),
		BackupsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orvale_backups_deleted_total",
				Help: "Backups removed by the retention policy.",
			},
		),
		CleanupItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orvale_cleanup_items_total",
				Help: "Rows affected by nightly cleanup, by step.",
			},
			[]string{"step"},
		),
		CleanupDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orvale_cleanup_duration_seconds",
				Help:    "Duration of a full nightly cleanup run.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		PresenceTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orvale_presence_transitions_total",
				Help: "Automatic presence changes by source and target status.",
			},
			[]string{"from", "to"},
		),
		TicketsAllocated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orvale_ticket_numbers_allocated_total",
				Help: "Ticket sequence numbers issued by team prefix.",
			},
			[]string{"prefix"},
		),
		CycleErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orvale_scheduler_cycle_errors_total",
				Help: "Scheduler cycles or steps that failed, by scheduler and step.",
			},
			[]string{"scheduler", "step"},
		),
		registry: reg,
	}

	reg.MustRegister(m.BackupsTotal)
	reg.MustRegister(m.BackupBytes)
	reg.MustRegister(m.BackupsDeleted)
	reg.MustRegister(m.CleanupItemsTotal)
	reg.MustRegister(m.CleanupDuration)
	reg.MustRegister(m.PresenceTransitions)
	reg.MustRegister(m.TicketsAllocated)
	reg.MustRegister(m.CycleErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordBackup counts a backup attempt; size is only used on success.
func (m *Metrics) RecordBackup(backupType, result string, size int64) {
	if m == nil {
		return
	}
	m.BackupsTotal.WithLabelValues(backupType, result).Inc()
	if result == "success" {
		m.BackupBytes.Set(float64(size))
	}
}

// RecordBackupsDeleted adds n retention deletions.
func (m *Metrics) RecordBackupsDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BackupsDeleted.Add(float64(n))
}

// RecordCleanupStep adds the rows affected by one cleanup step.
func (m *Metrics) RecordCleanupStep(step string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.CleanupItemsTotal.WithLabelValues(step).Add(float64(count))
}

// ObserveCleanup records the duration of a cleanup run.
func (m *Metrics) ObserveCleanup(seconds float64) {
	if m == nil {
		return
	}
	m.CleanupDuration.Observe(seconds)
}

// RecordPresenceTransition counts one automatic status change.
func (m *Metrics) RecordPresenceTransition(from, to string) {
	if m == nil {
		return
	}
	m.PresenceTransitions.WithLabelValues(from, to).Inc()
}

// RecordTicketAllocated counts one issued ticket number.
func (m *Metrics) RecordTicketAllocated(prefix string) {
	if m == nil {
		return
	}
	m.TicketsAllocated.WithLabelValues(prefix).Inc()
}

// RecordCycleError counts a failed scheduler cycle or step.
func (m *Metrics) RecordCycleError(scheduler, step string) {
	if m == nil {
		return
	}
	m.CycleErrorsTotal.WithLabelValues(scheduler, step).Inc()
}
