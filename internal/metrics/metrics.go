// Package metrics exposes automation counters in the Prometheus text format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tidy-go/internal/scheduler"
	"tidy-go/internal/tidy"
)

const namespace = "tidy"

// Metrics collects scheduler activity and the latest record counts.
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal           *prometheus.CounterVec
	ScanDuration         prometheus.Histogram
	TriggersSkipped      *prometheus.CounterVec
	NotificationsTotal   *prometheus.CounterVec
	FilesOrganizedTotal  prometheus.Counter
	AutomationIssues     *prometheus.CounterVec
	Records              *prometheus.GaugeVec
	OldestPendingAgeDays prometheus.Gauge
	LastSuccess          prometheus.Gauge
}

var _ scheduler.Observer = (*Metrics)(nil)

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ScansTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scans run by the scheduler, by trigger and result.",
		}, []string{"trigger", "result"}),
		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of scans in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		TriggersSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_skipped_total",
			Help:      "Triggers that did not start a scan, by reason.",
		}, []string{"reason"}),
		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications delivered, by identifier.",
		}, []string{"id"}),
		FilesOrganizedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_organized_total",
			Help:      "Files moved by automation.",
		}),
		AutomationIssues: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automation_errors_total",
			Help:      "Automation errors, by kind.",
		}, []string{"kind"}),
		Records: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records after the last successful scan, by status.",
		}, []string{"status"}),
		OldestPendingAgeDays: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "oldest_pending_age_days",
			Help:      "Age of the oldest pending file in days.",
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful scan.",
		}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) TriggerSkipped(trigger tidy.Trigger, reason string) {
	m.TriggersSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ScanFinished(trigger tidy.Trigger, report *scheduler.RunReport, err error, elapsed time.Duration) {
	m.ScanDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.ScansTotal.WithLabelValues(string(trigger), "error").Inc()
		m.AutomationIssues.WithLabelValues(string(tidy.KindOf(err))).Inc()
		return
	}
	m.ScansTotal.WithLabelValues(string(trigger), "success").Inc()
	m.LastSuccess.SetToCurrentTime()
	if report == nil {
		return
	}

	m.FilesOrganizedTotal.Add(float64(report.Organized))
	for _, issue := range report.Issues {
		m.AutomationIssues.WithLabelValues(string(issue.Kind)).Inc()
	}
	m.SetRecordMetrics(report.Metrics)
}

func (m *Metrics) NotificationSent(n tidy.Notification) {
	m.NotificationsTotal.WithLabelValues(n.Identifier).Inc()
}

// SetRecordMetrics publishes a metrics snapshot.
func (m *Metrics) SetRecordMetrics(am tidy.AutomationMetrics) {
	m.Records.WithLabelValues(string(tidy.StatusPending)).Set(float64(am.Pending))
	m.Records.WithLabelValues(string(tidy.StatusReady)).Set(float64(am.Ready))
	m.Records.WithLabelValues(string(tidy.StatusOrganized)).Set(float64(am.Organized))
	m.Records.WithLabelValues(string(tidy.StatusSkipped)).Set(float64(am.Skipped))
	if am.OldestPendingAgeDays != nil {
		m.OldestPendingAgeDays.Set(float64(*am.OldestPendingAgeDays))
	} else {
		m.OldestPendingAgeDays.Set(0)
	}
}

// WriteToTextfile writes the current values for a node_exporter textfile
// collector. The file is replaced atomically.
func (m *Metrics) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
