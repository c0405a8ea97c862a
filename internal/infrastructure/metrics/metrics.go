package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"IncidentScanner/internal/domain"
	"IncidentScanner/internal/ports"
)

// Recorder exports pipeline run outcomes as Prometheus collectors.
type Recorder struct {
	runs        *prometheus.CounterVec
	runDuration prometheus.Summary
	items       *prometheus.CounterVec
	lastSuccess prometheus.Gauge
}

var _ ports.RunRecorder = (*Recorder)(nil)

// NewRecorder registers collectors on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_scanner",
			Name:      "runs_total",
			Help:      "Pipeline invocations by outcome",
		}, []string{"outcome"}),
		runDuration: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace: "incident_scanner",
			Name:      "run_duration_seconds",
			Help:      "Time spent in one pipeline invocation",
		}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_scanner",
			Name:      "items_total",
			Help:      "Pipeline items by stage result",
		}, []string{"result"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "incident_scanner",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last successful invocation",
		}),
	}
	reg.MustRegister(r.runs, r.runDuration, r.items, r.lastSuccess)
	return r
}

// ObserveRun records one invocation.
func (r *Recorder) ObserveRun(summary domain.RunSummary, duration time.Duration, failed bool) {
	r.runDuration.Observe(duration.Seconds())
	if failed {
		r.runs.WithLabelValues("failed").Inc()
	} else {
		r.runs.WithLabelValues("succeeded").Inc()
		r.lastSuccess.SetToCurrentTime()
	}

	r.items.WithLabelValues("candidate").Add(float64(summary.Candidates))
	r.items.WithLabelValues("extraction_dropped").Add(float64(summary.ExtractionDropped))
	r.items.WithLabelValues("duplicate").Add(float64(summary.Duplicates))
	r.items.WithLabelValues("inserted").Add(float64(summary.Inserted))
	r.items.WithLabelValues("skipped_duplicate_url").Add(float64(summary.SkippedDuplicateURL))
	r.items.WithLabelValues("persist_failed").Add(float64(summary.PersistFailures))
	r.items.WithLabelValues("notified").Add(float64(summary.Notified))
	r.items.WithLabelValues("send_failed").Add(float64(summary.FailedSends))
	r.items.WithLabelValues("source_failed").Add(float64(len(summary.FailedSources)))
}
