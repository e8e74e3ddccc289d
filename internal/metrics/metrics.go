package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "qmsgov"

// Metrics records governance engine activity. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	changesTracked     *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
	workflowsStarted   *prometheus.CounterVec
	approvalDecisions  *prometheus.CounterVec
	approvalsEscalated prometheus.Counter
	bypasses           prometheus.Counter
	propagationRuns    *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	sweepDuration      prometheus.Histogram
	pendingApprovals   prometheus.Gauge
	propagationQueue   prometheus.Gauge
}

// New creates metrics registered on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		changesTracked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_tracked_total",
			Help:      "Change events recorded, by entity type and impact level",
		}, []string{"entity_type", "impact_level"}),
		sideEffectFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Best-effort stages that failed after a change was recorded",
		}, []string{"stage"}),
		workflowsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_started_total",
			Help:      "Approval processes started, by result (instantiated, auto_approved, no_workflow)",
		}, []string{"result"}),
		approvalDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_decisions_total",
			Help:      "Approval decisions processed, by decision",
		}, []string{"decision"}),
		approvalsEscalated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_escalated_total",
			Help:      "Overdue approvals escalated by the sweeper",
		}),
		bypasses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emergency_bypasses_total",
			Help:      "Workflows resolved by emergency bypass",
		}),
		propagationRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "propagation_runs_total",
			Help:      "Propagation runs, by resulting status",
		}, []string{"status"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification requests emitted, by kind and result",
		}, []string{"kind", "result"}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of overdue approval sweeps",
			Buckets:   prometheus.DefBuckets,
		}),
		pendingApprovals: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overdue_approvals_last_sweep",
			Help:      "Overdue approvals found by the last sweep",
		}),
		propagationQueue: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "propagation_queue_length",
			Help:      "Change events waiting for propagation",
		}),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler serving the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ChangeTracked counts a recorded change event
func (m *Metrics) ChangeTracked(entityType, impact string) {
	if m == nil {
		return
	}
	m.changesTracked.WithLabelValues(entityType, impact).Inc()
}

// SideEffectFailed counts a failed best-effort stage
func (m *Metrics) SideEffectFailed(stage string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(stage).Inc()
}

// WorkflowStarted counts an approval process start
func (m *Metrics) WorkflowStarted(result string) {
	if m == nil {
		return
	}
	m.workflowsStarted.WithLabelValues(result).Inc()
}

// ApprovalDecided counts a processed decision
func (m *Metrics) ApprovalDecided(decision string) {
	if m == nil {
		return
	}
	m.approvalDecisions.WithLabelValues(decision).Inc()
}

// Escalated counts escalated approvals
func (m *Metrics) Escalated(n int) {
	if m == nil {
		return
	}
	m.approvalsEscalated.Add(float64(n))
}

// Bypassed counts an emergency bypass
func (m *Metrics) Bypassed() {
	if m == nil {
		return
	}
	m.bypasses.Inc()
}

// PropagationRun counts a propagation run by resulting status
func (m *Metrics) PropagationRun(status string) {
	if m == nil {
		return
	}
	m.propagationRuns.WithLabelValues(status).Inc()
}

// Notification counts an emitted notification request
func (m *Metrics) Notification(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

// Sweep records one overdue sweep
func (m *Metrics) Sweep(d time.Duration, overdue int) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
	m.pendingApprovals.Set(float64(overdue))
}

// PropagationQueue sets the propagation queue length
func (m *Metrics) PropagationQueue(n int) {
	if m == nil {
		return
	}
	m.propagationQueue.Set(float64(n))
}
