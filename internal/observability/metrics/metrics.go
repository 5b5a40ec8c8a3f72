package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agency"

// IntakeMetrics exposes counters/histograms for the lead intake flow.
// Every method is safe to call on a nil receiver.
type IntakeMetrics struct {
	submissionsTotal   *prometheus.CounterVec
	channelTotal       *prometheus.CounterVec
	suspiciousTotal    prometheus.Counter
	stageDuration      *prometheus.HistogramVec
	rateLimitDecisions *prometheus.CounterVec
	leadScore          prometheus.Histogram
	cspReportsTotal    prometheus.Counter
	followupJobsTotal  *prometheus.CounterVec
}

// NewIntakeMetrics registers the collectors on reg (default registerer when nil).
func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "submissions_total",
			Help:      "Contact form submissions by terminal outcome",
		}, []string{"outcome"}),
		channelTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "channel_total",
			Help:      "Fanout channel attempts by result",
		}, []string{"channel", "status"}),
		suspiciousTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "suspicious_total",
			Help:      "Submissions flagged by the threat scanner",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "stage_duration_seconds",
			Help:      "Latency of each intake pipeline stage",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		rateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limit decisions by bucket and decision",
		}, []string{"bucket", "decision"}),
		leadScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "lead_score",
			Help:      "Distribution of computed lead scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		cspReportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "csp",
			Name:      "reports_total",
			Help:      "Content security policy violation reports received",
		}),
		followupJobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "followup",
			Name:      "jobs_total",
			Help:      "Follow-up email jobs by result",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.submissionsTotal,
		m.channelTotal,
		m.suspiciousTotal,
		m.stageDuration,
		m.rateLimitDecisions,
		m.leadScore,
		m.cspReportsTotal,
		m.followupJobsTotal,
	)
	return m
}

func (m *IntakeMetrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *IntakeMetrics) ObserveChannel(channel string, ok bool) {
	if m == nil {
		return
	}
	m.channelTotal.WithLabelValues(channel, statusLabel(ok)).Inc()
}

// ObserveChannelSkipped records a channel that was not attempted.
func (m *IntakeMetrics) ObserveChannelSkipped(channel string) {
	if m == nil {
		return
	}
	m.channelTotal.WithLabelValues(channel, "skipped").Inc()
}

func (m *IntakeMetrics) ObserveSuspicious() {
	if m == nil {
		return
	}
	m.suspiciousTotal.Inc()
}

func (m *IntakeMetrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *IntakeMetrics) ObserveRateLimit(bucket, decision string) {
	if m == nil {
		return
	}
	m.rateLimitDecisions.WithLabelValues(bucket, decision).Inc()
}

func (m *IntakeMetrics) ObserveScore(score int) {
	if m == nil {
		return
	}
	m.leadScore.Observe(float64(score))
}

func (m *IntakeMetrics) ObserveCSPReport() {
	if m == nil {
		return
	}
	m.cspReportsTotal.Inc()
}

func (m *IntakeMetrics) ObserveFollowupJob(status string) {
	if m == nil {
		return
	}
	m.followupJobsTotal.WithLabelValues(status).Inc()
}

func statusLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
