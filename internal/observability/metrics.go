package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the agent's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	actions        *prometheus.CounterVec
	replacements   *prometheus.CounterVec
	verifications  *prometheus.CounterVec
	sessions       *prometheus.CounterVec
	activeSessions prometheus.Gauge
	genDuration    *prometheus.HistogramVec
	genRequests    *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		actions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_attempted_total",
				Help:      "Attempted page actions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		replacements: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_replacements_total",
				Help:      "Replacement requests by result",
			},
			[]string{"result"},
		),
		verifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "goal_verifications_total",
				Help:      "Goal verifications by result",
			},
			[]string{"result"},
		),
		sessions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_finished_total",
				Help:      "Sessions reaching a resting status, by status and reason",
			},
			[]string{"status", "reason"},
		),
		activeSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Sessions currently held in the registry",
			},
		),
		genDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "textgen_request_duration_seconds",
				Help:      "Text generation latency in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "purpose"},
		),
		genRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "textgen_requests_total",
				Help:      "Text generation requests by status",
			},
			[]string{"provider", "purpose", "status"},
		),
	}
}

func (m *Metrics) ObserveAction(kind, outcome string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveReplacement(result string) {
	if m == nil {
		return
	}
	m.replacements.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveVerification(result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSession(status, reason string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(status, reason).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) ObserveGeneration(provider, purpose, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.genDuration.WithLabelValues(provider, purpose).Observe(d.Seconds())
	m.genRequests.WithLabelValues(provider, purpose, status).Inc()
}
