package guard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics agrupa los contadores del guard. Un *Metrics nil es valido y no registra nada.
type Metrics struct {
	RateLimitDecisions *prometheus.CounterVec
	RateLimitLockouts  *prometheus.CounterVec
	TrackedKeys        prometheus.Gauge
	BlockedKeys        prometheus.Gauge
	SpamScores         prometheus.Histogram
	SpamRejections     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RateLimitDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_ratelimit_decisions_total",
			Help: "Rate limit decisions by action and outcome",
		}, []string{"action", "outcome"}),
		RateLimitLockouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_ratelimit_lockouts_total",
			Help: "Lockouts triggered by action",
		}, []string{"action"}),
		TrackedKeys: factory.NewGauge(prometheus.GaugeOpts{
			Name: "identity_ratelimit_tracked_keys",
			Help: "Rate limit entries held in memory after the last sweep",
		}),
		BlockedKeys: factory.NewGauge(prometheus.GaugeOpts{
			Name: "identity_ratelimit_blocked_keys",
			Help: "Rate limit entries currently blocked after the last sweep",
		}),
		SpamScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "identity_spam_score",
			Help:    "Spam score assigned to registration attempts",
			Buckets: []float64{0, 10, 25, 50, 75, 100, 150},
		}),
		SpamRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_spam_rejections_total",
			Help: "Registrations rejected as spam",
		}),
	}
}

func (m *Metrics) decision(action Action, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	m.RateLimitDecisions.WithLabelValues(string(action), outcome).Inc()
}

func (m *Metrics) lockout(action Action) {
	if m == nil {
		return
	}
	m.RateLimitLockouts.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) table(tracked, blocked int) {
	if m == nil {
		return
	}
	m.TrackedKeys.Set(float64(tracked))
	m.BlockedKeys.Set(float64(blocked))
}

func (m *Metrics) spam(score int, rejected bool) {
	if m == nil {
		return
	}
	m.SpamScores.Observe(float64(score))
	if rejected {
		m.SpamRejections.Inc()
	}
}
