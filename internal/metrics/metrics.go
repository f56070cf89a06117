package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "milestone"

// Metrics holds the collectors of the reward engine. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	passes             *prometheus.CounterVec
	passDuration       prometheus.Histogram
	lastSuccess        prometheus.Gauge
	credits            *prometheus.CounterVec
	creditedAmount     *prometheus.CounterVec
	expirations        *prometheus.CounterVec
	configurationSkips prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Milestone passes by outcome.",
		}, []string{"outcome"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Wall time of committed and rolled back passes.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last committed pass.",
		}),
		credits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_total",
			Help:      "Committed reward credits by milestone type.",
		}, []string{"type"}),
		creditedAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credited_amount_total",
			Help:      "Committed reward amount by milestone type.",
		}, []string{"type"}),
		expirations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expirations_total",
			Help:      "Committed window expirations by milestone type.",
		}, []string{"type"}),
		configurationSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "configuration_skips_total",
			Help:      "Open progress records skipped because their definition is inactive or missing.",
		}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.passes,
		m.passDuration,
		m.lastSuccess,
		m.credits,
		m.creditedAmount,
		m.expirations,
		m.configurationSkips,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// PassOutcome labels of passes_total.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeSkipped    = "skipped"
)

func (m *Metrics) ObservePass(outcome string, duration time.Duration, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSkipped {
		return
	}
	m.passDuration.Observe(duration.Seconds())
	if outcome == OutcomeCommitted {
		m.lastSuccess.Set(float64(finishedAt.Unix()))
	}
}

func (m *Metrics) AddCredits(milestoneType string, count int, amount float64) {
	if m == nil || count == 0 {
		return
	}
	m.credits.WithLabelValues(milestoneType).Add(float64(count))
	m.creditedAmount.WithLabelValues(milestoneType).Add(amount)
}

func (m *Metrics) AddExpirations(milestoneType string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.expirations.WithLabelValues(milestoneType).Add(float64(count))
}

func (m *Metrics) AddConfigurationSkips(count int) {
	if m == nil || count == 0 {
		return
	}
	m.configurationSkips.Add(float64(count))
}
