package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()

	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg), "registering twice must fail")
}

func TestMetrics_ObservePass(t *testing.T) {
	m := New()
	finished := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	m.ObservePass(OutcomeCommitted, 2*time.Second, finished)
	m.ObservePass(OutcomeRolledBack, time.Second, finished)
	m.ObservePass(OutcomeSkipped, 0, finished)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues(OutcomeCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues(OutcomeRolledBack)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues(OutcomeSkipped)))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(m.lastSuccess))
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.AddCredits("CashbackMilestone", 2, 750)
	m.AddCredits("CashbackMilestone", 0, 0)
	m.AddExpirations("FranchiseMilestone", 1)
	m.AddConfigurationSkips(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.credits.WithLabelValues("CashbackMilestone")))
	assert.Equal(t, 750.0, testutil.ToFloat64(m.creditedAmount.WithLabelValues("CashbackMilestone")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.expirations.WithLabelValues("FranchiseMilestone")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.configurationSkips))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObservePass(OutcomeCommitted, time.Second, time.Now())
		m.AddCredits("CashbackMilestone", 1, 10)
		m.AddExpirations("CashbackMilestone", 1)
		m.AddConfigurationSkips(1)
	})
}
