package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/warp/compliance-engine/lifecycle"
)

func TestMetrics_EngineEvents(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RenewalCompleted("tax", 0)
	m.RenewalCompleted("tax", 1)
	m.PaymentCapped("tax")
	m.ConflictDetected("renew")
	m.ConflictDetected("renew")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Renewals.WithLabelValues("tax")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsRetired.WithLabelValues("tax")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentsCapped.WithLabelValues("tax")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Conflicts.WithLabelValues("renew")))
}

func TestMetrics_SweepOutcomes(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SweepCompleted(lifecycle.SweepResult{Scanned: 10, Updated: 3, ParseFailures: 1}, 2*time.Second)
	m.SweepCompleted(lifecycle.SweepResult{Err: errors.New("scan failed")}, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepRuns.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepRuns.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SweepUpdated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepParseFailures))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SweepDuration))
}

func TestNew_TwoRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
