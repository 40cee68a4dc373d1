package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveApply(t *testing.T) {
	before := testutil.ToFloat64(themeApplies.WithLabelValues("deadline", "ok"))

	ObserveApply("deadline", "ok")
	ObserveApply("deadline", "error")

	assert.Equal(t, before+1, testutil.ToFloat64(themeApplies.WithLabelValues("deadline", "ok")))
}

func TestGauges(t *testing.T) {
	SetIsDark(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(isDark))
	SetIsDark(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(isDark))

	SetNextWake(-1)
	assert.Equal(t, -1.0, testutil.ToFloat64(nextWake))
}

func TestCounters(t *testing.T) {
	fired := testutil.ToFloat64(deadlinesFired)
	ObserveDeadlineFired()
	assert.Equal(t, fired+1, testutil.ToFloat64(deadlinesFired))

	resolved := testutil.ToFloat64(locationUpdates.WithLabelValues("resolve_error"))
	ObserveLocationUpdate("resolve_error")
	assert.Equal(t, resolved+1, testutil.ToFloat64(locationUpdates.WithLabelValues("resolve_error")))
}
