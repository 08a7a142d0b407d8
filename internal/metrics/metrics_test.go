package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOverflowActive(t *testing.T) {
	SetOverflowActive(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(OverflowActive))
	SetOverflowActive(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(OverflowActive))
}

func TestRegistryExposesNamespacedMetrics(t *testing.T) {
	SetOverflowActive(false)
	AdmissionsTotal.WithLabelValues(OutcomeRejected).Inc()

	err := testutil.GatherAndCompare(Registry, strings.NewReader(`
# HELP chatqueue_overflow_active 1 while the overflow team is on shift, 0 otherwise
# TYPE chatqueue_overflow_active gauge
chatqueue_overflow_active 0
`), "chatqueue_overflow_active")
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(Registry, "chatqueue_admissions_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
