package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	collectors := []prometheus.Collector{
		LoginsTotal,
		LogoutsTotal,
		ForcedLogoutsTotal,
		ActionDuration,
		ObserveSubscriptions,
		NotificationsPublished,
		WebSocketConnections,
		RateLimitedRequests,
		CircuitBreakerState,
	}
	for _, c := range collectors {
		require.NotNil(t, c)
	}

	// Registering again in the default registry must report a duplicate
	err := prometheus.Register(LoginsTotal)
	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(LoginsTotal.WithLabelValues(ResultSucceeded))
	LoginsTotal.WithLabelValues(ResultSucceeded).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(LoginsTotal.WithLabelValues(ResultSucceeded)))
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, ResultSucceeded, ResultLabel(true, nil))
	assert.Equal(t, ResultFailed, ResultLabel(false, nil))
	assert.Equal(t, ResultError, ResultLabel(true, errors.New("boom")))
}
