package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	c := New()

	c.RecordRun(2 * time.Second)
	c.RecordObservation()
	c.RecordObservation()
	c.RecordNewMinimum()
	c.RecordFailure(KindNetwork)
	c.RecordFailure(KindNetwork)
	c.RecordFailure(KindExtraction)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.observations))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.newMinimums))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.failures.WithLabelValues(KindNetwork)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues(KindExtraction)))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.failures.WithLabelValues(KindDelivery)))
}

func TestHandler(t *testing.T) {
	c := New()
	c.RecordObservation()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pricewatch_observations_total 1")
	assert.Contains(t, string(body), `pricewatch_failures_total{kind="storage"} 0`)
}
