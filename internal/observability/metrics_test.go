package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordDecision(t *testing.T) {
	m := NewMetrics()

	m.RecordDecision(KindRoute, true)
	m.RecordDecision(KindRoute, false)
	m.RecordDecision(KindRoute, false)
	m.RecordDecision(KindGate, true)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.decisions.WithLabelValues(KindRoute, "allowed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.decisions.WithLabelValues(KindRoute, "denied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.decisions.WithLabelValues(KindGate, "allowed")))
}

func TestMetrics_SessionCacheAndLoad(t *testing.T) {
	m := NewMetrics()

	m.RecordSessionCache("hit")
	m.RecordSessionCache("hit")
	m.RecordSessionCache("miss")
	m.ObserveIdentityLoad("postgres", 20*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.sessionCache.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sessionCache.WithLabelValues("miss")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.identityLoad, "identity_load_seconds"))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDecision(KindFeature, true)
		m.RecordSessionCache("hit")
		m.ObserveIdentityLoad("redis", time.Millisecond)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordDecision(KindFeature, false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `access_decisions_total{kind="feature",result="denied"} 1`)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "json")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	logger, err = NewLogger("info", "text")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger("loud", "json")
	assert.Error(t, err)
}
