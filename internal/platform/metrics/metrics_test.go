package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveExport("attachment", 40_000, nil)
	m.ObserveExport("attachment", 0, errors.New("boom"))
	m.ObserveDispatch("emailjs", nil)
	m.ObserveStore("local", "save", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.exports.WithLabelValues("attachment", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exports.WithLabelValues("attachment", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues("emailjs", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOps.WithLabelValues("local", "save", "ok")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveExport("download", 1, nil)
		m.ObserveDispatch("emailjs", nil)
		m.ObserveStore("local", "list", nil)
		m.ObserveSnapshot(nil)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveSnapshot(nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cotizaciones_snapshots_total")
}
