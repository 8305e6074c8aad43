package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveComputation("group", time.Now(), nil)
		m.Inconsistent("EXPENSE", 2)
		m.AuditDropped()
		m.AuditWritten()
		m.StreamOpened()()
		m.Purged(3)
		m.Mutation("EXPENSE")
	})
}

func TestCollectors(t *testing.T) {
	m := New()

	m.ObserveComputation("group", time.Now(), nil)
	m.ObserveComputation("group", time.Now(), errors.New("boom"))
	m.Inconsistent("EXPENSE", 2)
	m.AuditDropped()
	m.Purged(3)
	closeStream := m.StreamOpened()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.computations.WithLabelValues("group", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.computations.WithLabelValues("group", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.inconsistent.WithLabelValues("EXPENSE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditDropped))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.purged))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streams))
	closeStream()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.streams))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "expensesplitter_expenses_purged_total 3")
}
