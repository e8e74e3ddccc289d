package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.ChangeTracked("FAILURE_MODE", "CRITICAL")
	m.ChangeTracked("FAILURE_MODE", "CRITICAL")
	m.ApprovalDecided("APPROVED")
	m.Escalated(3)
	m.Bypassed()
	m.Notification("APPROVAL_REQUIRED", nil)
	m.Notification("APPROVAL_REQUIRED", errors.New("queue full"))
	m.Sweep(20*time.Millisecond, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.changesTracked.WithLabelValues("FAILURE_MODE", "CRITICAL")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.approvalsEscalated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("APPROVAL_REQUIRED", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pendingApprovals))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "qmsgov_emergency_bypasses_total 1")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ChangeTracked("FMEA", "LOW")
		m.SideEffectFailed("publish")
		m.WorkflowStarted("instantiated")
		m.PropagationRun("FAILED")
		m.PropagationQueue(2)
		m.Sweep(time.Second, 0)
	})
}
