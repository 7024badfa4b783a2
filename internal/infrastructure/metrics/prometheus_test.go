package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder("workflow")

	r.ObserveOperation("submit", "technical", "OK", 3*time.Millisecond)
	r.ObserveOperation("submit", "technical", "OK", time.Millisecond)
	r.ObserveOperation("assign", "technical", "AUTHORIZATION_ERROR", time.Millisecond)
	r.ObserveTransition("order_retail", "validated", "approved")
	r.ObserveNotification("technical", "item.submitted", false)
	r.ObserveCache(true)
	r.ObserveCache(false)
	r.ObserveCache(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.operations.WithLabelValues("submit", "technical", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues("assign", "technical", "AUTHORIZATION_ERROR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("order_retail", "validated", "approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notifications.WithLabelValues("technical", "item.submitted", "failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("hit")))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder("workflow")
	r.ObserveTransition("technical", "submitted", "assigned")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `workflow_transitions_total{from="submitted",kind="technical",to="assigned"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
