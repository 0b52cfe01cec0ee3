package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveEvaluation("redeemable")
	m.ObserveReason("subsidy_expired")
	m.ObserveRedemption("created", "baseline")
	m.ObserveUpstreamError("subsidy")
	m.ObserveHTTP(http.MethodGet, "/health", http.StatusOK, time.Millisecond)
}

func TestCountersAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNew(reg, reg)

	m.ObserveEvaluation("redeemable")
	m.ObserveEvaluation("redeemable")
	m.ObserveRedemption("created", "versioned")

	require.Equal(t, 2.0, testutil.ToFloat64(m.evaluations.WithLabelValues("redeemable")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.redemptions.WithLabelValues("created", "versioned")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "enterprise_access_redemption_evaluations_total"))
}
