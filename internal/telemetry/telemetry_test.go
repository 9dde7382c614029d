package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fromlifetolines/lumina-ados/internal/metrics"
)

func TestCollectorCounts(t *testing.T) {
	c := New()

	c.ObserveRefresh(120*time.Millisecond, nil)
	c.ObserveRefresh(80*time.Millisecond, errors.New("boom"))
	c.ObserveRefresh(10*time.Millisecond, nil)
	c.ObserveNotification("sent")
	c.ObserveRecommendations([]string{"win-back", "raise-aov", "win-back"})

	require.Equal(t, 2.0, testutil.ToFloat64(c.refreshes.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.refreshes.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.notifications.WithLabelValues("sent")))
	require.Equal(t, 2.0, testutil.ToFloat64(c.recommendations.WithLabelValues("win-back")))
}

func TestCollectorKPIs(t *testing.T) {
	c := New()
	c.SetKPIs(metrics.KpiSnapshot{
		TotalRevenue:  decimal.NewFromInt(5000),
		CustomerCount: 10,
		ChurnRate:     decimal.NewFromInt(20),
	})

	require.Equal(t, 5000.0, testutil.ToFloat64(c.kpi.WithLabelValues("total_revenue")))
	require.Equal(t, 10.0, testutil.ToFloat64(c.kpi.WithLabelValues("customer_count")))
	require.Equal(t, 20.0, testutil.ToFloat64(c.kpi.WithLabelValues("churn_rate")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.ObserveHTTP("GET", "/api/kpis", "200", 5*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `lumina_http_request_duration_seconds_count{method="GET",route="/api/kpis",status="200"} 1`), string(body))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveRefresh(time.Second, nil)
	c.ObserveNotification("sent")
	c.SetKPIs(metrics.KpiSnapshot{})
	c.ObserveHTTP("GET", "/", "200", time.Second)
	require.Nil(t, c.Registry())

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 404, rec.Code)
}
