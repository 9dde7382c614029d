package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fromlifetolines/lumina-ados/internal/metrics"
)

const namespace = "lumina"

// Collector owns the process metrics registry. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	notifications   *prometheus.CounterVec
	recommendations *prometheus.CounterVec
	kpi             *prometheus.GaugeVec
	httpDuration    *prometheus.HistogramVec
}

// New registers all lumina metrics on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "KPI refresh passes by outcome.",
		}, []string{"outcome"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of KPI refresh passes.",
			Buckets:   prometheus.DefBuckets,
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Advisory digests by delivery outcome.",
		}, []string{"outcome"}),
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Recommendations emitted by rule.",
		}, []string{"rule"}),
		kpi: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "kpi",
			Help:      "Latest KPI snapshot values.",
		}, []string{"name"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.refreshes,
		c.refreshDuration,
		c.notifications,
		c.recommendations,
		c.kpi,
		c.httpDuration,
	)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRefresh records one refresh pass.
func (c *Collector) ObserveRefresh(elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.refreshes.WithLabelValues(outcome).Inc()
	c.refreshDuration.Observe(elapsed.Seconds())
}

// ObserveNotification records a digest delivery attempt. outcome is one of
// sent, failed, suppressed.
func (c *Collector) ObserveNotification(outcome string) {
	if c == nil {
		return
	}
	c.notifications.WithLabelValues(outcome).Inc()
}

// ObserveRecommendations counts emitted rules.
func (c *Collector) ObserveRecommendations(rules []string) {
	if c == nil {
		return
	}
	for _, r := range rules {
		c.recommendations.WithLabelValues(r).Inc()
	}
}

// SetKPIs publishes the latest snapshot as gauges.
func (c *Collector) SetKPIs(s metrics.KpiSnapshot) {
	if c == nil {
		return
	}
	c.kpi.WithLabelValues("total_revenue").Set(s.TotalRevenue.InexactFloat64())
	c.kpi.WithLabelValues("total_spend_estimate").Set(s.TotalSpendEstimate.InexactFloat64())
	c.kpi.WithLabelValues("customer_count").Set(float64(s.CustomerCount))
	c.kpi.WithLabelValues("at_risk_count").Set(float64(s.AtRiskCount))
	c.kpi.WithLabelValues("average_order_value").Set(s.AverageOrderValue.InexactFloat64())
	c.kpi.WithLabelValues("churn_rate").Set(s.ChurnRate.InexactFloat64())
	c.kpi.WithLabelValues("blended_roas").Set(s.BlendedRoas.InexactFloat64())
	c.kpi.WithLabelValues("cac").Set(s.CAC.InexactFloat64())
	c.kpi.WithLabelValues("ltv_to_cac").Set(s.LtvToCac.InexactFloat64())
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpDuration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}
