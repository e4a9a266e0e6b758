// Package metrics exposes the tracker's Prometheus collectors on a
// dedicated registry. Every helper is safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the tracker.
type Metrics struct {
	Registry *prometheus.Registry

	UpdateRunsTotal       *prometheus.CounterVec
	UpdateDuration        prometheus.Histogram
	SnapshotsCreatedTotal prometheus.Counter
	ProductErrorsTotal    *prometheus.CounterVec

	ChecksTotal        *prometheus.CounterVec
	PriceDropsTotal    prometheus.Counter
	AlertsCreatedTotal prometheus.Counter

	LinksCreatedTotal   prometheus.Counter
	ProductsIngestTotal prometheus.Counter

	PageRequestsTotal *prometheus.CounterVec
	PageDuration      prometheus.Histogram
	PageErrorsTotal   *prometheus.CounterVec

	HTTPRequestsTotal *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	updateRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_update_runs_total",
			Help: "Total price update runs by outcome.",
		},
		[]string{"outcome"},
	)
	updateDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracker_update_duration_seconds",
			Help:    "Wall time of a price update run including tracked search checks.",
			Buckets: prometheus.DefBuckets,
		},
	)
	snapshots := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_snapshots_created_total",
			Help: "Total price snapshots appended.",
		},
	)
	productErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_product_errors_total",
			Help: "Total per-product failures by type.",
		},
		[]string{"error_type"},
	)
	checks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_price_checks_total",
			Help: "Total per-search price checks by outcome.",
		},
		[]string{"outcome"},
	)
	drops := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_price_drops_total",
			Help: "Total price drops detected across tracked searches.",
		},
	)
	alerts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_alerts_created_total",
			Help: "Total price drop alerts persisted.",
		},
	)
	links := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_links_created_total",
			Help: "Total search to product links inserted.",
		},
	)
	ingested := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_products_ingested_total",
			Help: "Total products saved from scrape results.",
		},
	)
	pageRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_page_requests_total",
			Help: "Total product page requests issued by the live price source.",
		},
		[]string{"phase"},
	)
	pageDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracker_page_request_duration_seconds",
			Help:    "Product page request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pageErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_page_errors_total",
			Help: "Total product page errors by type.",
		},
		[]string{"error_type"},
	)
	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_http_requests_total",
			Help: "Total API requests by route and status code.",
		},
		[]string{"route", "status"},
	)

	registry.MustRegister(
		updateRuns, updateDuration, snapshots, productErrors,
		checks, drops, alerts, links, ingested,
		pageRequests, pageDuration, pageErrors, httpRequests,
	)

	return &Metrics{
		Registry:              registry,
		UpdateRunsTotal:       updateRuns,
		UpdateDuration:        updateDuration,
		SnapshotsCreatedTotal: snapshots,
		ProductErrorsTotal:    productErrors,
		ChecksTotal:           checks,
		PriceDropsTotal:       drops,
		AlertsCreatedTotal:    alerts,
		LinksCreatedTotal:     links,
		ProductsIngestTotal:   ingested,
		PageRequestsTotal:     pageRequests,
		PageDuration:          pageDuration,
		PageErrorsTotal:       pageErrors,
		HTTPRequestsTotal:     httpRequests,
	}
}

// ObserveUpdate records the outcome and duration of an update run.
func (m *Metrics) ObserveUpdate(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.UpdateRunsTotal.WithLabelValues(outcome).Inc()
	m.UpdateDuration.Observe(d.Seconds())
}

// AddSnapshots increments the snapshots counter by n.
func (m *Metrics) AddSnapshots(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SnapshotsCreatedTotal.Add(float64(n))
}

// IncProductError increments the per-product error counter for a type label.
func (m *Metrics) IncProductError(errorType string) {
	if m == nil {
		return
	}
	m.ProductErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCheck increments the price check counter for an outcome label.
func (m *Metrics) IncCheck(outcome string) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(outcome).Inc()
}

// AddDrops increments the detected drops counter by n.
func (m *Metrics) AddDrops(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PriceDropsTotal.Add(float64(n))
}

// AddAlerts increments the alerts counter by n.
func (m *Metrics) AddAlerts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AlertsCreatedTotal.Add(float64(n))
}

// AddLinks increments the links counter by n.
func (m *Metrics) AddLinks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LinksCreatedTotal.Add(float64(n))
}

// AddIngested increments the ingested products counter by n.
func (m *Metrics) AddIngested(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ProductsIngestTotal.Add(float64(n))
}

// IncPageRequest increments the page requests counter.
func (m *Metrics) IncPageRequest(phase string) {
	if m == nil {
		return
	}
	m.PageRequestsTotal.WithLabelValues(phase).Inc()
}

// ObservePageDuration records a product page request duration.
func (m *Metrics) ObservePageDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.PageDuration.Observe(d.Seconds())
}

// IncPageError increments the page errors counter for a type label.
func (m *Metrics) IncPageError(errorType string) {
	if m == nil {
		return
	}
	m.PageErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncHTTPRequest counts one API request.
func (m *Metrics) IncHTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, statusLabel(status)).Inc()
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
