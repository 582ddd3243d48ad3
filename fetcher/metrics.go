package fetcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the ingestion pipeline.
type Metrics struct {
	Registry              *prometheus.Registry
	RequestsTotal         *prometheus.CounterVec
	RequestDuration       prometheus.Histogram
	RequestsInFlight      prometheus.Gauge
	ErrorsTotal           *prometheus.CounterVec
	ProductsIngestedTotal prometheus.Counter
	UploadsTotal          *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_requests_total",
			Help: "Total HTTP requests issued by the fetcher.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_request_duration_seconds",
			Help:    "HTTP request latency for fetcher requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_requests_in_flight",
			Help: "Number of requests currently in flight.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)
	productsIngested := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_products_total",
			Help: "Total number of product records produced.",
		},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_uploads_total",
			Help: "Total number of image uploads by outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(requests, requestDuration, inFlight, errorsTotal, productsIngested, uploadsTotal)

	return &Metrics{
		Registry:              registry,
		RequestsTotal:         requests,
		RequestDuration:       requestDuration,
		RequestsInFlight:      inFlight,
		ErrorsTotal:           errorsTotal,
		ProductsIngestedTotal: productsIngested,
		UploadsTotal:          uploadsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncInFlight increments the in-flight gauge.
func (m *Metrics) IncInFlight() {
	if m == nil {
		return
	}
	m.RequestsInFlight.Inc()
}

// DecInFlight decrements the in-flight gauge.
func (m *Metrics) DecInFlight() {
	if m == nil {
		return
	}
	m.RequestsInFlight.Dec()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncProducts increments the products ingested counter.
func (m *Metrics) IncProducts() {
	if m == nil {
		return
	}
	m.ProductsIngestedTotal.Inc()
}

// IncUpload increments the uploads counter for an outcome label.
func (m *Metrics) IncUpload(outcome string) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(outcome).Inc()
}
