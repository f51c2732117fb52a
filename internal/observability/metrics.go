package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for canvasd.
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.RenderCompleted("success", time.Since(start))
//
// Every recorder method is safe to call on a nil *Metrics.
type Metrics struct {
	// RendersTotal counts render attempts by outcome.
	// Labels: status (success|retried|failed|skipped)
	RendersTotal *prometheus.CounterVec

	// RenderDuration measures one full render (both surfaces and writes).
	RenderDuration prometheus.Histogram

	// RenderRetries counts renders that needed their single retry.
	RenderRetries prometheus.Counter

	// MutationsTotal counts document mutations.
	// Labels: op (init|add_rectangle|add_circle|add_text|add_image|clear), status (ok|error)
	MutationsTotal *prometheus.CounterVec

	// Elements tracks the element count of the live document.
	Elements prometheus.Gauge

	// ImageCacheLookups counts cache lookups.
	// Labels: result (hit|miss)
	ImageCacheLookups *prometheus.CounterVec

	// IngestTotal counts image ingestion attempts.
	// Labels: source (url|upload), status (ok|error)
	IngestTotal *prometheus.CounterVec

	// ActiveViewers counts connected live-update subscribers.
	ActiveViewers prometheus.Gauge

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec
}

// NewMetrics creates all collectors and registers them with reg. A nil reg
// falls back to the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RendersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvasd_renders_total",
				Help: "Total number of canvas renders by outcome",
			},
			[]string{"status"},
		),
		RenderDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "canvasd_render_duration_seconds",
				Help:    "Duration of a full canvas render in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		),
		RenderRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "canvasd_render_retries_total",
				Help: "Total number of render retries",
			},
		),
		MutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvasd_mutations_total",
				Help: "Total number of document mutations by operation and status",
			},
			[]string{"op", "status"},
		),
		Elements: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "canvasd_document_elements",
				Help: "Number of elements in the live document",
			},
		),
		ImageCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvasd_image_cache_lookups_total",
				Help: "Image cache lookups by result",
			},
			[]string{"result"},
		),
		IngestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvasd_image_ingest_total",
				Help: "Image ingestion attempts by source and status",
			},
			[]string{"source", "status"},
		),
		ActiveViewers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "canvasd_active_viewers",
				Help: "Current number of live-update subscribers",
			},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "canvasd_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvasd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// RenderCompleted records the outcome and duration of a render.
func (m *Metrics) RenderCompleted(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RendersTotal.WithLabelValues(status).Inc()
	m.RenderDuration.Observe(duration.Seconds())
}

// RenderRetried records a render retry.
func (m *Metrics) RenderRetried() {
	if m == nil {
		return
	}
	m.RenderRetries.Inc()
}

// Mutation records a document mutation and the resulting element count.
func (m *Metrics) Mutation(op string, err error, elements int) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.MutationsTotal.WithLabelValues(op, status).Inc()
	m.Elements.Set(float64(elements))
}

// CacheLookup records an image cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.ImageCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.ImageCacheLookups.WithLabelValues("miss").Inc()
}

// Ingest records an image ingestion attempt.
func (m *Metrics) Ingest(source string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.IngestTotal.WithLabelValues(source, status).Inc()
}

func (m *Metrics) ViewerConnected() {
	if m == nil {
		return
	}
	m.ActiveViewers.Inc()
}

func (m *Metrics) ViewerDisconnected() {
	if m == nil {
		return
	}
	m.ActiveViewers.Dec()
}

// HTTPRequest records an HTTP request with its latency.
func (m *Metrics) HTTPRequest(method, path, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(duration.Seconds())
}
