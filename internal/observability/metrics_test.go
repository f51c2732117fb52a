package observability

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistersOnCustomRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.RenderCompleted("success", 20*time.Millisecond)
	metrics.RenderCompleted("failed", 5*time.Millisecond)
	metrics.RenderCompleted("success", 10*time.Millisecond)

	expected := `
		# HELP canvasd_renders_total Total number of canvas renders by outcome
		# TYPE canvasd_renders_total counter
		canvasd_renders_total{status="failed"} 1
		canvasd_renders_total{status="success"} 2
	`
	if err := testutil.CollectAndCompare(metrics.RendersTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
	if count := testutil.CollectAndCount(metrics.RenderDuration); count != 1 {
		t.Errorf("expected 1 histogram, got %d", count)
	}
}

func TestMetricsMutation(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.Mutation("add_rectangle", nil, 1)
	metrics.Mutation("add_rectangle", nil, 2)
	metrics.Mutation("add_circle", errors.New("boom"), 2)

	if got := testutil.ToFloat64(metrics.MutationsTotal.WithLabelValues("add_rectangle", "ok")); got != 2 {
		t.Errorf("add_rectangle ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.MutationsTotal.WithLabelValues("add_circle", "error")); got != 1 {
		t.Errorf("add_circle error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Elements); got != 2 {
		t.Errorf("elements = %v, want 2", got)
	}
}

func TestMetricsCacheAndViewers(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.CacheLookup(true)
	metrics.CacheLookup(false)
	metrics.CacheLookup(false)
	metrics.ViewerConnected()
	metrics.ViewerConnected()
	metrics.ViewerDisconnected()

	if got := testutil.ToFloat64(metrics.ImageCacheLookups.WithLabelValues("miss")); got != 2 {
		t.Errorf("misses = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.ActiveViewers); got != 1 {
		t.Errorf("viewers = %v, want 1", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var metrics *Metrics
	metrics.RenderCompleted("success", time.Second)
	metrics.RenderRetried()
	metrics.Mutation("clear", nil, 0)
	metrics.CacheLookup(true)
	metrics.Ingest("url", nil)
	metrics.ViewerConnected()
	metrics.HTTPRequest("GET", "/", "200", time.Millisecond)
}
