package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/haasonsaas/canvasd/internal/canvas"
	"github.com/haasonsaas/canvasd/internal/observability"
	"github.com/haasonsaas/canvasd/internal/ratelimit"
)

func TestLoggingMiddleware(t *testing.T) {
	t.Run("logs request with nil logger", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		wrapped := LoggingMiddleware(nil)(handler)

		req := httptest.NewRequest("GET", "/test", nil)
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("logs request with logger", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})

		wrapped := LoggingMiddleware(testLogger())(handler)

		req := httptest.NewRequest("POST", "/api/canvas/init", nil)
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
		}
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.GetRequestID(r.Context())
	}))

	t.Run("generates id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		got := rec.Header().Get(RequestIDHeader)
		if got == "" {
			t.Fatal("expected generated request id")
		}
		if seen != got {
			t.Errorf("context id = %q, header = %q", seen, got)
		}
	})

	t.Run("reuses client id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
			t.Errorf("header = %q, want abc-123", got)
		}
		if seen != "abc-123" {
			t.Errorf("context id = %q", seen)
		}
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if got := rec.Header().Get(RequestIDHeader); len(got) > 128 {
			t.Errorf("oversized id kept: %d bytes", len(got))
		}
	})
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/canvas/init", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	handler := MetricsMiddleware(metrics)(mux)

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/canvas/init", nil))
	}
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nope", nil))

	if got := testutil.ToFloat64(metrics.HTTPRequestCounter.WithLabelValues("POST", "/api/canvas/init", "400")); got != 2 {
		t.Errorf("init requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.HTTPRequestCounter.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched requests = %v, want 1", got)
	}
}

func TestMetricsMiddlewareNil(t *testing.T) {
	called := false
	handler := MetricsMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if !called {
		t.Error("handler should be called")
	}
}

func TestTracingMiddlewareNamesSpanByRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := observability.TracerFrom(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)), "")
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/canvas/preview", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	handler := TracingMiddleware(tracer)(MetricsMiddleware(metrics)(mux))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/canvas/preview", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if got := spans[0].Name(); got != "GET /api/canvas/preview" {
		t.Errorf("span name = %q", got)
	}
	if got := testutil.ToFloat64(metrics.HTTPRequestCounter.WithLabelValues("GET", "/api/canvas/preview", "500")); got != 1 {
		t.Errorf("route metric = %v, want 1", got)
	}
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("preflight", func(t *testing.T) {
		handler := CORSMiddleware([]string{"https://app.example"})(next)
		req := httptest.NewRequest("OPTIONS", "/api/canvas/init", nil)
		req.Header.Set("Origin", "https://app.example")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
			t.Errorf("allow origin = %q", got)
		}
	})

	t.Run("disallowed origin", func(t *testing.T) {
		handler := CORSMiddleware([]string{"https://app.example"})(next)
		req := httptest.NewRequest("GET", "/api/canvas", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("allow origin = %q, want empty", got)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("wildcard", func(t *testing.T) {
		handler := CORSMiddleware([]string{"*"})(next)
		req := httptest.NewRequest("GET", "/api/canvas/export", nil)
		req.Header.Set("Origin", "https://any.example")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, "Content-Disposition") {
			t.Errorf("expose headers = %q", got)
		}
	})
}

func TestResponseWriterCapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrapResponseWriter(rec)
	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)
	n, _ := rw.Write([]byte("hello"))

	if rw.status != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rw.status, http.StatusTeapot)
	}
	if rw.bytes != n || n != 5 {
		t.Errorf("bytes = %d, n = %d", rw.bytes, n)
	}
	if _, ok := any(rw).(http.Flusher); !ok {
		t.Error("wrapper should implement http.Flusher")
	}
}

func TestIngestThrottle(t *testing.T) {
	h := NewHandler(&Config{
		Manager:       canvas.NewManager(nil, nil, testLogger()),
		IngestLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerSecond: 0.01, Burst: 1}),
		Logger:        testLogger(),
	})

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/canvas/add/image-upload", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := send("192.0.2.1:1000"); rec.Code == http.StatusTooManyRequests {
		t.Fatal("first request should not be throttled")
	}
	rec := send("192.0.2.1:2000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if rec := send("192.0.2.2:1000"); rec.Code == http.StatusTooManyRequests {
		t.Fatal("other client should not be throttled")
	}
}
