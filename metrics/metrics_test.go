package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/danihodovic/superrequests/httpx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_OneObservationPerRequest(t *testing.T) {
	var n int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&n, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c := New("test")
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	s, err := httpx.New(httpx.WithBaseURL(srv.URL), httpx.WithMiddleware(c.Middleware()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := s.Get(context.Background(), "/")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	_ = resp.Body.Close()

	if got := atomic.LoadInt32(&n); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	host := mustHost(t, srv.URL)
	if got := testutil.ToFloat64(c.requests.WithLabelValues(http.MethodGet, host, "200")); got != 1 {
		t.Fatalf("expected 1 request with code 200, got %v", got)
	}
	if got := testutil.CollectAndCount(c.requests); got != 1 {
		t.Fatalf("expected a single series, got %d", got)
	}
	if got := testutil.ToFloat64(c.inFlight); got != 0 {
		t.Fatalf("expected no requests in flight, got %v", got)
	}
}

func TestCollector_TransportError(t *testing.T) {
	c := New("test")
	failing := httpx.RoundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, &url.Error{Op: "Get", URL: "http://example.invalid", Err: context.Canceled}
	})

	s, err := httpx.New(
		httpx.WithTransport(failing),
		httpx.WithoutRetry(),
		httpx.WithMiddleware(c.Middleware()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Get(context.Background(), "http://example.invalid/"); err == nil {
		t.Fatalf("expected error")
	}
	if got := testutil.ToFloat64(c.requests.WithLabelValues(http.MethodGet, "example.invalid", "error")); got != 1 {
		t.Fatalf("expected 1 failed request, got %v", got)
	}
}

func mustHost(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u.Host
}

func TestCollector_RedirectHopsObservedSeparately(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := New("test")
	s, err := httpx.New(httpx.WithBaseURL(srv.URL), httpx.WithMiddleware(c.Middleware()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := s.Get(context.Background(), "/old")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	_ = resp.Body.Close()

	host := mustHost(t, srv.URL)
	for _, code := range []string{"302", "200"} {
		if got := testutil.ToFloat64(c.requests.WithLabelValues(http.MethodGet, host, code)); got != 1 {
			t.Fatalf("expected 1 observation for %s, got %v", code, got)
		}
	}
}
