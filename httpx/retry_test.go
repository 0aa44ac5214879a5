package httpx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// statusSequence serves the given codes in order, then 200 forever.
func statusSequence(t *testing.T, codes ...int) (*httptest.Server, *int32) {
	t.Helper()
	var n int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(atomic.AddInt32(&n, 1)) - 1
		if i < len(codes) {
			w.WriteHeader(codes[i])
			_, _ = w.Write([]byte("nope"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	return srv, &n
}

func alwaysStatus(t *testing.T, code int) (*httptest.Server, *int32) {
	t.Helper()
	var n int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&n, 1)
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)
	return srv, &n
}

func TestRetry_DefaultPolicyRecoversAfterThree503(t *testing.T) {
	srv, n := statusSequence(t, 503, 503, 503)

	s, err := New(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := s.Get(context.Background(), "/")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected final 200, got %d", resp.StatusCode)
	}
	if got := atomic.LoadInt32(n); got != 4 {
		t.Fatalf("expected 4 attempts, got %d", got)
	}
}

func TestRetry_ExhaustionIsAnError(t *testing.T) {
	srv, n := alwaysStatus(t, http.StatusServiceUnavailable)

	s, err := New(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := s.Get(context.Background(), "/")
	if err == nil {
		_ = resp.Body.Close()
		t.Fatalf("expected retry exhaustion error")
	}
	if _, ok := AsError(err); ok {
		t.Fatalf("exhaustion should surface from the transport, got %v", err)
	}
	if got := atomic.LoadInt32(n); got != 4 {
		t.Fatalf("expected 4 attempts, got %d", got)
	}
}

func TestRetry_RaiseOnStatusFalsePassesLastResponse(t *testing.T) {
	srv, n := alwaysStatus(t, http.StatusServiceUnavailable)

	p := DefaultRetryPolicy()
	p.RaiseOnStatus = false
	s, err := New(WithBaseURL(srv.URL), WithRetry(p))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := s.Get(context.Background(), "/")
	if !IsHTTPStatus(err, http.StatusServiceUnavailable) {
		t.Fatalf("expected *Error with 503, got %v", err)
	}
	_ = resp.Body.Close()
	if got := atomic.LoadInt32(n); got != 4 {
		t.Fatalf("expected 4 attempts, got %d", got)
	}
}

func TestRetry_DisabledAttemptsOnce(t *testing.T) {
	srv, n := alwaysStatus(t, http.StatusServiceUnavailable)

	s, err := New(WithBaseURL(srv.URL), WithoutRetry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := s.Get(context.Background(), "/")
	if !IsHTTPStatus(err, http.StatusServiceUnavailable) {
		t.Fatalf("expected *Error with 503, got %v", err)
	}
	_ = resp.Body.Close()
	if got := atomic.LoadInt32(n); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
}

func TestRetry_NoRetryForPOSTByDefault(t *testing.T) {
	srv, n := alwaysStatus(t, http.StatusInternalServerError)

	s, err := New(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := s.Post(context.Background(), "/", WithBodyBytes([]byte(`{}`)))
	if !IsHTTPStatus(err, http.StatusInternalServerError) {
		t.Fatalf("expected *Error with 500, got %v", err)
	}
	_ = resp.Body.Close()
	if got := atomic.LoadInt32(n); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
}

func TestRetry_StatusOutsideForcelistNotRetried(t *testing.T) {
	srv, n := alwaysStatus(t, http.StatusNotImplemented)

	s, err := New(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := s.Get(context.Background(), "/")
	if !IsHTTPStatus(err, http.StatusNotImplemented) {
		t.Fatalf("expected *Error with 501, got %v", err)
	}
	_ = resp.Body.Close()
	if got := atomic.LoadInt32(n); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
}

func TestRetry_ErrorBudgets(t *testing.T) {
	dialErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	readErr := &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")}

	tests := []struct {
		name   string
		method string
		err    error
		policy RetryPolicy
		want   int32
	}{
		{name: "connect errors retried for POST", method: http.MethodPost, err: dialErr,
			policy: RetryPolicy{Connect: 2, Read: 0, Total: 5}, want: 3},
		{name: "connect budget bounded by total", method: http.MethodGet, err: dialErr,
			policy: RetryPolicy{Connect: 5, Total: 2}, want: 3},
		{name: "read errors not retried for POST", method: http.MethodPost, err: readErr,
			policy: RetryPolicy{Read: 3, Total: 3, Methods: defaultRetryMethods()}, want: 1},
		{name: "read errors retried for GET", method: http.MethodGet, err: readErr,
			policy: RetryPolicy{Read: 1, Total: 3, Methods: defaultRetryMethods()}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n int32
			failing := RoundTripperFunc(func(*http.Request) (*http.Response, error) {
				atomic.AddInt32(&n, 1)
				return nil, tt.err
			})
			s, err := New(WithTransport(failing), WithRetry(tt.policy))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			_, err = s.Request(context.Background(), tt.method, "http://example.test/")
			if err == nil {
				t.Fatalf("expected error")
			}
			var oe *net.OpError
			if !errors.As(err, &oe) {
				t.Fatalf("transport error was not passed through: %v", err)
			}
			if got := atomic.LoadInt32(&n); got != tt.want {
				t.Fatalf("expected %d attempts, got %d", tt.want, got)
			}
		})
	}
}

func TestRetryPolicy_CheckRetryCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := DefaultRetryPolicy().checkRetry(ctx, nil, errors.New("boom"))
	if ok || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected no retry with context error, got %v, %v", ok, err)
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusServiceUnavailable, Header: http.Header{"Retry-After": []string{"5"}}}

	p := DefaultRetryPolicy()
	if got := p.backoff(0, p.BackoffMax, 1, resp); got != 5*time.Second {
		t.Fatalf("expected Retry-After to be honored, got %v", got)
	}
	p.RespectRetryAfter = false
	if got := p.backoff(0, p.BackoffMax, 1, resp); got != 0 {
		t.Fatalf("expected zero backoff factor to retry immediately, got %v", got)
	}
	if got := p.backoff(100*time.Millisecond, time.Second, 3, nil); got != 800*time.Millisecond {
		t.Fatalf("expected exponential backoff, got %v", got)
	}
	if got := p.backoff(100*time.Millisecond, time.Second, 10, nil); got != time.Second {
		t.Fatalf("expected backoff capped at max, got %v", got)
	}
}

func TestDefaultRetryPolicy_Fresh(t *testing.T) {
	a := DefaultRetryPolicy()
	b := DefaultRetryPolicy()
	a.Methods[http.MethodPost] = true
	a.StatusCodes[http.StatusNotFound] = true
	if b.Methods[http.MethodPost] || b.StatusCodes[http.StatusNotFound] {
		t.Fatalf("default policies share state")
	}
	if b.Connect != 3 || b.Read != 3 || b.Total != 3 {
		t.Fatalf("unexpected default budgets: %+v", b)
	}
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !b.StatusCodes[code] {
			t.Fatalf("status %d should be retryable", code)
		}
	}
	for _, m := range []string{http.MethodHead, http.MethodGet, http.MethodOptions} {
		if !b.Methods[m] {
			t.Fatalf("method %s should be retryable", m)
		}
	}
}

func TestRetry_ReusesRequestID(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.Header.Get("X-Request-ID"))
		n := len(ids)
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	s, err := New(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := s.Get(context.Background(), "/")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	_ = resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(ids) != 3 || ids[0] == "" || ids[0] != ids[1] || ids[1] != ids[2] {
		t.Fatalf("expected one id across 3 attempts, got %q", ids)
	}
}
