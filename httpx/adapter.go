package httpx

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// DefaultAdapterTimeout is used by a TimeoutTransport built without a Timeout.
const DefaultAdapterTimeout = 10 * time.Second

// TransportConfig configures a TimeoutTransport.
type TransportConfig struct {
	// Timeout is applied to requests that carry no explicit timeout.
	// If zero, DefaultAdapterTimeout is used.
	Timeout time.Duration

	// Retry enables automatic retries. If nil, every request is attempted once.
	Retry *RetryPolicy

	// Pool configures the pooled transport built when Base is nil.
	Pool PoolConfig

	// Base is the innermost RoundTripper. If nil, NewTransport(Pool) is used.
	Base http.RoundTripper

	Logger zerolog.Logger
}

// TimeoutTransport makes sure every request it sends has a bounded wait time,
// without overriding a timeout the caller chose (see WithRequestTimeout).
//
// The effective timeout is a deadline for one attempt, from sending the request
// until its response body is closed. Each retry gets a fresh deadline. A body
// still streaming when the deadline passes is cut off; use a longer request
// timeout for large downloads.
type TimeoutTransport struct {
	timeout time.Duration
	retry   *RetryPolicy
	base    http.RoundTripper
	next    http.RoundTripper
}

func NewTimeoutTransport(cfg TransportConfig) *TimeoutTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultAdapterTimeout
	}
	base := cfg.Base
	if base == nil {
		base = NewTransport(cfg.Pool)
	}

	t := &TimeoutTransport{timeout: timeout, base: base}
	perAttempt := attemptTimeout{next: base}
	if cfg.Retry == nil {
		t.next = perAttempt
		return t
	}

	p := cfg.Retry.clone()
	t.retry = &p

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		// retryablehttp closes idle connections whenever it gives up. Hiding
		// CloseIdleConnections keeps the shared pool intact; Session.Close owns it.
		Transport: RoundTripperFunc(perAttempt.RoundTrip),
		// Redirects are followed by the session, one hop per adapter call.
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	rc.RetryMax = p.Total
	rc.RetryWaitMin = p.BackoffFactor
	rc.RetryWaitMax = p.BackoffMax
	rc.CheckRetry = p.checkRetry
	rc.Backoff = p.backoff
	rc.Logger = retryLogger{log: cfg.Logger}
	if !p.RaiseOnStatus {
		rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	}
	t.next = &retryablehttp.RoundTripper{Client: rc}
	return t
}

// Timeout returns the default applied to requests without an explicit timeout.
func (t *TimeoutTransport) Timeout() time.Duration { return t.timeout }

// RetryPolicy returns a copy of the policy, or false if retries are disabled.
func (t *TimeoutTransport) RetryPolicy() (RetryPolicy, bool) {
	if t.retry == nil {
		return RetryPolicy{}, false
	}
	return t.retry.clone(), true
}

func (t *TimeoutTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if d, ok := TimeoutFromContext(ctx); !ok || d <= 0 {
		ctx = ContextWithTimeout(ctx, t.timeout)
	}
	if t.retry != nil {
		ctx = withAttempts(ctx, req.Method)
	}
	return t.next.RoundTrip(req.WithContext(ctx))
}

func (t *TimeoutTransport) CloseIdleConnections() {
	if ci, ok := t.base.(interface{ CloseIdleConnections() }); ok {
		ci.CloseIdleConnections()
	}
}

type timeoutKey struct{}

// ContextWithTimeout records an explicit timeout for requests made with ctx.
// A TimeoutTransport uses it instead of its default.
func ContextWithTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, timeoutKey{}, d)
}

// TimeoutFromContext returns the timeout recorded by ContextWithTimeout.
func TimeoutFromContext(ctx context.Context) (time.Duration, bool) {
	if ctx == nil {
		return 0, false
	}
	d, ok := ctx.Value(timeoutKey{}).(time.Duration)
	return d, ok
}

// attemptTimeout turns the recorded timeout into a deadline for one attempt,
// released when the body is closed.
type attemptTimeout struct {
	next http.RoundTripper
}

func (a attemptTimeout) RoundTrip(req *http.Request) (*http.Response, error) {
	d, ok := TimeoutFromContext(req.Context())
	if !ok || d <= 0 {
		return a.next.RoundTrip(req)
	}
	ctx, cancel := context.WithTimeout(req.Context(), d)
	resp, err := a.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return resp, err
	}
	if resp.Body == nil {
		cancel()
		return resp, nil
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelBody releases the attempt deadline once the body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
