package httpx

import (
	"context"
	"errors"
	"maps"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// RetryPolicy describes which failures are transient and how often they may be retried.
// A policy handed to a TimeoutTransport is copied; changing it afterwards has no effect.
type RetryPolicy struct {
	// Connect bounds retries after errors raised while dialing. Any method may be retried.
	Connect int

	// Read bounds retries after other transport errors (resets, timeouts).
	// Only methods in Methods are retried.
	Read int

	// Total bounds all retries. A request is attempted at most Total+1 times.
	Total int

	// StatusCodes lists response status codes eligible for retries.
	StatusCodes map[int]bool

	// Methods lists HTTP methods eligible for status and read retries.
	Methods map[string]bool

	// BackoffFactor is the wait before the first retry; it doubles for each later one.
	// Zero retries immediately.
	BackoffFactor time.Duration

	// BackoffMax caps a single backoff wait.
	BackoffMax time.Duration

	// RespectRetryAfter uses the Retry-After header of 429/503 responses as the wait.
	RespectRetryAfter bool

	// RaiseOnStatus makes exhaustion on a retryable status an error.
	// When false the last response is returned instead.
	RaiseOnStatus bool
}

const DefaultBackoffMax = 120 * time.Second

// DefaultRetryPolicy returns a new policy on every call:
// three retries for HEAD, GET and OPTIONS on 429, 500, 502, 503 and 504.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Connect:           3,
		Read:              3,
		Total:             3,
		StatusCodes:       defaultRetryStatusCodes(),
		Methods:           defaultRetryMethods(),
		BackoffFactor:     0,
		BackoffMax:        DefaultBackoffMax,
		RespectRetryAfter: true,
		RaiseOnStatus:     true,
	}
}

func defaultRetryMethods() map[string]bool {
	return map[string]bool{
		http.MethodHead:    true,
		http.MethodGet:     true,
		http.MethodOptions: true,
	}
}

func defaultRetryStatusCodes() map[int]bool {
	return map[int]bool{
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
		http.StatusServiceUnavailable:  true,
		http.StatusGatewayTimeout:      true,
	}
}

// clone returns a deep copy so the maps are never shared with the caller.
func (p RetryPolicy) clone() RetryPolicy {
	p.StatusCodes = maps.Clone(p.StatusCodes)
	methods := make(map[string]bool, len(p.Methods))
	for m, ok := range p.Methods {
		methods[strings.ToUpper(strings.TrimSpace(m))] = ok
	}
	p.Methods = methods
	return p
}

func (p RetryPolicy) canRetryMethod(method string) bool {
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		return false
	}
	return p.Methods[m]
}

func (p RetryPolicy) canRetryStatus(code int) bool {
	return p.StatusCodes[code]
}

// attempts tracks the per-request connect and read budgets. The retry loop of a
// single request is sequential, so no locking is needed.
type attempts struct {
	method  string
	connect int
	read    int
}

type attemptsKey struct{}

func withAttempts(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, attemptsKey{}, &attempts{method: method})
}

func attemptsFrom(ctx context.Context) *attempts {
	if a, ok := ctx.Value(attemptsKey{}).(*attempts); ok {
		return a
	}
	return &attempts{}
}

func spend(used *int, limit int) bool {
	if *used >= limit {
		return false
	}
	*used++
	return true
}

// checkRetry is the retryablehttp.CheckRetry for this policy.
// Total is enforced by the client's RetryMax.
func (p RetryPolicy) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		// Certificate, scheme and redirect failures will not get better on retry.
		if ok, _ := retryablehttp.DefaultRetryPolicy(ctx, nil, err); !ok {
			return false, nil
		}
		a := attemptsFrom(ctx)
		if isConnectError(err) {
			return spend(&a.connect, p.Connect), nil
		}
		if !p.canRetryMethod(a.method) {
			return false, nil
		}
		return spend(&a.read, p.Read), nil
	}
	if resp == nil || resp.Request == nil {
		return false, nil
	}
	return p.canRetryMethod(resp.Request.Method) && p.canRetryStatus(resp.StatusCode), nil
}

// backoff is the retryablehttp.Backoff for this policy.
func (p RetryPolicy) backoff(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	if !p.RespectRetryAfter {
		resp = nil
	}
	return retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
}

func isConnectError(err error) bool {
	var oe *net.OpError
	return errors.As(err, &oe) && oe.Op == "dial"
}
