package httpx

import (
	"net/http"
	"time"

	"github.com/danihodovic/superrequests/version"
	"github.com/rs/zerolog"
)

// Config configures a Session. Use DefaultConfig() as a baseline.
type Config struct {
	// BaseURL is optional. If set, relative paths passed to NewRequest are resolved against it.
	BaseURL string

	// RaiseForStatus returns 4xx/5xx responses as *Error.
	RaiseForStatus bool

	// StatusValidator replaces RaiseForStatus as the response check when RaiseForStatus is set.
	StatusValidator StatusValidator

	// Timeout is the default timeout of the adapter mounted for http:// and https://.
	// If zero, no adapter is mounted: requests get neither an injected timeout nor retries.
	Timeout time.Duration

	// Retry is handed to the mounted adapter. If nil, requests are not retried.
	Retry *RetryPolicy

	// Pool configures the pooled transport when Transport is nil.
	Pool PoolConfig

	// Transport is the innermost RoundTripper, shared by the adapter and the fallback.
	Transport http.RoundTripper

	// DefaultHeaders are copied into every request (caller headers win).
	DefaultHeaders http.Header

	// UserAgent is set when the request does not already have a User-Agent header.
	UserAgent string

	// MaxErrorBodyBytes limits how many bytes are read into Error.RawBody.
	// If zero, DefaultMaxErrorBodyBytes is used.
	MaxErrorBodyBytes int64

	RequestID RequestIDConfig

	// Middleware wraps the session transport, outermost first.
	Middleware []Middleware

	// MaxRedirects bounds redirect hops. If zero, DefaultMaxRedirects is used.
	MaxRedirects int

	Logger zerolog.Logger
}

const (
	DefaultMaxErrorBodyBytes int64 = 64 << 10 // 64KiB
	DefaultSessionTimeout          = 5 * time.Second
	DefaultMaxRedirects            = 10
)

// DefaultConfig returns the session defaults: raise on 4xx/5xx, a 5s timeout
// and DefaultRetryPolicy(). Every call returns independent values.
func DefaultConfig() Config {
	retry := DefaultRetryPolicy()
	return Config{
		RaiseForStatus:    true,
		Timeout:           DefaultSessionTimeout,
		Retry:             &retry,
		DefaultHeaders:    make(http.Header),
		UserAgent:         version.UserAgent(),
		MaxErrorBodyBytes: DefaultMaxErrorBodyBytes,
		RequestID:         DefaultRequestIDConfig(),
		MaxRedirects:      DefaultMaxRedirects,
		Logger:            zerolog.Nop(),
	}
}
