package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error is returned for responses whose status indicates a client or server error.
// Transport failures are never wrapped in Error; they surface as returned by net/http.
type Error struct {
	Method string
	URL    string

	StatusCode int

	// RequestID is taken from the response, or the request when the server did not echo it.
	RequestID string

	// RetryAfter is parsed from Retry-After when present.
	RetryAfter time.Duration

	// RawBody is a truncated copy of the response body.
	RawBody []byte

	// Response is the response that failed validation. Its body holds RawBody.
	Response *http.Response

	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if strings.TrimSpace(e.Method) != "" {
		b.WriteString(strings.ToUpper(strings.TrimSpace(e.Method)))
		b.WriteString(" ")
	}
	if strings.TrimSpace(e.URL) != "" {
		b.WriteString(strings.TrimSpace(e.URL))
		b.WriteString(": ")
	}
	b.WriteString(fmt.Sprintf("http %d", e.StatusCode))
	if t := strings.TrimSpace(http.StatusText(e.StatusCode)); t != "" {
		b.WriteString(" ")
		b.WriteString(t)
	}
	if e.RequestID != "" {
		b.WriteString(" request_id=")
		b.WriteString(e.RequestID)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// ClientError reports a 4xx status.
func (e *Error) ClientError() bool { return e.StatusCode >= 400 && e.StatusCode < 500 }

// ServerError reports a 5xx status.
func (e *Error) ServerError() bool { return e.StatusCode >= 500 && e.StatusCode < 600 }

// AsError extracts *Error.
func AsError(err error) (*Error, bool) {
	var he *Error
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

func IsHTTPStatus(err error, code int) bool {
	he, ok := AsError(err)
	return ok && he.StatusCode == code
}

// StatusValidator inspects every response before the session returns it.
// A non-nil error is returned to the caller together with the response.
type StatusValidator func(resp *http.Response) error

// RaiseForStatus is a StatusValidator that fails 4xx and 5xx responses.
func RaiseForStatus(resp *http.Response) error {
	return statusError(resp, DefaultMaxErrorBodyBytes, "")
}

func statusError(resp *http.Response, maxErrBody int64, requestIDHeader string) error {
	if resp == nil || resp.StatusCode < 400 || resp.StatusCode > 599 {
		return nil
	}
	var raw []byte
	if resp.Body != nil {
		if maxErrBody > 0 {
			raw, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		}
		_ = resp.Body.Close()
	}
	// Keep the captured bytes readable without holding the connection open.
	resp.Body = io.NopCloser(bytes.NewReader(raw))

	e := &Error{
		StatusCode: resp.StatusCode,
		RawBody:    raw,
		Response:   resp,
		Cause:      errors.New(http.StatusText(resp.StatusCode)),
	}
	e.RetryAfter, _ = parseRetryAfter(resp, time.Now())
	if req := resp.Request; req != nil {
		e.Method = req.Method
		if req.URL != nil {
			e.URL = req.URL.String()
		}
	}
	e.RequestID = RequestIDConfig{Header: requestIDHeader}.lookup(resp)
	return e
}

func parseRetryAfter(resp *http.Response, now time.Time) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
