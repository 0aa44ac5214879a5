package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RequestOption adjusts a single request built by Session.NewRequest.
type RequestOption func(*requestSpec)

// requestSpec collects what the options asked for. It is turned into an
// *http.Request by build once the URL has been resolved.
type requestSpec struct {
	header  http.Header
	query   url.Values
	timeout time.Duration

	// payload is replayable; stream is sent once.
	payload     []byte
	stream      io.Reader
	contentType string
	err         error

	auth func(*http.Request)
}

func (r *requestSpec) headers() http.Header {
	if r.header == nil {
		r.header = make(http.Header)
	}
	return r.header
}

// WithHeader sets a header, replacing the session default of the same name.
func WithHeader(key, value string) RequestOption {
	return func(r *requestSpec) { r.headers().Set(key, value) }
}

func WithHeaders(h http.Header) RequestOption {
	return func(r *requestSpec) {
		for k, vv := range h {
			for _, v := range vv {
				r.headers().Add(k, v)
			}
		}
	}
}

func WithQuery(values url.Values) RequestOption {
	return func(r *requestSpec) {
		for k, vv := range values {
			for _, v := range vv {
				WithQueryParam(k, v)(r)
			}
		}
	}
}

func WithQueryParam(key, value string) RequestOption {
	return func(r *requestSpec) {
		if r.query == nil {
			r.query = make(url.Values)
		}
		r.query.Add(key, value)
	}
}

// WithRequestTimeout records an explicit timeout for this request. The mounted
// adapter then skips its default. Non-positive values leave the default in place.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(r *requestSpec) { r.timeout = d }
}

// WithBodyBytes sends b. The body can be replayed on retries and redirects.
func WithBodyBytes(b []byte) RequestOption {
	return func(r *requestSpec) {
		r.payload = append([]byte{}, b...)
		r.stream = nil
	}
}

// WithBody streams rd. Such a request is sent at most once: retries and
// redirects that need the body again fail.
func WithBody(rd io.Reader) RequestOption {
	return func(r *requestSpec) {
		r.stream = rd
		r.payload = nil
	}
}

// WithJSON sends v encoded as JSON. Encoding errors are reported by NewRequest.
func WithJSON(v any) RequestOption {
	return func(r *requestSpec) {
		b, err := json.Marshal(v)
		if err != nil {
			r.err = err
			return
		}
		WithBodyBytes(b)(r)
		r.contentType = "application/json"
	}
}

func WithBearerToken(token string) RequestOption {
	return func(r *requestSpec) {
		r.auth = func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }
	}
}

func WithBasicAuth(user, pass string) RequestOption {
	return func(r *requestSpec) {
		r.auth = func(req *http.Request) { req.SetBasicAuth(user, pass) }
	}
}

func (r *requestSpec) body() io.Reader {
	if r.payload != nil {
		return bytes.NewReader(r.payload)
	}
	return r.stream
}

// NewRequest builds a request against the session's BaseURL. Headers are
// layered as session defaults, then options, then User-Agent, auth and
// request id where the caller left them unset.
func (s *Session) NewRequest(ctx context.Context, method, path string, opts ...RequestOption) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var spec requestSpec
	for _, o := range opts {
		if o != nil {
			o(&spec)
		}
	}
	if spec.err != nil {
		return nil, spec.err
	}

	u, err := s.resolveURL(path, spec.query)
	if err != nil {
		return nil, err
	}
	if spec.timeout > 0 {
		ctx = ContextWithTimeout(ctx, spec.timeout)
	}

	// NewRequestWithContext sets GetBody for a *bytes.Reader, so payloads replay.
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), u.String(), spec.body())
	if err != nil {
		return nil, err
	}

	for k, vv := range s.defaultHeaders {
		req.Header[k] = append([]string(nil), vv...)
	}
	for k, vv := range spec.header {
		req.Header[k] = append([]string(nil), vv...)
	}
	setIfEmpty(req.Header, "Content-Type", spec.contentType)
	setIfEmpty(req.Header, "User-Agent", s.userAgent)
	if spec.auth != nil && req.Header.Get("Authorization") == "" {
		spec.auth(req)
	}
	s.requestID.stamp(req)
	return req, nil
}

func setIfEmpty(h http.Header, key, value string) {
	if value != "" && h.Get(key) == "" {
		h.Set(key, value)
	}
}
