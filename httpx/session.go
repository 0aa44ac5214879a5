package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Session is a reusable client preconfigured with a timeout adapter, a retry
// policy and a status check. Its configuration is fixed by New; requests may be
// issued concurrently as far as net/http allows. Session adds no locking.
type Session struct {
	httpClient *http.Client
	mounts     *mountTable

	baseURL *url.URL

	defaultHeaders http.Header
	userAgent      string
	maxErrBody     int64
	requestID      RequestIDConfig

	validate StatusValidator
	log      zerolog.Logger
}

// New constructs a Session from DefaultConfig() plus the provided options.
func New(opts ...Option) (*Session, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		if o != nil {
			o.apply(&cfg)
		}
	}
	return NewWithConfig(cfg)
}

func NewWithConfig(cfg Config) (*Session, error) {
	var bu *url.URL
	if strings.TrimSpace(cfg.BaseURL) != "" {
		u, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, &url.Error{Op: "parse", URL: cfg.BaseURL, Err: errors.New("base url must be absolute")}
		}
		// Treat the BaseURL path as a prefix so relative paths resolve below it.
		if u.Path != "" && !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		bu = u
	}

	base := cfg.Transport
	if base == nil {
		base = NewTransport(cfg.Pool)
	}
	mt := &mountTable{fallback: base}
	if cfg.Timeout > 0 {
		adapter := NewTimeoutTransport(TransportConfig{
			Timeout: cfg.Timeout,
			Retry:   cfg.Retry,
			Pool:    cfg.Pool,
			Base:    base,
			Logger:  cfg.Logger,
		})
		mt.add("http://", adapter)
		mt.add("https://", adapter)
	}

	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}
	maxErrBody := cfg.MaxErrorBodyBytes
	if maxErrBody == 0 {
		maxErrBody = DefaultMaxErrorBodyBytes
	}

	hdr := make(http.Header)
	for k, vv := range cfg.DefaultHeaders {
		for _, v := range vv {
			hdr.Add(k, v)
		}
	}

	s := &Session{
		httpClient: &http.Client{
			Transport: chain(mt, cfg.Middleware),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		mounts:         mt,
		baseURL:        bu,
		defaultHeaders: hdr,
		userAgent:      cfg.UserAgent,
		maxErrBody:     maxErrBody,
		requestID:      cfg.RequestID,
		log:            cfg.Logger,
	}
	if cfg.RaiseForStatus {
		s.validate = cfg.StatusValidator
		if s.validate == nil {
			s.validate = s.raiseForStatus
		}
	}
	return s, nil
}

// Mount routes requests whose URL starts with prefix (case-insensitive) to rt.
// The longest matching prefix wins. Call it before the session is used concurrently.
func (s *Session) Mount(prefix string, rt http.RoundTripper) {
	s.mounts.add(prefix, rt)
}

// Adapter returns the RoundTripper that would serve rawURL.
func (s *Session) Adapter(rawURL string) http.RoundTripper {
	return s.mounts.lookup(rawURL)
}

// Mounts lists the mounted prefixes, longest first.
func (s *Session) Mounts() []string {
	return s.mounts.prefixes()
}

// Close releases idle pooled connections. The session remains usable.
func (s *Session) Close() {
	s.mounts.CloseIdleConnections()
}

func (s *Session) raiseForStatus(resp *http.Response) error {
	return statusError(resp, s.maxErrBody, s.requestID.Header)
}

// Do sends req through the mounted adapters and validates the response.
// Transport errors are returned unchanged. A failed validation returns both
// the response and the validator's error.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Debug().
			Str("method", req.Method).
			Str("url", req.URL.String()).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("http_request")
		return resp, err
	}
	s.log.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("http_request")

	if s.validate != nil {
		if verr := s.validate(resp); verr != nil {
			return resp, verr
		}
	}
	return resp, nil
}

// Request builds a request with NewRequest and sends it with Do.
func (s *Session) Request(ctx context.Context, method, path string, opts ...RequestOption) (*http.Response, error) {
	req, err := s.NewRequest(ctx, method, path, opts...)
	if err != nil {
		return nil, err
	}
	return s.Do(req)
}

func (s *Session) Get(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return s.Request(ctx, http.MethodGet, path, opts...)
}

func (s *Session) Head(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return s.Request(ctx, http.MethodHead, path, opts...)
}

func (s *Session) Options(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return s.Request(ctx, http.MethodOptions, path, opts...)
}

func (s *Session) Post(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return s.Request(ctx, http.MethodPost, path, opts...)
}

func (s *Session) Put(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return s.Request(ctx, http.MethodPut, path, opts...)
}

func (s *Session) Patch(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return s.Request(ctx, http.MethodPatch, path, opts...)
}

func (s *Session) Delete(ctx context.Context, path string, opts ...RequestOption) (*http.Response, error) {
	return s.Request(ctx, http.MethodDelete, path, opts...)
}

func (s *Session) resolveURL(path string, q url.Values) (*url.URL, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty url/path")
	}
	u, err := url.Parse(p)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		if s.baseURL == nil {
			return nil, errors.New("relative path requires BaseURL")
		}
		// A leading "/" stays below the BaseURL path prefix.
		if strings.HasPrefix(u.Path, "/") {
			u2 := *u
			u2.Path = strings.TrimPrefix(u2.Path, "/")
			u = &u2
		}
		u = s.baseURL.ResolveReference(u)
	} else {
		u2 := *u
		u = &u2
	}
	if q != nil {
		qq := u.Query()
		for k, vv := range q {
			for _, v := range vv {
				qq.Add(k, v)
			}
		}
		u.RawQuery = qq.Encode()
	}
	return u, nil
}
