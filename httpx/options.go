package httpx

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type Option interface{ apply(*Config) }

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

func WithBaseURL(baseURL string) Option {
	return optionFunc(func(c *Config) { c.BaseURL = baseURL })
}

// WithTimeout sets the default request timeout. Zero behaves like WithoutTimeout.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.Timeout = d })
}

// WithoutTimeout skips adapter mounting. Retries are disabled with it.
func WithoutTimeout() Option {
	return optionFunc(func(c *Config) { c.Timeout = 0 })
}

func WithRetry(p RetryPolicy) Option {
	return optionFunc(func(c *Config) { c.Retry = &p })
}

func WithoutRetry() Option {
	return optionFunc(func(c *Config) { c.Retry = nil })
}

func WithRaiseForStatus(enabled bool) Option {
	return optionFunc(func(c *Config) { c.RaiseForStatus = enabled })
}

// WithStatusValidator installs v as the response check and enables it.
func WithStatusValidator(v StatusValidator) Option {
	return optionFunc(func(c *Config) {
		c.StatusValidator = v
		c.RaiseForStatus = v != nil
	})
}

func WithPool(p PoolConfig) Option {
	return optionFunc(func(c *Config) { c.Pool = p })
}

func WithTransport(rt http.RoundTripper) Option {
	return optionFunc(func(c *Config) { c.Transport = rt })
}

func WithDefaultHeader(key, value string) Option {
	return optionFunc(func(c *Config) {
		if c.DefaultHeaders == nil {
			c.DefaultHeaders = make(http.Header)
		}
		c.DefaultHeaders.Set(key, value)
	})
}

func WithDefaultHeaders(h http.Header) Option {
	return optionFunc(func(c *Config) {
		if h == nil {
			return
		}
		if c.DefaultHeaders == nil {
			c.DefaultHeaders = make(http.Header)
		}
		for k, vv := range h {
			for _, v := range vv {
				c.DefaultHeaders.Add(k, v)
			}
		}
	})
}

func WithUserAgent(ua string) Option {
	return optionFunc(func(c *Config) { c.UserAgent = ua })
}

func WithMaxErrorBodyBytes(n int64) Option {
	return optionFunc(func(c *Config) { c.MaxErrorBodyBytes = n })
}

func WithRequestID(cfg RequestIDConfig) Option {
	return optionFunc(func(c *Config) { c.RequestID = cfg })
}

func WithMiddleware(mws ...Middleware) Option {
	return optionFunc(func(c *Config) { c.Middleware = append(c.Middleware, mws...) })
}

func WithMaxRedirects(n int) Option {
	return optionFunc(func(c *Config) { c.MaxRedirects = n })
}

func WithLogger(l zerolog.Logger) Option {
	return optionFunc(func(c *Config) { c.Logger = l })
}
