package httpx

import (
	"net"
	"net/http"
	"time"
)

// PoolConfig sizes the pooled *http.Transport shared by a session's adapters and
// its fallback. Zero fields take the DefaultPoolConfig value.
// Response waits are bounded per attempt by the adapter, not here.
type PoolConfig struct {
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	IdleConnTimeout     time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	DisableHTTP2        bool
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		DialTimeout:         5 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 50,
	}
}

// withDefaults fills zero fields from DefaultPoolConfig.
func (p PoolConfig) withDefaults() PoolConfig {
	d := DefaultPoolConfig()
	if p.DialTimeout <= 0 {
		p.DialTimeout = d.DialTimeout
	}
	if p.TLSHandshakeTimeout <= 0 {
		p.TLSHandshakeTimeout = d.TLSHandshakeTimeout
	}
	if p.IdleConnTimeout <= 0 {
		p.IdleConnTimeout = d.IdleConnTimeout
	}
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = d.MaxIdleConns
	}
	if p.MaxIdleConnsPerHost <= 0 {
		p.MaxIdleConnsPerHost = d.MaxIdleConnsPerHost
	}
	return p
}

// NewTransport clones http.DefaultTransport, keeping its proxy-from-environment
// behavior, and applies cfg. MaxConnsPerHost of zero means unlimited.
func NewTransport(cfg PoolConfig) *http.Transport {
	cfg = cfg.withDefaults()

	var t *http.Transport
	if base, ok := http.DefaultTransport.(*http.Transport); ok {
		t = base.Clone()
	} else {
		t = &http.Transport{Proxy: http.ProxyFromEnvironment, ExpectContinueTimeout: time.Second}
	}
	t.DialContext = (&net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = cfg.TLSHandshakeTimeout
	t.IdleConnTimeout = cfg.IdleConnTimeout
	t.MaxIdleConns = cfg.MaxIdleConns
	t.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	t.MaxConnsPerHost = cfg.MaxConnsPerHost
	t.ForceAttemptHTTP2 = !cfg.DisableHTTP2
	return t
}
