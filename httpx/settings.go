package httpx

import (
	"strings"
	"time"
)

// Settings is the file and environment form of Config, decoded by the config package.
// Unset fields keep the DefaultConfig() value.
type Settings struct {
	BaseURL        string            `mapstructure:"base_url"`
	RaiseForStatus *bool             `mapstructure:"raise_for_status"`
	Timeout        *time.Duration    `mapstructure:"timeout"` // 0 disables the adapter
	UserAgent      string            `mapstructure:"user_agent"`
	Headers        map[string]string `mapstructure:"headers"`
	MaxRedirects   int               `mapstructure:"max_redirects"`
	Retry          RetrySettings     `mapstructure:"retry"`
	Pool           PoolSettings      `mapstructure:"pool"`
}

type RetrySettings struct {
	Disabled          bool           `mapstructure:"disabled"`
	Connect           *int           `mapstructure:"connect"`
	Read              *int           `mapstructure:"read"`
	Total             *int           `mapstructure:"total"`
	StatusForcelist   []int          `mapstructure:"status_forcelist"`
	AllowedMethods    []string       `mapstructure:"allowed_methods"`
	BackoffFactor     *time.Duration `mapstructure:"backoff_factor"`
	BackoffMax        *time.Duration `mapstructure:"backoff_max"`
	RespectRetryAfter *bool          `mapstructure:"respect_retry_after"`
	RaiseOnStatus     *bool          `mapstructure:"raise_on_status"`
}

type PoolSettings struct {
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	DisableHTTP2        bool          `mapstructure:"disable_http2"`
}

// Config converts s onto DefaultConfig().
func (s Settings) Config() Config {
	cfg := DefaultConfig()
	cfg.BaseURL = s.BaseURL
	if s.RaiseForStatus != nil {
		cfg.RaiseForStatus = *s.RaiseForStatus
	}
	if s.Timeout != nil {
		cfg.Timeout = *s.Timeout
	}
	if s.UserAgent != "" {
		cfg.UserAgent = s.UserAgent
	}
	for k, v := range s.Headers {
		cfg.DefaultHeaders.Set(k, v)
	}
	if s.MaxRedirects > 0 {
		cfg.MaxRedirects = s.MaxRedirects
	}
	cfg.Retry = s.Retry.policy()
	cfg.Pool = PoolConfig{
		DialTimeout:         s.Pool.DialTimeout,
		TLSHandshakeTimeout: s.Pool.TLSHandshakeTimeout,
		IdleConnTimeout:     s.Pool.IdleConnTimeout,
		MaxIdleConns:        s.Pool.MaxIdleConns,
		MaxIdleConnsPerHost: s.Pool.MaxIdleConnsPerHost,
		MaxConnsPerHost:     s.Pool.MaxConnsPerHost,
		DisableHTTP2:        s.Pool.DisableHTTP2,
	}
	return cfg
}

func (r RetrySettings) policy() *RetryPolicy {
	if r.Disabled {
		return nil
	}
	p := DefaultRetryPolicy()
	setInt(&p.Connect, r.Connect)
	setInt(&p.Read, r.Read)
	setInt(&p.Total, r.Total)
	if len(r.StatusForcelist) > 0 {
		p.StatusCodes = make(map[int]bool, len(r.StatusForcelist))
		for _, code := range r.StatusForcelist {
			p.StatusCodes[code] = true
		}
	}
	if len(r.AllowedMethods) > 0 {
		p.Methods = make(map[string]bool, len(r.AllowedMethods))
		for _, m := range r.AllowedMethods {
			p.Methods[strings.ToUpper(strings.TrimSpace(m))] = true
		}
	}
	if r.BackoffFactor != nil {
		p.BackoffFactor = *r.BackoffFactor
	}
	if r.BackoffMax != nil {
		p.BackoffMax = *r.BackoffMax
	}
	if r.RespectRetryAfter != nil {
		p.RespectRetryAfter = *r.RespectRetryAfter
	}
	if r.RaiseOnStatus != nil {
		p.RaiseOnStatus = *r.RaiseOnStatus
	}
	return &p
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
