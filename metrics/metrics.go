// Package metrics exposes Prometheus metrics for session traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/danihodovic/superrequests/httpx"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector counts requests sent through a session. Retries inside the adapter
// are folded into one observation; every redirect hop is observed on its own.
type Collector struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

func New(namespace string) *Collector {
	return &Collector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_client_requests_total",
				Help:      "Outbound HTTP requests by method, host and status code.",
			},
			[]string{"method", "host", "code"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_client_request_duration_seconds",
				Help:      "Outbound HTTP request latency in seconds, retries included.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "host"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_client_requests_in_flight",
			Help:      "Outbound HTTP requests currently waiting for a response.",
		}),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.requests.Describe(ch)
	c.latency.Describe(ch)
	c.inFlight.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.requests.Collect(ch)
	c.latency.Collect(ch)
	c.inFlight.Collect(ch)
}

// Middleware records every request passing through the session transport.
// Transport failures are counted with code "error".
func (c *Collector) Middleware() httpx.Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return httpx.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			c.inFlight.Inc()
			defer c.inFlight.Dec()

			start := time.Now()
			resp, err := next.RoundTrip(req)
			host := req.URL.Host

			c.latency.WithLabelValues(req.Method, host).Observe(time.Since(start).Seconds())
			code := "error"
			if err == nil && resp != nil {
				code = strconv.Itoa(resp.StatusCode)
			}
			c.requests.WithLabelValues(req.Method, host, code).Inc()
			return resp, err
		})
	}
}
