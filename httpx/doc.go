// Package httpx provides an HTTP session with sane defaults for outbound calls:
// - every request gets a timeout unless the caller picked one
// - transient failures are retried a bounded number of times (idempotent methods by default)
// - 4xx/5xx responses are returned as *Error
//
// HTTP, pooling and TLS are net/http's job; the retry loop and backoff come
// from go-retryablehttp. Each default can be switched off on its own.
package httpx
