package httpx

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
)

type RequestIDFunc func() string

// RequestIDConfig tags outgoing requests so a failed call can be matched with
// server logs. The id is set once per logical request; retries reuse it.
type RequestIDConfig struct {
	// Header carries the id. Empty disables tagging.
	Header string

	// New generates ids. If nil, DefaultRequestID is used.
	New RequestIDFunc
}

func DefaultRequestIDConfig() RequestIDConfig {
	return RequestIDConfig{Header: "X-Request-ID", New: DefaultRequestID}
}

// DefaultRequestID returns 16 random bytes, hex encoded, or "" if the system
// random source fails.
func DefaultRequestID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(b[:])
}

// stamp sets the id header unless the caller already did.
func (c RequestIDConfig) stamp(req *http.Request) {
	if c.Header == "" || req.Header.Get(c.Header) != "" {
		return
	}
	gen := c.New
	if gen == nil {
		gen = DefaultRequestID
	}
	if id := strings.TrimSpace(gen()); id != "" {
		req.Header.Set(c.Header, id)
	}
}

// lookup returns the id echoed by the server, falling back to the one sent.
func (c RequestIDConfig) lookup(resp *http.Response) string {
	if c.Header == "" || resp == nil {
		return ""
	}
	if id := strings.TrimSpace(resp.Header.Get(c.Header)); id != "" {
		return id
	}
	if resp.Request != nil {
		return strings.TrimSpace(resp.Request.Header.Get(c.Header))
	}
	return ""
}
