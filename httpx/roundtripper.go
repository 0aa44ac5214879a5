package httpx

import (
	"net/http"
	"sort"
	"strings"
)

// RoundTripperFunc adapts a function to an http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type mount struct {
	prefix string
	rt     http.RoundTripper
}

// mountTable dispatches a request to the adapter mounted under the longest
// matching URL prefix, or to fallback when nothing matches.
type mountTable struct {
	mounts   []mount
	fallback http.RoundTripper
}

func (m *mountTable) add(prefix string, rt http.RoundTripper) {
	key := strings.ToLower(prefix)
	for i := range m.mounts {
		if m.mounts[i].prefix == key {
			m.mounts[i].rt = rt
			return
		}
	}
	m.mounts = append(m.mounts, mount{prefix: key, rt: rt})
	sort.SliceStable(m.mounts, func(i, j int) bool {
		return len(m.mounts[i].prefix) > len(m.mounts[j].prefix)
	})
}

func (m *mountTable) lookup(rawURL string) http.RoundTripper {
	u := strings.ToLower(rawURL)
	for _, mt := range m.mounts {
		if strings.HasPrefix(u, mt.prefix) {
			return mt.rt
		}
	}
	return m.fallback
}

func (m *mountTable) prefixes() []string {
	out := make([]string, 0, len(m.mounts))
	for _, mt := range m.mounts {
		out = append(out, mt.prefix)
	}
	return out
}

func (m *mountTable) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.lookup(req.URL.String()).RoundTrip(req)
}

// CloseIdleConnections forwards to every adapter that supports it. An adapter
// mounted under several prefixes is closed more than once, which is harmless.
func (m *mountTable) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	for _, mt := range m.mounts {
		if ci, ok := mt.rt.(closeIdler); ok {
			ci.CloseIdleConnections()
		}
	}
	if ci, ok := m.fallback.(closeIdler); ok {
		ci.CloseIdleConnections()
	}
}
