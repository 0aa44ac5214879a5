package httpx

import "net/http"

// Middleware wraps the session transport, outside the mounted adapters.
// It runs once per hop: retries stay hidden inside the adapter, but each
// redirect the session follows is a separate call.
type Middleware func(next http.RoundTripper) http.RoundTripper

func chain(rt http.RoundTripper, mws []Middleware) http.RoundTripper {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		rt = mws[i](rt)
	}
	return rt
}
