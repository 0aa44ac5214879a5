package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

func (s *Session) NewJSONRequest(ctx context.Context, method, path string, body any, opts ...RequestOption) (*http.Request, error) {
	opts2 := make([]RequestOption, 0, len(opts)+1)
	opts2 = append(opts2, WithJSON(body))
	opts2 = append(opts2, opts...)
	req, err := s.NewRequest(ctx, method, path, opts2...)
	if err != nil {
		return nil, err
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	return req, nil
}

// DoJSONInto sends req and decodes a JSON response into dst.
// Non-2xx responses are an *Error even when the session does not raise for status.
// The response body is always closed.
func (s *Session) DoJSONInto(req *http.Request, dst any) (*http.Response, error) {
	return s.doJSON(req, dst, false)
}

// DoJSONIntoStrict is like DoJSONInto but rejects unknown fields.
func (s *Session) DoJSONIntoStrict(req *http.Request, dst any) (*http.Response, error) {
	return s.doJSON(req, dst, true)
}

func (s *Session) doJSON(req *http.Request, dst any, strict bool) (*http.Response, error) {
	resp, err := s.Do(req)
	if err != nil {
		return resp, err
	}
	if resp == nil || resp.Body == nil {
		return resp, errors.New("nil response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if serr := s.raiseForStatus(resp); serr != nil {
			return resp, serr
		}
		_ = resp.Body.Close()
		return resp, &Error{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Response:   resp,
			Cause:      errors.New(http.StatusText(resp.StatusCode)),
		}
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		return resp, err
	}
	// Reject trailing non-whitespace payload.
	var extra any
	if err := dec.Decode(&extra); err != nil && !errors.Is(err, io.EOF) {
		return resp, err
	}
	if extra != nil {
		return resp, errors.New("unexpected extra JSON value in response body")
	}
	return resp, nil
}

// DoJSON is a generic helper around DoJSONInto.
func DoJSON[T any](s *Session, req *http.Request) (T, *http.Response, error) {
	var out T
	resp, err := s.DoJSONInto(req, &out)
	if err != nil {
		var zero T
		return zero, resp, err
	}
	return out, resp, nil
}
