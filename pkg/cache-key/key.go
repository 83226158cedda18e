package cachekey

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrMalformedKey = errors.New("malformed cache key")

const methodSeparator = " "

// Key returns the identity of a request inside a cache store.
// It is the request method followed by the absolute request URL.
// Fragments never reach a server and are not part of the identity.
func Key(r *http.Request) string {
	u := *r.URL
	u.Fragment = ""
	u.RawFragment = ""
	if u.Host == "" && r.Host != "" {
		u.Host = r.Host
	}
	if u.Host != "" && u.Scheme == "" {
		u.Scheme = "http"
		if r.TLS != nil {
			u.Scheme = "https"
		}
	}
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	return method + methodSeparator + u.String()
}

// Request creates a request that is cache-wise equal to the request
// that resulted in the provided key.
func Request(key string) (*http.Request, error) {
	method, rawURL, found := strings.Cut(key, methodSeparator)
	if !found || method == "" || rawURL == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	req, err := http.NewRequest(method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return req, nil
}
