package offlinecache

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"strings"

	tee "github.com/always-cache/offline-cache/pkg/response-writer-tee"
)

// Network fetches requests that are not answered from cache.
// An error means the network could not be reached. Any HTTP status,
// including server errors, is a successful fetch.
type Network interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// HTTPNetwork fetches over HTTP. Requests for the scope are sent to the
// origin server, all other requests are sent to the host they name.
type HTTPNetwork struct {
	client     http.Client
	scope      url.URL
	origin     url.URL
	originHost string
}

// NewHTTPNetwork creates a network that maps the scope onto the origin.
// originHost, if not empty, is used as the Host header and TLS server name
// for origin requests, e.g. if the origin URL is just an IP address.
func NewHTTPNetwork(scope, origin url.URL, originHost string) *HTTPNetwork {
	n := &HTTPNetwork{
		scope:      withTrailingSlash(scope),
		origin:     withTrailingSlash(origin),
		originHost: originHost,
		client: http.Client{
			// do not follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	if originHost != "" {
		n.client.Transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				ServerName: originHost,
			},
		}
	}
	return n
}

func (n *HTTPNetwork) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	upstream, toOrigin := n.upstreamURL(req.URL)
	out := req.Clone(ctx)
	out.URL = upstream
	out.Host = upstream.Host
	if toOrigin && n.originHost != "" {
		out.Host = n.originHost
	}
	out.RequestURI = ""
	removeHopHeaders(out.Header)
	return n.client.Do(out)
}

// upstreamURL maps a URL under the scope onto the origin.
// The boolean is true if the resulting URL points to the origin.
func (n *HTTPNetwork) upstreamURL(u *url.URL) (*url.URL, bool) {
	if !sameOrigin(u, &n.scope) {
		return u, false
	}
	rel := *u
	rel.Scheme = ""
	rel.Host = ""
	rel.User = nil
	rel.Fragment = ""
	if strings.HasPrefix(u.Path, n.scope.Path) {
		rel.Path = strings.TrimPrefix(u.Path, n.scope.Path)
	} else {
		rel.Path = "/" + strings.TrimPrefix(u.Path, "/")
	}
	rel.RawPath = ""
	return n.origin.ResolveReference(&rel), true
}

// HandlerNetwork serves requests with an in-process handler,
// e.g. when the cache is used as a middleware in front of a file server.
type HandlerNetwork struct {
	Handler http.Handler
}

func (n HandlerNetwork) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	rw := tee.NewResponseSaver(nil)
	n.Handler.ServeHTTP(rw, req)
	return rw.Result(req), nil
}

// Hop-by-hop headers, which must not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(h http.Header) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

func withTrailingSlash(u url.URL) url.URL {
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
		if u.RawPath != "" {
			u.RawPath += "/"
		}
	}
	return u
}
