package offlinecache

import (
	"io"
	"net/http"
	"strings"

	serializer "github.com/always-cache/offline-cache/pkg/response-serializer"
	"github.com/always-cache/offline-cache/rfc9211"

	"github.com/go-chi/render"
)

const (
	// cacheStatusName identifies this cache in Cache-Status headers.
	cacheStatusName = "OfflineCache"

	// key of the page served to navigations while offline
	navigationFallback = "./index.html"

	offlineNavigationBody = "Sin conexión y sin caché para index.html"
	offlineResourceBody   = "Sin conexión y recurso no cacheado."
)

// Strategy names, used as Cache-Status detail.
const (
	StrategyNavigate       = "navigate"
	StrategyPrecache       = "precache"
	StrategyNetworkFirst   = "network-first"
	StrategyStaleIfOffline = "stale-if-offline"
)

// Respond picks a strategy for the request and produces the response.
// The boolean is false if the request is not intercepted at all (anything
// but GET) and must be sent to the network untouched.
// Network failures never surface as errors, except for a third-party
// request that was never cached, which returns ErrNoResponse.
func (w *Worker) Respond(r *http.Request) (*http.Response, bool, error) {
	if r.Method != http.MethodGet {
		return nil, false, nil
	}

	req := w.absoluteRequest(r)
	log := w.log.With().Str("url", req.URL.String()).Logger()

	switch {
	case isNavigation(req):
		log.Trace().Msg("Navigation")
		return w.navigate(req), true, nil
	case w.manifest.Matches(req.URL.Path):
		log.Trace().Msg("Precached asset")
		res, err := w.cacheFirst(req)
		return res, true, err
	case sameOrigin(req.URL, &w.scope):
		log.Trace().Msg("Same-origin request")
		return w.networkFirst(req), true, nil
	default:
		log.Trace().Msg("Third-party request")
		res, err := w.staleIfOffline(req)
		return res, true, err
	}
}

// navigate tries the network and keeps the page as the offline fallback.
func (w *Worker) navigate(req *http.Request) *http.Response {
	cs := rfc9211.CacheStatus{Cache: cacheStatusName, Detail: StrategyNavigate}
	fallback, err := w.scopedRequest(req.Context(), navigationFallback)
	if err != nil {
		// the fallback path is a constant
		panic(err)
	}

	if res, clone, ok := w.fetch(req); ok {
		cs.Forward(rfc9211.FwdReasonRequest)
		cs.FwdStatus = res.StatusCode
		cs.Stored = w.put(w.config.RuntimeCacheName(), fallback, clone)
		return annotate(res, cs)
	}

	if cached := w.match(fallback); cached != nil {
		cs.SetHit()
		return annotate(cached, cs)
	}
	cs.Forward(rfc9211.FwdReasonUriMiss)
	return annotate(offlineResponse(req, offlineNavigationBody), cs)
}

// cacheFirst answers from any store and only goes to the network on a miss.
// The network response is not stored.
func (w *Worker) cacheFirst(req *http.Request) (*http.Response, error) {
	cs := rfc9211.CacheStatus{Cache: cacheStatusName, Detail: StrategyPrecache}
	if cached := w.match(req); cached != nil {
		cs.SetHit()
		return annotate(cached, cs), nil
	}
	res, err := w.network.Fetch(req.Context(), req)
	if err != nil {
		w.log.Debug().Err(err).Str("url", req.URL.String()).Msg("Precached asset neither cached nor reachable")
		return nil, ErrNoResponse
	}
	cs.Forward(rfc9211.FwdReasonUriMiss)
	cs.FwdStatus = res.StatusCode
	return annotate(res, cs), nil
}

// networkFirst stores every network response in the runtime store and
// falls back to the stores when the network cannot be reached.
func (w *Worker) networkFirst(req *http.Request) *http.Response {
	cs := rfc9211.CacheStatus{Cache: cacheStatusName, Detail: StrategyNetworkFirst}
	runtimeName := w.config.RuntimeCacheName()
	runtime, err := w.storage.Open(runtimeName)
	if err != nil {
		w.log.Error().Err(err).Str("cache", runtimeName).Msg("Could not open runtime store")
	}

	if res, clone, ok := w.fetch(req); ok {
		cs.Forward(rfc9211.FwdReasonRequest)
		cs.FwdStatus = res.StatusCode
		cs.Stored = w.put(runtimeName, req, clone)
		return annotate(res, cs)
	}

	if runtime != nil {
		if cached, err := runtime.Match(req); err != nil {
			w.log.Error().Err(err).Str("cache", runtimeName).Msg("Could not read runtime store")
		} else if cached != nil {
			cs.SetHit()
			return annotate(cached, cs)
		}
	}
	if cached := w.match(req); cached != nil {
		cs.SetHit()
		return annotate(cached, cs)
	}
	cs.Forward(rfc9211.FwdReasonUriMiss)
	return annotate(offlineResponse(req, offlineResourceBody), cs)
}

// staleIfOffline returns the network response right away and stores it in
// the background. Offline, any stored copy is served.
func (w *Worker) staleIfOffline(req *http.Request) (*http.Response, error) {
	cs := rfc9211.CacheStatus{Cache: cacheStatusName, Detail: StrategyStaleIfOffline}

	if res, clone, ok := w.fetch(req); ok {
		w.background(func() {
			w.put(w.config.RuntimeCacheName(), req, clone)
		})
		cs.Forward(rfc9211.FwdReasonRequest)
		cs.FwdStatus = res.StatusCode
		return annotate(res, cs), nil
	}

	if cached := w.match(req); cached != nil {
		cs.SetHit()
		return annotate(cached, cs), nil
	}
	return nil, ErrNoResponse
}

// fetch gets the request from the network and makes a copy of the response for storing.
// The boolean is false if the network could not be reached or the body could not be read.
func (w *Worker) fetch(req *http.Request) (*http.Response, *http.Response, bool) {
	res, err := w.network.Fetch(req.Context(), req)
	if err != nil {
		w.log.Debug().Err(err).Str("url", req.URL.String()).Msg("Network unavailable")
		return nil, nil, false
	}
	clone, err := serializer.Clone(res)
	if err != nil {
		res.Body.Close()
		w.log.Warn().Err(err).Str("url", req.URL.String()).Msg("Could not read network response")
		return nil, nil, false
	}
	return res, clone, true
}

// put stores the response in the named store. Failures are only logged.
func (w *Worker) put(storeName string, req *http.Request, res *http.Response) bool {
	store, err := w.storage.Open(storeName)
	if err == nil {
		err = store.Put(req, res)
	}
	if err != nil {
		w.log.Error().Err(err).Str("cache", storeName).Str("url", req.URL.String()).Msg("Could not write to cache")
		return false
	}
	w.log.Trace().Str("cache", storeName).Str("url", req.URL.String()).Msg("Cache write")
	return true
}

// match looks the request up in all stores. Failures are logged and count as a miss.
func (w *Worker) match(req *http.Request) *http.Response {
	res, err := w.storage.Match(req)
	if err != nil {
		w.log.Error().Err(err).Str("url", req.URL.String()).Msg("Could not read from cache")
		return nil
	}
	return res
}

// absoluteRequest returns the request with an absolute URL.
// Requests in origin form (just a path) are for the scope's origin.
func (w *Worker) absoluteRequest(r *http.Request) *http.Request {
	if r.URL.IsAbs() {
		return r
	}
	u := *r.URL
	u.Scheme = w.scope.Scheme
	u.Host = w.scope.Host
	req := r.Clone(r.Context())
	req.URL = &u
	return req
}

// isNavigation reports whether the request loads a top-level page.
// Browsers say so with Sec-Fetch-Mode. Clients that do not send fetch
// metadata are treated as navigating when HTML is the first media range they accept.
func isNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return render.GetAcceptedContentType(r) == render.ContentTypeHTML
}

func annotate(res *http.Response, cs rfc9211.CacheStatus) *http.Response {
	if res.Header == nil {
		res.Header = make(http.Header)
	}
	res.Header.Add(rfc9211.HeaderName, cs.String())
	return res
}

// offlineResponse is the answer when neither network nor cache can help.
func offlineResponse(req *http.Request, body string) *http.Response {
	return &http.Response{
		Status:        "503 " + http.StatusText(http.StatusServiceUnavailable),
		StatusCode:    http.StatusServiceUnavailable,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
