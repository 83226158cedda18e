package offlinecache

import (
	"io"
	"net/http"

	"github.com/always-cache/offline-cache/rfc9211"

	"github.com/rs/zerolog"
)

// ServeHTTP implements the http.Handler interface.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer w.recover(rw, r)

	res, handled, err := w.Respond(r)
	if !handled {
		w.passThrough(rw, r)
		return
	}
	if err != nil {
		w.log.Warn().Err(err).Str("url", r.URL.String()).Msg("Neither network nor cache could answer")
		http.Error(rw, "Could not get response", http.StatusBadGateway)
		return
	}
	w.send(rw, r, res)
}

// passThrough sends requests that are not intercepted straight to the network.
func (w *Worker) passThrough(rw http.ResponseWriter, r *http.Request) {
	req := w.absoluteRequest(r)
	res, err := w.network.Fetch(r.Context(), req)
	if err != nil {
		w.log.Error().Err(err).Str("method", r.Method).Str("url", req.URL.String()).Msg("Error contacting network")
		http.Error(rw, "Error contacting origin", http.StatusBadGateway)
		return
	}
	cs := rfc9211.CacheStatus{Cache: cacheStatusName}
	cs.Forward(rfc9211.FwdReasonMethod)
	cs.FwdStatus = res.StatusCode
	w.send(rw, r, annotate(res, cs))
}

// recover recovers from panics so a client never sees a dropped connection.
func (w *Worker) recover(rw http.ResponseWriter, r *http.Request) {
	if err := recover(); err != nil {
		w.log.WithLevel(zerolog.PanicLevel).Interface("error", err).Str("url", r.URL.String()).Msg("Panic in fetch handler")
		http.Error(rw, "Could not get response", http.StatusBadGateway)
	}
}

func (w *Worker) send(rw http.ResponseWriter, r *http.Request, res *http.Response) {
	defer res.Body.Close()
	copyHeader(rw.Header(), res.Header)
	rw.WriteHeader(res.StatusCode)
	if r.Method == http.MethodHead {
		return
	}
	written, err := io.Copy(rw, res.Body)
	if err != nil {
		w.log.Error().Err(err).Str("url", r.URL.String()).Msg("Could not write response body to client")
		return
	}
	w.log.Trace().Str("url", r.URL.String()).Int("status", res.StatusCode).Msgf("Wrote body (%d bytes)", written)
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	removeHopHeaders(dst)
}
