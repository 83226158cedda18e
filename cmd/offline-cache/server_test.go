package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	offlinecache "github.com/always-cache/offline-cache"
	"github.com/always-cache/offline-cache/cache"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) *server {
	t.Helper()
	scope, err := url.Parse("http://localhost:8080/")
	require.NoError(t, err)

	network := offlinecache.HandlerNetwork{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.js" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "content of "+r.URL.Path)
	})}
	logger := zerolog.Nop()
	config := offlinecache.Config{
		Scope:   *scope,
		Storage: cache.NewStorage(cache.NewMemCache()),
		Network: network,
		Logger:  &logger,
	}
	s := newServer(config, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	_, err = s.register(ctx, config)
	require.NoError(t, err)
	return s
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) cachesResponse {
	t.Helper()
	var res cachesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestServerServesThroughWorker(t *testing.T) {
	s := testServer(t)
	router := s.router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/converter.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "content of /converter.js", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Cache-Status"), "hit")
	assert.NotEmpty(t, rec.Header().Get("Request-Id"))
}

func TestServerListsCaches(t *testing.T) {
	s := testServer(t)
	router := s.router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.offline-cache/caches", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode(t, rec)
	assert.Equal(t, []string{"temperature-converter-static-v1.1.0"}, res.Caches)
	assert.Equal(t, "temperature-converter-static-v1.1.0", res.Active)
	assert.Equal(t, "activated", res.State)
}

func TestServerUpdateBumpsVersion(t *testing.T) {
	s := testServer(t)
	router := s.router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/.offline-cache/update?version=v1.2.0", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "temperature-converter-static-v1.2.0", decode(t, rec).Active)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.offline-cache/caches", nil))
	assert.Equal(t, []string{"temperature-converter-static-v1.2.0"}, decode(t, rec).Caches)
}

func TestServerUpdateInstallFailure(t *testing.T) {
	s := testServer(t)
	s.config.Precache = []string{"./index.html", "./missing.js"}
	router := s.router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/.offline-cache/update?version=v2", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.offline-cache/caches", nil))
	res := decode(t, rec)
	assert.Equal(t, "temperature-converter-static-v1.1.0", res.Active)
	assert.Contains(t, res.Caches, "temperature-converter-static-v1.1.0")
}

func TestServerListsAndDeletesEntries(t *testing.T) {
	s := testServer(t)
	router := s.router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.offline-cache/caches/temperature-converter-static-v1.1.0", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var entries entriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Equal(t, "temperature-converter-static-v1.1.0", entries.Name)
	assert.Len(t, entries.Entries, len(offlinecache.DefaultPrecache))
	assert.Contains(t, entries.Entries, "http://localhost:8080/converter.js")

	target := "/.offline-cache/caches/temperature-converter-static-v1.1.0/entries?url=" +
		url.QueryEscape("http://localhost:8080/converter.js")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, target, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, target, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.offline-cache/caches/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// listing an unknown cache does not create it
	has, err := s.storage.Has("unknown")
	require.NoError(t, err)
	assert.False(t, has)
}
