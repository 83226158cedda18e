package cache

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapFetcher serves fixed bodies by URL. Unknown URLs are network errors.
type mapFetcher struct {
	bodies   map[string]string
	statuses map[string]int
	calls    atomic.Int32
}

func (f *mapFetcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	f.calls.Add(1)
	body, ok := f.bodies[req.URL.String()]
	if !ok {
		return nil, errors.New("connection refused")
	}
	status := http.StatusOK
	if s, ok := f.statuses[req.URL.String()]; ok {
		status = s
	}
	return &http.Response{
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"text/plain"}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}

func get(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	require.NotNil(t, res)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return string(body)
}

func TestAddAllStoresEveryResponse(t *testing.T) {
	storage := NewStorage(NewMemCache())
	fetcher := &mapFetcher{bodies: map[string]string{
		"http://localhost/":           "root",
		"http://localhost/index.html": "index",
		"http://localhost/icon.png":   "\x89PNG",
	}}
	store, err := storage.Open("static")
	require.NoError(t, err)

	err = store.AddAll(context.Background(), fetcher, []*http.Request{
		get(t, "http://localhost/"),
		get(t, "http://localhost/index.html"),
		get(t, "http://localhost/icon.png"),
	})
	require.NoError(t, err)

	for url, body := range fetcher.bodies {
		res, err := store.Match(get(t, url))
		require.NoError(t, err)
		assert.Equal(t, body, readBody(t, res), url)
	}
}

func TestAddAllIsAllOrNothing(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			storage := NewStorage(p)
			fetcher := &mapFetcher{
				bodies: map[string]string{
					"http://localhost/index.html": "index",
					"http://localhost/gone.css":   "not found",
				},
				statuses: map[string]int{"http://localhost/gone.css": http.StatusNotFound},
			}
			store, err := storage.Open("static")
			require.NoError(t, err)

			err = store.AddAll(context.Background(), fetcher, []*http.Request{
				get(t, "http://localhost/index.html"),
				get(t, "http://localhost/gone.css"),
			})
			assert.Error(t, err)

			err = store.AddAll(context.Background(), fetcher, []*http.Request{
				get(t, "http://localhost/index.html"),
				get(t, "http://localhost/offline.js"),
			})
			assert.Error(t, err)

			reqs, err := store.Keys()
			require.NoError(t, err)
			assert.Empty(t, reqs)
		})
	}
}

func TestPutLeavesBodyReadable(t *testing.T) {
	storage := NewStorage(NewMemCache())
	store, err := storage.Open("runtime")
	require.NoError(t, err)
	fetcher := &mapFetcher{bodies: map[string]string{"http://localhost/app.js": "console.log(1)"}}
	req := get(t, "http://localhost/app.js")
	res, err := fetcher.Fetch(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, store.Put(req, res))

	assert.Equal(t, "console.log(1)", readBody(t, res))
	cached, err := store.Match(req)
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", readBody(t, cached))
}

func TestPutRejectsNonGet(t *testing.T) {
	storage := NewStorage(NewMemCache())
	store, err := storage.Open("runtime")
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodPost, "http://localhost/form", nil)

	err = store.Put(req, &http.Response{StatusCode: 200, Body: http.NoBody})
	assert.ErrorIs(t, err, ErrMethodNotSupported)
}

func TestGlobalMatchUsesCreationOrder(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			storage := NewStorage(p)
			first, err := storage.Open("static")
			require.NoError(t, err)
			second, err := storage.Open("runtime")
			require.NoError(t, err)
			req := get(t, "http://localhost/index.html")
			fetcher := &mapFetcher{bodies: map[string]string{"http://localhost/index.html": "runtime only"}}

			res, _ := fetcher.Fetch(context.Background(), req)
			require.NoError(t, second.Put(req, res))
			match, err := storage.Match(req)
			require.NoError(t, err)
			assert.Equal(t, "runtime only", readBody(t, match))

			fetcher.bodies["http://localhost/index.html"] = "runtime copy"
			res, _ = fetcher.Fetch(context.Background(), req)
			require.NoError(t, second.Put(req, res))
			fetcher.bodies["http://localhost/index.html"] = "first copy"
			res, _ = fetcher.Fetch(context.Background(), req)
			require.NoError(t, first.Put(req, res))

			match, err = storage.Match(req)
			require.NoError(t, err)
			assert.Equal(t, "first copy", readBody(t, match))
		})
	}
}

func TestMatchMiss(t *testing.T) {
	storage := NewStorage(NewMemCache())
	_, err := storage.Open("runtime")
	require.NoError(t, err)

	res, err := storage.Match(get(t, "http://localhost/nothing"))
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestSnapshotSurvivesProvider(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Type: image/png\r\nContent-Length: 4\r\n\r\n\x00\x01\x02\x03"
	res, err := http.ReadResponse(bufio.NewReader(strings.NewReader(raw)), nil)
	require.NoError(t, err)
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			storage := NewStorage(p)
			store, err := storage.Open("static")
			require.NoError(t, err)
			req := get(t, "http://localhost/icon512.png")
			require.NoError(t, store.Put(req, res))

			cached, err := store.Match(req)
			require.NoError(t, err)
			assert.Equal(t, "image/png", cached.Header.Get("Content-Type"))
			assert.Equal(t, "\x00\x01\x02\x03", readBody(t, cached))
		})
	}
}
