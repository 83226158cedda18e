package cachekey

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestFromKey(t *testing.T) {
	r, _ := http.NewRequest("GET", "http://dev.localhost/page?q=1", nil)
	key := Key(r)
	req, err := Request(key)
	if err != nil {
		t.Fatalf("%s: %s", key, err)
	}
	if url := req.URL.String(); url != "http://dev.localhost/page?q=1" {
		t.Fatalf("Created request url for key %s is %s", key, url)
	}
	if req.Method != "GET" {
		t.Fatalf("Method is %s", req.Method)
	}
}

func TestKeyIgnoresFragment(t *testing.T) {
	a, _ := http.NewRequest("GET", "http://dev.localhost/index.html#top", nil)
	b, _ := http.NewRequest("GET", "http://dev.localhost/index.html", nil)
	if Key(a) != Key(b) {
		t.Fatalf("Keys differ: %s != %s", Key(a), Key(b))
	}
}

func TestKeyUsesHostForServerRequests(t *testing.T) {
	r := httptest.NewRequest("GET", "/converter.js", nil)
	if key := Key(r); key != "GET http://example.com/converter.js" {
		t.Fatalf("Key is %s", key)
	}
}

func TestMalformedKey(t *testing.T) {
	if _, err := Request("no-separator"); !errors.Is(err, ErrMalformedKey) {
		t.Fatalf("Error is %v", err)
	}
}
