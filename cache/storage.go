package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	cachekey "github.com/always-cache/offline-cache/pkg/cache-key"
	serializer "github.com/always-cache/offline-cache/pkg/response-serializer"

	"golang.org/x/sync/errgroup"
)

// Fetcher gets responses from the network.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Storage is the set of named stores kept by a provider.
// A miss is never an error: Match returns a nil response and a nil error.
type Storage struct {
	provider Provider
}

func NewStorage(provider Provider) *Storage {
	return &Storage{provider: provider}
}

// Open returns the named store, creating it if needed.
func (s *Storage) Open(name string) (*Store, error) {
	if err := s.provider.Open(name); err != nil {
		return nil, fmt.Errorf("could not open store %s: %w", name, err)
	}
	return &Store{name: name, provider: s.provider}, nil
}

// Keys returns the names of all stores, in creation order.
func (s *Storage) Keys() ([]string, error) {
	return s.provider.Names()
}

func (s *Storage) Has(name string) (bool, error) {
	return s.provider.Has(name)
}

// Delete removes the named store with all its entries.
func (s *Storage) Delete(name string) (bool, error) {
	return s.provider.Delete(name)
}

// Match looks up the request in every store, in creation order,
// and returns the first stored response.
func (s *Storage) Match(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return nil, nil
	}
	names, err := s.provider.Names()
	if err != nil {
		return nil, err
	}
	key := cachekey.Key(req)
	for _, name := range names {
		bts, ok, err := s.provider.Get(name, key)
		if errors.Is(err, ErrStoreNotFound) {
			// deleted while we were looking
			continue
		} else if err != nil {
			return nil, err
		}
		if ok {
			return serializer.BytesToResponse(bts, req)
		}
	}
	return nil, nil
}

func (s *Storage) Close() error {
	return s.provider.Close()
}

// Store is a single named store.
type Store struct {
	name     string
	provider Provider
}

func (c *Store) Name() string {
	return c.name
}

// Match returns the response stored for the request, or nil if there is none.
func (c *Store) Match(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return nil, nil
	}
	bts, ok, err := c.provider.Get(c.name, cachekey.Key(req))
	if err != nil || !ok {
		return nil, err
	}
	return serializer.BytesToResponse(bts, req)
}

// Put stores a snapshot of the response under the request's key.
// The body of res is left intact and can be sent to a client afterwards.
func (c *Store) Put(req *http.Request, res *http.Response) error {
	if req.Method != http.MethodGet {
		return ErrMethodNotSupported
	}
	bts, err := serializer.ResponseToBytes(res)
	if err != nil {
		return err
	}
	return c.provider.Put(c.name, cachekey.Key(req), bts)
}

// AddAll fetches all requests concurrently and stores the responses.
// If any fetch fails or returns a status outside the 2xx range,
// nothing is stored and the error is returned.
func (c *Store) AddAll(ctx context.Context, fetcher Fetcher, reqs []*http.Request) error {
	for _, req := range reqs {
		if req.Method != http.MethodGet {
			return ErrMethodNotSupported
		}
	}
	entries := make([]Entry, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			res, err := fetcher.Fetch(ctx, req.WithContext(ctx))
			if err != nil {
				return fmt.Errorf("could not fetch %s: %w", req.URL, err)
			}
			defer res.Body.Close()
			if res.StatusCode < 200 || res.StatusCode > 299 {
				return fmt.Errorf("could not fetch %s: bad status %d", req.URL, res.StatusCode)
			}
			bts, err := serializer.ResponseToBytes(res)
			if err != nil {
				return err
			}
			entries[i] = Entry{Key: cachekey.Key(req), Bytes: bts}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return c.provider.PutAll(c.name, entries)
}

// Delete removes the entry stored for the request.
func (c *Store) Delete(req *http.Request) (bool, error) {
	return c.provider.Remove(c.name, cachekey.Key(req))
}

// Keys returns the requests of all entries in the store.
func (c *Store) Keys() ([]*http.Request, error) {
	keys, err := c.provider.Keys(c.name)
	if err != nil {
		return nil, err
	}
	reqs := make([]*http.Request, 0, len(keys))
	for _, key := range keys {
		req, err := cachekey.Request(key)
		if err != nil {
			return reqs, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
