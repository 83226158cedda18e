package cache

import "errors"

var (
	// ErrStoreNotFound is returned when operating on a store that was never opened or has been deleted.
	ErrStoreNotFound = errors.New("cache store not found")
	// ErrMethodNotSupported is returned when trying to store a response to a request other than GET.
	ErrMethodNotSupported = errors.New("only GET requests can be stored")
)

// Provider is the backend of a cache storage.
// It keeps any number of named stores, each one a mapping from a request key to the
// bytes of a response snapshot. Providers know nothing about HTTP.
//
// Implementations must be thread-safe!
type Provider interface {
	// Open creates the named store if it does not exist yet.
	Open(name string) error
	// Names returns the names of all stores, in the order they were created.
	Names() ([]string, error)
	// Has checks if the named store exists.
	Has(name string) (bool, error)
	// Delete removes the named store and all of its entries.
	// It returns false if there was no such store.
	Delete(name string) (bool, error)
	// Get returns the entry stored under key in the named store.
	// The boolean is false if there is no such entry.
	Get(store, key string) ([]byte, bool, error)
	// Put stores bytes under key in the named store, replacing any previous entry.
	Put(store, key string, bytes []byte) error
	// PutAll stores all entries in the named store, or none of them.
	PutAll(store string, entries []Entry) error
	// Remove deletes a single entry. It returns false if there was no such entry.
	Remove(store, key string) (bool, error)
	// Keys returns the keys of all entries in the named store.
	Keys(store string) ([]string, error)
	// Close releases the resources held by the provider.
	Close() error
}

// Entry is a single stored response snapshot.
type Entry struct {
	Key   string
	Bytes []byte
}
