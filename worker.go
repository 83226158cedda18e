// Package offlinecache serves a static page with offline support.
//
// A Worker sits between clients and the network the way a service worker sits
// between a page and the browser's network stack. It precaches the page at
// install time, drops stores of previous versions at activation, and routes
// every GET request to one of three strategies: cache-first for precached
// files, network-first for other same-origin requests, and network with a
// stale fallback for third-party requests.
package offlinecache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/always-cache/offline-cache/cache"

	"github.com/rs/zerolog"
)

var (
	// ErrInstallFailed is returned when the precache could not be filled.
	ErrInstallFailed = errors.New("install failed")
	// ErrNoResponse is returned when neither the network nor the cache could answer a request.
	ErrNoResponse = errors.New("no response available")
)

type State int32

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type Worker struct {
	config   Config
	scope    url.URL
	manifest Manifest
	storage  *cache.Storage
	network  Network
	log      zerolog.Logger
	state    atomic.Int32

	// stores that were started but not awaited
	pending sync.WaitGroup
	// guards pending once the worker is replaced
	mutex   sync.Mutex
	retired bool
}

// New creates a worker. It needs to be installed and activated before it controls anything.
func New(config Config) (*Worker, error) {
	if config.Storage == nil {
		return nil, errors.New("no cache storage configured")
	}
	if config.Network == nil {
		return nil, errors.New("no network configured")
	}
	if !config.Scope.IsAbs() || config.Scope.Host == "" {
		return nil, fmt.Errorf("scope must be an absolute URL, got %q", config.Scope.String())
	}

	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	} else {
		logger = *config.Logger
	}

	scope := withTrailingSlash(config.Scope)
	w := &Worker{
		config:   config,
		scope:    scope,
		manifest: Manifest(config.precache()),
		storage:  config.Storage,
		network:  config.Network,
		log: logger.With().
			Str("scope", scope.String()).
			Str("cacheVersion", config.version()).
			Logger(),
	}
	return w, nil
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	w.log.Trace().Str("state", s.String()).Msg("Worker state changed")
}

// Install opens the static store and fills it with every manifest entry.
// If a single entry cannot be fetched, nothing is stored, the worker
// becomes redundant and the error wraps ErrInstallFailed.
func (w *Worker) Install(ctx context.Context) error {
	w.setState(StateInstalling)
	name := w.config.StaticCacheName()
	w.log.Info().Str("cache", name).Int("entries", len(w.manifest)).Msg("Installing")

	static, err := w.storage.Open(name)
	if err != nil {
		w.setState(StateRedundant)
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}
	reqs := make([]*http.Request, 0, len(w.manifest))
	for _, entry := range w.manifest {
		req, err := w.scopedRequest(ctx, entry)
		if err != nil {
			w.setState(StateRedundant)
			return fmt.Errorf("%w: %w", ErrInstallFailed, err)
		}
		reqs = append(reqs, req)
	}
	if err := static.AddAll(ctx, w.network, reqs); err != nil {
		w.setState(StateRedundant)
		w.log.Error().Err(err).Msg("Could not precache")
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	// skip waiting: ready to take over without waiting for clients to go away
	w.setState(StateInstalled)
	w.log.Info().Msg("Installed")
	return nil
}

// Activate deletes every store that is not one of this worker's two stores
// and then claims all clients.
func (w *Worker) Activate(ctx context.Context) error {
	if s := w.State(); s != StateInstalled {
		return fmt.Errorf("cannot activate a worker in state %s", s)
	}
	w.setState(StateActivating)
	keep := map[string]bool{
		w.config.StaticCacheName():  true,
		w.config.RuntimeCacheName(): true,
	}

	names, err := w.storage.Keys()
	if err != nil {
		// claim anyway, the old stores are only wasted space
		w.setState(StateActivated)
		return fmt.Errorf("could not list stores: %w", err)
	}
	var errs []error
	for _, name := range names {
		if keep[name] {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := w.storage.Delete(name); err != nil {
			errs = append(errs, fmt.Errorf("could not delete store %s: %w", name, err))
			continue
		}
		w.log.Info().Str("cache", name).Msg("Deleted old store")
	}

	w.setState(StateActivated)
	w.log.Info().Msg("Activated and claimed clients")
	return errors.Join(errs...)
}

// Wait blocks until all stores started in the background have finished.
func (w *Worker) Wait() {
	w.pending.Wait()
}

// retire makes the worker redundant. From then on it runs stores inline,
// so Wait covers everything it ever started in the background.
func (w *Worker) retire() {
	w.mutex.Lock()
	w.retired = true
	w.mutex.Unlock()
	w.setState(StateRedundant)
}

// background runs fn without blocking the caller, or inline once the worker is retired.
func (w *Worker) background(fn func()) {
	w.mutex.Lock()
	if w.retired {
		w.mutex.Unlock()
		fn()
		return
	}
	w.pending.Add(1)
	w.mutex.Unlock()
	go func() {
		defer w.pending.Done()
		fn()
	}()
}

// scopedRequest creates a GET request for a path relative to the scope.
func (w *Worker) scopedRequest(ctx context.Context, relative string) (*http.Request, error) {
	ref, err := url.Parse(relative)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", relative, err)
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, w.scope.ResolveReference(ref).String(), nil)
}
