package offlinecache

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Registration holds the worker in control of the scope.
// A new worker only takes over once it is installed; if installing fails,
// the previously active worker stays in control.
type Registration struct {
	// serializes updates
	mutex    sync.Mutex
	active   atomic.Pointer[Worker]
	// replaced workers with stores still running
	retiring sync.WaitGroup
	log      zerolog.Logger
}

func NewRegistration(logger *zerolog.Logger) *Registration {
	r := &Registration{}
	if logger == nil {
		r.log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	} else {
		r.log = *logger
	}
	return r
}

// Register installs a worker for the config, makes it the active worker
// right away and activates it. The returned error wraps ErrInstallFailed if
// the worker could not be installed, in which case nothing changes.
// An activation error is returned together with the worker, which is in
// control nonetheless.
func (r *Registration) Register(ctx context.Context, config Config) (*Worker, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	w, err := New(config)
	if err != nil {
		return nil, err
	}
	if err := w.Install(ctx); err != nil {
		if r.active.Load() != nil {
			r.log.Warn().Err(err).Msg("Install failed, keeping the active worker")
		}
		return nil, err
	}

	if previous := r.active.Swap(w); previous != nil {
		previous.retire()
		r.retiring.Add(1)
		go func() {
			defer r.retiring.Done()
			previous.Wait()
		}()
	}

	if err := w.Activate(ctx); err != nil {
		r.log.Error().Err(err).Msg("Activation incomplete")
		return w, err
	}
	return w, nil
}

// Active returns the worker in control, or nil if no worker was registered successfully.
func (r *Registration) Active() *Worker {
	return r.active.Load()
}

// Wait blocks until the active and all replaced workers have finished their background work.
func (r *Registration) Wait() {
	if w := r.active.Load(); w != nil {
		w.Wait()
	}
	r.retiring.Wait()
}

// ServeHTTP implements the http.Handler interface by delegating to the active worker.
func (r *Registration) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	w := r.active.Load()
	if w == nil {
		http.Error(rw, "No active worker", http.StatusServiceUnavailable)
		return
	}
	w.ServeHTTP(rw, req)
}
