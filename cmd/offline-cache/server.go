package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	offlinecache "github.com/always-cache/offline-cache"
	"github.com/always-cache/offline-cache/cache"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// server puts the admin routes next to the registration.
type server struct {
	registration *offlinecache.Registration
	storage      *cache.Storage
	log          zerolog.Logger

	// worker config used for updates
	mutex  sync.Mutex
	config offlinecache.Config
}

func newServer(config offlinecache.Config, logger zerolog.Logger) *server {
	return &server{
		registration: offlinecache.NewRegistration(&logger),
		storage:      config.Storage,
		log:          logger,
		config:       config,
	}
}

func (s *server) router() chi.Router {
	r := chi.NewRouter()

	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request")
	}))

	r.Route("/.offline-cache", func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.Get("/caches", s.listCaches)
		r.Get("/caches/{name}", s.listEntries)
		r.Delete("/caches/{name}/entries", s.deleteEntry)
		r.Post("/update", s.update)
	})
	r.Handle("/*", s.registration)

	return r
}

type cachesResponse struct {
	Active string   `json:"active,omitempty"`
	State  string   `json:"state,omitempty"`
	Caches []string `json:"caches"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) listCaches(w http.ResponseWriter, r *http.Request) {
	names, err := s.storage.Keys()
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Could not list caches")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{Error: err.Error()})
		return
	}
	res := cachesResponse{Caches: names}
	if active := s.registration.Active(); active != nil {
		res.State = active.State().String()
		s.mutex.Lock()
		res.Active = s.config.StaticCacheName()
		s.mutex.Unlock()
	}
	if res.Caches == nil {
		res.Caches = []string{}
	}
	render.JSON(w, r, res)
}

type entriesResponse struct {
	Name    string   `json:"name"`
	Entries []string `json:"entries"`
}

// existingStore opens the store named in the route, or writes a 404 if there is no such store.
func (s *server) existingStore(w http.ResponseWriter, r *http.Request) *cache.Store {
	name := chi.URLParam(r, "name")
	ok, err := s.storage.Has(name)
	if err == nil && ok {
		var store *cache.Store
		if store, err = s.storage.Open(name); err == nil {
			return store
		}
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("cache", name).Msg("Could not open cache")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{Error: err.Error()})
		return nil
	}
	render.Status(r, http.StatusNotFound)
	render.JSON(w, r, errorResponse{Error: "no such cache: " + name})
	return nil
}

// listEntries lists the URLs stored in one cache.
func (s *server) listEntries(w http.ResponseWriter, r *http.Request) {
	store := s.existingStore(w, r)
	if store == nil {
		return
	}
	reqs, err := store.Keys()
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("cache", store.Name()).Msg("Could not list entries")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{Error: err.Error()})
		return
	}
	res := entriesResponse{Name: store.Name(), Entries: make([]string, 0, len(reqs))}
	for _, req := range reqs {
		res.Entries = append(res.Entries, req.URL.String())
	}
	render.JSON(w, r, res)
}

// deleteEntry removes the entry for the url query parameter from one cache.
func (s *server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	store := s.existingStore(w, r)
	if store == nil {
		return
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, r.URL.Query().Get("url"), nil)
	if err != nil || !req.URL.IsAbs() {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: "url must be an absolute URL"})
		return
	}
	deleted, err := store.Delete(req)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("cache", store.Name()).Msg("Could not delete entry")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{Error: err.Error()})
		return
	}
	if !deleted {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, errorResponse{Error: "not cached: " + req.URL.String()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// update registers a new worker. A version query parameter bumps the cache version.
func (s *server) update(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	config := s.config
	s.mutex.Unlock()
	if version := r.URL.Query().Get("version"); version != "" {
		config.Version = version
	}

	worker, err := s.register(r.Context(), config)
	if worker == nil {
		status := http.StatusInternalServerError
		if errors.Is(err, offlinecache.ErrInstallFailed) {
			status = http.StatusBadGateway
		}
		render.Status(r, status)
		render.JSON(w, r, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Update activated with errors")
	}
	render.JSON(w, r, cachesResponse{
		Active: config.StaticCacheName(),
		State:  worker.State().String(),
		Caches: []string{config.StaticCacheName(), config.RuntimeCacheName()},
	})
}

// register installs and activates a worker and remembers its config for later updates.
func (s *server) register(ctx context.Context, config offlinecache.Config) (*offlinecache.Worker, error) {
	worker, err := s.registration.Register(ctx, config)
	if worker != nil {
		s.mutex.Lock()
		s.config = config
		s.mutex.Unlock()
	}
	return worker, err
}
