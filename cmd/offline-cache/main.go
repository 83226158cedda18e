package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	offlinecache "github.com/always-cache/offline-cache"
	"github.com/always-cache/offline-cache/cache"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFlag         string
	originFlag         string
	scopeFlag          string
	hostFlag           string
	portFlag           int
	providerFlag       string
	dbFilenameFlag     string
	cacheVersionFlag   string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFlag, "config", "", "Config file (yaml)")
	flag.StringVar(&originFlag, "origin", "", "Origin URL the page is fetched from")
	flag.StringVar(&scopeFlag, "scope", "", "URL clients use to reach this server (default http://localhost:<port>/)")
	flag.StringVar(&hostFlag, "host", "", "Hostname of origin, if the origin URL is an IP address")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&providerFlag, "provider", "sqlite", "Cache provider: memory, sqlite or badger")
	flag.StringVar(&dbFilenameFlag, "db", "cache.db", "Cache DB file or directory (use 'memory' for in-memory db)")
	flag.StringVar(&cacheVersionFlag, "cache-version", "", "Cache version (default "+offlinecache.DefaultVersion+")")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

// applyFlags overrides the config with the flags given on the command line.
func applyFlags(config *Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "origin":
			config.Origin = originFlag
		case "scope":
			config.Scope = scopeFlag
		case "host":
			config.Host = hostFlag
		case "port":
			config.Port = portFlag
		case "provider":
			config.Provider = providerFlag
		case "db":
			config.DB = dbFilenameFlag
		case "cache-version":
			config.Version = cacheVersionFlag
		}
	})
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	config := defaultConfig()
	if configFlag != "" {
		if err := getConfig(configFlag, &config); err != nil {
			log.Fatal().Err(err).Msg("Could not read config file")
		}
	}
	if err := parseEnv(&config, nil); err != nil {
		log.Fatal().Err(err).Msg("Could not read environment")
	}
	applyFlags(&config)
	if err := config.validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	if err := run(config, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run(config Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	origin, err := config.originURL()
	if err != nil {
		return err
	}
	scope, err := config.scopeURL()
	if err != nil {
		return err
	}
	provider, err := newProvider(config)
	if err != nil {
		return fmt.Errorf("could not open cache: %w", err)
	}
	storage := cache.NewStorage(provider)
	defer storage.Close()

	workerConfig := offlinecache.Config{
		Name:     config.Name,
		Version:  config.Version,
		Scope:    scope,
		Precache: config.Precache,
		Storage:  storage,
		Network:  offlinecache.NewHTTPNetwork(scope, origin, config.Host),
		Logger:   &logger,
	}
	srv := newServer(workerConfig, logger)
	if _, err := srv.register(ctx, workerConfig); err != nil {
		// keep serving, an update can install the worker later
		logger.Error().Err(err).Msg("Could not register worker")
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           srv.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Serving %s on port %v from %s (with hostname '%s')", scope.String(), config.Port, origin.String(), config.Host)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = httpServer.Shutdown(shutdownCtx)
	// let background stores finish before the cache is closed
	srv.registration.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
