package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/always-cache/offline-cache/cache"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const envPrefix = "OFFLINE_CACHE_"

// Config is read from the config file, then from OFFLINE_CACHE_* environment
// variables, then from command line flags. Later sources win.
type Config struct {
	Name     string   `yaml:"name" env:"NAME"`
	Version  string   `yaml:"version" env:"VERSION"`
	Origin   string   `yaml:"origin" env:"ORIGIN"`
	Host     string   `yaml:"host" env:"HOST"`
	Scope    string   `yaml:"scope" env:"SCOPE"`
	Precache []string `yaml:"precache" env:"PRECACHE" envSeparator:","`
	Provider string   `yaml:"provider" env:"PROVIDER"`
	DB       string   `yaml:"db" env:"DB"`
	Port     int      `yaml:"port" env:"PORT"`
}

func defaultConfig() Config {
	return Config{
		Provider: "sqlite",
		DB:       "cache.db",
		Port:     8080,
	}
}

func getConfig(filename string, config *Config) error {
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(configBytes, config); err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}
	return nil
}

// parseEnv overrides config with the environment. A nil environment means the process environment.
func parseEnv(config *Config, environment map[string]string) error {
	opts := env.Options{Prefix: envPrefix}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(config, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Config) validate() error {
	if c.Origin == "" {
		return errors.New("please specify origin")
	}
	switch c.Provider {
	case "memory", "sqlite", "badger":
	default:
		return fmt.Errorf("unknown cache provider %q", c.Provider)
	}
	if c.Port <= 0 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

func (c Config) originURL() (url.URL, error) {
	u, err := url.Parse(c.Origin)
	if err != nil {
		return url.URL{}, fmt.Errorf("invalid origin: %w", err)
	}
	if !u.IsAbs() {
		return url.URL{}, fmt.Errorf("origin must be an absolute URL, got %q", c.Origin)
	}
	return *u, nil
}

// scopeURL is the URL clients use to reach this server, localhost on the port if not set.
func (c Config) scopeURL() (url.URL, error) {
	scope := c.Scope
	if scope == "" {
		scope = fmt.Sprintf("http://localhost:%d/", c.Port)
	}
	u, err := url.Parse(scope)
	if err != nil {
		return url.URL{}, fmt.Errorf("invalid scope: %w", err)
	}
	if !u.IsAbs() {
		return url.URL{}, fmt.Errorf("scope must be an absolute URL, got %q", scope)
	}
	return *u, nil
}

// newProvider creates the cache provider. The db name "memory" keeps the cache in memory.
func newProvider(c Config) (cache.Provider, error) {
	db := c.DB
	if db == "memory" {
		db = ""
	}
	switch c.Provider {
	case "memory":
		return cache.NewMemCache(), nil
	case "sqlite":
		sqlite, err := cache.NewSQLiteCache(db)
		if err != nil {
			return nil, err
		}
		return sqlite, nil
	case "badger":
		b, err := cache.OpenBadgerCache(db)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown cache provider %q", c.Provider)
}
