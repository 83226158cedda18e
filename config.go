package offlinecache

import (
	"net/url"

	"github.com/always-cache/offline-cache/cache"

	"github.com/rs/zerolog"
)

const (
	DefaultName    = "temperature-converter"
	DefaultVersion = "v1.1.0"
)

// DefaultPrecache is the list of files needed by the converter page to work offline.
// "./" is needed for deployments under a sub-path, e.g. project pages.
var DefaultPrecache = []string{
	"./",
	"./index.html",
	"./converter.js",
	"./converter.css",
	"./manifest.json",
	"./icon512.png",
}

type Config struct {
	// Prefix of the store names. DefaultName if empty.
	Name string
	// Version embedded in the store names. DefaultVersion if empty.
	// Changing it is the only way to get rid of previously cached content.
	Version string
	// URL the page is served from. Manifest entries and the navigation
	// fallback are resolved against it, and it defines what is same-origin.
	Scope url.URL
	// Paths relative to Scope that are stored at install time. DefaultPrecache if nil.
	Precache []string
	// Cache storage shared by all workers.
	Storage *cache.Storage
	// Network used for every request that is not answered from cache.
	Network Network
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

func (c Config) name() string {
	if c.Name == "" {
		return DefaultName
	}
	return c.Name
}

func (c Config) version() string {
	if c.Version == "" {
		return DefaultVersion
	}
	return c.Version
}

// StaticCacheName is the name of the store filled at install time.
func (c Config) StaticCacheName() string {
	return c.name() + "-static-" + c.version()
}

// RuntimeCacheName is the name of the store filled while serving requests.
func (c Config) RuntimeCacheName() string {
	return c.name() + "-runtime-" + c.version()
}

func (c Config) precache() []string {
	if c.Precache == nil {
		return DefaultPrecache
	}
	return c.Precache
}
