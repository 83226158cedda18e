package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFileAndEnv(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "offline-cache.yaml")
	err := os.WriteFile(filename, []byte(`
name: converter
version: v2.0.0
origin: https://user.github.io/temperature-converter/
precache:
  - ./
  - ./index.html
provider: badger
db: memory
`), 0644)
	require.NoError(t, err)

	config := defaultConfig()
	require.NoError(t, getConfig(filename, &config))
	assert.Equal(t, "converter", config.Name)
	assert.Equal(t, "v2.0.0", config.Version)
	assert.Equal(t, []string{"./", "./index.html"}, config.Precache)
	assert.Equal(t, 8080, config.Port)

	require.NoError(t, parseEnv(&config, map[string]string{
		"OFFLINE_CACHE_VERSION": "v2.0.1",
		"OFFLINE_CACHE_PORT":    "9000",
		"VERSION":               "ignored",
	}))
	assert.Equal(t, "v2.0.1", config.Version)
	assert.Equal(t, 9000, config.Port)
	assert.Equal(t, "converter", config.Name)
	assert.Equal(t, "badger", config.Provider)
	require.NoError(t, config.validate())

	scope, err := config.scopeURL()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/", scope.String())
}

func TestConfigFileMissing(t *testing.T) {
	config := defaultConfig()
	assert.Error(t, getConfig(filepath.Join(t.TempDir(), "missing.yaml"), &config))
}

func TestConfigValidate(t *testing.T) {
	config := defaultConfig()
	assert.Error(t, config.validate())

	config.Origin = "https://example.com/"
	assert.NoError(t, config.validate())

	config.Provider = "redis"
	assert.Error(t, config.validate())

	config = defaultConfig()
	config.Origin = "example.com"
	_, err := config.originURL()
	assert.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	for _, provider := range []string{"memory", "sqlite", "badger"} {
		t.Run(provider, func(t *testing.T) {
			p, err := newProvider(Config{Provider: provider, DB: "memory"})
			require.NoError(t, err)
			defer p.Close()
			require.NoError(t, p.Open("store"))
			names, err := p.Names()
			require.NoError(t, err)
			assert.Equal(t, []string{"store"}, names)
		})
	}
}
