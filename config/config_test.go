package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("loads with defaults when no env vars set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Server.Port)
		assert.Equal(t, "development", cfg.Server.Environment)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "console", cfg.Log.Format)

		assert.Equal(t, 2, cfg.Suggest.MinQueryLength)
		assert.Equal(t, 3, cfg.Suggest.InternalThreshold)
		assert.Equal(t, 150*time.Millisecond, cfg.Suggest.TypingDebounce)
		assert.Equal(t, 500*time.Millisecond, cfg.Suggest.BarcodeDebounce)
		assert.Equal(t, 10, cfg.Suggest.MaxSuggestions)
		assert.False(t, cfg.Suggest.DedupeExternal)

		assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
		assert.Equal(t, 50, cfg.Cache.Capacity)
		assert.Equal(t, 10, cfg.Cache.EvictBatch)

		assert.Equal(t, CatalogMemory, cfg.Catalog.Type)
		assert.Equal(t, 0.8, cfg.Verify.VerifiedThreshold)
		assert.Equal(t, 10*time.Minute, cfg.Verify.SessionIdleTTL)

		require.Len(t, cfg.External, 1)
		assert.Equal(t, KindOpenFoodFacts, cfg.External[0].ID)
		assert.Equal(t, 3*time.Second, cfg.External[0].Timeout)
		assert.True(t, cfg.External[0].IsEnabled())
	})

	t.Run("loads custom values from environment variables", func(t *testing.T) {
		t.Setenv("PRODUCTCHECK_SERVER_PORT", "9090")
		t.Setenv("PRODUCTCHECK_LOG_FORMAT", "json")
		t.Setenv("PRODUCTCHECK_SUGGEST_TYPING_DEBOUNCE", "80ms")
		t.Setenv("PRODUCTCHECK_CACHE_CAPACITY", "200")
		t.Setenv("PRODUCTCHECK_USDA_API_KEY", "test-key")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9090", cfg.Server.Port)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, 80*time.Millisecond, cfg.Suggest.TypingDebounce)
		assert.Equal(t, 200, cfg.Cache.Capacity)

		require.Len(t, cfg.External, 2)
		assert.Equal(t, KindUSDA, cfg.External[1].Kind)
		assert.Equal(t, "test-key", cfg.External[1].APIKey)
	})

	t.Run("postgres requires a database url", func(t *testing.T) {
		t.Setenv("PRODUCTCHECK_CATALOG_TYPE", "postgres")

		_, err := Load()
		assert.Error(t, err)

		t.Setenv("PRODUCTCHECK_CATALOG_DATABASE_URL", "postgres://localhost/products")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, CatalogPostgres, cfg.Catalog.Type)
	})
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "7000"
suggest:
  dedupe_external: true
catalog:
  seed_file: ./seed.yaml
external:
  - id: off
    kind: openfoodfacts
    timeout: 1500ms
    rate_per_second: 0.5
    burst: 2
  - id: fdc
    kind: usda
    api_key: abc
    enabled: false
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.True(t, cfg.Suggest.DedupeExternal)
	assert.Equal(t, "./seed.yaml", cfg.Catalog.SeedFile)

	require.Len(t, cfg.External, 2)
	assert.Equal(t, "off", cfg.External[0].ID)
	assert.Equal(t, 1500*time.Millisecond, cfg.External[0].Timeout)
	assert.Equal(t, 0.5, cfg.External[0].RatePerSecond)
	assert.Equal(t, 2, cfg.External[0].Burst)
	assert.False(t, cfg.External[1].IsEnabled())
	// Timeout defaulted
	assert.Equal(t, 3*time.Second, cfg.External[1].Timeout)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{
			Log:     LogConfig{Format: "console"},
			Suggest: SuggestConfig{MinQueryLength: 2, InternalThreshold: 3, MaxSuggestions: 10, TypingDebounce: time.Millisecond, BarcodeDebounce: time.Millisecond},
			Cache:   CacheConfig{TTL: time.Minute, Capacity: 50, EvictBatch: 10},
			Catalog: CatalogConfig{Type: CatalogMemory},
			Verify:  VerifyConfig{VerifiedThreshold: 0.8},
		}
		applySourceDefaults(cfg)
		return cfg
	}

	require.NoError(t, validate(base()))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
		{"unknown catalog", func(c *Config) { c.Catalog.Type = "redis" }},
		{"zero min length", func(c *Config) { c.Suggest.MinQueryLength = 0 }},
		{"zero debounce", func(c *Config) { c.Suggest.TypingDebounce = 0 }},
		{"zero capacity", func(c *Config) { c.Cache.Capacity = 0 }},
		{"batch above capacity", func(c *Config) { c.Cache.EvictBatch = 51 }},
		{"threshold above one", func(c *Config) { c.Verify.VerifiedThreshold = 1.5 }},
		{"duplicate source", func(c *Config) { c.External = append(c.External, c.External[0]) }},
		{"reserved source id", func(c *Config) { c.External[0].ID = "internal" }},
		{"unknown kind", func(c *Config) { c.External[0].Kind = "gs1" }},
		{"usda without key", func(c *Config) {
			c.External = append(c.External, SourceConfig{ID: "usda", Kind: KindUSDA, Timeout: time.Second})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, validate(cfg))
		})
	}
}
