package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Catalog backends
const (
	CatalogMemory   = "memory"
	CatalogPostgres = "postgres"
)

// External source kinds
const (
	KindOpenFoodFacts = "openfoodfacts"
	KindUSDA          = "usda"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Suggest  SuggestConfig  `mapstructure:"suggest"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	External []SourceConfig `mapstructure:"external"`
	Verify   VerifyConfig   `mapstructure:"verify"`
	// USDAAPIKey enables the default USDA source when External is empty
	USDAAPIKey string `mapstructure:"usda_api_key"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

// SuggestConfig holds suggestion policy
type SuggestConfig struct {
	MinQueryLength    int           `mapstructure:"min_query_length"`
	InternalThreshold int           `mapstructure:"internal_threshold"`
	TypingDebounce    time.Duration `mapstructure:"typing_debounce"`
	BarcodeDebounce   time.Duration `mapstructure:"barcode_debounce"`
	MaxSuggestions    int           `mapstructure:"max_suggestions"`
	DedupeExternal    bool          `mapstructure:"dedupe_external"`
}

// CacheConfig holds suggestion cache sizing
type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	Capacity   int           `mapstructure:"capacity"`
	EvictBatch int           `mapstructure:"evict_batch"`
}

// CatalogConfig selects the internal catalog backend
type CatalogConfig struct {
	Type        string `mapstructure:"type"` // "memory" or "postgres"
	SeedFile    string `mapstructure:"seed_file"`
	DatabaseURL string `mapstructure:"database_url"`
	MaxConns    int32  `mapstructure:"max_conns"`
	Migrate     bool   `mapstructure:"migrate"`
}

// SourceConfig registers one external product database
type SourceConfig struct {
	ID            string        `mapstructure:"id"`
	Kind          string        `mapstructure:"kind"`
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	Enabled       *bool         `mapstructure:"enabled"`
}

// IsEnabled reports whether the source should be registered; unset means enabled
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// VerifyConfig holds verification settings
type VerifyConfig struct {
	VerifiedThreshold float64       `mapstructure:"verified_threshold"`
	SessionIdleTTL    time.Duration `mapstructure:"session_idle_ttl"`
}

// Load loads configuration from config files and environment variables
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/productcheck/")

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFile loads configuration from an explicit file plus environment variables
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("PRODUCTCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	applySourceDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("suggest.min_query_length", 2)
	v.SetDefault("suggest.internal_threshold", 3)
	v.SetDefault("suggest.typing_debounce", "150ms")
	v.SetDefault("suggest.barcode_debounce", "500ms")
	v.SetDefault("suggest.max_suggestions", 10)
	v.SetDefault("suggest.dedupe_external", false)

	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.capacity", 50)
	v.SetDefault("cache.evict_batch", 10)

	v.SetDefault("catalog.type", CatalogMemory)
	v.SetDefault("catalog.seed_file", "")
	v.SetDefault("catalog.database_url", "")
	v.SetDefault("catalog.max_conns", 0)
	v.SetDefault("catalog.migrate", false)

	v.SetDefault("verify.verified_threshold", 0.8)
	v.SetDefault("verify.session_idle_ttl", "10m")

	v.SetDefault("usda_api_key", "")
}

// applySourceDefaults registers Open Food Facts, plus USDA when a key is
// configured, if no sources were listed explicitly. Listed sources get a 3s
// timeout when they have none.
func applySourceDefaults(config *Config) {
	if len(config.External) == 0 {
		config.External = append(config.External, SourceConfig{ID: KindOpenFoodFacts, Kind: KindOpenFoodFacts})
		if config.USDAAPIKey != "" {
			config.External = append(config.External, SourceConfig{ID: KindUSDA, Kind: KindUSDA, APIKey: config.USDAAPIKey})
		}
	}
	for i := range config.External {
		if config.External[i].Timeout <= 0 {
			config.External[i].Timeout = 3 * time.Second
		}
		if config.External[i].ID == "" {
			config.External[i].ID = config.External[i].Kind
		}
	}
}

// validate validates the configuration
func validate(config *Config) error {
	switch config.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be 'console' or 'json', got: %s", config.Log.Format)
	}

	switch config.Catalog.Type {
	case CatalogMemory:
	case CatalogPostgres:
		if config.Catalog.DatabaseURL == "" {
			return fmt.Errorf("database url is required when catalog type is 'postgres' (set PRODUCTCHECK_CATALOG_DATABASE_URL)")
		}
	default:
		return fmt.Errorf("catalog type must be 'memory' or 'postgres', got: %s", config.Catalog.Type)
	}

	if config.Suggest.MinQueryLength < 1 {
		return fmt.Errorf("suggest.min_query_length must be positive")
	}
	if config.Suggest.InternalThreshold < 1 || config.Suggest.MaxSuggestions < 1 {
		return fmt.Errorf("suggest.internal_threshold and suggest.max_suggestions must be positive")
	}
	if config.Suggest.TypingDebounce <= 0 || config.Suggest.BarcodeDebounce <= 0 {
		return fmt.Errorf("debounce windows must be positive")
	}

	if config.Cache.TTL <= 0 || config.Cache.Capacity < 1 || config.Cache.EvictBatch < 1 {
		return fmt.Errorf("cache ttl, capacity and evict_batch must be positive")
	}
	if config.Cache.EvictBatch > config.Cache.Capacity {
		return fmt.Errorf("cache.evict_batch (%d) exceeds cache.capacity (%d)", config.Cache.EvictBatch, config.Cache.Capacity)
	}

	if config.Verify.VerifiedThreshold <= 0 || config.Verify.VerifiedThreshold > 1 {
		return fmt.Errorf("verify.verified_threshold must be in (0, 1], got: %v", config.Verify.VerifiedThreshold)
	}

	seen := make(map[string]bool, len(config.External))
	for i, s := range config.External {
		if s.ID == "" {
			return fmt.Errorf("external source %d has no id", i)
		}
		if s.ID == "internal" {
			return fmt.Errorf("external source id 'internal' is reserved")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate external source id: %s", s.ID)
		}
		seen[s.ID] = true

		switch s.Kind {
		case KindOpenFoodFacts:
		case KindUSDA:
			if s.APIKey == "" && s.IsEnabled() {
				return fmt.Errorf("external source %s: USDA requires an api key", s.ID)
			}
		default:
			return fmt.Errorf("external source %s: unknown kind %q", s.ID, s.Kind)
		}
	}
	return nil
}
