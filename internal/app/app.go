// Package app wires configuration into the running core: logger, metrics,
// catalog, external sources, cache, aggregator, verifier and session registry.
// Both the HTTP server and the lookup CLI build their dependencies here.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/macrolens/productcheck/config"
	"github.com/macrolens/productcheck/internal/domain"
	"github.com/macrolens/productcheck/internal/infrastructure/cache"
	"github.com/macrolens/productcheck/internal/infrastructure/catalog"
	"github.com/macrolens/productcheck/internal/infrastructure/external"
	"github.com/macrolens/productcheck/internal/infrastructure/metrics"
	"github.com/macrolens/productcheck/internal/logger"
	"github.com/macrolens/productcheck/internal/usecase"
)

// Service name reported in logs and the health check
const Service = "productcheck"

// Options tunes construction for the calling binary
type Options struct {
	// LogWriter overrides stdout as the log sink
	LogWriter io.Writer
	// GoMetrics registers Go runtime and process collectors
	GoMetrics bool
	// Catalog replaces the configured catalog backend
	Catalog domain.InternalSource
}

// App holds the wired core
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Metrics    *metrics.Prometheus
	Cache      *cache.SuggestionCache
	Aggregator *usecase.Aggregator
	Verifier   *usecase.Verifier
	Sessions   *usecase.SessionRegistry
	Sources    []domain.SourceDescriptor

	pool *pgxpool.Pool
}

// New builds the application from cfg
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	log := logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: Service,
		Writer:  opts.LogWriter,
	})
	recorder := metrics.NewPrometheus(metrics.Options{GoMetrics: opts.GoMetrics})

	a := &App{Config: cfg, Logger: log, Metrics: recorder}

	internalSource := opts.Catalog
	if internalSource == nil {
		src, err := a.openCatalog(ctx)
		if err != nil {
			return nil, err
		}
		internalSource = src
	}
	internal := usecase.NewInternalAdapter(internalSource, logger.Named(log, "catalog"), recorder)

	externals := a.externalSources()

	a.Cache = cache.NewSuggestionCache(cache.Config{
		TTL:        cfg.Cache.TTL,
		Capacity:   cfg.Cache.Capacity,
		EvictBatch: cfg.Cache.EvictBatch,
	})
	a.Aggregator = usecase.NewAggregator(internal, externals, a.Cache, usecase.AggregatorConfig{
		MinQueryLength:    cfg.Suggest.MinQueryLength,
		InternalThreshold: cfg.Suggest.InternalThreshold,
		MaxSuggestions:    cfg.Suggest.MaxSuggestions,
		DedupeExternal:    cfg.Suggest.DedupeExternal,
	}, logger.Named(log, "aggregator"), recorder)
	a.Verifier = usecase.NewVerifier(internal, externals, usecase.VerifierConfig{
		MinQueryLength: a.Aggregator.MinQueryLength(),
	}, logger.Named(log, "verifier"), recorder)
	a.Sessions = usecase.NewSessionRegistry(a.Aggregator, a.Verifier, usecase.SessionConfig{
		TypingDebounce:  cfg.Suggest.TypingDebounce,
		BarcodeDebounce: cfg.Suggest.BarcodeDebounce,
	}, cfg.Verify.SessionIdleTTL, logger.Named(log, "session"))

	return a, nil
}

// Close stops every session and releases the database pool
func (a *App) Close() {
	a.Sessions.Close()
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) openCatalog(ctx context.Context) (domain.InternalSource, error) {
	cfg := a.Config.Catalog
	log := logger.Named(a.Logger, "catalog")

	switch cfg.Type {
	case config.CatalogPostgres:
		pool, err := catalog.OpenPool(ctx, catalog.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("open catalog database: %w", err)
		}
		pg := catalog.NewPostgres(pool, log)
		if cfg.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				pool.Close()
				return nil, err
			}
		}
		a.pool = pool
		log.Info().Msg("postgres catalog connected")
		return pg, nil

	default:
		var products []domain.CatalogProduct
		if cfg.SeedFile != "" {
			var err error
			products, err = catalog.LoadSeed(cfg.SeedFile)
			if err != nil {
				return nil, err
			}
		} else {
			log.Warn().Msg("no seed file configured, internal catalog is empty")
		}
		mem := catalog.NewMemory(products, log)
		log.Info().Int("products", mem.Len()).Msg("memory catalog loaded")
		return mem, nil
	}
}

func (a *App) externalSources() []*usecase.ExternalSource {
	var out []*usecase.ExternalSource
	for _, sc := range a.Config.External {
		if !sc.IsEnabled() {
			continue
		}
		named := logger.Named(a.Logger, "external")
		log := named.With().Str("source", sc.ID).Logger()
		clientCfg := external.ClientConfig{
			BaseURL:           sc.BaseURL,
			APIKey:            sc.APIKey,
			RatePerSecond:     sc.RatePerSecond,
			Burst:             sc.Burst,
			VerifiedThreshold: a.Config.Verify.VerifiedThreshold,
		}

		var db domain.ProductDatabase
		switch sc.Kind {
		case config.KindUSDA:
			db = external.NewUSDA(clientCfg, log)
		default:
			db = external.NewOpenFoodFacts(clientCfg, log)
		}

		desc := domain.SourceDescriptor{ID: sc.ID, Kind: domain.SourceExternal, Timeout: sc.Timeout}
		a.Sources = append(a.Sources, desc)
		out = append(out, usecase.NewExternalSource(desc, db, named, a.Metrics))
	}
	return out
}
