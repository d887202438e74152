package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/macrolens/productcheck/config"
	"github.com/macrolens/productcheck/internal/app"
	httpDelivery "github.com/macrolens/productcheck/internal/delivery/http"
	"github.com/macrolens/productcheck/internal/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "productcheck: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{GoMetrics: true})
	if err != nil {
		return err
	}
	defer a.Close()

	log := logger.Named(a.Logger, "server")
	log.Info().
		Str("version", httpDelivery.Version).
		Str("environment", cfg.Server.Environment).
		Str("catalog", cfg.Catalog.Type).
		Int("external_sources", len(a.Sources)).
		Dur("cache_ttl", cfg.Cache.TTL).
		Msg("starting productcheck")
	for _, src := range a.Sources {
		log.Info().Str("source", src.ID).Dur("timeout", src.Timeout).Msg("external source registered")
	}

	handler := httpDelivery.NewHandler(a.Sessions, a.Sources, logger.Named(a.Logger, "http"))
	router := httpDelivery.SetupRouter(cfg, httpDelivery.RouterDeps{
		Handler:        handler,
		Sessions:       a.Sessions,
		Metrics:        a.Metrics,
		MetricsHandler: a.Metrics.Handler(),
		Logger:         logger.Named(a.Logger, "http"),
	})

	go a.Sessions.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Event streams only end when their session closes
	a.Sessions.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
