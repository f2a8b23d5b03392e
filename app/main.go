package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/hasici-feed/app/api"
	"github.com/lysyi3m/hasici-feed/app/cfg"
	"github.com/lysyi3m/hasici-feed/app/civiltime"
	"github.com/lysyi3m/hasici-feed/app/database"
	"github.com/lysyi3m/hasici-feed/app/feed"
	"github.com/lysyi3m/hasici-feed/app/geocode"
	"github.com/lysyi3m/hasici-feed/app/ingest"
	"github.com/lysyi3m/hasici-feed/app/observability"
	"github.com/lysyi3m/hasici-feed/app/tasks"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	appCfg, err := cfg.Load()
	if err != nil {
		return err
	}
	if appCfg == nil {
		return nil
	}

	slog.SetDefault(observability.NewLogger(appCfg.Debug, appCfg.LogFormat))
	if !appCfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	slog.Info("Starting hasici-feed", "version", appCfg.Version, "timezone", appCfg.Timezone)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	version, _, err := database.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version)

	configCache := feed.NewConfigCache(appCfg.FeedsDir)
	if err := configCache.Run(); err != nil {
		return fmt.Errorf("failed to load source configurations: %w", err)
	}
	if err := configCache.RegisterDefault(appCfg.FeedURL, appCfg.Relays, appCfg.GUIDPrefix); err != nil {
		return err
	}
	if configCache.GetConfigCount() == 0 {
		slog.Warn("No sources configured, set FEED_URL or add files to FEEDS_DIR")
	}
	slog.Info("Sources loaded", "count", configCache.GetConfigCount(), "enabled", len(configCache.GetEnabledConfigs()))

	normalizer, err := civiltime.NewNormalizer(appCfg.Timezone)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	incidentRepo := database.NewIncidentRepository(db)
	placeRepo := database.NewPlaceRepository(db)
	runRepo := database.NewRunRepository(db)

	var enricher *ingest.Enricher
	if appCfg.GeocodeEnabled {
		geocoder := geocode.NewNominatimClient(appCfg.GeocodeURL, appCfg.UserAgent, 10*time.Second, metrics)
		enricher = ingest.NewEnricher(placeRepo, geocoder, appCfg.GeocodeLimit, appCfg.GeocodeDelay, appCfg.GeocodeCountry, nil)
		metrics.GeocodeEnabled.Set(1)
	}

	reconciler := ingest.NewReconciler(ingest.Deps{
		Fetcher:    feed.NewFetcher(appCfg.FetchTimeout, appCfg.UserAgent, appCfg.InsecureHosts, metrics),
		Normalizer: normalizer,
		Incidents:  incidentRepo,
		Runs:       runRepo,
		Enricher:   enricher,
		Metrics:    metrics,
	})

	scheduler := tasks.NewScheduler(configCache, reconciler, tasks.Options{
		Interval:    time.Duration(appCfg.SchedulerInterval) * time.Second,
		WorkerCount: appCfg.WorkerCount,
	})
	scheduler.Start()

	handler := api.NewHandler(configCache, incidentRepo, placeRepo, runRepo, reconciler, appCfg.BaseUrl, appCfg.Version)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case runErr = <-serverErrChan:
	}

	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	scheduler.Stop()
	slog.Info("Shutdown complete")

	return runErr
}
