// Package main is the entry point for the HeatView server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/heatview/server/internal/api"
	"github.com/heatview/server/internal/cache"
	"github.com/heatview/server/internal/config"
	"github.com/heatview/server/internal/data/genes"
	"github.com/heatview/server/internal/data/pav"
	"github.com/heatview/server/internal/data/pipeline"
	"github.com/heatview/server/internal/logger"
	"github.com/heatview/server/internal/minimap"
	"github.com/heatview/server/internal/render"
	"github.com/heatview/server/internal/service"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	// .env is optional; flags and YAML carry the real configuration.
	envLoaded := godotenv.Load() == nil

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Invalid log level %q: %v", cfg.Logging.Level, err)
	}
	if err := logger.Init(level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if envLoaded {
		logger.Debug("loaded environment from .env")
	}
	logger.Info("starting heatview server", zap.Int("port", cfg.Server.Port))

	// Initialize cache manager (shared across all datasets)
	cacheManager, err := cache.NewManager(cache.Config{
		FrameCacheSizeMB: cfg.Cache.FrameSizeMB,
		FrameTTL:         time.Duration(cfg.Cache.FrameTTLMinutes) * time.Minute,
		QueryCacheSize:   cfg.Cache.QueryEntries,
	})
	if err != nil {
		logger.Fatal("failed to initialize cache", zap.Error(err))
	}
	defer cacheManager.Close()

	// Renderers are stateless and shared across all datasets.
	heatmapRenderer := render.NewHeatmapRenderer(render.Config{
		SurfaceWidth: cfg.Render.SurfaceWidth,
		RowHeight:    cfg.Render.RowHeight,
	})
	minimapRenderer := minimap.NewRenderer(minimap.Config{
		Width:  cfg.Minimap.Width,
		Height: cfg.Minimap.Height,
	})

	// Initialize dataset registry
	datasetIDs := cfg.Data.DatasetIDs()
	registry := api.NewDatasetRegistry(cfg.Data.DefaultDataset, datasetIDs, cfg.Server.Title)

	logger.Info("initializing datasets",
		zap.Int("count", len(datasetIDs)),
		zap.String("default", cfg.Data.DefaultDataset))

	for _, datasetID := range datasetIDs {
		dsCfg := cfg.Data.Datasets[datasetID]

		ds, err := genes.Load(dsCfg.Path)
		if err != nil {
			logger.Fatal("failed to load dataset",
				zap.String("dataset", datasetID), zap.Error(err))
		}
		logger.Info("dataset loaded",
			zap.String("dataset", datasetID),
			zap.String("path", dsCfg.Path),
			zap.String("organism", ds.Meta.Organism),
			zap.Int("genes", ds.Meta.NGenes))

		arts, err := pipeline.Load(dsCfg.Path, ds.Meta.NRefGenomes, ds.Store.NA())
		if err != nil {
			logger.Fatal("failed to load pipeline artifacts",
				zap.String("dataset", datasetID), zap.Error(err))
		}

		// The PAV matrix is optional; the heatmap works without it.
		var pavMatrix *pav.Matrix
		if dsCfg.PavPath != "" {
			m, err := pav.Open(dsCfg.PavPath)
			if err != nil {
				logger.Warn("pav matrix not opened",
					zap.String("dataset", datasetID), zap.Error(err))
			} else {
				pavMatrix = m
				logger.Info("pav matrix ready",
					zap.String("dataset", datasetID),
					zap.String("array", m.ArrayURI()),
					zap.Bool("supported", m.Supported()))
			}
		}

		registry.Register(datasetID, service.NewViewerService(service.ViewerServiceConfig{
			DatasetID: datasetID,
			Dataset:   ds,
			Artifacts: arts,
			Pav:       pavMatrix,
			Cache:     cacheManager,
			Heatmap:   heatmapRenderer,
			Minimap:   minimapRenderer,
		}))
	}

	// Viewer sessions expire after idle TTL.
	sessions := service.NewSessionManager(time.Duration(cfg.Sessions.TTLMinutes) * time.Minute)
	defer sessions.Close()

	// Initialize export job manager (SQLite persistence)
	jobManager, err := api.NewJobManager(api.JobManagerConfig{
		MaxConcurrent:  cfg.Jobs.Workers,
		SQLitePath:     cfg.Jobs.DBPath,
		RetentionHours: cfg.Jobs.RetentionHours,
		CleanupPeriod:  1 * time.Hour,
	})
	if err != nil {
		logger.Fatal("failed to initialize job manager", zap.Error(err))
	}
	jobManager.Executor = api.NewExportExecutor(registry)
	jobManager.Start()
	defer jobManager.Stop()

	logger.Info("export job manager ready",
		zap.Int("workers", cfg.Jobs.Workers),
		zap.Int("retention_hours", cfg.Jobs.RetentionHours),
		zap.String("sqlite", cfg.Jobs.DBPath))

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Registry:    registry,
		CORSOrigins: cfg.Server.CORSOrigins,
		Sessions:    sessions,
		Jobs:        jobManager,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", zap.String("addr", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
