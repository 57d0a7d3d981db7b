package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sitestats/internal/api"
	"sitestats/internal/api/handlers"
	"sitestats/internal/banner"
	"sitestats/internal/config"
	"sitestats/internal/database"
	"sitestats/internal/database/repositories"
	"sitestats/internal/enrichment"
	"sitestats/internal/ingestion"
	"sitestats/internal/realtime"
	"sitestats/internal/stats"
	"sitestats/internal/visits"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

func main() {
	// Initialize logger with INFO level as a sensible default
	// We'll reconfigure the level after loading the configuration (LOG_LEVEL)
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelInfo)

	banner.Print()

	logger.Info("Initializing sitestats...")

	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		logger.WithCaller().Fatal("Failed to load configuration", logger.Args("error", err))
	}

	logger = pterm.DefaultLogger.WithLevel(parseLogLevel(cfg.LogLevel))
	logger.Debug("Log level set", logger.Args("level", cfg.LogLevel))

	logger.Debug("Configuration loaded",
		logger.Args(
			"backend", cfg.Store.Backend,
			"server_port", cfg.Server.Port,
			"track_path", cfg.Server.TrackPath,
			"geoip_enabled", cfg.GeoIP.Enabled,
			"retention_days", cfg.Database.RetentionDays,
		))

	zone, err := cfg.Stats.Location()
	if err != nil {
		logger.WithCaller().Fatal("Invalid stats timezone", logger.Args("error", err))
	}

	// Select the visit store
	var (
		store   visits.Store
		db      *gorm.DB
		visitDB repositories.VisitRepository
	)
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		db, err = database.NewConnection(&database.Config{
			Path:         cfg.Database.Path,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
			ConnMaxLife:  cfg.Database.ConnMaxLife,
		}, logger)
		if err != nil {
			logger.WithCaller().Fatal("Failed to connect to database", logger.Args("error", err))
		}
		visitDB = repositories.NewVisitRepository(db, logger)
		store = visitDB
		logger.Info("Using SQLite visit store", logger.Args("path", cfg.Database.Path))
	default:
		store = visits.NewFileStore(cfg.Store.VisitsFile, logger)
		logger.Info("Using JSON visit store", logger.Args("path", cfg.Store.VisitsFile))
	}

	// Initialize GeoIP locator (optional - falls back to the IP heuristic)
	var locator stats.Locator
	var geoIP *enrichment.GeoIPLocator
	if cfg.GeoIP.Enabled {
		logger.Debug("Initializing GeoIP locator...")
		geoIP, err = enrichment.NewGeoIPLocator(cfg.GeoIP.CityDBPath, cfg.GeoIP.CacheSize, logger)
		if err != nil {
			logger.Warn("GeoIP initialization failed, continuing with IP heuristic", logger.Args("error", err))
		} else {
			logger.Info("GeoIP lookups enabled")
		}
		locator = geoIP
	} else {
		logger.Info("GeoIP lookups disabled by configuration")
	}

	processor := stats.NewProcessor(store, locator, zone, logger)
	recorder := ingestion.NewRecorder(store, logger)

	// Legacy visits.json import into SQLite
	var watcher *ingestion.Watcher
	if cfg.Import.Path != "" {
		if visitDB == nil {
			logger.Warn("LEGACY_IMPORT_PATH requires STORE_BACKEND=sqlite, import skipped",
				logger.Args("path", cfg.Import.Path))
		} else {
			importer := ingestion.NewImporter(cfg.Import.Path, visitDB, repositories.NewImportSourceRepository(db), logger)
			if _, err := importer.Run(context.Background()); err != nil {
				logger.WithCaller().Error("Legacy import failed", logger.Args("error", err))
			}

			if cfg.Import.Watch {
				watcher = ingestion.NewWatcher(importer, ingestion.DefaultDebounce, logger)
				if err := watcher.Start(); err != nil {
					logger.WithCaller().Error("Failed to watch legacy file", logger.Args("error", err))
					watcher = nil
				}
			}
		}
	}

	// Initialize retention cleanup service
	logger.Debug("Initializing cleanup service...")
	var paused database.IngestionController
	if watcher != nil {
		paused = watcher
	}
	cleanupService := database.NewCleanupService(
		store,
		db,
		logger,
		cfg.Database.RetentionDays,
		cfg.Database.CleanupInterval,
		cfg.Database.CleanupTime,
		cfg.Database.VacuumEnabled,
		paused,
	)
	cleanupService.Start()

	// Initialize real-time metrics collector with configured interval
	logger.Debug("Initializing real-time metrics collector...")
	metricsCollector := realtime.NewMetricsCollector(store, logger)
	metricsCollector.Start(cfg.Performance.RealtimeMetricsInterval)

	// Initialize web server with configured settings
	logger.Info("Initializing web server...")
	webServer := api.NewServer(&api.Config{
		Host:       cfg.Server.Host,
		Port:       cfg.Server.Port,
		Production: cfg.Server.Production,
		TrackPath:  cfg.Server.TrackPath,
		RateLimit:  cfg.Server.RateLimitRequests,
		RateWindow: cfg.Server.RateLimitWindow,
	},
		handlers.NewVisitsHandler(processor, store, logger),
		handlers.NewRealtimeHandler(metricsCollector, cfg.Performance.RealtimeMetricsInterval, logger),
		recorder,
		logger,
	)

	// Start web server in goroutine
	go func() {
		if err := webServer.Run(); err != nil {
			logger.WithCaller().Error("Web server error", logger.Args("error", err))
		}
	}()

	logger.Info("sitestats is running",
		logger.Args(
			"url", pterm.Sprintf("http://localhost:%d", cfg.Server.Port),
			"stats", "/api/visits/stats",
		))

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	logger.Info("Shutdown signal received, stopping services...")

	// Stop background writers first
	if watcher != nil {
		logger.Debug("Stopping legacy file watcher...")
		watcher.Stop()
	}

	logger.Debug("Stopping cleanup service...")
	cleanupService.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop web server (this will close SSE connections)
	logger.Debug("Stopping web server...")
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		logger.WithCaller().Error("Web server shutdown error", logger.Args("error", err))
	} else {
		logger.Info("Web server stopped successfully")
	}

	metricsCollector.Stop()

	if geoIP != nil {
		if err := geoIP.Close(); err != nil {
			logger.Warn("Failed to close GeoIP database", logger.Args("error", err))
		}
	}

	if db != nil {
		if err := database.Close(db); err != nil {
			logger.Warn("Failed to close database", logger.Args("error", err))
		}
	}

	logger.Info("sitestats stopped gracefully")
}

// parseLogLevel maps LOG_LEVEL (trace, debug, info, warn, error, fatal) to pterm
func parseLogLevel(level string) pterm.LogLevel {
	switch strings.ToLower(level) {
	case "trace":
		return pterm.LogLevelTrace
	case "debug":
		return pterm.LogLevelDebug
	case "warn", "warning":
		return pterm.LogLevelWarn
	case "error":
		return pterm.LogLevelError
	case "fatal":
		return pterm.LogLevelFatal
	default:
		return pterm.LogLevelInfo
	}
}
