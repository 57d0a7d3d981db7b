// Command importer copies a legacy visits.json into the SQLite visit store once and exits.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"sitestats/internal/config"
	"sitestats/internal/database"
	"sitestats/internal/database/repositories"
	"sitestats/internal/ingestion"

	"github.com/pterm/pterm"
)

func main() {
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelInfo)

	cfg, err := config.Load()
	if err != nil {
		logger.WithCaller().Fatal("Failed to load configuration", logger.Args("error", err))
	}

	source := flag.String("source", cfg.Import.Path, "legacy visits.json to import (default LEGACY_IMPORT_PATH)")
	dbPath := flag.String("db", cfg.Database.Path, "SQLite database path (default DB_PATH)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		logger = pterm.DefaultLogger.WithLevel(pterm.LogLevelDebug)
	}
	if *source == "" {
		*source = cfg.Store.VisitsFile
	}

	pterm.DefaultSection.Println("sitestats legacy import")
	pterm.Info.Printfln("Source:   %s", *source)
	pterm.Info.Printfln("Database: %s", *dbPath)

	db, err := database.NewConnection(&database.Config{
		Path:         *dbPath,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		ConnMaxLife:  cfg.Database.ConnMaxLife,
	}, logger)
	if err != nil {
		logger.WithCaller().Fatal("Failed to connect to database", logger.Args("error", err))
	}
	defer database.Close(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	importer := ingestion.NewImporter(
		*source,
		repositories.NewVisitRepository(db, logger),
		repositories.NewImportSourceRepository(db),
		logger,
	)

	result, err := importer.Run(ctx)
	if err != nil {
		logger.WithCaller().Error("Import failed", logger.Args("error", err))
		database.Close(db)
		os.Exit(1)
	}

	pterm.Success.Printfln("Imported %d new visits (%d in file, %d scanned) in %s",
		result.Imported, result.Seen, result.Scanned, result.Duration)
}
