package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"car-listing-scraper/config"
	"car-listing-scraper/scraper/catalog"
	"car-listing-scraper/services"
	"car-listing-scraper/storage"
	"car-listing-scraper/utils"
)

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, logger)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, logger *utils.Logger) int {
	started := time.Now()

	logger.Info("=== Used-car catalog scraper starting ===")
	logger.Info("Config: target %s | max iterations %d | stable after %d | settle %v",
		cfg.TargetURL, cfg.MaxIterations, cfg.StableIterations, cfg.Settle)

	scraper := catalog.New(cfg, logger)
	rawListings, stats, scrapeErr := scraper.Scrape(ctx)

	switch {
	case errors.Is(scrapeErr, catalog.ErrNoListingsFound):
		logger.Error("No listings found: %v", scrapeErr)
		logger.Error("Check LISTING_SELECTOR against the current page layout.")
		return 1
	case stats.Partial:
		logger.Warn("Run incomplete: %v", scrapeErr)
	case scrapeErr != nil:
		logger.Error("Scrape failed: %v", scrapeErr)
		return 1
	}

	records := services.NewExtractor(logger).ExtractAll(rawListings)

	writers, err := openWriters(cfg, logger, started)
	if err != nil {
		logger.Error("%v", err)
		return 1
	}
	exportFailed := false
	for _, w := range writers {
		if err := w.Write(records); err != nil {
			logger.Error("Export failed: %v", err)
			exportFailed = true
		}
		if err := w.Close(); err != nil {
			logger.Warn("Closing writer: %v", err)
		}
	}

	reportSvc := services.NewReportService(logger)
	reportSvc.Print(reportSvc.Generate(records, services.RunOutcome{
		Revealed:   stats.Revealed,
		Iterations: stats.Iterations,
		Partial:    stats.Partial,
		Err:        scrapeErr,
	}))

	fmt.Printf("  Done in %v. %d records exported.\n\n", time.Since(started).Round(time.Second), len(records))

	return exitCode(stats, scrapeErr, exportFailed)
}

// exitCode is 0 only for a converged scrape that exported cleanly.
func exitCode(stats *catalog.RunStats, scrapeErr error, exportFailed bool) int {
	if exportFailed || scrapeErr != nil || (stats != nil && stats.Partial) {
		return 1
	}
	return 0
}

func openWriters(cfg *config.Config, logger *utils.Logger, started time.Time) ([]storage.RecordWriter, error) {
	path := storage.OutputPath(cfg.OutputDir, cfg.OutputPrefix, started)
	csvWriter, err := storage.NewCSVWriter(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}
	logger.Info("Writing records to %s", csvWriter.Path())
	writers := []storage.RecordWriter{csvWriter}

	if cfg.StorePostgres {
		pgWriter, err := storage.NewPostgresWriter(cfg.DSN())
		if err != nil {
			_ = csvWriter.Close()
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		logger.Info("Storing records in PostgreSQL (table car_listings, run %s)", pgWriter.RunID())
		writers = append(writers, pgWriter)
	}
	return writers, nil
}
