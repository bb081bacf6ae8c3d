package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-ingest/internal/backup"
	"github.com/dvloznov/bank-ingest/internal/config"
	bqsink "github.com/dvloznov/bank-ingest/internal/infra/bigquery"
	pgsink "github.com/dvloznov/bank-ingest/internal/infra/postgres"
	"github.com/dvloznov/bank-ingest/internal/ingest"
	"github.com/dvloznov/bank-ingest/internal/logger"
	"github.com/dvloznov/bank-ingest/internal/normalize"
	"github.com/dvloznov/bank-ingest/internal/source"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	filePath := flag.String("file", "", "source CSV to ingest (overrides source.path from the config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Loading configuration failed")
	}
	if *filePath != "" {
		cfg.Source.Path = *filePath
	}

	// A stop signal is honored between chunks: the in-flight chunk always
	// commits or rolls back first.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	stats, err := run(ctx, cfg, log)

	// The terminal report goes to stdout as JSON for the reporting
	// collaborator; logs stay on the console writer.
	if encErr := json.NewEncoder(os.Stdout).Encode(stats); encErr != nil {
		log.Error().Err(encErr).Msg("Encoding terminal report failed")
	}

	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}
	fmt.Fprintln(os.Stderr, "Ingestion completed.")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ingest.RunStats, error) {
	sink, closeSink, err := openSink(ctx, cfg)
	if err != nil {
		return ingest.RunStats{}, err
	}
	defer closeSink()

	var store ingest.BackupStore
	if cfg.Backup.Bucket != "" {
		gcs, err := backup.NewGCSStore(ctx, cfg.Backup.Bucket, cfg.Backup.Prefix)
		if err != nil {
			// The side-channel is best effort from the very start.
			log.Warn().Err(err).Msg("Backup store unavailable, continuing without it")
		} else {
			defer gcs.Close()
			store = gcs
		}
	}

	src, err := source.Open(cfg.Source.Path, cfg.Ingest.ChunkSize)
	if err != nil {
		return ingest.RunStats{}, err
	}
	defer src.Close()

	validator := ingest.NewValidator(cfg.Columns, normalize.Windows{
		TransactionDate: normalize.Window{MinYear: cfg.Dates.TransactionDate.MinYear, MaxYear: cfg.Dates.TransactionDate.MaxYear},
		DateOfBirth:     normalize.Window{MinYear: cfg.Dates.DateOfBirth.MinYear, MaxYear: cfg.Dates.DateOfBirth.MaxYear},
	})
	retry := ingest.RetryPolicy{
		MaxAttempts: cfg.Ingest.RetryAttempts,
		BaseDelay:   cfg.Ingest.RetryBaseDelay,
	}
	ingestor := ingest.NewChunkIngestor(validator, sink, store, retry, cfg.Sink.Timeout, log)
	runner := ingest.NewRunner(cfg.Ingest, ingestor, sink, log)

	log.Info().
		Str("source", cfg.Source.Path).
		Str("sink", cfg.Sink.Kind).
		Int("chunk_size", cfg.Ingest.ChunkSize).
		Strs("columns", src.Header()).
		Msg("Starting ingestion")

	return runner.Run(ctx, src)
}

func openSink(ctx context.Context, cfg *config.Config) (ingest.Sink, func(), error) {
	switch cfg.Sink.Kind {
	case "bigquery":
		store, err := bqsink.NewTransactionStore(ctx, cfg.Sink.Project, cfg.Sink.Dataset, cfg.Sink.Table)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store, err := pgsink.Open(cfg.Database.DSN, cfg.Database.Table)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
}
