package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-ingest/internal/domain"
)

// ChunkIngestor processes one chunk at a time: validate every row, batch the
// valid ones, commit the batch through the sink with retry on transient
// failures, and account for every row in the chunk's stats.
type ChunkIngestor struct {
	validator   *Validator
	sink        Sink
	backup      BackupStore // nil disables the side-channel
	retry       RetryPolicy
	sinkTimeout time.Duration
	log         zerolog.Logger
}

// NewChunkIngestor wires an ingestor. backup may be nil.
func NewChunkIngestor(validator *Validator, sink Sink, backup BackupStore, retry RetryPolicy, sinkTimeout time.Duration, log zerolog.Logger) *ChunkIngestor {
	return &ChunkIngestor{
		validator:   validator,
		sink:        sink,
		backup:      backup,
		retry:       retry,
		sinkTimeout: sinkTimeout,
		log:         log,
	}
}

// IngestChunk runs the chunk end to end and returns its stats. The returned
// error is non-nil only for fatal sink failures; transient failures that
// exhaust the retry budget are absorbed into the stats (chunk stored zero,
// rows counted as failed) so the run can continue.
func (ci *ChunkIngestor) IngestChunk(ctx context.Context, chunk *Chunk) (ChunkStats, error) {
	start := time.Now()
	stats := NewChunkStats(chunk.Index)
	stats.Seen = len(chunk.Rows)

	ci.storeBackup(ctx, chunk)

	batch := make([]domain.Transaction, 0, len(chunk.Rows))
	for _, row := range chunk.Rows {
		tx, rej := ci.validator.Validate(row)
		if rej != nil {
			stats.Reject(rej.Category)
			ci.log.Debug().
				Int("line", row.Line).
				Str("category", string(rej.Category)).
				Str("reason", rej.Reason).
				Msg("row rejected")
			continue
		}
		batch = append(batch, tx)
	}

	if len(batch) > 0 {
		inserted, err := ci.commitBatch(ctx, batch)
		switch {
		case err == nil:
			stats.Stored = len(batch)
			stats.Inserted = inserted
		case IsFatal(err):
			stats.Failed = len(batch)
			stats.Duration = time.Since(start)
			return stats, fmt.Errorf("IngestChunk: chunk %d: %w", chunk.Index, err)
		default:
			// Retries exhausted (or the run was cancelled mid-backoff):
			// this chunk persists nothing, the run moves on.
			stats.Failed = len(batch)
			ci.log.Error().
				Err(err).
				Int("chunk", chunk.Index).
				Int("rows", len(batch)).
				Msg("chunk persistence failed, continuing run")
		}
	}

	stats.Duration = time.Since(start)
	ci.log.Info().
		Int("chunk", chunk.Index).
		Int("seen", stats.Seen).
		Int("stored", stats.Stored).
		Int("inserted", stats.Inserted).
		Int("rejected", stats.RejectedTotal()).
		Int("failed", stats.Failed).
		Dur("duration", stats.Duration).
		Msg("chunk done")
	return stats, nil
}

// commitBatch submits the batch inside the retry policy. Each attempt gets
// its own timeout; exceeding it is a transient failure like any other.
func (ci *ChunkIngestor) commitBatch(ctx context.Context, batch []domain.Transaction) (int, error) {
	var inserted int
	attempt := 0
	err := ci.retry.Do(ctx, func() error {
		attempt++
		callCtx := ctx
		if ci.sinkTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, ci.sinkTimeout)
			defer cancel()
		}

		n, err := ci.sink.UpsertBatch(callCtx, batch)
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded && !IsFatal(err) {
				err = Transient(err)
			}
			ci.log.Warn().Err(err).Int("attempt", attempt).Msg("sink batch failed")
			return err
		}
		inserted = n
		return nil
	})
	return inserted, err
}

func (ci *ChunkIngestor) storeBackup(ctx context.Context, chunk *Chunk) {
	if ci.backup == nil || len(chunk.Raw) == 0 {
		return
	}
	name := fmt.Sprintf("bank_transactions_chunk_%d_%s.csv", chunk.Index, time.Now().UTC().Format("20060102_150405"))
	if err := ci.backup.StoreRawChunk(ctx, name, chunk.Raw); err != nil {
		// Best effort only; a dead side-channel must never fail the run.
		ci.log.Warn().Err(err).Int("chunk", chunk.Index).Msg("raw chunk backup failed")
	}
}
