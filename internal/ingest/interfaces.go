// Package ingest is the chunked ingestion engine: it pulls bounded chunks of
// raw rows from a source, normalizes and validates each row, commits valid
// rows through a sink in one transactional batch per chunk, and accounts for
// every row in run-level statistics.
package ingest

import (
	"context"
	"errors"

	"github.com/dvloznov/bank-ingest/internal/domain"
)

// ErrSourceDrained is returned by ChunkSource.Next when the source has no
// more rows. It is the normal end-of-run signal, not a failure.
var ErrSourceDrained = errors.New("ingest: source drained")

// Chunk is a bounded contiguous slice of the source row stream, the unit of
// transactional commit.
type Chunk struct {
	// Index is the 1-based position of the chunk in the run.
	Index int

	Rows []domain.RawRow

	// Raw is the chunk's original bytes (header included), handed to the
	// backup side-channel. Nil when the source does not retain them.
	Raw []byte
}

// ChunkSource yields successive chunks from a finite source stream. A source
// is consumed once; restarting a run means recreating the source.
type ChunkSource interface {
	// Next returns the next chunk, or ErrSourceDrained when exhausted.
	Next(ctx context.Context) (*Chunk, error)
}

// Sink is the storage contract the engine depends on. UpsertBatch must be
// idempotent under natural-key conflict (insert-or-ignore on transaction_id)
// and must commit or roll back atomically per call. Adapters classify their
// failures as TransientSinkError or FatalSinkError.
type Sink interface {
	// Ping verifies the sink is reachable before the run starts.
	Ping(ctx context.Context) error

	// UpsertBatch stores the batch and returns the number of rows actually
	// inserted (conflicting natural keys are ignored, not errors).
	UpsertBatch(ctx context.Context, txs []domain.Transaction) (int, error)

	// Count returns the sink's total stored row count, used for the final
	// verification read at the end of a run.
	Count(ctx context.Context) (int64, error)
}

// BackupStore is the optional fire-and-forget raw-chunk side-channel.
// Failures are logged by the caller and never block ingestion.
type BackupStore interface {
	StoreRawChunk(ctx context.Context, name string, data []byte) error
}
