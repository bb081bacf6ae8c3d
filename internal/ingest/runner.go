package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-ingest/internal/config"
)

// Runner drives a whole ingestion run: Idle -> Running -> Completed or
// Aborted. Aborted is reserved for a sink that is unreachable before any
// chunk is attempted; per-chunk sink outages are absorbed by the ingestor
// and the run continues.
type Runner struct {
	cfg      config.IngestConfig
	ingestor *ChunkIngestor
	sink     Sink
	recorder *Recorder
	log      zerolog.Logger

	// dispatched counts rows pulled from the source. The record ceiling is
	// checked against it before pulling the next chunk, so the ceiling is a
	// hard bound on chunks attempted and overshoot is at most the chunk
	// already in flight when the ceiling was crossed.
	dispatched atomic.Int64
}

// NewRunner wires a runner around an ingestor and its sink.
func NewRunner(cfg config.IngestConfig, ingestor *ChunkIngestor, sink Sink, log zerolog.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		ingestor: ingestor,
		sink:     sink,
		recorder: NewRecorder(),
		log:      log,
	}
}

// Run consumes the source to exhaustion, the record ceiling, or
// cancellation, and returns the terminal run stats. The returned error is
// non-nil when the run aborted at startup or stopped on a fatal sink
// failure; the stats describe whatever was committed up to that point.
func (r *Runner) Run(ctx context.Context, source ChunkSource) (RunStats, error) {
	runID := uuid.NewString()
	log := r.log.With().Str("run_id", runID).Logger()
	start := time.Now()

	finish := func(state State, partial bool, runErr error) (RunStats, error) {
		stats := r.recorder.Snapshot()
		stats.RunID = runID
		stats.State = state
		stats.Partial = partial
		stats.Elapsed = time.Since(start)
		stats.ElapsedHuman = stats.Elapsed.Round(time.Millisecond).String()
		if secs := stats.Elapsed.Seconds(); secs > 0 {
			stats.RowsPerSecond = float64(stats.RowsSeen) / secs
		}
		stats.VerifiedCount = r.verifySinkCount(ctx, log, state)

		log.Info().
			Str("state", string(state)).
			Bool("partial", partial).
			Int64("rows_seen", stats.RowsSeen).
			Int64("rows_stored", stats.RowsStored).
			Int64("rows_failed", stats.RowsFailed).
			Int64("rejected", stats.RejectedTotal()).
			Int("chunks", stats.ChunksTotal).
			Int("chunks_failed", stats.ChunksFailed).
			Int64("verified_sink_count", stats.VerifiedCount).
			Str("elapsed", stats.ElapsedHuman).
			Msg("run finished")
		return stats, runErr
	}

	// Fatal initialization failure is the only Aborted path.
	if err := r.sink.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("sink unreachable, aborting run")
		return finish(StateAborted, false, fmt.Errorf("Run: sink ping: %w", Fatal(err)))
	}

	log.Info().
		Int("workers", r.cfg.Workers).
		Int64("record_limit", r.cfg.RecordLimit).
		Msg("run started")

	var runErr error
	var partial bool
	if r.cfg.Workers > 1 {
		partial, runErr = r.runPool(ctx, source, log)
	} else {
		partial, runErr = r.runSequential(ctx, source, log)
	}

	if runErr != nil {
		return finish(StateCompleted, true, runErr)
	}
	return finish(StateCompleted, partial, nil)
}

// runSequential is the baseline: one chunk fully committed before the next
// is pulled, bounding memory to a single chunk.
func (r *Runner) runSequential(ctx context.Context, source ChunkSource, log zerolog.Logger) (partial bool, err error) {
	for {
		// Cancellation is honored between chunks only; the in-flight chunk
		// always reached commit or rollback before we get here.
		if ctx.Err() != nil {
			log.Warn().Msg("run cancelled, stopping between chunks")
			return true, nil
		}
		if r.ceilingReached() {
			log.Info().Int64("limit", r.cfg.RecordLimit).Msg("record limit reached")
			return false, nil
		}

		chunk, err := r.pull(ctx, source)
		if err != nil {
			if errors.Is(err, ErrSourceDrained) {
				return false, nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Warn().Msg("run cancelled, stopping between chunks")
				return true, nil
			}
			return true, err
		}

		stats, err := r.ingestor.IngestChunk(ctx, chunk)
		r.recorder.Fold(stats)
		if err != nil {
			return true, err
		}
	}
}

// runPool processes chunks on a fixed-size worker pool. The dispatcher owns
// the source and the ceiling check; workers fold into the shared recorder,
// whose mutex serializes the folds. The join before returning guarantees the
// final verification read sees every in-flight commit.
func (r *Runner) runPool(ctx context.Context, source ChunkSource, log zerolog.Logger) (partial bool, err error) {
	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan *Chunk)
	var wg sync.WaitGroup

	var firstErr error
	var errOnce sync.Once

	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range chunks {
				stats, err := r.ingestor.IngestChunk(poolCtx, chunk)
				r.recorder.Fold(stats)
				if err != nil {
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
				}
			}
		}()
	}

	cancelled := false
dispatch:
	for {
		if poolCtx.Err() != nil {
			cancelled = true
			break
		}
		// Atomic check-before-dispatch: workers cannot race past the limit
		// because only the dispatcher advances the counter.
		if r.ceilingReached() {
			log.Info().Int64("limit", r.cfg.RecordLimit).Msg("record limit reached")
			break
		}

		chunk, pullErr := r.pull(poolCtx, source)
		if pullErr != nil {
			switch {
			case errors.Is(pullErr, ErrSourceDrained):
			case errors.Is(pullErr, context.Canceled), errors.Is(pullErr, context.DeadlineExceeded):
				cancelled = true
			default:
				errOnce.Do(func() { firstErr = pullErr })
				cancelled = true
			}
			break
		}

		select {
		case chunks <- chunk:
		case <-poolCtx.Done():
			cancelled = true
			break dispatch
		}
	}

	close(chunks)
	wg.Wait()

	if firstErr != nil {
		return true, firstErr
	}
	if cancelled || ctx.Err() != nil {
		log.Warn().Msg("run cancelled, stopping between chunks")
		return true, nil
	}
	return false, nil
}

func (r *Runner) ceilingReached() bool {
	return r.cfg.RecordLimit > 0 && r.dispatched.Load() >= r.cfg.RecordLimit
}

func (r *Runner) pull(ctx context.Context, source ChunkSource) (*Chunk, error) {
	chunk, err := source.Next(ctx)
	if err != nil {
		if errors.Is(err, ErrSourceDrained) {
			return nil, err
		}
		return nil, fmt.Errorf("Run: pulling chunk: %w", err)
	}
	r.dispatched.Add(int64(len(chunk.Rows)))
	return chunk, nil
}

// verifySinkCount is the terminal read of the sink's own row count. It runs
// after every in-flight chunk has committed or rolled back.
func (r *Runner) verifySinkCount(ctx context.Context, log zerolog.Logger, state State) int64 {
	if state == StateAborted {
		return -1
	}
	// The run context may already be cancelled; the verification read gets
	// its own short deadline.
	verifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	count, err := r.sink.Count(verifyCtx)
	if err != nil {
		log.Warn().Err(err).Msg("final sink count verification failed")
		return -1
	}
	return count
}
