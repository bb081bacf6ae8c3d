package ingest

import (
	"sync"
	"time"

	"github.com/dvloznov/bank-ingest/internal/domain"
)

// ChunkStats accounts for every row of one chunk. The invariant, checked by
// tests, is Seen == Stored + Failed + sum(Rejected): no row is lost or
// counted twice.
type ChunkStats struct {
	Index int

	// Seen is the number of rows read from the chunk.
	Seen int

	// Stored is the number of valid rows whose chunk commit succeeded.
	// Inserted is how many of those the sink actually inserted; it is lower
	// than Stored when the natural key already existed (idempotent replay).
	Stored   int
	Inserted int

	// Failed counts valid rows whose persistence failed after retries
	// exhausted. The whole batch fails together, one chunk at a time.
	Failed int

	Rejected map[domain.RejectCategory]int

	Duration time.Duration
}

// NewChunkStats prepares stats for one chunk.
func NewChunkStats(index int) ChunkStats {
	return ChunkStats{
		Index:    index,
		Rejected: make(map[domain.RejectCategory]int),
	}
}

// Reject records one rejected row.
func (s *ChunkStats) Reject(cat domain.RejectCategory) {
	s.Rejected[cat]++
}

// RejectedTotal sums rejections across categories.
func (s *ChunkStats) RejectedTotal() int {
	total := 0
	for _, n := range s.Rejected {
		total += n
	}
	return total
}

// State is the run lifecycle.
type State string

const (
	StateIdle      State = "IDLE"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateAborted   State = "ABORTED"
)

// RunStats is the cumulative, run-level view of all folded chunk stats plus
// the terminal report fields. It marshals to the JSON summary consumed by
// the external reporting collaborator.
type RunStats struct {
	RunID   string `json:"run_id"`
	State   State  `json:"state"`
	Partial bool   `json:"partial"`

	RowsSeen     int64 `json:"rows_seen"`
	RowsStored   int64 `json:"rows_stored"`
	RowsInserted int64 `json:"rows_inserted"`
	RowsFailed   int64 `json:"rows_failed"`

	Rejected map[domain.RejectCategory]int64 `json:"rejected"`

	ChunksTotal  int `json:"chunks_total"`
	ChunksFailed int `json:"chunks_failed"`

	Elapsed       time.Duration `json:"elapsed_ns"`
	ElapsedHuman  string        `json:"elapsed"`
	RowsPerSecond float64       `json:"rows_per_second"`

	// VerifiedCount is the sink's own total after the run, -1 when the
	// verification read failed.
	VerifiedCount int64 `json:"verified_sink_count"`
}

// RejectedTotal sums run-level rejections across categories.
func (s RunStats) RejectedTotal() int64 {
	var total int64
	for _, n := range s.Rejected {
		total += n
	}
	return total
}

// Recorder accumulates chunk stats into run totals. Folds are serialized by
// a mutex so the concurrent worker-pool mode can share one recorder.
type Recorder struct {
	mu    sync.Mutex
	stats RunStats
}

// NewRecorder returns an empty recorder. The rejected map is seeded with
// every category so the terminal report always lists all of them, zeros
// included.
func NewRecorder() *Recorder {
	rejected := make(map[domain.RejectCategory]int64, len(domain.Categories()))
	for _, cat := range domain.Categories() {
		rejected[cat] = 0
	}
	return &Recorder{
		stats: RunStats{
			State:    StateIdle,
			Rejected: rejected,
		},
	}
}

// Fold adds one chunk's stats to the run totals. A chunk with any
// persistence-failed rows counts as a failed chunk.
func (r *Recorder) Fold(cs ChunkStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.RowsSeen += int64(cs.Seen)
	r.stats.RowsStored += int64(cs.Stored)
	r.stats.RowsInserted += int64(cs.Inserted)
	r.stats.RowsFailed += int64(cs.Failed)
	for cat, n := range cs.Rejected {
		r.stats.Rejected[cat] += int64(n)
	}
	r.stats.ChunksTotal++
	if cs.Failed > 0 {
		r.stats.ChunksFailed++
	}
}

// Snapshot returns a copy of the current totals.
func (r *Recorder) Snapshot() RunStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.stats
	out.Rejected = make(map[domain.RejectCategory]int64, len(r.stats.Rejected))
	for cat, n := range r.stats.Rejected {
		out.Rejected[cat] = n
	}
	return out
}

// RowsSeen returns the folded row total, used for the pre-pull ceiling check
// in the sequential path.
func (r *Recorder) RowsSeen() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats.RowsSeen
}
