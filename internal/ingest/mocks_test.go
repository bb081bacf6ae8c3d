package ingest

import (
	"context"
	"sync"

	"github.com/dvloznov/bank-ingest/internal/domain"
)

// mockSink is a func-field sink double. The zero value accepts everything
// and counts inserts by natural key, so replaying a batch is idempotent.
type mockSink struct {
	PingFunc        func(ctx context.Context) error
	UpsertBatchFunc func(ctx context.Context, txs []domain.Transaction) (int, error)
	CountFunc       func(ctx context.Context) (int64, error)

	mu    sync.Mutex
	keys  map[string]bool
	calls int
}

func (m *mockSink) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

func (m *mockSink) UpsertBatch(ctx context.Context, txs []domain.Transaction) (int, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.UpsertBatchFunc != nil {
		return m.UpsertBatchFunc(ctx, txs)
	}
	return m.store(txs), nil
}

// store applies insert-or-ignore semantics on TransactionID.
func (m *mockSink) store(txs []domain.Transaction) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	inserted := 0
	for _, tx := range txs {
		if !m.keys[tx.TransactionID] {
			m.keys[tx.TransactionID] = true
			inserted++
		}
	}
	return inserted
}

func (m *mockSink) Count(ctx context.Context) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.keys)), nil
}

func (m *mockSink) upsertCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockBackup struct {
	StoreRawChunkFunc func(ctx context.Context, name string, data []byte) error

	mu    sync.Mutex
	names []string
}

func (m *mockBackup) StoreRawChunk(ctx context.Context, name string, data []byte) error {
	m.mu.Lock()
	m.names = append(m.names, name)
	m.mu.Unlock()
	if m.StoreRawChunkFunc != nil {
		return m.StoreRawChunkFunc(ctx, name, data)
	}
	return nil
}

// sliceSource yields pre-built chunks, then ErrSourceDrained.
type sliceSource struct {
	mu     sync.Mutex
	chunks []*Chunk
	pulled int
}

func (s *sliceSource) Next(ctx context.Context) (*Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pulled >= len(s.chunks) {
		return nil, ErrSourceDrained
	}
	chunk := s.chunks[s.pulled]
	s.pulled++
	return chunk, nil
}

func (s *sliceSource) pulledChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulled
}
