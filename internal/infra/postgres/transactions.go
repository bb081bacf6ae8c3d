// Package postgres adapts a Postgres database to the engine's sink contract.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/dvloznov/bank-ingest/internal/domain"
	"github.com/dvloznov/bank-ingest/internal/ingest"
)

// TransactionStore persists normalized transactions with insert-or-ignore
// semantics on the natural key. One UpsertBatch call is one database
// transaction: it commits whole or rolls back whole.
type TransactionStore struct {
	db    *sql.DB
	table string
}

var _ ingest.Sink = (*TransactionStore)(nil)

// Open connects to Postgres and wraps the connection as a sink.
func Open(dsn, table string) (*TransactionStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	return NewTransactionStore(db, table), nil
}

// NewTransactionStore wires an existing sql.DB.
func NewTransactionStore(db *sql.DB, table string) *TransactionStore {
	if table == "" {
		table = "transactions"
	}
	return &TransactionStore{db: db, table: table}
}

// Ping verifies the database is reachable. The runner calls it once before
// the first chunk; a failure here aborts the run.
func (s *TransactionStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

// UpsertBatch inserts the batch inside one transaction, ignoring rows whose
// transaction_id already exists, and returns the number actually inserted.
func (s *TransactionStore) UpsertBatch(ctx context.Context, txs []domain.Transaction) (inserted int, err error) {
	if len(txs) == 0 {
		return 0, nil
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("begin", err)
	}
	defer func() {
		if err != nil {
			_ = dbTx.Rollback()
		}
	}()

	query := fmt.Sprintf(`INSERT INTO %s
        (transaction_id, customer_id, customer_dob, cust_gender, cust_location,
         cust_account_balance, transaction_date, transaction_time, transaction_amount)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (transaction_id) DO NOTHING`, pq.QuoteIdentifier(s.table))

	stmt, err := dbTx.PrepareContext(ctx, query)
	if err != nil {
		return 0, classify("prepare", err)
	}
	defer stmt.Close()

	for _, t := range txs {
		res, execErr := stmt.ExecContext(ctx,
			t.TransactionID,
			t.CustomerID,
			t.CustomerDOB,
			t.Gender,
			t.Location,
			t.AccountBalance,
			t.TransactionDate,
			t.TransactionTime,
			t.Amount,
		)
		if execErr != nil {
			err = classify("insert", execErr)
			return 0, err
		}
		if n, raErr := res.RowsAffected(); raErr == nil {
			inserted += int(n)
		}
	}

	if err = dbTx.Commit(); err != nil {
		err = classify("commit", err)
		return 0, err
	}
	return inserted, nil
}

// Count returns the table's total row count for the final verification read.
func (s *TransactionStore) Count(ctx context.Context) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", pq.QuoteIdentifier(s.table))
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, classify("count", err)
	}
	return count, nil
}

// Close releases the connection pool.
func (s *TransactionStore) Close() error {
	return s.db.Close()
}

// classify sorts driver failures into the engine's transient/fatal taxonomy.
// Connection-level and timeout failures are worth retrying; everything else
// (bad credentials, missing table, constraint/type mismatches) is not.
func classify(op string, err error) error {
	wrapped := fmt.Errorf("postgres: %s: %w", op, err)

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ingest.Transient(wrapped)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return ingest.Transient(wrapped)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ingest.Transient(wrapped)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08: connection exceptions; 53: insufficient resources;
		// 57: operator intervention (shutdown); 40001/40P01: retryable
		// serialization and deadlock failures.
		class := string(pqErr.Code.Class())
		switch class {
		case "08", "53", "57", "40":
			return ingest.Transient(wrapped)
		}
		return ingest.Fatal(wrapped)
	}

	// Driver-level I/O errors come through as plain errors; treat the
	// well-known connection phrases as transient and the rest as fatal.
	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "EOF") {
		return ingest.Transient(wrapped)
	}
	return ingest.Fatal(wrapped)
}
