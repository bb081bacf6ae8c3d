// Package bigquery adapts a BigQuery table to the engine's sink contract.
// Streaming inserts carry InsertID = transaction_id, so BigQuery's
// best-effort dedup gives the same insert-or-ignore replay behavior the
// Postgres sink gets from ON CONFLICT DO NOTHING.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bank-ingest/internal/domain"
	"github.com/dvloznov/bank-ingest/internal/ingest"
)

// TransactionStore streams normalized transactions into one BigQuery table.
type TransactionStore struct {
	client  *bigquery.Client
	project string
	dataset string
	table   string
}

var _ ingest.Sink = (*TransactionStore)(nil)

// NewTransactionStore creates a BigQuery client for the given coordinates.
// It assumes Application Default Credentials are configured.
func NewTransactionStore(ctx context.Context, project, dataset, table string) (*TransactionStore, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("bigquery: client: %w", err)
	}
	return &TransactionStore{
		client:  client,
		project: project,
		dataset: dataset,
		table:   table,
	}, nil
}

// transactionRow maps a domain.Transaction onto the table schema. It
// implements bigquery.ValueSaver so each row carries its natural key as the
// streaming InsertID.
type transactionRow struct {
	tx domain.Transaction
}

var _ bigquery.ValueSaver = (*transactionRow)(nil)

func (r *transactionRow) Save() (map[string]bigquery.Value, string, error) {
	balance, _ := r.tx.AccountBalance.Float64()
	amount, _ := r.tx.Amount.Float64()
	return map[string]bigquery.Value{
		"transaction_id":       r.tx.TransactionID,
		"customer_id":          r.tx.CustomerID,
		"customer_dob":         civil.DateOf(r.tx.CustomerDOB),
		"cust_gender":          r.tx.Gender,
		"cust_location":        r.tx.Location,
		"cust_account_balance": balance,
		"transaction_date":     civil.DateOf(r.tx.TransactionDate),
		"transaction_time":     r.tx.TransactionTime,
		"transaction_amount":   amount,
	}, r.tx.TransactionID, nil
}

// Ping fetches the table metadata to verify the table exists and the
// credentials work before the run starts.
func (s *TransactionStore) Ping(ctx context.Context) error {
	_, err := s.client.DatasetInProject(s.project, s.dataset).Table(s.table).Metadata(ctx)
	if err != nil {
		return classify("ping", err)
	}
	return nil
}

// UpsertBatch streams the batch. BigQuery dedups on InsertID within its
// retention window, so the reported count is the batch size; replays within
// the window insert nothing new on the server side.
func (s *TransactionStore) UpsertBatch(ctx context.Context, txs []domain.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	rows := make([]*transactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, &transactionRow{tx: tx})
	}

	inserter := s.client.DatasetInProject(s.project, s.dataset).Table(s.table).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return 0, classify("insert", err)
	}
	return len(txs), nil
}

// Count runs a COUNT(*) over the table for the final verification read.
func (s *TransactionStore) Count(ctx context.Context) (int64, error) {
	q := s.client.Query(fmt.Sprintf(
		"SELECT COUNT(*) AS total FROM `%s.%s.%s`", s.project, s.dataset, s.table))

	it, err := q.Read(ctx)
	if err != nil {
		return 0, classify("count query", err)
	}

	var row struct {
		Total int64 `bigquery:"total"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return 0, classify("count scan", err)
	}
	return row.Total, nil
}

// Close releases the client.
func (s *TransactionStore) Close() error {
	return s.client.Close()
}

// classify sorts API failures into the engine's transient/fatal taxonomy:
// rate limits, server errors and network trouble retry; auth and schema
// problems do not.
func classify(op string, err error) error {
	wrapped := fmt.Errorf("bigquery: %s: %w", op, err)

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ingest.Transient(wrapped)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ingest.Transient(wrapped)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return ingest.Transient(wrapped)
		}
		return ingest.Fatal(wrapped)
	}

	// Row-level streaming failures (bad schema, oversized rows) are not
	// retryable; resending the same rows fails the same way.
	var putErr bigquery.PutMultiError
	if errors.As(err, &putErr) {
		return ingest.Fatal(wrapped)
	}

	return ingest.Transient(wrapped)
}
