// Package backup archives raw source chunks to a GCS bucket. The channel is
// fire-and-forget: the engine logs failures and keeps ingesting.
package backup

import (
	"context"
	"fmt"
	"path"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/bank-ingest/internal/ingest"
)

// uploadTimeout bounds a single chunk upload so a stuck side-channel cannot
// stall the run.
const uploadTimeout = 2 * time.Minute

// GCSStore uploads raw chunk bytes as objects under an optional prefix.
// It assumes Application Default Credentials are configured.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ ingest.BackupStore = (*GCSStore)(nil)

// NewGCSStore creates a storage client for the bucket.
func NewGCSStore(ctx context.Context, bucket, prefix string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("backup: bucket name is empty")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("backup: create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

// StoreRawChunk writes one chunk's bytes to the bucket.
func (s *GCSStore) StoreRawChunk(ctx context.Context, name string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	object := name
	if s.prefix != "" {
		object = path.Join(s.prefix, name)
	}

	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	w.ContentType = "text/csv"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("backup: write object %q: %w", object, err)
	}
	// Close finalizes the upload; an error here means the object did not
	// land.
	if err := w.Close(); err != nil {
		return fmt.Errorf("backup: finalize object %q: %w", object, err)
	}
	return nil
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
