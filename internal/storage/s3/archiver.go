package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Uploader is the object upload operation the archiver needs. *Client
// implements it; tests inject fakes.
type Uploader interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
}

// Archiver buffers raw log lines per organization and flushes them to
// object storage as gzip NDJSON objects. Batching keeps object counts
// sane under high event rates.
type Archiver struct {
	uploader  Uploader
	batchSize int
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending map[string][][]byte // orgID -> raw log lines
}

// NewArchiver creates an archiver flushing every batchSize records.
func NewArchiver(uploader Uploader, batchSize int, logger *slog.Logger) *Archiver {
	if batchSize <= 0 {
		batchSize = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		uploader:  uploader,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
		pending:   make(map[string][][]byte),
	}
}

// Add buffers one raw log line for the organization, flushing when the
// batch is full.
func (a *Archiver) Add(ctx context.Context, orgID string, rawLog []byte) error {
	a.mu.Lock()
	a.pending[orgID] = append(a.pending[orgID], rawLog)
	full := len(a.pending[orgID]) >= a.batchSize
	a.mu.Unlock()

	if full {
		return a.FlushOrg(ctx, orgID)
	}
	return nil
}

// FlushOrg uploads the organization's buffered records, if any.
func (a *Archiver) FlushOrg(ctx context.Context, orgID string) error {
	a.mu.Lock()
	records := a.pending[orgID]
	delete(a.pending, orgID)
	a.mu.Unlock()

	if len(records) == 0 {
		return nil
	}

	data, err := gzipNDJSON(records)
	if err != nil {
		return fmt.Errorf("s3: failed to compress archive batch: %w", err)
	}

	key := a.objectKey(orgID)
	if err := a.uploader.Put(ctx, key, "application/gzip", data); err != nil {
		// Requeue so the records flush with the next batch.
		a.mu.Lock()
		a.pending[orgID] = append(records, a.pending[orgID]...)
		a.mu.Unlock()
		return err
	}

	a.logger.Info("archived raw logs",
		"organization_id", orgID,
		"records", len(records),
		"key", key,
		"bytes", len(data),
	)
	return nil
}

// Flush uploads all buffered records across organizations. Called on
// the flush ticker and at shutdown.
func (a *Archiver) Flush(ctx context.Context) error {
	a.mu.Lock()
	orgs := make([]string, 0, len(a.pending))
	for orgID := range a.pending {
		orgs = append(orgs, orgID)
	}
	a.mu.Unlock()

	for _, orgID := range orgs {
		if err := a.FlushOrg(ctx, orgID); err != nil {
			return err
		}
	}
	return nil
}

// objectKey lays archives out by organization and day for lifecycle
// rules and range queries.
func (a *Archiver) objectKey(orgID string) string {
	now := a.now().UTC()
	return fmt.Sprintf("%s/%s/%s.ndjson.gz", orgID, now.Format("2006/01/02"), uuid.New())
}

func gzipNDJSON(records [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, record := range records {
		if _, err := gz.Write(record); err != nil {
			return nil, err
		}
		if _, err := gz.Write([]byte{'\n'}); err != nil {
			return nil, err
		}
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
