package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/decision-editor/pkg/models"
	"github.com/dukex/decision-editor/pkg/persistence"
)

// Backend implements persistence.Backend with one pretty-printed JSON object per record.
type Backend struct {
	bucket Bucket
	logger *slog.Logger
	info   models.StorageInfo
}

// NewBackend creates an object-storage backend on top of bucket.
func NewBackend(bucket Bucket, logger *slog.Logger, info models.StorageInfo) *Backend {
	if info.BucketName == "" {
		info.BucketName = bucket.Name()
	}

	return &Backend{
		bucket: bucket,
		logger: logger.With("module", "objectstore", "bucket", bucket.Name()),
		info:   info,
	}
}

// Put serializes record and writes it under the collection key for id, replacing any prior object.
func (b *Backend) Put(ctx context.Context, c persistence.Collection, id string, record any) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return persistence.NewRecordError("Put", c, id, fmt.Errorf("failed to marshal record: %w", err))
	}

	if err := b.bucket.Write(ctx, c.Key(id), data); err != nil {
		return persistence.NewRecordError("Put", c, id, persistence.Unavailable(err))
	}

	return nil
}

// Get reads the record stored for id.
func (b *Backend) Get(ctx context.Context, c persistence.Collection, id string) (json.RawMessage, error) {
	key := c.Key(id)

	exists, err := b.bucket.Exists(ctx, key)
	if err != nil {
		return nil, persistence.NewRecordError("Get", c, id, persistence.Unavailable(err))
	}

	if !exists {
		return nil, persistence.NewRecordError("Get", c, id, persistence.ErrNotFound)
	}

	data, err := b.bucket.Read(ctx, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotExist) {
			return nil, persistence.NewRecordError("Get", c, id, persistence.ErrNotFound)
		}

		return nil, persistence.NewRecordError("Get", c, id, persistence.Unavailable(err))
	}

	if !json.Valid(data) {
		return nil, persistence.NewRecordError("Get", c, id, persistence.ErrCorruptRecord)
	}

	return json.RawMessage(data), nil
}

// List reads every .json object under the collection prefix.
// Objects that cannot be read or parsed are skipped and logged.
func (b *Backend) List(ctx context.Context, c persistence.Collection) ([]json.RawMessage, error) {
	keys, err := b.bucket.Keys(ctx, c.Prefix)
	if err != nil {
		return nil, persistence.NewRecordError("List", c, "", persistence.Unavailable(err))
	}

	records := make([]json.RawMessage, 0, len(keys))

	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}

		data, err := b.bucket.Read(ctx, key)
		if err != nil {
			b.logger.WarnContext(ctx, "Skipping unreadable object", "collection", c.Name, "key", key, "error", err)

			continue
		}

		if !json.Valid(data) {
			b.logger.WarnContext(ctx, "Skipping unparsable object", "collection", c.Name, "key", key)

			continue
		}

		records = append(records, json.RawMessage(data))
	}

	return records, nil
}

// Delete removes the object for id. It fails with persistence.ErrNotFound if there is none.
func (b *Backend) Delete(ctx context.Context, c persistence.Collection, id string) error {
	key := c.Key(id)

	exists, err := b.bucket.Exists(ctx, key)
	if err != nil {
		return persistence.NewRecordError("Delete", c, id, persistence.Unavailable(err))
	}

	if !exists {
		return persistence.NewRecordError("Delete", c, id, persistence.ErrNotFound)
	}

	if err := b.bucket.Remove(ctx, key); err != nil {
		if errors.Is(err, ErrObjectNotExist) {
			return persistence.NewRecordError("Delete", c, id, persistence.ErrNotFound)
		}

		return persistence.NewRecordError("Delete", c, id, persistence.Unavailable(err))
	}

	return nil
}

// Info describes the bucket this backend writes to.
func (b *Backend) Info() models.StorageInfo {
	return b.info
}

// HealthCheck verifies the bucket is reachable.
func (b *Backend) HealthCheck(ctx context.Context) error {
	if err := b.bucket.Ping(ctx); err != nil {
		return persistence.Unavailable(err)
	}

	return nil
}

// Close performs any necessary cleanup. Buckets hold no long-lived connections.
func (b *Backend) Close(_ context.Context) error {
	return nil
}
