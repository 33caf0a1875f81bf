package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/decision-editor/pkg/models"
	"github.com/dukex/decision-editor/pkg/persistence"
)

// Backend implements persistence.Backend over a Store. Every write reads the collection
// array, mutates it in memory and writes the whole array back. Concurrent writers to the
// same collection can lose updates; nothing here serializes them.
type Backend struct {
	store  Store
	logger *slog.Logger
	info   models.StorageInfo
}

// NewBackend creates a key-value backend on top of store.
func NewBackend(store Store, logger *slog.Logger, info models.StorageInfo) *Backend {
	return &Backend{
		store:  store,
		logger: logger.With("module", "kv"),
		info:   info,
	}
}

// readAll decodes the collection array. A corrupt slot is reported as ErrCorruptRecord.
func (b *Backend) readAll(ctx context.Context, c persistence.Collection) ([]json.RawMessage, error) {
	value, ok, err := b.store.Load(ctx, c.Slot)
	if err != nil {
		return nil, persistence.Unavailable(err)
	}

	if !ok || len(value) == 0 {
		return []json.RawMessage{}, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(value, &records); err != nil {
		return nil, fmt.Errorf("%w: slot %s: %w", persistence.ErrCorruptRecord, c.Slot, err)
	}

	if records == nil {
		records = []json.RawMessage{}
	}

	return records, nil
}

func (b *Backend) writeAll(ctx context.Context, c persistence.Collection, records []json.RawMessage) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", c.Name, err)
	}

	if err := b.store.Save(ctx, c.Slot, data); err != nil {
		return persistence.Unavailable(err)
	}

	return nil
}

// indexOf returns the position of the record with id, or -1. Records without a readable id never match.
func indexOf(c persistence.Collection, records []json.RawMessage, id string) int {
	for i, record := range records {
		recordID, err := c.RecordID(record)
		if err == nil && recordID == id {
			return i
		}
	}

	return -1
}

// Put replaces the record with id in place, or appends it.
func (b *Backend) Put(ctx context.Context, c persistence.Collection, id string, record any) error {
	doc, err := json.Marshal(record)
	if err != nil {
		return persistence.NewRecordError("Put", c, id, fmt.Errorf("failed to marshal record: %w", err))
	}

	records, err := b.readAll(ctx, c)
	if err != nil {
		return persistence.NewRecordError("Put", c, id, err)
	}

	if i := indexOf(c, records, id); i >= 0 {
		records[i] = doc
	} else {
		records = append(records, doc)
	}

	if err := b.writeAll(ctx, c, records); err != nil {
		return persistence.NewRecordError("Put", c, id, err)
	}

	return nil
}

// Get scans the collection for id.
func (b *Backend) Get(ctx context.Context, c persistence.Collection, id string) (json.RawMessage, error) {
	records, err := b.readAll(ctx, c)
	if err != nil {
		return nil, persistence.NewRecordError("Get", c, id, err)
	}

	i := indexOf(c, records, id)
	if i < 0 {
		return nil, persistence.NewRecordError("Get", c, id, persistence.ErrNotFound)
	}

	return records[i], nil
}

// List returns the collection array. A corrupt slot lists as empty and is logged.
func (b *Backend) List(ctx context.Context, c persistence.Collection) ([]json.RawMessage, error) {
	records, err := b.readAll(ctx, c)
	if err != nil {
		if persistence.IsStorageUnavailable(err) {
			return nil, persistence.NewRecordError("List", c, "", err)
		}

		b.logger.WarnContext(ctx, "Skipping unparsable collection slot", "collection", c.Name, "slot", c.Slot, "error", err)

		return []json.RawMessage{}, nil
	}

	return records, nil
}

// Delete drops the record with id. It fails with persistence.ErrNotFound if no record matched.
func (b *Backend) Delete(ctx context.Context, c persistence.Collection, id string) error {
	records, err := b.readAll(ctx, c)
	if err != nil {
		return persistence.NewRecordError("Delete", c, id, err)
	}

	kept := make([]json.RawMessage, 0, len(records))

	for _, record := range records {
		recordID, err := c.RecordID(record)
		if err == nil && recordID == id {
			continue
		}

		kept = append(kept, record)
	}

	if len(kept) == len(records) {
		return persistence.NewRecordError("Delete", c, id, persistence.ErrNotFound)
	}

	if err := b.writeAll(ctx, c, kept); err != nil {
		return persistence.NewRecordError("Delete", c, id, err)
	}

	return nil
}

// Clear removes the whole collection slot.
func (b *Backend) Clear(ctx context.Context, c persistence.Collection) error {
	if err := b.store.Remove(ctx, c.Slot); err != nil {
		return persistence.NewRecordError("Clear", c, "", persistence.Unavailable(err))
	}

	return nil
}

// Info describes the store this backend writes to.
func (b *Backend) Info() models.StorageInfo {
	return b.info
}

// HealthCheck verifies the store is reachable.
func (b *Backend) HealthCheck(ctx context.Context) error {
	if err := b.store.Ping(ctx); err != nil {
		return persistence.Unavailable(err)
	}

	return nil
}

// Close releases the store connection.
func (b *Backend) Close(_ context.Context) error {
	return b.store.Close()
}
