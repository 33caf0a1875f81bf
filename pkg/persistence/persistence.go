// Package persistence provides the storage abstraction shared by every backend.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukex/decision-editor/pkg/models"
)

// Collection describes where the records of one entity type live in each backend variant.
type Collection struct {
	// Name identifies the collection in logs and errors.
	Name string
	// Prefix is the object key prefix used by object storage.
	Prefix string
	// Slot is the single key holding the whole collection in a key-value store.
	Slot string
	// IDPath locates the record id inside a stored document.
	IDPath []string
}

var (
	// Flows stores FlowData documents at flows/{id}.json.
	Flows = Collection{
		Name:   "flows",
		Prefix: "flows/",
		Slot:   "editor_flows",
		IDPath: []string{"metadata", "id"},
	}

	// Rules stores Rule documents at application/rules/{id}.json.
	Rules = Collection{
		Name:   "rules",
		Prefix: "application/rules/",
		Slot:   "editor_rules",
		IDPath: []string{"id"},
	}
)

// Key returns the object key of a record in this collection.
func (c Collection) Key(id string) string {
	return c.Prefix + id + ".json"
}

// RecordID extracts the record id from a stored document.
func (c Collection) RecordID(doc json.RawMessage) (string, error) {
	current := doc

	for _, field := range c.IDPath {
		var object map[string]json.RawMessage
		if err := json.Unmarshal(current, &object); err != nil {
			return "", fmt.Errorf("%s record is not an object: %w", c.Name, err)
		}

		next, ok := object[field]
		if !ok {
			return "", fmt.Errorf("%s record has no %q field", c.Name, field)
		}

		current = next
	}

	var id string
	if err := json.Unmarshal(current, &id); err != nil {
		return "", fmt.Errorf("%s record id is not a string: %w", c.Name, err)
	}

	return id, nil
}

// Backend is the capability every persistence variant implements.
// Records are whole JSON documents addressed by collection and id; Put overwrites.
type Backend interface {
	Put(ctx context.Context, c Collection, id string, record any) error
	Get(ctx context.Context, c Collection, id string) (json.RawMessage, error)
	// List returns every parseable record; unparseable entries are skipped with a warning.
	List(ctx context.Context, c Collection) ([]json.RawMessage, error)
	// Delete fails with ErrNotFound when nothing is stored under id.
	Delete(ctx context.Context, c Collection, id string) error

	Info() models.StorageInfo
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Clearer is implemented by backends that can drop a whole collection in one operation.
type Clearer interface {
	Clear(ctx context.Context, c Collection) error
}
