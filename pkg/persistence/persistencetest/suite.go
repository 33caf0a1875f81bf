// Package persistencetest holds the behaviour every persistence.Backend must share.
package persistencetest

import (
	"encoding/json"
	"testing"

	"github.com/dukex/decision-editor/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty backend.
type Factory func(t *testing.T) persistence.Backend

type flowDoc struct {
	Metadata struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"metadata"`
	Content map[string]any `json:"content"`
}

func newFlowDoc(id, name string) flowDoc {
	doc := flowDoc{Content: map[string]any{"nodes": []any{}, "edges": []any{}}}
	doc.Metadata.ID = id
	doc.Metadata.Name = name

	return doc
}

type ruleDoc struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RunBackendSuite exercises the put/get/list/delete contract against backends built by newBackend.
func RunBackendSuite(t *testing.T, newBackend Factory) {
	t.Helper()

	t.Run("put then get returns the record", func(t *testing.T) {
		backend := newBackend(t)
		ctx := t.Context()

		require.NoError(t, backend.Put(ctx, persistence.Flows, "f1", newFlowDoc("f1", "First")))

		raw, err := backend.Get(ctx, persistence.Flows, "f1")
		require.NoError(t, err)

		var got flowDoc
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "f1", got.Metadata.ID)
		assert.Equal(t, "First", got.Metadata.Name)
		assert.Contains(t, got.Content, "nodes")
	})

	t.Run("put overwrites the whole record", func(t *testing.T) {
		backend := newBackend(t)
		ctx := t.Context()

		require.NoError(t, backend.Put(ctx, persistence.Flows, "f1", newFlowDoc("f1", "First")))
		require.NoError(t, backend.Put(ctx, persistence.Flows, "f1", newFlowDoc("f1", "Renamed")))

		records, err := backend.List(ctx, persistence.Flows)
		require.NoError(t, err)
		require.Len(t, records, 1)

		var got flowDoc
		require.NoError(t, json.Unmarshal(records[0], &got))
		assert.Equal(t, "Renamed", got.Metadata.Name)
	})

	t.Run("get missing record fails with not found", func(t *testing.T) {
		backend := newBackend(t)

		_, err := backend.Get(t.Context(), persistence.Rules, "missing")
		assert.True(t, persistence.IsNotFound(err))
	})

	t.Run("collections are independent", func(t *testing.T) {
		backend := newBackend(t)
		ctx := t.Context()

		require.NoError(t, backend.Put(ctx, persistence.Flows, "same-id", newFlowDoc("same-id", "Flow")))
		require.NoError(t, backend.Put(ctx, persistence.Rules, "same-id", ruleDoc{ID: "same-id", Name: "Rule"}))

		flows, err := backend.List(ctx, persistence.Flows)
		require.NoError(t, err)
		assert.Len(t, flows, 1)

		rules, err := backend.List(ctx, persistence.Rules)
		require.NoError(t, err)
		assert.Len(t, rules, 1)

		require.NoError(t, backend.Delete(ctx, persistence.Rules, "same-id"))

		_, err = backend.Get(ctx, persistence.Flows, "same-id")
		assert.NoError(t, err)
	})

	t.Run("list empty collection", func(t *testing.T) {
		backend := newBackend(t)

		records, err := backend.List(t.Context(), persistence.Rules)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("delete twice fails the second time", func(t *testing.T) {
		backend := newBackend(t)
		ctx := t.Context()

		require.NoError(t, backend.Put(ctx, persistence.Rules, "r1", ruleDoc{ID: "r1", Name: "Rule"}))
		require.NoError(t, backend.Delete(ctx, persistence.Rules, "r1"))

		err := backend.Delete(ctx, persistence.Rules, "r1")
		assert.True(t, persistence.IsNotFound(err))

		_, err = backend.Get(ctx, persistence.Rules, "r1")
		assert.True(t, persistence.IsNotFound(err))
	})

	t.Run("health check passes", func(t *testing.T) {
		backend := newBackend(t)

		assert.NoError(t, backend.HealthCheck(t.Context()))
	})
}
