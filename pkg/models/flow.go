// Package models defines the core domain models for decision flows and the rules grouping them.
package models

import (
	"encoding/json"
	"time"
)

// DefaultFlowName is used when a flow is saved without a name.
const DefaultFlowName = "Untitled Flow"

// TimestampLayout is the wire format of every timestamp: UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FlowMetadata describes a saved flow. The decision graph itself lives in FlowData.Content.
type FlowMetadata struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Tags        []string  `json:"tags"`
}

// MarshalJSON writes CreatedAt and UpdatedAt in TimestampLayout.
func (m FlowMetadata) MarshalJSON() ([]byte, error) {
	type plain FlowMetadata

	return json.Marshal(struct {
		plain
		CreatedAt string `json:"createdAt"`
		UpdatedAt string `json:"updatedAt"`
	}{
		plain:     plain(m),
		CreatedAt: m.CreatedAt.UTC().Format(TimestampLayout),
		UpdatedAt: m.UpdatedAt.UTC().Format(TimestampLayout),
	})
}

// FlowData is the persisted flow record: metadata plus the opaque decision graph.
type FlowData struct {
	Metadata FlowMetadata    `json:"metadata"`
	Content  json.RawMessage `json:"content"`
}

// FlowMetadataPatch carries the caller-supplied subset of FlowMetadata.
// Nil fields are treated as absent.
type FlowMetadataPatch struct {
	ID          string     `json:"id,omitempty"`
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

// StarterGraph is the decision graph given to flows created inside a rule without content:
// one input node wired to nothing and one output node.
var StarterGraph = json.RawMessage(`{
  "nodes": [
    {"id": "input-node", "name": "Input", "type": "inputNode", "position": {"x": 100, "y": 200}},
    {"id": "output-node", "name": "Output", "type": "outputNode", "position": {"x": 400, "y": 200}}
  ],
  "edges": []
}`)

// EmptyGraph is stored when a flow is saved with no content at all.
var EmptyGraph = json.RawMessage(`{"nodes":[],"edges":[]}`)

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
