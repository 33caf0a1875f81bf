// Package web provides HTTP request and response types for the decision editor API.
package web

import (
	"encoding/json"

	"github.com/dukex/decision-editor/pkg/models"
)

// SaveFlowRequest represents the request body for saving a flow.
type SaveFlowRequest struct {
	Content  json.RawMessage          `json:"content"  validate:"required"`
	Metadata models.FlowMetadataPatch `json:"metadata"`
}

// CreateFlowInRuleRequest represents the request body for creating a flow inside a rule.
// Both fields are optional.
type CreateFlowInRuleRequest struct {
	Content  json.RawMessage          `json:"content,omitempty"`
	Metadata models.FlowMetadataPatch `json:"metadata"`
}

// RuleFlowRequest is one flow reference of a RuleRequest.
type RuleFlowRequest struct {
	ID     string `json:"id"     validate:"required,uuid"`
	Name   string `json:"name"   validate:"required,min=1,max=100"`
	Active bool   `json:"active"`
}

// RuleRequest represents the request body for saving a rule.
type RuleRequest struct {
	ID          string            `json:"id,omitempty" validate:"omitempty,uuid"`
	Name        string            `json:"name"         validate:"required,min=1,max=100"`
	Description string            `json:"description"`
	Flows       []RuleFlowRequest `json:"flows"        validate:"dive"`
}

// ToRule converts the request into a Rule.
func (r RuleRequest) ToRule() models.Rule {
	flows := make([]models.RuleFlow, 0, len(r.Flows))
	for _, flow := range r.Flows {
		flows = append(flows, models.RuleFlow(flow))
	}

	return models.Rule{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Flows:       flows,
	}
}

// SimulateRequest represents the request body forwarded to the evaluation engine.
type SimulateRequest struct {
	Context map[string]any  `json:"context" validate:"required"`
	Content json.RawMessage `json:"content" validate:"required"`
}

// SimulateResponse wraps the engine result.
type SimulateResponse struct {
	Result json.RawMessage `json:"result"`
}

// CreateFlowInRuleResponse returns the new flow and the rule it was attached to.
type CreateFlowInRuleResponse struct {
	Flow models.FlowMetadata `json:"flow"`
	Rule models.Rule         `json:"rule"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
