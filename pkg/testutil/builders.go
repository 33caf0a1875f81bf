// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/dukex/decision-editor/pkg/models"
	"github.com/google/uuid"
)

// FixedTime is the timestamp every builder starts from.
var FixedTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// NewFlow creates a stored flow record with default values that can be overridden.
func NewFlow(overrides ...func(*models.FlowData)) models.FlowData {
	flow := models.FlowData{
		Metadata: models.FlowMetadata{
			ID:        uuid.NewString(),
			Name:      "Test Flow",
			CreatedAt: FixedTime,
			UpdatedAt: FixedTime,
			Tags:      []string{},
		},
		Content: models.EmptyGraph,
	}

	for _, override := range overrides {
		override(&flow)
	}

	return flow
}

// WithFlowID sets the flow id.
func WithFlowID(id string) func(*models.FlowData) {
	return func(f *models.FlowData) {
		f.Metadata.ID = id
	}
}

// WithFlowName sets the flow name.
func WithFlowName(name string) func(*models.FlowData) {
	return func(f *models.FlowData) {
		f.Metadata.Name = name
	}
}

// WithTags sets the flow tags.
func WithTags(tags ...string) func(*models.FlowData) {
	return func(f *models.FlowData) {
		f.Metadata.Tags = tags
	}
}

// WithContent sets the decision graph.
func WithContent(content json.RawMessage) func(*models.FlowData) {
	return func(f *models.FlowData) {
		f.Content = content
	}
}

// NewRule creates a rule with default values that can be overridden.
func NewRule(overrides ...func(*models.Rule)) models.Rule {
	rule := models.Rule{
		ID:          uuid.NewString(),
		Name:        "Test Rule",
		Description: "test rule",
		Flows:       []models.RuleFlow{},
	}

	for _, override := range overrides {
		override(&rule)
	}

	return rule
}

// WithRuleID sets the rule id.
func WithRuleID(id string) func(*models.Rule) {
	return func(r *models.Rule) {
		r.ID = id
	}
}

// WithRuleName sets the rule name.
func WithRuleName(name string) func(*models.Rule) {
	return func(r *models.Rule) {
		r.Name = name
	}
}

// WithFlows references flows from the rule, none of them active.
func WithFlows(flows ...models.FlowData) func(*models.Rule) {
	return func(r *models.Rule) {
		for _, flow := range flows {
			r.Flows = append(r.Flows, models.RuleFlow{ID: flow.Metadata.ID, Name: flow.Metadata.Name})
		}
	}
}

// WithActiveFlows marks the given flow ids active without checking how many there are.
func WithActiveFlows(ids ...string) func(*models.Rule) {
	return func(r *models.Rule) {
		for i := range r.Flows {
			for _, id := range ids {
				if r.Flows[i].ID == id {
					r.Flows[i].Active = true
				}
			}
		}
	}
}
