package services

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dukex/decision-editor/pkg/models"
	"github.com/dukex/decision-editor/pkg/otelhelper"
	"github.com/dukex/decision-editor/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// SaveRule creates or overwrites a rule. A rule with more than one active flow is rejected
// before anything is written.
func (s *Storage) SaveRule(ctx context.Context, rule models.Rule) (saved models.Rule, err error) {
	ctx, span := s.startSpan(ctx, "SaveRule",
		attribute.String(otelhelper.RuleIDKey, rule.ID),
		attribute.String(otelhelper.RuleNameKey, rule.Name),
	)
	defer func() { endSpan(span, err) }()

	return s.saveRule(ctx, "SaveRule", rule)
}

func (s *Storage) saveRule(ctx context.Context, op string, rule models.Rule) (models.Rule, error) {
	if err := validateName(op, rule.Name); err != nil {
		return models.Rule{}, err
	}

	if count := rule.ActiveCount(); count > 1 {
		return models.Rule{}, NewValidationError(op, "multiple_active_flows",
			fmt.Sprintf("rule %q has %d active flows, at most one is allowed", rule.Name, count),
			ErrMultipleActiveFlows)
	}

	if rule.ID == "" {
		rule.ID = s.newID()
	}

	if rule.Flows == nil {
		rule.Flows = []models.RuleFlow{}
	} else {
		rule.Flows = slices.Clone(rule.Flows)
	}

	if err := s.backend.Put(ctx, persistence.Rules, rule.ID, rule); err != nil {
		return models.Rule{}, fmt.Errorf("failed to save rule: %w", err)
	}

	s.logger.DebugContext(ctx, "Saved rule", "rule_id", rule.ID, "name", rule.Name, "flows", len(rule.Flows))

	return rule, nil
}

func decodeRule(raw json.RawMessage) (models.Rule, error) {
	var rule models.Rule
	if err := json.Unmarshal(raw, &rule); err != nil {
		return models.Rule{}, fmt.Errorf("%w: %w", persistence.ErrCorruptRecord, err)
	}

	if rule.ID == "" {
		return models.Rule{}, fmt.Errorf("%w: rule has no id", persistence.ErrCorruptRecord)
	}

	if rule.Flows == nil {
		rule.Flows = []models.RuleFlow{}
	}

	return rule, nil
}

// LoadRule returns the rule with id.
func (s *Storage) LoadRule(ctx context.Context, id string) (rule models.Rule, err error) {
	ctx, span := s.startSpan(ctx, "LoadRule", attribute.String(otelhelper.RuleIDKey, id))
	defer func() { endSpan(span, err) }()

	return s.loadRule(ctx, "LoadRule", id)
}

func (s *Storage) loadRule(ctx context.Context, op, id string) (models.Rule, error) {
	raw, err := s.backend.Get(ctx, persistence.Rules, id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return models.Rule{}, NewNotFoundError(op, "rule_not_found", "", ErrRuleNotFound)
		}

		return models.Rule{}, fmt.Errorf("failed to load rule: %w", err)
	}

	rule, err := decodeRule(raw)
	if err != nil {
		return models.Rule{}, fmt.Errorf("failed to load rule %s: %w", id, err)
	}

	return rule, nil
}

// ListRules returns every readable rule sorted by name.
func (s *Storage) ListRules(ctx context.Context) (rules []models.Rule, err error) {
	ctx, span := s.startSpan(ctx, "ListRules")
	defer func() { endSpan(span, err) }()

	return s.listRules(ctx)
}

func (s *Storage) listRules(ctx context.Context) ([]models.Rule, error) {
	records, err := s.backend.List(ctx, persistence.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	rules := make([]models.Rule, 0, len(records))

	for i, raw := range records {
		rule, err := decodeRule(raw)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping corrupt rule record", "collection", persistence.Rules.Name, "index", i, "error", err)

			continue
		}

		rules = append(rules, rule)
	}

	slices.SortStableFunc(rules, func(a, b models.Rule) int {
		return cmp.Compare(a.Name, b.Name)
	})

	return rules, nil
}

// DeleteRule removes the rule. Referenced flows are kept.
func (s *Storage) DeleteRule(ctx context.Context, id string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteRule", attribute.String(otelhelper.RuleIDKey, id))
	defer func() { endSpan(span, err) }()

	return s.deleteRule(ctx, "DeleteRule", id)
}

func (s *Storage) deleteRule(ctx context.Context, op, id string) error {
	if err := s.backend.Delete(ctx, persistence.Rules, id); err != nil {
		if persistence.IsNotFound(err) {
			return NewNotFoundError(op, "rule_not_found", "", ErrRuleNotFound)
		}

		return fmt.Errorf("failed to delete rule: %w", err)
	}

	s.logger.DebugContext(ctx, "Deleted rule", "rule_id", id)

	return nil
}

// SetActiveFlow marks flowID as the only active flow of the rule and rewrites the whole rule,
// even when flowID is already the active one.
func (s *Storage) SetActiveFlow(ctx context.Context, ruleID, flowID string) (err error) {
	ctx, span := s.startSpan(ctx, "SetActiveFlow",
		attribute.String(otelhelper.RuleIDKey, ruleID),
		attribute.String(otelhelper.FlowIDKey, flowID),
	)
	defer func() { endSpan(span, err) }()

	rule, err := s.loadRule(ctx, "SetActiveFlow", ruleID)
	if err != nil {
		return err
	}

	return s.activate(ctx, rule, flowID)
}

func (s *Storage) activate(ctx context.Context, rule models.Rule, flowID string) error {
	if !rule.HasFlow(flowID) {
		return NewNotFoundError("SetActiveFlow", "flow_not_in_rule", "", ErrFlowNotInRule)
	}

	flows := make([]models.RuleFlow, len(rule.Flows))
	for i, flow := range rule.Flows {
		flow.Active = flow.ID == flowID
		flows[i] = flow
	}

	rule.Flows = flows

	if _, err := s.saveRule(ctx, "SetActiveFlow", rule); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Activated flow", "rule_id", rule.ID, "flow_id", flowID)

	return nil
}

// findRuleByName returns the first rule named name in name order.
func (s *Storage) findRuleByName(ctx context.Context, op, name string) (models.Rule, error) {
	rules, err := s.listRules(ctx)
	if err != nil {
		return models.Rule{}, err
	}

	for _, rule := range rules {
		if rule.Name == name {
			return rule, nil
		}
	}

	return models.Rule{}, NewNotFoundError(op, "rule_not_found", "", ErrRuleNotFound)
}

// LoadRuleByName resolves a rule by name. Duplicate names resolve to the first match.
func (s *Storage) LoadRuleByName(ctx context.Context, name string) (rule models.Rule, err error) {
	ctx, span := s.startSpan(ctx, "LoadRuleByName", attribute.String(otelhelper.RuleNameKey, name))
	defer func() { endSpan(span, err) }()

	return s.findRuleByName(ctx, "LoadRuleByName", name)
}

// DeleteRuleByName resolves name to an id and deletes that rule.
func (s *Storage) DeleteRuleByName(ctx context.Context, name string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteRuleByName", attribute.String(otelhelper.RuleNameKey, name))
	defer func() { endSpan(span, err) }()

	rule, err := s.findRuleByName(ctx, "DeleteRuleByName", name)
	if err != nil {
		return err
	}

	return s.deleteRule(ctx, "DeleteRuleByName", rule.ID)
}

// SetActiveFlowByName resolves name to an id and activates flowID in that rule.
func (s *Storage) SetActiveFlowByName(ctx context.Context, name, flowID string) (err error) {
	ctx, span := s.startSpan(ctx, "SetActiveFlowByName",
		attribute.String(otelhelper.RuleNameKey, name),
		attribute.String(otelhelper.FlowIDKey, flowID),
	)
	defer func() { endSpan(span, err) }()

	rule, err := s.findRuleByName(ctx, "SetActiveFlowByName", name)
	if err != nil {
		return err
	}

	return s.activate(ctx, rule, flowID)
}

// CreateFlowInRule saves a new flow and attaches it to the rule. The first flow of a rule
// becomes active. Without content the flow starts from the starter graph.
func (s *Storage) CreateFlowInRule(
	ctx context.Context,
	ruleID string,
	content json.RawMessage,
	patch models.FlowMetadataPatch,
) (meta models.FlowMetadata, rule models.Rule, err error) {
	ctx, span := s.startSpan(ctx, "CreateFlowInRule", attribute.String(otelhelper.RuleIDKey, ruleID))
	defer func() { endSpan(span, err) }()

	rule, err = s.loadRule(ctx, "CreateFlowInRule", ruleID)
	if err != nil {
		return models.FlowMetadata{}, models.Rule{}, err
	}

	if len(content) == 0 {
		content = models.StarterGraph
	}

	if patch.Name == nil || *patch.Name == "" {
		name := rule.Name + " - New Flow"
		if len([]rune(name)) > MaxNameLength {
			name = string([]rune(name)[:MaxNameLength])
		}

		patch.Name = &name
	}

	if patch.Tags == nil {
		patch.Tags = []string{rule.Name}
	}

	patch.ID = ""

	meta, err = s.SaveFlow(ctx, content, patch)
	if err != nil {
		return models.FlowMetadata{}, models.Rule{}, err
	}

	rule.Flows = append(rule.Flows, models.RuleFlow{
		ID:     meta.ID,
		Name:   meta.Name,
		Active: len(rule.Flows) == 0,
	})

	rule, err = s.saveRule(ctx, "CreateFlowInRule", rule)
	if err != nil {
		s.logger.ErrorContext(ctx, "Flow saved but could not be attached to rule", "rule_id", ruleID, "flow_id", meta.ID, "error", err)

		return models.FlowMetadata{}, models.Rule{}, err
	}

	return meta, rule, nil
}
