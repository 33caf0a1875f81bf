package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/decision-editor/pkg/models"
	"github.com/dukex/decision-editor/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// BackupVersion is written into every export.
const BackupVersion = 1

// Backup is a portable copy of every flow and rule.
type Backup struct {
	Version    int               `json:"version"`
	ExportedAt string            `json:"exportedAt"`
	Flows      []models.FlowData `json:"flows"`
	Rules      []models.Rule     `json:"rules"`
}

// ImportResult counts the records written by Import.
type ImportResult struct {
	Flows int `json:"flows"`
	Rules int `json:"rules"`
}

// Export reads every readable flow and rule.
func (s *Storage) Export(ctx context.Context) (backup *Backup, err error) {
	ctx, span := s.startSpan(ctx, "Export")
	defer func() { endSpan(span, err) }()

	flows, err := s.listFlowRecords(ctx)
	if err != nil {
		return nil, err
	}

	rules, err := s.listRules(ctx)
	if err != nil {
		return nil, err
	}

	return &Backup{
		Version:    BackupVersion,
		ExportedAt: s.timestamp().Format(models.TimestampLayout),
		Flows:      flows,
		Rules:      rules,
	}, nil
}

func validateBackup(backup *Backup) error {
	if backup == nil {
		return NewValidationError("Import", "empty_backup", "backup is empty", nil)
	}

	for i, flow := range backup.Flows {
		if err := uuid.Validate(flow.Metadata.ID); err != nil {
			return NewValidationError("Import", "invalid_flow",
				fmt.Sprintf("flow %d has invalid id %q", i, flow.Metadata.ID), ErrInvalidID)
		}

		if len(flow.Content) > 0 && !json.Valid(flow.Content) {
			return NewValidationError("Import", "invalid_content", fmt.Sprintf("flow %s has invalid content", flow.Metadata.ID), ErrInvalidContent)
		}

		if err := validateName("Import", flow.Metadata.Name); err != nil {
			return err
		}
	}

	for i, rule := range backup.Rules {
		if err := uuid.Validate(rule.ID); err != nil {
			return NewValidationError("Import", "invalid_rule",
				fmt.Sprintf("rule %d has invalid id %q", i, rule.ID), ErrInvalidID)
		}

		for _, ref := range rule.Flows {
			if err := uuid.Validate(ref.ID); err != nil {
				return NewValidationError("Import", "invalid_rule",
					fmt.Sprintf("rule %q references invalid flow id %q", rule.Name, ref.ID), ErrInvalidID)
			}
		}

		if err := validateName("Import", rule.Name); err != nil {
			return err
		}

		if rule.ActiveCount() > 1 {
			return NewValidationError("Import", "multiple_active_flows",
				fmt.Sprintf("rule %q has more than one active flow", rule.Name), ErrMultipleActiveFlows)
		}
	}

	return nil
}

// Import writes every record of backup as-is, keeping ids and timestamps. The whole backup is
// validated before the first write. With replace, both collections are cleared first.
func (s *Storage) Import(ctx context.Context, backup *Backup, replace bool) (result ImportResult, err error) {
	ctx, span := s.startSpan(ctx, "Import", attribute.Bool("decision.import.replace", replace))
	defer func() { endSpan(span, err) }()

	if err := validateBackup(backup); err != nil {
		return ImportResult{}, err
	}

	if replace {
		if err := s.Clear(ctx); err != nil {
			return ImportResult{}, err
		}
	}

	for _, flow := range backup.Flows {
		if len(flow.Content) == 0 {
			flow.Content = models.EmptyGraph
		}

		if flow.Metadata.Tags == nil {
			flow.Metadata.Tags = []string{}
		}

		if err := s.backend.Put(ctx, persistence.Flows, flow.Metadata.ID, flow); err != nil {
			return result, fmt.Errorf("failed to import flow: %w", err)
		}

		result.Flows++
	}

	for _, rule := range backup.Rules {
		if rule.Flows == nil {
			rule.Flows = []models.RuleFlow{}
		}

		if err := s.backend.Put(ctx, persistence.Rules, rule.ID, rule); err != nil {
			return result, fmt.Errorf("failed to import rule: %w", err)
		}

		result.Rules++
	}

	s.logger.InfoContext(ctx, "Imported backup", "flows", result.Flows, "rules", result.Rules)

	return result, nil
}

// Clear removes every flow and rule.
func (s *Storage) Clear(ctx context.Context) error {
	if err := s.clearCollection(ctx, persistence.Flows); err != nil {
		return err
	}

	return s.clearCollection(ctx, persistence.Rules)
}

func (s *Storage) clearCollection(ctx context.Context, c persistence.Collection) error {
	if clearer, ok := s.backend.(persistence.Clearer); ok {
		if err := clearer.Clear(ctx, c); err != nil {
			return fmt.Errorf("failed to clear %s: %w", c.Name, err)
		}

		return nil
	}

	records, err := s.backend.List(ctx, c)
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", c.Name, err)
	}

	var errs []error

	for _, raw := range records {
		id, err := c.RecordID(raw)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping record without id", "collection", c.Name, "error", err)

			continue
		}

		if err := s.backend.Delete(ctx, c, id); err != nil && !persistence.IsNotFound(err) {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to clear %s: %w", c.Name, err)
	}

	s.logger.InfoContext(ctx, "Cleared collection", "collection", c.Name, "records", len(records))

	return nil
}
