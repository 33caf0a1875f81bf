package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/dukex/decision-editor/pkg/models"
	"github.com/dukex/decision-editor/pkg/otelhelper"
	"github.com/dukex/decision-editor/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Storage is the uniform flow and rule contract over a persistence backend.
// It owns id generation, timestamps and the single-active-flow rule.
type Storage struct {
	backend persistence.Backend
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
}

// Option customizes a Storage.
type Option func(*Storage)

// WithClock replaces the wall clock used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		s.now = now
	}
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Storage) {
		s.newID = newID
	}
}

// WithTracer records a span per operation.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Storage) {
		s.tracer = tracer
	}
}

// NewStorage creates a storage service on top of backend.
func NewStorage(backend persistence.Backend, logger *slog.Logger, opts ...Option) *Storage {
	s := &Storage{
		backend: backend,
		logger:  logger.With("module", "storage"),
		tracer:  otelhelper.NoopTracer(),
		now:     time.Now,
		newID:   uuid.NewString,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Storage) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// nolint:spancheck // spans are ended by endSpan
func (s *Storage) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String(otelhelper.ProviderKey, s.backend.Info().Provider))

	return otelhelper.StartSpan(ctx, s.tracer, "storage."+name, attrs...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		otelhelper.SetError(span, err)
	}

	span.End()
}

// Info describes the configured backend.
func (s *Storage) Info() models.StorageInfo {
	return s.backend.Info()
}

// HealthCheck checks the health of the persistence layer.
func (s *Storage) HealthCheck(ctx context.Context) error {
	if s.backend == nil {
		return persistence.Unavailable(errors.New("persistence layer not initialized"))
	}

	return s.backend.HealthCheck(ctx)
}

func validateName(op, name string) error {
	if name == "" {
		return NewValidationError(op, "name_required", "", ErrNameRequired)
	}

	if utf8.RuneCountInString(name) > MaxNameLength {
		return NewValidationError(op, "name_too_long", "", ErrNameTooLong)
	}

	return nil
}

// SaveFlow creates or overwrites a flow. A missing id is generated, a missing createdAt is set
// to now, and updatedAt is always refreshed.
func (s *Storage) SaveFlow(ctx context.Context, content json.RawMessage, patch models.FlowMetadataPatch) (meta models.FlowMetadata, err error) {
	ctx, span := s.startSpan(ctx, "SaveFlow", attribute.String(otelhelper.FlowIDKey, patch.ID))
	defer func() { endSpan(span, err) }()

	if len(content) == 0 {
		content = models.EmptyGraph
	}

	if !json.Valid(content) {
		return models.FlowMetadata{}, NewValidationError("SaveFlow", "invalid_content", "", ErrInvalidContent)
	}

	now := s.timestamp()

	meta = models.FlowMetadata{
		ID:          patch.ID,
		Name:        models.DefaultFlowName,
		Description: patch.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
		Tags:        []string{},
	}

	if meta.ID == "" {
		meta.ID = s.newID()
	}

	if patch.Name != nil && *patch.Name != "" {
		meta.Name = *patch.Name
	}

	if patch.CreatedAt != nil && !patch.CreatedAt.IsZero() {
		meta.CreatedAt = patch.CreatedAt.UTC()
	}

	if patch.Tags != nil {
		meta.Tags = slices.Clone(patch.Tags)
	}

	if err := validateName("SaveFlow", meta.Name); err != nil {
		return models.FlowMetadata{}, err
	}

	span.SetAttributes(
		attribute.String(otelhelper.FlowIDKey, meta.ID),
		attribute.String(otelhelper.FlowNameKey, meta.Name),
	)

	record := models.FlowData{Metadata: meta, Content: content}
	if err := s.backend.Put(ctx, persistence.Flows, meta.ID, record); err != nil {
		return models.FlowMetadata{}, fmt.Errorf("failed to save flow: %w", err)
	}

	s.logger.DebugContext(ctx, "Saved flow", "flow_id", meta.ID, "name", meta.Name)

	return meta, nil
}

// LoadFlow returns the flow with id.
func (s *Storage) LoadFlow(ctx context.Context, id string) (flow *models.FlowData, err error) {
	ctx, span := s.startSpan(ctx, "LoadFlow", attribute.String(otelhelper.FlowIDKey, id))
	defer func() { endSpan(span, err) }()

	return s.loadFlow(ctx, "LoadFlow", id)
}

func (s *Storage) loadFlow(ctx context.Context, op, id string) (*models.FlowData, error) {
	raw, err := s.backend.Get(ctx, persistence.Flows, id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return nil, NewNotFoundError(op, "flow_not_found", "", ErrFlowNotFound)
		}

		return nil, fmt.Errorf("failed to load flow: %w", err)
	}

	flow, err := decodeFlow(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow %s: %w", id, err)
	}

	return flow, nil
}

func decodeFlow(raw json.RawMessage) (*models.FlowData, error) {
	var flow models.FlowData
	if err := json.Unmarshal(raw, &flow); err != nil {
		return nil, fmt.Errorf("%w: %w", persistence.ErrCorruptRecord, err)
	}

	if flow.Metadata.ID == "" {
		return nil, fmt.Errorf("%w: flow has no id", persistence.ErrCorruptRecord)
	}

	if flow.Metadata.Tags == nil {
		flow.Metadata.Tags = []string{}
	}

	return &flow, nil
}

// listFlowRecords decodes every flow record, skipping the ones that do not parse.
func (s *Storage) listFlowRecords(ctx context.Context) ([]models.FlowData, error) {
	records, err := s.backend.List(ctx, persistence.Flows)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	flows := make([]models.FlowData, 0, len(records))

	for i, raw := range records {
		flow, err := decodeFlow(raw)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping corrupt flow record", "collection", persistence.Flows.Name, "index", i, "error", err)

			continue
		}

		flows = append(flows, *flow)
	}

	return flows, nil
}

// ListFlows returns the metadata of every readable flow, most recently updated first.
func (s *Storage) ListFlows(ctx context.Context) (flows []models.FlowMetadata, err error) {
	ctx, span := s.startSpan(ctx, "ListFlows")
	defer func() { endSpan(span, err) }()

	records, err := s.listFlowRecords(ctx)
	if err != nil {
		return nil, err
	}

	flows = make([]models.FlowMetadata, 0, len(records))
	for _, record := range records {
		flows = append(flows, record.Metadata)
	}

	slices.SortStableFunc(flows, func(a, b models.FlowMetadata) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})

	return flows, nil
}

// DeleteFlow removes the flow. Rules referencing it are left untouched.
func (s *Storage) DeleteFlow(ctx context.Context, id string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteFlow", attribute.String(otelhelper.FlowIDKey, id))
	defer func() { endSpan(span, err) }()

	if err := s.backend.Delete(ctx, persistence.Flows, id); err != nil {
		if persistence.IsNotFound(err) {
			return NewNotFoundError("DeleteFlow", "flow_not_found", "", ErrFlowNotFound)
		}

		return fmt.Errorf("failed to delete flow: %w", err)
	}

	s.logger.DebugContext(ctx, "Deleted flow", "flow_id", id)

	return nil
}

// UpdateFlowMetadata merges patch into the stored metadata and leaves content untouched.
// The id and createdAt never change.
func (s *Storage) UpdateFlowMetadata(ctx context.Context, id string, patch models.FlowMetadataPatch) (meta models.FlowMetadata, err error) {
	ctx, span := s.startSpan(ctx, "UpdateFlowMetadata", attribute.String(otelhelper.FlowIDKey, id))
	defer func() { endSpan(span, err) }()

	flow, err := s.loadFlow(ctx, "UpdateFlowMetadata", id)
	if err != nil {
		return models.FlowMetadata{}, err
	}

	meta = flow.Metadata

	if patch.Name != nil {
		if err := validateName("UpdateFlowMetadata", *patch.Name); err != nil {
			return models.FlowMetadata{}, err
		}

		meta.Name = *patch.Name
	}

	if patch.Description != nil {
		meta.Description = patch.Description
	}

	if patch.Tags != nil {
		meta.Tags = slices.Clone(patch.Tags)
	}

	meta.ID = id
	meta.UpdatedAt = s.timestamp()

	span.SetAttributes(attribute.String(otelhelper.FlowNameKey, meta.Name))

	record := models.FlowData{Metadata: meta, Content: flow.Content}
	if err := s.backend.Put(ctx, persistence.Flows, id, record); err != nil {
		return models.FlowMetadata{}, fmt.Errorf("failed to update flow metadata: %w", err)
	}

	return meta, nil
}

// DuplicateFlow saves a copy of the flow under a new id, named "<name> (Copy)".
func (s *Storage) DuplicateFlow(ctx context.Context, id string) (meta models.FlowMetadata, err error) {
	ctx, span := s.startSpan(ctx, "DuplicateFlow", attribute.String(otelhelper.FlowIDKey, id))
	defer func() { endSpan(span, err) }()

	flow, err := s.loadFlow(ctx, "DuplicateFlow", id)
	if err != nil {
		return models.FlowMetadata{}, err
	}

	name := flow.Metadata.Name + " (Copy)"
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
	}

	return s.SaveFlow(ctx, flow.Content, models.FlowMetadataPatch{
		Name:        &name,
		Description: flow.Metadata.Description,
		Tags:        flow.Metadata.Tags,
	})
}
