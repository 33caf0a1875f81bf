package services

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/dukex/decision-editor/pkg/mocks"
	"github.com/dukex/decision-editor/pkg/models"
	"github.com/dukex/decision-editor/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func activeIDs(rule models.Rule) []string {
	ids := []string{}

	for _, flow := range rule.Flows {
		if flow.Active {
			ids = append(ids, flow.ID)
		}
	}

	return ids
}

func TestStorage_RuleActivationScenario(t *testing.T) {
	for _, factory := range backendFactories {
		t.Run(factory.name, func(t *testing.T) {
			storage := NewStorage(factory.new(t), slog.Default())
			ctx := t.Context()

			rule, err := storage.SaveRule(ctx, models.Rule{Name: "R1", Description: "d", Flows: []models.RuleFlow{}})
			require.NoError(t, err)
			require.NotEmpty(t, rule.ID)

			f1, err := storage.SaveFlow(ctx, sampleContent, models.FlowMetadataPatch{Name: models.StringPtr("F1")})
			require.NoError(t, err)

			rule.Flows = append(rule.Flows, models.RuleFlow{ID: f1.ID, Name: "F1", Active: false})
			rule, err = storage.SaveRule(ctx, rule)
			require.NoError(t, err)

			// activate the only flow
			require.NoError(t, storage.SetActiveFlow(ctx, rule.ID, f1.ID))

			loaded, err := storage.LoadRule(ctx, rule.ID)
			require.NoError(t, err)
			assert.True(t, loaded.Flows[0].Active)

			// attach a second flow and switch to it
			f2, err := storage.SaveFlow(ctx, sampleContent, models.FlowMetadataPatch{Name: models.StringPtr("F2")})
			require.NoError(t, err)

			loaded.Flows = append(loaded.Flows, models.RuleFlow{ID: f2.ID, Name: "F2", Active: false})
			_, err = storage.SaveRule(ctx, loaded)
			require.NoError(t, err)

			require.NoError(t, storage.SetActiveFlow(ctx, rule.ID, f2.ID))

			loaded, err = storage.LoadRule(ctx, rule.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{f2.ID}, activeIDs(loaded))
			assert.False(t, loaded.Flows[0].Active)

			// two active flows are rejected and nothing is written
			invalid := loaded
			invalid.Flows = []models.RuleFlow{
				{ID: f1.ID, Name: "F1", Active: true},
				{ID: f2.ID, Name: "F2", Active: true},
			}

			_, err = storage.SaveRule(ctx, invalid)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMultipleActiveFlows)
			assert.True(t, IsValidationError(err))

			loaded, err = storage.LoadRule(ctx, rule.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{f2.ID}, activeIDs(loaded))

			// activating an unknown flow fails and leaves the rule alone
			err = storage.SetActiveFlow(ctx, rule.ID, "nonexistent-id")
			assert.ErrorIs(t, err, ErrFlowNotInRule)
			assert.True(t, IsNotFound(err))

			loaded, err = storage.LoadRule(ctx, rule.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{f2.ID}, activeIDs(loaded))
			assert.Len(t, loaded.Flows, 2)
		})
	}
}

func TestStorage_SetActiveFlow_KeepsAtMostOneActive(t *testing.T) {
	storage := newTestStorage(t)
	ctx := t.Context()

	flows := []models.RuleFlow{
		{ID: "a", Name: "A"},
		{ID: "b", Name: "B"},
		{ID: "c", Name: "C"},
	}

	rule, err := storage.SaveRule(ctx, models.Rule{Name: "Limits", Description: "limits", Flows: flows})
	require.NoError(t, err)

	for _, flowID := range []string{"a", "c", "c", "b", "a", "b"} {
		require.NoError(t, storage.SetActiveFlow(ctx, rule.ID, flowID))

		loaded, err := storage.LoadRule(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{flowID}, activeIDs(loaded))

		for i, flow := range loaded.Flows {
			assert.Equal(t, flows[i].ID, flow.ID, "order is preserved")
			assert.Equal(t, flows[i].Name, flow.Name)
		}
	}
}

func TestStorage_SetActiveFlow_RewritesWhenAlreadyActive(t *testing.T) {
	backend := &mocks.MockBackend{}
	backend.On("Info").Return(models.StorageInfo{Provider: "Local Storage (memory)"})
	storage := NewStorage(backend, slog.Default())

	stored := models.Rule{
		ID:          "rule-1",
		Name:        "Pricing",
		Description: "d",
		Flows:       []models.RuleFlow{{ID: "f1", Name: "F1", Active: true}},
	}
	raw, err := json.Marshal(stored)
	require.NoError(t, err)

	backend.On("Get", mock.Anything, persistence.Rules, "rule-1").Return(json.RawMessage(raw), nil)
	backend.On("Put", mock.Anything, persistence.Rules, "rule-1", stored).Return(nil).Once()

	require.NoError(t, storage.SetActiveFlow(t.Context(), "rule-1", "f1"))

	backend.AssertExpectations(t)
}

func TestStorage_SaveRule_RejectsBeforeWriting(t *testing.T) {
	backend := &mocks.MockBackend{}
	backend.On("Info").Return(models.StorageInfo{Provider: "Local Storage (memory)"})
	storage := NewStorage(backend, slog.Default())

	_, err := storage.SaveRule(t.Context(), models.Rule{
		Name: "Bad",
		Flows: []models.RuleFlow{
			{ID: "a", Active: true},
			{ID: "b", Active: true},
			{ID: "c", Active: false},
		},
	})
	require.Error(t, err)

	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, "multiple_active_flows", serviceErr.Code)

	backend.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStorage_SaveRule_Defaults(t *testing.T) {
	storage := newTestStorage(t, WithIDGenerator(func() string { return "generated" }))
	ctx := t.Context()

	rule, err := storage.SaveRule(ctx, models.Rule{Name: "Empty", Description: "no flows"})
	require.NoError(t, err)
	assert.Equal(t, "generated", rule.ID)
	assert.Equal(t, []models.RuleFlow{}, rule.Flows)

	kept, err := storage.SaveRule(ctx, models.Rule{ID: "explicit", Name: "Explicit", Description: "d"})
	require.NoError(t, err)
	assert.Equal(t, "explicit", kept.ID)

	_, err = storage.SaveRule(ctx, models.Rule{Description: "no name"})
	assert.ErrorIs(t, err, ErrNameRequired)
}

func TestStorage_ListRules_SortedByName(t *testing.T) {
	for _, factory := range backendFactories {
		t.Run(factory.name, func(t *testing.T) {
			storage := NewStorage(factory.new(t), slog.Default())
			ctx := t.Context()

			for _, name := range []string{"Pricing", "Aging", "Limits"} {
				_, err := storage.SaveRule(ctx, models.Rule{Name: name, Description: name})
				require.NoError(t, err)
			}

			rules, err := storage.ListRules(ctx)
			require.NoError(t, err)
			require.Len(t, rules, 3)

			assert.Equal(t, "Aging", rules[0].Name)
			assert.Equal(t, "Limits", rules[1].Name)
			assert.Equal(t, "Pricing", rules[2].Name)
		})
	}
}

func TestStorage_RuleByName(t *testing.T) {
	storage := newTestStorage(t)
	ctx := t.Context()

	pricing, err := storage.SaveRule(ctx, models.Rule{
		Name:        "Pricing",
		Description: "d",
		Flows:       []models.RuleFlow{{ID: "f1", Name: "F1"}, {ID: "f2", Name: "F2"}},
	})
	require.NoError(t, err)

	loaded, err := storage.LoadRuleByName(ctx, "Pricing")
	require.NoError(t, err)
	assert.Equal(t, pricing.ID, loaded.ID)

	require.NoError(t, storage.SetActiveFlowByName(ctx, "Pricing", "f2"))

	loaded, err = storage.LoadRule(ctx, pricing.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"f2"}, activeIDs(loaded))

	err = storage.SetActiveFlowByName(ctx, "Pricing", "f3")
	assert.ErrorIs(t, err, ErrFlowNotInRule)

	_, err = storage.LoadRuleByName(ctx, "Unknown")
	assert.ErrorIs(t, err, ErrRuleNotFound)

	err = storage.SetActiveFlowByName(ctx, "Unknown", "f1")
	assert.ErrorIs(t, err, ErrRuleNotFound)

	require.NoError(t, storage.DeleteRuleByName(ctx, "Pricing"))

	err = storage.DeleteRuleByName(ctx, "Pricing")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestStorage_RuleByName_DuplicateNamesResolveToFirst(t *testing.T) {
	storage := newTestStorage(t)
	ctx := t.Context()

	first, err := storage.SaveRule(ctx, models.Rule{ID: "first", Name: "Dup", Description: "1"})
	require.NoError(t, err)

	_, err = storage.SaveRule(ctx, models.Rule{ID: "second", Name: "Dup", Description: "2"})
	require.NoError(t, err)

	loaded, err := storage.LoadRuleByName(ctx, "Dup")
	require.NoError(t, err)
	assert.Equal(t, first.ID, loaded.ID)

	require.NoError(t, storage.DeleteRuleByName(ctx, "Dup"))

	loaded, err = storage.LoadRuleByName(ctx, "Dup")
	require.NoError(t, err)
	assert.Equal(t, "second", loaded.ID)
}

func TestStorage_DeleteRule(t *testing.T) {
	for _, factory := range backendFactories {
		t.Run(factory.name, func(t *testing.T) {
			storage := NewStorage(factory.new(t), slog.Default())
			ctx := t.Context()

			flow, err := storage.SaveFlow(ctx, sampleContent, models.FlowMetadataPatch{Name: models.StringPtr("F")})
			require.NoError(t, err)

			rule, err := storage.SaveRule(ctx, models.Rule{
				Name:        "R",
				Description: "d",
				Flows:       []models.RuleFlow{{ID: flow.ID, Name: "F", Active: true}},
			})
			require.NoError(t, err)

			require.NoError(t, storage.DeleteRule(ctx, rule.ID))
			assert.ErrorIs(t, storage.DeleteRule(ctx, rule.ID), ErrRuleNotFound)

			_, err = storage.LoadRule(ctx, rule.ID)
			assert.ErrorIs(t, err, ErrRuleNotFound)

			_, err = storage.LoadFlow(ctx, flow.ID)
			assert.NoError(t, err, "flows survive rule deletion")
		})
	}
}

func TestStorage_SetActiveFlow_MissingRule(t *testing.T) {
	storage := newTestStorage(t)

	err := storage.SetActiveFlow(t.Context(), "missing", "f1")
	assert.ErrorIs(t, err, ErrRuleNotFound)
	assert.True(t, IsNotFound(err))
}

func TestStorage_RenamedFlowKeepsRuleSnapshot(t *testing.T) {
	storage := newTestStorage(t)
	ctx := t.Context()

	flow, err := storage.SaveFlow(ctx, sampleContent, models.FlowMetadataPatch{Name: models.StringPtr("Before")})
	require.NoError(t, err)

	rule, err := storage.SaveRule(ctx, models.Rule{
		Name:        "R",
		Description: "d",
		Flows:       []models.RuleFlow{{ID: flow.ID, Name: "Before"}},
	})
	require.NoError(t, err)

	_, err = storage.UpdateFlowMetadata(ctx, flow.ID, models.FlowMetadataPatch{Name: models.StringPtr("After")})
	require.NoError(t, err)

	loaded, err := storage.LoadRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "Before", loaded.Flows[0].Name)
}

func TestStorage_CreateFlowInRule(t *testing.T) {
	storage := newTestStorage(t)
	ctx := t.Context()

	rule, err := storage.SaveRule(ctx, models.Rule{Name: "Credit", Description: "credit checks"})
	require.NoError(t, err)

	first, updated, err := storage.CreateFlowInRule(ctx, rule.ID, nil, models.FlowMetadataPatch{})
	require.NoError(t, err)

	assert.Equal(t, "Credit - New Flow", first.Name)
	assert.Equal(t, []string{"Credit"}, first.Tags)
	require.Len(t, updated.Flows, 1)
	assert.Equal(t, models.RuleFlow{ID: first.ID, Name: first.Name, Active: true}, updated.Flows[0])

	flow, err := storage.LoadFlow(ctx, first.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(models.StarterGraph), string(flow.Content))

	second, updated, err := storage.CreateFlowInRule(ctx, rule.ID, sampleContent, models.FlowMetadataPatch{
		ID:   "ignored",
		Name: models.StringPtr("Manual review"),
		Tags: []string{"manual"},
	})
	require.NoError(t, err)

	assert.NotEqual(t, "ignored", second.ID)
	assert.Equal(t, "Manual review", second.Name)
	assert.Equal(t, []string{"manual"}, second.Tags)
	require.Len(t, updated.Flows, 2)
	assert.False(t, updated.Flows[1].Active)
	assert.Equal(t, []string{first.ID}, activeIDs(updated))
}

func TestStorage_CreateFlowInRule_MissingRule(t *testing.T) {
	storage := newTestStorage(t)
	ctx := t.Context()

	_, _, err := storage.CreateFlowInRule(ctx, "missing", nil, models.FlowMetadataPatch{})
	assert.ErrorIs(t, err, ErrRuleNotFound)

	flows, err := storage.ListFlows(ctx)
	require.NoError(t, err)
	assert.Empty(t, flows)
}
