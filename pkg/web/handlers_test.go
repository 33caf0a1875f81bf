package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dukex/decision-editor/pkg/models"
	"github.com/dukex/decision-editor/pkg/persistence/kv"
	"github.com/dukex/decision-editor/pkg/services"
	"github.com/dukex/decision-editor/pkg/simulation"
	"github.com/dukex/decision-editor/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const missingID = "6f1c2b1e-8d4f-4c55-9a57-0d5c1b2f9e10"

func setupTestApp(t *testing.T, engineURL string) (*fiber.App, *services.Storage) {
	t.Helper()

	backend := kv.NewBackend(kv.NewMemoryStore(), slog.Default(), models.StorageInfo{Provider: "Local Storage (memory)"})
	storage := services.NewStorage(backend, slog.Default())
	forwarder := simulation.NewForwarder(engineURL, time.Second, slog.Default())

	handlers := web.NewAPIHandlers(storage, forwarder, validator.New(validator.WithRequiredStructEnabled()), slog.Default())

	app := fiber.New(fiber.Config{ErrorHandler: web.ErrorHandler(slog.Default())})
	handlers.Register(app.Group("/api"))

	return app, storage
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func decodeError(t *testing.T, body []byte) web.ErrorBody {
	t.Helper()

	var resp web.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))

	return resp.Error
}

func createRule(t *testing.T, app *fiber.App, name string) models.Rule {
	t.Helper()

	status, body := doRequest(t, app, http.MethodPost, "/api/rules", map[string]any{
		"name":        name,
		"description": "",
		"flows":       []any{},
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var rule models.Rule
	require.NoError(t, json.Unmarshal(body, &rule))

	return rule
}

func createFlowInRule(t *testing.T, app *fiber.App, ruleID string) web.CreateFlowInRuleResponse {
	t.Helper()

	status, body := doRequest(t, app, http.MethodPost, "/api/rules/"+ruleID+"/flows", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var resp web.CreateFlowInRuleResponse
	require.NoError(t, json.Unmarshal(body, &resp))

	return resp
}

func TestAPIHandlers_Health(t *testing.T) {
	app, _ := setupTestApp(t, "http://127.0.0.1:1")

	status, body := doRequest(t, app, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, status)

	var health web.HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, health.Timestamp)
}

func TestAPIHandlers_StorageInfo(t *testing.T) {
	app, _ := setupTestApp(t, "http://127.0.0.1:1")

	status, body := doRequest(t, app, http.MethodGet, "/api/storage/info", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"provider":"Local Storage (memory)","isCloud":false}`, string(body))
}

func TestAPIHandlers_SaveFlow(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		expectedStatus int
		validate       func(t *testing.T, body []byte)
	}{
		{
			name: "creates a flow",
			body: map[string]any{
				"content":  map[string]any{"nodes": []any{}, "edges": []any{}},
				"metadata": map[string]any{"name": "Approval"},
			},
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, body []byte) {
				t.Helper()

				var meta models.FlowMetadata
				require.NoError(t, json.Unmarshal(body, &meta))
				assert.NotEmpty(t, meta.ID)
				assert.Equal(t, "Approval", meta.Name)
				assert.Equal(t, []string{}, meta.Tags)
			},
		},
		{
			name:           "missing content",
			body:           map[string]any{"metadata": map[string]any{}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown metadata field",
			body: map[string]any{
				"content":  map[string]any{},
				"metadata": map[string]any{"owner": "someone"},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "id is not a uuid",
			body: map[string]any{
				"content":  map[string]any{},
				"metadata": map[string]any{"id": "flow-1"},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed json",
			body:           `{"content":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "empty body",
			body:           "",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := setupTestApp(t, "http://127.0.0.1:1")

			status, body := doRequest(t, app, http.MethodPost, "/api/flows", tt.body)
			assert.Equal(t, tt.expectedStatus, status, string(body))

			if tt.expectedStatus == http.StatusBadRequest {
				errBody := decodeError(t, body)
				assert.Equal(t, http.StatusBadRequest, errBody.StatusCode)
				assert.NotEmpty(t, errBody.Message)
				assert.NotEmpty(t, errBody.Timestamp)
			}

			if tt.validate != nil {
				tt.validate(t, body)
			}
		})
	}
}

func TestAPIHandlers_FlowLifecycle(t *testing.T) {
	app, _ := setupTestApp(t, "http://127.0.0.1:1")

	status, body := doRequest(t, app, http.MethodPost, "/api/flows", map[string]any{
		"content":  map[string]any{"nodes": []any{map[string]any{"id": "n1"}}, "edges": []any{}},
		"metadata": map[string]any{"name": "Scoring", "tags": []string{"risk"}},
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var meta models.FlowMetadata
	require.NoError(t, json.Unmarshal(body, &meta))

	status, body = doRequest(t, app, http.MethodGet, "/api/flows/"+meta.ID, nil)
	require.Equal(t, http.StatusOK, status)

	var flow models.FlowData
	require.NoError(t, json.Unmarshal(body, &flow))
	assert.Equal(t, "Scoring", flow.Metadata.Name)
	assert.JSONEq(t, `{"nodes":[{"id":"n1"}],"edges":[]}`, string(flow.Content))

	status, body = doRequest(t, app, http.MethodPut, "/api/flows/"+meta.ID+"/metadata", map[string]any{
		"name":        "Scoring v2",
		"description": "second pass",
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var updated models.FlowMetadata
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, meta.ID, updated.ID)
	assert.Equal(t, "Scoring v2", updated.Name)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "second pass", *updated.Description)
	assert.Equal(t, []string{"risk"}, updated.Tags)

	status, body = doRequest(t, app, http.MethodPost, "/api/flows/"+meta.ID+"/duplicate", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var dup models.FlowMetadata
	require.NoError(t, json.Unmarshal(body, &dup))
	assert.NotEqual(t, meta.ID, dup.ID)
	assert.Equal(t, "Scoring v2 (Copy)", dup.Name)

	status, body = doRequest(t, app, http.MethodGet, "/api/flows", nil)
	require.Equal(t, http.StatusOK, status)

	var flows []models.FlowMetadata
	require.NoError(t, json.Unmarshal(body, &flows))
	assert.Len(t, flows, 2)

	status, _ = doRequest(t, app, http.MethodDelete, "/api/flows/"+meta.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = doRequest(t, app, http.MethodGet, "/api/flows/"+meta.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "flow not found", decodeError(t, body).Message)
}

func TestAPIHandlers_FlowNotFound(t *testing.T) {
	app, _ := setupTestApp(t, "http://127.0.0.1:1")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{name: "get", method: http.MethodGet, path: "/api/flows/" + missingID},
		{name: "delete", method: http.MethodDelete, path: "/api/flows/" + missingID},
		{name: "duplicate", method: http.MethodPost, path: "/api/flows/" + missingID + "/duplicate"},
		{name: "update metadata", method: http.MethodPut, path: "/api/flows/" + missingID + "/metadata", body: map[string]any{"name": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doRequest(t, app, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusNotFound, status, string(body))

			errBody := decodeError(t, body)
			assert.Equal(t, http.StatusNotFound, errBody.StatusCode)
			assert.Equal(t, "flow not found", errBody.Message)
		})
	}
}

func TestAPIHandlers_InvalidIDs(t *testing.T) {
	app, _ := setupTestApp(t, "http://127.0.0.1:1")

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{name: "flow", method: http.MethodGet, path: "/api/flows/not-a-uuid"},
		{name: "rule", method: http.MethodGet, path: "/api/rules/not-a-uuid"},
		{name: "activate flow id", method: http.MethodPut, path: "/api/rules/" + missingID + "/flows/nope/activate"},
		{name: "rule name too long", method: http.MethodGet, path: "/api/rules/by-name/" + string(bytes.Repeat([]byte("a"), 101))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doRequest(t, app, tt.method, tt.path, nil)
			assert.Equal(t, http.StatusBadRequest, status, string(body))
		})
	}
}

func TestAPIHandlers_SaveRule(t *testing.T) {
	flowA := "0b7d5c1e-1111-4c55-9a57-0d5c1b2f9e10"
	flowB := "0b7d5c1e-2222-4c55-9a57-0d5c1b2f9e10"

	tests := []struct {
		name            string
		body            any
		expectedStatus  int
		expectedMessage string
	}{
		{
			name:           "valid rule",
			body:           map[string]any{"name": "Fraud", "description": "checks", "flows": []any{}},
			expectedStatus: http.StatusOK,
		},
		{
			name: "two active flows",
			body: map[string]any{
				"name":        "Fraud",
				"description": "",
				"flows": []any{
					map[string]any{"id": flowA, "name": "A", "active": true},
					map[string]any{"id": flowB, "name": "B", "active": true},
				},
			},
			expectedStatus:  http.StatusBadRequest,
			expectedMessage: `rule "Fraud" has 2 active flows, at most one is allowed`,
		},
		{
			name:           "missing name",
			body:           map[string]any{"description": "", "flows": []any{}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "flow reference without id",
			body: map[string]any{
				"name":        "Fraud",
				"description": "",
				"flows":       []any{map[string]any{"name": "A", "active": false}},
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := setupTestApp(t, "http://127.0.0.1:1")

			status, body := doRequest(t, app, http.MethodPost, "/api/rules", tt.body)
			assert.Equal(t, tt.expectedStatus, status, string(body))

			if tt.expectedMessage != "" {
				assert.Equal(t, tt.expectedMessage, decodeError(t, body).Message)
			}

			if tt.expectedStatus == http.StatusOK {
				var rule models.Rule
				require.NoError(t, json.Unmarshal(body, &rule))
				assert.NotEmpty(t, rule.ID)
				assert.Equal(t, []models.RuleFlow{}, rule.Flows)
			}
		})
	}
}

func TestAPIHandlers_RuleLifecycle(t *testing.T) {
	app, _ := setupTestApp(t, "http://127.0.0.1:1")

	rule := createRule(t, app, "Credit Limit")

	first := createFlowInRule(t, app, rule.ID)
	assert.Equal(t, "Credit Limit - New Flow", first.Flow.Name)
	assert.Equal(t, []string{"Credit Limit"}, first.Flow.Tags)
	require.Len(t, first.Rule.Flows, 1)
	assert.True(t, first.Rule.Flows[0].Active)

	second := createFlowInRule(t, app, rule.ID)
	require.Len(t, second.Rule.Flows, 2)
	assert.False(t, second.Rule.Flows[1].Active)

	status, body := doRequest(t, app, http.MethodGet, "/api/flows/"+second.Flow.ID, nil)
	require.Equal(t, http.StatusOK, status)

	var flow models.FlowData
	require.NoError(t, json.Unmarshal(body, &flow))
	assert.JSONEq(t, string(models.StarterGraph), string(flow.Content))

	status, body = doRequest(t, app, http.MethodPut, "/api/rules/"+rule.ID+"/flows/"+second.Flow.ID+"/activate", nil)
	require.Equal(t, http.StatusNoContent, status, string(body))

	status, body = doRequest(t, app, http.MethodGet, "/api/rules/"+rule.ID, nil)
	require.Equal(t, http.StatusOK, status)

	var loaded models.Rule
	require.NoError(t, json.Unmarshal(body, &loaded))
	active, ok := loaded.ActiveFlow()
	require.True(t, ok)
	assert.Equal(t, second.Flow.ID, active.ID)
	assert.Equal(t, 1, loaded.ActiveCount())

	status, body = doRequest(t, app, http.MethodGet, "/api/rules", nil)
	require.Equal(t, http.StatusOK, status)

	var rules []models.Rule
	require.NoError(t, json.Unmarshal(body, &rules))
	assert.Len(t, rules, 1)

	status, _ = doRequest(t, app, http.MethodDelete, "/api/rules/"+rule.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	// flows survive their rule
	status, _ = doRequest(t, app, http.MethodGet, "/api/flows/"+first.Flow.ID, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = doRequest(t, app, http.MethodGet, "/api/rules/"+rule.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "rule not found", decodeError(t, body).Message)
}

func TestAPIHandlers_ActivateFlow_NotInRule(t *testing.T) {
	app, _ := setupTestApp(t, "http://127.0.0.1:1")

	rule := createRule(t, app, "Pricing")

	status, body := doRequest(t, app, http.MethodPut, "/api/rules/"+rule.ID+"/flows/"+missingID+"/activate", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "flow not found in rule", decodeError(t, body).Message)

	status, body = doRequest(t, app, http.MethodPut, "/api/rules/"+missingID+"/flows/"+missingID+"/activate", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "rule not found", decodeError(t, body).Message)
}

func TestAPIHandlers_RuleByName(t *testing.T) {
	app, _ := setupTestApp(t, "http://127.0.0.1:1")

	rule := createRule(t, app, "Loan Approval")
	first := createFlowInRule(t, app, rule.ID)
	second := createFlowInRule(t, app, rule.ID)

	escaped := url.PathEscape("Loan Approval")

	status, body := doRequest(t, app, http.MethodGet, "/api/rules/by-name/"+escaped, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var loaded models.Rule
	require.NoError(t, json.Unmarshal(body, &loaded))
	assert.Equal(t, rule.ID, loaded.ID)

	status, body = doRequest(t, app, http.MethodPut, "/api/rules/by-name/"+escaped+"/flows/"+second.Flow.ID+"/activate", nil)
	require.Equal(t, http.StatusNoContent, status, string(body))

	status, body = doRequest(t, app, http.MethodGet, "/api/rules/"+rule.ID, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &loaded))

	active, ok := loaded.ActiveFlow()
	require.True(t, ok)
	assert.Equal(t, second.Flow.ID, active.ID)
	assert.NotEqual(t, first.Flow.ID, active.ID)

	status, _ = doRequest(t, app, http.MethodDelete, "/api/rules/by-name/"+escaped, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = doRequest(t, app, http.MethodGet, "/api/rules/by-name/"+escaped, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "rule not found", decodeError(t, body).Message)
}

func TestAPIHandlers_CreateFlowInRule(t *testing.T) {
	app, _ := setupTestApp(t, "http://127.0.0.1:1")

	status, body := doRequest(t, app, http.MethodPost, "/api/rules/"+missingID+"/flows", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "rule not found", decodeError(t, body).Message)

	rule := createRule(t, app, "Onboarding")

	status, body = doRequest(t, app, http.MethodPost, "/api/rules/"+rule.ID+"/flows", map[string]any{
		"content":  map[string]any{"nodes": []any{}, "edges": []any{}},
		"metadata": map[string]any{"name": "KYC"},
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var resp web.CreateFlowInRuleResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "KYC", resp.Flow.Name)
	require.Len(t, resp.Rule.Flows, 1)
	assert.Equal(t, models.RuleFlow{ID: resp.Flow.ID, Name: "KYC", Active: true}, resp.Rule.Flows[0])

	status, _ = doRequest(t, app, http.MethodPost, "/api/rules/"+rule.ID+"/flows", map[string]any{"extra": true})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_Simulate(t *testing.T) {
	var received map[string]json.RawMessage

	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/simulate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"approved":true},"trace":{}}`))
	}))
	defer engine.Close()

	app, _ := setupTestApp(t, engine.URL)

	status, body := doRequest(t, app, http.MethodPost, "/api/simulate", map[string]any{
		"context": map[string]any{"amount": 100},
		"content": map[string]any{"nodes": []any{}, "edges": []any{}},
	})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.JSONEq(t, `{"result":{"result":{"approved":true},"trace":{}}}`, string(body))
	assert.JSONEq(t, `{"amount":100}`, string(received["context"]))
}

func TestAPIHandlers_Simulate_Errors(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "node n1 has no expression", http.StatusUnprocessableEntity)
	}))
	defer engine.Close()

	t.Run("upstream failure", func(t *testing.T) {
		app, _ := setupTestApp(t, engine.URL)

		status, body := doRequest(t, app, http.MethodPost, "/api/simulate", map[string]any{
			"context": map[string]any{},
			"content": map[string]any{},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Contains(t, decodeError(t, body).Message, "Simulation failed: node n1 has no expression")
	})

	t.Run("engine unreachable", func(t *testing.T) {
		app, _ := setupTestApp(t, "http://127.0.0.1:1")

		status, body := doRequest(t, app, http.MethodPost, "/api/simulate", map[string]any{
			"context": map[string]any{},
			"content": map[string]any{},
		})
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Contains(t, decodeError(t, body).Message, "Simulation failed")
	})

	t.Run("missing context", func(t *testing.T) {
		app, _ := setupTestApp(t, engine.URL)

		status, _ := doRequest(t, app, http.MethodPost, "/api/simulate", map[string]any{
			"content": map[string]any{},
		})
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestErrorHandler_UnknownRoute(t *testing.T) {
	app, _ := setupTestApp(t, "http://127.0.0.1:1")

	status, body := doRequest(t, app, http.MethodGet, "/api/unknown", nil)
	assert.Equal(t, http.StatusNotFound, status)

	errBody := decodeError(t, body)
	assert.Equal(t, http.StatusNotFound, errBody.StatusCode)
	assert.Equal(t, "/api/unknown", errBody.Instance)
}
