// Package web provides HTTP handlers and REST API endpoints for flows and rules.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"

	"github.com/dukex/decision-editor/pkg/services"
	"github.com/dukex/decision-editor/pkg/simulation"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Simulator runs a decision graph against a context.
type Simulator interface {
	Simulate(ctx context.Context, request simulation.Request) (json.RawMessage, error)
}

type APIHandlers struct {
	storage   *services.Storage
	simulator Simulator
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(
	storage *services.Storage,
	simulator Simulator,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		storage:   storage,
		simulator: simulator,
		validator: validator,
		logger:    logger,
	}
}

// Register mounts every route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.Health)
	router.Get("/storage/info", h.StorageInfo)

	f := router.Group("/flows")
	f.Get("/", h.ListFlows)
	f.Post("/", h.SaveFlow)
	f.Get("/:id", h.GetFlow)
	f.Put("/:id/metadata", h.UpdateFlowMetadata)
	f.Delete("/:id", h.DeleteFlow)
	f.Post("/:id/duplicate", h.DuplicateFlow)

	r := router.Group("/rules")
	r.Get("/", h.ListRules)
	r.Post("/", h.SaveRule)
	r.Get("/by-name/:ruleName", h.GetRuleByName)
	r.Delete("/by-name/:ruleName", h.DeleteRuleByName)
	r.Put("/by-name/:ruleName/flows/:flowId/activate", h.ActivateFlowByName)
	r.Get("/:ruleId", h.GetRule)
	r.Delete("/:ruleId", h.DeleteRule)
	r.Post("/:ruleId/flows", h.CreateFlowInRule)
	r.Put("/:ruleId/flows/:flowId/activate", h.ActivateFlow)

	router.Post("/simulate", h.Simulate)
}

func (h *APIHandlers) uuidParam(c fiber.Ctx, key string) (string, bool) {
	value := c.Params(key)

	if err := h.validator.Var(value, "required,uuid"); err != nil {
		return "", false
	}

	return value, true
}

func (h *APIHandlers) nameParam(c fiber.Ctx, key string) (string, bool) {
	value, err := url.PathUnescape(c.Params(key))
	if err != nil {
		return "", false
	}

	if err := h.validator.Var(value, "required,min=1,max=100"); err != nil {
		return "", false
	}

	return value, true
}

func (h *APIHandlers) Health(c fiber.Ctx) error {
	return c.JSON(HealthResponse{Status: "ok", Timestamp: timestamp()})
}

func (h *APIHandlers) StorageInfo(c fiber.Ctx) error {
	return c.JSON(h.storage.Info())
}

func (h *APIHandlers) ListFlows(c fiber.Ctx) error {
	flows, err := h.storage.ListFlows(c.Context())
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(flows)
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return badRequest(c, "Flow ID must be a UUID")
	}

	flow, err := h.storage.LoadFlow(c.Context(), id)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) SaveFlow(c fiber.Ctx) error {
	if err := validateBody(saveFlowSchema, c.Body()); err != nil {
		return badRequest(c, err.Error())
	}

	var req SaveFlowRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	meta, err := h.storage.SaveFlow(c.Context(), req.Content, req.Metadata)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(meta)
}

func (h *APIHandlers) UpdateFlowMetadata(c fiber.Ctx) error {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return badRequest(c, "Flow ID must be a UUID")
	}

	if err := validateBody(flowMetadataSchema, c.Body()); err != nil {
		return badRequest(c, err.Error())
	}

	var req SaveFlowRequest
	if err := json.Unmarshal(c.Body(), &req.Metadata); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	meta, err := h.storage.UpdateFlowMetadata(c.Context(), id, req.Metadata)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(meta)
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return badRequest(c, "Flow ID must be a UUID")
	}

	if err := h.storage.DeleteFlow(c.Context(), id); err != nil {
		return h.handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) DuplicateFlow(c fiber.Ctx) error {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return badRequest(c, "Flow ID must be a UUID")
	}

	meta, err := h.storage.DuplicateFlow(c.Context(), id)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(meta)
}

func (h *APIHandlers) ListRules(c fiber.Ctx) error {
	rules, err := h.storage.ListRules(c.Context())
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(rules)
}

func (h *APIHandlers) GetRule(c fiber.Ctx) error {
	id, ok := h.uuidParam(c, "ruleId")
	if !ok {
		return badRequest(c, "Rule ID must be a UUID")
	}

	rule, err := h.storage.LoadRule(c.Context(), id)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) GetRuleByName(c fiber.Ctx) error {
	name, ok := h.nameParam(c, "ruleName")
	if !ok {
		return badRequest(c, "Rule name must be 1 to 100 characters")
	}

	rule, err := h.storage.LoadRuleByName(c.Context(), name)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) SaveRule(c fiber.Ctx) error {
	if err := validateBody(ruleSchema, c.Body()); err != nil {
		return badRequest(c, err.Error())
	}

	var req RuleRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	rule, err := h.storage.SaveRule(c.Context(), req.ToRule())
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) DeleteRule(c fiber.Ctx) error {
	id, ok := h.uuidParam(c, "ruleId")
	if !ok {
		return badRequest(c, "Rule ID must be a UUID")
	}

	if err := h.storage.DeleteRule(c.Context(), id); err != nil {
		return h.handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) DeleteRuleByName(c fiber.Ctx) error {
	name, ok := h.nameParam(c, "ruleName")
	if !ok {
		return badRequest(c, "Rule name must be 1 to 100 characters")
	}

	if err := h.storage.DeleteRuleByName(c.Context(), name); err != nil {
		return h.handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateFlow(c fiber.Ctx) error {
	ruleID, ok := h.uuidParam(c, "ruleId")
	if !ok {
		return badRequest(c, "Rule ID must be a UUID")
	}

	flowID, ok := h.uuidParam(c, "flowId")
	if !ok {
		return badRequest(c, "Flow ID must be a UUID")
	}

	if err := h.storage.SetActiveFlow(c.Context(), ruleID, flowID); err != nil {
		return h.handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateFlowByName(c fiber.Ctx) error {
	name, ok := h.nameParam(c, "ruleName")
	if !ok {
		return badRequest(c, "Rule name must be 1 to 100 characters")
	}

	flowID, ok := h.uuidParam(c, "flowId")
	if !ok {
		return badRequest(c, "Flow ID must be a UUID")
	}

	if err := h.storage.SetActiveFlowByName(c.Context(), name, flowID); err != nil {
		return h.handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateFlowInRule(c fiber.Ctx) error {
	ruleID, ok := h.uuidParam(c, "ruleId")
	if !ok {
		return badRequest(c, "Rule ID must be a UUID")
	}

	var req CreateFlowInRuleRequest

	if body := c.Body(); len(body) > 0 {
		if err := validateBody(createFlowInRuleSchema, body); err != nil {
			return badRequest(c, err.Error())
		}

		if err := json.Unmarshal(body, &req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	flow, rule, err := h.storage.CreateFlowInRule(c.Context(), ruleID, req.Content, req.Metadata)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(CreateFlowInRuleResponse{Flow: flow, Rule: rule})
}

func (h *APIHandlers) Simulate(c fiber.Ctx) error {
	if err := validateBody(simulateSchema, c.Body()); err != nil {
		return badRequest(c, err.Error())
	}

	var req SimulateRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.simulator.Simulate(c.Context(), simulation.Request{
		Context: req.Context,
		Content: req.Content,
	})
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(SimulateResponse{Result: result})
}
