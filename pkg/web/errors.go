package web

import (
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/decision-editor/pkg/services"
	"github.com/dukex/decision-editor/pkg/simulation"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// ErrorBody is the single error shape every failing route answers with.
type ErrorBody struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Timestamp  string `json:"timestamp"`
	Type       string `json:"type,omitempty"`
	Instance   string `json:"instance,omitempty"`
}

// ErrorResponse wraps ErrorBody under "error".
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func timestamp() string {
	return time.Now().UTC().Format(timestampLayout)
}

func sendProblem(c fiber.Ctx, problem *problems.Problem) error {
	message := problem.Detail
	if message == "" {
		message = problem.Title
	}

	return c.Status(problem.Status).JSON(ErrorResponse{Error: ErrorBody{
		Message:    message,
		StatusCode: problem.Status,
		Timestamp:  timestamp(),
		Type:       problem.Type,
		Instance:   problem.Instance,
	}})
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return sendProblem(c, problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return sendProblem(c, problem)
}

func internalError(c fiber.Ctx, logger *slog.Logger, err error) error {
	logger.ErrorContext(c.Context(), "Request failed", "method", c.Method(), "path", c.Path(), "error", err)

	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithDetail("Internal Server Error")

	return sendProblem(c, problem)
}

func upstreamError(c fiber.Ctx, logger *slog.Logger, err *simulation.UpstreamError) error {
	logger.ErrorContext(c.Context(), "Simulation failed", "status", err.StatusCode, "error", err)

	problem := problems.NewStatusProblem(err.Status()).
		WithInstance(c.Path()).
		WithType("simulation_error").
		WithDetail(err.Error())

	return sendProblem(c, problem)
}

// handleServiceError provides typed error handling for service layer errors.
func (h *APIHandlers) handleServiceError(c fiber.Ctx, err error) error {
	var upstream *simulation.UpstreamError

	switch {
	case services.IsValidationError(err):
		var serviceErr *services.ServiceError
		if errors.As(err, &serviceErr) && serviceErr.Message != "" {
			return badRequest(c, serviceErr.Message)
		}

		return badRequest(c, err.Error())

	case errors.Is(err, services.ErrFlowNotInRule):
		return notFound(c, services.ErrFlowNotInRule.Error())

	case errors.Is(err, services.ErrRuleNotFound):
		return notFound(c, services.ErrRuleNotFound.Error())

	case errors.Is(err, services.ErrFlowNotFound):
		return notFound(c, services.ErrFlowNotFound.Error())

	case services.IsNotFound(err):
		return notFound(c, "not found")

	case errors.As(err, &upstream):
		return upstreamError(c, h.logger, upstream)

	default:
		// storage failures are logged in full and answered generically
		return internalError(c, h.logger, err)
	}
}

// ErrorHandler renders errors that escape the handlers, such as unknown routes, in the
// same envelope.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			problem := problems.NewStatusProblem(fiberErr.Code).
				WithInstance(c.Path()).
				WithDetail(fiberErr.Message)

			return sendProblem(c, problem)
		}

		return internalError(c, logger, err)
	}
}
