package main

import (
	"context"
	"log/slog"

	"github.com/dukex/decision-editor/pkg/config"
	"github.com/dukex/decision-editor/pkg/services"
	"github.com/dukex/decision-editor/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger    *slog.Logger
	config    config.Config
	storage   *services.Storage
	simulator web.Simulator
	validate  *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	cfg config.Config,
	storage *services.Storage,
	simulator web.Simulator,
) *API {
	return &API{
		logger:    logger,
		config:    cfg,
		storage:   storage,
		simulator: simulator,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.storage, a.simulator, a.validate, a.logger)

	app := fiber.New(fiber.Config{
		AppName:      serviceName,
		ErrorHandler: web.ErrorHandler(a.logger),
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins: a.config.CORSOrigins,
	}))
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			if err := a.storage.HealthCheck(c.Context()); err != nil {
				a.logger.WarnContext(c.Context(), "Readiness probe failed", "error", err)

				return false
			}

			return true
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Decision Editor API")
	})

	handlers.Register(app.Group(a.config.BasePath))

	return app
}

// Start serves until ctx is cancelled, then shuts the server down.
func (a *API) Start(ctx context.Context) error {
	app := a.App()

	errs := make(chan error, 1)

	go func() {
		errs <- app.Listen(a.config.Addr(), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	a.logger.InfoContext(ctx, "API listening", "addr", a.config.Addr(), "base_path", a.config.BasePath)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		a.logger.InfoContext(ctx, "Shutting down API")

		return app.Shutdown()
	}
}
