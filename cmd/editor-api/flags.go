package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/decision-editor/pkg/cmd"
	"github.com/dukex/decision-editor/pkg/config"
	"github.com/dukex/decision-editor/pkg/log"
	"github.com/dukex/decision-editor/pkg/otelhelper"
	"github.com/dukex/decision-editor/pkg/persistence"
	"github.com/dukex/decision-editor/pkg/services"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "editor-api"

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML config file",
			Sources: cli.EnvVars("EDITOR_CONFIG"),
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   config.DefaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:    "host",
			Usage:   "Interface to bind",
			Sources: cli.EnvVars("HOST"),
		},
		&cli.StringFlag{
			Name:    "base-path",
			Usage:   "Path prefix of every API route",
			Value:   config.DefaultBasePath,
			Sources: cli.EnvVars("BASE_PATH"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:    "cloud-storage",
			Usage:   "Store flows and rules in object storage instead of the local store",
			Sources: cli.EnvVars("USE_CLOUD_STORAGE"),
		},
		&cli.StringFlag{
			Name:    "bucket-url",
			Usage:   "Object storage bucket (s3://<bucket> or file://<dir>)",
			Sources: cli.EnvVars("STORAGE_BUCKET_URL"),
		},
		&cli.StringFlag{
			Name:    "project-id",
			Usage:   "Project the stored objects belong to",
			Sources: cli.EnvVars("STORAGE_PROJECT_ID"),
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "Object storage region",
			Sources: cli.EnvVars("STORAGE_REGION"),
		},
		&cli.StringFlag{
			Name:    "endpoint",
			Usage:   "S3-compatible endpoint URL",
			Sources: cli.EnvVars("STORAGE_ENDPOINT"),
		},
		&cli.StringFlag{
			Name:    "access-key-id",
			Usage:   "Object storage access key",
			Sources: cli.EnvVars("STORAGE_ACCESS_KEY_ID"),
		},
		&cli.StringFlag{
			Name:    "secret-access-key",
			Usage:   "Object storage secret key",
			Sources: cli.EnvVars("STORAGE_SECRET_ACCESS_KEY"),
		},
		&cli.StringFlag{
			Name:    "local-storage-url",
			Usage:   "Local store (memory:// or redis://...)",
			Value:   config.DefaultLocalURL,
			Sources: cli.EnvVars("LOCAL_STORAGE_URL"),
		},
		&cli.StringFlag{
			Name:    "engine-url",
			Usage:   "Base URL of the evaluation engine",
			Value:   config.DefaultEngineURL,
			Sources: cli.EnvVars("EVALUATION_ENGINE_URL"),
		},
		&cli.DurationFlag{
			Name:    "simulation-timeout",
			Usage:   "Deadline of a forwarded simulation",
			Value:   config.DefaultEngineTimeout,
			Sources: cli.EnvVars("SIMULATION_TIMEOUT"),
		},
		&cli.StringSliceFlag{
			Name:    "cors-origins",
			Usage:   "Origins allowed to call the API",
			Sources: cli.EnvVars("CORS_ORIGINS"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OTLP traces of storage operations",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
	}
}

// loadConfig layers the config file, then every flag or env var that was set, over the defaults.
func loadConfig(command *cli.Command) (config.Config, error) {
	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	if command.IsSet("port") {
		cfg.Port = command.Int("port")
	}

	if command.IsSet("host") {
		cfg.Host = command.String("host")
	}

	if command.IsSet("base-path") {
		cfg.BasePath = command.String("base-path")
	}

	if command.IsSet("log-level") {
		cfg.LogLevel = command.String("log-level")
	}

	if command.IsSet("cloud-storage") {
		cfg.CloudStorage = command.Bool("cloud-storage")
	}

	setString := func(name string, target *string) {
		if command.IsSet(name) {
			*target = command.String(name)
		}
	}

	setString("bucket-url", &cfg.Object.BucketURL)
	setString("project-id", &cfg.Object.ProjectID)
	setString("region", &cfg.Object.Region)
	setString("endpoint", &cfg.Object.Endpoint)
	setString("access-key-id", &cfg.Object.AccessKeyID)
	setString("secret-access-key", &cfg.Object.SecretAccessKey)
	setString("local-storage-url", &cfg.Local.URL)
	setString("engine-url", &cfg.Simulation.BaseURL)

	if command.IsSet("simulation-timeout") {
		cfg.Simulation.Timeout = command.Duration("simulation-timeout")
	}

	if command.IsSet("cors-origins") {
		cfg.CORSOrigins = command.StringSlice("cors-origins")
	}

	if command.IsSet("tracing") {
		cfg.Tracing = command.Bool("tracing")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// environment is what every subcommand needs: the validated config, a logger and the storage
// service over the configured backend. close releases the backend and the tracer.
type environment struct {
	config  config.Config
	logger  *slog.Logger
	storage *services.Storage
	close   func()
}

func setup(ctx context.Context, command *cli.Command, module string) (*environment, error) {
	cfg, err := loadConfig(command)
	if err != nil {
		return nil, err
	}

	log.Setup(cfg.LogLevel)

	logger := log.WithModule(module)

	var opts []services.Option

	shutdownTracer := otelhelper.ShutdownFunc(func(context.Context) error { return nil })

	if cfg.Tracing {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		opts = append(opts, services.WithTracer(tracer))
		shutdownTracer = shutdown
	}

	backend, err := cmd.NewPersistence(ctx, logger, cfg)
	if err != nil {
		_ = shutdownTracer(ctx)

		return nil, fmt.Errorf("failed to initialize persistence: %w", err)
	}

	return &environment{
		config:  cfg,
		logger:  logger,
		storage: services.NewStorage(backend, logger, opts...),
		close:   closer(ctx, logger, backend, shutdownTracer),
	}, nil
}

func closer(ctx context.Context, logger *slog.Logger, backend persistence.Backend, shutdownTracer otelhelper.ShutdownFunc) func() {
	return func() {
		if err := backend.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}

		if err := shutdownTracer(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}
}
