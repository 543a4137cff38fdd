package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/modernmen/pulse/pkg/log"
	"github.com/modernmen/pulse/pkg/orchestrator"
	"github.com/modernmen/pulse/pkg/otelhelper"
	"github.com/modernmen/pulse/pkg/web"
)

const defaultPort = 9100

func main() {
	logger := log.WithModule("pulse")

	cmd := &cli.Command{
		Name:                  "pulse",
		Usage:                 "Event-driven rule and workflow engine",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.IntFlag{
				Name:    "log-capacity",
				Usage:   "Capacity of the bounded in-memory event log",
				Value:   1000,
				Sources: cli.EnvVars("LOG_CAPACITY"),
			},
			&cli.BoolFlag{
				Name:    "defaults",
				Usage:   "Register the built-in core rules and workflow templates",
				Value:   true,
				Sources: cli.EnvVars("REGISTER_DEFAULTS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing on the emit path",
				Sources: cli.EnvVars("ENABLE_TRACING"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing pulse")

			opts := []orchestrator.Option{
				orchestrator.WithLogCapacity(command.Int("log-capacity")),
			}

			if command.Bool("tracing") {
				tracer, err := otelhelper.NewTracer(ctx, "pulse")
				if err != nil {
					return fmt.Errorf("initialize tracing: %w", err)
				}

				opts = append(opts, orchestrator.WithTracer(tracer))
			}

			o := orchestrator.New(logger, opts...)
			defer o.Stop()

			if command.Bool("defaults") {
				if err := o.RegisterDefaults(); err != nil {
					return fmt.Errorf("register defaults: %w", err)
				}
			}

			o.Start(ctx)

			app := web.NewApp(o)

			shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go func() {
				<-shutdownCtx.Done()
				logger.Info("Shutting down")

				if err := app.Shutdown(); err != nil {
					logger.Error("Failed to shut the API server down", "error", err)
				}
			}()

			addr := fmt.Sprintf(":%d", command.Int("port"))
			logger.InfoContext(ctx, "Starting API server", "addr", addr)

			return app.Listen(addr)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("pulse exited with error", "error", err)
		os.Exit(1)
	}
}
