package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/getmentor/confluence-alert-action/config"
	"github.com/getmentor/confluence-alert-action/internal/confluence"
	"github.com/getmentor/confluence-alert-action/internal/render"
	"github.com/getmentor/confluence-alert-action/internal/services"
	"github.com/getmentor/confluence-alert-action/pkg/archive"
	apperrors "github.com/getmentor/confluence-alert-action/pkg/errors"
	"github.com/getmentor/confluence-alert-action/pkg/httpclient"
	"github.com/getmentor/confluence-alert-action/pkg/logger"
	"github.com/getmentor/confluence-alert-action/pkg/metrics"
	"github.com/getmentor/confluence-alert-action/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the alert action and returns the process exit code
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	code := apperrors.ExitOK

	app := &cli.App{
		Name:      "alert-action",
		Usage:     "Publish Splunk alert results to a Confluence page",
		UsageText: "alert-action --execute < payload.json",
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "execute",
				Usage: "accepted for Splunk's alert action invocation, has no effect",
			},
			&cli.StringFlag{
				Name:  "template",
				Usage: "page template with {{TIMESTAMP}} and {{TABLE_HTML}} placeholders",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "render the page to stdout without contacting Confluence",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override LOG_LEVEL",
			},
		},
		Action: func(c *cli.Context) error {
			code = execute(c, stdin, stdout, stderr)
			return nil
		},
	}

	if err := app.RunContext(ctx, args); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return apperrors.ExitInternal
	}
	return code
}

func execute(c *cli.Context, stdin io.Reader, stdout, stderr io.Writer) int {
	input, err := io.ReadAll(stdin)
	if err != nil {
		fmt.Fprintf(stderr, "error: failed to read stdin: %v\n", err)
		return apperrors.ExitInput
	}
	if len(bytes.TrimSpace(input)) == 0 {
		err := apperrors.InvalidInputError("", "no payload received on stdin")
		fmt.Fprintf(stderr, "error: %s: %v\n", apperrors.Kind(err), err)
		return apperrors.ExitInput
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return apperrors.ExitInternal
	}
	if path := c.String("template"); path != "" {
		cfg.Render.TemplatePath = path
	}
	if level := c.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	if err := logger.Initialize(logger.Config{
		Level:       cfg.Logging.Level,
		LogDir:      cfg.Logging.Dir,
		Environment: cfg.App.Env,
	}); err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return apperrors.ExitInternal
	}
	defer logger.Sync()

	tracerShutdown, err := tracing.InitTracer(tracing.Config{
		Endpoint:         cfg.Observability.ExporterEndpoint,
		ServiceName:      cfg.Observability.ServiceName,
		ServiceNamespace: cfg.Observability.ServiceNamespace,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.App.Env,
	})
	if err != nil {
		logger.Warn("Tracing unavailable", zap.Error(err))
		tracerShutdown = func(context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tracerShutdown(ctx); shutdownErr != nil {
			logger.Error("Failed to shutdown tracer", zap.Error(shutdownErr))
		}
	}()

	svc, err := newService(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return apperrors.ExitInternal
	}

	result, runErr := svc.Run(c.Context, input, services.RunOptions{DryRun: c.Bool("dry-run")})

	groupings := map[string]string{}
	if result != nil && result.PageID != "" {
		groupings["page_id"] = result.PageID
	}
	if err := metrics.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName, groupings); err != nil {
		logger.Warn("Metrics push failed", zap.Error(err))
	}

	if runErr != nil {
		logger.LogError(runErr, "Alert action failed", zap.String("kind", apperrors.Kind(runErr)))
		fmt.Fprintf(stderr, "error: %s: %v\n", apperrors.Kind(runErr), runErr)
		return apperrors.ExitCode(runErr)
	}

	if result.DryRun {
		fmt.Fprint(stdout, result.Body)
		return apperrors.ExitOK
	}

	fmt.Fprintf(stdout, "Page updated successfully! Version %d\n", result.Version)
	return apperrors.ExitOK
}

func newService(cfg *config.Config) (services.AlertActionServiceInterface, error) {
	httpClient := httpclient.NewStandardClient(cfg.HTTPTimeout())
	updater := confluence.NewClient(httpClient, cfg.Confluence.ConflictRetries)
	renderer := render.NewRenderer(cfg.Render.TemplatePath, render.EscaperFor(cfg.Render.EscapeValues))

	var archiver services.PageArchiver
	if cfg.ArchiveEnabled() {
		storage, err := archive.NewStorageClient(
			cfg.Archive.AccessKeyID,
			cfg.Archive.SecretAccessKey,
			cfg.Archive.Bucket,
			cfg.Archive.Endpoint,
			cfg.Archive.Region,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize page archive: %w", err)
		}
		archiver = storage
	}

	return services.NewAlertActionService(renderer, updater, archiver, clock.New()), nil
}
