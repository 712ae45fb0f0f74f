package services

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/getmentor/confluence-alert-action/internal/confluence"
	"github.com/getmentor/confluence-alert-action/internal/models"
	"github.com/getmentor/confluence-alert-action/internal/render"
	apperrors "github.com/getmentor/confluence-alert-action/pkg/errors"
	"github.com/getmentor/confluence-alert-action/pkg/logger"
	"github.com/getmentor/confluence-alert-action/pkg/metrics"
	"github.com/getmentor/confluence-alert-action/pkg/tracing"
)

// RunOptions controls a single alert action run
type RunOptions struct {
	// DryRun renders the page without contacting Confluence
	DryRun bool
}

// RunResult describes what a run produced
type RunResult struct {
	PageID     string
	Version    int
	Rows       int
	Timestamp  string
	Body       string
	ArchiveKey string
	DryRun     bool
}

// AlertActionService turns an alert payload into a Confluence page update
type AlertActionService struct {
	renderer render.PageRenderer
	updater  PageUpdater
	archiver PageArchiver
	clock    clock.Clock
}

var _ AlertActionServiceInterface = (*AlertActionService)(nil)

// NewAlertActionService creates the service. archiver may be nil.
func NewAlertActionService(renderer render.PageRenderer, updater PageUpdater, archiver PageArchiver, clk clock.Clock) *AlertActionService {
	if clk == nil {
		clk = clock.New()
	}
	return &AlertActionService{
		renderer: renderer,
		updater:  updater,
		archiver: archiver,
		clock:    clk,
	}
}

// Run parses the payload, renders the results and replaces the page body.
// Every failure aborts the run; a missing template is not a failure.
func (s *AlertActionService) Run(ctx context.Context, input []byte, opts RunOptions) (result *RunResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "alert_action.run", attribute.Bool("alert_action.dry_run", opts.DryRun))
	defer func() {
		tracing.EndSpan(span, err)
		metrics.AlertActionRuns.WithLabelValues(outcome(err, opts.DryRun)).Inc()
	}()

	payload, err := models.ParseAlertPayload(input)
	if err != nil {
		return nil, err
	}

	log := logger.With(
		zap.String("sid", payload.SID),
		zap.String("search_name", payload.SearchName),
		zap.String("page_id", payload.Configuration.PageID),
	)

	if !opts.DryRun {
		if err := payload.Configuration.Validate(); err != nil {
			return nil, err
		}
	}

	table := render.NormalizeRows(payload.Rows)
	metrics.AlertResultRows.Set(float64(len(table.Rows)))

	timestamp := s.clock.Now().Local().Format(render.TimestampLayout)
	body, err := s.renderer.RenderPage(timestamp, s.renderer.RenderTable(table))
	if err != nil {
		return nil, err
	}

	result = &RunResult{
		PageID:    payload.Configuration.PageID,
		Rows:      len(table.Rows),
		Timestamp: timestamp,
		Body:      body,
		DryRun:    opts.DryRun,
	}

	if opts.DryRun {
		log.Info("Dry run: page rendered, Confluence not contacted", zap.Int("rows", result.Rows))
		return result, nil
	}

	cfg := payload.Configuration
	version, err := s.updater.UpdatePage(ctx, confluence.PageUpdate{
		BaseURL:   cfg.BaseURL,
		PageID:    cfg.PageID,
		SpaceKey:  cfg.SpaceKey,
		PageTitle: cfg.PageTitle,
		User:      cfg.AuthUser,
		Token:     cfg.AuthToken,
		Body:      body,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish alert results: %w", err)
	}
	result.Version = version

	metrics.PublishedPageVersion.Set(float64(version))
	metrics.LastSuccessTimestamp.Set(float64(s.clock.Now().Unix()))

	if s.archiver != nil {
		key, archiveErr := s.archiver.ArchivePage(ctx, cfg.PageID, version, body)
		if archiveErr != nil {
			log.Warn("Page published but archiving failed", zap.Error(archiveErr))
		} else {
			result.ArchiveKey = key
		}
	}

	log.Info("Alert results published",
		zap.Int("rows", result.Rows),
		zap.Int("version", version))

	return result, nil
}

func outcome(err error, dryRun bool) string {
	switch {
	case err == nil && dryRun:
		return "dry_run"
	case err == nil:
		return "success"
	case apperrors.Is(err, apperrors.ErrInvalidInput):
		return "input_error"
	case apperrors.Is(err, apperrors.ErrConflict):
		return "conflict"
	case apperrors.Is(err, apperrors.ErrRequest):
		return "request_error"
	case apperrors.Is(err, apperrors.ErrTemplateRead):
		return "template_error"
	default:
		return "error"
	}
}
