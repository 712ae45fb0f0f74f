package confluence

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/getmentor/confluence-alert-action/pkg/errors"
	"github.com/getmentor/confluence-alert-action/pkg/httpclient"
	"github.com/getmentor/confluence-alert-action/pkg/logger"
	"github.com/getmentor/confluence-alert-action/pkg/metrics"
	"github.com/getmentor/confluence-alert-action/pkg/retry"
	"github.com/getmentor/confluence-alert-action/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	contentPath           = "/rest/api/content/"
	storageRepresentation = "storage"
	pageType              = "page"
)

// PageUpdate names the page to overwrite and its new storage-format body
type PageUpdate struct {
	BaseURL   string
	PageID    string
	SpaceKey  string
	PageTitle string
	User      string
	Token     string
	Body      string
}

// Space identifies a Confluence space
type Space struct {
	Key string `json:"key"`
}

// Storage is a page body in the given representation
type Storage struct {
	Value          string `json:"value"`
	Representation string `json:"representation"`
}

// BodyWrapper wraps the storage body
type BodyWrapper struct {
	Storage Storage `json:"storage"`
}

// Version carries the optimistic-concurrency version number
type Version struct {
	Number int `json:"number"`
}

// UpdatePageRequest is the body of PUT /rest/api/content/{id}
type UpdatePageRequest struct {
	ID      string      `json:"id"`
	Type    string      `json:"type"`
	Title   string      `json:"title"`
	Space   Space       `json:"space"`
	Body    BodyWrapper `json:"body"`
	Version Version     `json:"version"`
}

type contentResponse struct {
	Version struct {
		Number *int `json:"number"`
	} `json:"version"`
}

// Client updates Confluence pages through the content REST API
type Client struct {
	http            *httpclient.JSONClient
	conflictRetries int
}

// NewClient creates a page client. With conflictRetries zero a rejected
// version fails the update immediately.
func NewClient(httpClient httpclient.Client, conflictRetries int) *Client {
	return &Client{
		http:            httpclient.NewJSONClient(httpClient, "confluence"),
		conflictRetries: conflictRetries,
	}
}

// NewUpdatePageRequest builds the replacement body for a page at version
func NewUpdatePageRequest(update PageUpdate, version int) UpdatePageRequest {
	return UpdatePageRequest{
		ID:    update.PageID,
		Type:  pageType,
		Title: update.PageTitle,
		Space: Space{Key: update.SpaceKey},
		Body: BodyWrapper{
			Storage: Storage{
				Value:          update.Body,
				Representation: storageRepresentation,
			},
		},
		Version: Version{Number: version},
	}
}

// GetVersion reads the current version number of a page
func (c *Client) GetVersion(ctx context.Context, update PageUpdate) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "confluence.get_version", attribute.String("confluence.page_id", update.PageID))
	start := time.Now()

	var content contentResponse
	err := c.http.RequestInto(ctx, http.MethodGet, versionURL(update), nil, credentials(update), &content)
	if err == nil && content.Version.Number == nil {
		err = fmt.Errorf("malformed version response for page %s: %w", update.PageID, apperrors.ErrRequest)
	}

	observe("getVersion", start, err)
	tracing.EndSpan(span, err)
	if err != nil {
		return 0, fmt.Errorf("failed to read version of page %s: %w", update.PageID, err)
	}

	return *content.Version.Number, nil
}

// PutPage writes the page body as the given version
func (c *Client) PutPage(ctx context.Context, update PageUpdate, version int) error {
	ctx, span := tracing.StartSpan(ctx, "confluence.put_page",
		attribute.String("confluence.page_id", update.PageID),
		attribute.Int("confluence.version", version))
	start := time.Now()

	err := c.http.RequestInto(ctx, http.MethodPut, pageURL(update), NewUpdatePageRequest(update, version), credentials(update), nil)

	observe("putPage", start, err)
	tracing.EndSpan(span, err)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrConflict) {
			metrics.ConfluenceVersionConflicts.Inc()
		}
		return fmt.Errorf("failed to update page %s to version %d: %w", update.PageID, version, err)
	}
	return nil
}

// UpdatePage replaces the page body: it reads the current version and writes
// version+1. No lock is held between the two calls; a concurrent writer makes
// the server reject the write with a conflict.
func (c *Client) UpdatePage(ctx context.Context, update PageUpdate) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "confluence.update_page", attribute.String("confluence.page_id", update.PageID))

	var rejected int
	config := retry.ConflictConfig(c.conflictRetries, func(err error) bool {
		return apperrors.Is(err, apperrors.ErrConflict)
	})
	config.OnRetry = func(attempt int, _ error) {
		logger.Warn("Page version rejected, re-reading current version",
			zap.String("page_id", update.PageID),
			zap.Int("rejected_version", rejected),
			zap.Int("attempt", attempt))
	}

	newVersion, err := retry.DoWithResult(ctx, config, "updatePage", func(int) (int, error) {
		current, err := c.GetVersion(ctx, update)
		if err != nil {
			return 0, err
		}

		rejected = current + 1
		if err := c.PutPage(ctx, update, rejected); err != nil {
			return 0, err
		}
		return rejected, nil
	})

	var exhausted *retry.ExhaustedError
	if apperrors.As(err, &exhausted) {
		err = fmt.Errorf("page %s changed concurrently on each of %d writes, last rejected version %d: %w",
			update.PageID, exhausted.Attempts, rejected, exhausted.Err)
	}

	tracing.EndSpan(span, err)
	if err != nil {
		return 0, err
	}

	logger.Info("Confluence page updated",
		zap.String("page_id", update.PageID),
		zap.String("space_key", update.SpaceKey),
		zap.Int("version", newVersion))

	return newVersion, nil
}

func credentials(update PageUpdate) httpclient.RequestOptions {
	return httpclient.RequestOptions{
		User:  update.User,
		Token: update.Token,
		Headers: map[string]string{
			"Accept": "application/json",
		},
	}
}

func pageURL(update PageUpdate) string {
	return update.BaseURL + contentPath + url.PathEscape(update.PageID)
}

func versionURL(update PageUpdate) string {
	return pageURL(update) + "?expand=version"
}

func observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := metrics.MeasureDuration(start)
	metrics.ConfluenceOperationDuration.WithLabelValues(operation, status).Observe(duration)
	metrics.ConfluenceOperationTotal.WithLabelValues(operation, status).Inc()
}
