package services

import (
	"context"

	"github.com/getmentor/confluence-alert-action/internal/confluence"
)

// PageUpdater overwrites a Confluence page and returns the version it wrote
type PageUpdater interface {
	UpdatePage(ctx context.Context, update confluence.PageUpdate) (int, error)
}

// PageArchiver keeps a copy of each published page body
type PageArchiver interface {
	ArchivePage(ctx context.Context, pageID string, version int, body string) (string, error)
}

// AlertActionServiceInterface defines the interface for alert action runs
type AlertActionServiceInterface interface {
	Run(ctx context.Context, input []byte, opts RunOptions) (*RunResult, error)
}
