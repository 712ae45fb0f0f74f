package services_test

import (
	"context"

	"github.com/getmentor/confluence-alert-action/internal/confluence"
	"github.com/stretchr/testify/mock"
)

// MockPageUpdater is a mock implementation of PageUpdater
type MockPageUpdater struct {
	mock.Mock
}

func (m *MockPageUpdater) UpdatePage(ctx context.Context, update confluence.PageUpdate) (int, error) {
	args := m.Called(ctx, update)
	return args.Int(0), args.Error(1)
}

// MockPageArchiver is a mock implementation of PageArchiver
type MockPageArchiver struct {
	mock.Mock
}

func (m *MockPageArchiver) ArchivePage(ctx context.Context, pageID string, version int, body string) (string, error) {
	args := m.Called(ctx, pageID, version, body)
	return args.String(0), args.Error(1)
}
