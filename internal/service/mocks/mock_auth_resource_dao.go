package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/models"
)

// MockAuthResourceDAO is a mock implementation of the authorization store
type MockAuthResourceDAO struct {
	mock.Mock
}

func (m *MockAuthResourceDAO) Create(ctx context.Context, tx *database.Transaction, auth *models.AuthorizationResource) error {
	args := m.Called(ctx, tx, auth)
	return args.Error(0)
}

func (m *MockAuthResourceDAO) GetByID(ctx context.Context, tx *database.Transaction, authID, orgID string) (*models.AuthorizationResource, error) {
	args := m.Called(ctx, tx, authID, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuthorizationResource), args.Error(1)
}

func (m *MockAuthResourceDAO) GetByConsentID(ctx context.Context, tx *database.Transaction, consentID, orgID string) ([]models.AuthorizationResource, error) {
	args := m.Called(ctx, tx, consentID, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AuthorizationResource), args.Error(1)
}

func (m *MockAuthResourceDAO) Authorize(ctx context.Context, tx *database.Transaction, authID, consentID, orgID, userID string, updatedTime int64) error {
	args := m.Called(ctx, tx, authID, consentID, orgID, userID, updatedTime)
	return args.Error(0)
}

func (m *MockAuthResourceDAO) UpdateStatusByConsentID(ctx context.Context, tx *database.Transaction, consentID, orgID, status string, updatedTime int64) error {
	args := m.Called(ctx, tx, consentID, orgID, status, updatedTime)
	return args.Error(0)
}

func (m *MockAuthResourceDAO) CountByStatus(ctx context.Context, tx *database.Transaction, consentID, orgID, status string) (int, error) {
	args := m.Called(ctx, tx, consentID, orgID, status)
	return args.Int(0), args.Error(1)
}

func (m *MockAuthResourceDAO) UpdateStatus(ctx context.Context, tx *database.Transaction, authID, orgID, status string, updatedTime int64) error {
	args := m.Called(ctx, tx, authID, orgID, status, updatedTime)
	return args.Error(0)
}
