package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/models"
)

// MockConsentDAO is a mock implementation of the consent store
type MockConsentDAO struct {
	mock.Mock
}

func (m *MockConsentDAO) Create(ctx context.Context, tx *database.Transaction, consent *models.ConsentResource) error {
	args := m.Called(ctx, tx, consent)
	return args.Error(0)
}

func (m *MockConsentDAO) GetByID(ctx context.Context, tx *database.Transaction, consentID, orgID string) (*models.ConsentResource, error) {
	args := m.Called(ctx, tx, consentID, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConsentResource), args.Error(1)
}

func (m *MockConsentDAO) GetForUpdate(ctx context.Context, tx *database.Transaction, consentID, orgID string) (*models.ConsentResource, error) {
	args := m.Called(ctx, tx, consentID, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConsentResource), args.Error(1)
}

func (m *MockConsentDAO) UpdateStatus(ctx context.Context, tx *database.Transaction, consentID, orgID, expected, newStatus string, updatedTime int64) error {
	args := m.Called(ctx, tx, consentID, orgID, expected, newStatus, updatedTime)
	return args.Error(0)
}

func (m *MockConsentDAO) UpdateValidity(ctx context.Context, tx *database.Transaction, consentID, orgID string, validityTime int64, frequency int, updatedTime int64) error {
	args := m.Called(ctx, tx, consentID, orgID, validityTime, frequency, updatedTime)
	return args.Error(0)
}

func (m *MockConsentDAO) Search(ctx context.Context, filter models.ConsentSearchFilter) ([]models.ConsentResource, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]models.ConsentResource), args.Int(1), args.Error(2)
}

func (m *MockConsentDAO) ListExpired(ctx context.Context, orgID, status string, nowSeconds int64) ([]models.ConsentResource, error) {
	args := m.Called(ctx, orgID, status, nowSeconds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConsentResource), args.Error(1)
}
