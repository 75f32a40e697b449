package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/models"
)

// MockAttributeDAO is a mock implementation of the consent attribute store
type MockAttributeDAO struct {
	mock.Mock
}

func (m *MockAttributeDAO) Create(ctx context.Context, tx *database.Transaction, consentID, orgID string, attributes map[string]string) error {
	args := m.Called(ctx, tx, consentID, orgID, attributes)
	return args.Error(0)
}

func (m *MockAttributeDAO) Put(ctx context.Context, tx *database.Transaction, consentID, orgID string, attributes map[string]string) error {
	args := m.Called(ctx, tx, consentID, orgID, attributes)
	return args.Error(0)
}

func (m *MockAttributeDAO) GetByConsentID(ctx context.Context, tx *database.Transaction, consentID, orgID string) (map[string]string, error) {
	args := m.Called(ctx, tx, consentID, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

// MockFileDAO is a mock implementation of the consent file store
type MockFileDAO struct {
	mock.Mock
}

func (m *MockFileDAO) Create(ctx context.Context, tx *database.Transaction, file *models.ConsentFile) error {
	args := m.Called(ctx, tx, file)
	return args.Error(0)
}

func (m *MockFileDAO) Get(ctx context.Context, consentID, orgID string) (*models.ConsentFile, error) {
	args := m.Called(ctx, consentID, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConsentFile), args.Error(1)
}
