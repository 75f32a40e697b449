package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/models"
)

// MockMappingDAO is a mock implementation of the account mapping store
type MockMappingDAO struct {
	mock.Mock
}

func (m *MockMappingDAO) Create(ctx context.Context, tx *database.Transaction, mapping *models.ConsentMappingResource) error {
	args := m.Called(ctx, tx, mapping)
	return args.Error(0)
}

func (m *MockMappingDAO) GetByAuthorizationIDs(ctx context.Context, tx *database.Transaction, authIDs []string, orgID string) ([]models.ConsentMappingResource, error) {
	args := m.Called(ctx, tx, authIDs, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConsentMappingResource), args.Error(1)
}

func (m *MockMappingDAO) UpdateStatus(ctx context.Context, tx *database.Transaction, authIDs []string, orgID, status string) error {
	args := m.Called(ctx, tx, authIDs, orgID, status)
	return args.Error(0)
}

func (m *MockMappingDAO) UpdateStatusByIDs(ctx context.Context, tx *database.Transaction, mappingIDs []string, orgID, status string) error {
	args := m.Called(ctx, tx, mappingIDs, orgID, status)
	return args.Error(0)
}
