package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/models"
)

// MockHistoryDAO is a mock implementation of the history store
type MockHistoryDAO struct {
	mock.Mock
}

func (m *MockHistoryDAO) Create(ctx context.Context, tx *database.Transaction, record *models.ConsentHistoryRecord) error {
	args := m.Called(ctx, tx, record)
	return args.Error(0)
}

func (m *MockHistoryDAO) GetByConsentID(ctx context.Context, consentID, orgID string) ([]models.ConsentHistoryRecord, error) {
	args := m.Called(ctx, consentID, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConsentHistoryRecord), args.Error(1)
}
