package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/models"
)

// MockStatusAuditDAO is a mock implementation of the status audit store
type MockStatusAuditDAO struct {
	mock.Mock
}

func (m *MockStatusAuditDAO) Create(ctx context.Context, tx *database.Transaction, audit *models.ConsentStatusAuditRecord) error {
	args := m.Called(ctx, tx, audit)
	return args.Error(0)
}

func (m *MockStatusAuditDAO) GetLatestActionTime(ctx context.Context, tx *database.Transaction, consentID, orgID string) (int64, error) {
	args := m.Called(ctx, tx, consentID, orgID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStatusAuditDAO) GetByConsentID(ctx context.Context, consentID, orgID string, filter models.HistoryFilter) ([]models.ConsentStatusAuditRecord, error) {
	args := m.Called(ctx, consentID, orgID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConsentStatusAuditRecord), args.Error(1)
}
