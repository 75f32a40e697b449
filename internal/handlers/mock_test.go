package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/wso2/ob-consent-engine/internal/models"
	"github.com/wso2/ob-consent-engine/internal/service"
	"github.com/wso2/ob-consent-engine/internal/serviceerror"
	"github.com/wso2/ob-consent-engine/internal/session"
)

type mockConsentAPI struct {
	mock.Mock
}

func svcErrAt(args mock.Arguments, i int) *serviceerror.ServiceError {
	if args.Get(i) == nil {
		return nil
	}
	return args.Get(i).(*serviceerror.ServiceError)
}

func detailedAt(args mock.Arguments, i int) *models.DetailedConsentResource {
	if args.Get(i) == nil {
		return nil
	}
	return args.Get(i).(*models.DetailedConsentResource)
}

func (m *mockConsentAPI) Create(ctx context.Context, req service.CreateConsentRequest) (*models.DetailedConsentResource, *serviceerror.ServiceError) {
	args := m.Called(ctx, req)
	return detailedAt(args, 0), svcErrAt(args, 1)
}

func (m *mockConsentAPI) GetConsent(ctx context.Context, orgID, consentID string, detailed, withAttributes bool) (*models.DetailedConsentResource, *serviceerror.ServiceError) {
	args := m.Called(ctx, orgID, consentID, detailed, withAttributes)
	return detailedAt(args, 0), svcErrAt(args, 1)
}

func (m *mockConsentAPI) SearchConsents(ctx context.Context, filter models.ConsentSearchFilter) (*models.ConsentSearchResponse, *serviceerror.ServiceError) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, svcErrAt(args, 1)
	}
	return args.Get(0).(*models.ConsentSearchResponse), svcErrAt(args, 1)
}

func (m *mockConsentAPI) GetHistory(ctx context.Context, orgID, consentID string, filter models.HistoryFilter) ([]models.ConsentHistoryEntry, *serviceerror.ServiceError) {
	args := m.Called(ctx, orgID, consentID, filter)
	if args.Get(0) == nil {
		return nil, svcErrAt(args, 1)
	}
	return args.Get(0).([]models.ConsentHistoryEntry), svcErrAt(args, 1)
}

func (m *mockConsentAPI) UpdateStatus(ctx context.Context, orgID, consentID, status, reason, actionBy string) *serviceerror.ServiceError {
	args := m.Called(ctx, orgID, consentID, status, reason, actionBy)
	return svcErrAt(args, 0)
}

func (m *mockConsentAPI) UpdateStatusBulk(ctx context.Context, orgID string, updates []models.StatusUpdateRequest) []models.BulkStatusResult {
	args := m.Called(ctx, orgID, updates)
	return args.Get(0).([]models.BulkStatusResult)
}

func (m *mockConsentAPI) Revoke(ctx context.Context, orgID, consentID, reason, actionBy string, revokeTokens bool) (*models.RevokeResult, *serviceerror.ServiceError) {
	args := m.Called(ctx, orgID, consentID, reason, actionBy, revokeTokens)
	if args.Get(0) == nil {
		return nil, svcErrAt(args, 1)
	}
	return args.Get(0).(*models.RevokeResult), svcErrAt(args, 1)
}

func (m *mockConsentAPI) RevokeExisting(ctx context.Context, req service.RevokeExistingRequest) ([]string, *serviceerror.ServiceError) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, svcErrAt(args, 1)
	}
	return args.Get(0).([]string), svcErrAt(args, 1)
}

func (m *mockConsentAPI) Amend(ctx context.Context, req service.AmendConsentRequest) (*models.DetailedConsentResource, *serviceerror.ServiceError) {
	args := m.Called(ctx, req)
	return detailedAt(args, 0), svcErrAt(args, 1)
}

func (m *mockConsentAPI) ReAuthorize(ctx context.Context, req service.ReAuthorizeRequest) (*models.DetailedConsentResource, *serviceerror.ServiceError) {
	args := m.Called(ctx, req)
	return detailedAt(args, 0), svcErrAt(args, 1)
}

func (m *mockConsentAPI) Authorize(ctx context.Context, orgID, consentID, authorizationID, userID string, mappings []models.MappingRequest) (*models.DetailedConsentResource, *serviceerror.ServiceError) {
	args := m.Called(ctx, orgID, consentID, authorizationID, userID, mappings)
	return detailedAt(args, 0), svcErrAt(args, 1)
}

func (m *mockConsentAPI) GetAuthorization(ctx context.Context, orgID, consentID, authorizationID string) (*models.AuthorizationResource, *serviceerror.ServiceError) {
	args := m.Called(ctx, orgID, consentID, authorizationID)
	if args.Get(0) == nil {
		return nil, svcErrAt(args, 1)
	}
	return args.Get(0).(*models.AuthorizationResource), svcErrAt(args, 1)
}

func (m *mockConsentAPI) ValidateSubmission(ctx context.Context, req service.SubmissionRequest) (*models.SubmissionValidateResponse, *serviceerror.ServiceError) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, svcErrAt(args, 1)
	}
	return args.Get(0).(*models.SubmissionValidateResponse), svcErrAt(args, 1)
}

func (m *mockConsentAPI) UploadFile(ctx context.Context, req service.UploadFileRequest) (*models.ConsentFileResponse, *serviceerror.ServiceError) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, svcErrAt(args, 1)
	}
	return args.Get(0).(*models.ConsentFileResponse), svcErrAt(args, 1)
}

func (m *mockConsentAPI) GetFile(ctx context.Context, orgID, consentID string) (*models.ConsentFile, *serviceerror.ServiceError) {
	args := m.Called(ctx, orgID, consentID)
	if args.Get(0) == nil {
		return nil, svcErrAt(args, 1)
	}
	return args.Get(0).(*models.ConsentFile), svcErrAt(args, 1)
}

type mockBridge struct {
	mock.Mock
}

func (m *mockBridge) Store(ctx context.Context, key string, data *session.ConsentData) error {
	args := m.Called(ctx, key, data)
	return args.Error(0)
}

func (m *mockBridge) Retrieve(ctx context.Context, orgID, key string) (*session.ConsentData, error) {
	args := m.Called(ctx, orgID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.ConsentData), args.Error(1)
}
