package handlers

import (
	"context"

	"github.com/wso2/ob-consent-engine/internal/models"
	"github.com/wso2/ob-consent-engine/internal/service"
	"github.com/wso2/ob-consent-engine/internal/serviceerror"
	"github.com/wso2/ob-consent-engine/internal/session"
)

// ConsentAPI is the consent service as seen by the HTTP layer
type ConsentAPI interface {
	Create(ctx context.Context, req service.CreateConsentRequest) (*models.DetailedConsentResource, *serviceerror.ServiceError)
	GetConsent(ctx context.Context, orgID, consentID string, detailed, withAttributes bool) (*models.DetailedConsentResource, *serviceerror.ServiceError)
	SearchConsents(ctx context.Context, filter models.ConsentSearchFilter) (*models.ConsentSearchResponse, *serviceerror.ServiceError)
	GetHistory(ctx context.Context, orgID, consentID string, filter models.HistoryFilter) ([]models.ConsentHistoryEntry, *serviceerror.ServiceError)
	UpdateStatus(ctx context.Context, orgID, consentID, status, reason, actionBy string) *serviceerror.ServiceError
	UpdateStatusBulk(ctx context.Context, orgID string, updates []models.StatusUpdateRequest) []models.BulkStatusResult
	Revoke(ctx context.Context, orgID, consentID, reason, actionBy string, revokeTokens bool) (*models.RevokeResult, *serviceerror.ServiceError)
	RevokeExisting(ctx context.Context, req service.RevokeExistingRequest) ([]string, *serviceerror.ServiceError)
	Amend(ctx context.Context, req service.AmendConsentRequest) (*models.DetailedConsentResource, *serviceerror.ServiceError)
	Authorize(ctx context.Context, orgID, consentID, authorizationID, userID string, mappings []models.MappingRequest) (*models.DetailedConsentResource, *serviceerror.ServiceError)
	ReAuthorize(ctx context.Context, req service.ReAuthorizeRequest) (*models.DetailedConsentResource, *serviceerror.ServiceError)
	GetAuthorization(ctx context.Context, orgID, consentID, authorizationID string) (*models.AuthorizationResource, *serviceerror.ServiceError)
	ValidateSubmission(ctx context.Context, req service.SubmissionRequest) (*models.SubmissionValidateResponse, *serviceerror.ServiceError)
	UploadFile(ctx context.Context, req service.UploadFileRequest) (*models.ConsentFileResponse, *serviceerror.ServiceError)
	GetFile(ctx context.Context, orgID, consentID string) (*models.ConsentFile, *serviceerror.ServiceError)
}

// SessionBridge keeps consent data across the steps of an authorization flow
type SessionBridge interface {
	Store(ctx context.Context, key string, data *session.ConsentData) error
	Retrieve(ctx context.Context, orgID, key string) (*session.ConsentData, error)
}
