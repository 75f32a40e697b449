package service

import (
	"context"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/idempotency"
	"github.com/wso2/ob-consent-engine/internal/models"
)

// ConsentStore persists FS_CONSENT rows
type ConsentStore interface {
	Create(ctx context.Context, tx *database.Transaction, consent *models.ConsentResource) error
	GetByID(ctx context.Context, tx *database.Transaction, consentID, orgID string) (*models.ConsentResource, error)
	GetForUpdate(ctx context.Context, tx *database.Transaction, consentID, orgID string) (*models.ConsentResource, error)
	UpdateStatus(ctx context.Context, tx *database.Transaction, consentID, orgID, expected, newStatus string, updatedTime int64) error
	UpdateValidity(ctx context.Context, tx *database.Transaction, consentID, orgID string, validityTime int64, frequency int, updatedTime int64) error
	Search(ctx context.Context, filter models.ConsentSearchFilter) ([]models.ConsentResource, int, error)
	ListExpired(ctx context.Context, orgID, status string, nowSeconds int64) ([]models.ConsentResource, error)
}

// AuthResourceStore persists FS_CONSENT_AUTH_RESOURCE rows
type AuthResourceStore interface {
	Create(ctx context.Context, tx *database.Transaction, auth *models.AuthorizationResource) error
	GetByID(ctx context.Context, tx *database.Transaction, authID, orgID string) (*models.AuthorizationResource, error)
	GetByConsentID(ctx context.Context, tx *database.Transaction, consentID, orgID string) ([]models.AuthorizationResource, error)
	Authorize(ctx context.Context, tx *database.Transaction, authID, consentID, orgID, userID string, updatedTime int64) error
	UpdateStatus(ctx context.Context, tx *database.Transaction, authID, orgID, status string, updatedTime int64) error
	UpdateStatusByConsentID(ctx context.Context, tx *database.Transaction, consentID, orgID, status string, updatedTime int64) error
	CountByStatus(ctx context.Context, tx *database.Transaction, consentID, orgID, status string) (int, error)
}

// MappingStore persists FS_CONSENT_MAPPING rows
type MappingStore interface {
	Create(ctx context.Context, tx *database.Transaction, mapping *models.ConsentMappingResource) error
	GetByAuthorizationIDs(ctx context.Context, tx *database.Transaction, authIDs []string, orgID string) ([]models.ConsentMappingResource, error)
	UpdateStatus(ctx context.Context, tx *database.Transaction, authIDs []string, orgID, status string) error
	UpdateStatusByIDs(ctx context.Context, tx *database.Transaction, mappingIDs []string, orgID, status string) error
}

// StatusAuditStore appends and reads FS_CONSENT_STATUS_AUDIT rows
type StatusAuditStore interface {
	Create(ctx context.Context, tx *database.Transaction, audit *models.ConsentStatusAuditRecord) error
	GetLatestActionTime(ctx context.Context, tx *database.Transaction, consentID, orgID string) (int64, error)
	GetByConsentID(ctx context.Context, consentID, orgID string, filter models.HistoryFilter) ([]models.ConsentStatusAuditRecord, error)
}

// HistoryStore appends and reads FS_CONSENT_HISTORY snapshots
type HistoryStore interface {
	Create(ctx context.Context, tx *database.Transaction, record *models.ConsentHistoryRecord) error
	GetByConsentID(ctx context.Context, consentID, orgID string) ([]models.ConsentHistoryRecord, error)
}

// AttributeStore persists FS_CONSENT_ATTRIBUTE rows
type AttributeStore interface {
	Create(ctx context.Context, tx *database.Transaction, consentID, orgID string, attributes map[string]string) error
	Put(ctx context.Context, tx *database.Transaction, consentID, orgID string, attributes map[string]string) error
	GetByConsentID(ctx context.Context, tx *database.Transaction, consentID, orgID string) (map[string]string, error)
}

// FileStore persists uploaded payment files
type FileStore interface {
	Create(ctx context.Context, tx *database.Transaction, file *models.ConsentFile) error
	Get(ctx context.Context, consentID, orgID string) (*models.ConsentFile, error)
}

// TxRunner runs fn in a transaction, committing when it returns nil
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(*database.Transaction) error) error
}

// TokenRevoker revokes the access tokens issued against a consent
type TokenRevoker interface {
	RevokeTokens(ctx context.Context, consentID, orgID string) error
}

// IdempotencyGuard detects replayed create and upload requests
type IdempotencyGuard interface {
	Check(ctx context.Context, req idempotency.Request) (idempotency.Decision, error)
	Record(ctx context.Context, tx *database.Transaction, consentID string, req idempotency.Request) error
}

// Recorder observes service outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	StatusTransition(from, to string)
	ValidationResult(consentType string, valid bool)
	IdempotentReplay(operation string)
}

type nopRecorder struct{}

func (nopRecorder) StatusTransition(string, string) {}
func (nopRecorder) ValidationResult(string, bool)   {}
func (nopRecorder) IdempotentReplay(string)         {}
