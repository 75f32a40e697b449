package models

// ConsentCreateRequest is the payload of POST /consents
type ConsentCreateRequest struct {
	ConsentType            string                       `json:"consentType" binding:"required"`
	ClientID               string                       `json:"clientId"`
	Receipt                JSON                         `json:"receipt" binding:"required"`
	ConsentFrequency       *int                         `json:"consentFrequency,omitempty"`
	ValidityPeriod         int64                        `json:"validityPeriod"`
	RecurringIndicator     bool                         `json:"recurringIndicator"`
	CurrentStatus          string                       `json:"currentStatus,omitempty"`
	ImplicitAuthorization  *bool                        `json:"implicitAuthorization,omitempty"`
	ConsentAttributes      map[string]string            `json:"consentAttributes,omitempty"`
	AuthorizationResources []AuthorizationCreateRequest `json:"authorizationResources,omitempty" binding:"omitempty,dive"`
}

// AuthorizationCreateRequest describes an authorization created with its consent
type AuthorizationCreateRequest struct {
	AuthorizationType   string  `json:"authorizationType"`
	UserID              *string `json:"userId,omitempty"`
	AuthorizationStatus string  `json:"authorizationStatus"`
}

// StatusUpdateRequest is the payload of PUT /consents/{id}/status and an item of the bulk variant
type StatusUpdateRequest struct {
	ConsentID string `json:"consentId,omitempty"`
	Status    string `json:"status" binding:"required"`
	Reason    string `json:"reason"`
	UserID    string `json:"userId"`
}

// RevokeRequest is the payload of PUT /consents/{id}/revoke
type RevokeRequest struct {
	Reason string `json:"reason"`
	UserID string `json:"userId"`
}

// AuthorizeRequest is the payload of PUT /consents/{id}/authorizations/{authId}
type AuthorizeRequest struct {
	UserID   string           `json:"userId" binding:"required"`
	Mappings []MappingRequest `json:"accountMappings" binding:"omitempty,dive"`
}

// ReAuthorizeRequest is the payload of POST /consents/{id}/reauthorize.
// Without authorizationId a new authorization replaces the user's earlier ones.
type ReAuthorizeRequest struct {
	AuthorizationID   string           `json:"authorizationId"`
	AuthorizationType string           `json:"authorizationType"`
	UserID            string           `json:"userId" binding:"required"`
	Mappings          []MappingRequest `json:"accountMappings" binding:"required,min=1,dive"`
}

// ConsentAmendRequest is the payload of PUT /consents/{id}. The receipt cannot be amended.
type ConsentAmendRequest struct {
	ValidityPeriod    *int64            `json:"validityPeriod,omitempty"`
	ConsentFrequency  *int              `json:"consentFrequency,omitempty"`
	ConsentAttributes map[string]string `json:"consentAttributes,omitempty"`
	AuthorizationID   string            `json:"authorizationId"`
	Mappings          []MappingRequest  `json:"accountMappings" binding:"omitempty,dive"`
	Status            string            `json:"status"`
	Reason            string            `json:"reason"`
	UserID            string            `json:"userId"`
}

// RevokeExistingRequest is the payload of PUT /consents/revoke-existing
type RevokeExistingRequest struct {
	ClientID         string `json:"clientId"`
	UserID           string `json:"userId" binding:"required"`
	ConsentType      string `json:"consentType" binding:"required"`
	ApplicableStatus string `json:"applicableStatus" binding:"required"`
	ExceptConsentID  string `json:"exceptConsentId"`
	RevokeTokens     bool   `json:"revokeTokens"`
}

// MappingRequest grants a permission on an account
type MappingRequest struct {
	AccountID  string `json:"accountId" binding:"required"`
	Permission string `json:"permission" binding:"required"`
}

// SubmissionValidateRequest is the payload of POST /consents/{id}/validate
type SubmissionValidateRequest struct {
	ClientID       string `json:"clientId"`
	UserID         string `json:"userId"`
	ResourcePath   string `json:"resourcePath"`
	TokenConsentID string `json:"tokenConsentId"`
	Payload        JSON   `json:"payload"`
}

// SubmissionValidateResponse reports a successful validation
type SubmissionValidateResponse struct {
	IsValid        bool   `json:"isValid"`
	ConsentID      string `json:"consentId"`
	ConsentType    string `json:"consentType"`
	CutOffDateTime string `json:"cutOffDateTime,omitempty"`
}

// BulkStatusResult is the per-item outcome of a bulk status update
type BulkStatusResult struct {
	ConsentID string `json:"consentId"`
	Updated   bool   `json:"updated"`
	ErrorCode string `json:"errorCode,omitempty"`
	Message   string `json:"message,omitempty"`
}

// RevokeResult reports the outcome of a revocation
type RevokeResult struct {
	ConsentID            string `json:"consentId"`
	Revoked              bool   `json:"revoked"`
	TokensRevoked        bool   `json:"tokensRevoked"`
	TokenRevocationError string `json:"tokenRevocationError,omitempty"`
}

// RevokeExistingResult lists the consents revoked as superseded
type RevokeExistingResult struct {
	RevokedConsentIDs []string `json:"revokedConsentIds"`
}

// ConsentSearchResponse is a page of detailed consents
type ConsentSearchResponse struct {
	Data     []DetailedConsentResource `json:"data"`
	Metadata PaginationMetadata        `json:"metadata"`
}
