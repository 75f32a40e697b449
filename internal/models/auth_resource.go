package models

import "strings"

// AuthorizationStatus is the canonical authorization status
type AuthorizationStatus string

const (
	AuthStatusCreated    AuthorizationStatus = "created"
	AuthStatusAuthorised AuthorizationStatus = "authorised"
	AuthStatusRejected   AuthorizationStatus = "rejected"
	AuthStatusRevoked    AuthorizationStatus = "revoked"
)

// NormalizeAuthorizationStatus maps any casing of a known status to its canonical form
func NormalizeAuthorizationStatus(status string) (AuthorizationStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "created", "awaitingauthorisation", "awaitingauthorization":
		return AuthStatusCreated, true
	case "authorised", "authorized":
		return AuthStatusAuthorised, true
	case "rejected":
		return AuthStatusRejected, true
	case "revoked":
		return AuthStatusRevoked, true
	default:
		return "", false
	}
}

// Mapping statuses. Mappings are deactivated, never deleted.
const (
	MappingStatusActive   = "active"
	MappingStatusInactive = "inactive"
)

// AuthorizationResource represents the FS_CONSENT_AUTH_RESOURCE table
type AuthorizationResource struct {
	AuthorizationID     string  `db:"AUTH_ID" json:"authorizationId"`
	ConsentID           string  `db:"CONSENT_ID" json:"consentId"`
	AuthorizationType   string  `db:"AUTH_TYPE" json:"authorizationType"`
	UserID              *string `db:"USER_ID" json:"userId,omitempty"`
	AuthorizationStatus string  `db:"AUTH_STATUS" json:"authorizationStatus"`
	UpdatedTime         int64   `db:"UPDATED_TIME" json:"updatedTime"`
	OrgID               string  `db:"ORG_ID" json:"-"`
}

// ConsentMappingResource represents the FS_CONSENT_MAPPING table
type ConsentMappingResource struct {
	MappingID       string `db:"MAPPING_ID" json:"mappingId"`
	AuthorizationID string `db:"AUTH_ID" json:"authorizationId"`
	AccountID       string `db:"ACCOUNT_ID" json:"accountId"`
	Permission      string `db:"PERMISSION" json:"permission"`
	MappingStatus   string `db:"MAPPING_STATUS" json:"mappingStatus"`
	OrgID           string `db:"ORG_ID" json:"-"`
}
