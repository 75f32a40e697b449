package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// ConsentStatus is the canonical consent lifecycle status
type ConsentStatus string

const (
	StatusCreated               ConsentStatus = "Created"
	StatusAwaitingAuthorisation ConsentStatus = "AwaitingAuthorisation"
	StatusAwaitingUpload        ConsentStatus = "AwaitingUpload"
	StatusAuthorised            ConsentStatus = "Authorised"
	StatusRejected              ConsentStatus = "Rejected"
	StatusRevoked               ConsentStatus = "Revoked"
	StatusExpired               ConsentStatus = "Expired"
)

var consentStatuses = []ConsentStatus{
	StatusCreated,
	StatusAwaitingAuthorisation,
	StatusAwaitingUpload,
	StatusAuthorised,
	StatusRejected,
	StatusRevoked,
	StatusExpired,
}

// NormalizeConsentStatus maps any casing of a known status to its canonical form
func NormalizeConsentStatus(status string) (ConsentStatus, bool) {
	s := strings.TrimSpace(status)
	for _, known := range consentStatuses {
		if strings.EqualFold(s, string(known)) {
			return known, true
		}
	}
	// US spelling is accepted on input only
	switch strings.ToLower(s) {
	case "authorized":
		return StatusAuthorised, true
	case "awaitingauthorization":
		return StatusAwaitingAuthorisation, true
	}
	return "", false
}

// IsTerminal reports whether no transition may leave the status
func (s ConsentStatus) IsTerminal() bool {
	return s == StatusRevoked || s == StatusRejected || s == StatusExpired
}

// ConsentType identifies the receipt schema of a consent
type ConsentType string

const (
	TypeAccounts          ConsentType = "accounts"
	TypePayments          ConsentType = "payments"
	TypeFundsConfirmation ConsentType = "fundsconfirmations"
	TypeVRP               ConsentType = "vrp"
)

// NormalizeConsentType maps accepted consent type spellings to the stored form
func NormalizeConsentType(consentType string) (ConsentType, bool) {
	switch strings.ToLower(strings.TrimSpace(consentType)) {
	case "accounts", "account":
		return TypeAccounts, true
	case "payments", "payment":
		return TypePayments, true
	case "fundsconfirmations", "fundsconfirmation":
		return TypeFundsConfirmation, true
	case "vrp", "variablerecurringpayment", "variablerecurringpayments":
		return TypeVRP, true
	default:
		return "", false
	}
}

// JSON holds a raw JSON column value. The bytes are kept as stored.
type JSON json.RawMessage

// Scan implements the sql.Scanner interface for JSON
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = append([]byte(nil), v...)
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSON: %T", value)
	}

	if !json.Valid(bytes) {
		return fmt.Errorf("invalid JSON data")
	}

	*j = JSON(bytes)
	return nil
}

// Value implements the driver.Valuer interface for JSON
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return string(j), nil
}

// MarshalJSON implements json.Marshaler
func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler
func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return fmt.Errorf("models.JSON: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// ConsentResource represents the FS_CONSENT table
type ConsentResource struct {
	ConsentID          string `db:"CONSENT_ID" json:"consentId"`
	Receipt            JSON   `db:"RECEIPT" json:"receipt"`
	CreatedTime        int64  `db:"CREATED_TIME" json:"createdTimestamp"`
	UpdatedTime        int64  `db:"UPDATED_TIME" json:"updatedTimestamp"`
	ClientID           string `db:"CLIENT_ID" json:"clientId"`
	ConsentType        string `db:"CONSENT_TYPE" json:"consentType"`
	CurrentStatus      string `db:"CURRENT_STATUS" json:"currentStatus"`
	ConsentFrequency   int    `db:"CONSENT_FREQUENCY" json:"consentFrequency"`
	ValidityTime       int64  `db:"VALIDITY_TIME" json:"validityPeriod"`
	RecurringIndicator bool   `db:"RECURRING_INDICATOR" json:"recurringIndicator"`
	OrgID              string `db:"ORG_ID" json:"orgId"`
}

// Status returns the canonical status of the consent
func (c *ConsentResource) Status() ConsentStatus {
	if status, ok := NormalizeConsentStatus(c.CurrentStatus); ok {
		return status
	}
	return ConsentStatus(c.CurrentStatus)
}

// DetailedConsentResource is a consent with its child collections
type DetailedConsentResource struct {
	ConsentResource
	ConsentAttributes       map[string]string        `json:"consentAttributes"`
	AuthorizationResources  []AuthorizationResource  `json:"authorizationResources"`
	ConsentMappingResources []ConsentMappingResource `json:"consentMappingResources"`
}

// HasAuthorizedUser reports whether userID owns any authorization on the consent
func (d *DetailedConsentResource) HasAuthorizedUser(userID string) bool {
	for _, auth := range d.AuthorizationResources {
		if auth.UserID != nil && *auth.UserID == userID {
			return true
		}
	}
	return false
}

// ActiveMappings returns mappings in active state
func (d *DetailedConsentResource) ActiveMappings() []ConsentMappingResource {
	active := make([]ConsentMappingResource, 0, len(d.ConsentMappingResources))
	for _, m := range d.ConsentMappingResources {
		if m.MappingStatus == MappingStatusActive {
			active = append(active, m)
		}
	}
	return active
}

// ConsentAttribute represents the FS_CONSENT_ATTRIBUTE table
type ConsentAttribute struct {
	ConsentID string `db:"CONSENT_ID" json:"consentId"`
	AttKey    string `db:"ATT_KEY" json:"key"`
	AttValue  string `db:"ATT_VALUE" json:"value"`
	OrgID     string `db:"ORG_ID" json:"orgId"`
}

// ConsentStatusAuditRecord represents the FS_CONSENT_STATUS_AUDIT table
type ConsentStatusAuditRecord struct {
	StatusAuditID  string  `db:"STATUS_AUDIT_ID" json:"statusAuditId"`
	ConsentID      string  `db:"CONSENT_ID" json:"consentId"`
	CurrentStatus  string  `db:"CURRENT_STATUS" json:"currentStatus"`
	ActionTime     int64   `db:"ACTION_TIME" json:"actionTime"`
	Reason         *string `db:"REASON" json:"reason,omitempty"`
	ActionBy       *string `db:"ACTION_BY" json:"actionBy,omitempty"`
	PreviousStatus *string `db:"PREVIOUS_STATUS" json:"previousStatus,omitempty"`
	OrgID          string  `db:"ORG_ID" json:"orgId"`
}

// ConsentHistoryEntry is an audit record optionally expanded with the consent as it was at that point
type ConsentHistoryEntry struct {
	ConsentStatusAuditRecord
	DetailedConsent *DetailedConsentResource `json:"detailedConsent,omitempty"`
}

// ConsentHistoryRecord represents the FS_CONSENT_HISTORY table. HistoryData is
// the detailed consent as it stood right after the audited change.
type ConsentHistoryRecord struct {
	HistoryID     string  `db:"HISTORY_ID" json:"historyId"`
	ConsentID     string  `db:"CONSENT_ID" json:"consentId"`
	StatusAuditID string  `db:"STATUS_AUDIT_ID" json:"statusAuditId"`
	HistoryData   JSON    `db:"HISTORY_DATA" json:"historyData"`
	Reason        *string `db:"REASON" json:"reason,omitempty"`
	EffectiveTime int64   `db:"EFFECTIVE_TIME" json:"effectiveTime"`
	OrgID         string  `db:"ORG_ID" json:"orgId"`
}
