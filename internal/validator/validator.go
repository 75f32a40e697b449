// Package validator cross-checks runtime submissions against the receipt a
// consent was created with, and validates receipts at creation time.
package validator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wso2/ob-consent-engine/internal/models"
)

// Config holds the tunable limits of the validators
type Config struct {
	MaxInstructedAmount    float64
	CustomLocalInstruments []string
	// Now is the clock used for expiry checks
	Now func() time.Time
}

// Submission is a runtime request checked against a stored consent
type Submission struct {
	// ConsentID is the consent id taken from the request path
	ConsentID string
	// TokenConsentID is the consent id bound to the access token, when known
	TokenConsentID string
	// ResourcePath is the requested resource, used by account access checks
	ResourcePath string
	Payload      json.RawMessage
}

// CrossValidator dispatches a submission to the validator of the consent type
type CrossValidator struct {
	cfg         Config
	instruments map[string]struct{}
}

// New creates a CrossValidator
func New(cfg Config) *CrossValidator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	instruments := make(map[string]struct{}, len(defaultLocalInstruments)+len(cfg.CustomLocalInstruments))
	for _, li := range defaultLocalInstruments {
		instruments[li] = struct{}{}
	}
	for _, li := range cfg.CustomLocalInstruments {
		instruments[li] = struct{}{}
	}
	return &CrossValidator{cfg: cfg, instruments: instruments}
}

// Validate checks sub against the receipt of consent.
// Rule violations are reported through Result. The error is only set when
// the stored receipt cannot be parsed.
func (v *CrossValidator) Validate(consent *models.DetailedConsentResource, sub Submission) (Result, error) {
	var receipt Document
	if err := json.Unmarshal(consent.Receipt, &receipt); err != nil {
		return Result{}, fmt.Errorf("stored receipt of consent %s is not valid JSON: %w", consent.ConsentID, err)
	}
	if receipt.Data.Kind() != KindObject {
		return Result{}, fmt.Errorf("stored receipt of consent %s has no Data object", consent.ConsentID)
	}

	consentType, ok := models.NormalizeConsentType(consent.ConsentType)
	if !ok {
		return Result{}, fmt.Errorf("consent %s has unknown type %q", consent.ConsentID, consent.ConsentType)
	}

	switch consentType {
	case models.TypeAccounts:
		return v.validateAccounts(consent, receipt, sub)
	case models.TypePayments:
		return v.validatePayments(consent, receipt, sub)
	case models.TypeFundsConfirmation:
		return v.validateFundsConfirmation(consent, receipt, sub)
	default:
		return v.validateVRP(consent, receipt, sub)
	}
}

// submissionDocument parses the request payload. A payload that is not a
// JSON object is a client error, never a server error.
func submissionDocument(payload json.RawMessage) (Document, Result) {
	var doc Document
	if len(payload) == 0 {
		return doc, Missing("Request payload is missing")
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return doc, Invalid("Request payload is not a valid JSON object")
	}
	return doc, OK()
}

// checkConsentID verifies the ConsentId in the body against the path, token and stored ids
func checkConsentID(field Field, consentID string, sub Submission) Result {
	if r := RequiredInSubmission("Data.ConsentId", field); !r.Valid {
		return r
	}
	bodyID, _ := field.Str()
	if bodyID != consentID || (sub.ConsentID != "" && bodyID != sub.ConsentID) {
		return Mismatch("ConsentId in the request does not match the consent")
	}
	if sub.TokenConsentID != "" && sub.TokenConsentID != consentID {
		return Mismatch("ConsentId bound to the token does not match the consent")
	}
	return OK()
}

// expired reports whether an ExpirationDateTime field lies in the past
func (v *CrossValidator) expired(f Field) (bool, Result) {
	if !f.Present() {
		return false, OK()
	}
	s, ok := f.Str()
	if !ok {
		return false, Invalid("ExpirationDateTime must be a string")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return false, Invalid("ExpirationDateTime is not a valid ISO-8601 date-time")
	}
	return !t.After(v.cfg.Now()), OK()
}
