package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/idempotency"
	"github.com/wso2/ob-consent-engine/internal/models"
	"github.com/wso2/ob-consent-engine/internal/serviceerror"
	"github.com/wso2/ob-consent-engine/pkg/utils"
)

const (
	reasonAmended    = "Consent amended"
	reasonSuperseded = "Consent superseded by a newer consent"

	revokeExistingPage = 100
)

// AmendConsentRequest carries an amendment of a live consent. The receipt
// is not amendable; every other field left nil or empty is kept as stored.
type AmendConsentRequest struct {
	OrgID            string
	ConsentID        string
	ClientID         string
	ValidityPeriod   *int64
	ConsentFrequency *int
	Attributes       map[string]string
	// AuthorizationID names the authorization whose mappings are replaced by Mappings
	AuthorizationID string
	Mappings        []models.MappingRequest
	Status          string
	Reason          string
	UserID          string
}

func (r AmendConsentRequest) empty() bool {
	return r.ValidityPeriod == nil && r.ConsentFrequency == nil && len(r.Attributes) == 0 &&
		r.AuthorizationID == "" && len(r.Mappings) == 0 && r.Status == ""
}

// Amend applies an amendment in one transaction and stores the amended
// consent as a new history snapshot.
func (s *ConsentService) Amend(ctx context.Context, req AmendConsentRequest) (*models.DetailedConsentResource, *serviceerror.ServiceError) {
	if err := utils.ValidateConsentID(req.ConsentID); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}
	if req.empty() {
		return nil, serviceerror.CustomServiceError(serviceerror.FieldMissingError, "Amendment carries no changes")
	}
	if req.ValidityPeriod != nil && *req.ValidityPeriod < 0 {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, "validityPeriod cannot be negative")
	}
	if req.ConsentFrequency != nil && *req.ConsentFrequency < 1 {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, "consentFrequency must be a positive integer")
	}
	for key := range req.Attributes {
		if idempotency.IsRecordAttribute(key) {
			return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, fmt.Sprintf("Attribute key %q is reserved", key))
		}
	}
	if len(req.Mappings) > 0 && req.AuthorizationID == "" {
		return nil, serviceerror.CustomServiceError(serviceerror.FieldMissingError, "accountMappings need an authorizationId")
	}
	if svcErr := checkMappings(req.Mappings); svcErr != nil {
		return nil, svcErr
	}
	var to models.ConsentStatus
	if req.Status != "" {
		status, ok := models.NormalizeConsentStatus(req.Status)
		if !ok {
			return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, fmt.Sprintf("Unknown consent status %q", req.Status))
		}
		to = status
	}
	reason := req.Reason
	if reason == "" {
		reason = reasonAmended
	}
	actionBy := req.UserID
	if actionBy == "" {
		actionBy = req.ClientID
	}

	var from models.ConsentStatus
	svcErr := s.inTx(ctx, "amend consent", func(tx *database.Transaction) error {
		consent, err := s.lockConsent(ctx, tx, req.ConsentID, req.OrgID)
		if err != nil {
			return err
		}
		if req.ClientID != "" && consent.ClientID != req.ClientID {
			return fail(serviceerror.WithStatus(serviceerror.ConsentMismatchError, 403,
				fmt.Sprintf("Consent %s was not issued to client %s", req.ConsentID, req.ClientID)))
		}
		from = consent.Status()
		if from.IsTerminal() {
			return fail(serviceerror.CustomServiceError(serviceerror.ConsentStateError,
				fmt.Sprintf("Consent %s is in terminal status %s", req.ConsentID, from)))
		}

		if req.ValidityPeriod != nil || req.ConsentFrequency != nil {
			if req.ValidityPeriod != nil {
				consent.ValidityTime = *req.ValidityPeriod
			}
			if req.ConsentFrequency != nil {
				consent.ConsentFrequency = *req.ConsentFrequency
			}
			if err := s.consents.UpdateValidity(ctx, tx, consent.ConsentID, consent.OrgID,
				consent.ValidityTime, consent.ConsentFrequency, s.now().UnixMilli()); err != nil {
				return err
			}
		}
		if len(req.Attributes) > 0 {
			if err := s.attributes.Put(ctx, tx, consent.ConsentID, consent.OrgID, req.Attributes); err != nil {
				return err
			}
		}
		if req.AuthorizationID != "" {
			if _, err := s.authorizationOf(ctx, tx, consent, req.AuthorizationID); err != nil {
				return err
			}
			if err := s.syncMappings(ctx, tx, req.AuthorizationID, consent.OrgID, req.Mappings); err != nil {
				return err
			}
		}

		if to != "" && to != from {
			return s.transition(ctx, tx, consent, to, reason, actionBy)
		}
		return s.touch(ctx, tx, consent, reason, actionBy)
	})
	if svcErr != nil {
		return nil, svcErr
	}

	if to != "" && to != from {
		s.recorder.StatusTransition(string(from), string(to))
	}
	s.logger.WithFields(logrus.Fields{
		"consent_id": req.ConsentID,
		"org_id":     req.OrgID,
	}).Info("Consent amended")

	return s.loadDetailed(ctx, nil, req.ConsentID, req.OrgID, true)
}

// RevokeExistingRequest selects the consents a new consent of the same user
// supersedes
type RevokeExistingRequest struct {
	OrgID            string
	ClientID         string
	UserID           string
	ConsentType      string
	ApplicableStatus string
	// ExceptConsentID is left alone even when it matches
	ExceptConsentID string
	RevokeTokens    bool
}

// RevokeExisting revokes every consent of the client and user of the given
// type that is still in the applicable status. A consent that changed status
// since the search is skipped. It returns the IDs of the revoked consents.
func (s *ConsentService) RevokeExisting(ctx context.Context, req RevokeExistingRequest) ([]string, *serviceerror.ServiceError) {
	if req.ClientID == "" || req.UserID == "" || req.ConsentType == "" || req.ApplicableStatus == "" {
		return nil, serviceerror.CustomServiceError(serviceerror.FieldMissingError,
			"clientId, userId, consentType and applicableStatus are required")
	}
	if err := utils.ValidateOrgID(req.OrgID); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}
	consentType, ok := models.NormalizeConsentType(req.ConsentType)
	if !ok {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, fmt.Sprintf("Consent type %q is not supported", req.ConsentType))
	}
	applicable, ok := models.NormalizeConsentStatus(req.ApplicableStatus)
	if !ok || applicable.IsTerminal() {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, fmt.Sprintf("Status %q cannot be revoked", req.ApplicableStatus))
	}

	filter := models.ConsentSearchFilter{
		OrgID:        req.OrgID,
		ConsentTypes: []string{string(consentType)},
		Statuses:     []string{string(applicable)},
		ClientIDs:    []string{req.ClientID},
		UserIDs:      []string{req.UserID},
		Limit:        revokeExistingPage,
	}
	var candidates []string
	for {
		page, total, err := s.consents.Search(ctx, filter)
		if err != nil {
			s.logger.WithError(err).Error("Failed to search consents to revoke")
			return nil, serviceerror.CustomServiceError(serviceerror.DatabaseError, "Failed to search consents")
		}
		for _, c := range page {
			if c.ConsentID != req.ExceptConsentID {
				candidates = append(candidates, c.ConsentID)
			}
		}
		filter.Offset += len(page)
		if len(page) == 0 || filter.Offset >= total {
			break
		}
	}

	revoked := make([]string, 0, len(candidates))
	svcErr := s.inTx(ctx, "revoke existing consents", func(tx *database.Transaction) error {
		for _, consentID := range candidates {
			consent, err := s.lockConsent(ctx, tx, consentID, req.OrgID)
			if err != nil {
				return err
			}
			if consent.Status() != applicable {
				continue
			}
			if err := s.revokeChildren(ctx, tx, consent); err != nil {
				return err
			}
			if err := s.transition(ctx, tx, consent, models.StatusRevoked, reasonSuperseded, req.UserID); err != nil {
				return err
			}
			revoked = append(revoked, consentID)
		}
		return nil
	})
	if svcErr != nil {
		return nil, svcErr
	}

	for _, consentID := range revoked {
		s.recorder.StatusTransition(string(applicable), string(models.StatusRevoked))
		if !req.RevokeTokens || s.revoker == nil {
			continue
		}
		if err := s.revoker.RevokeTokens(ctx, consentID, req.OrgID); err != nil {
			s.logger.WithError(err).WithField("consent_id", consentID).Warn("Superseded consent revoked but token revocation failed")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"client_id":    req.ClientID,
		"consent_type": consentType,
		"count":        len(revoked),
	}).Info("Revoked superseded consents")
	return revoked, nil
}
