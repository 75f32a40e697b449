package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/models"
	"github.com/wso2/ob-consent-engine/internal/serviceerror"
	"github.com/wso2/ob-consent-engine/internal/validator"
	"github.com/wso2/ob-consent-engine/pkg/utils"
)

// SubmissionRequest is a runtime resource request checked against its consent
type SubmissionRequest struct {
	OrgID          string
	ConsentID      string
	ClientID       string
	UserID         string
	ResourcePath   string
	TokenConsentID string
	Payload        json.RawMessage
}

// EvaluateCutOff decides whether a payment initiated at initiation may be processed
func (s *ConsentService) EvaluateCutOff(initiation time.Time) CutOffDecision {
	return s.cutOff.Evaluate(initiation)
}

// ValidateSubmission checks that a submission is covered by its consent:
// ownership, status, the payment cut-off, the receipt cross-check and, for
// VRP consents, the periodic limits.
func (s *ConsentService) ValidateSubmission(ctx context.Context, req SubmissionRequest) (*models.SubmissionValidateResponse, *serviceerror.ServiceError) {
	if err := utils.ValidateConsentID(req.ConsentID); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}

	consent, svcErr := s.loadDetailed(ctx, nil, req.ConsentID, req.OrgID, true)
	if svcErr != nil {
		return nil, svcErr
	}

	if consent.ClientID != req.ClientID {
		return nil, serviceerror.WithStatus(serviceerror.ConsentMismatchError, 403,
			fmt.Sprintf("Consent %s was not issued to client %s", consent.ConsentID, req.ClientID))
	}
	if req.UserID != "" && !consent.HasAuthorizedUser(req.UserID) {
		return nil, serviceerror.WithStatus(serviceerror.ConsentMismatchError, 401,
			"The user has not authorised this consent")
	}
	if consent.Status() != models.StatusAuthorised {
		return nil, serviceerror.CustomServiceError(serviceerror.ConsentStateError,
			fmt.Sprintf("Consent %s is in status %s, expected %s", consent.ConsentID, consent.Status(), models.StatusAuthorised))
	}

	if utils.IsExpiredAt(consent.ValidityTime, s.now()) {
		return nil, serviceerror.CustomServiceError(serviceerror.ConsentStateError,
			fmt.Sprintf("Consent %s validity period has elapsed", consent.ConsentID))
	}

	consentType, _ := models.NormalizeConsentType(consent.ConsentType)
	resp := &models.SubmissionValidateResponse{
		ConsentID:   consent.ConsentID,
		ConsentType: string(consentType),
	}

	if consentType == models.TypePayments || consentType == models.TypeVRP {
		// each VRP payment is its own initiation
		initiation := time.UnixMilli(consent.CreatedTime)
		if consentType == models.TypeVRP {
			initiation = s.now()
		}
		switch s.EvaluateCutOff(initiation) {
		case CutOffReject:
			return nil, s.rejectAfterCutOff(ctx, &consent.ConsentResource)
		case CutOffAcceptLate:
			s.logger.WithField("consent_id", consent.ConsentID).Info("Accepting payment submitted after the cut-off time")
		}
		if s.cutOff.Enabled() {
			resp.CutOffDateTime = utils.FormatTime(s.cutOff.CutOffTime(s.now()))
		}
	}

	result, err := s.validator.Validate(consent, validator.Submission{
		ConsentID:      req.ConsentID,
		TokenConsentID: req.TokenConsentID,
		ResourcePath:   req.ResourcePath,
		Payload:        req.Payload,
	})
	if err != nil {
		s.logger.WithError(err).WithField("consent_id", consent.ConsentID).Error("Failed to validate submission")
		return nil, serviceerror.CustomServiceError(serviceerror.InternalServerError, "Failed to validate the submission")
	}
	s.recorder.ValidationResult(string(consentType), result.Valid)
	if !result.Valid {
		s.logger.WithFields(logrus.Fields{
			"consent_id": consent.ConsentID,
			"error_code": result.ErrorCode,
		}).Info("Submission rejected")
		return nil, result.ServiceError()
	}

	if consentType == models.TypeVRP && s.limits != nil {
		if svcErr := s.limits.CheckAndRecord(ctx, consent, req.Payload); svcErr != nil {
			return nil, svcErr
		}
	}

	resp.IsValid = true
	return resp, nil
}

// rejectAfterCutOff moves an authorised consent to Rejected and returns the
// cut-off error for the caller
func (s *ConsentService) rejectAfterCutOff(ctx context.Context, consent *models.ConsentResource) *serviceerror.ServiceError {
	rejected := false
	svcErr := s.inTx(ctx, "reject consent after cut-off", func(tx *database.Transaction) error {
		locked, err := s.lockConsent(ctx, tx, consent.ConsentID, consent.OrgID)
		if err != nil {
			return err
		}
		if locked.Status() != models.StatusAuthorised {
			return nil
		}
		if err := s.transition(ctx, tx, locked, models.StatusRejected, reasonCutOff, actionBySystem); err != nil {
			return err
		}
		rejected = true
		return nil
	})
	if svcErr != nil {
		s.logger.WithField("consent_id", consent.ConsentID).Warnf("Failed to reject consent after cut-off: %s", svcErr.ErrorDescription)
	}
	if rejected {
		s.recorder.StatusTransition(string(models.StatusAuthorised), string(models.StatusRejected))
	}

	return serviceerror.CustomServiceError(serviceerror.CutOffElapsedError,
		fmt.Sprintf("Consent %s was submitted after the daily cut-off time", consent.ConsentID))
}
