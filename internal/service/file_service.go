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

const reasonFileUploaded = "Payment file uploaded"

// UploadFileRequest carries a payment file upload
type UploadFileRequest struct {
	OrgID          string
	ConsentID      string
	ClientID       string
	IdempotencyKey string
	Content        []byte
}

// UploadFile stores the payment file of a file payment consent and moves the
// consent from AwaitingUpload to AwaitingAuthorisation
func (s *ConsentService) UploadFile(ctx context.Context, req UploadFileRequest) (*models.ConsentFileResponse, *serviceerror.ServiceError) {
	if err := utils.ValidateConsentID(req.ConsentID); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}
	if len(req.Content) == 0 {
		return nil, serviceerror.CustomServiceError(serviceerror.FieldMissingError, "File content is empty")
	}

	idemReq := idempotency.Request{
		Key:       req.IdempotencyKey,
		Operation: idempotency.OperationFileUpload,
		OrgID:     req.OrgID,
		ClientID:  req.ClientID,
		Body:      req.Content,
	}
	if replay, svcErr := s.replayUpload(ctx, idemReq, req.ConsentID); replay != nil || svcErr != nil {
		return replay, svcErr
	}

	var from models.ConsentStatus
	var consent *models.ConsentResource
	svcErr := s.inTx(ctx, "upload consent file", func(tx *database.Transaction) error {
		var err error
		consent, err = s.lockConsent(ctx, tx, req.ConsentID, req.OrgID)
		if err != nil {
			return err
		}
		if req.ClientID != "" && consent.ClientID != req.ClientID {
			return fail(serviceerror.WithStatus(serviceerror.ConsentMismatchError, 403,
				fmt.Sprintf("Consent %s was not issued to client %s", req.ConsentID, req.ClientID)))
		}
		from = consent.Status()
		if from != models.StatusAwaitingUpload {
			return fail(serviceerror.CustomServiceError(serviceerror.ConsentStateError,
				fmt.Sprintf("Consent %s is in status %s, expected %s", req.ConsentID, from, models.StatusAwaitingUpload)))
		}

		file := &models.ConsentFile{ConsentID: req.ConsentID, ConsentFile: req.Content, OrgID: req.OrgID}
		if err := s.files.Create(ctx, tx, file); err != nil {
			return err
		}
		if err := s.transition(ctx, tx, consent, models.StatusAwaitingAuthorisation, reasonFileUploaded, req.ClientID); err != nil {
			return err
		}
		return s.recordIdempotency(ctx, tx, req.ConsentID, idemReq)
	})
	if svcErr != nil {
		if svcErr.Kind == serviceerror.KindConflict && s.guard != nil {
			if replay, replayErr := s.replayUpload(ctx, idemReq, req.ConsentID); replay != nil || replayErr != nil {
				return replay, replayErr
			}
		}
		return nil, svcErr
	}

	s.recorder.StatusTransition(string(from), string(models.StatusAwaitingAuthorisation))
	s.logger.WithFields(logrus.Fields{
		"consent_id": req.ConsentID,
		"size":       len(req.Content),
	}).Info("Consent file uploaded")

	return &models.ConsentFileResponse{
		ConsentID:     req.ConsentID,
		FileSize:      len(req.Content),
		CurrentStatus: consent.CurrentStatus,
	}, nil
}

// replayUpload returns the response of an earlier upload with the same
// idempotency key, or nil when req must run
func (s *ConsentService) replayUpload(ctx context.Context, req idempotency.Request, consentID string) (*models.ConsentFileResponse, *serviceerror.ServiceError) {
	decision, svcErr := s.checkIdempotency(ctx, req)
	if svcErr != nil || !decision.Replay {
		return nil, svcErr
	}
	if decision.ConsentID != consentID {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, idempotency.ErrKeyReused.Error())
	}
	s.recorder.IdempotentReplay(idempotency.OperationFileUpload)
	return s.fileResponse(ctx, req.OrgID, consentID)
}

func (s *ConsentService) fileResponse(ctx context.Context, orgID, consentID string) (*models.ConsentFileResponse, *serviceerror.ServiceError) {
	file, svcErr := s.GetFile(ctx, orgID, consentID)
	if svcErr != nil {
		return nil, svcErr
	}
	consent, err := s.consents.GetByID(ctx, nil, consentID, orgID)
	if err != nil {
		return nil, s.storeError(err, "consent", consentID)
	}
	return &models.ConsentFileResponse{
		ConsentID:     consentID,
		FileSize:      len(file.ConsentFile),
		CurrentStatus: consent.CurrentStatus,
	}, nil
}

// GetFile returns the uploaded payment file of a consent
func (s *ConsentService) GetFile(ctx context.Context, orgID, consentID string) (*models.ConsentFile, *serviceerror.ServiceError) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}
	file, err := s.files.Get(ctx, consentID, orgID)
	if err != nil {
		return nil, s.storeError(err, "file of consent", consentID)
	}
	return file, nil
}
