package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wso2/ob-consent-engine/internal/dao"
	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/models"
	"github.com/wso2/ob-consent-engine/internal/serviceerror"
	"github.com/wso2/ob-consent-engine/pkg/utils"
)

const (
	reasonAuthorised   = "Consent authorised"
	reasonReAuthorised = "Consent re-authorised"

	authTypeReAuthorisation = "reauthorisation"
)

// Authorize marks an authorization of the consent as authorised by userID and
// grants the given account mappings. The first authorised authorization moves
// the consent to Authorised.
func (s *ConsentService) Authorize(ctx context.Context, orgID, consentID, authorizationID, userID string, mappings []models.MappingRequest) (*models.DetailedConsentResource, *serviceerror.ServiceError) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}
	if authorizationID == "" {
		return nil, serviceerror.CustomServiceError(serviceerror.FieldMissingError, "authorization ID cannot be empty")
	}
	if userID == "" {
		return nil, serviceerror.CustomServiceError(serviceerror.FieldMissingError, "userId cannot be empty")
	}
	if svcErr := checkMappings(mappings); svcErr != nil {
		return nil, svcErr
	}

	var from, to models.ConsentStatus
	svcErr := s.inTx(ctx, "authorize consent", func(tx *database.Transaction) error {
		consent, err := s.lockConsent(ctx, tx, consentID, orgID)
		if err != nil {
			return err
		}
		from = consent.Status()
		to = from
		if from.IsTerminal() {
			return fail(serviceerror.CustomServiceError(serviceerror.ConsentStateError,
				fmt.Sprintf("Consent %s is in terminal status %s", consentID, from)))
		}

		auth, err := s.authorizationOf(ctx, tx, consent, authorizationID)
		if err != nil {
			return err
		}

		now := s.now().UnixMilli()
		if err := s.auths.Authorize(ctx, tx, authorizationID, consentID, orgID, userID, now); err != nil {
			if errors.Is(err, dao.ErrStatusConflict) {
				return fail(serviceerror.CustomServiceError(serviceerror.ConsentStateError,
					fmt.Sprintf("Authorization %s is already authorised", authorizationID)))
			}
			return err
		}

		if err := s.grant(ctx, tx, auth.AuthorizationID, orgID, mappings); err != nil {
			return err
		}

		authorised, err := s.auths.CountByStatus(ctx, tx, consentID, orgID, string(models.AuthStatusAuthorised))
		if err != nil {
			return err
		}
		if authorised == 1 && from != models.StatusAuthorised {
			if err := s.transition(ctx, tx, consent, models.StatusAuthorised, reasonAuthorised, userID); err != nil {
				return err
			}
			to = models.StatusAuthorised
		}
		return nil
	})
	if svcErr != nil {
		return nil, svcErr
	}

	if to != from {
		s.recorder.StatusTransition(string(from), string(to))
	}
	s.logger.WithFields(logrus.Fields{
		"consent_id":       consentID,
		"authorization_id": authorizationID,
		"mappings":         len(mappings),
	}).Info("Consent authorization recorded")

	return s.loadDetailed(ctx, nil, consentID, orgID, false)
}

// GetAuthorization returns an authorization. When consentID is set the
// authorization must belong to that consent.
func (s *ConsentService) GetAuthorization(ctx context.Context, orgID, consentID, authorizationID string) (*models.AuthorizationResource, *serviceerror.ServiceError) {
	if authorizationID == "" {
		return nil, serviceerror.CustomServiceError(serviceerror.FieldMissingError, "authorization ID cannot be empty")
	}
	if err := utils.ValidateOrgID(orgID); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}

	auth, err := s.auths.GetByID(ctx, nil, authorizationID, orgID)
	if err != nil {
		return nil, s.storeError(err, "authorization", authorizationID)
	}
	if consentID != "" && auth.ConsentID != consentID {
		return nil, serviceerror.CustomServiceError(serviceerror.ResourceNotFoundError,
			fmt.Sprintf("authorization %s not found for consent %s", authorizationID, consentID))
	}
	return auth, nil
}

// ReAuthorizeRequest carries a re-authorization of an authorised consent.
// With AuthorizationID set the account mappings of that authorization are
// brought in line with Mappings. Without it the user's earlier
// authorizations are revoked and a new one carries Mappings.
type ReAuthorizeRequest struct {
	OrgID             string
	ConsentID         string
	AuthorizationID   string
	AuthorizationType string
	UserID            string
	Mappings          []models.MappingRequest
}

// ReAuthorize records a re-authorization. The consent stays Authorised and
// the change is audited with a fresh snapshot.
func (s *ConsentService) ReAuthorize(ctx context.Context, req ReAuthorizeRequest) (*models.DetailedConsentResource, *serviceerror.ServiceError) {
	if err := utils.ValidateConsentID(req.ConsentID); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}
	if req.UserID == "" {
		return nil, serviceerror.CustomServiceError(serviceerror.FieldMissingError, "userId cannot be empty")
	}
	if len(req.Mappings) == 0 {
		return nil, serviceerror.CustomServiceError(serviceerror.FieldMissingError, "re-authorization needs at least one account mapping")
	}
	if svcErr := checkMappings(req.Mappings); svcErr != nil {
		return nil, svcErr
	}

	authID := req.AuthorizationID
	svcErr := s.inTx(ctx, "re-authorize consent", func(tx *database.Transaction) error {
		consent, err := s.lockConsent(ctx, tx, req.ConsentID, req.OrgID)
		if err != nil {
			return err
		}
		if status := consent.Status(); status != models.StatusAuthorised {
			return fail(serviceerror.CustomServiceError(serviceerror.ConsentStateError,
				fmt.Sprintf("Consent %s is in status %s, only authorised consents can be re-authorised", req.ConsentID, status)))
		}

		if authID != "" {
			err = s.reAuthorizeExisting(ctx, tx, consent, authID, req)
		} else {
			authID, err = s.reAuthorizeWithNew(ctx, tx, consent, req)
		}
		if err != nil {
			return err
		}
		return s.touch(ctx, tx, consent, reasonReAuthorised, req.UserID)
	})
	if svcErr != nil {
		return nil, svcErr
	}

	s.logger.WithFields(logrus.Fields{
		"consent_id":       req.ConsentID,
		"authorization_id": authID,
		"new_resource":     req.AuthorizationID == "",
	}).Info("Consent re-authorised")

	return s.loadDetailed(ctx, nil, req.ConsentID, req.OrgID, false)
}

func (s *ConsentService) reAuthorizeExisting(ctx context.Context, tx *database.Transaction, consent *models.ConsentResource, authID string, req ReAuthorizeRequest) error {
	auth, err := s.authorizationOf(ctx, tx, consent, authID)
	if err != nil {
		return err
	}
	if auth.UserID != nil && *auth.UserID != req.UserID {
		return fail(serviceerror.WithStatus(serviceerror.ConsentMismatchError, 403,
			fmt.Sprintf("Authorization %s belongs to another user", authID)))
	}
	if err := s.syncMappings(ctx, tx, authID, consent.OrgID, req.Mappings); err != nil {
		return err
	}
	return s.auths.UpdateStatus(ctx, tx, authID, consent.OrgID, string(models.AuthStatusAuthorised), s.now().UnixMilli())
}

func (s *ConsentService) reAuthorizeWithNew(ctx context.Context, tx *database.Transaction, consent *models.ConsentResource, req ReAuthorizeRequest) (string, error) {
	auths, err := s.auths.GetByConsentID(ctx, tx, consent.ConsentID, consent.OrgID)
	if err != nil {
		return "", err
	}

	now := s.now().UnixMilli()
	var superseded []string
	for _, a := range auths {
		if a.UserID == nil || *a.UserID != req.UserID {
			continue
		}
		if err := s.auths.UpdateStatus(ctx, tx, a.AuthorizationID, consent.OrgID, string(models.AuthStatusRevoked), now); err != nil {
			return "", err
		}
		superseded = append(superseded, a.AuthorizationID)
	}
	if err := s.mappings.UpdateStatus(ctx, tx, superseded, consent.OrgID, models.MappingStatusInactive); err != nil {
		return "", err
	}

	authType := req.AuthorizationType
	if authType == "" {
		authType = authTypeReAuthorisation
	}
	userID := req.UserID
	auth := &models.AuthorizationResource{
		AuthorizationID:     utils.GenerateID(),
		ConsentID:           consent.ConsentID,
		AuthorizationType:   authType,
		UserID:              &userID,
		AuthorizationStatus: string(models.AuthStatusAuthorised),
		UpdatedTime:         now,
		OrgID:               consent.OrgID,
	}
	if err := s.auths.Create(ctx, tx, auth); err != nil {
		return "", err
	}
	return auth.AuthorizationID, s.grant(ctx, tx, auth.AuthorizationID, consent.OrgID, req.Mappings)
}

// authorizationOf reads an authorization that must belong to consent
func (s *ConsentService) authorizationOf(ctx context.Context, tx *database.Transaction, consent *models.ConsentResource, authID string) (*models.AuthorizationResource, error) {
	auth, err := s.auths.GetByID(ctx, tx, authID, consent.OrgID)
	if errors.Is(err, dao.ErrNotFound) || (err == nil && auth.ConsentID != consent.ConsentID) {
		return nil, fail(serviceerror.CustomServiceError(serviceerror.ResourceNotFoundError,
			fmt.Sprintf("authorization %s not found for consent %s", authID, consent.ConsentID)))
	}
	return auth, err
}

// grant adds an active mapping per requested account permission
func (s *ConsentService) grant(ctx context.Context, tx *database.Transaction, authID, orgID string, mappings []models.MappingRequest) error {
	for _, m := range mappings {
		mapping := &models.ConsentMappingResource{
			MappingID:       utils.GenerateID(),
			AuthorizationID: authID,
			AccountID:       m.AccountID,
			Permission:      m.Permission,
			MappingStatus:   models.MappingStatusActive,
			OrgID:           orgID,
		}
		if err := s.mappings.Create(ctx, tx, mapping); err != nil {
			return err
		}
	}
	return nil
}

// syncMappings brings the active mappings of an authorization in line with
// requested. Accounts no longer requested are deactivated and newly requested
// accounts are granted. Accounts present on both sides keep their mappings.
func (s *ConsentService) syncMappings(ctx context.Context, tx *database.Transaction, authID, orgID string, requested []models.MappingRequest) error {
	existing, err := s.mappings.GetByAuthorizationIDs(ctx, tx, []string{authID}, orgID)
	if err != nil {
		return err
	}

	wanted := make(map[string]struct{}, len(requested))
	for _, m := range requested {
		wanted[m.AccountID] = struct{}{}
	}
	held := make(map[string]struct{}, len(existing))
	var drop []string
	for _, m := range existing {
		if m.MappingStatus != models.MappingStatusActive {
			continue
		}
		held[m.AccountID] = struct{}{}
		if _, ok := wanted[m.AccountID]; !ok {
			drop = append(drop, m.MappingID)
		}
	}

	var add []models.MappingRequest
	for _, m := range requested {
		if _, ok := held[m.AccountID]; !ok {
			add = append(add, m)
		}
	}

	if err := s.mappings.UpdateStatusByIDs(ctx, tx, drop, orgID, models.MappingStatusInactive); err != nil {
		return err
	}
	return s.grant(ctx, tx, authID, orgID, add)
}

func checkMappings(mappings []models.MappingRequest) *serviceerror.ServiceError {
	for _, m := range mappings {
		if m.AccountID == "" || m.Permission == "" {
			return serviceerror.CustomServiceError(serviceerror.FieldMissingError, "account mappings need an accountId and a permission")
		}
	}
	return nil
}
