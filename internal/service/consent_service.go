package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wso2/ob-consent-engine/internal/config"
	"github.com/wso2/ob-consent-engine/internal/dao"
	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/idempotency"
	"github.com/wso2/ob-consent-engine/internal/models"
	"github.com/wso2/ob-consent-engine/internal/serviceerror"
	"github.com/wso2/ob-consent-engine/internal/validator"
	"github.com/wso2/ob-consent-engine/pkg/utils"
)

const (
	actionBySystem = "system"

	reasonCreated = "Consent created"
	reasonRevoked = "Consent revoked"
	reasonExpired = "Consent validity period elapsed"
	reasonCutOff  = "cut-off elapsed"
)

// Dependencies groups the collaborators of ConsentService. Limits, Revoker,
// Idempotency, History and Recorder are optional. Without History, detailed
// history entries carry no snapshot.
type Dependencies struct {
	Consents       ConsentStore
	Authorizations AuthResourceStore
	Mappings       MappingStore
	Audits         StatusAuditStore
	History        HistoryStore
	Attributes     AttributeStore
	Files          FileStore
	Tx             TxRunner
	Validator      *validator.CrossValidator
	CutOff         *CutOffPolicy
	Limits         PeriodicLimitChecker
	Idempotency    IdempotencyGuard
	Revoker        TokenRevoker
	Recorder       Recorder
}

// Options holds consent lifecycle settings
type Options struct {
	InitialStatus         models.ConsentStatus
	AuthType              string
	ImplicitAuthorization bool
	BulkConcurrency       int
}

// OptionsFromConfig converts the consent section of the configuration
func OptionsFromConfig(cfg config.ConsentConfig) (Options, error) {
	status, ok := models.NormalizeConsentStatus(cfg.InitialStatus)
	if !ok || status.IsTerminal() || status == models.StatusAuthorised {
		return Options{}, fmt.Errorf("invalid initial consent status %q", cfg.InitialStatus)
	}
	return Options{
		InitialStatus:         status,
		AuthType:              cfg.AuthType,
		ImplicitAuthorization: cfg.ImplicitAuthorization,
		BulkConcurrency:       cfg.BulkConcurrency,
	}, nil
}

// ConsentService handles the consent lifecycle
type ConsentService struct {
	consents   ConsentStore
	auths      AuthResourceStore
	mappings   MappingStore
	audits     StatusAuditStore
	history    HistoryStore
	attributes AttributeStore
	files      FileStore
	tx         TxRunner
	validator  *validator.CrossValidator
	cutOff     *CutOffPolicy
	limits     PeriodicLimitChecker
	guard      IdempotencyGuard
	revoker    TokenRevoker
	recorder   Recorder
	opts       Options
	logger     *logrus.Logger
	now        func() time.Time
}

// NewConsentService creates a new consent service instance
func NewConsentService(deps Dependencies, opts Options, logger *logrus.Logger) *ConsentService {
	if opts.InitialStatus == "" {
		opts.InitialStatus = models.StatusAwaitingAuthorisation
	}
	if opts.AuthType == "" {
		opts.AuthType = "authorisation"
	}
	if opts.BulkConcurrency <= 0 {
		opts.BulkConcurrency = 8
	}
	if deps.Validator == nil {
		deps.Validator = validator.New(validator.Config{})
	}
	var recorder Recorder = nopRecorder{}
	if deps.Recorder != nil {
		recorder = deps.Recorder
	}

	return &ConsentService{
		consents:   deps.Consents,
		auths:      deps.Authorizations,
		mappings:   deps.Mappings,
		audits:     deps.Audits,
		history:    deps.History,
		attributes: deps.Attributes,
		files:      deps.Files,
		tx:         deps.Tx,
		validator:  deps.Validator,
		cutOff:     deps.CutOff,
		limits:     deps.Limits,
		guard:      deps.Idempotency,
		revoker:    deps.Revoker,
		recorder:   recorder,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// abort carries a ServiceError out of a transaction closure
type abort struct {
	err *serviceerror.ServiceError
}

func (a *abort) Error() string { return a.err.ErrorDescription }

func fail(err *serviceerror.ServiceError) error { return &abort{err: err} }

// inTx runs fn in a transaction and converts its error into a ServiceError
func (s *ConsentService) inTx(ctx context.Context, operation string, fn func(tx *database.Transaction) error) *serviceerror.ServiceError {
	err := s.tx.WithTransaction(ctx, fn)
	if err == nil {
		return nil
	}
	var a *abort
	if errors.As(err, &a) {
		return a.err
	}
	s.logger.WithError(err).Errorf("Failed to %s", operation)
	return serviceerror.CustomServiceError(serviceerror.DatabaseError, "Failed to "+operation)
}

// storeError maps a DAO error to a ServiceError
func (s *ConsentService) storeError(err error, resource, id string) *serviceerror.ServiceError {
	if errors.Is(err, dao.ErrNotFound) {
		return serviceerror.CustomServiceError(serviceerror.ResourceNotFoundError, fmt.Sprintf("%s %s not found", resource, id))
	}
	s.logger.WithError(err).WithField("id", id).Errorf("Failed to read %s", resource)
	return serviceerror.CustomServiceError(serviceerror.DatabaseError, fmt.Sprintf("Failed to read %s", resource))
}

// checkIdempotency asks the guard whether req repeats an earlier request
func (s *ConsentService) checkIdempotency(ctx context.Context, req idempotency.Request) (idempotency.Decision, *serviceerror.ServiceError) {
	if s.guard == nil {
		return idempotency.Decision{}, nil
	}
	decision, err := s.guard.Check(ctx, req)
	if errors.Is(err, idempotency.ErrKeyReused) {
		return decision, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}
	if err != nil {
		s.logger.WithError(err).Error("Idempotency check failed")
		return decision, serviceerror.CustomServiceError(serviceerror.InternalServerError, "Failed to check the idempotency key")
	}
	return decision, nil
}

// recordIdempotency records req against consentID inside tx. A key taken by a
// concurrent request aborts the transaction with a conflict.
func (s *ConsentService) recordIdempotency(ctx context.Context, tx *database.Transaction, consentID string, req idempotency.Request) error {
	if s.guard == nil {
		return nil
	}
	err := s.guard.Record(ctx, tx, consentID, req)
	if errors.Is(err, idempotency.ErrKeyClaimed) {
		return fail(serviceerror.CustomServiceError(serviceerror.ConflictError, err.Error()))
	}
	return err
}

// replayCreate returns the consent created by an earlier request with the
// same idempotency key, or nil when req must run
func (s *ConsentService) replayCreate(ctx context.Context, req idempotency.Request) (*models.DetailedConsentResource, *serviceerror.ServiceError) {
	decision, svcErr := s.checkIdempotency(ctx, req)
	if svcErr != nil || !decision.Replay {
		return nil, svcErr
	}
	s.recorder.IdempotentReplay(idempotency.OperationCreate)
	s.logger.WithFields(logrus.Fields{
		"consent_id": decision.ConsentID,
		"org_id":     req.OrgID,
	}).Info("Replaying idempotent consent creation")
	return s.loadDetailed(ctx, nil, decision.ConsentID, req.OrgID, true)
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// CreateConsentRequest carries a consent creation call
type CreateConsentRequest struct {
	OrgID          string
	ClientID       string
	IdempotencyKey string
	// Body is the raw request body the idempotency fingerprint is taken from
	Body    []byte
	Payload *models.ConsentCreateRequest
}

// Create validates the receipt and stores a new consent with its
// authorizations, attributes and first audit record
func (s *ConsentService) Create(ctx context.Context, req CreateConsentRequest) (*models.DetailedConsentResource, *serviceerror.ServiceError) {
	p := req.Payload
	if p == nil {
		return nil, serviceerror.CustomServiceError(serviceerror.InvalidRequestError, "Request body is required")
	}
	if err := utils.ValidateOrgID(req.OrgID); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}
	clientID := req.ClientID
	if clientID == "" {
		clientID = p.ClientID
	}
	if err := utils.ValidateClientID(clientID); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.FieldMissingError, err.Error())
	}

	// a retry gets the original result even when the request would no longer validate
	idemReq := idempotency.Request{
		Key:       req.IdempotencyKey,
		Operation: idempotency.OperationCreate,
		OrgID:     req.OrgID,
		ClientID:  clientID,
		Body:      req.Body,
	}
	if replay, svcErr := s.replayCreate(ctx, idemReq); replay != nil || svcErr != nil {
		return replay, svcErr
	}

	consentType, ok := models.NormalizeConsentType(p.ConsentType)
	if !ok {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, fmt.Sprintf("Consent type %q is not supported", p.ConsentType))
	}
	if len(p.Receipt) == 0 || !json.Valid(p.Receipt) {
		return nil, serviceerror.CustomServiceError(serviceerror.InvalidRequestError, "Receipt must be a JSON document")
	}
	frequency := 0
	if p.ConsentFrequency != nil {
		if *p.ConsentFrequency < 1 {
			return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, "consentFrequency must be a positive integer")
		}
		frequency = *p.ConsentFrequency
	}
	if p.ValidityPeriod < 0 {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, "validityPeriod cannot be negative")
	}
	for key := range p.ConsentAttributes {
		if idempotency.IsRecordAttribute(key) {
			return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, fmt.Sprintf("Attribute key %q is reserved", key))
		}
	}

	if r := s.validator.ValidateInitiation(consentType, json.RawMessage(p.Receipt)); !r.Valid {
		return nil, r.ServiceError()
	}

	now := s.now()
	if consentType == models.TypePayments && s.cutOff.Evaluate(now) == CutOffReject {
		return nil, serviceerror.CustomServiceError(serviceerror.CutOffElapsedError,
			fmt.Sprintf("Payments are not accepted after the cut-off time %s", utils.FormatTime(s.cutOff.CutOffTime(now))))
	}

	implicit := s.opts.ImplicitAuthorization
	if p.ImplicitAuthorization != nil {
		implicit = *p.ImplicitAuthorization
	}

	consent := &models.ConsentResource{
		ConsentID:          utils.GenerateID(),
		Receipt:            p.Receipt,
		CreatedTime:        now.UnixMilli(),
		UpdatedTime:        now.UnixMilli(),
		ClientID:           clientID,
		ConsentType:        string(consentType),
		ConsentFrequency:   frequency,
		ValidityTime:       p.ValidityPeriod,
		RecurringIndicator: p.RecurringIndicator,
		OrgID:              req.OrgID,
	}
	if consent.ValidityTime == 0 {
		if expiry, ok := validator.ExpirationOf(json.RawMessage(p.Receipt)); ok {
			consent.ValidityTime = expiry.Unix()
		}
	}

	auths, svcErr := s.buildAuthorizations(consent, p.AuthorizationResources, implicit)
	if svcErr != nil {
		return nil, svcErr
	}
	status, svcErr := s.initialStatus(p, consentType, implicit, len(auths))
	if svcErr != nil {
		return nil, svcErr
	}
	consent.CurrentStatus = string(status)

	attributes := make(map[string]string, len(p.ConsentAttributes))
	for k, v := range p.ConsentAttributes {
		attributes[k] = v
	}

	svcErr = s.inTx(ctx, "create consent", func(tx *database.Transaction) error {
		if err := s.consents.Create(ctx, tx, consent); err != nil {
			return err
		}
		for i := range auths {
			if err := s.auths.Create(ctx, tx, &auths[i]); err != nil {
				return err
			}
		}
		if len(attributes) > 0 {
			if err := s.attributes.Create(ctx, tx, consent.ConsentID, consent.OrgID, attributes); err != nil {
				return err
			}
		}
		audit := &models.ConsentStatusAuditRecord{
			StatusAuditID: utils.GenerateID(),
			ConsentID:     consent.ConsentID,
			CurrentStatus: consent.CurrentStatus,
			ActionTime:    consent.CreatedTime,
			Reason:        optional(reasonCreated),
			ActionBy:      optional(clientID),
			OrgID:         consent.OrgID,
		}
		if err := s.audits.Create(ctx, tx, audit); err != nil {
			return err
		}
		created := &models.DetailedConsentResource{
			ConsentResource:         *consent,
			ConsentAttributes:       attributes,
			AuthorizationResources:  auths,
			ConsentMappingResources: []models.ConsentMappingResource{},
		}
		if err := s.snapshot(ctx, tx, created, audit); err != nil {
			return err
		}
		return s.recordIdempotency(ctx, tx, consent.ConsentID, idemReq)
	})
	if svcErr != nil {
		if svcErr.Kind == serviceerror.KindConflict && s.guard != nil {
			if replay, replayErr := s.replayCreate(ctx, idemReq); replay != nil || replayErr != nil {
				return replay, replayErr
			}
		}
		return nil, svcErr
	}

	s.logger.WithFields(logrus.Fields{
		"consent_id":   consent.ConsentID,
		"consent_type": consent.ConsentType,
		"status":       consent.CurrentStatus,
		"org_id":       consent.OrgID,
	}).Info("Consent created")

	return &models.DetailedConsentResource{
		ConsentResource:         *consent,
		ConsentAttributes:       attributes,
		AuthorizationResources:  auths,
		ConsentMappingResources: []models.ConsentMappingResource{},
	}, nil
}

func (s *ConsentService) buildAuthorizations(consent *models.ConsentResource, requests []models.AuthorizationCreateRequest, implicit bool) ([]models.AuthorizationResource, *serviceerror.ServiceError) {
	if implicit && len(requests) == 0 {
		requests = []models.AuthorizationCreateRequest{{AuthorizationType: s.opts.AuthType}}
	}

	auths := make([]models.AuthorizationResource, 0, len(requests))
	for _, r := range requests {
		status := models.AuthStatusCreated
		if r.AuthorizationStatus != "" {
			normalized, ok := models.NormalizeAuthorizationStatus(r.AuthorizationStatus)
			if !ok || normalized != models.AuthStatusCreated {
				return nil, serviceerror.CustomServiceError(serviceerror.ValidationError,
					fmt.Sprintf("Authorization status %q is not allowed when creating a consent", r.AuthorizationStatus))
			}
		}
		authType := r.AuthorizationType
		if authType == "" {
			authType = s.opts.AuthType
		}
		userID := r.UserID
		if userID != nil && *userID == "" {
			userID = nil
		}
		auths = append(auths, models.AuthorizationResource{
			AuthorizationID:     utils.GenerateID(),
			ConsentID:           consent.ConsentID,
			AuthorizationType:   authType,
			UserID:              userID,
			AuthorizationStatus: string(status),
			UpdatedTime:         consent.CreatedTime,
			OrgID:               consent.OrgID,
		})
	}
	return auths, nil
}

func (s *ConsentService) initialStatus(p *models.ConsentCreateRequest, consentType models.ConsentType, implicit bool, authCount int) (models.ConsentStatus, *serviceerror.ServiceError) {
	if p.CurrentStatus != "" {
		status, ok := models.NormalizeConsentStatus(p.CurrentStatus)
		if !ok || status.IsTerminal() || status == models.StatusAuthorised {
			return "", serviceerror.CustomServiceError(serviceerror.ValidationError,
				fmt.Sprintf("A consent cannot be created in status %q", p.CurrentStatus))
		}
		return status, nil
	}
	if consentType == models.TypePayments && validator.IsFilePayment(json.RawMessage(p.Receipt)) {
		return models.StatusAwaitingUpload, nil
	}
	if implicit && authCount > 0 {
		return models.StatusAwaitingAuthorisation, nil
	}
	return s.opts.InitialStatus, nil
}

// GetConsent returns a consent. With detailed, its authorizations and
// mappings are included.
func (s *ConsentService) GetConsent(ctx context.Context, orgID, consentID string, detailed, withAttributes bool) (*models.DetailedConsentResource, *serviceerror.ServiceError) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}
	if detailed {
		return s.loadDetailed(ctx, nil, consentID, orgID, withAttributes)
	}

	consent, err := s.consents.GetByID(ctx, nil, consentID, orgID)
	if err != nil {
		return nil, s.storeError(err, "consent", consentID)
	}
	resp := &models.DetailedConsentResource{ConsentResource: *consent}
	if withAttributes {
		attrs, svcErr := s.visibleAttributes(ctx, nil, consent)
		if svcErr != nil {
			return nil, svcErr
		}
		resp.ConsentAttributes = attrs
	}
	return resp, nil
}

func (s *ConsentService) loadDetailed(ctx context.Context, tx *database.Transaction, consentID, orgID string, withAttributes bool) (*models.DetailedConsentResource, *serviceerror.ServiceError) {
	consent, err := s.consents.GetByID(ctx, tx, consentID, orgID)
	if err != nil {
		return nil, s.storeError(err, "consent", consentID)
	}
	return s.withChildren(ctx, tx, consent, withAttributes)
}

func (s *ConsentService) withChildren(ctx context.Context, tx *database.Transaction, consent *models.ConsentResource, withAttributes bool) (*models.DetailedConsentResource, *serviceerror.ServiceError) {
	detailed := &models.DetailedConsentResource{
		ConsentResource:         *consent,
		AuthorizationResources:  []models.AuthorizationResource{},
		ConsentMappingResources: []models.ConsentMappingResource{},
	}

	auths, err := s.auths.GetByConsentID(ctx, tx, consent.ConsentID, consent.OrgID)
	if err != nil {
		return nil, s.storeError(err, "authorizations of consent", consent.ConsentID)
	}
	if len(auths) > 0 {
		detailed.AuthorizationResources = auths
		authIDs := make([]string, len(auths))
		for i, a := range auths {
			authIDs[i] = a.AuthorizationID
		}
		mappings, err := s.mappings.GetByAuthorizationIDs(ctx, tx, authIDs, consent.OrgID)
		if err != nil {
			return nil, s.storeError(err, "mappings of consent", consent.ConsentID)
		}
		if len(mappings) > 0 {
			detailed.ConsentMappingResources = mappings
		}
	}

	if withAttributes {
		attrs, svcErr := s.visibleAttributes(ctx, tx, consent)
		if svcErr != nil {
			return nil, svcErr
		}
		detailed.ConsentAttributes = attrs
	}
	return detailed, nil
}

// visibleAttributes returns the consent attributes without idempotency records
func (s *ConsentService) visibleAttributes(ctx context.Context, tx *database.Transaction, consent *models.ConsentResource) (map[string]string, *serviceerror.ServiceError) {
	stored, err := s.attributes.GetByConsentID(ctx, tx, consent.ConsentID, consent.OrgID)
	if err != nil {
		return nil, s.storeError(err, "attributes of consent", consent.ConsentID)
	}
	attrs := make(map[string]string, len(stored))
	for k, v := range stored {
		if !idempotency.IsRecordAttribute(k) {
			attrs[k] = v
		}
	}
	return attrs, nil
}

// SearchConsents returns a page of detailed consents matching filter
func (s *ConsentService) SearchConsents(ctx context.Context, filter models.ConsentSearchFilter) (*models.ConsentSearchResponse, *serviceerror.ServiceError) {
	if err := utils.ValidateOrgID(filter.OrgID); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}
	statuses, svcErr := canonicalStatuses(filter.Statuses)
	if svcErr != nil {
		return nil, svcErr
	}
	filter.Statuses = statuses
	for i, t := range filter.ConsentTypes {
		consentType, ok := models.NormalizeConsentType(t)
		if !ok {
			return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, fmt.Sprintf("Consent type %q is not supported", t))
		}
		filter.ConsentTypes[i] = string(consentType)
	}
	if filter.FromTime > 0 && filter.ToTime > 0 && filter.FromTime > filter.ToTime {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, "from must not be after to")
	}
	filter.Limit = utils.ValidateLimit(filter.Limit)
	filter.Offset = utils.ValidateOffset(filter.Offset)

	consents, total, err := s.consents.Search(ctx, filter)
	if err != nil {
		s.logger.WithError(err).Error("Failed to search consents")
		return nil, serviceerror.CustomServiceError(serviceerror.DatabaseError, "Failed to search consents")
	}

	data := make([]models.DetailedConsentResource, 0, len(consents))
	for i := range consents {
		detailed, svcErr := s.withChildren(ctx, nil, &consents[i], false)
		if svcErr != nil {
			return nil, svcErr
		}
		data = append(data, *detailed)
	}

	return &models.ConsentSearchResponse{
		Data: data,
		Metadata: models.PaginationMetadata{
			Total:  total,
			Limit:  filter.Limit,
			Offset: filter.Offset,
		},
	}, nil
}

func canonicalStatuses(statuses []string) ([]string, *serviceerror.ServiceError) {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		canonical, ok := models.NormalizeConsentStatus(status)
		if !ok {
			return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, fmt.Sprintf("Unknown consent status %q", status))
		}
		out = append(out, string(canonical))
	}
	return out, nil
}

// GetHistory returns the audit trail of a consent. With filter.Detailed each
// record carries the snapshot stored with it, the consent as it was right
// after that change.
func (s *ConsentService) GetHistory(ctx context.Context, orgID, consentID string, filter models.HistoryFilter) ([]models.ConsentHistoryEntry, *serviceerror.ServiceError) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}
	statuses, svcErr := canonicalStatuses(filter.Statuses)
	if svcErr != nil {
		return nil, svcErr
	}
	filter.Statuses = statuses

	if _, err := s.consents.GetByID(ctx, nil, consentID, orgID); err != nil {
		return nil, s.storeError(err, "consent", consentID)
	}

	records, err := s.audits.GetByConsentID(ctx, consentID, orgID, filter)
	if err != nil {
		s.logger.WithError(err).WithField("consent_id", consentID).Error("Failed to read consent history")
		return nil, serviceerror.CustomServiceError(serviceerror.DatabaseError, "Failed to read consent history")
	}

	var snapshots map[string]*models.DetailedConsentResource
	if filter.Detailed {
		if snapshots, svcErr = s.snapshots(ctx, consentID, orgID); svcErr != nil {
			return nil, svcErr
		}
	}

	history := make([]models.ConsentHistoryEntry, 0, len(records))
	for _, record := range records {
		history = append(history, models.ConsentHistoryEntry{
			ConsentStatusAuditRecord: record,
			DetailedConsent:          snapshots[record.StatusAuditID],
		})
	}
	return history, nil
}

// snapshots returns the stored snapshots of a consent keyed by audit ID
func (s *ConsentService) snapshots(ctx context.Context, consentID, orgID string) (map[string]*models.DetailedConsentResource, *serviceerror.ServiceError) {
	if s.history == nil {
		return nil, nil
	}
	records, err := s.history.GetByConsentID(ctx, consentID, orgID)
	if err != nil {
		s.logger.WithError(err).WithField("consent_id", consentID).Error("Failed to read consent snapshots")
		return nil, serviceerror.CustomServiceError(serviceerror.DatabaseError, "Failed to read consent history")
	}

	snapshots := make(map[string]*models.DetailedConsentResource, len(records))
	for _, record := range records {
		var detailed models.DetailedConsentResource
		if err := json.Unmarshal(record.HistoryData, &detailed); err != nil {
			s.logger.WithError(err).WithField("history_id", record.HistoryID).Error("Stored consent snapshot is not readable")
			return nil, serviceerror.CustomServiceError(serviceerror.InternalServerError, "Failed to read consent history")
		}
		snapshots[record.StatusAuditID] = &detailed
	}
	return snapshots, nil
}

// snapshot stores detailed as the state of the consent after audit. It is a
// no-op when no history store is configured.
func (s *ConsentService) snapshot(ctx context.Context, tx *database.Transaction, detailed *models.DetailedConsentResource, audit *models.ConsentStatusAuditRecord) error {
	if s.history == nil {
		return nil
	}
	data, err := json.Marshal(detailed)
	if err != nil {
		return fmt.Errorf("failed to encode consent snapshot: %w", err)
	}
	return s.history.Create(ctx, tx, &models.ConsentHistoryRecord{
		HistoryID:     utils.GenerateID(),
		ConsentID:     audit.ConsentID,
		StatusAuditID: audit.StatusAuditID,
		HistoryData:   models.JSON(data),
		Reason:        audit.Reason,
		EffectiveTime: audit.ActionTime,
		OrgID:         audit.OrgID,
	})
}

// lockConsent reads a consent with a row lock held until tx ends
func (s *ConsentService) lockConsent(ctx context.Context, tx *database.Transaction, consentID, orgID string) (*models.ConsentResource, error) {
	consent, err := s.consents.GetForUpdate(ctx, tx, consentID, orgID)
	if errors.Is(err, dao.ErrNotFound) {
		return nil, fail(serviceerror.CustomServiceError(serviceerror.ResourceNotFoundError, fmt.Sprintf("consent %s not found", consentID)))
	}
	return consent, err
}

// transition moves a locked consent to status `to` and appends an audit record.
// The update only applies while the stored status is still the one read.
func (s *ConsentService) transition(ctx context.Context, tx *database.Transaction, consent *models.ConsentResource, to models.ConsentStatus, reason, actionBy string) error {
	from := consent.Status()
	if from.IsTerminal() {
		return fail(serviceerror.CustomServiceError(serviceerror.ConsentStateError,
			fmt.Sprintf("Consent %s is in terminal status %s", consent.ConsentID, from)))
	}
	if !CanTransition(from, to) {
		return fail(serviceerror.CustomServiceError(serviceerror.ConsentStateError,
			fmt.Sprintf("Consent %s cannot move from %s to %s", consent.ConsentID, from, to)))
	}

	now := s.now().UnixMilli()
	if err := s.consents.UpdateStatus(ctx, tx, consent.ConsentID, consent.OrgID, consent.CurrentStatus, string(to), now); err != nil {
		if errors.Is(err, dao.ErrStatusConflict) {
			return fail(serviceerror.CustomServiceError(serviceerror.ConsentStateError,
				fmt.Sprintf("Consent %s was modified concurrently", consent.ConsentID)))
		}
		return err
	}

	consent.CurrentStatus = string(to)
	consent.UpdatedTime = now
	return s.recordChange(ctx, tx, consent, from, reason, actionBy, now)
}

// touch audits a change to a locked consent that keeps its status
func (s *ConsentService) touch(ctx context.Context, tx *database.Transaction, consent *models.ConsentResource, reason, actionBy string) error {
	from := consent.Status()
	now := s.now().UnixMilli()
	if err := s.consents.UpdateStatus(ctx, tx, consent.ConsentID, consent.OrgID, consent.CurrentStatus, consent.CurrentStatus, now); err != nil {
		if errors.Is(err, dao.ErrStatusConflict) {
			return fail(serviceerror.CustomServiceError(serviceerror.ConsentStateError,
				fmt.Sprintf("Consent %s was modified concurrently", consent.ConsentID)))
		}
		return err
	}
	consent.UpdatedTime = now
	return s.recordChange(ctx, tx, consent, from, reason, actionBy, now)
}

// recordChange appends the audit record of a change already applied to
// consent, followed by a snapshot of the consent as it now stands. Changes
// that keep the status are audited with the same previous and current status.
func (s *ConsentService) recordChange(ctx context.Context, tx *database.Transaction, consent *models.ConsentResource, from models.ConsentStatus, reason, actionBy string, now int64) error {
	latest, err := s.audits.GetLatestActionTime(ctx, tx, consent.ConsentID, consent.OrgID)
	if err != nil {
		return err
	}
	actionTime := now
	if actionTime <= latest {
		actionTime = latest + 1
	}

	previous := string(from)
	audit := &models.ConsentStatusAuditRecord{
		StatusAuditID:  utils.GenerateID(),
		ConsentID:      consent.ConsentID,
		CurrentStatus:  consent.CurrentStatus,
		ActionTime:     actionTime,
		Reason:         optional(reason),
		ActionBy:       optional(actionBy),
		PreviousStatus: &previous,
		OrgID:          consent.OrgID,
	}
	if err := s.audits.Create(ctx, tx, audit); err != nil {
		return err
	}

	if s.history == nil {
		return nil
	}
	detailed, svcErr := s.withChildren(ctx, tx, consent, true)
	if svcErr != nil {
		return fail(svcErr)
	}
	return s.snapshot(ctx, tx, detailed, audit)
}

// UpdateStatus applies a single status transition
func (s *ConsentService) UpdateStatus(ctx context.Context, orgID, consentID, status, reason, actionBy string) *serviceerror.ServiceError {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}
	to, ok := models.NormalizeConsentStatus(status)
	if !ok {
		return serviceerror.CustomServiceError(serviceerror.ValidationError, fmt.Sprintf("Unknown consent status %q", status))
	}

	var from models.ConsentStatus
	svcErr := s.inTx(ctx, "update consent status", func(tx *database.Transaction) error {
		consent, err := s.lockConsent(ctx, tx, consentID, orgID)
		if err != nil {
			return err
		}
		from = consent.Status()
		return s.transition(ctx, tx, consent, to, reason, actionBy)
	})
	if svcErr != nil {
		return svcErr
	}

	s.recorder.StatusTransition(string(from), string(to))
	s.logger.WithFields(logrus.Fields{
		"consent_id": consentID,
		"from":       from,
		"to":         to,
	}).Info("Consent status updated")
	return nil
}

// UpdateStatusBulk applies each update independently. A failed item does not
// affect the others.
func (s *ConsentService) UpdateStatusBulk(ctx context.Context, orgID string, updates []models.StatusUpdateRequest) []models.BulkStatusResult {
	results := make([]models.BulkStatusResult, len(updates))

	var g errgroup.Group
	g.SetLimit(s.opts.BulkConcurrency)
	for i, update := range updates {
		g.Go(func() error {
			result := models.BulkStatusResult{ConsentID: update.ConsentID}
			if svcErr := s.UpdateStatus(ctx, orgID, update.ConsentID, update.Status, update.Reason, update.UserID); svcErr != nil {
				result.ErrorCode = svcErr.Code
				result.Message = svcErr.ErrorDescription
			} else {
				result.Updated = true
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Revoke moves a consent to Revoked, deactivates its mappings and, when
// revokeTokens is set, asks the token revoker to revoke its access tokens.
// A token revocation failure is reported in the result but does not undo
// the status change.
func (s *ConsentService) Revoke(ctx context.Context, orgID, consentID, reason, actionBy string, revokeTokens bool) (*models.RevokeResult, *serviceerror.ServiceError) {
	if err := utils.ValidateConsentID(consentID); err != nil {
		return nil, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error())
	}
	if reason == "" {
		reason = reasonRevoked
	}

	var from models.ConsentStatus
	svcErr := s.inTx(ctx, "revoke consent", func(tx *database.Transaction) error {
		consent, err := s.lockConsent(ctx, tx, consentID, orgID)
		if err != nil {
			return err
		}
		from = consent.Status()
		if from == models.StatusRevoked || from == models.StatusRejected {
			return fail(serviceerror.CustomServiceError(serviceerror.ConsentStateError,
				fmt.Sprintf("Consent %s is already %s", consentID, from)))
		}
		if from.IsTerminal() {
			return fail(serviceerror.CustomServiceError(serviceerror.ConsentStateError,
				fmt.Sprintf("Consent %s is in terminal status %s", consentID, from)))
		}
		if err := s.revokeChildren(ctx, tx, consent); err != nil {
			return err
		}
		return s.transition(ctx, tx, consent, models.StatusRevoked, reason, actionBy)
	})
	if svcErr != nil {
		return nil, svcErr
	}
	s.recorder.StatusTransition(string(from), string(models.StatusRevoked))

	result := &models.RevokeResult{ConsentID: consentID, Revoked: true}
	if revokeTokens && s.revoker != nil {
		if err := s.revoker.RevokeTokens(ctx, consentID, orgID); err != nil {
			s.logger.WithError(err).WithField("consent_id", consentID).Warn("Consent revoked but token revocation failed")
			result.TokenRevocationError = err.Error()
		} else {
			result.TokensRevoked = true
		}
	}

	s.logger.WithFields(logrus.Fields{
		"consent_id":     consentID,
		"org_id":         orgID,
		"tokens_revoked": result.TokensRevoked,
	}).Info("Consent revoked")
	return result, nil
}

// revokeChildren revokes the authorizations of a consent and deactivates
// their mappings
func (s *ConsentService) revokeChildren(ctx context.Context, tx *database.Transaction, consent *models.ConsentResource) error {
	auths, err := s.auths.GetByConsentID(ctx, tx, consent.ConsentID, consent.OrgID)
	if err != nil {
		return err
	}
	if len(auths) == 0 {
		return nil
	}
	if err := s.auths.UpdateStatusByConsentID(ctx, tx, consent.ConsentID, consent.OrgID, string(models.AuthStatusRevoked), s.now().UnixMilli()); err != nil {
		return err
	}
	authIDs := make([]string, len(auths))
	for i, a := range auths {
		authIDs[i] = a.AuthorizationID
	}
	return s.mappings.UpdateStatus(ctx, tx, authIDs, consent.OrgID, models.MappingStatusInactive)
}

// ExpireConsents moves authorised consents whose validity time has passed to
// Expired. An empty orgID covers every organization. It returns the number of
// consents expired.
func (s *ConsentService) ExpireConsents(ctx context.Context, orgID string) (int, error) {
	candidates, err := s.consents.ListExpired(ctx, orgID, string(models.StatusAuthorised), s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired consents: %w", err)
	}

	expired := 0
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return expired, err
		}

		moved := false
		svcErr := s.inTx(ctx, "expire consent", func(tx *database.Transaction) error {
			consent, err := s.lockConsent(ctx, tx, candidate.ConsentID, candidate.OrgID)
			if err != nil {
				return err
			}
			if consent.Status() != models.StatusAuthorised {
				return nil
			}
			if err := s.transition(ctx, tx, consent, models.StatusExpired, reasonExpired, actionBySystem); err != nil {
				return err
			}
			moved = true
			return nil
		})
		if svcErr != nil {
			s.logger.WithField("consent_id", candidate.ConsentID).Warnf("Failed to expire consent: %s", svcErr.ErrorDescription)
			continue
		}
		if moved {
			expired++
			s.recorder.StatusTransition(string(models.StatusAuthorised), string(models.StatusExpired))
		}
	}

	if expired > 0 {
		s.logger.WithField("count", expired).Info("Expired consents")
	}
	return expired, nil
}
