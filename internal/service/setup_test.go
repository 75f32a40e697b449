package service

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wso2/ob-consent-engine/internal/config"
	"github.com/wso2/ob-consent-engine/internal/models"
	"github.com/wso2/ob-consent-engine/internal/service/mocks"
	"github.com/wso2/ob-consent-engine/internal/validator"
)

const (
	testOrg       = "org1"
	testClient    = "client-1"
	testConsentID = "6f0b7c1e-8a57-4c5e-9b61-2f8b0f1d9a10"
	testAuthID    = "b9a7e0d4-1c2f-4e5a-8b6d-7f8e9a0b1c2d"
)

var testNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

// recordingRecorder keeps the outcomes the service reports
type recordingRecorder struct {
	mu          sync.Mutex
	transitions []string
	validations []string
	replays     []string
}

func (r *recordingRecorder) StatusTransition(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, from+"->"+to)
}

func (r *recordingRecorder) ValidationResult(consentType string, valid bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := "invalid"
	if valid {
		result = "valid"
	}
	r.validations = append(r.validations, consentType+":"+result)
}

func (r *recordingRecorder) IdempotentReplay(operation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replays = append(r.replays, operation)
}

type testSetup struct {
	consents   *mocks.MockConsentDAO
	auths      *mocks.MockAuthResourceDAO
	mappings   *mocks.MockMappingDAO
	audits     *mocks.MockStatusAuditDAO
	history    *mocks.MockHistoryDAO
	attributes *mocks.MockAttributeDAO
	files      *mocks.MockFileDAO
	tx         *mocks.TxRunner
	revoker    *mocks.MockTokenRevoker
	recorder   *recordingRecorder
	service    *ConsentService
}

func newTestSetup() *testSetup {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	ts := &testSetup{
		consents:   &mocks.MockConsentDAO{},
		auths:      &mocks.MockAuthResourceDAO{},
		mappings:   &mocks.MockMappingDAO{},
		audits:     &mocks.MockStatusAuditDAO{},
		attributes: &mocks.MockAttributeDAO{},
		files:      &mocks.MockFileDAO{},
		tx:         &mocks.TxRunner{},
		revoker:    &mocks.MockTokenRevoker{},
		recorder:   &recordingRecorder{},
	}
	ts.service = NewConsentService(Dependencies{
		Consents:       ts.consents,
		Authorizations: ts.auths,
		Mappings:       ts.mappings,
		Audits:         ts.audits,
		Attributes:     ts.attributes,
		Files:          ts.files,
		Tx:             ts.tx,
		Validator: validator.New(validator.Config{
			MaxInstructedAmount: 1000,
			Now:                 func() time.Time { return testNow },
		}),
		Revoker:  ts.revoker,
		Recorder: ts.recorder,
	}, Options{BulkConcurrency: 2}, logger)
	ts.service.now = func() time.Time { return testNow }
	return ts
}

// withCutOff switches on a cut-off policy evaluated at now
func (ts *testSetup) withCutOff(t *testing.T, policy string, now time.Time) {
	t.Helper()
	cutOff, err := NewCutOffPolicy(config.CutOffConfig{Enabled: true, Policy: policy, DailyCutOffTime: "15:00:00+00:00", Zone: "UTC"})
	require.NoError(t, err)
	cutOff.now = func() time.Time { return now }
	ts.service.cutOff = cutOff
	ts.service.now = func() time.Time { return now }
}

// withHistory switches on snapshot storage
func (ts *testSetup) withHistory() {
	ts.history = &mocks.MockHistoryDAO{}
	ts.service.history = ts.history
}

// expectTouch expects an audited change that keeps the consent status
func (ts *testSetup) expectTouch(consentID string, status models.ConsentStatus, reason string) {
	ts.consents.On("UpdateStatus", mock.Anything, mock.Anything, consentID, testOrg, string(status), string(status), testNow.UnixMilli()).
		Return(nil).Once()
	ts.audits.On("GetLatestActionTime", mock.Anything, mock.Anything, consentID, testOrg).
		Return(int64(0), nil).Once()
	ts.audits.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(a *models.ConsentStatusAuditRecord) bool {
		return a.ConsentID == consentID && a.CurrentStatus == string(status) &&
			a.PreviousStatus != nil && *a.PreviousStatus == string(status) &&
			a.Reason != nil && *a.Reason == reason
	})).Return(nil).Once()
}

// expectTransition expects one conditional status update with its audit record
func (ts *testSetup) expectTransition(consentID string, from, to models.ConsentStatus) {
	ts.consents.On("UpdateStatus", mock.Anything, mock.Anything, consentID, testOrg, string(from), string(to), mock.AnythingOfType("int64")).
		Return(nil).Once()
	ts.audits.On("GetLatestActionTime", mock.Anything, mock.Anything, consentID, testOrg).
		Return(int64(0), nil).Once()
	ts.audits.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(a *models.ConsentStatusAuditRecord) bool {
		return a.ConsentID == consentID && a.CurrentStatus == string(to) &&
			a.PreviousStatus != nil && *a.PreviousStatus == string(from)
	})).Return(nil).Once()
}

// expectDetailed expects the reads that assemble a detailed consent
func (ts *testSetup) expectDetailed(consent *models.ConsentResource, auths []models.AuthorizationResource, attributes map[string]string) {
	ts.consents.On("GetByID", mock.Anything, mock.Anything, consent.ConsentID, testOrg).Return(consent, nil)
	ts.auths.On("GetByConsentID", mock.Anything, mock.Anything, consent.ConsentID, testOrg).Return(auths, nil)
	if len(auths) > 0 {
		ts.mappings.On("GetByAuthorizationIDs", mock.Anything, mock.Anything, mock.Anything, testOrg).
			Return([]models.ConsentMappingResource{}, nil)
	}
	if attributes != nil {
		ts.attributes.On("GetByConsentID", mock.Anything, mock.Anything, consent.ConsentID, testOrg).Return(attributes, nil)
	}
}

func consentIn(id string, consentType models.ConsentType, status models.ConsentStatus, receipt string) *models.ConsentResource {
	if receipt == "" {
		receipt = `{"Data":{}}`
	}
	return &models.ConsentResource{
		ConsentID:     id,
		Receipt:       models.JSON(receipt),
		CreatedTime:   testNow.Add(-time.Hour).UnixMilli(),
		UpdatedTime:   testNow.Add(-time.Hour).UnixMilli(),
		ClientID:      testClient,
		ConsentType:   string(consentType),
		CurrentStatus: string(status),
		OrgID:         testOrg,
	}
}

func authorisedBy(userID string) models.AuthorizationResource {
	return models.AuthorizationResource{
		AuthorizationID:     testAuthID,
		ConsentID:           testConsentID,
		AuthorizationType:   "authorisation",
		UserID:              &userID,
		AuthorizationStatus: string(models.AuthStatusAuthorised),
		OrgID:               testOrg,
	}
}

const (
	creditor      = `"CreditorAccount":{"SchemeName":"SortCodeAccountNumber","Identification":"08080021325698","Name":"ACME Inc"}`
	paymentFields = `"InstructionIdentification":"ACME412","EndToEndIdentification":"FRESCO.21302.GFX.20",` +
		`"InstructedAmount":{"Amount":"165.88","Currency":"GBP"},"LocalInstrument":"OB.FPS",` + creditor
)

func paymentReceipt(consentID string) string {
	data := `"Initiation":{` + paymentFields + `}`
	if consentID != "" {
		data = `"ConsentId":"` + consentID + `",` + data
	}
	return `{"Data":{` + data + `},"Risk":{}}`
}
