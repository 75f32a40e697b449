package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wso2/ob-consent-engine/internal/dao"
	"github.com/wso2/ob-consent-engine/internal/idempotency"
	"github.com/wso2/ob-consent-engine/internal/models"
	"github.com/wso2/ob-consent-engine/internal/serviceerror"
	"github.com/wso2/ob-consent-engine/internal/service/mocks"
)

const accountsReceipt = `{"Data":{"Permissions":["ReadAccountsDetail","ReadBalances"],"ExpirationDateTime":"2026-05-01T00:00:00Z"}}`

func createRequest(consentType, receipt string) CreateConsentRequest {
	return CreateConsentRequest{
		OrgID:    testOrg,
		ClientID: testClient,
		Body:     []byte(receipt),
		Payload: &models.ConsentCreateRequest{
			ConsentType: consentType,
			Receipt:     models.JSON(receipt),
		},
	}
}

func (ts *testSetup) expectCreate(status models.ConsentStatus) {
	ts.consents.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(c *models.ConsentResource) bool {
		return c.CurrentStatus == string(status)
	})).Return(nil).Once()
	ts.audits.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(a *models.ConsentStatusAuditRecord) bool {
		return a.CurrentStatus == string(status) && a.PreviousStatus == nil
	})).Return(nil).Once()
}

// TestCreate_StoresConsentWithConfiguredStatus tests the happy path of consent creation
func TestCreate_StoresConsentWithConfiguredStatus(t *testing.T) {
	ts := newTestSetup()
	ts.expectCreate(models.StatusAwaitingAuthorisation)
	req := createRequest("Accounts", accountsReceipt)
	req.Payload.ConsentAttributes = map[string]string{"purpose": "budgeting"}
	ts.attributes.On("Create", mock.Anything, mock.Anything, mock.AnythingOfType("string"), testOrg,
		map[string]string{"purpose": "budgeting"}).Return(nil).Once()

	consent, svcErr := ts.service.Create(context.Background(), req)

	require.Nil(t, svcErr)
	assert.Equal(t, string(models.StatusAwaitingAuthorisation), consent.CurrentStatus)
	assert.Equal(t, string(models.TypeAccounts), consent.ConsentType)
	assert.Equal(t, testClient, consent.ClientID)
	assert.Equal(t, testNow.UnixMilli(), consent.CreatedTime)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC).Unix(), consent.ValidityTime)
	assert.Empty(t, consent.AuthorizationResources)
	assert.NotNil(t, consent.ConsentMappingResources)
	assert.Equal(t, int64(1), ts.tx.Calls())
	ts.consents.AssertExpectations(t)
	ts.audits.AssertExpectations(t)
	ts.attributes.AssertExpectations(t)
}

// TestCreate_ImplicitAuthorization tests that implicit authorization adds a pending authorization
func TestCreate_ImplicitAuthorization(t *testing.T) {
	ts := newTestSetup()
	ts.service.opts.InitialStatus = models.StatusCreated
	ts.expectCreate(models.StatusAwaitingAuthorisation)
	ts.auths.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(a *models.AuthorizationResource) bool {
		return a.AuthorizationStatus == string(models.AuthStatusCreated) && a.AuthorizationType == "authorisation"
	})).Return(nil).Once()

	req := createRequest("accounts", accountsReceipt)
	implicit := true
	req.Payload.ImplicitAuthorization = &implicit

	consent, svcErr := ts.service.Create(context.Background(), req)

	require.Nil(t, svcErr)
	assert.Equal(t, string(models.StatusAwaitingAuthorisation), consent.CurrentStatus)
	require.Len(t, consent.AuthorizationResources, 1)
	assert.Equal(t, consent.ConsentID, consent.AuthorizationResources[0].ConsentID)
	ts.auths.AssertExpectations(t)
}

// TestCreate_WithoutImplicitAuthorizationUsesInitialStatus tests the configured initial status
func TestCreate_WithoutImplicitAuthorizationUsesInitialStatus(t *testing.T) {
	ts := newTestSetup()
	ts.service.opts.InitialStatus = models.StatusCreated
	ts.expectCreate(models.StatusCreated)

	consent, svcErr := ts.service.Create(context.Background(), createRequest("accounts", accountsReceipt))

	require.Nil(t, svcErr)
	assert.Equal(t, string(models.StatusCreated), consent.CurrentStatus)
}

// TestCreate_FilePaymentAwaitsUpload tests that file payments wait for their file
func TestCreate_FilePaymentAwaitsUpload(t *testing.T) {
	ts := newTestSetup()
	ts.expectCreate(models.StatusAwaitingUpload)
	receipt := `{"Data":{"Initiation":{"FileType":"UK.OBIE.pain.001.001.08","FileHash":"m5ah/h1UjLvJYMxqAoZmj9dKdjZnsGNm+yMkJp/KuqQ="}},"Risk":{}}`

	consent, svcErr := ts.service.Create(context.Background(), createRequest("payments", receipt))

	require.Nil(t, svcErr)
	assert.Equal(t, string(models.StatusAwaitingUpload), consent.CurrentStatus)
}

// TestCreate_RejectsInvalidRequests tests the request checks made before anything is stored
func TestCreate_RejectsInvalidRequests(t *testing.T) {
	zero := 0
	tests := []struct {
		name   string
		modify func(r *CreateConsentRequest)
		base   serviceerror.ServiceError
	}{
		{"missing org", func(r *CreateConsentRequest) { r.OrgID = "" }, serviceerror.ValidationError},
		{"missing client", func(r *CreateConsentRequest) { r.ClientID = "" }, serviceerror.FieldMissingError},
		{"unknown type", func(r *CreateConsentRequest) { r.Payload.ConsentType = "loans" }, serviceerror.ValidationError},
		{"zero frequency", func(r *CreateConsentRequest) { r.Payload.ConsentFrequency = &zero }, serviceerror.ValidationError},
		{"negative validity", func(r *CreateConsentRequest) { r.Payload.ValidityPeriod = -1 }, serviceerror.ValidationError},
		{"receipt not json", func(r *CreateConsentRequest) { r.Payload.Receipt = models.JSON("{") }, serviceerror.InvalidRequestError},
		{"reserved attribute", func(r *CreateConsentRequest) {
			r.Payload.ConsentAttributes = map[string]string{"idempotency.create.key": "x"}
		}, serviceerror.ValidationError},
		{"authorised status", func(r *CreateConsentRequest) { r.Payload.CurrentStatus = "authorised" }, serviceerror.ValidationError},
		{"terminal status", func(r *CreateConsentRequest) { r.Payload.CurrentStatus = "Revoked" }, serviceerror.ValidationError},
		{"authorised authorization", func(r *CreateConsentRequest) {
			r.Payload.AuthorizationResources = []models.AuthorizationCreateRequest{{AuthorizationStatus: "authorised"}}
		}, serviceerror.ValidationError},
		{"unsupported permission", func(r *CreateConsentRequest) {
			r.Payload.Receipt = models.JSON(`{"Data":{"Permissions":["ReadEverything"]}}`)
		}, serviceerror.FieldInvalidError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestSetup()
			req := createRequest("accounts", accountsReceipt)
			tt.modify(&req)

			consent, svcErr := ts.service.Create(context.Background(), req)

			assert.Nil(t, consent)
			require.NotNil(t, svcErr)
			assert.Equal(t, tt.base.Code, svcErr.Code)
			assert.Equal(t, int64(0), ts.tx.Calls())
		})
	}
}

// TestCreate_PaymentAfterCutOff tests that payment consents are refused once the cut-off passed
func TestCreate_PaymentAfterCutOff(t *testing.T) {
	ts := newTestSetup()
	ts.withCutOff(t, "REJECT", time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC))

	consent, svcErr := ts.service.Create(context.Background(), createRequest("payments", paymentReceipt("")))

	assert.Nil(t, consent)
	require.NotNil(t, svcErr)
	assert.True(t, svcErr.Matches(serviceerror.CutOffElapsedError))
	assert.Equal(t, int64(0), ts.tx.Calls())
}

// TestCreate_IdempotentReplay tests that a replayed key returns the stored consent
func TestCreate_IdempotentReplay(t *testing.T) {
	ts := newTestSetup()
	guard := &mocks.MockIdempotencyGuard{}
	ts.service.guard = guard

	stored := consentIn(testConsentID, models.TypeAccounts, models.StatusAwaitingAuthorisation, accountsReceipt)
	guard.On("Check", mock.Anything, mock.MatchedBy(func(r idempotency.Request) bool {
		return r.Key == "key-1" && r.Operation == idempotency.OperationCreate && r.ClientID == testClient
	})).Return(idempotency.Decision{Replay: true, ConsentID: testConsentID}, nil)
	ts.expectDetailed(stored, []models.AuthorizationResource{}, map[string]string{
		"purpose":                        "budgeting",
		"idempotency.create.key":         "key-1",
		"idempotency.create.fingerprint": "abc",
	})

	req := createRequest("accounts", accountsReceipt)
	req.IdempotencyKey = "key-1"
	consent, svcErr := ts.service.Create(context.Background(), req)

	require.Nil(t, svcErr)
	assert.Equal(t, testConsentID, consent.ConsentID)
	assert.Equal(t, map[string]string{"purpose": "budgeting"}, consent.ConsentAttributes)
	assert.Equal(t, []string{idempotency.OperationCreate}, ts.recorder.replays)
	assert.Equal(t, int64(0), ts.tx.Calls())
	ts.consents.AssertNumberOfCalls(t, "Create", 0)
}

// TestCreate_IdempotencyKeyReused tests that a key presented with another body is refused
func TestCreate_IdempotencyKeyReused(t *testing.T) {
	ts := newTestSetup()
	guard := &mocks.MockIdempotencyGuard{}
	ts.service.guard = guard
	guard.On("Check", mock.Anything, mock.Anything).Return(idempotency.Decision{}, idempotency.ErrKeyReused)

	req := createRequest("accounts", accountsReceipt)
	req.IdempotencyKey = "key-1"
	consent, svcErr := ts.service.Create(context.Background(), req)

	assert.Nil(t, consent)
	require.NotNil(t, svcErr)
	assert.True(t, svcErr.Matches(serviceerror.ValidationError))
}

// TestCreate_RecordsIdempotencyKey tests that a new key is recorded with the consent
func TestCreate_RecordsIdempotencyKey(t *testing.T) {
	ts := newTestSetup()
	guard := &mocks.MockIdempotencyGuard{}
	ts.service.guard = guard
	guard.On("Check", mock.Anything, mock.Anything).Return(idempotency.Decision{}, nil)
	guard.On("Record", mock.Anything, mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(r idempotency.Request) bool {
		return r.Key == "key-1"
	})).Return(nil).Once()
	ts.expectCreate(models.StatusAwaitingAuthorisation)

	req := createRequest("accounts", accountsReceipt)
	req.IdempotencyKey = "key-1"
	_, svcErr := ts.service.Create(context.Background(), req)

	require.Nil(t, svcErr)
	guard.AssertExpectations(t)
}

// TestCreate_ReplayAfterCutOff tests that a retried payment is replayed even after the cut-off passed
func TestCreate_ReplayAfterCutOff(t *testing.T) {
	ts := newTestSetup()
	ts.withCutOff(t, "REJECT", time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC))
	guard := &mocks.MockIdempotencyGuard{}
	ts.service.guard = guard
	guard.On("Check", mock.Anything, mock.Anything).
		Return(idempotency.Decision{Replay: true, ConsentID: testConsentID}, nil).Once()
	stored := consentIn(testConsentID, models.TypePayments, models.StatusAwaitingAuthorisation, paymentReceipt(testConsentID))
	ts.expectDetailed(stored, []models.AuthorizationResource{}, map[string]string{})

	req := createRequest("payments", paymentReceipt(""))
	req.IdempotencyKey = "key-1"
	consent, svcErr := ts.service.Create(context.Background(), req)

	require.Nil(t, svcErr)
	assert.Equal(t, testConsentID, consent.ConsentID)
	guard.AssertNumberOfCalls(t, "Check", 1)
	assert.Equal(t, int64(0), ts.tx.Calls())
}

// TestCreate_ReplayOfNoLongerValidRequest tests that a replay skips receipt validation
func TestCreate_ReplayOfNoLongerValidRequest(t *testing.T) {
	ts := newTestSetup()
	guard := &mocks.MockIdempotencyGuard{}
	ts.service.guard = guard
	guard.On("Check", mock.Anything, mock.Anything).
		Return(idempotency.Decision{Replay: true, ConsentID: testConsentID}, nil).Once()
	stored := consentIn(testConsentID, models.TypeAccounts, models.StatusAwaitingAuthorisation, accountsReceipt)
	ts.expectDetailed(stored, []models.AuthorizationResource{}, map[string]string{})

	req := createRequest("accounts", `{"Data":{"Permissions":[]}}`)
	req.IdempotencyKey = "key-1"
	consent, svcErr := ts.service.Create(context.Background(), req)

	require.Nil(t, svcErr)
	assert.Equal(t, testConsentID, consent.ConsentID)
}

// TestCreate_ConcurrentKeyClaimReplays tests that losing the key claim replays the winner's consent
func TestCreate_ConcurrentKeyClaimReplays(t *testing.T) {
	ts := newTestSetup()
	guard := &mocks.MockIdempotencyGuard{}
	ts.service.guard = guard
	guard.On("Check", mock.Anything, mock.Anything).Return(idempotency.Decision{}, nil).Once()
	guard.On("Record", mock.Anything, mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(idempotency.ErrKeyClaimed).Once()
	guard.On("Check", mock.Anything, mock.Anything).
		Return(idempotency.Decision{Replay: true, ConsentID: "winner"}, nil).Once()
	ts.expectCreate(models.StatusAwaitingAuthorisation)
	winner := consentIn("winner", models.TypeAccounts, models.StatusAwaitingAuthorisation, accountsReceipt)
	ts.expectDetailed(winner, []models.AuthorizationResource{}, map[string]string{})

	req := createRequest("accounts", accountsReceipt)
	req.IdempotencyKey = "key-1"
	consent, svcErr := ts.service.Create(context.Background(), req)

	require.Nil(t, svcErr)
	assert.Equal(t, "winner", consent.ConsentID)
	guard.AssertNumberOfCalls(t, "Check", 2)
	assert.Equal(t, []string{idempotency.OperationCreate}, ts.recorder.replays)
}

// TestCreate_StoreFailure tests that a failed insert is reported as a database error
func TestCreate_StoreFailure(t *testing.T) {
	ts := newTestSetup()
	ts.consents.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	consent, svcErr := ts.service.Create(context.Background(), createRequest("accounts", accountsReceipt))

	assert.Nil(t, consent)
	require.NotNil(t, svcErr)
	assert.True(t, svcErr.Matches(serviceerror.DatabaseError))
	assert.Equal(t, 500, svcErr.HTTPStatus())
}

// TestGetConsent_InvalidID tests that malformed consent ids are rejected
func TestGetConsent_InvalidID(t *testing.T) {
	ts := newTestSetup()

	consent, svcErr := ts.service.GetConsent(context.Background(), testOrg, "not-a-uuid", true, true)

	assert.Nil(t, consent)
	require.NotNil(t, svcErr)
	assert.True(t, svcErr.Matches(serviceerror.ValidationError))
}

// TestGetConsent_NotFound tests the not found mapping
func TestGetConsent_NotFound(t *testing.T) {
	ts := newTestSetup()
	ts.consents.On("GetByID", mock.Anything, mock.Anything, testConsentID, testOrg).Return(nil, dao.ErrNotFound)

	consent, svcErr := ts.service.GetConsent(context.Background(), testOrg, testConsentID, false, false)

	assert.Nil(t, consent)
	require.NotNil(t, svcErr)
	assert.Equal(t, 404, svcErr.HTTPStatus())
}

// TestGetConsent_Detailed tests that children are loaded with the consent
func TestGetConsent_Detailed(t *testing.T) {
	ts := newTestSetup()
	consent := consentIn(testConsentID, models.TypeAccounts, models.StatusAuthorised, accountsReceipt)
	ts.consents.On("GetByID", mock.Anything, mock.Anything, testConsentID, testOrg).Return(consent, nil)
	ts.auths.On("GetByConsentID", mock.Anything, mock.Anything, testConsentID, testOrg).
		Return([]models.AuthorizationResource{authorisedBy("user-1")}, nil)
	ts.mappings.On("GetByAuthorizationIDs", mock.Anything, mock.Anything, []string{testAuthID}, testOrg).
		Return([]models.ConsentMappingResource{{MappingID: "m1", AuthorizationID: testAuthID, AccountID: "acc-1", MappingStatus: "active"}}, nil)

	detailed, svcErr := ts.service.GetConsent(context.Background(), testOrg, testConsentID, true, false)

	require.Nil(t, svcErr)
	assert.Len(t, detailed.AuthorizationResources, 1)
	assert.Len(t, detailed.ConsentMappingResources, 1)
	assert.Nil(t, detailed.ConsentAttributes)
}

// TestSearchConsents_CanonicalisesFilter tests that status and type filters are canonicalised
func TestSearchConsents_CanonicalisesFilter(t *testing.T) {
	ts := newTestSetup()
	ts.consents.On("Search", mock.Anything, mock.MatchedBy(func(f models.ConsentSearchFilter) bool {
		return len(f.Statuses) == 1 && f.Statuses[0] == "Authorised" &&
			len(f.ConsentTypes) == 1 && f.ConsentTypes[0] == "accounts" && f.Limit == 20
	})).Return([]models.ConsentResource{*consentIn(testConsentID, models.TypeAccounts, models.StatusAuthorised, "")}, 1, nil)
	ts.auths.On("GetByConsentID", mock.Anything, mock.Anything, testConsentID, testOrg).Return([]models.AuthorizationResource{}, nil)

	resp, svcErr := ts.service.SearchConsents(context.Background(), models.ConsentSearchFilter{
		OrgID:        testOrg,
		Statuses:     []string{"AUTHORISED"},
		ConsentTypes: []string{"Account"},
	})

	require.Nil(t, svcErr)
	assert.Equal(t, 1, resp.Metadata.Total)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, testConsentID, resp.Data[0].ConsentID)
}

// TestSearchConsents_RejectsBadFilters tests the filter checks
func TestSearchConsents_RejectsBadFilters(t *testing.T) {
	ts := newTestSetup()

	_, svcErr := ts.service.SearchConsents(context.Background(), models.ConsentSearchFilter{OrgID: testOrg, Statuses: []string{"Pending"}})
	require.NotNil(t, svcErr)
	assert.True(t, svcErr.Matches(serviceerror.ValidationError))

	_, svcErr = ts.service.SearchConsents(context.Background(), models.ConsentSearchFilter{OrgID: testOrg, FromTime: 20, ToTime: 10})
	require.NotNil(t, svcErr)
	assert.True(t, svcErr.Matches(serviceerror.ValidationError))
}

// TestUpdateStatus_AppliesTransition tests a successful status update and its audit record
func TestUpdateStatus_AppliesTransition(t *testing.T) {
	ts := newTestSetup()
	consent := consentIn(testConsentID, models.TypeAccounts, models.StatusAwaitingAuthorisation, "")
	latest := testNow.UnixMilli() + 5

	ts.consents.On("GetForUpdate", mock.Anything, mock.Anything, testConsentID, testOrg).Return(consent, nil)
	ts.consents.On("UpdateStatus", mock.Anything, mock.Anything, testConsentID, testOrg,
		"AwaitingAuthorisation", "Authorised", testNow.UnixMilli()).Return(nil).Once()
	ts.audits.On("GetLatestActionTime", mock.Anything, mock.Anything, testConsentID, testOrg).Return(latest, nil)
	ts.audits.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(a *models.ConsentStatusAuditRecord) bool {
		return a.ActionTime == latest+1 && a.CurrentStatus == "Authorised" &&
			*a.PreviousStatus == "AwaitingAuthorisation" && *a.ActionBy == "user-1" && *a.Reason == "approved"
	})).Return(nil).Once()

	svcErr := ts.service.UpdateStatus(context.Background(), testOrg, testConsentID, "authorised", "approved", "user-1")

	require.Nil(t, svcErr)
	assert.Equal(t, []string{"AwaitingAuthorisation->Authorised"}, ts.recorder.transitions)
	ts.consents.AssertExpectations(t)
	ts.audits.AssertExpectations(t)
}

// TestUpdateStatus_Failures tests the error mapping of status updates
func TestUpdateStatus_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		current   models.ConsentStatus
		lockErr   error
		updateErr error
		base      serviceerror.ServiceError
	}{
		{name: "unknown status", status: "Pending", base: serviceerror.ValidationError},
		{name: "not found", status: "Authorised", lockErr: dao.ErrNotFound, base: serviceerror.ResourceNotFoundError},
		{name: "not in table", status: "Expired", current: models.StatusAwaitingAuthorisation, base: serviceerror.ConsentStateError},
		{name: "concurrent change", status: "Authorised", current: models.StatusAwaitingAuthorisation, updateErr: dao.ErrStatusConflict, base: serviceerror.ConsentStateError},
		{name: "database", status: "Authorised", current: models.StatusAwaitingAuthorisation, updateErr: errors.New("deadlock"), base: serviceerror.DatabaseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestSetup()
			if tt.lockErr != nil {
				ts.consents.On("GetForUpdate", mock.Anything, mock.Anything, testConsentID, testOrg).Return(nil, tt.lockErr)
			} else {
				ts.consents.On("GetForUpdate", mock.Anything, mock.Anything, testConsentID, testOrg).
					Return(consentIn(testConsentID, models.TypeAccounts, tt.current, ""), nil)
			}
			if tt.updateErr != nil {
				ts.consents.On("UpdateStatus", mock.Anything, mock.Anything, testConsentID, testOrg,
					mock.Anything, mock.Anything, mock.Anything).Return(tt.updateErr)
			}

			svcErr := ts.service.UpdateStatus(context.Background(), testOrg, testConsentID, tt.status, "", "")

			require.NotNil(t, svcErr)
			assert.True(t, svcErr.Matches(tt.base), "got %s", svcErr.Code)
			ts.audits.AssertNumberOfCalls(t, "Create", 0)
			assert.Empty(t, ts.recorder.transitions)
		})
	}
}

// TestUpdateStatusBulk_PartialFailure tests that each bulk item succeeds or fails on its own
func TestUpdateStatusBulk_PartialFailure(t *testing.T) {
	ts := newTestSetup()
	okID := testConsentID
	missingID := "0e3c1a4b-2d5f-4f6a-9b7c-8d9e0f1a2b3c"

	ts.consents.On("GetForUpdate", mock.Anything, mock.Anything, okID, testOrg).
		Return(consentIn(okID, models.TypeAccounts, models.StatusAuthorised, ""), nil)
	ts.consents.On("GetForUpdate", mock.Anything, mock.Anything, missingID, testOrg).Return(nil, dao.ErrNotFound)
	ts.expectTransition(okID, models.StatusAuthorised, models.StatusRevoked)

	results := ts.service.UpdateStatusBulk(context.Background(), testOrg, []models.StatusUpdateRequest{
		{ConsentID: okID, Status: "Revoked"},
		{ConsentID: missingID, Status: "Revoked"},
		{ConsentID: "bad", Status: "Revoked"},
	})

	require.Len(t, results, 3)
	assert.True(t, results[0].Updated)
	assert.Equal(t, okID, results[0].ConsentID)
	assert.False(t, results[1].Updated)
	assert.Equal(t, serviceerror.ResourceNotFound, results[1].ErrorCode)
	assert.False(t, results[2].Updated)
	assert.Equal(t, serviceerror.FieldInvalid, results[2].ErrorCode)
}

// TestRevoke_DeactivatesAuthorizationsAndMappings tests a revocation with a failing token revoker
func TestRevoke_DeactivatesAuthorizationsAndMappings(t *testing.T) {
	ts := newTestSetup()
	ts.consents.On("GetForUpdate", mock.Anything, mock.Anything, testConsentID, testOrg).
		Return(consentIn(testConsentID, models.TypeAccounts, models.StatusAuthorised, ""), nil)
	ts.expectTransition(testConsentID, models.StatusAuthorised, models.StatusRevoked)
	ts.auths.On("GetByConsentID", mock.Anything, mock.Anything, testConsentID, testOrg).
		Return([]models.AuthorizationResource{authorisedBy("user-1")}, nil)
	ts.auths.On("UpdateStatusByConsentID", mock.Anything, mock.Anything, testConsentID, testOrg, "revoked", testNow.UnixMilli()).
		Return(nil).Once()
	ts.mappings.On("UpdateStatus", mock.Anything, mock.Anything, []string{testAuthID}, testOrg, "inactive").Return(nil).Once()
	ts.revoker.On("RevokeTokens", mock.Anything, testConsentID, testOrg).Return(errors.New("identity server unavailable"))

	result, svcErr := ts.service.Revoke(context.Background(), testOrg, testConsentID, "", "user-1", true)

	require.Nil(t, svcErr)
	assert.True(t, result.Revoked)
	assert.False(t, result.TokensRevoked)
	assert.Equal(t, "identity server unavailable", result.TokenRevocationError)
	assert.Equal(t, []string{"Authorised->Revoked"}, ts.recorder.transitions)
	ts.auths.AssertExpectations(t)
	ts.mappings.AssertExpectations(t)
	ts.revoker.AssertExpectations(t)
}

// TestRevoke_WithoutTokenRevocation tests that tokens are left alone unless asked
func TestRevoke_WithoutTokenRevocation(t *testing.T) {
	ts := newTestSetup()
	ts.consents.On("GetForUpdate", mock.Anything, mock.Anything, testConsentID, testOrg).
		Return(consentIn(testConsentID, models.TypePayments, models.StatusAwaitingAuthorisation, ""), nil)
	ts.expectTransition(testConsentID, models.StatusAwaitingAuthorisation, models.StatusRevoked)
	ts.auths.On("GetByConsentID", mock.Anything, mock.Anything, testConsentID, testOrg).Return([]models.AuthorizationResource{}, nil)
	ts.auths.On("UpdateStatusByConsentID", mock.Anything, mock.Anything, testConsentID, testOrg, "revoked", mock.Anything).Return(nil)

	result, svcErr := ts.service.Revoke(context.Background(), testOrg, testConsentID, "customer request", "user-1", false)

	require.Nil(t, svcErr)
	assert.True(t, result.Revoked)
	assert.False(t, result.TokensRevoked)
	assert.Empty(t, result.TokenRevocationError)
	ts.revoker.AssertNumberOfCalls(t, "RevokeTokens", 0)
	ts.mappings.AssertNumberOfCalls(t, "UpdateStatus", 0)
}

// TestRevoke_FinishedConsents tests that revoked, rejected and expired consents cannot be revoked
func TestRevoke_FinishedConsents(t *testing.T) {
	for _, status := range []models.ConsentStatus{models.StatusRevoked, models.StatusRejected, models.StatusExpired} {
		t.Run(string(status), func(t *testing.T) {
			ts := newTestSetup()
			ts.consents.On("GetForUpdate", mock.Anything, mock.Anything, testConsentID, testOrg).
				Return(consentIn(testConsentID, models.TypeAccounts, status, ""), nil)

			result, svcErr := ts.service.Revoke(context.Background(), testOrg, testConsentID, "", "", true)

			assert.Nil(t, result)
			require.NotNil(t, svcErr)
			assert.True(t, svcErr.Matches(serviceerror.ConsentStateError))
			ts.consents.AssertNumberOfCalls(t, "UpdateStatus", 0)
			ts.audits.AssertNumberOfCalls(t, "Create", 0)
			ts.revoker.AssertNumberOfCalls(t, "RevokeTokens", 0)
		})
	}
}

func snapshotOf(t *testing.T, detailed models.DetailedConsentResource) models.JSON {
	t.Helper()
	data, err := json.Marshal(detailed)
	require.NoError(t, err)
	return models.JSON(data)
}

func decodeSnapshot(record *models.ConsentHistoryRecord) models.DetailedConsentResource {
	var detailed models.DetailedConsentResource
	_ = json.Unmarshal(record.HistoryData, &detailed)
	return detailed
}

// TestGetHistory_Detailed tests that each history entry carries the snapshot stored with it
func TestGetHistory_Detailed(t *testing.T) {
	ts := newTestSetup()
	ts.withHistory()
	current := consentIn(testConsentID, models.TypeAccounts, models.StatusRevoked, accountsReceipt)
	ts.consents.On("GetByID", mock.Anything, mock.Anything, testConsentID, testOrg).Return(current, nil)

	created := "AwaitingAuthorisation"
	authorised := "Authorised"
	ts.audits.On("GetByConsentID", mock.Anything, testConsentID, testOrg, mock.MatchedBy(func(f models.HistoryFilter) bool {
		return f.Detailed
	})).Return([]models.ConsentStatusAuditRecord{
		{StatusAuditID: "a1", ConsentID: testConsentID, CurrentStatus: "AwaitingAuthorisation", ActionTime: 100},
		{StatusAuditID: "a2", ConsentID: testConsentID, CurrentStatus: "Authorised", ActionTime: 200, PreviousStatus: &created},
		{StatusAuditID: "a3", ConsentID: testConsentID, CurrentStatus: "Revoked", ActionTime: 300, PreviousStatus: &authorised},
	}, nil)

	atCreation := models.DetailedConsentResource{
		ConsentResource:   *consentIn(testConsentID, models.TypeAccounts, models.StatusAwaitingAuthorisation, accountsReceipt),
		ConsentAttributes: map[string]string{"purpose": "budgeting"},
	}
	atAuthorisation := models.DetailedConsentResource{
		ConsentResource:        *consentIn(testConsentID, models.TypeAccounts, models.StatusAuthorised, accountsReceipt),
		ConsentAttributes:      map[string]string{"purpose": "tax"},
		AuthorizationResources: []models.AuthorizationResource{authorisedBy("user-1")},
		ConsentMappingResources: []models.ConsentMappingResource{
			{MappingID: "m1", AuthorizationID: testAuthID, AccountID: "acc-1", Permission: "ReadBalances", MappingStatus: "active"},
		},
	}
	atAuthorisation.ValidityTime = 1780000000
	ts.history.On("GetByConsentID", mock.Anything, testConsentID, testOrg).Return([]models.ConsentHistoryRecord{
		{HistoryID: "h1", ConsentID: testConsentID, StatusAuditID: "a1", HistoryData: snapshotOf(t, atCreation), EffectiveTime: 100},
		{HistoryID: "h2", ConsentID: testConsentID, StatusAuditID: "a2", HistoryData: snapshotOf(t, atAuthorisation), EffectiveTime: 200},
	}, nil)

	history, svcErr := ts.service.GetHistory(context.Background(), testOrg, testConsentID, models.HistoryFilter{Detailed: true})

	require.Nil(t, svcErr)
	require.Len(t, history, 3)
	require.NotNil(t, history[0].DetailedConsent)
	assert.Equal(t, "AwaitingAuthorisation", history[0].DetailedConsent.CurrentStatus)
	assert.Equal(t, map[string]string{"purpose": "budgeting"}, history[0].DetailedConsent.ConsentAttributes)
	assert.Empty(t, history[0].DetailedConsent.ConsentMappingResources)

	require.NotNil(t, history[1].DetailedConsent)
	assert.Equal(t, "Authorised", history[1].DetailedConsent.CurrentStatus)
	assert.Equal(t, int64(1780000000), history[1].DetailedConsent.ValidityTime)
	assert.Equal(t, map[string]string{"purpose": "tax"}, history[1].DetailedConsent.ConsentAttributes)
	require.Len(t, history[1].DetailedConsent.ConsentMappingResources, 1)
	assert.Equal(t, "acc-1", history[1].DetailedConsent.ConsentMappingResources[0].AccountID)

	assert.Nil(t, history[2].DetailedConsent)
}

// TestGetHistory_UnreadableSnapshot tests that a corrupt snapshot is a server error
func TestGetHistory_UnreadableSnapshot(t *testing.T) {
	ts := newTestSetup()
	ts.withHistory()
	ts.consents.On("GetByID", mock.Anything, mock.Anything, testConsentID, testOrg).
		Return(consentIn(testConsentID, models.TypeAccounts, models.StatusAuthorised, accountsReceipt), nil)
	ts.audits.On("GetByConsentID", mock.Anything, testConsentID, testOrg, mock.Anything).
		Return([]models.ConsentStatusAuditRecord{{StatusAuditID: "a1", ConsentID: testConsentID, CurrentStatus: "Authorised"}}, nil)
	ts.history.On("GetByConsentID", mock.Anything, testConsentID, testOrg).
		Return([]models.ConsentHistoryRecord{{HistoryID: "h1", StatusAuditID: "a1", HistoryData: models.JSON(`["not","a","consent"]`)}}, nil)

	history, svcErr := ts.service.GetHistory(context.Background(), testOrg, testConsentID, models.HistoryFilter{Detailed: true})

	assert.Nil(t, history)
	require.NotNil(t, svcErr)
	assert.True(t, svcErr.Matches(serviceerror.InternalServerError))
}

// TestGetHistory_NotDetailed tests that plain history never reads snapshots
func TestGetHistory_NotDetailed(t *testing.T) {
	ts := newTestSetup()
	ts.withHistory()
	ts.consents.On("GetByID", mock.Anything, mock.Anything, testConsentID, testOrg).
		Return(consentIn(testConsentID, models.TypeAccounts, models.StatusAuthorised, accountsReceipt), nil)
	ts.audits.On("GetByConsentID", mock.Anything, testConsentID, testOrg, mock.Anything).
		Return([]models.ConsentStatusAuditRecord{{StatusAuditID: "a1", ConsentID: testConsentID, CurrentStatus: "Authorised"}}, nil)

	history, svcErr := ts.service.GetHistory(context.Background(), testOrg, testConsentID, models.HistoryFilter{})

	require.Nil(t, svcErr)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].DetailedConsent)
	ts.history.AssertNumberOfCalls(t, "GetByConsentID", 0)
}

// TestGetHistory_MissingConsent tests that the history of an unknown consent is not found
func TestGetHistory_MissingConsent(t *testing.T) {
	ts := newTestSetup()
	ts.consents.On("GetByID", mock.Anything, mock.Anything, testConsentID, testOrg).Return(nil, dao.ErrNotFound)

	_, svcErr := ts.service.GetHistory(context.Background(), testOrg, testConsentID, models.HistoryFilter{Detailed: true})

	require.NotNil(t, svcErr)
	assert.True(t, svcErr.Matches(serviceerror.ResourceNotFoundError))
	ts.audits.AssertNumberOfCalls(t, "GetByConsentID", 0)
}

// TestCreate_StoresSnapshot tests that the first history snapshot is the created consent
func TestCreate_StoresSnapshot(t *testing.T) {
	ts := newTestSetup()
	ts.withHistory()
	ts.expectCreate(models.StatusAwaitingAuthorisation)
	var auditID string
	ts.audits.ExpectedCalls[len(ts.audits.ExpectedCalls)-1].Run(func(args mock.Arguments) {
		auditID = args.Get(2).(*models.ConsentStatusAuditRecord).StatusAuditID
	})
	var stored *models.ConsentHistoryRecord
	ts.history.On("Create", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(2).(*models.ConsentHistoryRecord)
	}).Return(nil).Once()

	consent, svcErr := ts.service.Create(context.Background(), createRequest("accounts", accountsReceipt))

	require.Nil(t, svcErr)
	require.NotNil(t, stored)
	assert.Equal(t, auditID, stored.StatusAuditID)
	assert.Equal(t, testNow.UnixMilli(), stored.EffectiveTime)
	snapshot := decodeSnapshot(stored)
	assert.Equal(t, consent.ConsentID, snapshot.ConsentID)
	assert.Equal(t, "AwaitingAuthorisation", snapshot.CurrentStatus)
	assert.JSONEq(t, accountsReceipt, string(snapshot.Receipt))
}

// TestRevoke_SnapshotShowsRevokedChildren tests that the revocation snapshot is taken after the mappings are deactivated
func TestRevoke_SnapshotShowsRevokedChildren(t *testing.T) {
	ts := newTestSetup()
	ts.withHistory()
	var order []string
	ts.consents.On("GetForUpdate", mock.Anything, mock.Anything, testConsentID, testOrg).
		Return(consentIn(testConsentID, models.TypeAccounts, models.StatusAuthorised, ""), nil)
	ts.expectTransition(testConsentID, models.StatusAuthorised, models.StatusRevoked)
	ts.auths.On("GetByConsentID", mock.Anything, mock.Anything, testConsentID, testOrg).
		Return([]models.AuthorizationResource{authorisedBy("user-1")}, nil)
	ts.auths.On("UpdateStatusByConsentID", mock.Anything, mock.Anything, testConsentID, testOrg, "revoked", testNow.UnixMilli()).
		Return(nil).Once()
	ts.mappings.On("UpdateStatus", mock.Anything, mock.Anything, []string{testAuthID}, testOrg, "inactive").
		Run(func(mock.Arguments) { order = append(order, "deactivate") }).Return(nil).Once()
	ts.mappings.On("GetByAuthorizationIDs", mock.Anything, mock.Anything, []string{testAuthID}, testOrg).
		Return([]models.ConsentMappingResource{{MappingID: "m1", AuthorizationID: testAuthID, AccountID: "acc-1", MappingStatus: "inactive"}}, nil)
	ts.attributes.On("GetByConsentID", mock.Anything, mock.Anything, testConsentID, testOrg).Return(map[string]string{}, nil)
	var stored *models.ConsentHistoryRecord
	ts.history.On("Create", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		order = append(order, "snapshot")
		stored = args.Get(2).(*models.ConsentHistoryRecord)
	}).Return(nil).Once()

	_, svcErr := ts.service.Revoke(context.Background(), testOrg, testConsentID, "", "user-1", false)

	require.Nil(t, svcErr)
	assert.Equal(t, []string{"deactivate", "snapshot"}, order)
	snapshot := decodeSnapshot(stored)
	assert.Equal(t, "Revoked", snapshot.CurrentStatus)
	assert.Equal(t, testNow.UnixMilli(), snapshot.UpdatedTime)
	require.Len(t, snapshot.ConsentMappingResources, 1)
	assert.Equal(t, "inactive", snapshot.ConsentMappingResources[0].MappingStatus)
}

// TestUpdateStatus_SnapshotFailureRollsBack tests that a failed snapshot fails the transition
func TestUpdateStatus_SnapshotFailureRollsBack(t *testing.T) {
	ts := newTestSetup()
	ts.withHistory()
	ts.consents.On("GetForUpdate", mock.Anything, mock.Anything, testConsentID, testOrg).
		Return(consentIn(testConsentID, models.TypeAccounts, models.StatusAwaitingAuthorisation, ""), nil)
	ts.expectTransition(testConsentID, models.StatusAwaitingAuthorisation, models.StatusRejected)
	ts.auths.On("GetByConsentID", mock.Anything, mock.Anything, testConsentID, testOrg).Return([]models.AuthorizationResource{}, nil)
	ts.attributes.On("GetByConsentID", mock.Anything, mock.Anything, testConsentID, testOrg).Return(map[string]string{}, nil)
	ts.history.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))

	svcErr := ts.service.UpdateStatus(context.Background(), testOrg, testConsentID, "Rejected", "", "user-1")

	require.NotNil(t, svcErr)
	assert.True(t, svcErr.Matches(serviceerror.DatabaseError))
	assert.Empty(t, ts.recorder.transitions)
}

// TestExpireConsents tests that only consents still authorised are expired
func TestExpireConsents(t *testing.T) {
	ts := newTestSetup()
	staleID := "0e3c1a4b-2d5f-4f6a-9b7c-8d9e0f1a2b3c"
	ts.consents.On("ListExpired", mock.Anything, "", "Authorised", testNow.Unix()).Return([]models.ConsentResource{
		*consentIn(testConsentID, models.TypeAccounts, models.StatusAuthorised, ""),
		*consentIn(staleID, models.TypeAccounts, models.StatusAuthorised, ""),
	}, nil)
	ts.consents.On("GetForUpdate", mock.Anything, mock.Anything, testConsentID, testOrg).
		Return(consentIn(testConsentID, models.TypeAccounts, models.StatusAuthorised, ""), nil)
	ts.consents.On("GetForUpdate", mock.Anything, mock.Anything, staleID, testOrg).
		Return(consentIn(staleID, models.TypeAccounts, models.StatusRevoked, ""), nil)
	ts.expectTransition(testConsentID, models.StatusAuthorised, models.StatusExpired)

	count, err := ts.service.ExpireConsents(context.Background(), "")

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"Authorised->Expired"}, ts.recorder.transitions)
	ts.consents.AssertExpectations(t)
}

// TestExpireConsents_ListFailure tests that a failed listing is returned
func TestExpireConsents_ListFailure(t *testing.T) {
	ts := newTestSetup()
	ts.consents.On("ListExpired", mock.Anything, testOrg, "Authorised", mock.Anything).Return(nil, errors.New("timeout"))

	count, err := ts.service.ExpireConsents(context.Background(), testOrg)

	assert.Error(t, err)
	assert.Zero(t, count)
}
