package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wso2/ob-consent-engine/internal/middleware"
	"github.com/wso2/ob-consent-engine/internal/models"
	"github.com/wso2/ob-consent-engine/internal/service"
	"github.com/wso2/ob-consent-engine/internal/serviceerror"
	"github.com/wso2/ob-consent-engine/internal/session"
)

const (
	testOrg       = "org1"
	testClient    = "client-1"
	testConsentID = "6f0b7c1e-8a57-4c5e-9b61-2f8b0f1d9a10"
)

type testEnv struct {
	router   *gin.Engine
	consents *mockConsentAPI
	bridge   *mockBridge
}

func setupTestEnv() *testEnv {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := &testEnv{consents: &mockConsentAPI{}, bridge: &mockBridge{}}
	consentHandler := NewConsentHandler(env.consents, "")
	authHandler := NewAuthResourceHandler(env.consents)
	sessionHandler := NewSessionHandler(env.bridge, logger)

	r := gin.New()
	r.Use(middleware.CorrelationID(), middleware.RequestIdentity())
	v1 := r.Group("/api/v1")
	v1.POST("/consents", consentHandler.CreateConsent)
	v1.GET("/consents", consentHandler.SearchConsents)
	v1.PUT("/consents/status", consentHandler.UpdateStatusBulk)
	v1.PUT("/consents/revoke-existing", consentHandler.RevokeExisting)
	v1.GET("/consents/:consentId", consentHandler.GetConsent)
	v1.PUT("/consents/:consentId", consentHandler.AmendConsent)
	v1.DELETE("/consents/:consentId", consentHandler.DeleteConsent)
	v1.PUT("/consents/:consentId/status", consentHandler.UpdateStatus)
	v1.PUT("/consents/:consentId/revoke", consentHandler.RevokeConsent)
	v1.GET("/consents/:consentId/history", consentHandler.GetHistory)
	v1.POST("/consents/:consentId/validate", consentHandler.ValidateSubmission)
	v1.POST("/consents/:consentId/file", consentHandler.UploadFile)
	v1.GET("/consents/:consentId/file", consentHandler.GetFile)
	v1.PUT("/consents/:consentId/authorizations/:authorizationId", authHandler.Authorize)
	v1.POST("/consents/:consentId/reauthorize", authHandler.ReAuthorize)
	v1.GET("/authorizations/:authorizationId", authHandler.GetAuthorization)
	v1.PUT("/sessions/:sessionKey", sessionHandler.StoreSession)
	v1.GET("/sessions/:sessionKey", sessionHandler.GetSession)
	env.router = r
	return env
}

func (e *testEnv) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("org-id", testOrg)
	req.Header.Set("client-id", testClient)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 1)
	return resp
}

// TestCreateConsent tests that a consent is created from the request body,
// headers and idempotency key
func TestCreateConsent(t *testing.T) {
	env := setupTestEnv()
	body := []byte(`{"consentType":"accounts","receipt":{"Data":{"Permissions":["ReadAccountsBasic"]}}}`)

	env.consents.On("Create", mock.Anything, mock.MatchedBy(func(req service.CreateConsentRequest) bool {
		return req.OrgID == testOrg &&
			req.ClientID == testClient &&
			req.IdempotencyKey == "key-1" &&
			bytes.Equal(req.Body, body) &&
			req.Payload.ConsentType == "accounts"
	})).Return(&models.DetailedConsentResource{
		ConsentResource: models.ConsentResource{ConsentID: testConsentID, CurrentStatus: "AwaitingAuthorisation"},
	}, nil)

	w := env.do(http.MethodPost, "/api/v1/consents", body, map[string]string{"x-idempotency-key": "key-1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), testConsentID)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
	env.consents.AssertExpectations(t)
}

// TestCreateConsent_InvalidBody tests that binding failures are reported in the error envelope
func TestCreateConsent_InvalidBody(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		errorCode string
	}{
		{name: "missing consent type", body: `{"receipt":{"Data":{}}}`, errorCode: serviceerror.FieldMissing},
		{name: "missing receipt", body: `{"consentType":"accounts"}`, errorCode: serviceerror.FieldMissing},
		{name: "malformed json", body: `{"consentType":`, errorCode: serviceerror.InvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv()
			w := env.do(http.MethodPost, "/api/v1/consents", []byte(tt.body), nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, "400", resp.Code)
			assert.Equal(t, "Bad Request", resp.Message)
			assert.Equal(t, tt.errorCode, resp.Errors[0].ErrorCode)
			env.consents.AssertNumberOfCalls(t, "Create", 0)
		})
	}
}

// TestGetConsent_NotFound tests that service errors keep their status and code
func TestGetConsent_NotFound(t *testing.T) {
	env := setupTestEnv()
	env.consents.On("GetConsent", mock.Anything, testOrg, testConsentID, true, true).
		Return(nil, serviceerror.CustomServiceError(serviceerror.ResourceNotFoundError, "consent not found"))

	w := env.do(http.MethodGet, "/api/v1/consents/"+testConsentID+"?withAttributes=true", nil, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "404", resp.Code)
	assert.Equal(t, serviceerror.ResourceNotFound, resp.Errors[0].ErrorCode)
	assert.Equal(t, "consent not found", resp.Errors[0].Message)
}

// TestGetConsent_OrgFromQuery tests that the orgId query parameter wins over the header
func TestGetConsent_OrgFromQuery(t *testing.T) {
	env := setupTestEnv()
	env.consents.On("GetConsent", mock.Anything, "org2", testConsentID, false, false).
		Return(&models.DetailedConsentResource{ConsentResource: models.ConsentResource{ConsentID: testConsentID}}, nil)

	w := env.do(http.MethodGet, "/api/v1/consents/"+testConsentID+"?orgId=org2&detailed=false", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	env.consents.AssertExpectations(t)
}

// TestSearchConsents tests that list and time filters are parsed from the query
func TestSearchConsents(t *testing.T) {
	env := setupTestEnv()
	env.consents.On("SearchConsents", mock.Anything, models.ConsentSearchFilter{
		OrgID:        testOrg,
		ConsentTypes: []string{"accounts", "payments"},
		Statuses:     []string{"Authorised"},
		FromTime:     1700000000000,
		ToTime:       1700000500000,
		Limit:        5,
		Offset:       10,
	}).Return(&models.ConsentSearchResponse{Data: []models.DetailedConsentResource{}}, nil)

	w := env.do(http.MethodGet, "/api/v1/consents?type=accounts,payments&status=Authorised&from=1700000000&to=1700000500000&limit=5&offset=10", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	env.consents.AssertExpectations(t)
}

// TestSearchConsents_BadQuery tests that malformed query values are rejected
func TestSearchConsents_BadQuery(t *testing.T) {
	for _, query := range []string{"limit=ten", "from=yesterday", "to=-5"} {
		t.Run(query, func(t *testing.T) {
			env := setupTestEnv()
			w := env.do(http.MethodGet, "/api/v1/consents?"+query, nil, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			env.consents.AssertNumberOfCalls(t, "SearchConsents", 0)
		})
	}
}

// TestUpdateStatus tests that a single status update answers "Status Updated"
func TestUpdateStatus(t *testing.T) {
	env := setupTestEnv()
	env.consents.On("UpdateStatus", mock.Anything, testOrg, testConsentID, "Authorised", "user ok", "user-1").Return(nil)

	w := env.do(http.MethodPut, "/api/v1/consents/"+testConsentID+"/status",
		[]byte(`{"status":"Authorised","reason":"user ok","userId":"user-1"}`), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `"Status Updated"`, w.Body.String())
}

// TestUpdateStatus_InvalidTransition tests that a refused transition is a 400
func TestUpdateStatus_InvalidTransition(t *testing.T) {
	env := setupTestEnv()
	env.consents.On("UpdateStatus", mock.Anything, testOrg, testConsentID, "Authorised", "", "").
		Return(serviceerror.CustomServiceError(serviceerror.ConsentStateError, "Consent is in terminal status Revoked"))

	w := env.do(http.MethodPut, "/api/v1/consents/"+testConsentID+"/status", []byte(`{"status":"Authorised"}`), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, serviceerror.InvalidConsentStatus, decodeError(t, w).Errors[0].ErrorCode)
}

// TestUpdateStatusBulk tests the response status for each mix of item outcomes
func TestUpdateStatusBulk(t *testing.T) {
	ok := models.BulkStatusResult{ConsentID: "a", Updated: true}
	failed := models.BulkStatusResult{ConsentID: "b", ErrorCode: serviceerror.InvalidConsentStatus, Message: "terminal"}

	tests := []struct {
		name     string
		results  []models.BulkStatusResult
		expected int
	}{
		{name: "all updated", results: []models.BulkStatusResult{ok, ok}, expected: http.StatusOK},
		{name: "partial", results: []models.BulkStatusResult{ok, failed}, expected: http.StatusMultiStatus},
		{name: "none updated", results: []models.BulkStatusResult{failed, failed}, expected: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv()
			env.consents.On("UpdateStatusBulk", mock.Anything, testOrg, mock.Anything).Return(tt.results)

			w := env.do(http.MethodPut, "/api/v1/consents/status",
				[]byte(`[{"consentId":"a","status":"Revoked"},{"consentId":"b","status":"Revoked"}]`), nil)

			assert.Equal(t, tt.expected, w.Code)
			var resp struct {
				Data []models.BulkStatusResult `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.results, resp.Data)
		})
	}
}

// TestUpdateStatusBulk_Empty tests that an empty batch is rejected
func TestUpdateStatusBulk_Empty(t *testing.T) {
	env := setupTestEnv()
	w := env.do(http.MethodPut, "/api/v1/consents/status", []byte(`[]`), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, serviceerror.FieldMissing, decodeError(t, w).Errors[0].ErrorCode)
}

// TestDeleteConsent tests that DELETE revokes tokens and maps failures
func TestDeleteConsent(t *testing.T) {
	tests := []struct {
		name     string
		result   *models.RevokeResult
		err      *serviceerror.ServiceError
		expected int
	}{
		{name: "revoked", result: &models.RevokeResult{ConsentID: testConsentID, Revoked: true, TokensRevoked: true}, expected: http.StatusOK},
		{name: "not found", err: serviceerror.CustomServiceError(serviceerror.ResourceNotFoundError, "consent not found"), expected: http.StatusNotFound},
		{name: "already revoked", err: serviceerror.CustomServiceError(serviceerror.ConsentStateError, "already Revoked"), expected: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv()
			var result interface{}
			if tt.result != nil {
				result = tt.result
			}
			env.consents.On("Revoke", mock.Anything, testOrg, testConsentID, "", "user-1", true).Return(result, tt.err)

			w := env.do(http.MethodDelete, "/api/v1/consents/"+testConsentID+"?userId=user-1", nil, nil)

			assert.Equal(t, tt.expected, w.Code)
			env.consents.AssertExpectations(t)
		})
	}
}

// TestRevokeConsent tests that an already revoked consent is a 400
func TestRevokeConsent(t *testing.T) {
	env := setupTestEnv()
	env.consents.On("Revoke", mock.Anything, testOrg, testConsentID, "customer request", "user-1", false).
		Return(nil, serviceerror.CustomServiceError(serviceerror.ConsentStateError, "Consent is already Revoked"))

	w := env.do(http.MethodPut, "/api/v1/consents/"+testConsentID+"/revoke",
		[]byte(`{"reason":"customer request","userId":"user-1"}`), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestGetHistory tests that history filters are passed through
func TestGetHistory(t *testing.T) {
	env := setupTestEnv()
	env.consents.On("GetHistory", mock.Anything, testOrg, testConsentID, models.HistoryFilter{
		Detailed: true,
		Statuses: []string{"Authorised", "Revoked"},
		ActionBy: "user-1",
		AuditID:  "audit-1",
	}).Return([]models.ConsentHistoryEntry{}, nil)

	w := env.do(http.MethodGet, "/api/v1/consents/"+testConsentID+"/history?detailed=true&status=Authorised&status=Revoked&actionBy=user-1&auditId=audit-1", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())
}

// TestAuthorize tests that the authorization payload reaches the service
func TestAuthorize(t *testing.T) {
	env := setupTestEnv()
	mappings := []models.MappingRequest{{AccountID: "acc-1", Permission: "ReadAccountsBasic"}}
	env.consents.On("Authorize", mock.Anything, testOrg, testConsentID, "auth-1", "user-1", mappings).
		Return(&models.DetailedConsentResource{ConsentResource: models.ConsentResource{ConsentID: testConsentID, CurrentStatus: "Authorised"}}, nil)

	w := env.do(http.MethodPut, "/api/v1/consents/"+testConsentID+"/authorizations/auth-1",
		[]byte(`{"userId":"user-1","accountMappings":[{"accountId":"acc-1","permission":"ReadAccountsBasic"}]}`), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	env.consents.AssertExpectations(t)
}

// TestAuthorize_MissingUser tests that the user id is required
func TestAuthorize_MissingUser(t *testing.T) {
	env := setupTestEnv()
	w := env.do(http.MethodPut, "/api/v1/consents/"+testConsentID+"/authorizations/auth-1", []byte(`{}`), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, serviceerror.FieldMissing, decodeError(t, w).Errors[0].ErrorCode)
}

// TestGetAuthorization tests that the consent filter comes from the query
func TestGetAuthorization(t *testing.T) {
	env := setupTestEnv()
	env.consents.On("GetAuthorization", mock.Anything, testOrg, testConsentID, "auth-1").
		Return(&models.AuthorizationResource{AuthorizationID: "auth-1", ConsentID: testConsentID}, nil)

	w := env.do(http.MethodGet, "/api/v1/authorizations/auth-1?consentId="+testConsentID, nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "auth-1")
}

// TestReAuthorize tests that a re-authorization without authorizationId asks for a new resource
func TestReAuthorize(t *testing.T) {
	env := setupTestEnv()
	env.consents.On("ReAuthorize", mock.Anything, service.ReAuthorizeRequest{
		OrgID:     testOrg,
		ConsentID: testConsentID,
		UserID:    "user-1",
		Mappings:  []models.MappingRequest{{AccountID: "acc-2", Permission: "ReadBalances"}},
	}).Return(&models.DetailedConsentResource{ConsentResource: models.ConsentResource{ConsentID: testConsentID, CurrentStatus: "Authorised"}}, nil)

	w := env.do(http.MethodPost, "/api/v1/consents/"+testConsentID+"/reauthorize",
		[]byte(`{"userId":"user-1","accountMappings":[{"accountId":"acc-2","permission":"ReadBalances"}]}`), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	env.consents.AssertExpectations(t)
}

// TestReAuthorize_NoMappings tests that a re-authorization must grant at least one account
func TestReAuthorize_NoMappings(t *testing.T) {
	env := setupTestEnv()
	w := env.do(http.MethodPost, "/api/v1/consents/"+testConsentID+"/reauthorize", []byte(`{"userId":"user-1","accountMappings":[]}`), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	env.consents.AssertNumberOfCalls(t, "ReAuthorize", 0)
}

// TestAmendConsent tests that amendments carry the calling client
func TestAmendConsent(t *testing.T) {
	env := setupTestEnv()
	env.consents.On("Amend", mock.Anything, mock.MatchedBy(func(req service.AmendConsentRequest) bool {
		return req.ConsentID == testConsentID && req.ClientID == testClient && req.OrgID == testOrg &&
			req.ValidityPeriod != nil && *req.ValidityPeriod == 1780000000 &&
			req.Attributes["purpose"] == "tax" && req.AuthorizationID == "auth-1" && len(req.Mappings) == 1
	})).Return(&models.DetailedConsentResource{ConsentResource: models.ConsentResource{ConsentID: testConsentID}}, nil)

	w := env.do(http.MethodPut, "/api/v1/consents/"+testConsentID, []byte(`{
		"validityPeriod": 1780000000,
		"consentAttributes": {"purpose": "tax"},
		"authorizationId": "auth-1",
		"accountMappings": [{"accountId": "acc-1", "permission": "ReadAccountsDetail"}]
	}`), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	env.consents.AssertExpectations(t)
}

// TestAmendConsent_StateError tests that service errors keep their status
func TestAmendConsent_StateError(t *testing.T) {
	env := setupTestEnv()
	env.consents.On("Amend", mock.Anything, mock.Anything).
		Return(nil, serviceerror.CustomServiceError(serviceerror.ConsentStateError, "Consent is in terminal status Revoked"))

	w := env.do(http.MethodPut, "/api/v1/consents/"+testConsentID, []byte(`{"status":"Authorised"}`), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, serviceerror.InvalidConsentStatus, decodeError(t, w).Errors[0].ErrorCode)
}

// TestRevokeExisting tests that the client defaults to the caller
func TestRevokeExisting(t *testing.T) {
	env := setupTestEnv()
	env.consents.On("RevokeExisting", mock.Anything, service.RevokeExistingRequest{
		OrgID:            testOrg,
		ClientID:         testClient,
		UserID:           "user-1",
		ConsentType:      "accounts",
		ApplicableStatus: "Authorised",
		ExceptConsentID:  testConsentID,
		RevokeTokens:     true,
	}).Return([]string{"old-1"}, nil)

	w := env.do(http.MethodPut, "/api/v1/consents/revoke-existing", []byte(`{
		"userId": "user-1",
		"consentType": "accounts",
		"applicableStatus": "Authorised",
		"exceptConsentId": "`+testConsentID+`",
		"revokeTokens": true
	}`), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"revokedConsentIds":["old-1"]}`, w.Body.String())
}

// TestValidateSubmission tests the validation endpoint outcomes
func TestValidateSubmission(t *testing.T) {
	env := setupTestEnv()
	env.consents.On("ValidateSubmission", mock.Anything, mock.MatchedBy(func(req service.SubmissionRequest) bool {
		return req.ConsentID == testConsentID && req.ClientID == testClient && req.ResourcePath == "/domestic-payments"
	})).Return(&models.SubmissionValidateResponse{IsValid: true, ConsentID: testConsentID, ConsentType: "payments"}, nil)

	w := env.do(http.MethodPost, "/api/v1/consents/"+testConsentID+"/validate",
		[]byte(`{"resourcePath":"/domestic-payments","payload":{"Data":{}}}`), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.SubmissionValidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.IsValid)
}

// TestValidateSubmission_Mismatch tests that a failed cross-check is reported in the envelope
func TestValidateSubmission_Mismatch(t *testing.T) {
	env := setupTestEnv()
	env.consents.On("ValidateSubmission", mock.Anything, mock.Anything).
		Return(nil, serviceerror.CustomServiceError(serviceerror.ConsentMismatchError, "Instructed amount does not match the consent"))

	w := env.do(http.MethodPost, "/api/v1/consents/"+testConsentID+"/validate", []byte(`{"payload":{}}`), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, serviceerror.ResourceConsentMismatch, decodeError(t, w).Errors[0].ErrorCode)
}

// TestUploadFile tests that the raw body is uploaded with the idempotency key
func TestUploadFile(t *testing.T) {
	env := setupTestEnv()
	content := []byte(`<Document><CstmrCdtTrfInitn/></Document>`)
	env.consents.On("UploadFile", mock.Anything, service.UploadFileRequest{
		OrgID:          testOrg,
		ConsentID:      testConsentID,
		ClientID:       testClient,
		IdempotencyKey: "file-key",
		Content:        content,
	}).Return(&models.ConsentFileResponse{ConsentID: testConsentID, FileSize: len(content), CurrentStatus: "AwaitingAuthorisation"}, nil)

	w := env.do(http.MethodPost, "/api/v1/consents/"+testConsentID+"/file", content, map[string]string{"x-idempotency-key": "file-key"})

	assert.Equal(t, http.StatusCreated, w.Code)
	env.consents.AssertExpectations(t)
}

// TestGetFile tests that the stored file is returned as is
func TestGetFile(t *testing.T) {
	env := setupTestEnv()
	content := []byte(`{"Data":{"DomesticPayments":[]}}`)
	env.consents.On("GetFile", mock.Anything, testOrg, testConsentID).
		Return(&models.ConsentFile{ConsentID: testConsentID, ConsentFile: content}, nil)

	w := env.do(http.MethodGet, "/api/v1/consents/"+testConsentID+"/file", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
}

// TestStoreSession tests that the consent id is read from a request object
func TestStoreSession(t *testing.T) {
	env := setupTestEnv()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"claims": map[string]interface{}{
			"id_token": map[string]interface{}{
				session.IntentClaim: map[string]interface{}{"value": testConsentID, "essential": true},
			},
		},
	})
	requestObject, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	env.bridge.On("Store", mock.Anything, "sdk-1", mock.MatchedBy(func(data *session.ConsentData) bool {
		return data.ConsentID == testConsentID &&
			data.SessionDataKey == "sdk-1" &&
			data.OrgID == testOrg &&
			data.ClientID == testClient &&
			data.UserID == "user-1"
	})).Return(nil)

	body, _ := json.Marshal(map[string]interface{}{"userId": "user-1", "requestObject": requestObject})
	w := env.do(http.MethodPut, "/api/v1/sessions/sdk-1", body, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	env.bridge.AssertExpectations(t)
}

// TestStoreSession_BadRequestObject tests that an unreadable request object is rejected
func TestStoreSession_BadRequestObject(t *testing.T) {
	env := setupTestEnv()
	w := env.do(http.MethodPut, "/api/v1/sessions/sdk-1", []byte(`{"requestObject":"not-a-jwt"}`), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	env.bridge.AssertNumberOfCalls(t, "Store", 0)
}

// TestGetSession tests lookups through the session bridge
func TestGetSession(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		env := setupTestEnv()
		env.bridge.On("Retrieve", mock.Anything, "", "sdk-1").Return(&session.ConsentData{SessionDataKey: "sdk-1", ConsentID: testConsentID}, nil)

		w := env.do(http.MethodGet, "/api/v1/sessions/sdk-1", nil, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), testConsentID)
	})

	t.Run("scoped to the org", func(t *testing.T) {
		env := setupTestEnv()
		env.bridge.On("Retrieve", mock.Anything, "org1", "sdk-4").Return(&session.ConsentData{SessionDataKey: "sdk-4", OrgID: "org1"}, nil)

		w := env.do(http.MethodGet, "/api/v1/sessions/sdk-4?orgId=org1", nil, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		env.bridge.AssertExpectations(t)
	})

	t.Run("unavailable", func(t *testing.T) {
		env := setupTestEnv()
		env.bridge.On("Retrieve", mock.Anything, "", "sdk-2").Return(nil, session.ErrConsentDataUnavailable)

		w := env.do(http.MethodGet, "/api/v1/sessions/sdk-2", nil, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, serviceerror.ConsentDataUnavailable, decodeError(t, w).Errors[0].ErrorCode)
	})

	t.Run("store failure", func(t *testing.T) {
		env := setupTestEnv()
		env.bridge.On("Retrieve", mock.Anything, "", "sdk-3").Return(nil, errors.New("redis down"))

		w := env.do(http.MethodGet, "/api/v1/sessions/sdk-3", nil, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
