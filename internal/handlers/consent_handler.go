package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/wso2/ob-consent-engine/internal/models"
	"github.com/wso2/ob-consent-engine/internal/service"
	"github.com/wso2/ob-consent-engine/internal/serviceerror"
	"github.com/wso2/ob-consent-engine/internal/utils"
	pkgutils "github.com/wso2/ob-consent-engine/pkg/utils"
)

const statusUpdated = "Status Updated"

// ConsentHandler handles consent-related HTTP requests
type ConsentHandler struct {
	consents          ConsentAPI
	idempotencyHeader string
}

// NewConsentHandler creates a new consent handler instance. An empty
// idempotencyHeader selects x-idempotency-key.
func NewConsentHandler(consents ConsentAPI, idempotencyHeader string) *ConsentHandler {
	if idempotencyHeader == "" {
		idempotencyHeader = utils.HeaderIdempotencyKey
	}
	return &ConsentHandler{consents: consents, idempotencyHeader: idempotencyHeader}
}

// CreateConsent handles POST /consents
func (h *ConsentHandler) CreateConsent(c *gin.Context) {
	var payload models.ConsentCreateRequest
	if err := c.ShouldBindBodyWith(&payload, binding.JSON); err != nil {
		utils.SendBindingError(c, err)
		return
	}
	var body []byte
	if raw, ok := c.Get(gin.BodyBytesKey); ok {
		body, _ = raw.([]byte)
	}

	consent, svcErr := h.consents.Create(c.Request.Context(), service.CreateConsentRequest{
		OrgID:          utils.GetOrgIDFromContext(c),
		ClientID:       utils.GetClientIDFromContext(c),
		IdempotencyKey: c.GetHeader(h.idempotencyHeader),
		Body:           body,
		Payload:        &payload,
	})
	if svcErr != nil {
		utils.SendServiceError(c, svcErr)
		return
	}
	utils.SendCreatedResponse(c, consent)
}

// GetConsent handles GET /consents/:consentId
func (h *ConsentHandler) GetConsent(c *gin.Context) {
	consent, svcErr := h.consents.GetConsent(c.Request.Context(),
		utils.GetOrgIDFromContext(c),
		c.Param("consentId"),
		utils.QueryBool(c, "detailed", true),
		utils.QueryBool(c, "withAttributes", false))
	if svcErr != nil {
		utils.SendServiceError(c, svcErr)
		return
	}
	utils.SendOKResponse(c, consent)
}

// SearchConsents handles GET /consents
func (h *ConsentHandler) SearchConsents(c *gin.Context) {
	page, err := utils.ParsePagination(c)
	if err != nil {
		utils.SendServiceError(c, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error()))
		return
	}
	from, err := utils.ParseTimeQuery(c, "from")
	if err != nil {
		utils.SendServiceError(c, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error()))
		return
	}
	to, err := utils.ParseTimeQuery(c, "to")
	if err != nil {
		utils.SendServiceError(c, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error()))
		return
	}

	result, svcErr := h.consents.SearchConsents(c.Request.Context(), models.ConsentSearchFilter{
		OrgID:        utils.GetOrgIDFromContext(c),
		ConsentTypes: pkgutils.SplitList(c.QueryArray("type")...),
		Statuses:     pkgutils.SplitList(c.QueryArray("status")...),
		ClientIDs:    pkgutils.SplitList(c.QueryArray("clientId")...),
		UserIDs:      pkgutils.SplitList(c.QueryArray("userId")...),
		FromTime:     from,
		ToTime:       to,
		Limit:        page.Limit,
		Offset:       page.Offset,
	})
	if svcErr != nil {
		utils.SendServiceError(c, svcErr)
		return
	}
	utils.SendOKResponse(c, result)
}

// AmendConsent handles PUT /consents/:consentId
func (h *ConsentHandler) AmendConsent(c *gin.Context) {
	var req models.ConsentAmendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBindingError(c, err)
		return
	}

	consent, svcErr := h.consents.Amend(c.Request.Context(), service.AmendConsentRequest{
		OrgID:            utils.GetOrgIDFromContext(c),
		ConsentID:        c.Param("consentId"),
		ClientID:         utils.GetClientIDFromContext(c),
		ValidityPeriod:   req.ValidityPeriod,
		ConsentFrequency: req.ConsentFrequency,
		Attributes:       req.ConsentAttributes,
		AuthorizationID:  req.AuthorizationID,
		Mappings:         req.Mappings,
		Status:           req.Status,
		Reason:           req.Reason,
		UserID:           req.UserID,
	})
	if svcErr != nil {
		utils.SendServiceError(c, svcErr)
		return
	}
	utils.SendOKResponse(c, consent)
}

// RevokeExisting handles PUT /consents/revoke-existing. The client defaults
// to the calling client.
func (h *ConsentHandler) RevokeExisting(c *gin.Context) {
	var req models.RevokeExistingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBindingError(c, err)
		return
	}
	clientID := req.ClientID
	if clientID == "" {
		clientID = utils.GetClientIDFromContext(c)
	}

	revoked, svcErr := h.consents.RevokeExisting(c.Request.Context(), service.RevokeExistingRequest{
		OrgID:            utils.GetOrgIDFromContext(c),
		ClientID:         clientID,
		UserID:           req.UserID,
		ConsentType:      req.ConsentType,
		ApplicableStatus: req.ApplicableStatus,
		ExceptConsentID:  req.ExceptConsentID,
		RevokeTokens:     req.RevokeTokens,
	})
	if svcErr != nil {
		utils.SendServiceError(c, svcErr)
		return
	}
	utils.SendOKResponse(c, models.RevokeExistingResult{RevokedConsentIDs: revoked})
}

// UpdateStatus handles PUT /consents/:consentId/status
func (h *ConsentHandler) UpdateStatus(c *gin.Context) {
	var req models.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBindingError(c, err)
		return
	}
	svcErr := h.consents.UpdateStatus(c.Request.Context(), utils.GetOrgIDFromContext(c), c.Param("consentId"), req.Status, req.Reason, req.UserID)
	if svcErr != nil {
		utils.SendServiceError(c, svcErr)
		return
	}
	utils.SendOKResponse(c, statusUpdated)
}

// UpdateStatusBulk handles PUT /consents/status. The response is 200 when
// every item was applied, 400 when none was and 207 otherwise.
func (h *ConsentHandler) UpdateStatusBulk(c *gin.Context) {
	var req []models.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBindingError(c, err)
		return
	}
	if len(req) == 0 {
		utils.SendServiceError(c, serviceerror.CustomServiceError(serviceerror.FieldMissingError, "At least one status update is required"))
		return
	}

	results := h.consents.UpdateStatusBulk(c.Request.Context(), utils.GetOrgIDFromContext(c), req)
	updated := 0
	for _, r := range results {
		if r.Updated {
			updated++
		}
	}

	status := http.StatusMultiStatus
	switch updated {
	case len(results):
		status = http.StatusOK
	case 0:
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"data": results})
}

// DeleteConsent handles DELETE /consents/:consentId. The consent is revoked
// together with its tokens.
func (h *ConsentHandler) DeleteConsent(c *gin.Context) {
	consentID := c.Param("consentId")
	result, svcErr := h.consents.Revoke(c.Request.Context(), utils.GetOrgIDFromContext(c), consentID, "", c.Query("userId"), true)
	if svcErr != nil {
		if svcErr.HTTPStatus() != http.StatusNotFound && svcErr.HTTPStatus() < http.StatusInternalServerError {
			svcErr = serviceerror.WithStatus(*svcErr, http.StatusInternalServerError, svcErr.ErrorDescription)
		}
		utils.SendServiceError(c, svcErr)
		return
	}
	utils.SendOKResponse(c, result)
}

// RevokeConsent handles PUT /consents/:consentId/revoke
func (h *ConsentHandler) RevokeConsent(c *gin.Context) {
	var req models.RevokeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.SendBindingError(c, err)
			return
		}
	}
	result, svcErr := h.consents.Revoke(c.Request.Context(), utils.GetOrgIDFromContext(c), c.Param("consentId"),
		req.Reason, req.UserID, utils.QueryBool(c, "revokeTokens", false))
	if svcErr != nil {
		utils.SendServiceError(c, svcErr)
		return
	}
	utils.SendOKResponse(c, result)
}

// GetHistory handles GET /consents/:consentId/history
func (h *ConsentHandler) GetHistory(c *gin.Context) {
	from, err := utils.ParseTimeQuery(c, "from")
	if err != nil {
		utils.SendServiceError(c, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error()))
		return
	}
	to, err := utils.ParseTimeQuery(c, "to")
	if err != nil {
		utils.SendServiceError(c, serviceerror.CustomServiceError(serviceerror.ValidationError, err.Error()))
		return
	}

	history, svcErr := h.consents.GetHistory(c.Request.Context(), utils.GetOrgIDFromContext(c), c.Param("consentId"), models.HistoryFilter{
		Detailed: utils.QueryBool(c, "detailed", false),
		Statuses: pkgutils.SplitList(c.QueryArray("status")...),
		ActionBy: c.Query("actionBy"),
		FromTime: from,
		ToTime:   to,
		AuditID:  c.Query("auditId"),
	})
	if svcErr != nil {
		utils.SendServiceError(c, svcErr)
		return
	}
	utils.SendOKResponse(c, gin.H{"data": history})
}
