package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wso2/ob-consent-engine/internal/models"
	"github.com/wso2/ob-consent-engine/internal/service"
	"github.com/wso2/ob-consent-engine/internal/serviceerror"
	"github.com/wso2/ob-consent-engine/internal/utils"
)

// ValidateSubmission handles POST /consents/:consentId/validate
func (h *ConsentHandler) ValidateSubmission(c *gin.Context) {
	var req models.SubmissionValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBindingError(c, err)
		return
	}
	clientID := req.ClientID
	if clientID == "" {
		clientID = utils.GetClientIDFromContext(c)
	}
	if clientID == "" {
		utils.SendServiceError(c, serviceerror.CustomServiceError(serviceerror.FieldMissingError, "clientId is missing in the request"))
		return
	}

	resp, svcErr := h.consents.ValidateSubmission(c.Request.Context(), service.SubmissionRequest{
		OrgID:          utils.GetOrgIDFromContext(c),
		ConsentID:      c.Param("consentId"),
		ClientID:       clientID,
		UserID:         req.UserID,
		ResourcePath:   req.ResourcePath,
		TokenConsentID: req.TokenConsentID,
		Payload:        json.RawMessage(req.Payload),
	})
	if svcErr != nil {
		utils.SendServiceError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, resp)
}
