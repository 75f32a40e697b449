package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wso2/ob-consent-engine/internal/service"
	"github.com/wso2/ob-consent-engine/internal/utils"
)

// UploadFile handles POST /consents/:consentId/file. The request body is
// stored as the payment file.
func (h *ConsentHandler) UploadFile(c *gin.Context) {
	content, err := c.GetRawData()
	if err != nil {
		utils.SendBadRequestError(c, "Failed to read the file content")
		return
	}

	resp, svcErr := h.consents.UploadFile(c.Request.Context(), service.UploadFileRequest{
		OrgID:          utils.GetOrgIDFromContext(c),
		ConsentID:      c.Param("consentId"),
		ClientID:       utils.GetClientIDFromContext(c),
		IdempotencyKey: c.GetHeader(h.idempotencyHeader),
		Content:        content,
	})
	if svcErr != nil {
		utils.SendServiceError(c, svcErr)
		return
	}
	utils.SendCreatedResponse(c, resp)
}

// GetFile handles GET /consents/:consentId/file
func (h *ConsentHandler) GetFile(c *gin.Context) {
	file, svcErr := h.consents.GetFile(c.Request.Context(), utils.GetOrgIDFromContext(c), c.Param("consentId"))
	if svcErr != nil {
		utils.SendServiceError(c, svcErr)
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(file.ConsentFile), file.ConsentFile)
}
