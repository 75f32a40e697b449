package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/wso2/ob-consent-engine/internal/models"
	"github.com/wso2/ob-consent-engine/internal/service"
	"github.com/wso2/ob-consent-engine/internal/utils"
)

// AuthResourceHandler handles authorization resource-related HTTP requests
type AuthResourceHandler struct {
	consents ConsentAPI
}

// NewAuthResourceHandler creates a new AuthResourceHandler
func NewAuthResourceHandler(consents ConsentAPI) *AuthResourceHandler {
	return &AuthResourceHandler{consents: consents}
}

// GetAuthorization handles GET /authorizations/:authorizationId
func (h *AuthResourceHandler) GetAuthorization(c *gin.Context) {
	auth, svcErr := h.consents.GetAuthorization(c.Request.Context(), utils.GetOrgIDFromContext(c), c.Query("consentId"), c.Param("authorizationId"))
	if svcErr != nil {
		utils.SendServiceError(c, svcErr)
		return
	}
	utils.SendOKResponse(c, auth)
}

// Authorize handles PUT /consents/:consentId/authorizations/:authorizationId
func (h *AuthResourceHandler) Authorize(c *gin.Context) {
	var req models.AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBindingError(c, err)
		return
	}

	consent, svcErr := h.consents.Authorize(c.Request.Context(), utils.GetOrgIDFromContext(c),
		c.Param("consentId"), c.Param("authorizationId"), req.UserID, req.Mappings)
	if svcErr != nil {
		utils.SendServiceError(c, svcErr)
		return
	}
	utils.SendOKResponse(c, consent)
}

// ReAuthorize handles POST /consents/:consentId/reauthorize
func (h *AuthResourceHandler) ReAuthorize(c *gin.Context) {
	var req models.ReAuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBindingError(c, err)
		return
	}

	consent, svcErr := h.consents.ReAuthorize(c.Request.Context(), service.ReAuthorizeRequest{
		OrgID:             utils.GetOrgIDFromContext(c),
		ConsentID:         c.Param("consentId"),
		AuthorizationID:   req.AuthorizationID,
		AuthorizationType: req.AuthorizationType,
		UserID:            req.UserID,
		Mappings:          req.Mappings,
	})
	if svcErr != nil {
		utils.SendServiceError(c, svcErr)
		return
	}
	utils.SendOKResponse(c, consent)
}
