package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/wso2/ob-consent-engine/internal/serviceerror"
	"github.com/wso2/ob-consent-engine/internal/session"
	"github.com/wso2/ob-consent-engine/internal/utils"
)

// sessionRequest is the payload of PUT /sessions/:sessionKey. A request
// object JWT may stand in for the consent id.
type sessionRequest struct {
	session.ConsentData
	RequestObject string `json:"requestObject,omitempty"`
}

// SessionHandler exposes the consent session bridge
type SessionHandler struct {
	bridge SessionBridge
	logger *logrus.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(bridge SessionBridge, logger *logrus.Logger) *SessionHandler {
	return &SessionHandler{bridge: bridge, logger: logger}
}

// StoreSession handles PUT /sessions/:sessionKey
func (h *SessionHandler) StoreSession(c *gin.Context) {
	key := c.Param("sessionKey")
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBindingError(c, err)
		return
	}

	data := req.ConsentData
	if data.ConsentID == "" && req.RequestObject != "" {
		consentID, err := session.ConsentIDFromRequestObject(req.RequestObject)
		if err != nil {
			utils.SendServiceError(c, serviceerror.CustomServiceError(serviceerror.FieldInvalidError, err.Error()))
			return
		}
		data.ConsentID = consentID
	}
	if data.OrgID == "" {
		data.OrgID = utils.GetOrgIDFromContext(c)
	}
	if data.ClientID == "" {
		data.ClientID = utils.GetClientIDFromContext(c)
	}
	data.SessionDataKey = key

	if err := h.bridge.Store(c.Request.Context(), key, &data); err != nil {
		h.logger.WithError(err).WithField("correlation_id", utils.GetCorrelationIDFromContext(c)).Error("Failed to store consent data")
		utils.SendServiceError(c, serviceerror.CustomServiceError(serviceerror.InternalServerError, "Failed to store the consent data"))
		return
	}
	utils.SendOKResponse(c, &data)
}

// GetSession handles GET /sessions/:sessionKey
func (h *SessionHandler) GetSession(c *gin.Context) {
	data, err := h.bridge.Retrieve(c.Request.Context(), utils.GetOrgIDFromContext(c), c.Param("sessionKey"))
	if err != nil {
		if !errors.Is(err, session.ErrConsentDataUnavailable) {
			h.logger.WithError(err).Error("Failed to read consent data")
		}
		utils.SendServiceError(c, serviceerror.CustomServiceError(serviceerror.ConsentDataUnavailableError, "Consent data is not available for the session"))
		return
	}
	utils.SendOKResponse(c, data)
}
