package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wso2/ob-consent-engine/internal/utils"
	pkgutils "github.com/wso2/ob-consent-engine/pkg/utils"
)

const headerCorrelationID = "X-Correlation-ID"

// CorrelationID tags each request with the caller's correlation id, or a new
// one, and echoes it back
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := extractCorrelationID(c)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		c.Set(utils.ContextCorrelationID, correlationID)
		c.Header(headerCorrelationID, correlationID)
		c.Request = c.Request.WithContext(pkgutils.WithCorrelationID(c.Request.Context(), correlationID))
		c.Next()
	}
}

func extractCorrelationID(c *gin.Context) string {
	headers := []string{headerCorrelationID, "X-Request-ID", "X-Trace-ID"}
	for _, header := range headers {
		if id := c.GetHeader(header); id != "" {
			return id
		}
	}
	return ""
}

// RequestIdentity copies the org-id and client-id headers into the context
func RequestIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if orgID := c.GetHeader(utils.HeaderOrgID); orgID != "" {
			c.Set(utils.ContextOrgID, pkgutils.SanitizeString(orgID))
		}
		if clientID := c.GetHeader(utils.HeaderClientID); clientID != "" {
			c.Set(utils.ContextClientID, pkgutils.SanitizeString(clientID))
		}
		c.Next()
	}
}
