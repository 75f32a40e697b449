package utils

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/wso2/ob-consent-engine/internal/models"
	"github.com/wso2/ob-consent-engine/internal/serviceerror"
)

// Gin context keys set by the middleware
const (
	ContextOrgID         = "orgID"
	ContextClientID      = "clientID"
	ContextCorrelationID = "correlationID"
	ContextUsername      = "username"
)

// Request headers read by the API
const (
	HeaderOrgID          = "org-id"
	HeaderClientID       = "client-id"
	HeaderIdempotencyKey = "x-idempotency-key"
)

// SendServiceError writes err in the error envelope with the status its kind maps to
func SendServiceError(c *gin.Context, err *serviceerror.ServiceError) {
	status := err.HTTPStatus()
	c.AbortWithStatusJSON(status, models.NewErrorResponse(status, err.Code, err.ErrorDescription))
}

// SendErrorResponse writes an error envelope
func SendErrorResponse(c *gin.Context, statusCode int, errorCode, message string) {
	c.AbortWithStatusJSON(statusCode, models.NewErrorResponse(statusCode, errorCode, message))
}

// SendBadRequestError sends a 400 Bad Request error
func SendBadRequestError(c *gin.Context, message string) {
	SendErrorResponse(c, http.StatusBadRequest, serviceerror.InvalidFormat, message)
}

// SendBindingError reports a request body that failed to bind. Failed
// binding tags name the offending field.
func SendBindingError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "required" {
			SendServiceError(c, serviceerror.CustomServiceError(serviceerror.FieldMissingError,
				fmt.Sprintf("%s is missing in the request", fe.Field())))
			return
		}
		SendServiceError(c, serviceerror.CustomServiceError(serviceerror.FieldInvalidError,
			fmt.Sprintf("%s failed the %s rule", fe.Field(), fe.Tag())))
		return
	}
	SendBadRequestError(c, "Request body is not a valid JSON document")
}

// SendCreatedResponse sends a 201 Created response
func SendCreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// SendOKResponse sends a 200 OK response
func SendOKResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// GetOrgIDFromContext returns the orgId query parameter, else the org-id header
func GetOrgIDFromContext(c *gin.Context) string {
	if orgID := strings.TrimSpace(c.Query("orgId")); orgID != "" {
		return orgID
	}
	return c.GetString(ContextOrgID)
}

// GetClientIDFromContext returns the client id taken from the client-id header
func GetClientIDFromContext(c *gin.Context) string {
	return c.GetString(ContextClientID)
}

// GetCorrelationIDFromContext returns the correlation id of the request
func GetCorrelationIDFromContext(c *gin.Context) string {
	return c.GetString(ContextCorrelationID)
}

// SetContextValue sets a value in the Gin context
func SetContextValue(c *gin.Context, key string, value interface{}) {
	c.Set(key, value)
}

// QueryBool reads a boolean query parameter. A missing value is def.
func QueryBool(c *gin.Context, name string, def bool) bool {
	switch strings.ToLower(c.Query(name)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return def
	}
}
