package serviceerror

import "net/http"

type ServiceErrorType string

const (
	ClientErrorType ServiceErrorType = "client_error"
	ServerErrorType ServiceErrorType = "server_error"
)

// Kind classifies a ServiceError for HTTP status mapping
type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindFieldInvalid    Kind = "FieldInvalidError"
	KindFieldMissing    Kind = "FieldMissingError"
	KindConsentMismatch Kind = "ResourceConsentMismatch"
	KindConsentState    Kind = "ConsentStateError"
	KindUnauthorized    Kind = "UnauthorizedError"
	KindForbidden       Kind = "ForbiddenError"
	KindNotFound        Kind = "NotFoundError"
	KindConflict        Kind = "ConflictError"
	KindServer          Kind = "ServerError"
)

// HTTPStatus returns the default status code for the kind
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindFieldInvalid, KindFieldMissing, KindConsentMismatch, KindConsentState:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type ServiceError struct {
	Code             string           `json:"code"`
	Type             ServiceErrorType `json:"type"`
	Kind             Kind             `json:"kind"`
	Error            string           `json:"error"`
	ErrorDescription string           `json:"error_description,omitempty"`
	// Status overrides the kind's default HTTP status when non-zero
	Status int `json:"-"`
}

// HTTPStatus returns the status code the error should be reported with
func (e *ServiceError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	return e.Kind.HTTPStatus()
}

// Matches reports whether e was derived from base
func (e *ServiceError) Matches(base ServiceError) bool {
	return e != nil && e.Code == base.Code && e.Kind == base.Kind
}

var (
	InternalServerError = ServiceError{
		Type:             ServerErrorType,
		Kind:             KindServer,
		Code:             UnexpectedError,
		Error:            "internal_server_error",
		ErrorDescription: "An unexpected error occurred",
	}

	DatabaseError = ServiceError{
		Type:             ServerErrorType,
		Kind:             KindServer,
		Code:             UnexpectedError,
		Error:            "database_error",
		ErrorDescription: "A database error occurred",
	}

	InvalidRequestError = ServiceError{
		Type:             ClientErrorType,
		Kind:             KindValidation,
		Code:             InvalidFormat,
		Error:            "invalid_request",
		ErrorDescription: "The request is invalid",
	}

	ValidationError = ServiceError{
		Type:             ClientErrorType,
		Kind:             KindValidation,
		Code:             FieldInvalid,
		Error:            "validation_error",
		ErrorDescription: "Validation failed",
	}

	FieldInvalidError = ServiceError{
		Type:             ClientErrorType,
		Kind:             KindFieldInvalid,
		Code:             FieldInvalid,
		Error:            "field_invalid",
		ErrorDescription: "A field has an invalid value",
	}

	FieldMissingError = ServiceError{
		Type:             ClientErrorType,
		Kind:             KindFieldMissing,
		Code:             FieldMissing,
		Error:            "field_missing",
		ErrorDescription: "A mandatory field is missing",
	}

	ConsentMismatchError = ServiceError{
		Type:             ClientErrorType,
		Kind:             KindConsentMismatch,
		Code:             ResourceConsentMismatch,
		Error:            "resource_consent_mismatch",
		ErrorDescription: "The request does not match the consent",
	}

	ConsentStateError = ServiceError{
		Type:             ClientErrorType,
		Kind:             KindConsentState,
		Code:             InvalidConsentStatus,
		Error:            "invalid_consent_status",
		ErrorDescription: "The consent is not in a state that allows this action",
	}

	CutOffElapsedError = ServiceError{
		Type:             ClientErrorType,
		Kind:             KindConsentState,
		Code:             AfterCutOffDateTime,
		Error:            "after_cut_off",
		ErrorDescription: "The payment was submitted after the daily cut-off time",
	}

	ResourceNotFoundError = ServiceError{
		Type:             ClientErrorType,
		Kind:             KindNotFound,
		Code:             ResourceNotFound,
		Error:            "resource_not_found",
		ErrorDescription: "Resource not found",
	}

	ConflictError = ServiceError{
		Type:             ClientErrorType,
		Kind:             KindConflict,
		Code:             ResourceConflict,
		Error:            "conflict",
		ErrorDescription: "Request conflicts with current state",
	}

	ConsentDataUnavailableError = ServiceError{
		Type:             ServerErrorType,
		Kind:             KindServer,
		Code:             ConsentDataUnavailable,
		Error:            "consent_data_unavailable",
		ErrorDescription: "Consent session data could not be found",
	}
)

func CustomServiceError(baseError ServiceError, description string) *ServiceError {
	return &ServiceError{
		Type:             baseError.Type,
		Kind:             baseError.Kind,
		Code:             baseError.Code,
		Error:            baseError.Error,
		ErrorDescription: description,
		Status:           baseError.Status,
	}
}

// WithStatus returns a copy of baseError reported with an explicit HTTP status
func WithStatus(baseError ServiceError, status int, description string) *ServiceError {
	err := CustomServiceError(baseError, description)
	err.Status = status
	return err
}
