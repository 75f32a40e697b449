package validator

import (
	"net/http"

	"github.com/wso2/ob-consent-engine/internal/serviceerror"
)

// Result is the outcome of a validation. A zero Result is not valid; use OK.
type Result struct {
	Valid     bool
	Kind      serviceerror.Kind
	ErrorCode string
	Message   string
	HTTPCode  int
}

// OK returns a passing result
func OK() Result {
	return Result{Valid: true, HTTPCode: http.StatusOK}
}

// Missing reports a mandatory field that is absent
func Missing(message string) Result {
	return failure(serviceerror.KindFieldMissing, serviceerror.FieldMissing, message)
}

// Invalid reports a field that is present with a wrong type or value
func Invalid(message string) Result {
	return failure(serviceerror.KindFieldInvalid, serviceerror.FieldInvalid, message)
}

// Mismatch reports a submission that differs from what was consented to
func Mismatch(message string) Result {
	return failure(serviceerror.KindConsentMismatch, serviceerror.ResourceConsentMismatch, message)
}

func failure(kind serviceerror.Kind, code, message string) Result {
	return Result{
		Kind:      kind,
		ErrorCode: code,
		Message:   message,
		HTTPCode:  kind.HTTPStatus(),
	}
}

// WithStatus returns r reported with another HTTP status
func (r Result) WithStatus(status int) Result {
	r.HTTPCode = status
	return r
}

// WithCode returns r reported with another machine error code
func (r Result) WithCode(code string) Result {
	r.ErrorCode = code
	return r
}

// ServiceError converts a failed result into a service error, or nil when valid
func (r Result) ServiceError() *serviceerror.ServiceError {
	if r.Valid {
		return nil
	}
	errType := serviceerror.ClientErrorType
	if r.HTTPCode >= http.StatusInternalServerError {
		errType = serviceerror.ServerErrorType
	}
	return &serviceerror.ServiceError{
		Code:             r.ErrorCode,
		Type:             errType,
		Kind:             r.Kind,
		Error:            string(r.Kind),
		ErrorDescription: r.Message,
		Status:           r.HTTPCode,
	}
}

// firstFailure returns the first failing result, or OK
func firstFailure(results ...Result) Result {
	for _, r := range results {
		if !r.Valid {
			return r
		}
	}
	return OK()
}
