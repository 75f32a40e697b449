package models

import (
	"net/http"
	"strconv"
)

// ErrorResponse is the envelope returned for every failed request
type ErrorResponse struct {
	Code    string        `json:"Code"`
	Message string        `json:"Message"`
	Errors  []ErrorDetail `json:"Errors"`
}

// ErrorDetail carries one machine-readable error
type ErrorDetail struct {
	ErrorCode string `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// NewErrorResponse builds an envelope whose outer fields mirror the HTTP status
func NewErrorResponse(status int, errorCode, message string) *ErrorResponse {
	return &ErrorResponse{
		Code:    strconv.Itoa(status),
		Message: http.StatusText(status),
		Errors: []ErrorDetail{{
			ErrorCode: errorCode,
			Message:   message,
		}},
	}
}

// PaginationMetadata holds pagination metadata for responses
type PaginationMetadata struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ConsentSearchFilter narrows a consent search. Empty slices match everything.
type ConsentSearchFilter struct {
	OrgID        string
	ConsentTypes []string
	Statuses     []string
	ClientIDs    []string
	UserIDs      []string
	FromTime     int64
	ToTime       int64
	Limit        int
	Offset       int
}

// HistoryFilter narrows a status audit query
type HistoryFilter struct {
	Detailed bool
	Statuses []string
	ActionBy string
	FromTime int64
	ToTime   int64
	AuditID  string
}
