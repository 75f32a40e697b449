// Package session carries consent data between the authorization steps of a
// login flow, keyed by the session data key of the flow.
package session

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by a store that has no entry for the key
	ErrNotFound = errors.New("session: consent data not found")
	// ErrConsentDataUnavailable is returned when no store has the key
	ErrConsentDataUnavailable = errors.New("session: consent data unavailable")
)

// ConsentData is the state of one consent authorization flow
type ConsentData struct {
	SessionDataKey string                 `json:"sessionDataKey"`
	UserID         string                 `json:"userId,omitempty"`
	ConsentID      string                 `json:"consentId,omitempty"`
	OrgID          string                 `json:"orgId,omitempty"`
	ClientID       string                 `json:"clientId,omitempty"`
	Application    string                 `json:"application,omitempty"`
	Scopes         []string               `json:"scopes,omitempty"`
	RedirectURI    string                 `json:"redirectUri,omitempty"`
	SpQueryParams  string                 `json:"spQueryParams,omitempty"`
	Regulatory     bool                   `json:"regulatory"`
	Type           string                 `json:"type,omitempty"`
	SensitiveData  map[string]interface{} `json:"sensitiveData,omitempty"`
	Headers        map[string]string      `json:"headers,omitempty"`
	MetaData       map[string]interface{} `json:"metaData,omitempty"`
}

// SessionStore keeps consent data by session key
type SessionStore interface {
	Put(ctx context.Context, key string, data *ConsentData) error
	Get(ctx context.Context, key string) (*ConsentData, error)
	Delete(ctx context.Context, key string) error
}
