package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/models"
)

// AttributeDAO is the consent attribute storage used by AttributeStore
type AttributeDAO interface {
	Put(ctx context.Context, tx *database.Transaction, consentID, orgID string, attributes map[string]string) error
	FindByKey(ctx context.Context, orgID, key string) ([]models.ConsentAttribute, error)
	GetByConsentID(ctx context.Context, tx *database.Transaction, consentID, orgID string) (map[string]string, error)
	DeleteKeys(ctx context.Context, tx *database.Transaction, consentID, orgID string, keys []string) error
}

// AttributeStore persists consent data as an attribute of the consent it
// belongs to. Entries are read once: Get purges every session attribute of
// the consent.
type AttributeStore struct {
	dao AttributeDAO
}

func NewAttributeStore(dao AttributeDAO) *AttributeStore {
	return &AttributeStore{dao: dao}
}

func (s *AttributeStore) Put(ctx context.Context, key string, data *ConsentData) error {
	if data.ConsentID == "" || data.OrgID == "" {
		return errors.New("session: consent data without a consent id cannot be stored as an attribute")
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode consent data: %w", err)
	}
	return s.dao.Put(ctx, nil, data.ConsentID, data.OrgID, map[string]string{key: string(payload)})
}

// Exists reports whether an attribute is stored under key in the organization
func (s *AttributeStore) Exists(ctx context.Context, orgID, key string) (bool, error) {
	attrs, err := s.dao.FindByKey(ctx, orgID, key)
	if err != nil {
		return false, fmt.Errorf("failed to look up session attribute: %w", err)
	}
	return len(attrs) > 0, nil
}

// Get reads the consent data stored under key in the organization and purges
// the session attributes of its consent
func (s *AttributeStore) Get(ctx context.Context, orgID, key string) (*ConsentData, error) {
	attrs, err := s.dao.FindByKey(ctx, orgID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session attribute: %w", err)
	}
	if len(attrs) == 0 {
		return nil, ErrNotFound
	}

	attr := attrs[0]
	var data ConsentData
	if err := json.Unmarshal([]byte(attr.AttValue), &data); err != nil {
		return nil, fmt.Errorf("failed to decode session attribute: %w", err)
	}
	if data.OrgID == "" {
		data.OrgID = attr.OrgID
	}

	if err := s.purge(ctx, attr.ConsentID, attr.OrgID); err != nil {
		return nil, err
	}
	return &data, nil
}

// purge removes every attribute of the consent that holds session data
func (s *AttributeStore) purge(ctx context.Context, consentID, orgID string) error {
	attrs, err := s.dao.GetByConsentID(ctx, nil, consentID, orgID)
	if err != nil {
		return fmt.Errorf("failed to read attributes of consent %s: %w", consentID, err)
	}

	var keys []string
	for k, v := range attrs {
		if isSessionData(v) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.dao.DeleteKeys(ctx, nil, consentID, orgID, keys); err != nil {
		return fmt.Errorf("failed to purge session attributes of consent %s: %w", consentID, err)
	}
	return nil
}

func isSessionData(value string) bool {
	var probe struct {
		SessionDataKey *string `json:"sessionDataKey"`
	}
	if err := json.Unmarshal([]byte(value), &probe); err != nil {
		return false
	}
	return probe.SessionDataKey != nil
}
