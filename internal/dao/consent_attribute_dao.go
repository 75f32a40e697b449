package dao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/models"
)

// ConsentAttributeDAO handles database operations for consent attributes
type ConsentAttributeDAO struct {
	db *database.DB
}

// NewConsentAttributeDAO creates a new ConsentAttributeDAO instance
func NewConsentAttributeDAO(db *database.DB) *ConsentAttributeDAO {
	return &ConsentAttributeDAO{db: db}
}

// Create inserts consent attributes
func (dao *ConsentAttributeDAO) Create(ctx context.Context, tx *database.Transaction, consentID, orgID string, attributes map[string]string) error {
	if len(attributes) == 0 {
		return nil
	}

	q := dao.db.Querier(tx)
	query := q.Rebind(`
		INSERT INTO FS_CONSENT_ATTRIBUTE (CONSENT_ID, ATT_KEY, ATT_VALUE, ORG_ID)
		VALUES (?, ?, ?, ?)
	`)

	for key, value := range attributes {
		if _, err := q.ExecContext(ctx, query, consentID, key, value, orgID); err != nil {
			return fmt.Errorf("failed to create consent attribute %s: %w", key, err)
		}
	}

	return nil
}

// Put replaces the given attributes, inserting those that do not exist yet
func (dao *ConsentAttributeDAO) Put(ctx context.Context, tx *database.Transaction, consentID, orgID string, attributes map[string]string) error {
	if len(attributes) == 0 {
		return nil
	}

	keys := make([]string, 0, len(attributes))
	for key := range attributes {
		keys = append(keys, key)
	}

	if err := dao.DeleteKeys(ctx, tx, consentID, orgID, keys); err != nil {
		return err
	}
	return dao.Create(ctx, tx, consentID, orgID, attributes)
}

// GetByConsentID retrieves all attributes of a consent
func (dao *ConsentAttributeDAO) GetByConsentID(ctx context.Context, tx *database.Transaction, consentID, orgID string) (map[string]string, error) {
	q := dao.db.Querier(tx)
	query := q.Rebind(`
		SELECT CONSENT_ID, ATT_KEY, ATT_VALUE, ORG_ID
		FROM FS_CONSENT_ATTRIBUTE
		WHERE CONSENT_ID = ? AND ORG_ID = ?
	`)

	var attributes []models.ConsentAttribute
	if err := q.SelectContext(ctx, &attributes, query, consentID, orgID); err != nil {
		return nil, fmt.Errorf("failed to get consent attributes: %w", err)
	}

	result := make(map[string]string, len(attributes))
	for _, attr := range attributes {
		result[attr.AttKey] = attr.AttValue
	}

	return result, nil
}

// GetByKey retrieves a specific attribute value by key
func (dao *ConsentAttributeDAO) GetByKey(ctx context.Context, tx *database.Transaction, consentID, orgID, key string) (string, error) {
	q := dao.db.Querier(tx)
	query := q.Rebind(`
		SELECT ATT_VALUE
		FROM FS_CONSENT_ATTRIBUTE
		WHERE CONSENT_ID = ? AND ORG_ID = ? AND ATT_KEY = ?
	`)

	var value string
	if err := q.GetContext(ctx, &value, query, consentID, orgID, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("attribute %s: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("failed to get consent attribute: %w", err)
	}

	return value, nil
}

// FindConsentIDsByAttribute returns the consents of an org holding key=value
func (dao *ConsentAttributeDAO) FindConsentIDsByAttribute(ctx context.Context, orgID, key, value string) ([]string, error) {
	query := dao.db.Rebind(`
		SELECT CONSENT_ID
		FROM FS_CONSENT_ATTRIBUTE
		WHERE ORG_ID = ? AND ATT_KEY = ? AND ATT_VALUE = ?
	`)

	ids := []string{}
	if err := dao.db.SelectContext(ctx, &ids, query, orgID, key, value); err != nil {
		return nil, fmt.Errorf("failed to find consents by attribute: %w", err)
	}

	return ids, nil
}

// FindByKey returns the attribute rows named key in an organization. An
// empty orgID searches every organization.
func (dao *ConsentAttributeDAO) FindByKey(ctx context.Context, orgID, key string) ([]models.ConsentAttribute, error) {
	query := `
		SELECT CONSENT_ID, ATT_KEY, ATT_VALUE, ORG_ID
		FROM FS_CONSENT_ATTRIBUTE
		WHERE ATT_KEY = ?`
	args := []interface{}{key}
	if orgID != "" {
		query += " AND ORG_ID = ?"
		args = append(args, orgID)
	}

	attributes := []models.ConsentAttribute{}
	if err := dao.db.SelectContext(ctx, &attributes, dao.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to find attributes by key: %w", err)
	}

	return attributes, nil
}

// DeleteKeys removes the named attributes of a consent
func (dao *ConsentAttributeDAO) DeleteKeys(ctx context.Context, tx *database.Transaction, consentID, orgID string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`
		DELETE FROM FS_CONSENT_ATTRIBUTE
		WHERE CONSENT_ID = ? AND ORG_ID = ? AND ATT_KEY IN (?)
	`, consentID, orgID, keys)
	if err != nil {
		return fmt.Errorf("failed to build attribute delete: %w", err)
	}

	q := dao.db.Querier(tx)
	if _, err := q.ExecContext(ctx, q.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to delete consent attributes: %w", err)
	}

	return nil
}
