package dao

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/models"
)

// ConsentMappingDAO handles account/permission mappings.
// Mappings are deactivated through UpdateStatus and never deleted.
type ConsentMappingDAO struct {
	db *database.DB
}

// NewConsentMappingDAO creates a new ConsentMappingDAO instance
func NewConsentMappingDAO(db *database.DB) *ConsentMappingDAO {
	return &ConsentMappingDAO{db: db}
}

// Create inserts a new mapping
func (dao *ConsentMappingDAO) Create(ctx context.Context, tx *database.Transaction, mapping *models.ConsentMappingResource) error {
	q := dao.db.Querier(tx)
	query := q.Rebind(`
		INSERT INTO FS_CONSENT_MAPPING (
			MAPPING_ID, AUTH_ID, ACCOUNT_ID, PERMISSION, MAPPING_STATUS, ORG_ID
		) VALUES (?, ?, ?, ?, ?, ?)
	`)

	_, err := q.ExecContext(
		ctx,
		query,
		mapping.MappingID,
		mapping.AuthorizationID,
		mapping.AccountID,
		mapping.Permission,
		mapping.MappingStatus,
		mapping.OrgID,
	)
	if err != nil {
		return fmt.Errorf("failed to create consent mapping: %w", err)
	}

	return nil
}

// GetByAuthorizationIDs retrieves the mappings of the given authorizations
func (dao *ConsentMappingDAO) GetByAuthorizationIDs(ctx context.Context, tx *database.Transaction, authIDs []string, orgID string) ([]models.ConsentMappingResource, error) {
	mappings := []models.ConsentMappingResource{}
	if len(authIDs) == 0 {
		return mappings, nil
	}

	query, args, err := sqlx.In(`
		SELECT MAPPING_ID, AUTH_ID, ACCOUNT_ID, PERMISSION, MAPPING_STATUS, ORG_ID
		FROM FS_CONSENT_MAPPING
		WHERE AUTH_ID IN (?) AND ORG_ID = ?
	`, authIDs, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to build mapping query: %w", err)
	}

	q := dao.db.Querier(tx)
	if err := q.SelectContext(ctx, &mappings, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get consent mappings: %w", err)
	}

	return mappings, nil
}

// UpdateStatus flips the status of every mapping of the given authorizations
func (dao *ConsentMappingDAO) UpdateStatus(ctx context.Context, tx *database.Transaction, authIDs []string, orgID, status string) error {
	if len(authIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`
		UPDATE FS_CONSENT_MAPPING
		SET MAPPING_STATUS = ?
		WHERE AUTH_ID IN (?) AND ORG_ID = ?
	`, status, authIDs, orgID)
	if err != nil {
		return fmt.Errorf("failed to build mapping update: %w", err)
	}

	q := dao.db.Querier(tx)
	if _, err := q.ExecContext(ctx, q.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to update consent mapping status: %w", err)
	}

	return nil
}

// UpdateStatusByIDs flips the status of the given mappings
func (dao *ConsentMappingDAO) UpdateStatusByIDs(ctx context.Context, tx *database.Transaction, mappingIDs []string, orgID, status string) error {
	if len(mappingIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`
		UPDATE FS_CONSENT_MAPPING
		SET MAPPING_STATUS = ?
		WHERE MAPPING_ID IN (?) AND ORG_ID = ?
	`, status, mappingIDs, orgID)
	if err != nil {
		return fmt.Errorf("failed to build mapping update: %w", err)
	}

	q := dao.db.Querier(tx)
	if _, err := q.ExecContext(ctx, q.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to update consent mapping status: %w", err)
	}

	return nil
}
