package dao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/models"
)

const authColumns = `AUTH_ID, CONSENT_ID, AUTH_TYPE, USER_ID, AUTH_STATUS, UPDATED_TIME, ORG_ID`

// AuthResourceDAO handles database operations for authorization resources
type AuthResourceDAO struct {
	db *database.DB
}

// NewAuthResourceDAO creates a new AuthResourceDAO instance
func NewAuthResourceDAO(db *database.DB) *AuthResourceDAO {
	return &AuthResourceDAO{db: db}
}

// Create inserts a new authorization resource
func (dao *AuthResourceDAO) Create(ctx context.Context, tx *database.Transaction, auth *models.AuthorizationResource) error {
	q := dao.db.Querier(tx)
	query := q.Rebind(`
		INSERT INTO FS_CONSENT_AUTH_RESOURCE (
			AUTH_ID, CONSENT_ID, AUTH_TYPE, USER_ID, AUTH_STATUS, UPDATED_TIME, ORG_ID
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := q.ExecContext(
		ctx,
		query,
		auth.AuthorizationID,
		auth.ConsentID,
		auth.AuthorizationType,
		auth.UserID,
		auth.AuthorizationStatus,
		auth.UpdatedTime,
		auth.OrgID,
	)
	if err != nil {
		return fmt.Errorf("failed to create authorization resource: %w", err)
	}

	return nil
}

// GetByID retrieves an authorization resource by ID and organization ID
func (dao *AuthResourceDAO) GetByID(ctx context.Context, tx *database.Transaction, authID, orgID string) (*models.AuthorizationResource, error) {
	q := dao.db.Querier(tx)
	query := q.Rebind(`SELECT ` + authColumns + `
		FROM FS_CONSENT_AUTH_RESOURCE
		WHERE AUTH_ID = ? AND ORG_ID = ?`)

	var auth models.AuthorizationResource
	if err := q.GetContext(ctx, &auth, query, authID, orgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("authorization resource %s: %w", authID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get authorization resource: %w", err)
	}

	return &auth, nil
}

// GetByConsentID retrieves all authorization resources for a consent
func (dao *AuthResourceDAO) GetByConsentID(ctx context.Context, tx *database.Transaction, consentID, orgID string) ([]models.AuthorizationResource, error) {
	q := dao.db.Querier(tx)
	query := q.Rebind(`SELECT ` + authColumns + `
		FROM FS_CONSENT_AUTH_RESOURCE
		WHERE CONSENT_ID = ? AND ORG_ID = ?
		ORDER BY UPDATED_TIME ASC`)

	auths := []models.AuthorizationResource{}
	if err := q.SelectContext(ctx, &auths, query, consentID, orgID); err != nil {
		return nil, fmt.Errorf("failed to get authorization resources: %w", err)
	}

	return auths, nil
}

// Authorize marks an authorization as authorised for userID.
// It returns ErrStatusConflict when the row was already authorised by a concurrent request.
func (dao *AuthResourceDAO) Authorize(ctx context.Context, tx *database.Transaction, authID, consentID, orgID, userID string, updatedTime int64) error {
	q := dao.db.Querier(tx)
	query := q.Rebind(`
		UPDATE FS_CONSENT_AUTH_RESOURCE
		SET AUTH_STATUS = ?, USER_ID = ?, UPDATED_TIME = ?
		WHERE AUTH_ID = ? AND CONSENT_ID = ? AND ORG_ID = ? AND AUTH_STATUS <> ?
	`)

	authorised := string(models.AuthStatusAuthorised)
	result, err := q.ExecContext(ctx, query, authorised, userID, updatedTime, authID, consentID, orgID, authorised)
	if err != nil {
		return fmt.Errorf("failed to authorize authorization resource: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("authorization resource %s: %w", authID, ErrStatusConflict)
	}

	return nil
}

// UpdateStatusByConsentID sets the status of every authorization of a consent
func (dao *AuthResourceDAO) UpdateStatusByConsentID(ctx context.Context, tx *database.Transaction, consentID, orgID, status string, updatedTime int64) error {
	q := dao.db.Querier(tx)
	query := q.Rebind(`
		UPDATE FS_CONSENT_AUTH_RESOURCE
		SET AUTH_STATUS = ?, UPDATED_TIME = ?
		WHERE CONSENT_ID = ? AND ORG_ID = ?
	`)

	if _, err := q.ExecContext(ctx, query, status, updatedTime, consentID, orgID); err != nil {
		return fmt.Errorf("failed to update authorization statuses: %w", err)
	}

	return nil
}

// UpdateStatus sets the status of one authorization
func (dao *AuthResourceDAO) UpdateStatus(ctx context.Context, tx *database.Transaction, authID, orgID, status string, updatedTime int64) error {
	q := dao.db.Querier(tx)
	query := q.Rebind(`
		UPDATE FS_CONSENT_AUTH_RESOURCE
		SET AUTH_STATUS = ?, UPDATED_TIME = ?
		WHERE AUTH_ID = ? AND ORG_ID = ?
	`)

	if _, err := q.ExecContext(ctx, query, status, updatedTime, authID, orgID); err != nil {
		return fmt.Errorf("failed to update authorization status: %w", err)
	}

	return nil
}

// CountByStatus counts authorizations of a consent in the given status
func (dao *AuthResourceDAO) CountByStatus(ctx context.Context, tx *database.Transaction, consentID, orgID, status string) (int, error) {
	q := dao.db.Querier(tx)
	query := q.Rebind(`
		SELECT COUNT(*)
		FROM FS_CONSENT_AUTH_RESOURCE
		WHERE CONSENT_ID = ? AND ORG_ID = ? AND AUTH_STATUS = ?
	`)

	var count int
	if err := q.GetContext(ctx, &count, query, consentID, orgID, status); err != nil {
		return 0, fmt.Errorf("failed to count authorization resources: %w", err)
	}

	return count, nil
}
