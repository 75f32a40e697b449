package dao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/models"
)

// ConsentFileDAO handles database operations for uploaded payment files
type ConsentFileDAO struct {
	db *database.DB
}

// NewConsentFileDAO creates a new ConsentFileDAO instance
func NewConsentFileDAO(db *database.DB) *ConsentFileDAO {
	return &ConsentFileDAO{db: db}
}

// Create stores the file of a consent
func (dao *ConsentFileDAO) Create(ctx context.Context, tx *database.Transaction, file *models.ConsentFile) error {
	q := dao.db.Querier(tx)
	query := q.Rebind(`
		INSERT INTO FS_CONSENT_FILE (CONSENT_ID, CONSENT_FILE, ORG_ID)
		VALUES (?, ?, ?)
	`)

	if _, err := q.ExecContext(ctx, query, file.ConsentID, file.ConsentFile, file.OrgID); err != nil {
		return fmt.Errorf("failed to store consent file: %w", err)
	}

	return nil
}

// Get retrieves the file of a consent
func (dao *ConsentFileDAO) Get(ctx context.Context, consentID, orgID string) (*models.ConsentFile, error) {
	query := dao.db.Rebind(`
		SELECT CONSENT_ID, CONSENT_FILE, ORG_ID
		FROM FS_CONSENT_FILE
		WHERE CONSENT_ID = ? AND ORG_ID = ?
	`)

	var file models.ConsentFile
	if err := dao.db.GetContext(ctx, &file, query, consentID, orgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("consent file %s: %w", consentID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get consent file: %w", err)
	}

	return &file, nil
}
