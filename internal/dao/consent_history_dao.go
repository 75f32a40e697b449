package dao

import (
	"context"
	"fmt"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/models"
)

// ConsentHistoryDAO appends and reads detailed consent snapshots. Like the
// status audit, rows are never updated.
type ConsentHistoryDAO struct {
	db *database.DB
}

// NewConsentHistoryDAO creates a new ConsentHistoryDAO instance
func NewConsentHistoryDAO(db *database.DB) *ConsentHistoryDAO {
	return &ConsentHistoryDAO{db: db}
}

// Create appends a snapshot
func (dao *ConsentHistoryDAO) Create(ctx context.Context, tx *database.Transaction, record *models.ConsentHistoryRecord) error {
	q := dao.db.Querier(tx)
	query := q.Rebind(`
		INSERT INTO FS_CONSENT_HISTORY (
			HISTORY_ID, CONSENT_ID, STATUS_AUDIT_ID, HISTORY_DATA,
			REASON, EFFECTIVE_TIME, ORG_ID
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := q.ExecContext(
		ctx,
		query,
		record.HistoryID,
		record.ConsentID,
		record.StatusAuditID,
		record.HistoryData,
		record.Reason,
		record.EffectiveTime,
		record.OrgID,
	)
	if err != nil {
		return fmt.Errorf("failed to create consent history: %w", err)
	}

	return nil
}

// GetByConsentID retrieves the snapshots of a consent, oldest first
func (dao *ConsentHistoryDAO) GetByConsentID(ctx context.Context, consentID, orgID string) ([]models.ConsentHistoryRecord, error) {
	query := dao.db.Rebind(`
		SELECT HISTORY_ID, CONSENT_ID, STATUS_AUDIT_ID, HISTORY_DATA,
		       REASON, EFFECTIVE_TIME, ORG_ID
		FROM FS_CONSENT_HISTORY
		WHERE CONSENT_ID = ? AND ORG_ID = ?
		ORDER BY EFFECTIVE_TIME ASC`)

	records := []models.ConsentHistoryRecord{}
	if err := dao.db.SelectContext(ctx, &records, query, consentID, orgID); err != nil {
		return nil, fmt.Errorf("failed to get consent history: %w", err)
	}

	return records, nil
}
