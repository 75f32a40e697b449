package dao

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/models"
)

// StatusAuditDAO appends and reads status audit records. There is no update or delete path.
type StatusAuditDAO struct {
	db *database.DB
}

// NewStatusAuditDAO creates a new StatusAuditDAO instance
func NewStatusAuditDAO(db *database.DB) *StatusAuditDAO {
	return &StatusAuditDAO{db: db}
}

// Create appends an audit record
func (dao *StatusAuditDAO) Create(ctx context.Context, tx *database.Transaction, audit *models.ConsentStatusAuditRecord) error {
	q := dao.db.Querier(tx)
	query := q.Rebind(`
		INSERT INTO FS_CONSENT_STATUS_AUDIT (
			STATUS_AUDIT_ID, CONSENT_ID, CURRENT_STATUS, ACTION_TIME,
			REASON, ACTION_BY, PREVIOUS_STATUS, ORG_ID
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := q.ExecContext(
		ctx,
		query,
		audit.StatusAuditID,
		audit.ConsentID,
		audit.CurrentStatus,
		audit.ActionTime,
		audit.Reason,
		audit.ActionBy,
		audit.PreviousStatus,
		audit.OrgID,
	)
	if err != nil {
		return fmt.Errorf("failed to create status audit: %w", err)
	}

	return nil
}

// GetLatestActionTime returns the newest action time recorded for a consent, or 0
func (dao *StatusAuditDAO) GetLatestActionTime(ctx context.Context, tx *database.Transaction, consentID, orgID string) (int64, error) {
	q := dao.db.Querier(tx)
	query := q.Rebind(`
		SELECT COALESCE(MAX(ACTION_TIME), 0)
		FROM FS_CONSENT_STATUS_AUDIT
		WHERE CONSENT_ID = ? AND ORG_ID = ?
	`)

	var latest int64
	if err := q.GetContext(ctx, &latest, query, consentID, orgID); err != nil {
		return 0, fmt.Errorf("failed to get latest audit time: %w", err)
	}

	return latest, nil
}

// GetByConsentID retrieves the audit trail of a consent, oldest first
func (dao *StatusAuditDAO) GetByConsentID(ctx context.Context, consentID, orgID string, filter models.HistoryFilter) ([]models.ConsentStatusAuditRecord, error) {
	conditions := []string{"CONSENT_ID = ?", "ORG_ID = ?"}
	args := []interface{}{consentID, orgID}

	if len(filter.Statuses) > 0 {
		clause, inArgs, err := sqlx.In("CURRENT_STATUS IN (?)", filter.Statuses)
		if err != nil {
			return nil, fmt.Errorf("failed to expand status filter: %w", err)
		}
		conditions = append(conditions, clause)
		args = append(args, inArgs...)
	}
	if filter.ActionBy != "" {
		conditions = append(conditions, "ACTION_BY = ?")
		args = append(args, filter.ActionBy)
	}
	if filter.AuditID != "" {
		conditions = append(conditions, "STATUS_AUDIT_ID = ?")
		args = append(args, filter.AuditID)
	}
	if filter.FromTime > 0 {
		conditions = append(conditions, "ACTION_TIME >= ?")
		args = append(args, filter.FromTime)
	}
	if filter.ToTime > 0 {
		conditions = append(conditions, "ACTION_TIME <= ?")
		args = append(args, filter.ToTime)
	}

	query := dao.db.Rebind(`
		SELECT STATUS_AUDIT_ID, CONSENT_ID, CURRENT_STATUS, ACTION_TIME,
		       REASON, ACTION_BY, PREVIOUS_STATUS, ORG_ID
		FROM FS_CONSENT_STATUS_AUDIT
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY ACTION_TIME ASC`)

	audits := []models.ConsentStatusAuditRecord{}
	if err := dao.db.SelectContext(ctx, &audits, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get status audits: %w", err)
	}

	return audits, nil
}
