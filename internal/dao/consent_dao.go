package dao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/models"
)

const consentColumns = `CONSENT_ID, RECEIPT, CREATED_TIME, UPDATED_TIME, CLIENT_ID,
		       CONSENT_TYPE, CURRENT_STATUS, CONSENT_FREQUENCY, VALIDITY_TIME,
		       RECURRING_INDICATOR, ORG_ID`

// ConsentDAO handles database operations for consents.
// The receipt column is written once on insert and has no update path.
// Amendments change the validity window only.
type ConsentDAO struct {
	db *database.DB
}

// NewConsentDAO creates a new ConsentDAO instance
func NewConsentDAO(db *database.DB) *ConsentDAO {
	return &ConsentDAO{db: db}
}

// Create inserts a new consent
func (dao *ConsentDAO) Create(ctx context.Context, tx *database.Transaction, consent *models.ConsentResource) error {
	q := dao.db.Querier(tx)
	query := q.Rebind(`
		INSERT INTO FS_CONSENT (
			CONSENT_ID, RECEIPT, CREATED_TIME, UPDATED_TIME, CLIENT_ID,
			CONSENT_TYPE, CURRENT_STATUS, CONSENT_FREQUENCY, VALIDITY_TIME,
			RECURRING_INDICATOR, ORG_ID
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := q.ExecContext(
		ctx,
		query,
		consent.ConsentID,
		consent.Receipt,
		consent.CreatedTime,
		consent.UpdatedTime,
		consent.ClientID,
		consent.ConsentType,
		consent.CurrentStatus,
		consent.ConsentFrequency,
		consent.ValidityTime,
		consent.RecurringIndicator,
		consent.OrgID,
	)
	if err != nil {
		return fmt.Errorf("failed to create consent: %w", err)
	}

	return nil
}

// GetByID retrieves a consent by ID and organization ID
func (dao *ConsentDAO) GetByID(ctx context.Context, tx *database.Transaction, consentID, orgID string) (*models.ConsentResource, error) {
	return dao.get(ctx, tx, consentID, orgID, false)
}

// GetForUpdate retrieves a consent and locks its row until tx ends
func (dao *ConsentDAO) GetForUpdate(ctx context.Context, tx *database.Transaction, consentID, orgID string) (*models.ConsentResource, error) {
	if tx == nil {
		return nil, fmt.Errorf("row lock requires a transaction")
	}
	return dao.get(ctx, tx, consentID, orgID, true)
}

func (dao *ConsentDAO) get(ctx context.Context, tx *database.Transaction, consentID, orgID string, lock bool) (*models.ConsentResource, error) {
	q := dao.db.Querier(tx)
	query := `SELECT ` + consentColumns + `
		FROM FS_CONSENT
		WHERE CONSENT_ID = ? AND ORG_ID = ?`
	if lock {
		query += " FOR UPDATE"
	}

	var consent models.ConsentResource
	if err := q.GetContext(ctx, &consent, q.Rebind(query), consentID, orgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("consent %s: %w", consentID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}

	return &consent, nil
}

// UpdateStatus moves a consent from expected to newStatus.
// It matches no row, and returns ErrStatusConflict, when the stored status is no longer expected.
func (dao *ConsentDAO) UpdateStatus(ctx context.Context, tx *database.Transaction, consentID, orgID, expected, newStatus string, updatedTime int64) error {
	q := dao.db.Querier(tx)
	query := q.Rebind(`
		UPDATE FS_CONSENT
		SET CURRENT_STATUS = ?, UPDATED_TIME = ?
		WHERE CONSENT_ID = ? AND ORG_ID = ? AND CURRENT_STATUS = ?
	`)

	result, err := q.ExecContext(ctx, query, newStatus, updatedTime, consentID, orgID, expected)
	if err != nil {
		return fmt.Errorf("failed to update consent status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("consent %s: %w", consentID, ErrStatusConflict)
	}

	return nil
}

// UpdateValidity sets the validity time and frequency of a consent
func (dao *ConsentDAO) UpdateValidity(ctx context.Context, tx *database.Transaction, consentID, orgID string, validityTime int64, frequency int, updatedTime int64) error {
	q := dao.db.Querier(tx)
	query := q.Rebind(`
		UPDATE FS_CONSENT
		SET VALIDITY_TIME = ?, CONSENT_FREQUENCY = ?, UPDATED_TIME = ?
		WHERE CONSENT_ID = ? AND ORG_ID = ?
	`)

	result, err := q.ExecContext(ctx, query, validityTime, frequency, updatedTime, consentID, orgID)
	if err != nil {
		return fmt.Errorf("failed to update consent validity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("consent %s: %w", consentID, ErrNotFound)
	}

	return nil
}

// Search retrieves consents matching the filter along with the total match count
func (dao *ConsentDAO) Search(ctx context.Context, filter models.ConsentSearchFilter) ([]models.ConsentResource, int, error) {
	where, args, err := buildSearchWhere(filter)
	if err != nil {
		return nil, 0, err
	}

	from := " FROM FS_CONSENT c"
	if len(filter.UserIDs) > 0 {
		from += " JOIN FS_CONSENT_AUTH_RESOURCE a ON a.CONSENT_ID = c.CONSENT_ID AND a.ORG_ID = c.ORG_ID"
	}

	countQuery := dao.db.Rebind("SELECT COUNT(DISTINCT c.CONSENT_ID)" + from + where)
	var total int
	if err := dao.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count consents: %w", err)
	}

	selectQuery := dao.db.Rebind(`SELECT DISTINCT c.CONSENT_ID, c.RECEIPT, c.CREATED_TIME, c.UPDATED_TIME, c.CLIENT_ID,
		c.CONSENT_TYPE, c.CURRENT_STATUS, c.CONSENT_FREQUENCY, c.VALIDITY_TIME,
		c.RECURRING_INDICATOR, c.ORG_ID` + from + where + " ORDER BY c.CREATED_TIME DESC LIMIT ? OFFSET ?")

	consents := []models.ConsentResource{}
	if err := dao.db.SelectContext(ctx, &consents, selectQuery, append(args, filter.Limit, filter.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to search consents: %w", err)
	}

	return consents, total, nil
}

func buildSearchWhere(filter models.ConsentSearchFilter) (string, []interface{}, error) {
	conditions := []string{"c.ORG_ID = ?"}
	args := []interface{}{filter.OrgID}

	addIn := func(column string, values []string) error {
		if len(values) == 0 {
			return nil
		}
		clause, inArgs, err := sqlx.In(column+" IN (?)", values)
		if err != nil {
			return fmt.Errorf("failed to expand %s filter: %w", column, err)
		}
		conditions = append(conditions, clause)
		args = append(args, inArgs...)
		return nil
	}

	if err := addIn("c.CONSENT_TYPE", filter.ConsentTypes); err != nil {
		return "", nil, err
	}
	if err := addIn("c.CURRENT_STATUS", filter.Statuses); err != nil {
		return "", nil, err
	}
	if err := addIn("c.CLIENT_ID", filter.ClientIDs); err != nil {
		return "", nil, err
	}
	if err := addIn("a.USER_ID", filter.UserIDs); err != nil {
		return "", nil, err
	}

	if filter.FromTime > 0 {
		conditions = append(conditions, "c.UPDATED_TIME >= ?")
		args = append(args, filter.FromTime)
	}
	if filter.ToTime > 0 {
		conditions = append(conditions, "c.UPDATED_TIME <= ?")
		args = append(args, filter.ToTime)
	}

	return " WHERE " + strings.Join(conditions, " AND "), args, nil
}

// ListExpired returns consents in status whose validity time has passed.
// An empty orgID scans every organization.
func (dao *ConsentDAO) ListExpired(ctx context.Context, orgID, status string, nowSeconds int64) ([]models.ConsentResource, error) {
	query := `SELECT ` + consentColumns + `
		FROM FS_CONSENT
		WHERE CURRENT_STATUS = ? AND VALIDITY_TIME > 0 AND VALIDITY_TIME < ?`
	args := []interface{}{status, nowSeconds}
	if orgID != "" {
		query += " AND ORG_ID = ?"
		args = append(args, orgID)
	}

	consents := []models.ConsentResource{}
	if err := dao.db.SelectContext(ctx, &consents, dao.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list expired consents: %w", err)
	}

	return consents, nil
}
