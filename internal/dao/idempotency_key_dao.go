package dao

import (
	"context"
	"fmt"

	"github.com/wso2/ob-consent-engine/internal/database"
)

// IdempotencyKeyDAO keeps one row per live idempotency key. The primary key
// on (ORG_ID, OPERATION, IDEMPOTENCY_KEY) makes a second claim of the same
// key fail, or wait for the transaction holding it.
type IdempotencyKeyDAO struct {
	db *database.DB
}

// NewIdempotencyKeyDAO creates a new IdempotencyKeyDAO instance
func NewIdempotencyKeyDAO(db *database.DB) *IdempotencyKeyDAO {
	return &IdempotencyKeyDAO{db: db}
}

// Claim inserts the key for consentID. It returns false when the key is
// already held in the org.
func (dao *IdempotencyKeyDAO) Claim(ctx context.Context, tx *database.Transaction, orgID, operation, key, consentID string, createdTime int64) (bool, error) {
	q := dao.db.Querier(tx)
	query := q.Rebind(`
		INSERT INTO FS_CONSENT_IDEMPOTENCY_KEY (ORG_ID, OPERATION, IDEMPOTENCY_KEY, CONSENT_ID, CREATED_TIME)
		VALUES (?, ?, ?, ?, ?)
	`)
	if _, err := q.ExecContext(ctx, query, orgID, operation, key, consentID, createdTime); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	return true, nil
}

// Release removes the key so it can be claimed again
func (dao *IdempotencyKeyDAO) Release(ctx context.Context, tx *database.Transaction, orgID, operation, key string) error {
	q := dao.db.Querier(tx)
	query := q.Rebind(`
		DELETE FROM FS_CONSENT_IDEMPOTENCY_KEY
		WHERE ORG_ID = ? AND OPERATION = ? AND IDEMPOTENCY_KEY = ?
	`)
	if _, err := q.ExecContext(ctx, query, orgID, operation, key); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}
