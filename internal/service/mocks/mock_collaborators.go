package mocks

import (
	"context"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/idempotency"
)

// TxRunner runs transaction closures with a nil transaction and counts them
type TxRunner struct {
	calls atomic.Int64
}

func (r *TxRunner) WithTransaction(_ context.Context, fn func(*database.Transaction) error) error {
	r.calls.Add(1)
	return fn(nil)
}

// Calls returns the number of transactions run
func (r *TxRunner) Calls() int64 {
	return r.calls.Load()
}

// MockTokenRevoker is a mock implementation of the token revoker
type MockTokenRevoker struct {
	mock.Mock
}

func (m *MockTokenRevoker) RevokeTokens(ctx context.Context, consentID, orgID string) error {
	args := m.Called(ctx, consentID, orgID)
	return args.Error(0)
}

// MockIdempotencyGuard is a mock implementation of the idempotency guard
type MockIdempotencyGuard struct {
	mock.Mock
}

func (m *MockIdempotencyGuard) Check(ctx context.Context, req idempotency.Request) (idempotency.Decision, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(idempotency.Decision), args.Error(1)
}

func (m *MockIdempotencyGuard) Record(ctx context.Context, tx *database.Transaction, consentID string, req idempotency.Request) error {
	args := m.Called(ctx, tx, consentID, req)
	return args.Error(0)
}
