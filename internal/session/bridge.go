package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// FallbackStore is a durable store whose entries belong to an organization
type FallbackStore interface {
	Put(ctx context.Context, key string, data *ConsentData) error
	Get(ctx context.Context, orgID, key string) (*ConsentData, error)
	Exists(ctx context.Context, orgID, key string) (bool, error)
}

// LookupRecorder observes session lookups
type LookupRecorder interface {
	SessionLookup(store, result string)
}

// Bridge reads consent data from a primary cache and falls back to a durable store
type Bridge struct {
	primary  SessionStore
	fallback FallbackStore
	recorder LookupRecorder
	logger   *logrus.Logger
}

// NewBridge creates a Bridge. Either store may be nil; a nil fallback
// disables preservation.
func NewBridge(primary SessionStore, fallback FallbackStore, recorder LookupRecorder, logger *logrus.Logger) *Bridge {
	return &Bridge{primary: primary, fallback: fallback, recorder: recorder, logger: logger}
}

// Store saves data under key in the primary store, and in the fallback
// when it does not hold the key yet
func (b *Bridge) Store(ctx context.Context, key string, data *ConsentData) error {
	if data.SessionDataKey == "" {
		data.SessionDataKey = key
	}
	if b.primary != nil {
		if err := b.primary.Put(ctx, key, data); err != nil {
			return fmt.Errorf("failed to cache consent data: %w", err)
		}
	}

	if b.fallback == nil || data.ConsentID == "" {
		return nil
	}
	exists, err := b.fallback.Exists(ctx, data.OrgID, key)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := b.fallback.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to preserve consent data: %w", err)
	}
	return nil
}

// Retrieve returns the consent data for key. When orgID is set, data of
// another organization is not returned. ErrConsentDataUnavailable is returned
// when neither store has it.
func (b *Bridge) Retrieve(ctx context.Context, orgID, key string) (*ConsentData, error) {
	if b.primary != nil {
		data, err := b.primary.Get(ctx, key)
		if err == nil && !belongsTo(data, orgID) {
			err = ErrNotFound
		}
		switch {
		case err == nil:
			b.record("primary", "hit")
			return data, nil
		case errors.Is(err, ErrNotFound):
			b.record("primary", "miss")
		default:
			b.logger.WithError(err).WithField("session_key", key).Warn("Primary session store failed, trying fallback")
			b.record("primary", "error")
		}
	}

	if b.fallback != nil {
		data, err := b.fallback.Get(ctx, orgID, key)
		switch {
		case err == nil:
			b.record("fallback", "hit")
			return data, nil
		case errors.Is(err, ErrNotFound):
			b.record("fallback", "miss")
		default:
			b.record("fallback", "error")
			return nil, fmt.Errorf("%w: %v", ErrConsentDataUnavailable, err)
		}
	}

	b.logger.WithField("session_key", key).Error("Consent data not found in any session store")
	return nil, ErrConsentDataUnavailable
}

func belongsTo(data *ConsentData, orgID string) bool {
	return orgID == "" || data.OrgID == "" || data.OrgID == orgID
}

func (b *Bridge) record(store, result string) {
	if b.recorder != nil {
		b.recorder.SessionLookup(store, result)
	}
}
