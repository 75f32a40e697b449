// Package idempotency detects replayed consent requests by an idempotency key
// stored alongside the consent it created.
package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wso2/ob-consent-engine/internal/database"
)

// Operations guarded by idempotency keys
const (
	OperationCreate     = "create"
	OperationFileUpload = "file-upload"
)

var (
	// ErrKeyReused is returned when a live key is presented with another body or client
	ErrKeyReused = errors.New("idempotency key was already used for a different request")
	// ErrKeyClaimed is returned by Record when a concurrent request holds the key
	ErrKeyClaimed = errors.New("idempotency key is held by a concurrent request")
)

// AttributeStore is the consent attribute storage the guard records into
type AttributeStore interface {
	FindConsentIDsByAttribute(ctx context.Context, orgID, key, value string) ([]string, error)
	GetByConsentID(ctx context.Context, tx *database.Transaction, consentID, orgID string) (map[string]string, error)
	Put(ctx context.Context, tx *database.Transaction, consentID, orgID string, attributes map[string]string) error
	DeleteKeys(ctx context.Context, tx *database.Transaction, consentID, orgID string, keys []string) error
}

// KeyStore holds one row per live key and refuses a second claim of it
type KeyStore interface {
	Claim(ctx context.Context, tx *database.Transaction, orgID, operation, key, consentID string, createdTime int64) (bool, error)
	Release(ctx context.Context, tx *database.Transaction, orgID, operation, key string) error
}

type Config struct {
	Enabled     bool
	AllowedTime time.Duration
}

// Request identifies a guarded call
type Request struct {
	Key       string
	Operation string
	OrgID     string
	ClientID  string
	Body      []byte
}

// Decision tells the caller whether to run the request or replay a previous one
type Decision struct {
	Replay    bool
	ConsentID string
}

type Guard struct {
	store  AttributeStore
	keys   KeyStore
	cfg    Config
	logger *logrus.Logger
	now    func() time.Time
}

// NewGuard creates a Guard. keys may be nil, in which case concurrent
// requests with the same key are not serialized.
func NewGuard(store AttributeStore, keys KeyStore, cfg Config, logger *logrus.Logger) *Guard {
	return &Guard{store: store, keys: keys, cfg: cfg, logger: logger, now: time.Now}
}

func (g *Guard) active(req Request) bool {
	return g.cfg.Enabled && strings.TrimSpace(req.Key) != "" && len(req.Body) > 0
}

// Check looks up a previous request with the same key, operation and org
func (g *Guard) Check(ctx context.Context, req Request) (Decision, error) {
	if !g.active(req) {
		return Decision{}, nil
	}

	consentIDs, err := g.store.FindConsentIDsByAttribute(ctx, req.OrgID, keyAttribute(req.Operation), req.Key)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to look up idempotency key: %w", err)
	}

	fingerprint := Fingerprint(req.Body)
	for _, consentID := range consentIDs {
		attrs, err := g.store.GetByConsentID(ctx, nil, consentID, req.OrgID)
		if err != nil {
			return Decision{}, fmt.Errorf("failed to read idempotency record of consent %s: %w", consentID, err)
		}

		if g.expired(attrs[timeAttribute(req.Operation)]) {
			g.logger.WithFields(logrus.Fields{
				"consent_id": consentID,
				"org_id":     req.OrgID,
				"operation":  req.Operation,
			}).Info("Idempotency record expired, overwriting")
			if err := g.store.DeleteKeys(ctx, nil, consentID, req.OrgID, recordKeys(req.Operation)); err != nil {
				return Decision{}, fmt.Errorf("failed to remove expired idempotency record: %w", err)
			}
			if g.keys != nil {
				if err := g.keys.Release(ctx, nil, req.OrgID, req.Operation, req.Key); err != nil {
					return Decision{}, err
				}
			}
			continue
		}

		if attrs[clientAttribute(req.Operation)] != req.ClientID || attrs[fingerprintAttribute(req.Operation)] != fingerprint {
			return Decision{}, ErrKeyReused
		}
		return Decision{Replay: true, ConsentID: consentID}, nil
	}
	return Decision{}, nil
}

// Record stores the key against consentID. It is a no-op when the guard is
// not active for req. ErrKeyClaimed is returned when another transaction
// recorded the same key first; tx must then be rolled back.
func (g *Guard) Record(ctx context.Context, tx *database.Transaction, consentID string, req Request) error {
	if !g.active(req) {
		return nil
	}
	at := g.now().UnixMilli()
	if g.keys != nil {
		claimed, err := g.keys.Claim(ctx, tx, req.OrgID, req.Operation, req.Key, consentID, at)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrKeyClaimed
		}
	}
	attrs := map[string]string{
		keyAttribute(req.Operation):         req.Key,
		fingerprintAttribute(req.Operation): Fingerprint(req.Body),
		timeAttribute(req.Operation):        strconv.FormatInt(at, 10),
		clientAttribute(req.Operation):      req.ClientID,
	}
	if err := g.store.Put(ctx, tx, consentID, req.OrgID, attrs); err != nil {
		return fmt.Errorf("failed to record idempotency key: %w", err)
	}
	return nil
}

func (g *Guard) expired(recorded string) bool {
	millis, err := strconv.ParseInt(recorded, 10, 64)
	if err != nil {
		return true
	}
	return g.now().Sub(time.UnixMilli(millis)) > g.cfg.AllowedTime
}

// Fingerprint hashes a request body. JSON bodies are compacted first so
// insignificant whitespace does not change the result.
func Fingerprint(body []byte) string {
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err == nil {
		body = compact.Bytes()
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func keyAttribute(op string) string         { return "idempotency." + op + ".key" }
func fingerprintAttribute(op string) string { return "idempotency." + op + ".fingerprint" }
func timeAttribute(op string) string        { return "idempotency." + op + ".time" }
func clientAttribute(op string) string      { return "idempotency." + op + ".client" }

func recordKeys(op string) []string {
	return []string{keyAttribute(op), fingerprintAttribute(op), timeAttribute(op), clientAttribute(op)}
}

// IsRecordAttribute reports whether an attribute key belongs to an idempotency record
func IsRecordAttribute(key string) bool {
	return strings.HasPrefix(key, "idempotency.")
}
