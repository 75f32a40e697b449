package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wso2/ob-consent-engine/internal/config"
	"github.com/wso2/ob-consent-engine/pkg/utils"
)

// TokenRevocationClient asks the authorization server to revoke the access
// tokens bound to a consent
type TokenRevocationClient struct {
	httpClient *http.Client
	config     *config.TokenRevocationConfig
	logger     *logrus.Logger
	backoff    time.Duration
}

// RevocationRequest represents the payload sent to the revocation endpoint
type RevocationRequest struct {
	ConsentID string `json:"consentId"`
	OrgID     string `json:"orgId"`
}

// RevocationResponse represents the body returned by the revocation endpoint
type RevocationResponse struct {
	Success      bool   `json:"success"`
	RevokedCount int    `json:"revokedCount,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// NewTokenRevocationClient creates a new token revocation client instance
func NewTokenRevocationClient(cfg *config.TokenRevocationConfig, logger *logrus.Logger) *TokenRevocationClient {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}

	return &TokenRevocationClient{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config:  cfg,
		logger:  logger,
		backoff: 200 * time.Millisecond,
	}
}

// IsEnabled reports whether token revocation is configured
func (c *TokenRevocationClient) IsEnabled() bool {
	return c.config.Enabled && c.config.BaseURL != ""
}

// RevokeTokens revokes every token issued against consentID. Transport
// failures and 5xx responses are retried up to the configured attempts.
func (c *TokenRevocationClient) RevokeTokens(ctx context.Context, consentID, orgID string) error {
	if !c.IsEnabled() {
		c.logger.Debug("Token revocation not configured, skipping call")
		return nil
	}

	attempts := c.config.RetryAttempts + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		retry, err := c.revoke(ctx, consentID, orgID)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == attempts {
			break
		}

		c.logger.WithFields(logrus.Fields{
			"consent_id": consentID,
			"attempt":    attempt,
		}).WithError(err).Warn("Token revocation failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("token revocation cancelled: %w", ctx.Err())
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return lastErr
}

func (c *TokenRevocationClient) revoke(ctx context.Context, consentID, orgID string) (bool, error) {
	url := c.config.GetRevocationURL()

	jsonData, err := json.Marshal(RevocationRequest{ConsentID: consentID, OrgID: orgID})
	if err != nil {
		return false, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if correlationID := utils.CorrelationID(ctx); correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		c.logger.WithError(err).WithField("duration", duration).Error("Token revocation call failed")
		return true, fmt.Errorf("token revocation call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"statusCode": resp.StatusCode,
		"duration":   duration,
		"consent_id": consentID,
	}).Debug("Token revocation response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retry := resp.StatusCode >= http.StatusInternalServerError
		var errResp RevocationResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.ErrorMessage != "" {
			return retry, fmt.Errorf("token revocation returned status %d: %s", resp.StatusCode, errResp.ErrorMessage)
		}
		return retry, fmt.Errorf("token revocation returned status %d: %s", resp.StatusCode, string(body))
	}

	if len(body) == 0 {
		return false, nil
	}
	var result RevocationResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return false, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !result.Success {
		return false, fmt.Errorf("token revocation was not successful: %s", result.ErrorMessage)
	}
	return false, nil
}

// Close closes the HTTP client connections
func (c *TokenRevocationClient) Close() {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
}
