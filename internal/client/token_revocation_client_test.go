package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/ob-consent-engine/internal/config"
	"github.com/wso2/ob-consent-engine/pkg/utils"
)

func newTestClient(baseURL string, retries int) *TokenRevocationClient {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	c := NewTokenRevocationClient(&config.TokenRevocationConfig{
		Enabled:       true,
		BaseURL:       baseURL,
		Path:          "/oauth2/revoke-consent-tokens",
		Timeout:       time.Second,
		RetryAttempts: retries,
	}, logger)
	c.backoff = time.Millisecond
	return c
}

func TestRevokeTokens_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth2/revoke-consent-tokens", r.URL.Path)
		assert.Equal(t, "corr-1", r.Header.Get("X-Correlation-ID"))

		var req RevocationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, RevocationRequest{ConsentID: "c-1", OrgID: "org1"}, req)

		_ = json.NewEncoder(w).Encode(RevocationResponse{Success: true, RevokedCount: 2})
	}))
	defer server.Close()

	ctx := utils.WithCorrelationID(context.Background(), "corr-1")
	assert.NoError(t, newTestClient(server.URL, 0).RevokeTokens(ctx, "c-1", "org1"))
}

func TestRevokeTokens_Retries(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retries   int
		wantCalls int32
	}{
		{name: "server errors are retried", status: http.StatusBadGateway, retries: 2, wantCalls: 3},
		{name: "client errors are not retried", status: http.StatusBadRequest, retries: 2, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"errorMessage":"nope"}`))
			}))
			defer server.Close()

			err := newTestClient(server.URL, tt.retries).RevokeTokens(context.Background(), "c-1", "org1")
			assert.Error(t, err)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestRevokeTokens_RecoversAfterRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	assert.NoError(t, newTestClient(server.URL, 1).RevokeTokens(context.Background(), "c-1", "org1"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRevokeTokens_DisabledIsNoop(t *testing.T) {
	c := newTestClient("", 0)
	assert.False(t, c.IsEnabled())
	assert.NoError(t, c.RevokeTokens(context.Background(), "c-1", "org1"))
}
