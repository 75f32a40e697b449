package router

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/wso2/ob-consent-engine/internal/config"
	"github.com/wso2/ob-consent-engine/internal/handlers"
	"github.com/wso2/ob-consent-engine/internal/metrics"
	"github.com/wso2/ob-consent-engine/internal/middleware"
)

// HealthChecker reports whether the consent store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies are the collaborators the routes are served by. Metrics and
// Health are optional.
type Dependencies struct {
	Consents handlers.ConsentAPI
	Sessions handlers.SessionBridge
	Health   HealthChecker
	Metrics  *metrics.Metrics
	Logger   *logrus.Logger
}

// SetupRouter configures all API routes
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(deps.Logger))
	if deps.Metrics != nil {
		router.Use(middleware.Metrics(deps.Metrics))
	}
	if cfg.CORS.Enabled {
		router.Use(middleware.CORS(cfg.CORS))
	}
	router.Use(middleware.RequestIdentity())

	router.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health.HealthCheck(c.Request.Context()); err != nil {
				deps.Logger.WithError(err).Warn("Health check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if cfg.Metrics.Enabled && deps.Metrics != nil {
		router.GET(cfg.Metrics.Path, gin.WrapH(deps.Metrics.Handler()))
	}

	consentHandler := handlers.NewConsentHandler(deps.Consents, cfg.Engine.Idempotency.HeaderName)
	authResourceHandler := handlers.NewAuthResourceHandler(deps.Consents)
	sessionHandler := handlers.NewSessionHandler(deps.Sessions, deps.Logger)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))
	if cfg.Security.BasicAuth.Enabled {
		v1.Use(middleware.BasicAuth(cfg.Security.BasicAuth))
	}
	{
		consents := v1.Group("/consents")
		{
			consents.POST("", consentHandler.CreateConsent)
			consents.GET("", consentHandler.SearchConsents)
			consents.PUT("/status", consentHandler.UpdateStatusBulk)
			consents.PUT("/revoke-existing", consentHandler.RevokeExisting)
			consents.GET("/:consentId", consentHandler.GetConsent)
			consents.PUT("/:consentId", consentHandler.AmendConsent)
			consents.DELETE("/:consentId", consentHandler.DeleteConsent)
			consents.PUT("/:consentId/status", consentHandler.UpdateStatus)
			consents.PUT("/:consentId/revoke", consentHandler.RevokeConsent)
			consents.GET("/:consentId/history", consentHandler.GetHistory)
			consents.POST("/:consentId/validate", consentHandler.ValidateSubmission)
			consents.POST("/:consentId/file", consentHandler.UploadFile)
			consents.GET("/:consentId/file", consentHandler.GetFile)

			// Authorization resource routes under consent
			consents.PUT("/:consentId/authorizations/:authorizationId", authResourceHandler.Authorize)
			consents.POST("/:consentId/reauthorize", authResourceHandler.ReAuthorize)
		}

		v1.GET("/authorizations/:authorizationId", authResourceHandler.GetAuthorization)

		v1.PUT("/sessions/:sessionKey", sessionHandler.StoreSession)
		v1.GET("/sessions/:sessionKey", sessionHandler.GetSession)
	}

	return router
}
