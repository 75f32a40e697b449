package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/wso2/ob-consent-engine/internal/client"
	"github.com/wso2/ob-consent-engine/internal/config"
	"github.com/wso2/ob-consent-engine/internal/dao"
	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/idempotency"
	"github.com/wso2/ob-consent-engine/internal/metrics"
	"github.com/wso2/ob-consent-engine/internal/service"
	"github.com/wso2/ob-consent-engine/internal/session"
	"github.com/wso2/ob-consent-engine/internal/validator"
)

// application holds the wired components of the engine
type application struct {
	cfg      *config.Config
	logger   *logrus.Logger
	db       *database.DB
	metrics  *metrics.Metrics
	consents *service.ConsentService
	bridge   *session.Bridge
	revoker  *client.TokenRevocationClient
	redis    *redis.Client
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// loadApplication reads the configuration and wires every component
func loadApplication(configPath string) (*application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"version":    version,
		"build_date": buildDate,
		"log_level":  logger.GetLevel().String(),
	}).Info("Configuration loaded successfully")

	app := &application{cfg: cfg, logger: logger}
	if err := app.wire(); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *application) wire() error {
	cfg, logger := a.cfg, a.logger

	db, err := database.Initialize(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	logger.Info("Database connection established successfully")

	if cfg.Metrics.Enabled {
		m, err := metrics.New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		a.metrics = m
	}

	// Initialize DAOs
	consentDAO := dao.NewConsentDAO(db)
	authResourceDAO := dao.NewAuthResourceDAO(db)
	mappingDAO := dao.NewConsentMappingDAO(db)
	statusAuditDAO := dao.NewStatusAuditDAO(db)
	attributeDAO := dao.NewConsentAttributeDAO(db)
	fileDAO := dao.NewConsentFileDAO(db)

	cutOff, err := service.NewCutOffPolicy(cfg.Engine.CutOff)
	if err != nil {
		return fmt.Errorf("invalid cut-off configuration: %w", err)
	}
	opts, err := service.OptionsFromConfig(cfg.Consent)
	if err != nil {
		return err
	}

	deps := service.Dependencies{
		Consents:       consentDAO,
		Authorizations: authResourceDAO,
		Mappings:       mappingDAO,
		Audits:         statusAuditDAO,
		History:        dao.NewConsentHistoryDAO(db),
		Attributes:     attributeDAO,
		Files:          fileDAO,
		Tx:             db,
		Validator: validator.New(validator.Config{
			MaxInstructedAmount:    cfg.Engine.Payments.MaxInstructedAmount,
			CustomLocalInstruments: cfg.Engine.Payments.CustomLocalInstruments,
		}),
		CutOff: cutOff,
		Limits: service.NewAttributeLimitTracker(consentDAO, attributeDAO, db, logger),
	}
	if cfg.Engine.Idempotency.Enabled {
		deps.Idempotency = idempotency.NewGuard(attributeDAO, dao.NewIdempotencyKeyDAO(db), idempotency.Config{
			Enabled:     true,
			AllowedTime: cfg.Engine.Idempotency.AllowedTime,
		}, logger)
	}
	if cfg.TokenRevocation.Enabled {
		a.revoker = client.NewTokenRevocationClient(&cfg.TokenRevocation, logger)
		deps.Revoker = a.revoker
	}
	if a.metrics != nil {
		deps.Recorder = a.metrics
	}
	a.consents = service.NewConsentService(deps, opts, logger)

	bridge, err := a.sessionBridge(attributeDAO)
	if err != nil {
		return err
	}
	a.bridge = bridge

	logger.WithFields(logrus.Fields{
		"session_store":    cfg.Session.Store,
		"idempotency":      cfg.Engine.Idempotency.Enabled,
		"cut_off":          cfg.Engine.CutOff.Enabled,
		"token_revocation": cfg.TokenRevocation.Enabled,
	}).Info("Services initialized successfully")
	return nil
}

func (a *application) sessionBridge(attributes session.AttributeDAO) (*session.Bridge, error) {
	cfg := a.cfg.Session

	var primary session.SessionStore
	switch cfg.Store {
	case "memory":
		primary = session.NewMemoryStore(cfg.TTL)
	case "redis":
		rdb, err := session.NewRedisClient(&a.cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redis = rdb
		primary = session.NewRedisStore(rdb, a.cfg.Redis.Prefix, cfg.TTL)
	}

	var fallback session.FallbackStore
	if cfg.PreserveInAttributes {
		fallback = session.NewAttributeStore(attributes)
	}

	var recorder session.LookupRecorder
	if a.metrics != nil {
		recorder = a.metrics
	}
	return session.NewBridge(primary, fallback, recorder, a.logger), nil
}

// Close releases the connections held by the application
func (a *application) Close() {
	if a.revoker != nil {
		a.revoker.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close redis client")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close database")
		}
	}
}
