package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the consent engine
type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Logging         LoggingConfig         `mapstructure:"logging"`
	Consent         ConsentConfig         `mapstructure:"consent"`
	Engine          EngineConfig          `mapstructure:"engine"`
	Session         SessionConfig         `mapstructure:"session"`
	Redis           RedisConfig           `mapstructure:"redis"`
	TokenRevocation TokenRevocationConfig `mapstructure:"token_revocation"`
	Security        SecurityConfig        `mapstructure:"security"`
	CORS            CORSConfig            `mapstructure:"cors"`
	Metrics         MetricsConfig         `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Hostname       string        `mapstructure:"hostname"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig holds the consent store connection settings
type DatabaseConfig struct {
	Type            string        `mapstructure:"type"`
	Hostname        string        `mapstructure:"hostname"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ConsentConfig holds consent lifecycle settings
type ConsentConfig struct {
	InitialStatus         string        `mapstructure:"initial_status"`
	AuthType              string        `mapstructure:"auth_type"`
	ImplicitAuthorization bool          `mapstructure:"implicit_authorization"`
	ExpiryJobInterval     time.Duration `mapstructure:"expiry_job_interval"`
	BulkConcurrency       int           `mapstructure:"bulk_concurrency"`
}

// EngineConfig holds the submission-time rules
type EngineConfig struct {
	CutOff      CutOffConfig      `mapstructure:"cut_off"`
	Payments    PaymentsConfig    `mapstructure:"payments"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
}

// CutOffConfig holds the daily payment cut-off policy
type CutOffConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Policy is REJECT or ACCEPT
	Policy string `mapstructure:"policy"`
	// DailyCutOffTime is an ISO local time with offset, e.g. 15:00:00+00:00
	DailyCutOffTime string `mapstructure:"daily_cut_off_time"`
	Zone            string `mapstructure:"zone"`
}

// PaymentsConfig holds payment validation limits
type PaymentsConfig struct {
	MaxInstructedAmount    float64  `mapstructure:"max_instructed_amount"`
	CustomLocalInstruments []string `mapstructure:"custom_local_instruments"`
}

// IdempotencyConfig holds idempotency guard settings
type IdempotencyConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	HeaderName  string        `mapstructure:"header_name"`
	AllowedTime time.Duration `mapstructure:"allowed_time"`
}

// SessionConfig holds consent session bridge settings
type SessionConfig struct {
	// Store is memory, redis or none
	Store                string        `mapstructure:"store"`
	PreserveInAttributes bool          `mapstructure:"preserve_in_attributes"`
	TTL                  time.Duration `mapstructure:"ttl"`
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// TokenRevocationConfig holds the token revocation endpoint settings
type TokenRevocationConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BaseURL       string        `mapstructure:"base_url"`
	Path          string        `mapstructure:"path"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	BasicAuth BasicAuthConfig `mapstructure:"basic_auth"`
}

// BasicAuthConfig holds basic authentication configuration
type BasicAuthConfig struct {
	Enabled bool            `mapstructure:"enabled"`
	Users   []BasicAuthUser `mapstructure:"users"`
}

// BasicAuthUser represents a basic auth user. PasswordHash is a bcrypt hash.
type BasicAuthUser struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// MetricsConfig holds prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("deployment")
		v.SetConfigType("yaml")
		v.AddConfigPath("./repository/conf")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CONSENT_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.hostname", "0.0.0.0")
	v.SetDefault("server.port", 9446)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)

	v.SetDefault("database.type", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("logging.level", "info")

	v.SetDefault("consent.initial_status", "AwaitingAuthorisation")
	v.SetDefault("consent.auth_type", "authorisation")
	v.SetDefault("consent.expiry_job_interval", time.Hour)
	v.SetDefault("consent.bulk_concurrency", 8)

	v.SetDefault("engine.cut_off.policy", "REJECT")
	v.SetDefault("engine.cut_off.daily_cut_off_time", "23:59:59+00:00")
	v.SetDefault("engine.cut_off.zone", "UTC")
	v.SetDefault("engine.payments.max_instructed_amount", 1000000.0)
	v.SetDefault("engine.idempotency.enabled", true)
	v.SetDefault("engine.idempotency.header_name", "x-idempotency-key")
	v.SetDefault("engine.idempotency.allowed_time", 24*time.Hour)

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.ttl", 15*time.Minute)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.prefix", "consent-session")

	v.SetDefault("token_revocation.timeout", 10*time.Second)
	v.SetDefault("token_revocation.path", "/oauth2/revoke-consent-tokens")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Database.Type {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database type: %s", config.Database.Type)
	}

	if config.Database.Hostname == "" {
		return fmt.Errorf("database hostname is required")
	}

	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	switch strings.ToUpper(config.Engine.CutOff.Policy) {
	case "REJECT", "ACCEPT":
	default:
		return fmt.Errorf("unsupported cut-off policy: %s", config.Engine.CutOff.Policy)
	}

	if config.Engine.Payments.MaxInstructedAmount <= 0 {
		return fmt.Errorf("max instructed amount must be positive")
	}

	switch config.Session.Store {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("unsupported session store: %s", config.Session.Store)
	}

	if config.Session.Store == "redis" && config.Redis.Host == "" {
		return fmt.Errorf("redis host is required when the redis session store is selected")
	}

	if config.TokenRevocation.Enabled && config.TokenRevocation.BaseURL == "" {
		return fmt.Errorf("token revocation base URL is required when revocation is enabled")
	}

	if config.Consent.BulkConcurrency <= 0 {
		return fmt.Errorf("bulk concurrency must be positive")
	}

	return nil
}

// DriverName returns the database/sql driver registered for the configured type
func (d *DatabaseConfig) DriverName() string {
	if d.Type == "postgres" {
		return "pgx"
	}
	return "mysql"
}

// GetDSN returns the database connection string
func (d *DatabaseConfig) GetDSN() string {
	if d.Type == "postgres" {
		sslMode := d.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			d.User, d.Password, d.Hostname, d.Port, d.Database, sslMode)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User,
		d.Password,
		d.Hostname,
		d.Port,
		d.Database,
	)
}

// GetServerAddress returns the server address in host:port format
func (s *ServerConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", s.Hostname, s.Port)
}

// GetRevocationURL returns the full token revocation URL
func (t *TokenRevocationConfig) GetRevocationURL() string {
	return strings.TrimRight(t.BaseURL, "/") + t.Path
}

// GetAddress returns the redis address in host:port format
func (r *RedisConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
