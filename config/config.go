// Package config handles loading and validation of application configuration
// from environment variables and potentially configuration files.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pollrelay/pollengine/logger"
	"github.com/spf13/viper"
)

// Environment represents the application's running environment (development or production).
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"

	// Validation constants
	minSecretLength = 32
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Environment Environment `mapstructure:"ENVIRONMENT" yaml:"environment"`
	Port        string      `mapstructure:"PORT" yaml:"port"`
	// AllowedOrigins is the CORS allow-list.
	AllowedOrigins []string `mapstructure:"ALLOWED_ORIGINS" yaml:"allowed_origins"`
	Version        string   `mapstructure:"VERSION" yaml:"version"`
	FrontendURL    string   `mapstructure:"FRONTEND_URL" yaml:"frontend_url"`
	// TrustedProxies is a list of CIDR ranges or IPs of trusted reverse proxies.
	// If empty, X-Forwarded-For headers are ignored entirely (safe default).
	TrustedProxies []string `mapstructure:"TRUSTED_PROXIES" yaml:"trusted_proxies"`
}

// DatabaseConfig holds PostgreSQL database connection details.
type DatabaseConfig struct {
	Host           string `mapstructure:"HOST" yaml:"host"`
	Port           int    `mapstructure:"PORT" yaml:"port"`
	User           string `mapstructure:"USER" yaml:"user"`
	Password       string `mapstructure:"PASSWORD" yaml:"password"`
	Name           string `mapstructure:"NAME" yaml:"name"`
	MaxConnections int    `mapstructure:"MAX_CONNECTIONS" yaml:"max_connections"`
	SSLMode        string `mapstructure:"SSL_MODE" yaml:"ssl_mode"`
	MaxOpenConns   int    `mapstructure:"MAX_OPEN_CONNS" yaml:"max_open_conns"`
	MaxIdleConns   int    `mapstructure:"MAX_IDLE_CONNS" yaml:"max_idle_conns"`
	ConnMaxLife    string `mapstructure:"CONN_MAX_LIFE" yaml:"conn_max_life"`
}

// URL returns a postgres:// connection URL suitable for golang-migrate and
// the pgxpool connection string.
func (c *DatabaseConfig) URL() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		sslmode,
	)
}

// RedisConfig holds Redis connection details, shared by C2's rate limiter
// and C7's pub/sub fan-out.
type RedisConfig struct {
	Address      string `mapstructure:"ADDRESS" yaml:"address"`
	Password     string `mapstructure:"PASSWORD" yaml:"password"`
	DB           int    `mapstructure:"DB" yaml:"db"`
	UseTLS       bool   `mapstructure:"USE_TLS" yaml:"use_tls"`
	PoolSize     int    `mapstructure:"POOL_SIZE" yaml:"pool_size"`
	MinIdleConns int    `mapstructure:"MIN_IDLE_CONNS" yaml:"min_idle_conns"`
}

// AuthConfig holds configuration for the two external auth providers named
// in spec §1: a local-password provider issuing HS256 session JWTs, and a
// Keycloak OIDC provider verified via JWKS.
type AuthConfig struct {
	// SessionJWTSecret verifies HS256 tokens issued by the local-password provider.
	SessionJWTSecret string `mapstructure:"SESSION_JWT_SECRET" yaml:"session_jwt_secret"`
	// OIDCJWKSURL is the Keycloak realm's JWKS endpoint.
	OIDCJWKSURL string `mapstructure:"OIDC_JWKS_URL" yaml:"oidc_jwks_url"`
	// OIDCIssuer is validated against the token's iss claim when set.
	OIDCIssuer string `mapstructure:"OIDC_ISSUER" yaml:"oidc_issuer"`
	// DeviceTokenSecret signs the anonymous-voter device cookie (C1).
	DeviceTokenSecret string `mapstructure:"DEVICE_TOKEN_SECRET" yaml:"device_token_secret"`
}

// EmailConfig holds configuration for sending transactional emails via the
// Resend API (voter confirmations, expiry reminders).
type EmailConfig struct {
	FromAddress  string `mapstructure:"FROM_ADDRESS" yaml:"from_address"`
	FromName     string `mapstructure:"FROM_NAME" yaml:"from_name"`
	ResendAPIKey string `mapstructure:"RESEND_API_KEY" yaml:"resend_api_key"`
}

// EventServiceConfig holds configuration for the Redis-based live
// dispatcher (C7).
type EventServiceConfig struct {
	PublishTimeoutSeconds   int `mapstructure:"PUBLISH_TIMEOUT_SECONDS" yaml:"publish_timeout_seconds"`
	SubscribeTimeoutSeconds int `mapstructure:"SUBSCRIBE_TIMEOUT_SECONDS" yaml:"subscribe_timeout_seconds"`
	EventBufferSize         int `mapstructure:"EVENT_BUFFER_SIZE" yaml:"event_buffer_size"`
}

// RateLimitConfig seeds C2's default bucket windows/limits (§4.2). Buckets
// can be retuned at runtime through the admin_settings store table; these
// are only the boot-time defaults.
type RateLimitConfig struct {
	RegistrationPerHour    int `mapstructure:"REGISTRATION_PER_HOUR" yaml:"registration_per_hour"`
	PasswordResetPer15Min  int `mapstructure:"PASSWORD_RESET_PER_15_MIN" yaml:"password_reset_per_15_min"`
	PollCreationPerMinute  int `mapstructure:"POLL_CREATION_PER_MINUTE" yaml:"poll_creation_per_minute"`
	VotePer10Seconds       int `mapstructure:"VOTE_PER_10_SECONDS" yaml:"vote_per_10_seconds"`
	EmailPerMinute         int `mapstructure:"EMAIL_PER_MINUTE" yaml:"email_per_minute"`
	APIGeneralPerMinute    int `mapstructure:"API_GENERAL_PER_MINUTE" yaml:"api_general_per_minute"`
	LoginPer15Min          int `mapstructure:"LOGIN_PER_15_MIN" yaml:"login_per_15_min"`
	EmailCheckPerMinute    int `mapstructure:"EMAIL_CHECK_PER_MINUTE" yaml:"email_check_per_minute"`
	AIPerHour              int `mapstructure:"AI_PER_HOUR" yaml:"ai_per_hour"`
}

// SchedulerConfig configures the expiry & reminder sweep (C8).
type SchedulerConfig struct {
	SweepIntervalSeconds int `mapstructure:"SWEEP_INTERVAL_SECONDS" yaml:"sweep_interval_seconds"`
}

// Config aggregates all application configuration sections.
type Config struct {
	Server       ServerConfig       `mapstructure:"SERVER" yaml:"server"`
	Database     DatabaseConfig     `mapstructure:"DATABASE" yaml:"database"`
	Redis        RedisConfig        `mapstructure:"REDIS" yaml:"redis"`
	Auth         AuthConfig         `mapstructure:"AUTH" yaml:"auth"`
	Email        EmailConfig        `mapstructure:"EMAIL" yaml:"email"`
	EventService EventServiceConfig `mapstructure:"EVENT_SERVICE" yaml:"event_service"`
	RateLimit    RateLimitConfig    `mapstructure:"RATE_LIMIT" yaml:"rate_limit"`
	Scheduler    SchedulerConfig    `mapstructure:"SCHEDULER" yaml:"scheduler"`
}

// IsDevelopment returns true if the application is running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// IsProduction returns true if the application is running in production environment.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// bindEnvVars binds multiple environment variables to config keys.
// Format: []{configKey, envVar}
func bindEnvVars(v *viper.Viper, bindings [][2]string) error {
	for _, b := range bindings {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b[0], err)
		}
	}
	return nil
}

// LoadConfig loads configuration from environment variables using Viper,
// sets default values, binds environment variables to config struct fields,
// unmarshals the configuration, and validates it.
func LoadConfig() (*Config, error) {
	v := viper.New()
	log := logger.GetLogger()

	v.SetDefault("SERVER.ENVIRONMENT", EnvDevelopment)
	v.SetDefault("SERVER.PORT", "8080")
	v.SetDefault("SERVER.ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("SERVER.TRUSTED_PROXIES", []string{})
	v.SetDefault("DATABASE.MAX_CONNECTIONS", 20)
	v.SetDefault("DATABASE.MAX_OPEN_CONNS", 10)
	v.SetDefault("DATABASE.MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE.CONN_MAX_LIFE", "1h")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.NAME", "pollengine_dev")
	v.SetDefault("DATABASE.SSL_MODE", "disable")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.ADDRESS", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.USE_TLS", false)
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.MIN_IDLE_CONNS", 2)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("EVENT_SERVICE.PUBLISH_TIMEOUT_SECONDS", 5)
	v.SetDefault("EVENT_SERVICE.SUBSCRIBE_TIMEOUT_SECONDS", 10)
	v.SetDefault("EVENT_SERVICE.EVENT_BUFFER_SIZE", 100)
	v.SetDefault("RATE_LIMIT.REGISTRATION_PER_HOUR", 5)
	v.SetDefault("RATE_LIMIT.PASSWORD_RESET_PER_15_MIN", 3)
	v.SetDefault("RATE_LIMIT.POLL_CREATION_PER_MINUTE", 10)
	v.SetDefault("RATE_LIMIT.VOTE_PER_10_SECONDS", 30)
	v.SetDefault("RATE_LIMIT.EMAIL_PER_MINUTE", 5)
	v.SetDefault("RATE_LIMIT.API_GENERAL_PER_MINUTE", 100)
	v.SetDefault("RATE_LIMIT.LOGIN_PER_15_MIN", 5)
	v.SetDefault("RATE_LIMIT.EMAIL_CHECK_PER_MINUTE", 10)
	v.SetDefault("RATE_LIMIT.AI_PER_HOUR", 20)
	v.SetDefault("SCHEDULER.SWEEP_INTERVAL_SECONDS", 60)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envBindings := [][2]string{
		{"SERVER.ENVIRONMENT", "SERVER_ENVIRONMENT"},
		{"SERVER.PORT", "PORT"},
		{"SERVER.ALLOWED_ORIGINS", "ALLOWED_ORIGINS"},
		{"SERVER.FRONTEND_URL", "FRONTEND_URL"},
		{"SERVER.TRUSTED_PROXIES", "TRUSTED_PROXIES"},
		{"DATABASE.HOST", "DB_HOST"},
		{"DATABASE.PORT", "DB_PORT"},
		{"DATABASE.USER", "DB_USER"},
		{"DATABASE.PASSWORD", "DB_PASSWORD"},
		{"DATABASE.NAME", "DB_NAME"},
		{"DATABASE.SSL_MODE", "DB_SSL_MODE"},
		{"REDIS.ADDRESS", "REDIS_ADDRESS"},
		{"REDIS.PASSWORD", "REDIS_PASSWORD"},
		{"REDIS.DB", "REDIS_DB"},
		{"REDIS.USE_TLS", "REDIS_USE_TLS"},
		{"AUTH.SESSION_JWT_SECRET", "SESSION_JWT_SECRET"},
		{"AUTH.OIDC_JWKS_URL", "OIDC_JWKS_URL"},
		{"AUTH.OIDC_ISSUER", "OIDC_ISSUER"},
		{"AUTH.DEVICE_TOKEN_SECRET", "DEVICE_TOKEN_SECRET"},
		{"EMAIL.FROM_ADDRESS", "EMAIL_FROM_ADDRESS"},
		{"EMAIL.FROM_NAME", "EMAIL_FROM_NAME"},
		{"EMAIL.RESEND_API_KEY", "RESEND_API_KEY"},
		{"EVENT_SERVICE.PUBLISH_TIMEOUT_SECONDS", "EVENT_SERVICE_PUBLISH_TIMEOUT_SECONDS"},
		{"EVENT_SERVICE.SUBSCRIBE_TIMEOUT_SECONDS", "EVENT_SERVICE_SUBSCRIBE_TIMEOUT_SECONDS"},
		{"EVENT_SERVICE.EVENT_BUFFER_SIZE", "EVENT_SERVICE_EVENT_BUFFER_SIZE"},
		{"RATE_LIMIT.REGISTRATION_PER_HOUR", "RATE_LIMIT_REGISTRATION_PER_HOUR"},
		{"RATE_LIMIT.PASSWORD_RESET_PER_15_MIN", "RATE_LIMIT_PASSWORD_RESET_PER_15_MIN"},
		{"RATE_LIMIT.POLL_CREATION_PER_MINUTE", "RATE_LIMIT_POLL_CREATION_PER_MINUTE"},
		{"RATE_LIMIT.VOTE_PER_10_SECONDS", "RATE_LIMIT_VOTE_PER_10_SECONDS"},
		{"RATE_LIMIT.EMAIL_PER_MINUTE", "RATE_LIMIT_EMAIL_PER_MINUTE"},
		{"RATE_LIMIT.API_GENERAL_PER_MINUTE", "RATE_LIMIT_API_GENERAL_PER_MINUTE"},
		{"RATE_LIMIT.LOGIN_PER_15_MIN", "RATE_LIMIT_LOGIN_PER_15_MIN"},
		{"RATE_LIMIT.EMAIL_CHECK_PER_MINUTE", "RATE_LIMIT_EMAIL_CHECK_PER_MINUTE"},
		{"RATE_LIMIT.AI_PER_HOUR", "RATE_LIMIT_AI_PER_HOUR"},
		{"SCHEDULER.SWEEP_INTERVAL_SECONDS", "SCHEDULER_SWEEP_INTERVAL_SECONDS"},
	}

	if err := bindEnvVars(v, envBindings); err != nil {
		return nil, err
	}

	env := v.GetString("SERVER.ENVIRONMENT")
	log.Infow("Configuration loaded",
		"environment", env,
		"server_port", v.GetString("SERVER.PORT"),
		"db_host", v.GetString("DATABASE.HOST"),
		"allowed_origins", v.GetString("SERVER.ALLOWED_ORIGINS"),
		"trusted_proxies", v.GetStringSlice("SERVER.TRUSTED_PROXIES"),
	)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal failed: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log.Info("Configuration validated successfully")
	return &cfg, nil
}

// validateConfig checks if the loaded configuration values are valid.
func validateConfig(cfg *Config) error {
	log := logger.GetLogger()

	if cfg.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if !containsWildcard(cfg.Server.AllowedOrigins) {
		for _, origin := range cfg.Server.AllowedOrigins {
			if _, err := url.ParseRequestURI(origin); err != nil {
				return fmt.Errorf("invalid allowed origin '%s': %w", origin, err)
			}
		}
	}

	if cfg.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if cfg.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if cfg.Database.Password == "" {
		log.Warn("Database password is not set. Ensure this is intended (e.g., using trusted auth).")
	}
	if cfg.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}

	if cfg.Redis.Address == "" {
		return fmt.Errorf("redis address is required")
	}
	if cfg.Redis.Password == "" && cfg.Redis.UseTLS {
		log.Warn("Redis password is not set, but TLS is enabled. Ensure this is correct for your Redis provider.")
	}

	if err := validateAuthConfig(&cfg.Auth); err != nil {
		return err
	}

	if cfg.Email.FromAddress == "" {
		return fmt.Errorf("email from address is required")
	}
	if cfg.Email.ResendAPIKey == "" {
		return fmt.Errorf("resend API key is required")
	}

	if cfg.EventService.PublishTimeoutSeconds <= 0 {
		return fmt.Errorf("event service publish timeout must be positive")
	}
	if cfg.EventService.SubscribeTimeoutSeconds <= 0 {
		return fmt.Errorf("event service subscribe timeout must be positive")
	}
	if cfg.EventService.EventBufferSize <= 0 {
		return fmt.Errorf("event service buffer size must be positive")
	}

	if cfg.Scheduler.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("scheduler sweep interval must be positive")
	}

	return nil
}

// validateAuthConfig checks the two external-auth-provider validators: a
// local-password HS256 secret and/or a Keycloak OIDC JWKS endpoint. At
// least one must be configured, and the device-token secret (anonymous
// voter identity, C1) is always required.
func validateAuthConfig(cfg *AuthConfig) error {
	if cfg.SessionJWTSecret == "" && cfg.OIDCJWKSURL == "" {
		return fmt.Errorf("at least one of session JWT secret or OIDC JWKS URL must be configured")
	}
	if cfg.SessionJWTSecret != "" && len(cfg.SessionJWTSecret) < minSecretLength {
		return fmt.Errorf("session JWT secret must be at least %d characters long", minSecretLength)
	}
	if len(cfg.DeviceTokenSecret) < minSecretLength {
		return fmt.Errorf("device token secret must be at least %d characters long", minSecretLength)
	}
	return nil
}

// containsWildcard checks if the list of allowed origins contains the wildcard "*".
func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
