// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// EmailConfig provides settings for email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetBrevoAPIKey() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// NotificationConfig provides settings for the notification module.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// SchedulerConfig provides settings for the background job scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetClaimExpirySweepSpec() string
	GetSLASweepSpec() string
	GetNightReleaseSpec() string
	GetCountReconcileSpec() string
}

// RoutingConfig provides settings for lead routing and claim arbitration.
type RoutingConfig interface {
	GetDefaultClaimWindow() time.Duration
	GetFirstActionSLA() time.Duration
	GetEscalationAgentID() string
}

// BusinessHoursConfig provides the window outside of which incoming leads
// are held until morning.
type BusinessHoursConfig interface {
	GetBusinessDayStart() int
	GetBusinessDayEnd() int
	GetBusinessLocation() *time.Location
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	DatabaseURL          string
	RedisURL             string
	RedisTLSInsecure     bool
	AsynqQueueName       string
	AsynqConcurrency     int
	JWTAccessSecret      string
	CORSAllowAll         bool
	CORSOrigins          []string
	CORSAllowCreds       bool
	AppBaseURL           string
	EmailEnabled         bool
	BrevoAPIKey          string
	EmailFromName        string
	EmailFromAddress     string
	ClaimExpirySweepSpec string
	SLASweepSpec         string
	NightReleaseSpec     string
	CountReconcileSpec   string
	DefaultClaimWindow   time.Duration
	FirstActionSLA       time.Duration
	EscalationAgentID    string
	BusinessDayStart     int
	BusinessDayEnd       int
	BusinessLocation     *time.Location
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetBrevoAPIKey() string      { return c.BrevoAPIKey }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string             { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool       { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string       { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int        { return c.AsynqConcurrency }
func (c *Config) GetClaimExpirySweepSpec() string { return c.ClaimExpirySweepSpec }
func (c *Config) GetSLASweepSpec() string         { return c.SLASweepSpec }
func (c *Config) GetNightReleaseSpec() string     { return c.NightReleaseSpec }
func (c *Config) GetCountReconcileSpec() string   { return c.CountReconcileSpec }

// RoutingConfig implementation
func (c *Config) GetDefaultClaimWindow() time.Duration { return c.DefaultClaimWindow }
func (c *Config) GetFirstActionSLA() time.Duration     { return c.FirstActionSLA }
func (c *Config) GetEscalationAgentID() string         { return c.EscalationAgentID }

// BusinessHoursConfig implementation
func (c *Config) GetBusinessDayStart() int            { return c.BusinessDayStart }
func (c *Config) GetBusinessDayEnd() int              { return c.BusinessDayEnd }
func (c *Config) GetBusinessLocation() *time.Location { return c.BusinessLocation }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	brevoAPIKey := getEnv("BREVO_API_KEY", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	loc, err := time.LoadLocation(getEnv("BUSINESS_HOURS_TZ", "Europe/Amsterdam"))
	if err != nil {
		return nil, fmt.Errorf("invalid BUSINESS_HOURS_TZ: %w", err)
	}

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379/0"),
		JWTAccessSecret:      getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		CORSAllowCreds:       strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:           getEnv("APP_BASE_URL", "http://localhost:4200"),
		EmailEnabled:         emailEnabled && brevoAPIKey != "",
		BrevoAPIKey:          brevoAPIKey,
		EmailFromName:        getEnv("EMAIL_FROM_NAME", "CRM"),
		EmailFromAddress:     getEnv("EMAIL_FROM_ADDRESS", ""),
		RedisTLSInsecure:     strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:       getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:     mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		ClaimExpirySweepSpec: getEnv("CLAIM_EXPIRY_SWEEP_SPEC", "@every 1m"),
		SLASweepSpec:         getEnv("SLA_SWEEP_SPEC", "@every 5m"),
		NightReleaseSpec:     getEnv("NIGHT_RELEASE_SPEC", "0 8 * * *"),
		CountReconcileSpec:   getEnv("COUNT_RECONCILE_SPEC", "30 3 * * *"),
		DefaultClaimWindow:   mustDuration(getEnv("DEFAULT_CLAIM_WINDOW", "15m")),
		FirstActionSLA:       mustDuration(getEnv("FIRST_ACTION_SLA", "10m")),
		EscalationAgentID:    getEnv("ESCALATION_AGENT_ID", ""),
		BusinessDayStart:     mustInt(getEnv("BUSINESS_HOURS_START", "8")),
		BusinessDayEnd:       mustInt(getEnv("BUSINESS_HOURS_END", "21")),
		BusinessLocation:     loc,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if emailEnabled && cfg.BrevoAPIKey == "" {
		return nil, fmt.Errorf("BREVO_API_KEY is required when EMAIL_ENABLED is true")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.BusinessDayStart < 0 || cfg.BusinessDayEnd > 24 || cfg.BusinessDayStart >= cfg.BusinessDayEnd {
		return nil, fmt.Errorf("invalid business hours window %d-%d", cfg.BusinessDayStart, cfg.BusinessDayEnd)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
