// Package config defines the process configuration for the Amberline alert
// service. Configuration is loaded once at startup and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or invalid format fails startup.
package config

import (
	"time"

	"amberline/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration shared by the API, the alert worker
// and the digest scheduler. Components receive only the subset they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"amberline"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Email         EmailConfig
	SMS           SMSConfig
	Redis         RedisConfig
	Digest        DigestConfig
	Security      SecurityConfig
	Observability ObservabilityConfig
	Feature       FeatureConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// PublicBaseURL prefixes case links and verification links (no trailing slash).
	PublicBaseURL   string        `envconfig:"PUBLIC_BASE_URL" validate:"required,url"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region     string `envconfig:"AWS_REGION" default:"us-east-1"`
	AlertQueue string `envconfig:"SQS_ALERTS" validate:"required,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// EmailConfig selects the mail transport and the sender identity.
type EmailConfig struct {
	Provider       string        `envconfig:"EMAIL_PROVIDER" default:"ses" validate:"oneof=ses sendgrid stub"`
	SendGridAPIKey SecretString  `envconfig:"SENDGRID_API_KEY" validate:"required_if=Provider sendgrid"`
	FromAddress    string        `envconfig:"EMAIL_FROM_ADDRESS" default:"alerts@amberline.org" validate:"email"`
	FromName       string        `envconfig:"EMAIL_FROM_NAME" default:"Missing Child Alerts"`
	Timeout        time.Duration `envconfig:"EMAIL_TIMEOUT" default:"10s"`
}

// SMSConfig holds the Twilio credentials. Any blank credential disables the
// SMS gateway rather than failing startup.
type SMSConfig struct {
	AccountSID       string        `envconfig:"TWILIO_ACCOUNT_SID"`
	AuthToken        SecretString  `envconfig:"TWILIO_AUTH_TOKEN"`
	FromNumber       string        `envconfig:"TWILIO_PHONE_NUMBER"`
	VerifyServiceSID string        `envconfig:"TWILIO_VERIFY_SERVICE_SID"`
	SendRate         float64       `envconfig:"SMS_SEND_RATE" default:"10" validate:"gt=0"`
	Timeout          time.Duration `envconfig:"SMS_TIMEOUT" default:"10s"`
}

// RedisConfig configures the verification request limiter. An empty Addr
// disables throttling.
type RedisConfig struct {
	Addr           string        `envconfig:"REDIS_ADDR"`
	Password       SecretString  `envconfig:"REDIS_PASSWORD"`
	DB             int           `envconfig:"REDIS_DB" default:"0"`
	VerifyCooldown time.Duration `envconfig:"VERIFY_COOLDOWN" default:"60s"`
	VerifyWindow   time.Duration `envconfig:"VERIFY_WINDOW" default:"1h"`
	VerifyMax      int           `envconfig:"VERIFY_MAX_PER_WINDOW" default:"5" validate:"gt=0"`
}

// DigestConfig controls the periodic digest job.
type DigestConfig struct {
	Schedule  string                `envconfig:"DIGEST_CRON" default:"0 8 * * *"`
	Timezone  string                `envconfig:"DIGEST_TIMEZONE" default:"UTC"`
	Lookback  time.Duration         `envconfig:"DIGEST_LOOKBACK" default:"24h" validate:"gt=0"`
	Frequency types.DigestFrequency `envconfig:"DIGEST_FREQUENCY" default:"daily" validate:"oneof=daily weekly"`
}

// SecurityConfig holds staff authentication and CORS settings.
type SecurityConfig struct {
	// StaffAPIKeyHash is the bcrypt hash of the shared staff API key.
	StaffAPIKeyHash    SecretString `envconfig:"STAFF_API_KEY_HASH" validate:"required"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Amberline"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// FeatureConfig holds emergency kill switches for delivery channels.
type FeatureConfig struct {
	EnableEmail bool `envconfig:"FEATURE_ENABLE_EMAIL" default:"true"`
	EnableSMS   bool `envconfig:"FEATURE_ENABLE_SMS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
