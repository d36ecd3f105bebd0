// Package app holds the process wiring shared by the Amberline binaries:
// logger, AWS config, database pool, Redis client, delivery gateways and
// the alert dispatcher.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"amberline/internal/config"
	"amberline/internal/db"
	"amberline/internal/external"
	"amberline/internal/notifications/dispatch"
	"amberline/internal/notifications/email"
	"amberline/internal/notifications/format"
	"amberline/internal/notifications/selector"
	"amberline/internal/notifications/sms"
	"amberline/internal/types"
)

// NewLogger creates a JSON slog.Logger at level. Unknown levels fall back
// to info.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// LoadAWSConfig loads the SDK configuration for cfg.Region. EndpointURL,
// when set, points every client at LocalStack.
func LoadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.EndpointURL != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.EndpointURL))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}

// NewPool opens and pings a pgx pool tuned by cfg.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// NewRedis returns a client for cfg, or nil when no address is configured.
func NewRedis(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password.Unmask(),
		DB:       cfg.DB,
	})
}

// Gateways bundles the delivery side shared by the API (verification mail
// and codes) and the worker (alerts).
type Gateways struct {
	Email     *email.Gateway
	SMS       *sms.Gateway
	Formatter format.Formatter
}

// NewGateways builds both gateways from the vendor registry. The feature
// kill switches disable a channel without touching its provider.
func NewGateways(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) *Gateways {
	reg := external.NewClientRegistry(cfg, awsCfg, logger)
	return &Gateways{
		Email: email.NewGateway(email.GatewayConfig{
			Provider: reg.Email,
			Sender:   types.SenderIdentity{Address: cfg.Email.FromAddress, Name: cfg.Email.FromName},
			Enabled:  cfg.Feature.EnableEmail,
			Logger:   logger.With("component", "email_gateway"),
		}),
		SMS: sms.NewGateway(sms.Config{
			Credentials: reg.Twilio,
			NewProvider: reg.NewSMSProvider,
			SendRate:    cfg.SMS.SendRate,
			Enabled:     cfg.Feature.EnableSMS,
			Logger:      logger.With("component", "sms_gateway"),
		}),
		Formatter: format.New(cfg.Server.PublicBaseURL),
	}
}

// NewDispatcher wires the alert dispatcher over pool. metrics may be nil.
func NewDispatcher(cfg *config.Config, pool db.DBTX, gw *Gateways, metrics dispatch.Metrics, logger *slog.Logger) *dispatch.Dispatcher {
	subs := db.NewSubscriptionRepository(pool)
	return dispatch.NewDispatcher(dispatch.Config{
		Cases:           db.NewCaseRepository(pool),
		Sightings:       db.NewSightingRepository(pool),
		Selector:        selector.New(subs, subs),
		Email:           gw.Email,
		SMS:             gw.SMS,
		Formatter:       gw.Formatter,
		AlertLog:        db.NewAlertLogRepository(pool),
		Metrics:         metrics,
		Logger:          types.NewSlogLogger(logger.With("component", "dispatcher")),
		DigestFrequency: cfg.Digest.Frequency,
	})
}
