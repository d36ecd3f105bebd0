package verification

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"amberline/internal/external"
	"amberline/internal/types"
)

// RequestLimiter throttles requests per key: a destination for
// verification, a client IP for public submissions.
type RequestLimiter interface {
	// Allow returns a rate_limit_exceeded AppError when key is throttled.
	Allow(ctx context.Context, key string) error
}

// RedisCmdable is the subset of redis.Cmdable the limiter uses.
type RedisCmdable interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// LimiterConfig bounds requests: at most one per Cooldown and at most
// MaxPerWindow per Window.
type LimiterConfig struct {
	Cooldown     time.Duration
	Window       time.Duration
	MaxPerWindow int64
	KeyPrefix    string
}

// RedisRequestLimiter keeps cooldown and window counters in Redis so every
// API instance shares them. Redis outages fail open.
type RedisRequestLimiter struct {
	rdb    RedisCmdable
	cfg    LimiterConfig
	logger *slog.Logger
}

// NewRedisRequestLimiter creates a limiter.
func NewRedisRequestLimiter(rdb RedisCmdable, cfg LimiterConfig, logger *slog.Logger) *RedisRequestLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "verify"
	}
	return &RedisRequestLimiter{rdb: rdb, cfg: cfg, logger: logger}
}

// Allow implements RequestLimiter.
func (l *RedisRequestLimiter) Allow(ctx context.Context, key string) error {
	if l.cfg.Cooldown > 0 {
		ok, err := l.rdb.SetNX(ctx, l.cfg.KeyPrefix+":cooldown:"+key, 1, l.cfg.Cooldown).Result()
		if err != nil {
			l.logger.WarnContext(ctx, "request limiter unavailable", "prefix", l.cfg.KeyPrefix, "error", err)
			return nil
		}
		if !ok {
			return types.NewAppErrorWithDetails(types.ErrCodeRateLimit,
				"please wait before trying again", nil,
				map[string]any{"retry_after_seconds": int(l.cfg.Cooldown.Seconds())})
		}
	}

	if l.cfg.MaxPerWindow <= 0 || l.cfg.Window <= 0 {
		return nil
	}
	countKey := l.cfg.KeyPrefix + ":count:" + key
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, countKey)
		ttl = p.TTL(ctx, countKey)
		return nil
	})
	if err != nil {
		l.logger.WarnContext(ctx, "request limiter unavailable", "prefix", l.cfg.KeyPrefix, "error", err)
		return nil
	}
	n := incr.Val()
	// A counter without a TTL never resets. Any call that sees one sets the
	// window, so a failed Expire is retried on the next request.
	if ttl.Val() < 0 {
		if err := l.rdb.Expire(ctx, countKey, l.cfg.Window).Err(); err != nil {
			l.logger.WarnContext(ctx, "failed to set request window expiry", "prefix", l.cfg.KeyPrefix, "error", err)
		}
	}
	if n > l.cfg.MaxPerWindow {
		l.logger.WarnContext(ctx, "request window exhausted", "key", redactKey(key), "count", n)
		return types.NewAppErrorWithDetails(types.ErrCodeRateLimit,
			"too many requests", nil,
			map[string]any{"retry_after_seconds": int(l.cfg.Window.Seconds())})
	}
	return nil
}

// NoopLimiter allows everything. Used when Redis is not configured.
type NoopLimiter struct{}

// Allow implements RequestLimiter.
func (NoopLimiter) Allow(context.Context, string) error { return nil }

func redactKey(key string) string {
	if phone, ok := strings.CutPrefix(key, "sms:"); ok {
		return "sms:" + external.RedactPhone(phone)
	}
	if addr, ok := strings.CutPrefix(key, "email:"); ok {
		return "email:" + external.RedactEmail(addr)
	}
	return "***"
}
