package core

import "context"

// SubmissionLimiter admits or rejects a request for key. A rejection is an
// *types.AppError with a rate_limit_ code.
type SubmissionLimiter interface {
	Allow(ctx context.Context, key string) error
}

// HealthCheck checks one dependency (database, redis) for GET /health.
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a ping function into a HealthCheck.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

func (p CheckFunc) Name() string                    { return p.CheckName }
func (p CheckFunc) Check(ctx context.Context) error { return p.Fn(ctx) }
