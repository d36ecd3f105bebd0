package types

import "context"

// ActorType identifies who is making a request.
type ActorType string

const (
	ActorTypeStaff  ActorType = "staff"
	ActorTypePublic ActorType = "public"
	ActorTypeSystem ActorType = "system"
)

// Actor is the explicit caller identity threaded into submissions so that
// reported_by can be stamped without ambient request state.
type Actor struct {
	ID   string
	Type ActorType
}

// ReporterID returns a pointer to the actor's ID for reported_by columns,
// or nil for anonymous callers.
func (a Actor) ReporterID() *string {
	if a.ID == "" || a.Type == ActorTypePublic {
		return nil
	}
	id := a.ID
	return &id
}

type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
	loggerKey    contextKey = "logger"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithLogger stores a Logger in the context.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the Logger from the context, or nil.
func LoggerFromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return nil
}
