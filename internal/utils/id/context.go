package id

import "context"

type contextKey string

const (
	userKey    contextKey = "optimaizer_user_id"
	agentKey   contextKey = "optimaizer_agent_id"
	requestKey contextKey = "optimaizer_request_id"
)

// IDs captures the identifiers propagated across runtime boundaries.
type IDs struct {
	UserID    string
	AgentID   string
	RequestID string
}

// WithUserID stores the owning user identifier on the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey, userID)
}

// WithAgentID stores the agent identifier on the context.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	if agentID == "" {
		return ctx
	}
	return context.WithValue(ctx, agentKey, agentID)
}

// WithRequestID stores the streaming request identifier on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestKey, requestID)
}

// WithIDs stores every provided identifier on the context.
func WithIDs(ctx context.Context, ids IDs) context.Context {
	ctx = WithUserID(ctx, ids.UserID)
	ctx = WithAgentID(ctx, ids.AgentID)
	ctx = WithRequestID(ctx, ids.RequestID)
	return ctx
}

// UserIDFromContext extracts the owning user identifier from context.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if userID, ok := ctx.Value(userKey).(string); ok {
		return userID
	}
	return ""
}

// AgentIDFromContext extracts the agent identifier from context.
func AgentIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if agentID, ok := ctx.Value(agentKey).(string); ok {
		return agentID
	}
	return ""
}

// RequestIDFromContext extracts the streaming request identifier from context.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(requestKey).(string); ok {
		return requestID
	}
	return ""
}

// IDsFromContext collects all known identifiers from the context.
func IDsFromContext(ctx context.Context) IDs {
	return IDs{
		UserID:    UserIDFromContext(ctx),
		AgentID:   AgentIDFromContext(ctx),
		RequestID: RequestIDFromContext(ctx),
	}
}

// EnsureRequestID guarantees a request identifier is present on the context.
// It returns the updated context and the resulting identifier.
func EnsureRequestID(ctx context.Context, generator func() string) (context.Context, string) {
	if existing := RequestIDFromContext(ctx); existing != "" {
		return ctx, existing
	}
	next := ""
	if generator != nil {
		next = generator()
	}
	if next == "" {
		return ctx, ""
	}
	return WithRequestID(ctx, next), next
}
