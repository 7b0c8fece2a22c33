// Package reqcontext carries per-request identity and deadline information
// through context.Context so components never need extra function parameters
// for correlation id, trace id, or caller id.
package reqcontext

import (
	"context"
	"time"

	"github.com/traffic-tacos/reservation-core/internal/common/types"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	traceIDKey       contextKey = "trace_id"
	callerIDKey      contextKey = "caller_id"
)

// WithCorrelationID attaches a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id types.CorrelationID) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// WithTraceID attaches a trace ID to the context.
func WithTraceID(ctx context.Context, id types.TraceID) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// WithCallerID attaches the caller identity to the context.
func WithCallerID(ctx context.Context, id types.CallerID) context.Context {
	return context.WithValue(ctx, callerIDKey, id)
}

// CorrelationID extracts the correlation ID from context, if present.
func CorrelationID(ctx context.Context) types.CorrelationID {
	if id, ok := ctx.Value(correlationIDKey).(types.CorrelationID); ok {
		return id
	}
	return types.CorrelationID("")
}

// TraceID extracts the trace ID from context, if present.
func TraceID(ctx context.Context) types.TraceID {
	if id, ok := ctx.Value(traceIDKey).(types.TraceID); ok {
		return id
	}
	return types.TraceID("")
}

// CallerID extracts the caller ID from context, if present.
func CallerID(ctx context.Context) types.CallerID {
	if id, ok := ctx.Value(callerIDKey).(types.CallerID); ok {
		return id
	}
	return types.CallerID("")
}

// WithDeadline derives a context whose timeout is the lesser of the absolute
// deadline already carried by ctx and now+budget. A per-call timeout must
// never be allowed to exceed the remaining request budget.
func WithDeadline(ctx context.Context, budget time.Duration) (context.Context, context.CancelFunc) {
	wanted := time.Now().Add(budget)
	if existing, ok := ctx.Deadline(); ok && existing.Before(wanted) {
		return context.WithDeadline(ctx, existing)
	}
	return context.WithDeadline(ctx, wanted)
}
