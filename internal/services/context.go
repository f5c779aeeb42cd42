package services

import "context"

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	periodKey    contextKey = "period"
	partitionKey contextKey = "partition"
	requestIDKey contextKey = "request_id"
)

// WithRunID annotates context with the sync run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext returns the sync run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPeriod annotates context with the period key being processed.
func WithPeriod(ctx context.Context, period string) context.Context {
	if period == "" {
		return ctx
	}
	return context.WithValue(ctx, periodKey, period)
}

// PeriodFromContext returns the period key if present.
func PeriodFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(periodKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPartition annotates context with the store partition name.
func WithPartition(ctx context.Context, partition string) context.Context {
	if partition == "" {
		return ctx
	}
	return context.WithValue(ctx, partitionKey, partition)
}

// PartitionFromContext returns the partition name if present.
func PartitionFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(partitionKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
