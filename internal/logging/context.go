package logging

import (
	"context"
	"log/slog"

	"royalty/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (sync_unit_failed, store_replace, ...).
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldPeriod is the period key (YYYY.MM) a line refers to.
	FieldPeriod = "period"
	// FieldPartition is the store partition name.
	FieldPartition = "partition"
	// FieldRunID identifies one sync run.
	FieldRunID = "run_id"
	// FieldCorrelationID is the request correlation identifier.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if period, ok := services.PeriodFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPeriod, period))
	}
	if partition, ok := services.PartitionFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPartition, partition))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
