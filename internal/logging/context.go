package logging

import (
	"context"
	"log/slog"

	"reticle/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSessionID identifies one camera session.
	FieldSessionID = "session_id"
	// FieldFrameSeq is the camera frame sequence number a record relates to.
	FieldFrameSeq = "frame_seq"
	// FieldState is the workflow state a record relates to.
	FieldState = "state"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a record for filtering (e.g. detection_failed).
	FieldEventType = "event_type"
	// FieldErrorHint tells an operator what to check next.
	FieldErrorHint = "error_hint"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.SessionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSessionID, id))
	}
	if seq, ok := services.FrameSeqFromContext(ctx); ok {
		fields = append(fields, slog.Uint64(FieldFrameSeq, seq))
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
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	return logger.With(args...)
}
