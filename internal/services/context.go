package services

import "context"

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	frameSeqKey  contextKey = "frame_seq"
	requestIDKey contextKey = "request_id"
)

// WithSessionID annotates context with the camera session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext returns the session identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithFrameSeq annotates context with the frame sequence number being processed.
func WithFrameSeq(ctx context.Context, seq uint64) context.Context {
	return context.WithValue(ctx, frameSeqKey, seq)
}

// FrameSeqFromContext extracts the frame sequence number if present.
func FrameSeqFromContext(ctx context.Context) (uint64, bool) {
	v := ctx.Value(frameSeqKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case uint64:
		return val, true
	case int:
		if val < 0 {
			return 0, false
		}
		return uint64(val), true
	default:
		return 0, false
	}
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
