package services_test

import (
	"context"
	"testing"

	"reticle/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSessionID(ctx, "sess-1")
	ctx = services.WithFrameSeq(ctx, 42)
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.SessionIDFromContext(ctx); !ok || id != "sess-1" {
		t.Fatalf("unexpected session id: %v %v", id, ok)
	}
	if seq, ok := services.FrameSeqFromContext(ctx); !ok || seq != 42 {
		t.Fatalf("unexpected frame seq: %v %v", seq, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankSessionPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSessionID(ctx, "")
	if _, ok := services.SessionIDFromContext(ctx); ok {
		t.Fatal("expected no session value")
	}
	if _, ok := services.FrameSeqFromContext(ctx); ok {
		t.Fatal("expected no frame seq value")
	}
}
