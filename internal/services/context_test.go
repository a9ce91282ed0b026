package services_test

import (
	"context"
	"testing"

	"scribe/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-42")
	ctx = services.WithStage(ctx, "transcription")
	ctx = services.WithChunkIndex(ctx, 3)
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-42" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "transcription" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if idx, ok := services.ChunkIndexFromContext(ctx); !ok || idx != 3 {
		t.Fatalf("unexpected chunk index: %v %v", idx, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	ctx = services.WithChunkIndex(ctx, -1)
	if _, ok := services.ChunkIndexFromContext(ctx); ok {
		t.Fatal("expected no chunk index")
	}
}
