package logging

import (
	"context"
	"log/slog"

	"scribe/internal/services"
)

// WithContext returns logger extended with the run, stage, chunk, and
// request identifiers carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	var attrs []Attr
	if id, ok := services.RunIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldRunID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		attrs = append(attrs, String(FieldStage, stage))
	}
	if idx, ok := services.ChunkIndexFromContext(ctx); ok {
		attrs = append(attrs, Int(FieldChunkIndex, idx))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldRequestID, rid))
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(toArgs(attrs)...)
}
