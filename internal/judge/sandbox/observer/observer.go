// Package observer defines logging and metrics hooks for sandbox execution.
package observer

import (
	"context"

	"go.uber.org/zap"

	"codejudge/internal/judge/sandbox/result"
	"codejudge/pkg/utils/logger"
)

// MetricsRecorder records sandbox metrics.
type MetricsRecorder interface {
	ObserveCase(ctx context.Context, languageID string, failure result.FailureKind, wallTimeMs int64, memoryKB int64)
}

// NoopMetricsRecorder is a default recorder that does nothing.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) ObserveCase(ctx context.Context, languageID string, failure result.FailureKind, wallTimeMs int64, memoryKB int64) {
}

// LogMetricsRecorder writes one debug line per executed case.
type LogMetricsRecorder struct{}

func (LogMetricsRecorder) ObserveCase(ctx context.Context, languageID string, failure result.FailureKind, wallTimeMs int64, memoryKB int64) {
	logger.Debug(ctx, "case observed",
		zap.String("language", languageID),
		zap.String("failure", string(failure)),
		zap.Int64("wall_time_ms", wallTimeMs),
		zap.Int64("memory_kb", memoryKB),
	)
}
