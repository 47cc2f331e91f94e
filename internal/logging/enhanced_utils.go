package logging

import (
	"context"
	"time"

	memerrors "github.com/memcore-dev/memcore/internal/errors"
)

// EnhancedLogger wraps a Logger with operation-timing and error-kind helpers.
type EnhancedLogger struct {
	Logger
	component string
}

// NewEnhancedLogger creates an enhanced logger for a component.
func NewEnhancedLogger(component string) *EnhancedLogger {
	baseLogger := NewLogger(INFO)
	return &EnhancedLogger{
		Logger:    baseLogger.WithComponent(component),
		component: component,
	}
}

// WithContext creates a logger carrying the trace ID found in ctx.
func (l *EnhancedLogger) WithContext(ctx context.Context) *EnhancedLogger {
	traceID := GetTraceID(ctx)
	return &EnhancedLogger{
		Logger:    l.Logger.WithTraceID(traceID),
		component: l.component,
	}
}

// WithError logs err annotated with its memerrors.Kind, if any.
func (l *EnhancedLogger) WithError(err error) *EnhancedLogger {
	if err == nil {
		return l
	}
	l.Error("operation failed",
		"error", err.Error(),
		"kind", string(memerrors.GetKind(err)),
		"retryable", memerrors.Retryable(err),
	)
	return l
}

// LogOperation logs the start and completion of an operation, including its
// duration and, on failure, the error kind.
func (l *EnhancedLogger) LogOperation(operation string, fn func() error) error {
	start := time.Now()
	l.Debug("starting operation", "operation", operation)

	err := fn()
	duration := time.Since(start)

	if err != nil {
		l.Error("operation failed",
			"operation", operation,
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
			"kind", string(memerrors.GetKind(err)),
		)
		return err
	}

	l.Debug("operation completed",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

// LogSlowOperation logs operations that exceed an expected duration budget,
// e.g. a maintenance phase running past its per-tick allotment.
func (l *EnhancedLogger) LogSlowOperation(operation string, duration, expected time.Duration) {
	l.Warn("slow operation",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
		"expected_ms", expected.Milliseconds(),
		"slowdown_factor", float64(duration)/float64(expected),
	)
}

// GetComponentLogger returns an enhanced logger scoped to one of C1-C10
// or an ambient concern (e.g. "control", "overflow").
func GetComponentLogger(component string) *EnhancedLogger {
	return NewEnhancedLogger(component)
}

// Package-scoped loggers for the pipeline's named components.
var (
	ScoringLogger       = NewEnhancedLogger("scoring")
	StoreLogger         = NewEnhancedLogger("store")
	RouterLogger        = NewEnhancedLogger("router")
	PlacementLogger     = NewEnhancedLogger("placement")
	DecayLogger         = NewEnhancedLogger("decay")
	ConsolidationLogger = NewEnhancedLogger("consolidation")
	ReviewLogger        = NewEnhancedLogger("review")
	ForgettingLogger    = NewEnhancedLogger("forgetting")
	MaintenanceLogger   = NewEnhancedLogger("maintenance")
	RetrievalLogger     = NewEnhancedLogger("retrieval")
	ControlLogger       = NewEnhancedLogger("control")
	OverflowLogger      = NewEnhancedLogger("overflow")
)
