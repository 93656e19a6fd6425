package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// runPhase times one engine phase and turns a panic into a logged failure
// so the phases after it still run.
func runPhase(ctx context.Context, logger *slog.Logger, name string, fn func(context.Context) error) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("phase %s panicked: %v", name, r)
			logger.Error("phase panicked", "phase", name, "recovered", r, "stack_trace", string(debug.Stack()))
		}
		duration := time.Since(start).Milliseconds()
		if err != nil {
			logger.Error("phase failed", "phase", name, "duration_ms", duration, "error", err)
			return
		}
		logger.Info("phase complete", "phase", name, "duration_ms", duration)
	}()
	return fn(ctx)
}
