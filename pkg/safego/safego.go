package safego

import (
	"go.uber.org/zap"
)

// Go launches a goroutine with panic recovery. A panicking task worker or
// scheduler tick is logged and dropped instead of taking down the process.
//
// Usage:
//
//	safego.Go(logger, "task-worker-3", func() {
//	    // work that might panic
//	})
func Go(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Goroutine panicked",
					zap.String("goroutine", name),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
			}
		}()
		fn()
	}()
}
