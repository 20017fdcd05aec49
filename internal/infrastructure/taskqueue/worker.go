package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harpou/ai-gateway/pkg/safego"
)

// Handler executes one task type. The returned string becomes the task
// result; a returned error marks the task FAILURE.
type Handler func(ctx context.Context, payload json.RawMessage) (string, error)

// Worker is a pool of goroutines that poll-claim tasks from the store and
// run registered handlers. Claims are store-level, so any number of worker
// processes can share one database.
type Worker struct {
	store        *Store
	handlers     map[string]Handler
	concurrency  int
	pollInterval time.Duration
	logger       *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a worker pool. Concurrency below 1 is clamped to 1.
func NewWorker(store *Store, concurrency int, pollInterval time.Duration, logger *zap.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:        store,
		handlers:     make(map[string]Handler),
		concurrency:  concurrency,
		pollInterval: pollInterval,
		logger:       logger.With(zap.String("component", "task-worker")),
	}
}

// Register binds a handler to a task type. Must be called before Start.
func (w *Worker) Register(taskType string, handler Handler) {
	w.handlers[taskType] = handler
}

// Start launches the pool.
func (w *Worker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	types := make([]string, 0, len(w.handlers))
	for t := range w.handlers {
		types = append(types, t)
	}

	w.logger.Info("Starting task workers",
		zap.Int("concurrency", w.concurrency),
		zap.Strings("task_types", types),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		name := fmt.Sprintf("task-worker-%d", i)
		safego.Go(w.logger, name, func() {
			defer w.wg.Done()
			w.loop(runCtx, types)
		})
	}
}

// Stop cancels the pool and waits for in-flight tasks to settle.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context, types []string) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drain all pending work before sleeping again.
		for {
			claimed, err := w.store.Claim(ctx, types)
			if err != nil {
				w.logger.Error("Task claim failed", zap.Error(err))
				break
			}
			if claimed == nil {
				break
			}
			w.run(ctx, claimed)
		}
	}
}

func (w *Worker) run(ctx context.Context, task *TaskModel) {
	logger := w.logger.With(
		zap.String("task_id", task.ID),
		zap.String("task_type", task.Type),
	)
	logger.Info("Task started")

	// Bookkeeping writes must land even when the run context is already
	// cancelled by a shutdown, or the claimed row strands in STARTED.
	doneCtx := context.WithoutCancel(ctx)

	handler, ok := w.handlers[task.Type]
	if !ok {
		// Claim filters on registered types, but guard anyway.
		logger.Error("No handler for task type")
		if err := w.store.Fail(doneCtx, task.ID, "no handler for task type "+task.Type); err != nil {
			logger.Error("Failed to mark task failed", zap.Error(err))
		}
		return
	}

	result, err := handler(ctx, json.RawMessage(task.Payload))
	if err != nil {
		logger.Warn("Task failed", zap.Error(err))
		if err := w.store.Fail(doneCtx, task.ID, err.Error()); err != nil {
			logger.Error("Failed to mark task failed", zap.Error(err))
		}
		return
	}

	if err := w.store.Complete(doneCtx, task.ID, result); err != nil {
		logger.Error("Failed to mark task completed", zap.Error(err))
		return
	}
	logger.Info("Task completed")
}
