package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harpou/ai-gateway/internal/domain/entity"
	"github.com/harpou/ai-gateway/internal/domain/service"
)

// Client-visible task statuses.
const (
	statusInProgress = "in_progress"
	statusCompleted  = "completed"
	statusFailed     = "failed"
)

// TaskHandler serves GET /v1/tasks/status/:id.
type TaskHandler struct {
	queue  service.TaskQueue
	logger *zap.Logger
}

// NewTaskHandler wires the handler.
func NewTaskHandler(queue service.TaskQueue, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		queue:  queue,
		logger: logger.With(zap.String("component", "task-handler")),
	}
}

// Status maps the task state machine onto the polling contract. An
// unknown id reports in_progress: enqueue/poll races and swept rows look
// the same to the client as a task that has not started yet.
func (h *TaskHandler) Status(c *gin.Context) {
	id := c.Param("id")

	task, found, err := h.queue.Get(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Task lookup failed", zap.String("task_id", id), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Could not load the task status.", "server_error")
		return
	}

	if !found {
		c.JSON(http.StatusOK, gin.H{
			"task_id": id,
			"status":  statusInProgress,
		})
		return
	}

	switch task.State {
	case entity.TaskSuccess:
		c.JSON(http.StatusOK, gin.H{
			"task_id": id,
			"status":  statusCompleted,
			"result":  task.Result,
		})
	case entity.TaskFailure, entity.TaskRevoked:
		c.JSON(http.StatusInternalServerError, gin.H{
			"task_id": id,
			"status":  statusFailed,
			"error":   task.Error,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"task_id": id,
			"status":  statusInProgress,
		})
	}
}
