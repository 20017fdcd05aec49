package service

import (
	"context"

	"github.com/harpou/ai-gateway/internal/domain/entity"
)

// CompletionOptions carries the per-call knobs the orchestrator uses.
type CompletionOptions struct {
	JSONMode bool
}

// ChatBackend is the orchestrator's view of the LLM connector: run one
// non-streaming completion and hand back the assistant text. Failover and
// multimodal handling live behind this interface.
type ChatBackend interface {
	Complete(ctx context.Context, modelID string, conversation []entity.Message, opts CompletionOptions) (string, error)
}

// ToolSpec describes one registered tool for prompt construction.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolRunner executes registered tools. Run never fails: failures come
// back as diagnostic strings the synthesis step can work with.
type ToolRunner interface {
	Run(ctx context.Context, name string, params map[string]interface{}, userQuestion string) string
	Has(name string) bool
	Specs() []ToolSpec
}

// TaskQueue is the HTTP surface's view of the task substrate.
type TaskQueue interface {
	Enqueue(ctx context.Context, taskType string, payload interface{}) (string, error)
	Get(ctx context.Context, id string) (entity.Task, bool, error)
}
