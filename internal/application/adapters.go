package application

import (
	"context"

	"github.com/harpou/ai-gateway/internal/domain/entity"
	"github.com/harpou/ai-gateway/internal/domain/service"
	"github.com/harpou/ai-gateway/internal/infrastructure/llm"
	"github.com/harpou/ai-gateway/internal/infrastructure/tool"
	apperrors "github.com/harpou/ai-gateway/pkg/errors"
)

// connectorBackend adapts the LLM connector to the orchestrator's
// ChatBackend port: one unary call, plain text out.
type connectorBackend struct {
	connector *llm.Connector
}

func (b *connectorBackend) Complete(ctx context.Context, modelID string, conversation []entity.Message, opts service.CompletionOptions) (string, error) {
	completion, err := b.connector.Complete(ctx, modelID, conversation, llm.Options{
		JSONMode: opts.JSONMode,
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", apperrors.NewInternalError("upstream returned no choices", nil)
	}
	return completion.Choices[0].Message.Text(), nil
}

// executorRunner adapts the tool executor to the ToolRunner port.
type executorRunner struct {
	executor *tool.Executor
}

func (r *executorRunner) Run(ctx context.Context, name string, params map[string]interface{}, userQuestion string) string {
	return r.executor.Execute(ctx, name, params, userQuestion)
}

func (r *executorRunner) Has(name string) bool {
	_, ok := r.executor.Registry().Get(name)
	return ok
}

func (r *executorRunner) Specs() []service.ToolSpec {
	defs := r.executor.Registry().List()
	out := make([]service.ToolSpec, 0, len(defs))
	for _, d := range defs {
		out = append(out, service.ToolSpec{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return out
}
