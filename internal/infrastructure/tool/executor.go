package tool

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/harpou/ai-gateway/internal/infrastructure/webtool"
)

const defaultAPICallTimeout = 15 * time.Second

// Executor runs declaratively configured tools. Every failure mode is
// converted to a diagnostic string: the orchestrator feeds tool output
// straight into synthesis context and must never crash on a bad tool.
type Executor struct {
	registry     *Registry
	searx        *webtool.SearxClient
	reader       *webtool.PageReader
	searxBaseURL string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewExecutor wires the executor to the registry and web helpers. The HTTP
// client carries no global timeout: api_call deadlines are per-call
// contexts, and a tool's timeout_seconds may exceed the default.
func NewExecutor(registry *Registry, searx *webtool.SearxClient, reader *webtool.PageReader, searxBaseURL string, logger *zap.Logger) *Executor {
	return &Executor{
		registry:     registry,
		searx:        searx,
		reader:       reader,
		searxBaseURL: searxBaseURL,
		httpClient:   &http.Client{},
		logger:       logger.With(zap.String("component", "tool-executor")),
	}
}

// Registry exposes the underlying definitions, for prompt construction.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs the named tool with the given parameters. userQuestion is
// the raw question from the conversation; some tools use it for context
// enrichment. The return value is always usable as synthesis context,
// even when it describes a failure.
func (e *Executor) Execute(ctx context.Context, name string, params map[string]interface{}, userQuestion string) string {
	def, ok := e.registry.Get(name)
	if !ok {
		return fmt.Sprintf("Error: tool '%s' is not registered.", name)
	}

	e.logger.Info("Executing tool",
		zap.String("tool", name),
		zap.String("type", def.Type),
	)

	var result string
	var err error

	switch def.Type {
	case TypeInternalFunction:
		result, err = e.runInternalFunction(ctx, def, params)
	case TypeAPICall:
		result, err = e.runAPICall(ctx, def, params)
	case TypeSearchAndReadWebpage:
		result, err = e.runSearchAndRead(ctx, def, params, userQuestion)
	case TypeURLFromTemplate:
		result, err = e.runURLFromTemplate(ctx, def, params)
	default:
		return fmt.Sprintf("Error: tool '%s' has unknown type '%s'.", name, def.Type)
	}

	if err != nil {
		e.logger.Warn("Tool execution failed",
			zap.String("tool", name),
			zap.Error(err),
		)
		return fmt.Sprintf("Error executing tool '%s': %v", name, err)
	}
	return result
}
