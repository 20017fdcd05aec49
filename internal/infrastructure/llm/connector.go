package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harpou/ai-gateway/internal/domain/entity"
	apperrors "github.com/harpou/ai-gateway/pkg/errors"
)

// StrategyFailover enables trying the next backend in registry order on
// connection failures.
const StrategyFailover = "failover"

// Options are the per-call knobs forwarded to the upstream.
type Options struct {
	JSONMode    bool
	Temperature *float64
	MaxTokens   *int
	Tools       json.RawMessage
	ToolChoice  json.RawMessage
}

// Connector routes composite model ids ("<backend>/<raw-model>") to
// per-backend clients, pre-processes multimodal content, normalizes
// JSON-mode responses, and fails over across backends on connection errors.
type Connector struct {
	registry *Registry
	clients  map[string]*Client
	breakers map[string]*CircuitBreaker
	strategy string
	logger   *zap.Logger
}

// NewConnector builds clients and circuit breakers for every registered
// backend. strategy is "none" or "failover".
func NewConnector(registry *Registry, strategy string, logger *zap.Logger) *Connector {
	c := &Connector{
		registry: registry,
		clients:  make(map[string]*Client, registry.Len()),
		breakers: make(map[string]*CircuitBreaker, registry.Len()),
		strategy: strategy,
		logger:   logger.With(zap.String("component", "llm-connector")),
	}
	for _, b := range registry.InOrder() {
		c.clients[b.Name] = NewClient(b, logger)
		c.breakers[b.Name] = NewCircuitBreaker(5, 30*time.Second)
	}
	return c
}

// Registry exposes the backend registry for catalog and routing lookups.
func (c *Connector) Registry() *Registry {
	return c.registry
}

// Resolve splits a model id into backend name and raw model. A bare model
// (no slash) targets the primary backend. A prefixed id must name a known
// backend.
func (c *Connector) Resolve(modelID string) (backendName, rawModel string, err error) {
	if idx := strings.Index(modelID, "/"); idx >= 0 {
		backendName = modelID[:idx]
		rawModel = modelID[idx+1:]
		if _, ok := c.registry.Get(backendName); !ok {
			return "", "", apperrors.NewBackendNotFoundError(
				fmt.Sprintf("unknown backend %q in model id %q", backendName, modelID))
		}
		return backendName, rawModel, nil
	}

	primary := c.registry.Primary()
	if primary == "" {
		return "", "", apperrors.NewConfigMissingError("no primary LLM backend is configured")
	}
	return primary, modelID, nil
}

// Complete performs a non-streaming chat completion against the backend
// selected by modelID, with multimodal pre-processing and failover.
func (c *Connector) Complete(ctx context.Context, modelID string, msgs []entity.Message, opts Options) (*ChatCompletion, error) {
	backendName, rawModel, err := c.Resolve(modelID)
	if err != nil {
		return nil, err
	}

	msgs, multimodal := InlineRemoteImages(ctx, msgs, c.logger)
	jsonMode := opts.JSONMode
	if multimodal && jsonMode {
		// Backends commonly reject response_format alongside image parts.
		c.logger.Warn("Disabling JSON mode for multimodal request")
		jsonMode = false
	}

	tried := make(map[string]bool, c.registry.Len())
	current := backendName
	var lastErr error

	for {
		completion, err := c.completeOn(ctx, current, rawModel, msgs, opts, jsonMode)
		if err == nil {
			c.breakers[current].RecordSuccess()
			return completion, nil
		}

		tried[current] = true
		lastErr = err

		if !apperrors.IsConnectionFailed(err) {
			return nil, err
		}
		c.breakers[current].RecordFailure()
		if c.strategy != StrategyFailover {
			return nil, err
		}

		next := c.registry.NextUntried(tried)
		if next == "" {
			return nil, lastErr
		}
		c.logger.Warn("Backend unreachable, failing over",
			zap.String("failed_backend", current),
			zap.String("next_backend", next),
			zap.String("model", rawModel),
		)
		current = next
	}
}

// Stream opens a streaming chat completion. Failover applies only to the
// connection attempt; once chunks flow, errors terminate the stream.
func (c *Connector) Stream(ctx context.Context, modelID string, msgs []entity.Message, opts Options) (*Stream, error) {
	backendName, rawModel, err := c.Resolve(modelID)
	if err != nil {
		return nil, err
	}

	msgs, _ = InlineRemoteImages(ctx, msgs, c.logger)

	tried := make(map[string]bool, c.registry.Len())
	current := backendName
	var lastErr error

	for {
		client := c.clients[current]
		req := c.buildRequest(rawModel, msgs, opts, false)
		stream, err := client.ChatCompletionStream(ctx, req)
		if err == nil {
			c.breakers[current].RecordSuccess()
			return stream, nil
		}

		tried[current] = true
		lastErr = err

		if !apperrors.IsConnectionFailed(err) {
			return nil, err
		}
		c.breakers[current].RecordFailure()
		if c.strategy != StrategyFailover {
			return nil, err
		}

		next := c.registry.NextUntried(tried)
		if next == "" {
			return nil, lastErr
		}
		c.logger.Warn("Backend unreachable, failing over stream",
			zap.String("failed_backend", current),
			zap.String("next_backend", next),
		)
		current = next
	}
}

// completeOn runs one unary call against one backend and applies JSON-mode
// normalization on success.
func (c *Connector) completeOn(ctx context.Context, backendName, rawModel string, msgs []entity.Message, opts Options, jsonMode bool) (*ChatCompletion, error) {
	client, ok := c.clients[backendName]
	if !ok {
		return nil, apperrors.NewBackendNotFoundError(fmt.Sprintf("unknown backend %q", backendName))
	}

	req := c.buildRequest(rawModel, msgs, opts, jsonMode)
	completion, err := client.ChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}

	if jsonMode {
		c.normalizeJSONContent(completion)
	}
	return completion, nil
}

func (c *Connector) buildRequest(rawModel string, msgs []entity.Message, opts Options, jsonMode bool) *ChatRequest {
	req := &ChatRequest{
		Model:       rawModel,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Tools:       opts.Tools,
		ToolChoice:  opts.ToolChoice,
	}
	if jsonMode {
		req.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}
	return req
}

// normalizeJSONContent replaces a JSON-mode string content with the parsed
// object, so callers see consistent structure regardless of backend quirks.
// Parse failures keep the raw string and are only logged.
func (c *Connector) normalizeJSONContent(completion *ChatCompletion) {
	if len(completion.Choices) == 0 {
		return
	}
	msg := &completion.Choices[0].Message
	trimmed := strings.TrimSpace(string(msg.Content))
	if trimmed == "" || trimmed[0] != '"' {
		return // already an object, or empty
	}

	var inner string
	if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
		return
	}
	if !json.Valid([]byte(inner)) {
		c.logger.Debug("JSON-mode content is not valid JSON, keeping raw string")
		return
	}
	msg.Content = json.RawMessage(inner)
}

// ListBackendModels lists the raw models of a single backend.
func (c *Connector) ListBackendModels(ctx context.Context, backendName string) ([]entity.Model, error) {
	client, ok := c.clients[backendName]
	if !ok {
		return nil, apperrors.NewBackendNotFoundError(fmt.Sprintf("unknown backend %q", backendName))
	}
	raw, err := client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]entity.Model, 0, len(raw))
	for _, m := range raw {
		out = append(out, entity.Model{
			ID:          m.ID,
			Object:      "model",
			Created:     m.Created,
			OwnedBy:     m.OwnedBy,
			BackendName: backendName,
		})
	}
	return out, nil
}

// BackendHealth is one backend's circuit status for the health endpoint.
type BackendHealth struct {
	Name         string `json:"name"`
	CircuitState string `json:"circuit_state"`
}

// Health reports per-backend circuit breaker state in registry order.
func (c *Connector) Health() []BackendHealth {
	out := make([]BackendHealth, 0, c.registry.Len())
	for _, b := range c.registry.InOrder() {
		out = append(out, BackendHealth{
			Name:         b.Name,
			CircuitState: c.breakers[b.Name].State().String(),
		})
	}
	return out
}
